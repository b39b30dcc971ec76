// Package errors provides structured error handling with i18n support.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Identity errors
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"

	// Validation errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeInvalidContent  Code = "INVALID_CONTENT"
	CodeInvalidUsername Code = "INVALID_USERNAME"
	CodeInvalidProfile  Code = "INVALID_PROFILE"

	// User errors
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeUsernameTaken Code = "USERNAME_TAKEN"

	// Follow graph errors
	CodeAlreadyFollowing Code = "ALREADY_FOLLOWING"
	CodeNotFollowing     Code = "NOT_FOLLOWING"
	CodeSelfFollow       Code = "SELF_FOLLOW"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthenticated:
		return http.StatusUnauthorized

	case CodeForbidden:
		return http.StatusForbidden

	// BadRequest - validation failures, bad input
	case CodeInvalidArgument,
		CodeInvalidContent,
		CodeInvalidUsername,
		CodeInvalidProfile,
		CodeSelfFollow:
		return http.StatusBadRequest

	case CodeNotFound:
		return http.StatusNotFound

	// Conflict - state doesn't allow operation
	case CodeAlreadyExists,
		CodeUsernameTaken,
		CodeAlreadyFollowing,
		CodeNotFollowing:
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}
