package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeUsernameTaken, "username alice is taken")
	if !stderrors.Is(err, New(CodeUsernameTaken, "")) {
		t.Fatal("expected errors.Is to match on code")
	}
	if stderrors.Is(err, New(CodeAlreadyExists, "")) {
		t.Fatal("expected errors.Is to reject a different code")
	}
}

func TestCodeOfWalksWrappedChain(t *testing.T) {
	base := New(CodeNotFollowing, "not following")
	wrapped := fmt.Errorf("unfollow: %w", base)

	if got := CodeOf(wrapped); got != CodeNotFollowing {
		t.Fatalf("CodeOf = %q, want %q", got, CodeNotFollowing)
	}
	if !HasCode(wrapped, CodeNotFollowing) {
		t.Fatal("expected HasCode to match wrapped domain error")
	}
	if got := CodeOf(stderrors.New("disk full")); got != CodeInternal {
		t.Fatalf("CodeOf(plain) = %q, want %q", got, CodeInternal)
	}
	if got := CodeOf(nil); got != "" {
		t.Fatalf("CodeOf(nil) = %q, want empty", got)
	}
}

func TestWrapExposesCause(t *testing.T) {
	cause := stderrors.New("bucket missing")
	err := Wrap(CodeInternal, "read users", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable")
	}
	if err.Error() != "read users" {
		t.Fatalf("Error() = %q, want %q", err.Error(), "read users")
	}
}

func TestMetadataOf(t *testing.T) {
	err := fmt.Errorf("create user: %w", WithMetadata(CodeUsernameTaken, "taken", map[string]string{"Username": "alice"}))
	if got := MetadataOf(err)["Username"]; got != "alice" {
		t.Fatalf("metadata username = %q, want alice", got)
	}
	if MetadataOf(stderrors.New("plain")) != nil {
		t.Fatal("expected nil metadata for plain errors")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeUnauthenticated, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeInvalidContent, http.StatusBadRequest},
		{CodeInvalidUsername, http.StatusBadRequest},
		{CodeSelfFollow, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeAlreadyExists, http.StatusConflict},
		{CodeUsernameTaken, http.StatusConflict},
		{CodeAlreadyFollowing, http.StatusConflict},
		{CodeNotFollowing, http.StatusConflict},
		{CodeInternal, http.StatusInternalServerError},
		{Code("SOMETHING_ELSE"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.code.HTTPStatus(); got != tt.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", tt.code, got, tt.want)
		}
	}
}
