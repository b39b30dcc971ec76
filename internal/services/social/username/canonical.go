// Package username canonicalizes and validates social usernames.
package username

import (
	"regexp"
	"strings"

	apperrors "github.com/louisbranch/townsquare/internal/platform/errors"
)

var canonicalPattern = regexp.MustCompile(`^[a-z][a-z0-9._-]{2,31}$`)

// Canonicalize normalizes a username to lowercase ASCII and validates policy.
// Failures carry CodeInvalidUsername with the rejected input as metadata.
func Canonicalize(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", invalid(input, "is required")
	}

	var builder strings.Builder
	builder.Grow(len(input))
	for i := 0; i < len(input); i++ {
		ch := input[i]
		if ch > 0x7f {
			return "", invalid(input, "must be ASCII")
		}
		if ch >= 'A' && ch <= 'Z' {
			ch = ch - 'A' + 'a'
		}
		builder.WriteByte(ch)
	}

	canonical := builder.String()
	if !canonicalPattern.MatchString(canonical) {
		return "", invalid(input, "does not match required format")
	}
	return canonical, nil
}

func invalid(input, reason string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidUsername, "username "+reason, map[string]string{
		"Username": input,
		"Reason":   reason,
	})
}
