// Package profile validates and normalizes user profile inputs.
package profile

import (
	"net/url"
	"strings"
	"unicode/utf8"

	apperrors "github.com/louisbranch/townsquare/internal/platform/errors"
)

const (
	maxDisplayNameLength = 64
	maxBioLength         = 280
	maxAvatarURLLength   = 2048
)

// Normalized stores validated profile field values.
type Normalized struct {
	DisplayName string
	Bio         string
	AvatarURL   string
}

// Normalize validates and trims user-supplied profile values.
func Normalize(displayName string, bio string, avatarURL string) (Normalized, error) {
	displayName, err := NormalizeDisplayName(displayName)
	if err != nil {
		return Normalized{}, err
	}
	bio, err = NormalizeBio(bio)
	if err != nil {
		return Normalized{}, err
	}
	avatarURL, err = NormalizeAvatarURL(avatarURL)
	if err != nil {
		return Normalized{}, err
	}
	return Normalized{
		DisplayName: displayName,
		Bio:         bio,
		AvatarURL:   avatarURL,
	}, nil
}

// NormalizeDisplayName trims and length-checks a display name.
func NormalizeDisplayName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) > maxDisplayNameLength {
		return "", invalid("display name is too long")
	}
	return value, nil
}

// NormalizeBio trims and length-checks a bio.
func NormalizeBio(value string) (string, error) {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) > maxBioLength {
		return "", invalid("bio is too long")
	}
	return value, nil
}

// NormalizeAvatarURL accepts an empty value or an absolute http(s) URL.
func NormalizeAvatarURL(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	if len(value) > maxAvatarURLLength {
		return "", invalid("avatar url is too long")
	}
	if !IsWebURL(value) {
		return "", invalid("avatar url must be an absolute http(s) url")
	}
	return value, nil
}

// IsWebURL reports whether value parses as an absolute http or https URL with a host.
func IsWebURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}

func invalid(reason string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidProfile, reason, map[string]string{"Reason": reason})
}
