// Package identity models the opaque caller identity used by every social store.
package identity

import (
	"context"
	"strings"

	apperrors "github.com/louisbranch/townsquare/internal/platform/errors"
)

// Identity is an opaque, comparable reference to an authenticated caller.
type Identity string

// Anonymous is the sentinel for unauthenticated callers. It never owns data.
const Anonymous Identity = ""

// Parse trims raw into an Identity. Blank input yields Anonymous.
func Parse(raw string) Identity {
	return Identity(strings.TrimSpace(raw))
}

// IsAnonymous reports whether id is the anonymous sentinel.
func (id Identity) IsAnonymous() bool {
	return id == Anonymous
}

func (id Identity) String() string {
	return string(id)
}

// RequireOwner returns an Unauthenticated error unless id can own data.
// NUL is reserved as the edge-key separator, so identities containing it
// are never accepted.
func RequireOwner(id Identity) error {
	if id.IsAnonymous() {
		return apperrors.New(apperrors.CodeUnauthenticated, "caller is anonymous")
	}
	if strings.IndexByte(string(id), 0) >= 0 {
		return apperrors.New(apperrors.CodeUnauthenticated, "caller identity is malformed")
	}
	return nil
}

// identityContextKey is the context key for the authenticated caller.
type identityContextKey struct{}

// WithIdentity stores the caller identity in context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext returns the caller identity stored in context, or Anonymous.
func FromContext(ctx context.Context) Identity {
	if ctx == nil {
		return Anonymous
	}
	value, _ := ctx.Value(identityContextKey{}).(Identity)
	return value
}

// Set returns the distinct members of ids.
func Set(ids []Identity) map[Identity]struct{} {
	set := make(map[Identity]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
