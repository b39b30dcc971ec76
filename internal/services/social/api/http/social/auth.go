package social

import (
	"net/http"
	"strings"

	apperrors "github.com/louisbranch/townsquare/internal/platform/errors"
	"github.com/louisbranch/townsquare/internal/services/social/identity"
)

const bearerPrefix = "bearer "

// selfSegment names the /users/me routes and is never accepted as a caller.
const selfSegment identity.Identity = "me"

// authenticate resolves the caller from the Authorization header. Requests
// without the header proceed as Anonymous; a bad token is rejected.
func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), identity.Anonymous)))
			return
		}

		token, ok := bearerToken(header)
		if !ok {
			h.writeError(w, r, apperrors.New(apperrors.CodeUnauthenticated, "authorization header is not a bearer token"))
			return
		}
		if h.tokens == nil {
			h.writeError(w, r, apperrors.New(apperrors.CodeUnauthenticated, "token verification is not configured"))
			return
		}
		claims, err := h.tokens.Verify(token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		caller := identity.Parse(claims.Subject)
		if err := identity.RequireOwner(caller); err != nil {
			h.writeError(w, r, err)
			return
		}
		if caller == selfSegment {
			h.writeError(w, r, apperrors.New(apperrors.CodeUnauthenticated, "token subject is a reserved path segment"))
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), caller)))
	})
}

func bearerToken(header string) (string, bool) {
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}
