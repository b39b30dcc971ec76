package authn

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/louisbranch/townsquare/internal/platform/errors"
)

var testSecret = []byte(strings.Repeat("s", minSecretLength))

func newTestTokens(t *testing.T, now *time.Time) *Tokens {
	t.Helper()
	tokens, err := New(Config{
		Secret: testSecret,
		Issuer: "townsquare",
		TTL:    time.Hour,
		Now:    func() time.Time { return *now },
		NewID:  func() (string, error) { return "tok-1", nil },
	})
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	return tokens
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := newTestTokens(t, &now)

	signed, err := tokens.Issue("  alice ")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := tokens.Verify(signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Subject != "alice" || claims.TokenID != "tok-1" {
		t.Fatalf("claims = %+v", claims)
	}
	if !claims.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expires_at = %v", claims.ExpiresAt)
	}
}

func TestVerifyRejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens := newTestTokens(t, &now)
	valid, err := tokens.Issue("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	otherIssuer, err := New(Config{Secret: testSecret, Issuer: "elsewhere", TTL: time.Hour, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	foreign, err := otherIssuer.Issue("alice")
	if err != nil {
		t.Fatalf("issue foreign: %v", err)
	}

	otherSecret, err := New(Config{Secret: []byte(strings.Repeat("x", minSecretLength)), Issuer: "townsquare", TTL: time.Hour, Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("new tokens: %v", err)
	}
	forged, err := otherSecret.Issue("alice")
	if err != nil {
		t.Fatalf("issue forged: %v", err)
	}

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:  "townsquare",
		Subject: "alice",
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    "townsquare",
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"wrong issuer", foreign},
		{"wrong secret", forged},
		{"missing expiry", noExpiry},
		{"none algorithm", noneAlg},
		{"tampered", valid + "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.Verify(tt.token)
			if !apperrors.HasCode(err, apperrors.CodeUnauthenticated) {
				t.Fatalf("expected UNAUTHENTICATED, got %v", err)
			}
		})
	}

	now = now.Add(2 * time.Hour)
	_, err = tokens.Verify(valid)
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"short secret", Config{Secret: []byte("short"), Issuer: "townsquare", TTL: time.Hour}},
		{"missing issuer", Config{Secret: testSecret, TTL: time.Hour}},
		{"zero ttl", Config{Secret: testSecret, Issuer: "townsquare"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}

func TestIssueRequiresSubject(t *testing.T) {
	now := time.Now()
	tokens := newTestTokens(t, &now)
	if _, err := tokens.Issue("  "); err == nil {
		t.Fatal("expected error for blank subject")
	}
}
