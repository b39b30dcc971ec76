package identity

import (
	"context"
	"testing"

	apperrors "github.com/louisbranch/townsquare/internal/platform/errors"
)

func TestParseTrims(t *testing.T) {
	if got := Parse("  alice\n"); got != "alice" {
		t.Fatalf("Parse = %q, want alice", got)
	}
	if !Parse("   ").IsAnonymous() {
		t.Fatal("expected blank input to be anonymous")
	}
}

func TestRequireOwner(t *testing.T) {
	if err := RequireOwner("alice"); err != nil {
		t.Fatalf("expected alice to own data: %v", err)
	}
	for _, id := range []Identity{Anonymous, "ali\x00ce"} {
		err := RequireOwner(id)
		if !apperrors.HasCode(err, apperrors.CodeUnauthenticated) {
			t.Fatalf("RequireOwner(%q) = %v, want UNAUTHENTICATED", id, err)
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), "bob")
	if got := FromContext(ctx); got != "bob" {
		t.Fatalf("FromContext = %q, want bob", got)
	}
	if got := FromContext(context.Background()); got != Anonymous {
		t.Fatalf("FromContext(empty) = %q, want anonymous", got)
	}
	if got := FromContext(nil); got != Anonymous {
		t.Fatalf("FromContext(nil) = %q, want anonymous", got)
	}
	if got := FromContext(WithIdentity(nil, "carol")); got != "carol" {
		t.Fatalf("FromContext(WithIdentity(nil)) = %q, want carol", got)
	}
}

func TestSetDeduplicates(t *testing.T) {
	set := Set([]Identity{"a", "b", "a"})
	if len(set) != 2 {
		t.Fatalf("set size = %d, want 2", len(set))
	}
}
