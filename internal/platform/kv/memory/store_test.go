package memory

import (
	"testing"

	"github.com/louisbranch/townsquare/internal/platform/kv"
	"github.com/louisbranch/townsquare/internal/platform/kv/kvtest"
)

func TestStoreConformance(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		t.Helper()
		return New()
	})
}

func TestCloseNilStore(t *testing.T) {
	var s *Store
	if err := s.Close(); err != nil {
		t.Fatalf("close nil store: %v", err)
	}
}
