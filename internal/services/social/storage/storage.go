// Package storage selects and opens the key-value backend behind the social stores.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/louisbranch/townsquare/internal/platform/kv"
	"github.com/louisbranch/townsquare/internal/platform/kv/bbolt"
	"github.com/louisbranch/townsquare/internal/platform/kv/memory"
	"github.com/louisbranch/townsquare/internal/platform/kv/sqlite"
)

// Driver names a supported storage backend.
type Driver string

const (
	DriverBolt   Driver = "bbolt"
	DriverSQLite Driver = "sqlite"
	DriverMemory Driver = "memory"
)

// ParseDriver normalizes a configured driver name; empty means bbolt.
func ParseDriver(value string) (Driver, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(value))) {
	case "", DriverBolt:
		return DriverBolt, nil
	case DriverSQLite:
		return DriverSQLite, nil
	case DriverMemory:
		return DriverMemory, nil
	default:
		return "", fmt.Errorf("unsupported storage driver %q", value)
	}
}

// Open returns the key-value store for driver. File-backed drivers create the
// parent directory of path when it is missing.
func Open(driver Driver, path string) (kv.Store, error) {
	if driver == DriverMemory {
		return memory.New(), nil
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required for %s", driver)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	switch driver {
	case DriverBolt:
		store, err := bbolt.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open bbolt store: %w", err)
		}
		return store, nil
	case DriverSQLite:
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}
