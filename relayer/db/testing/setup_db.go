// Package testing allows for spinning up a real bolt-db
// instance for testing purposes in the relay node.
package testing

import (
	"context"
	"testing"

	"github.com/SeungheonOh/xreserve-relay/relayer/db"
	"github.com/SeungheonOh/xreserve-relay/relayer/db/kv"
)

// SetupDB instantiates and returns database backed by key value store.
func SetupDB(t testing.TB) db.Database {
	s, err := kv.NewKVStore(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Failed to instantiate DB: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Fatalf("Failed to close database: %v", err)
		}
	})
	return s
}
