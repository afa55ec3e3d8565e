// Package db defines the ability to create a new database for the relay
// node, as well as a handle to its job records.
package db

import (
	"context"

	"github.com/SeungheonOh/xreserve-relay/relayer/db/iface"
	"github.com/SeungheonOh/xreserve-relay/relayer/db/kv"
)

// Database defines the necessary methods for the relay node's services which
// may be implemented by any key-value or relational database in practice.
type Database = iface.Database

// ReadOnlyDatabase exposes the read half of Database.
type ReadOnlyDatabase = iface.ReadOnlyDatabase

// NewDB initializes a new database in the data directory.
func NewDB(ctx context.Context, dirPath string) (Database, error) {
	return kv.NewKVStore(ctx, dirPath)
}

// ErrNotFound is returned when a record is absent, and can be checked with
// errors.Is.
var ErrNotFound = kv.ErrNotFound

// ErrJobExists is returned when creating a job whose tx hash is already tracked.
var ErrJobExists = kv.ErrJobExists

// ErrJobFinalized is returned on writes to confirmed or failed jobs.
var ErrJobFinalized = kv.ErrJobFinalized

// ErrInvalidTransition is returned when a status writer is applied to a job
// in an incompatible state.
var ErrInvalidTransition = kv.ErrInvalidTransition
