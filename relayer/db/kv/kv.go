// Package kv defines a persistent backend for the relay node implemented
// using BoltDB.
package kv

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/SeungheonOh/xreserve-relay/config/params"
	"github.com/SeungheonOh/xreserve-relay/io/file"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	prombbolt "github.com/prysmaticlabs/prombbolt"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

const (
	// DatabaseFileName is the name of the relay node's database file.
	DatabaseFileName = "relay.db"
	// backupsDirectoryName where database backups are written.
	backupsDirectoryName = "backups"
)

// Store defines an implementation of the relay Database interface using
// BoltDB as the underlying persistent kv-store.
type Store struct {
	db           *bolt.DB
	databasePath string
}

// NewKVStore initializes a new boltDB key-value store at the directory
// path specified, creates the kv-buckets based on the schema, and stores
// an open connection db object as a property of the Store struct.
func NewKVStore(ctx context.Context, dirPath string) (*Store, error) {
	hasDir, err := file.HasDir(dirPath)
	if err != nil {
		return nil, err
	}
	if !hasDir {
		if err := file.MkdirAll(dirPath); err != nil {
			return nil, err
		}
	}
	datafile := path.Join(dirPath, DatabaseFileName)
	boltDB, err := bolt.Open(
		datafile,
		params.RelayIoConfig().ReadWritePermissions,
		&bolt.Options{
			Timeout: params.RelayIoConfig().BoltTimeout,
		},
	)
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errors.New("cannot obtain database lock, database may be in use by another process")
		}
		return nil, err
	}

	kv := &Store{
		db:           boltDB,
		databasePath: dirPath,
	}
	if err := kv.db.Update(func(tx *bolt.Tx) error {
		return createBuckets(
			tx,
			relayJobsBucket,
			jobStatusIndexBucket,
		)
	}); err != nil {
		return nil, err
	}
	if err := prometheus.Register(createBoltCollector(kv.db)); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return nil, err
		}
	}
	return kv, nil
}

func createBuckets(tx *bolt.Tx, buckets ...[]byte) error {
	for _, bucket := range buckets {
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			return err
		}
	}
	return nil
}

// createBoltCollector returns a prometheus collector specifically focused on
// the performance and behavior of boltdb.
func createBoltCollector(db *bolt.DB) prometheus.Collector {
	return prombbolt.New("xreserve_relaydb", db)
}

// ClearDB removes the previously stored database in the data directory.
func (s *Store) ClearDB() error {
	if _, err := os.Stat(s.databasePath); os.IsNotExist(err) {
		return nil
	}
	prometheus.Unregister(createBoltCollector(s.db))
	if err := os.Remove(path.Join(s.databasePath, DatabaseFileName)); err != nil {
		return errors.Wrap(err, "could not remove database file")
	}
	return nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	prometheus.Unregister(createBoltCollector(s.db))
	return s.db.Close()
}

// DatabasePath at which this database writes files.
func (s *Store) DatabasePath() string {
	return s.databasePath
}

// Backup the database to the backups directory, or to outputDir when
// non-empty. Bolt guarantees a consistent snapshot of the file under a
// read transaction.
func (s *Store) Backup(ctx context.Context, outputDir string, permissionOverride bool) error {
	_, span := trace.StartSpan(ctx, "relayDB.Backup")
	defer span.End()

	var backupsDir string
	var err error
	if outputDir != "" {
		backupsDir, err = file.ExpandPath(outputDir)
		if err != nil {
			return err
		}
	} else {
		backupsDir = path.Join(s.databasePath, backupsDirectoryName)
	}
	if permissionOverride {
		if err := os.MkdirAll(backupsDir, os.ModePerm); err != nil { // #nosec G301
			return err
		}
	} else if err := file.MkdirAll(backupsDir); err != nil {
		return err
	}
	backupPath := path.Join(backupsDir, fmt.Sprintf("relay_jobs_%s.backup", time.Now().UTC().Format("2006-01-02T15-04-05")))
	log.WithField("backup", backupPath).Info("Writing backup database")

	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(backupPath, params.RelayIoConfig().ReadWritePermissions)
	})
}
