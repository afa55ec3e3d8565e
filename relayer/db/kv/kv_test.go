package kv

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/SeungheonOh/xreserve-relay/relayer/types"
	"github.com/SeungheonOh/xreserve-relay/testing/assert"
	"github.com/SeungheonOh/xreserve-relay/testing/require"
)

func TestNewKVStore_CreatesDatabaseFile(t *testing.T) {
	dirPath := t.TempDir()
	store, err := NewKVStore(context.Background(), dirPath)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, store.Close())
	}()

	assert.Equal(t, dirPath, store.DatabasePath())
	if _, err := os.Stat(path.Join(dirPath, DatabaseFileName)); err != nil {
		t.Fatalf("database file missing: %v", err)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dirPath := t.TempDir()

	store, err := NewKVStore(ctx, dirPath)
	require.NoError(t, err)
	require.NoError(t, store.SaveRelayJob(ctx, &types.RelayJob{TxHash: "0xaa11", SourceDomain: 6}))
	require.NoError(t, store.SaveJobAttested(ctx, "0xaa11", "0x01", "0x02", "9"))
	require.NoError(t, store.Close())

	reopened, err := NewKVStore(ctx, dirPath)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, reopened.Close())
	}()

	job, err := reopened.RelayJob(ctx, "0xaa11")
	require.NoError(t, err)
	assert.Equal(t, types.StatusAttested, job.Status)
	assert.Equal(t, uint32(6), job.SourceDomain)

	// The status index also survives restarts.
	oldest, err := reopened.OldestRelayJobByStatus(ctx, types.StatusAttested)
	require.NoError(t, err)
	require.NotNil(t, oldest)
	assert.Equal(t, "0xaa11", oldest.TxHash)
}

func TestStore_ClearDB(t *testing.T) {
	dirPath := t.TempDir()
	store, err := NewKVStore(context.Background(), dirPath)
	require.NoError(t, err)

	require.NoError(t, store.ClearDB())
	if _, err := os.Stat(path.Join(dirPath, DatabaseFileName)); !os.IsNotExist(err) {
		t.Fatal("database file still exists after ClearDB")
	}
}

func TestStore_Backup(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	require.NoError(t, store.SaveRelayJob(ctx, &types.RelayJob{TxHash: "0xaa11", SourceDomain: 1}))

	outputDir := filepath.Join(t.TempDir(), "relay-backups")
	require.NoError(t, store.Backup(ctx, outputDir, false))

	files, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	require.Equal(t, 1, len(files), "expected exactly one backup file")

	info, err := files[0].Info()
	require.NoError(t, err)
	assert.Equal(t, true, info.Size() > 0, "backup file is empty")
}
