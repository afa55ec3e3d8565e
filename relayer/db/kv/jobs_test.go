package kv

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/SeungheonOh/xreserve-relay/relayer/types"
	"github.com/SeungheonOh/xreserve-relay/testing/assert"
	"github.com/SeungheonOh/xreserve-relay/testing/require"
)

func setupStore(t testing.TB) *Store {
	store, err := NewKVStore(context.Background(), t.TempDir())
	require.NoError(t, err, "Failed to instantiate store")
	t.Cleanup(func() {
		require.NoError(t, store.Close(), "Failed to close store")
	})
	return store
}

func testJob(txHash string) *types.RelayJob {
	return &types.RelayJob{
		TxHash:       txHash,
		SourceDomain: 3,
	}
}

func TestStore_SaveRelayJob_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	job := testJob("0xaa11")
	require.NoError(t, store.SaveRelayJob(ctx, job))

	got, err := store.RelayJob(ctx, "0xaa11")
	require.NoError(t, err)
	assert.Equal(t, "0xaa11", got.TxHash)
	assert.Equal(t, uint32(3), got.SourceDomain)
	assert.Equal(t, types.StatusPending, got.Status)
	assert.Equal(t, false, got.CreatedAt.IsZero(), "CreatedAt not stamped")
	assert.Equal(t, false, got.UpdatedAt.Before(got.CreatedAt), "UpdatedAt before CreatedAt")

	has, err := store.HasRelayJob(ctx, "0xaa11")
	require.NoError(t, err)
	assert.Equal(t, true, has)

	has, err = store.HasRelayJob(ctx, "0xbb22")
	require.NoError(t, err)
	assert.Equal(t, false, has)
}

func TestStore_SaveRelayJob_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.SaveRelayJob(ctx, testJob("0xaa11")))
	err := store.SaveRelayJob(ctx, testJob("0xaa11"))
	require.ErrorIs(t, err, ErrJobExists)
}

func TestStore_RelayJob_NotFound(t *testing.T) {
	store := setupStore(t)
	_, err := store.RelayJob(context.Background(), "0xmissing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_LifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.SaveRelayJob(ctx, testJob("0xaa11")))

	require.NoError(t, store.MarkJobPolling(ctx, "0xaa11"))
	job, err := store.RelayJob(ctx, "0xaa11")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPolling, job.Status)
	assert.Equal(t, uint64(0), job.PollAttempts, "marking polling must not count an attempt")

	require.NoError(t, store.IncrementPollAttempts(ctx, "0xaa11"))
	require.NoError(t, store.IncrementPollAttempts(ctx, "0xaa11"))
	job, err = store.RelayJob(ctx, "0xaa11")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), job.PollAttempts)

	require.NoError(t, store.SaveJobAttested(ctx, "0xaa11", "0xdead", "0xbeef", "77"))
	job, err = store.RelayJob(ctx, "0xaa11")
	require.NoError(t, err)
	assert.Equal(t, types.StatusAttested, job.Status)
	assert.Equal(t, "0xdead", job.Message)
	assert.Equal(t, "0xbeef", job.Attestation)
	assert.Equal(t, "77", job.EventNonce)
	assert.Equal(t, uint64(3), job.PollAttempts, "the successful poll counts as an attempt")

	require.NoError(t, store.MarkJobSubmitted(ctx, "0xaa11", "0xdeadbeef"))
	job, err = store.RelayJob(ctx, "0xaa11")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSubmitted, job.Status)
	assert.Equal(t, "0xdeadbeef", job.DestTxHash)

	require.NoError(t, store.MarkJobConfirmed(ctx, "0xaa11", types.OutcomeForwarded, 1234))
	job, err = store.RelayJob(ctx, "0xaa11")
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, job.Status)
	assert.Equal(t, types.OutcomeForwarded, job.Outcome)
	assert.Equal(t, uint64(1234), job.DestBlockNumber)
	assert.Equal(t, "", job.ErrorMessage)

	require.NotNil(t, job.AttestedAt)
	require.NotNil(t, job.SubmittedAt)
	require.NotNil(t, job.ConfirmedAt)
	assert.Equal(t, false, job.SubmittedAt.Before(*job.AttestedAt), "SubmittedAt before AttestedAt")
	assert.Equal(t, false, job.ConfirmedAt.Before(*job.SubmittedAt), "ConfirmedAt before SubmittedAt")
}

func TestStore_InvalidTransitionsRejected(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.SaveRelayJob(ctx, testJob("0xaa11")))

	// Cannot submit or confirm a job that was never attested.
	require.ErrorIs(t, store.MarkJobSubmitted(ctx, "0xaa11", "0xd1"), ErrInvalidTransition)
	require.ErrorIs(t, store.MarkJobConfirmed(ctx, "0xaa11", types.OutcomeForwarded, 1), ErrInvalidTransition)

	// Cannot return to polling once attested.
	require.NoError(t, store.SaveJobAttested(ctx, "0xaa11", "0x01", "0x02", "1"))
	require.ErrorIs(t, store.MarkJobPolling(ctx, "0xaa11"), ErrInvalidTransition)
	require.ErrorIs(t, store.IncrementPollAttempts(ctx, "0xaa11"), ErrInvalidTransition)
}

func TestStore_TerminalJobsAreImmutable(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.SaveRelayJob(ctx, testJob("0xaa11")))
	require.NoError(t, store.MarkJobFailed(ctx, "0xaa11", "attestation_timeout"))

	job, err := store.RelayJob(ctx, "0xaa11")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, job.Status)
	assert.Equal(t, "attestation_timeout", job.ErrorMessage)

	require.ErrorIs(t, store.MarkJobPolling(ctx, "0xaa11"), ErrJobFinalized)
	require.ErrorIs(t, store.MarkJobFailed(ctx, "0xaa11", "again"), ErrJobFinalized)
	_, err = store.RequeueJobSubmissionFailure(ctx, "0xaa11", "retry")
	require.ErrorIs(t, err, ErrJobFinalized)
}

func TestStore_RequeueJobSubmissionFailure(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.SaveRelayJob(ctx, testJob("0xaa11")))
	require.NoError(t, store.SaveJobAttested(ctx, "0xaa11", "0x01", "0x02", "1"))
	require.NoError(t, store.MarkJobSubmitted(ctx, "0xaa11", "0xd1"))

	job, err := store.RequeueJobSubmissionFailure(ctx, "0xaa11", "transaction dropped")
	require.NoError(t, err)
	assert.Equal(t, types.StatusAttested, job.Status)
	assert.Equal(t, uint64(1), job.RetryCount)
	assert.Equal(t, "transaction dropped", job.ErrorMessage)

	job, err = store.RequeueJobSubmissionFailure(ctx, "0xaa11", "nonce too low")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), job.RetryCount, "retry count must never decrease")
}

func TestStore_MarkJobSubmissionFailed(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.SaveRelayJob(ctx, testJob("0xaa11")))
	require.NoError(t, store.SaveJobAttested(ctx, "0xaa11", "0x01", "0x02", "1"))
	require.NoError(t, store.MarkJobSubmissionFailed(ctx, "0xaa11", "transfer settled"))

	job, err := store.RelayJob(ctx, "0xaa11")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, job.Status)
	assert.Equal(t, "transfer settled", job.ErrorMessage)
	assert.Equal(t, uint64(1), job.RetryCount, "the rejected attempt still counts")
}

func TestStore_RelayJobsByStatus_OrderAndLimit(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	base := time.Unix(1700000000, 0).UTC()
	// Insert out of order to prove ordering comes from the index.
	for i, offset := range []int{3, 0, 4, 1, 2} {
		job := testJob(fmt.Sprintf("0xhash%d", offset))
		job.CreatedAt = base.Add(time.Duration(offset) * time.Second)
		require.NoError(t, store.SaveRelayJob(ctx, job), "insert %d", i)
	}
	// Move one out of the pending set.
	require.NoError(t, store.MarkJobPolling(ctx, "0xhash2"))

	jobs, err := store.RelayJobsByStatus(ctx, []types.JobStatus{types.StatusPending, types.StatusPolling}, 0)
	require.NoError(t, err)
	require.Equal(t, 5, len(jobs))
	for i, job := range jobs {
		assert.Equal(t, fmt.Sprintf("0xhash%d", i), job.TxHash, "jobs out of creation order at %d", i)
	}

	jobs, err = store.RelayJobsByStatus(ctx, []types.JobStatus{types.StatusPending, types.StatusPolling}, 3)
	require.NoError(t, err)
	require.Equal(t, 3, len(jobs))
	assert.Equal(t, "0xhash0", jobs[0].TxHash)
	assert.Equal(t, "0xhash2", jobs[2].TxHash)

	jobs, err = store.RelayJobsByStatus(ctx, []types.JobStatus{types.StatusAttested}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, len(jobs))
}

func TestStore_OldestRelayJobByStatus(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	got, err := store.OldestRelayJobByStatus(ctx, types.StatusAttested)
	require.NoError(t, err)
	if got != nil {
		t.Fatalf("expected nil job for empty queue, got %v", got)
	}

	base := time.Unix(1700000000, 0).UTC()
	for i := 0; i < 3; i++ {
		job := testJob(fmt.Sprintf("0xhash%d", i))
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.SaveRelayJob(ctx, job))
		require.NoError(t, store.SaveJobAttested(ctx, job.TxHash, "0x01", "0x02", "1"))
	}

	got, err = store.OldestRelayJobByStatus(ctx, types.StatusAttested)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "0xhash0", got.TxHash)
}

func TestStore_CountRelayJobsByStatus(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	counts, err := store.CountRelayJobsByStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, len(types.Statuses()), len(counts), "every status must be present")
	for st, n := range counts {
		assert.Equal(t, uint64(0), n, "status %s", st)
	}

	require.NoError(t, store.SaveRelayJob(ctx, testJob("0xaa")))
	require.NoError(t, store.SaveRelayJob(ctx, testJob("0xbb")))
	require.NoError(t, store.SaveRelayJob(ctx, testJob("0xcc")))
	require.NoError(t, store.MarkJobFailed(ctx, "0xcc", "attestation_timeout"))

	counts, err = store.CountRelayJobsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), counts[types.StatusPending])
	assert.Equal(t, uint64(1), counts[types.StatusFailed])
	assert.Equal(t, uint64(0), counts[types.StatusConfirmed])
}

func TestStore_UpdatedAtBumpsOnWrite(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	require.NoError(t, store.SaveRelayJob(ctx, testJob("0xaa11")))
	before, err := store.RelayJob(ctx, "0xaa11")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.MarkJobPolling(ctx, "0xaa11"))
	after, err := store.RelayJob(ctx, "0xaa11")
	require.NoError(t, err)
	assert.Equal(t, true, after.UpdatedAt.After(before.UpdatedAt), "UpdatedAt not bumped")
	assert.Equal(t, true, before.CreatedAt.Equal(after.CreatedAt), "CreatedAt must never change")
}
