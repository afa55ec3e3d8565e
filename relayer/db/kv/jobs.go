package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/SeungheonOh/xreserve-relay/encoding/bytesutil"
	"github.com/SeungheonOh/xreserve-relay/relayer/types"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.opencensus.io/trace"
)

var (
	// ErrNotFound is returned when a relay job is absent from the store.
	ErrNotFound = errors.New("relay job not found")
	// ErrJobExists is returned when creating a job whose tx hash is already tracked.
	ErrJobExists = errors.New("relay job already exists")
	// ErrJobFinalized is returned on writes to confirmed or failed jobs.
	ErrJobFinalized = errors.New("relay job is finalized")
	// ErrInvalidTransition is returned when a status writer is applied to a
	// job in an incompatible state.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// SaveRelayJob persists a new relay job. The tx hash is the primary key:
// saving a hash that is already tracked returns ErrJobExists, making intake
// idempotent. A zero status defaults to pending and a zero CreatedAt is
// stamped with the current time.
func (s *Store) SaveRelayJob(ctx context.Context, job *types.RelayJob) error {
	_, span := trace.StartSpan(ctx, "relayDB.SaveRelayJob")
	defer span.End()

	if job.Status == "" {
		job.Status = types.StatusPending
	}
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(relayJobsBucket)
		key := []byte(job.TxHash)
		if existing := bkt.Get(key); existing != nil {
			return ErrJobExists
		}
		enc, err := encodeJob(job)
		if err != nil {
			return err
		}
		if err := bkt.Put(key, enc); err != nil {
			return errors.Wrap(err, "failed to save relay job")
		}
		idx := tx.Bucket(jobStatusIndexBucket)
		if err := idx.Put(statusIndexKey(job.Status, job.CreatedAt, job.TxHash), key); err != nil {
			return errors.Wrap(err, "failed to index relay job")
		}
		return nil
	})
}

// RelayJob retrieves a job by its source tx hash, returning ErrNotFound when
// the hash is not tracked.
func (s *Store) RelayJob(ctx context.Context, txHash string) (*types.RelayJob, error) {
	_, span := trace.StartSpan(ctx, "relayDB.RelayJob")
	defer span.End()

	var job *types.RelayJob
	err := s.db.View(func(tx *bolt.Tx) error {
		enc := tx.Bucket(relayJobsBucket).Get([]byte(txHash))
		if enc == nil {
			return ErrNotFound
		}
		var err error
		job, err = decodeJob(enc)
		return err
	})
	return job, err
}

// HasRelayJob checks whether a job exists for the given tx hash.
func (s *Store) HasRelayJob(ctx context.Context, txHash string) (bool, error) {
	_, span := trace.StartSpan(ctx, "relayDB.HasRelayJob")
	defer span.End()

	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(relayJobsBucket).Get([]byte(txHash)) != nil
		return nil
	})
	return exists, err
}

// MarkJobPolling transitions a pending job to polling before its first
// attestation query. Applying it to a job already polling is a no-op write
// that only bumps UpdatedAt.
func (s *Store) MarkJobPolling(ctx context.Context, txHash string) error {
	_, span := trace.StartSpan(ctx, "relayDB.MarkJobPolling")
	defer span.End()

	_, err := s.updateJob(txHash, func(job *types.RelayJob) error {
		switch job.Status {
		case types.StatusPending, types.StatusPolling:
			job.Status = types.StatusPolling
			return nil
		default:
			return errors.Wrapf(ErrInvalidTransition, "%s -> polling", job.Status)
		}
	})
	return err
}

// IncrementPollAttempts records one attestation authority query for the job.
func (s *Store) IncrementPollAttempts(ctx context.Context, txHash string) error {
	_, span := trace.StartSpan(ctx, "relayDB.IncrementPollAttempts")
	defer span.End()

	_, err := s.updateJob(txHash, func(job *types.RelayJob) error {
		if job.Status != types.StatusPending && job.Status != types.StatusPolling {
			return errors.Wrapf(ErrInvalidTransition, "cannot count poll attempt in status %s", job.Status)
		}
		job.PollAttempts++
		return nil
	})
	return err
}

// SaveJobAttested stores the attested message material and moves the job to
// attested. The successful query that produced the attestation is counted
// as a poll attempt here, so the attested write stays a single transaction.
func (s *Store) SaveJobAttested(ctx context.Context, txHash, message, attestation, eventNonce string) error {
	_, span := trace.StartSpan(ctx, "relayDB.SaveJobAttested")
	defer span.End()

	_, err := s.updateJob(txHash, func(job *types.RelayJob) error {
		if job.Status != types.StatusPending && job.Status != types.StatusPolling {
			return errors.Wrapf(ErrInvalidTransition, "%s -> attested", job.Status)
		}
		job.Status = types.StatusAttested
		job.Message = message
		job.Attestation = attestation
		job.EventNonce = eventNonce
		job.PollAttempts++
		job.ErrorMessage = ""
		now := time.Now().UTC()
		job.AttestedAt = &now
		return nil
	})
	return err
}

// MarkJobSubmitted records the destination transaction hash and moves the
// job to submitted. This write happens before the receipt wait so a crash
// cannot lose a broadcast transaction.
func (s *Store) MarkJobSubmitted(ctx context.Context, txHash, destTxHash string) error {
	_, span := trace.StartSpan(ctx, "relayDB.MarkJobSubmitted")
	defer span.End()

	_, err := s.updateJob(txHash, func(job *types.RelayJob) error {
		if job.Status != types.StatusAttested {
			return errors.Wrapf(ErrInvalidTransition, "%s -> submitted", job.Status)
		}
		job.Status = types.StatusSubmitted
		job.DestTxHash = destTxHash
		job.ErrorMessage = ""
		now := time.Now().UTC()
		job.SubmittedAt = &now
		return nil
	})
	return err
}

// MarkJobConfirmed finalizes a submitted job with its settlement outcome and
// the block number of the destination transaction.
func (s *Store) MarkJobConfirmed(ctx context.Context, txHash string, outcome types.Outcome, blockNumber uint64) error {
	_, span := trace.StartSpan(ctx, "relayDB.MarkJobConfirmed")
	defer span.End()

	_, err := s.updateJob(txHash, func(job *types.RelayJob) error {
		if job.Status != types.StatusSubmitted {
			return errors.Wrapf(ErrInvalidTransition, "%s -> confirmed", job.Status)
		}
		job.Status = types.StatusConfirmed
		job.Outcome = outcome
		job.DestBlockNumber = blockNumber
		job.ErrorMessage = ""
		now := time.Now().UTC()
		job.ConfirmedAt = &now
		return nil
	})
	return err
}

// MarkJobFailed finalizes a job with a terminal reason. Any non-terminal
// status may fail.
func (s *Store) MarkJobFailed(ctx context.Context, txHash, reason string) error {
	_, span := trace.StartSpan(ctx, "relayDB.MarkJobFailed")
	defer span.End()

	_, err := s.updateJob(txHash, func(job *types.RelayJob) error {
		job.Status = types.StatusFailed
		job.ErrorMessage = reason
		return nil
	})
	return err
}

// MarkJobSubmissionFailed finalizes a job whose submission was rejected for a
// terminal reason. The failed attempt is still counted against the job.
func (s *Store) MarkJobSubmissionFailed(ctx context.Context, txHash, reason string) error {
	_, span := trace.StartSpan(ctx, "relayDB.MarkJobSubmissionFailed")
	defer span.End()

	_, err := s.updateJob(txHash, func(job *types.RelayJob) error {
		job.Status = types.StatusFailed
		job.ErrorMessage = reason
		job.RetryCount++
		return nil
	})
	return err
}

// RequeueJobSubmissionFailure consumes one submission attempt and returns
// the job to the attested queue. Used for transient submission failures and
// for submitted transactions that dropped from the destination mempool. The
// updated job is returned so callers can apply the retry ceiling.
func (s *Store) RequeueJobSubmissionFailure(ctx context.Context, txHash, reason string) (*types.RelayJob, error) {
	_, span := trace.StartSpan(ctx, "relayDB.RequeueJobSubmissionFailure")
	defer span.End()

	return s.updateJob(txHash, func(job *types.RelayJob) error {
		if job.Status != types.StatusAttested && job.Status != types.StatusSubmitted {
			return errors.Wrapf(ErrInvalidTransition, "%s -> attested", job.Status)
		}
		job.Status = types.StatusAttested
		job.RetryCount++
		job.ErrorMessage = reason
		return nil
	})
}

// RelayJobsByStatus returns jobs in any of the given statuses ordered by
// creation time ascending across all of them, capped at limit when limit is
// positive.
func (s *Store) RelayJobsByStatus(ctx context.Context, statuses []types.JobStatus, limit int) ([]*types.RelayJob, error) {
	_, span := trace.StartSpan(ctx, "relayDB.RelayJobsByStatus")
	defer span.End()

	type indexEntry struct {
		createdAt uint64
		txHash    []byte
	}
	var jobs []*types.RelayJob
	err := s.db.View(func(tx *bolt.Tx) error {
		var entries []indexEntry
		c := tx.Bucket(jobStatusIndexBucket).Cursor()
		for _, st := range statuses {
			prefix := []byte{statusByte(st)}
			for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
				entries = append(entries, indexEntry{
					createdAt: bytesutil.BytesToUint64BigEndian(k[1:9]),
					txHash:    bytesutil.SafeCopyBytes(v),
				})
			}
		}
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].createdAt != entries[j].createdAt {
				return entries[i].createdAt < entries[j].createdAt
			}
			return bytes.Compare(entries[i].txHash, entries[j].txHash) < 0
		})
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}
		bkt := tx.Bucket(relayJobsBucket)
		for _, e := range entries {
			enc := bkt.Get(e.txHash)
			if enc == nil {
				return errors.Wrapf(ErrNotFound, "dangling status index entry for %s", e.txHash)
			}
			job, err := decodeJob(enc)
			if err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return nil
	})
	return jobs, err
}

// OldestRelayJobByStatus returns the job with the earliest creation time in
// the given status, or nil when the status queue is empty.
func (s *Store) OldestRelayJobByStatus(ctx context.Context, status types.JobStatus) (*types.RelayJob, error) {
	_, span := trace.StartSpan(ctx, "relayDB.OldestRelayJobByStatus")
	defer span.End()

	var job *types.RelayJob
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(jobStatusIndexBucket).Cursor()
		prefix := []byte{statusByte(status)}
		k, v := c.Seek(prefix)
		if k == nil || !bytes.HasPrefix(k, prefix) {
			return nil
		}
		enc := tx.Bucket(relayJobsBucket).Get(v)
		if enc == nil {
			return errors.Wrapf(ErrNotFound, "dangling status index entry for %s", v)
		}
		var err error
		job, err = decodeJob(enc)
		return err
	})
	return job, err
}

// CountRelayJobsByStatus reports how many jobs sit in every status,
// including zero counts, which the health endpoint and metrics rely on.
func (s *Store) CountRelayJobsByStatus(ctx context.Context) (map[types.JobStatus]uint64, error) {
	_, span := trace.StartSpan(ctx, "relayDB.CountRelayJobsByStatus")
	defer span.End()

	counts := make(map[types.JobStatus]uint64, len(types.Statuses()))
	for _, st := range types.Statuses() {
		counts[st] = 0
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(jobStatusIndexBucket).Cursor()
		for _, st := range types.Statuses() {
			prefix := []byte{statusByte(st)}
			for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
				counts[st]++
			}
		}
		return nil
	})
	return counts, err
}

// updateJob applies mutate to the stored job inside a single read-modify-write
// transaction, bumps UpdatedAt, and keeps the status index in sync. Writes to
// finalized jobs are rejected.
func (s *Store) updateJob(txHash string, mutate func(job *types.RelayJob) error) (*types.RelayJob, error) {
	var updated *types.RelayJob
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(relayJobsBucket)
		key := []byte(txHash)
		enc := bkt.Get(key)
		if enc == nil {
			return ErrNotFound
		}
		job, err := decodeJob(enc)
		if err != nil {
			return err
		}
		if job.Finalized() {
			return errors.Wrapf(ErrJobFinalized, "%s is %s", job.TxHash, job.Status)
		}
		prevStatus := job.Status
		if err := mutate(job); err != nil {
			return err
		}
		job.UpdatedAt = time.Now().UTC()
		out, err := encodeJob(job)
		if err != nil {
			return err
		}
		if err := bkt.Put(key, out); err != nil {
			return errors.Wrap(err, "failed to update relay job")
		}
		if prevStatus != job.Status {
			idx := tx.Bucket(jobStatusIndexBucket)
			if err := idx.Delete(statusIndexKey(prevStatus, job.CreatedAt, job.TxHash)); err != nil {
				return errors.Wrap(err, "failed to drop stale status index entry")
			}
			if err := idx.Put(statusIndexKey(job.Status, job.CreatedAt, job.TxHash), key); err != nil {
				return errors.Wrap(err, "failed to index relay job")
			}
		}
		updated = job
		return nil
	})
	return updated, err
}

func encodeJob(job *types.RelayJob) ([]byte, error) {
	enc, err := json.Marshal(job)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode relay job")
	}
	return enc, nil
}

func decodeJob(enc []byte) (*types.RelayJob, error) {
	job := &types.RelayJob{}
	if err := json.Unmarshal(enc, job); err != nil {
		return nil, errors.Wrap(err, "failed to decode relay job")
	}
	return job, nil
}

func statusIndexKey(status types.JobStatus, createdAt time.Time, txHash string) []byte {
	key := make([]byte, 0, 9+len(txHash))
	key = append(key, statusByte(status))
	key = append(key, bytesutil.Uint64ToBytesBigEndian(uint64(createdAt.UnixNano()))...)
	return append(key, txHash...)
}

func statusByte(status types.JobStatus) byte {
	switch status {
	case types.StatusPending:
		return 0
	case types.StatusPolling:
		return 1
	case types.StatusAttested:
		return 2
	case types.StatusSubmitted:
		return 3
	case types.StatusConfirmed:
		return 4
	case types.StatusFailed:
		return 5
	default:
		return 0xff
	}
}
