package attestation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SeungheonOh/xreserve-relay/config/params"
	dbtest "github.com/SeungheonOh/xreserve-relay/relayer/db/testing"
	"github.com/SeungheonOh/xreserve-relay/relayer/ratelimit"
	"github.com/SeungheonOh/xreserve-relay/relayer/types"
	"github.com/SeungheonOh/xreserve-relay/testing/assert"
	"github.com/SeungheonOh/xreserve-relay/testing/require"
	"github.com/SeungheonOh/xreserve-relay/testing/util"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	logTest "github.com/sirupsen/logrus/hooks/test"
)

var testRouter = common.HexToAddress("0x1111111111111111111111111111111111111111")

var testTxHash = "0x" + strings.Repeat("aa", 32)

// validMessageHex builds a minimal payload bound to testRouter.
func validMessageHex() string {
	raw := make([]byte, 248)
	copy(raw[108+12:108+32], testRouter.Bytes())
	copy(raw[184+12:184+32], testRouter.Bytes())
	raw[247] = 0x64 // amount = 100
	return hexutil.Encode(raw)
}

// invalidMessageHex carries a mint recipient that is not the router.
func invalidMessageHex() string {
	raw := make([]byte, 248)
	copy(raw[108+12:108+32], testRouter.Bytes())
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	copy(raw[184+12:184+32], other.Bytes())
	return hexutil.Encode(raw)
}

func fastBackoff(t *testing.T) {
	prev := params.RelayNodeConfig()
	cfg := prev.Copy()
	cfg.RateLimitBackoff = time.Millisecond
	params.OverrideRelayConfig(cfg)
	t.Cleanup(func() { params.OverrideRelayConfig(prev) })
}

// newTestService wires a poller against a stub authority handler.
func newTestService(t *testing.T, handler http.HandlerFunc) (*Service, context.Context) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	s := NewService(context.Background(), &Config{
		Database:           dbtest.SetupDB(t),
		Client:             client,
		Limiter:            ratelimit.New(1000, 1000),
		RouterAddress:      testRouter,
		PollInterval:       time.Second,
		AttestationTimeout: 30 * time.Minute,
	})
	t.Cleanup(func() { require.NoError(t, s.Stop()) })
	return s, s.ctx
}

func respondMessages(t *testing.T, w http.ResponseWriter, msgs ...Message) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(&MessagesResponse{Messages: msgs}))
}

func TestPoller_NotReadyCountsAttempt(t *testing.T) {
	s, ctx := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	require.NoError(t, s.cfg.Database.SaveRelayJob(ctx, &types.RelayJob{TxHash: testTxHash, SourceDomain: 3}))

	s.pollOnce(ctx)
	s.pollOnce(ctx)

	job, err := s.cfg.Database.RelayJob(ctx, testTxHash)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPolling, job.Status)
	assert.Equal(t, uint64(2), job.PollAttempts)
}

func TestPoller_ThrottleAbortsCycleWithoutAdvancing(t *testing.T) {
	fastBackoff(t)
	s, ctx := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	first := &types.RelayJob{TxHash: testTxHash, SourceDomain: 3, CreatedAt: time.Now().UTC().Add(-time.Minute)}
	second := &types.RelayJob{TxHash: "0x" + strings.Repeat("bb", 32), SourceDomain: 3}
	require.NoError(t, s.cfg.Database.SaveRelayJob(ctx, first))
	require.NoError(t, s.cfg.Database.SaveRelayJob(ctx, second))

	s.pollOnce(ctx)

	// The first job was claimed for polling before the throttle, but no
	// attempt was recorded and the second job was never touched.
	job, err := s.cfg.Database.RelayJob(ctx, first.TxHash)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPolling, job.Status)
	assert.Equal(t, uint64(0), job.PollAttempts)

	job, err = s.cfg.Database.RelayJob(ctx, second.TxHash)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, job.Status)
}

func TestPoller_PendingAttestationKeepsPolling(t *testing.T) {
	s, ctx := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		respondMessages(t, w, Message{Message: validMessageHex(), Attestation: "PENDING", EventNonce: "42", Status: "complete"})
	})
	require.NoError(t, s.cfg.Database.SaveRelayJob(ctx, &types.RelayJob{TxHash: testTxHash, SourceDomain: 3}))

	s.pollOnce(ctx)

	job, err := s.cfg.Database.RelayJob(ctx, testTxHash)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPolling, job.Status)
	assert.Equal(t, uint64(1), job.PollAttempts)
	assert.Equal(t, "", job.Attestation)
}

func TestPoller_CompleteAttestationSaved(t *testing.T) {
	msgHex := validMessageHex()
	s, ctx := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		respondMessages(t, w, Message{Message: msgHex, Attestation: "0xbeef", EventNonce: "42", Status: "complete"})
	})
	require.NoError(t, s.cfg.Database.SaveRelayJob(ctx, &types.RelayJob{TxHash: testTxHash, SourceDomain: 3}))

	s.pollOnce(ctx)

	job, err := s.cfg.Database.RelayJob(ctx, testTxHash)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAttested, job.Status)
	assert.Equal(t, msgHex, job.Message)
	assert.Equal(t, "0xbeef", job.Attestation)
	assert.Equal(t, "42", job.EventNonce)
	assert.Equal(t, uint64(1), job.PollAttempts)
	require.NotNil(t, job.AttestedAt)
}

func TestPoller_MultipleMessagesFirstWins(t *testing.T) {
	hook := logTest.NewGlobal()
	msgHex := validMessageHex()
	s, ctx := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		respondMessages(t, w,
			Message{Message: msgHex, Attestation: "0xbeef", EventNonce: "42", Status: "complete"},
			Message{Message: invalidMessageHex(), Attestation: "0xdead", EventNonce: "43", Status: "complete"},
		)
	})
	require.NoError(t, s.cfg.Database.SaveRelayJob(ctx, &types.RelayJob{TxHash: testTxHash, SourceDomain: 3}))

	s.pollOnce(ctx)

	job, err := s.cfg.Database.RelayJob(ctx, testTxHash)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAttested, job.Status)
	assert.Equal(t, "42", job.EventNonce)
	util.AssertLogsContain(t, hook, "Multiple attested messages")
}

func TestPoller_InvalidMessageFailsJob(t *testing.T) {
	s, ctx := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		respondMessages(t, w, Message{Message: invalidMessageHex(), Attestation: "0xbeef", EventNonce: "42", Status: "complete"})
	})
	require.NoError(t, s.cfg.Database.SaveRelayJob(ctx, &types.RelayJob{TxHash: testTxHash, SourceDomain: 3}))

	s.pollOnce(ctx)

	job, err := s.cfg.Database.RelayJob(ctx, testTxHash)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, job.Status)
	require.ErrorContains(t, "mintRecipient", errorFromJob(job))
}

func TestPoller_AttestationTimeout(t *testing.T) {
	s, ctx := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	job := &types.RelayJob{
		TxHash:       testTxHash,
		SourceDomain: 3,
		CreatedAt:    time.Now().UTC().Add(-31 * time.Minute),
	}
	require.NoError(t, s.cfg.Database.SaveRelayJob(ctx, job))

	s.pollOnce(ctx)

	got, err := s.cfg.Database.RelayJob(ctx, testTxHash)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, attestationTimeoutReason, got.ErrorMessage)
	assert.Equal(t, uint64(0), got.PollAttempts, "no authority query after timeout")
}

func TestPoller_AuthorityErrorCountsAttempt(t *testing.T) {
	s, ctx := newTestService(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	require.NoError(t, s.cfg.Database.SaveRelayJob(ctx, &types.RelayJob{TxHash: testTxHash, SourceDomain: 3}))

	s.pollOnce(ctx)

	job, err := s.cfg.Database.RelayJob(ctx, testTxHash)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPolling, job.Status)
	assert.Equal(t, uint64(1), job.PollAttempts)
}

func errorFromJob(job *types.RelayJob) error {
	if job.ErrorMessage == "" {
		return nil
	}
	return errors.New(job.ErrorMessage)
}
