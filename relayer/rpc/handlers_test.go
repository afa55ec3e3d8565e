package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SeungheonOh/xreserve-relay/relayer/db"
	dbtest "github.com/SeungheonOh/xreserve-relay/relayer/db/testing"
	"github.com/SeungheonOh/xreserve-relay/relayer/types"
	"github.com/SeungheonOh/xreserve-relay/testing/assert"
	"github.com/SeungheonOh/xreserve-relay/testing/require"
)

var testTxHash = "0x" + strings.Repeat("aa", 32)

func newTestServer(t *testing.T) (*httptest.Server, db.Database) {
	d := dbtest.SetupDB(t)
	s := NewService(&Config{Host: "127.0.0.1", Port: 0, Database: d})
	srv := httptest.NewServer(s.server.Handler)
	t.Cleanup(srv.Close)
	return srv, d
}

func postRelay(t *testing.T, srv *httptest.Server, sourceDomain uint32, txHash string) (*http.Response, *SubmitRelayResponse) {
	body, err := json.Marshal(&SubmitRelayRequest{SourceDomain: sourceDomain, TxHash: txHash})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/relay", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, resp.Body.Close()) })
	if resp.StatusCode >= 400 {
		return resp, nil
	}
	out := &SubmitRelayResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp, out
}

func errorBody(t *testing.T, resp *http.Response) string {
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body["error"]
}

func TestSubmitRelay_CreatesPendingJob(t *testing.T) {
	srv, d := newTestServer(t)

	resp, out := postRelay(t, srv, 3, testTxHash)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, testTxHash, out.TxHash)
	assert.Equal(t, "pending", out.Status)

	job, err := d.RelayJob(context.Background(), testTxHash)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, job.Status)
	assert.Equal(t, uint32(3), job.SourceDomain)
	assert.Equal(t, uint64(0), job.RetryCount)
}

func TestSubmitRelay_IdempotentReplay(t *testing.T) {
	srv, d := newTestServer(t)

	resp, _ := postRelay(t, srv, 3, testTxHash)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	first, err := d.RelayJob(context.Background(), testTxHash)
	require.NoError(t, err)

	resp, out := postRelay(t, srv, 3, testTxHash)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, testTxHash, out.TxHash)
	assert.Equal(t, "pending", out.Status)

	second, err := d.RelayJob(context.Background(), testTxHash)
	require.NoError(t, err)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt, "replay must not mutate the row")
}

func TestSubmitRelay_NormalizesHashCase(t *testing.T) {
	srv, d := newTestServer(t)

	upper := "0x" + strings.Repeat("AA", 32)
	resp, out := postRelay(t, srv, 3, upper)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, testTxHash, out.TxHash)

	_, err := d.RelayJob(context.Background(), testTxHash)
	require.NoError(t, err)
}

func TestSubmitRelay_RejectsMalformedHash(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, hash := range []string{
		"",
		"0x1234",
		strings.Repeat("aa", 32),
		"0x" + strings.Repeat("zz", 32),
		"0x" + strings.Repeat("aa", 33),
	} {
		resp, _ := postRelay(t, srv, 3, hash)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "hash %q", hash)
		require.ErrorContains(t, "txHash", fmt.Errorf("%s", errorBody(t, resp)))
	}
}

func TestSubmitRelay_RejectsUnrecognizedDomain(t *testing.T) {
	srv, _ := newTestServer(t)

	// Domain 0 is the local destination domain and never a valid source.
	for _, domain := range []uint32{0, 99} {
		resp, _ := postRelay(t, srv, domain, testTxHash)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "domain %d", domain)
	}
}

func TestGetRelayJob_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/relay/" + testTxHash)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Job not found", errorBody(t, resp))
}

func TestGetRelayJob_ProjectionHidesInternalFields(t *testing.T) {
	srv, d := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, d.SaveRelayJob(ctx, &types.RelayJob{TxHash: testTxHash, SourceDomain: 3}))
	require.NoError(t, d.SaveJobAttested(ctx, testTxHash, "0xdeadbeef", "0xbeef", "42"))

	// Case-insensitive lookup against the stored lowercase hash.
	resp, err := http.Get(srv.URL + "/relay/0x" + strings.Repeat("AA", 32))
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, testTxHash, body["txHash"])
	assert.Equal(t, "attested", body["status"])
	assert.NotNil(t, body["attestedAt"])
	for _, hidden := range []string{"message", "attestation", "eventNonce", "retryCount", "pollAttempts", "retry_count", "poll_attempts"} {
		_, leaked := body[hidden]
		assert.Equal(t, false, leaked, "field %q leaked into the projection", hidden)
	}
}

func TestGetHealth_ReportsStatusCounts(t *testing.T) {
	srv, d := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, d.SaveRelayJob(ctx, &types.RelayJob{TxHash: testTxHash, SourceDomain: 3}))
	second := "0x" + strings.Repeat("bb", 32)
	require.NoError(t, d.SaveRelayJob(ctx, &types.RelayJob{TxHash: second, SourceDomain: 3}))
	require.NoError(t, d.SaveJobAttested(ctx, second, "0xdead", "0xbeef", "7"))

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := &HealthResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	assert.Equal(t, "healthy", out.Status)
	assert.Equal(t, uint64(1), out.Jobs["pending"])
	assert.Equal(t, uint64(1), out.Jobs["attested"])
	assert.Equal(t, uint64(0), out.Jobs["failed"])
}
