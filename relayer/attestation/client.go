package attestation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const messagesPathTemplate = "/v2/messages/%d"

// Authority response markers. A message is only usable once its status is
// complete and the attestation field carries real signature bytes.
const (
	statusComplete     = "complete"
	attestationPending = "PENDING"
)

var (
	// ErrMalformedHostname is returned when a host string cannot be parsed
	// into a base URL.
	ErrMalformedHostname = errors.New("hostname must include port, separated by one colon, like example.com:443")
	// ErrNotReady is returned when the authority has not yet indexed the
	// source transaction (HTTP 404).
	ErrNotReady = errors.New("attestation not ready")
	// ErrRateLimited is returned when the authority throttles the caller
	// (HTTP 429). The poller backs off globally on this error.
	ErrRateLimited = errors.New("rate limited by attestation authority")
)

// Message is a single attested burn message returned by the authority.
type Message struct {
	Message     string `json:"message"`
	Attestation string `json:"attestation"`
	EventNonce  string `json:"eventNonce"`
	Status      string `json:"status"`
}

// Complete reports whether the attestation is ready for submission.
func (m *Message) Complete() bool {
	return m.Status == statusComplete && m.Attestation != attestationPending
}

// MessagesResponse is the authority's response envelope.
type MessagesResponse struct {
	Messages []Message `json:"messages"`
}

// ClientOpt is a functional option for the Client type.
type ClientOpt func(*Client)

// WithTimeout sets the .Timeout attribute of the wrapped http.Client.
func WithTimeout(timeout time.Duration) ClientOpt {
	return func(c *Client) {
		c.hc.Timeout = timeout
	}
}

// WithRoundTripper replaces the underlying http client's transport.
func WithRoundTripper(t http.RoundTripper) ClientOpt {
	return func(c *Client) {
		c.hc.Transport = t
	}
}

// Client is a wrapper object around the HTTP client talking to the
// attestation authority. The API is unauthenticated and offers no batch,
// listing, or push endpoint, so every job is queried individually.
type Client struct {
	hc      *http.Client
	baseURL *url.URL
}

// NewClient constructs a new client with the provided options (ex WithTimeout).
// `host` is the base host + port used to construct request urls. This value
// can be a URL string, or NewClient will assume an http endpoint if just
// `host:port` is used.
func NewClient(host string, opts ...ClientOpt) (*Client, error) {
	u, err := urlForHost(host)
	if err != nil {
		return nil, err
	}
	c := &Client{
		hc:      &http.Client{},
		baseURL: u,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func urlForHost(h string) (*url.URL, error) {
	// try to parse as url (being permissive)
	u, err := url.Parse(h)
	if err == nil && u.Host != "" {
		return u, nil
	}
	// try to parse as host:port
	host, port, err := net.SplitHostPort(h)
	if err != nil {
		return nil, ErrMalformedHostname
	}
	return &url.URL{Host: net.JoinHostPort(host, port), Scheme: "http"}, nil
}

// BaseURL returns the base url of the client.
func (c *Client) BaseURL() *url.URL {
	return c.baseURL
}

// GetMessages queries the authority for the attested messages of one source
// transaction. Not-yet-indexed transactions surface as ErrNotReady and
// throttling as ErrRateLimited so the poller can tell them apart from real
// failures.
func (c *Client) GetMessages(ctx context.Context, sourceDomain uint32, txHash string) (*MessagesResponse, error) {
	u := c.baseURL.ResolveReference(&url.URL{
		Path:     fmt.Sprintf(messagesPathTemplate, sourceDomain),
		RawQuery: url.Values{"transactionHash": []string{txHash}}.Encode(),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	r, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "attestation authority request failed")
	}
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.WithError(err).Debug("Could not close response body")
		}
	}()
	switch {
	case r.StatusCode == http.StatusNotFound:
		return nil, ErrNotReady
	case r.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case r.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(r.Body, 1024))
		return nil, errors.Errorf("non-200 response from attestation authority: %d %s", r.StatusCode, string(body))
	}
	msgs := &MessagesResponse{}
	if err := json.NewDecoder(r.Body).Decode(msgs); err != nil {
		return nil, errors.Wrap(err, "could not decode attestation authority response")
	}
	return msgs, nil
}
