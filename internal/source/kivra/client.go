// Package kivra implements the receipt source against the Kivra GraphQL API.
package kivra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"kvitto/internal/core"
	"kvitto/internal/source"
)

const (
	DefaultBaseURL = "https://bff.kivra.com/graphql"

	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 30 * time.Second

	userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:129.0) Gecko/20100101 Firefox/129.0"

	maxResponseBytes = 16 << 20
)

// Options configures a Client. Token and ActorKey are required.
type Options struct {
	BaseURL  string
	Token    string
	ActorKey string
	// RequestsPerSecond throttles outgoing requests. Zero disables throttling.
	RequestsPerSecond float64
	Timeout           time.Duration
	// Transport overrides the pooled base transport.
	Transport http.RoundTripper
}

// Client talks to the remote GraphQL endpoint. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

var _ source.Source = (*Client)(nil)

// New builds a Client. Missing credentials fail with core.ErrAuth before any
// request is made.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("%w: missing API token", core.ErrAuth)
	}
	if strings.TrimSpace(opts.ActorKey) == "" {
		return nil, fmt.Errorf("%w: missing actor key", core.ErrAuth)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	base := opts.Transport
	if base == nil {
		base = newPooledTransport()
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "Bearer"})
	transport := &oauth2.Transport{
		Source: ts,
		Base:   &actorTransport{base: base, actorKey: opts.ActorKey},
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Client{
		baseURL: opts.BaseURL,
		http:    &http.Client{Transport: transport, Timeout: opts.Timeout},
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// actorTransport stamps the actor identity and fixed client headers.
type actorTransport struct {
	base     http.RoundTripper
	actorKey string
}

func (t *actorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("x-actor-key", t.actorKey)
	r.Header.Set("x-actor-type", "user")
	r.Header.Set("Accept", "application/json")
	r.Header.Set("User-Agent", userAgent)
	return t.base.RoundTrip(r)
}

func newPooledTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse[T any] struct {
	Data   *T         `json:"data"`
	Errors []gqlError `json:"errors"`
}

// post executes one GraphQL operation and decodes its data member.
func post[T any](ctx context.Context, c *Client, op, query string, vars map[string]any) (T, error) {
	var zero T

	if err := c.limiter.Wait(ctx); err != nil {
		return zero, fmt.Errorf("%w: %s: %v", core.ErrTransport, op, err)
	}

	body, err := json.Marshal(gqlRequest{OperationName: op, Query: query, Variables: vars})
	if err != nil {
		return zero, fmt.Errorf("%w: encode %s: %v", core.ErrProtocol, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return zero, fmt.Errorf("%w: build %s request: %v", core.ErrTransport, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%w: %s: %v", core.ErrTransport, op, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return zero, fmt.Errorf("%w: read %s response: %v", core.ErrTransport, op, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return zero, fmt.Errorf("%w: %s: status %d", core.ErrAuth, op, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return zero, fmt.Errorf("%w: %s: status %d", core.ErrTransport, op, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return zero, fmt.Errorf("%w: %s: unexpected status %d", core.ErrProtocol, op, resp.StatusCode)
	}

	var out gqlResponse[T]
	if err := json.Unmarshal(payload, &out); err != nil {
		return zero, fmt.Errorf("%w: decode %s: %v", core.ErrProtocol, op, err)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, len(out.Errors))
		for i, e := range out.Errors {
			msgs[i] = e.Message
		}
		return zero, fmt.Errorf("%w: %s: %s", core.ErrProtocol, op, strings.Join(msgs, "; "))
	}
	if out.Data == nil {
		return zero, fmt.Errorf("%w: %s: missing response data", core.ErrProtocol, op)
	}
	return *out.Data, nil
}

// IsRetryable reports whether err is worth retrying by a caller with its own
// retry policy. The client itself never retries.
func IsRetryable(err error) bool {
	return errors.Is(err, core.ErrTransport)
}
