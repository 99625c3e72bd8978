// Package ingestion fetches checkpoints from a remote checkpoint store.
//
// Checkpoint n lives at {base}/{n}.chk. Client.Fetch retries transient failures (408, 429,
// 5xx and transport errors) forever with a capped exponential backoff, returns 404 and other
// statuses immediately, and decodes the body with the blob decoder.
package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/ingester/internal/core/domain"
	"github.com/vietddude/ingester/internal/ingestion/blob"
)

// IngestStats describes one successfully ingested checkpoint.
type IngestStats struct {
	Bytes         int
	Transactions  uint64
	Events        uint64
	InputObjects  uint64
	OutputObjects uint64
	// Latency covers the whole fetch, including every retry.
	Latency time.Duration
}

// MetricsSink receives ingestion counters. Implementations must be safe for concurrent use
// and must not block or fail.
type MetricsSink interface {
	IncTransientRetries()
	ObserveIngested(stats IngestStats)
}

// DecodeFunc turns a fetched body into a checkpoint.
type DecodeFunc func(data []byte) (*domain.Checkpoint, error)

// Client fetches checkpoints over HTTP. It holds no per-call state and is safe for
// concurrent use.
type Client struct {
	url            *url.URL
	client         *http.Client
	requestTimeout time.Duration
	metrics MetricsSink
	backoff func() retry.Backoff
	decode  DecodeFunc
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithRequestTimeout bounds each attempt, not the whole fetch. The client's transport is
// kept.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// WithBackoff replaces the retry policy. The factory is called once per Fetch.
func WithBackoff(fn func() retry.Backoff) Option {
	return func(c *Client) {
		if fn != nil {
			c.backoff = fn
		}
	}
}

// WithDecoder replaces the blob decoder.
func WithDecoder(fn DecodeFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.decode = fn
		}
	}
}

// WithLogger sets the logger used for per-attempt debug output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a client for the remote store at baseURL.
func NewClient(baseURL string, metrics MetricsSink, opts ...Option) (*Client, error) {
	u, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	if metrics == nil {
		metrics = noopSink{}
	}

	c := &Client{
		url:     u,
		client:  defaultHTTPClient(),
		metrics: metrics,
		backoff: NewBackoff,
		decode:  blob.Decode,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.requestTimeout > 0 {
		hc := *c.client
		hc.Timeout = c.requestTimeout
		c.client = &hc
	}

	return c, nil
}

func defaultHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidURL, raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidURL, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w %q: missing host", ErrInvalidURL, raw)
	}

	// The base is treated as a directory so that relative checkpoint paths keep its path.
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
		if u.RawPath != "" {
			u.RawPath += "/"
		}
	}
	u.RawQuery = ""
	u.Fragment = ""

	return u, nil
}

// CheckpointURL returns the location of checkpoint n in the remote store.
func (c *Client) CheckpointURL(checkpoint uint64) string {
	ref, err := url.Parse(strconv.FormatUint(checkpoint, 10) + ".chk")
	if err != nil {
		// A decimal number followed by a fixed suffix is always a valid relative reference.
		panic(fmt.Sprintf("unexpected invalid checkpoint path for %d: %v", checkpoint, err))
	}
	return c.url.ResolveReference(ref).String()
}

// Fetch retrieves and decodes a checkpoint. Transient errors are retried with exponential
// backoff (each wait capped at MaxTransientRetryInterval) until ctx is done; 404s and other
// client errors, except timeouts and rate limiting, are returned immediately.
func (c *Client) Fetch(ctx context.Context, checkpoint uint64) (*domain.Checkpoint, error) {
	target := c.CheckpointURL(checkpoint)
	start := time.Now()

	var body []byte
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		b, err := c.fetchOnce(ctx, target, checkpoint)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	data, err := c.decode(body)
	if err != nil {
		return nil, &DeserializationError{Checkpoint: checkpoint, Err: err}
	}

	elapsed := time.Since(start)
	c.log.Debug("Fetched checkpoint",
		"checkpoint", checkpoint,
		"bytes", len(body),
		"elapsed_ms", float64(elapsed.Microseconds())/1000,
	)

	stats := data.Stats()
	c.metrics.ObserveIngested(IngestStats{
		Bytes:         len(body),
		Transactions:  stats.Transactions,
		Events:        stats.Events,
		InputObjects:  stats.InputObjects,
		OutputObjects: stats.OutputObjects,
		Latency:       elapsed,
	})

	return data, nil
}

// fetchOnce performs a single GET and classifies the result. Retryable failures are
// counted and wrapped with retry.RetryableError.
func (c *Client) fetchOnce(ctx context.Context, target string, checkpoint uint64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		panic(fmt.Sprintf("unexpected error building request for %s: %v", target, err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, c.transient(&transientError{checkpoint: checkpoint, err: err})
	}
	defer resp.Body.Close()

	code := resp.StatusCode
	switch classifyStatus(code) {
	case outcomeSuccess:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, c.transient(&transientError{checkpoint: checkpoint, statusCode: code, err: err})
		}
		return body, nil

	case outcomeNotFound:
		drain(resp.Body)
		c.log.Debug("Checkpoint not found", "checkpoint", checkpoint, "status", code)
		return nil, &NotFoundError{Checkpoint: checkpoint}

	case outcomeTransient:
		drain(resp.Body)
		return nil, c.transient(&transientError{checkpoint: checkpoint, statusCode: code})

	default:
		drain(resp.Body)
		c.log.Debug("Permanent error, giving up!", "checkpoint", checkpoint, "status", code)
		return nil, &HTTPError{Checkpoint: checkpoint, StatusCode: code}
	}
}

func (c *Client) transient(err *transientError) error {
	c.log.Debug("Transient error, retrying...",
		"checkpoint", err.checkpoint,
		"status", err.statusCode,
		"error", err.err,
	)
	c.metrics.IncTransientRetries()
	return retry.RetryableError(err)
}

// drain lets the transport reuse the connection.
func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 64<<10))
}

type noopSink struct{}

func (noopSink) IncTransientRetries()        {}
func (noopSink) ObserveIngested(IngestStats) {}
