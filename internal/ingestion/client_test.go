package ingestion_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/sethvargo/go-retry"

	"github.com/vietddude/ingester/internal/core/domain"
	"github.com/vietddude/ingester/internal/indexing/metrics"
	"github.com/vietddude/ingester/internal/ingestion"
	"github.com/vietddude/ingester/internal/ingestion/blob"
)

var checkpointPath = regexp.MustCompile(`^/(\d+)\.chk$`)

// respondWith serves every checkpoint request with fn and counts requests.
func respondWith(t *testing.T, fn func(w http.ResponseWriter, r *http.Request, seq uint64)) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var requests atomic.Int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		m := checkpointPath.FindStringSubmatch(r.URL.Path)
		if m == nil {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.Error(w, "bad path", http.StatusBadRequest)
			return
		}
		seq, _ := strconv.ParseUint(m[1], 10, 64)
		requests.Add(1)
		fn(w, r, seq)
	}))
	t.Cleanup(server.Close)

	return server, &requests
}

func status(code int) func(http.ResponseWriter, *http.Request, uint64) {
	return func(w http.ResponseWriter, _ *http.Request, _ uint64) {
		w.WriteHeader(code)
	}
}

func fastBackoff() retry.Backoff {
	return retry.NewConstant(time.Millisecond)
}

func testClient(t *testing.T, uri string) (*ingestion.Client, *metrics.IngestionMetrics) {
	t.Helper()
	m := metrics.NewForTesting()
	c, err := ingestion.NewClient(uri, m, ingestion.WithBackoff(fastBackoff))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c, m
}

func latencyCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var out dto.Metric
	if err := h.Write(&out); err != nil {
		t.Fatalf("failed to read histogram: %v", err)
	}
	return out.GetHistogram().GetSampleCount()
}

func TestCheckpointURL(t *testing.T) {
	tests := []struct {
		base string
		seq  uint64
		want string
	}{
		{"http://store.example", 0, "http://store.example/0.chk"},
		{"http://store.example/", 42, "http://store.example/42.chk"},
		{"https://store.example/checkpoints", 42, "https://store.example/checkpoints/42.chk"},
		{"https://store.example/checkpoints/", 7, "https://store.example/checkpoints/7.chk"},
		{"https://store.example/a?token=x#frag", 1, "https://store.example/a/1.chk"},
		{"http://store.example", math.MaxUint64, "http://store.example/18446744073709551615.chk"},
	}

	for _, tt := range tests {
		c, err := ingestion.NewClient(tt.base, nil)
		if err != nil {
			t.Fatalf("NewClient(%q) failed: %v", tt.base, err)
		}
		if got := c.CheckpointURL(tt.seq); got != tt.want {
			t.Errorf("CheckpointURL(%q, %d) = %q, want %q", tt.base, tt.seq, got, tt.want)
		}
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "ftp://store.example", "http://", "://missing-scheme"} {
		if _, err := ingestion.NewClient(raw, nil); !errors.Is(err, ingestion.ErrInvalidURL) {
			t.Errorf("NewClient(%q): expected ErrInvalidURL, got %v", raw, err)
		}
	}
}

func TestFetch_NotFound(t *testing.T) {
	server, requests := respondWith(t, status(http.StatusNotFound))
	client, m := testClient(t, server.URL)

	_, err := client.Fetch(context.Background(), 42)

	var nf *ingestion.NotFoundError
	if !errors.As(err, &nf) || nf.Checkpoint != 42 {
		t.Fatalf("expected NotFound(42), got %v", err)
	}
	if !ingestion.IsNotFound(err) {
		t.Error("IsNotFound should match")
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("expected 1 request, got %d", got)
	}
	if got := testutil.ToFloat64(m.TotalIngestedTransientRetries); got != 0 {
		t.Errorf("expected no transient retries, got %v", got)
	}
}

func TestFetch_ClientError(t *testing.T) {
	server, requests := respondWith(t, status(http.StatusTeapot))
	client, _ := testClient(t, server.URL)

	_, err := client.Fetch(context.Background(), 42)

	var httpErr *ingestion.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Checkpoint != 42 || httpErr.StatusCode != http.StatusTeapot {
		t.Errorf("expected HttpError(42, 418), got %+v", httpErr)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("expected 1 request, got %d", got)
	}
}

func TestFetch_TransientServerError(t *testing.T) {
	var mu sync.Mutex
	times := 0
	server, requests := respondWith(t, func(w http.ResponseWriter, _ *http.Request, _ uint64) {
		mu.Lock()
		times++
		n := times
		mu.Unlock()

		switch n {
		case 1:
			w.WriteHeader(http.StatusInternalServerError)
		case 2:
			w.WriteHeader(http.StatusRequestTimeout)
		case 3:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	})
	client, m := testClient(t, server.URL)

	_, err := client.Fetch(context.Background(), 42)

	var httpErr *ingestion.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusTeapot || httpErr.Checkpoint != 42 {
		t.Fatalf("expected HttpError(42, 418), got %v", err)
	}
	if got := requests.Load(); got != 4 {
		t.Errorf("expected 4 requests, got %d", got)
	}
	if got := testutil.ToFloat64(m.TotalIngestedTransientRetries); got != 3 {
		t.Errorf("expected 3 transient retries, got %v", got)
	}
	if got := testutil.ToFloat64(m.TotalIngestedCheckpoints); got != 0 {
		t.Errorf("expected no ingested checkpoints, got %v", got)
	}
}

func TestFetch_DeserializationError(t *testing.T) {
	server, requests := respondWith(t, func(w http.ResponseWriter, _ *http.Request, _ uint64) {
		_, _ = w.Write([]byte{0x7f, 0x00, 0x01})
	})
	client, m := testClient(t, server.URL)

	_, err := client.Fetch(context.Background(), 42)

	var de *ingestion.DeserializationError
	if !errors.As(err, &de) || de.Checkpoint != 42 {
		t.Fatalf("expected DeserializationError(42), got %v", err)
	}
	if !errors.Is(err, blob.ErrUnsupportedEncoding) {
		t.Errorf("expected decoder error to be wrapped, got %v", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("deserialization errors must not be retried, got %d requests", got)
	}
	if got := testutil.ToFloat64(m.TotalIngestedCheckpoints); got != 0 {
		t.Errorf("expected no ingested checkpoints, got %v", got)
	}
	if got := latencyCount(t, m.IngestedCheckpointLatency); got != 0 {
		t.Errorf("expected no latency observation, got %d", got)
	}
}

func TestFetch_Success(t *testing.T) {
	checkpoint := &domain.Checkpoint{
		SequenceNumber: 42,
		Digest:         "digest-42",
		Transactions: []domain.Transaction{
			{
				Digest:        "a",
				Events:        &domain.TransactionEvents{Data: []domain.Event{{Type: "x"}, {Type: "y"}}},
				InputObjects:  []domain.ObjectRef{{ObjectID: "0x1"}, {ObjectID: "0x2"}},
				OutputObjects: []domain.ObjectRef{{ObjectID: "0x1"}, {ObjectID: "0x3"}, {ObjectID: "0x4"}},
			},
			{
				Digest:        "b",
				InputObjects:  []domain.ObjectRef{{ObjectID: "0x5"}, {ObjectID: "0x6"}},
				OutputObjects: []domain.ObjectRef{{ObjectID: "0x7"}, {ObjectID: "0x8"}},
			},
			{
				Digest: "c",
				Events: &domain.TransactionEvents{Data: []domain.Event{{Type: "z"}}},
			},
		},
	}
	body := blob.Encode(checkpoint)

	server, requests := respondWith(t, func(w http.ResponseWriter, _ *http.Request, seq uint64) {
		if seq != 42 {
			t.Errorf("expected checkpoint 42, got %d", seq)
		}
		_, _ = w.Write(body)
	})
	client, m := testClient(t, server.URL)

	got, err := client.Fetch(context.Background(), 42)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.SequenceNumber != 42 || len(got.Transactions) != 3 {
		t.Errorf("unexpected checkpoint %+v", got)
	}
	if requests.Load() != 1 {
		t.Errorf("expected 1 request, got %d", requests.Load())
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"checkpoints", testutil.ToFloat64(m.TotalIngestedCheckpoints), 1},
		{"bytes", testutil.ToFloat64(m.TotalIngestedBytes), float64(len(body))},
		{"transactions", testutil.ToFloat64(m.TotalIngestedTransactions), 3},
		{"events", testutil.ToFloat64(m.TotalIngestedEvents), 3},
		{"inputs", testutil.ToFloat64(m.TotalIngestedInputs), 4},
		{"outputs", testutil.ToFloat64(m.TotalIngestedOutputs), 5},
		{"transient retries", testutil.ToFloat64(m.TotalIngestedTransientRetries), 0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if n := latencyCount(t, m.IngestedCheckpointLatency); n != 1 {
		t.Errorf("expected 1 latency observation, got %d", n)
	}
}

func TestFetch_TruncatedBodyIsRetried(t *testing.T) {
	body := blob.Encode(&domain.Checkpoint{SequenceNumber: 9})
	var calls atomic.Int64

	server, _ := respondWith(t, func(w http.ResponseWriter, _ *http.Request, _ uint64) {
		if calls.Add(1) == 1 {
			// Promise more than we send so the client sees an unexpected EOF.
			w.Header().Set("Content-Length", "1000")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}
		_, _ = w.Write(body)
	})
	client, m := testClient(t, server.URL)

	got, err := client.Fetch(context.Background(), 9)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.SequenceNumber != 9 {
		t.Errorf("expected checkpoint 9, got %d", got.SequenceNumber)
	}
	if got := testutil.ToFloat64(m.TotalIngestedTransientRetries); got != 1 {
		t.Errorf("expected 1 transient retry, got %v", got)
	}
	if got := testutil.ToFloat64(m.TotalIngestedCheckpoints); got != 1 {
		t.Errorf("expected 1 ingested checkpoint, got %v", got)
	}
}

func TestFetch_ConnectionDropIsRetried(t *testing.T) {
	body := blob.Encode(&domain.Checkpoint{SequenceNumber: 5})
	var calls atomic.Int64

	server, _ := respondWith(t, func(w http.ResponseWriter, _ *http.Request, _ uint64) {
		if calls.Add(1) == 1 {
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("response writer does not support hijacking")
				return
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Errorf("hijack failed: %v", err)
				return
			}
			_ = conn.Close()
			return
		}
		_, _ = w.Write(body)
	})
	client, m := testClient(t, server.URL)

	got, err := client.Fetch(context.Background(), 5)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.SequenceNumber != 5 {
		t.Errorf("expected checkpoint 5, got %d", got.SequenceNumber)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", calls.Load())
	}
	if got := testutil.ToFloat64(m.TotalIngestedTransientRetries); got != 1 {
		t.Errorf("expected 1 transient retry, got %v", got)
	}
	if got := testutil.ToFloat64(m.TotalIngestedCheckpoints); got != 1 {
		t.Errorf("expected 1 ingested checkpoint, got %v", got)
	}
}

func TestFetch_UnreachableStoreRetriesUntilDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	client, m := testClient(t, "http://"+addr)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.Fetch(ctx, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if got := testutil.ToFloat64(m.TotalIngestedTransientRetries); got < 1 {
		t.Errorf("expected refused connections to count as transient retries, got %v", got)
	}
	if got := testutil.ToFloat64(m.TotalIngestedCheckpoints); got != 0 {
		t.Errorf("expected no ingested checkpoints, got %v", got)
	}
}

func TestFetch_RequestTimeoutIsRetried(t *testing.T) {
	body := blob.Encode(&domain.Checkpoint{SequenceNumber: 3})
	var calls atomic.Int64

	server, _ := respondWith(t, func(w http.ResponseWriter, r *http.Request, _ uint64) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		_, _ = w.Write(body)
	})

	m := metrics.NewForTesting()
	client, err := ingestion.NewClient(server.URL, m,
		ingestion.WithBackoff(fastBackoff),
		ingestion.WithRequestTimeout(20*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	got, err := client.Fetch(context.Background(), 3)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got.SequenceNumber != 3 {
		t.Errorf("expected checkpoint 3, got %d", got.SequenceNumber)
	}
	if got := testutil.ToFloat64(m.TotalIngestedTransientRetries); got != 1 {
		t.Errorf("expected the timed out attempt to be retried once, got %v", got)
	}
}

func TestFetch_RetriesTransientUntilCancelled(t *testing.T) {
	server, requests := respondWith(t, status(http.StatusServiceUnavailable))
	client, m := testClient(t, server.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Fetch(ctx, 1)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if requests.Load() < 2 {
		t.Errorf("expected repeated attempts, got %d", requests.Load())
	}
	if got := testutil.ToFloat64(m.TotalIngestedCheckpoints); got != 0 {
		t.Errorf("cancelled fetch must not count as ingested, got %v", got)
	}
	if got := latencyCount(t, m.IngestedCheckpointLatency); got != 0 {
		t.Errorf("cancelled fetch must not record latency, got %d", got)
	}
}

func TestFetch_Concurrent(t *testing.T) {
	server, _ := respondWith(t, func(w http.ResponseWriter, _ *http.Request, seq uint64) {
		_, _ = w.Write(blob.Encode(&domain.Checkpoint{
			SequenceNumber: seq,
			Transactions:   []domain.Transaction{{Digest: fmt.Sprint(seq)}},
		}))
	})
	client, m := testClient(t, server.URL)

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(seq uint64) {
			defer wg.Done()
			cp, err := client.Fetch(context.Background(), seq)
			if err != nil {
				errs <- err
				return
			}
			if cp.SequenceNumber != seq {
				errs <- fmt.Errorf("expected checkpoint %d, got %d", seq, cp.SequenceNumber)
			}
		}(uint64(i % 8))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if got := testutil.ToFloat64(m.TotalIngestedCheckpoints); got != n {
		t.Errorf("expected %d ingested checkpoints, got %v", n, got)
	}
	if got := testutil.ToFloat64(m.TotalIngestedTransactions); got != n {
		t.Errorf("expected %d ingested transactions, got %v", n, got)
	}
}
