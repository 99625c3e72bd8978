package ingestion

import (
	"net/http"
	"testing"
	"time"
)

func TestWithRequestTimeout_KeepsTransport(t *testing.T) {
	c, err := NewClient("http://store.local", nil, WithRequestTimeout(3*time.Second))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if c.client.Timeout != 3*time.Second {
		t.Errorf("expected 3s request timeout, got %v", c.client.Timeout)
	}
	tr, ok := c.client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected the tuned *http.Transport, got %T", c.client.Transport)
	}
	if tr.MaxIdleConnsPerHost != 10 || tr.IdleConnTimeout != 90*time.Second {
		t.Errorf("transport settings lost: %d idle per host, %v idle timeout",
			tr.MaxIdleConnsPerHost, tr.IdleConnTimeout)
	}
}

func TestWithRequestTimeout_DoesNotMutateCallerClient(t *testing.T) {
	hc := &http.Client{}
	c, err := NewClient("http://store.local", nil, WithHTTPClient(hc), WithRequestTimeout(time.Second))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if hc.Timeout != 0 {
		t.Errorf("caller's client was modified: timeout %v", hc.Timeout)
	}
	if c.client.Timeout != time.Second {
		t.Errorf("expected 1s request timeout, got %v", c.client.Timeout)
	}
}

func TestWithRequestTimeout_ZeroLeavesClientUnbounded(t *testing.T) {
	c, err := NewClient("http://store.local", nil, WithRequestTimeout(0))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.client.Timeout != 0 {
		t.Errorf("expected no timeout, got %v", c.client.Timeout)
	}
}
