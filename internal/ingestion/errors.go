package ingestion

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound matches errors for checkpoints absent from the remote store.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrHTTP matches terminal HTTP status errors.
	ErrHTTP = errors.New("checkpoint http error")
	// ErrDeserialization matches checkpoints that were fetched but could not be decoded.
	ErrDeserialization = errors.New("checkpoint deserialization error")
	// ErrInvalidURL is returned by NewClient for an unusable remote store URL.
	ErrInvalidURL = errors.New("invalid remote store url")
)

// NotFoundError is returned when the remote store responds 404 for a checkpoint. It is
// never retried.
type NotFoundError struct {
	Checkpoint uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("checkpoint %d not found", e.Checkpoint)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// HTTPError is returned for a non-success status that is neither 404 nor transient.
type HTTPError struct {
	Checkpoint uint64
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf(
		"failed to fetch checkpoint %d: http %d %s",
		e.Checkpoint,
		e.StatusCode,
		http.StatusText(e.StatusCode),
	)
}

func (e *HTTPError) Is(target error) bool { return target == ErrHTTP }

// DeserializationError is returned when a fetched body fails to decode.
type DeserializationError struct {
	Checkpoint uint64
	Err        error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("failed to deserialize checkpoint %d: %v", e.Checkpoint, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

func (e *DeserializationError) Is(target error) bool { return target == ErrDeserialization }

// transientError drives the retry loop. It is always wrapped with retry.RetryableError and
// never returned to callers.
type transientError struct {
	checkpoint uint64
	statusCode int
	err        error
}

func (e *transientError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("transient error fetching checkpoint %d: %v", e.checkpoint, e.err)
	}
	return fmt.Sprintf("transient error fetching checkpoint %d: http %d", e.checkpoint, e.statusCode)
}

func (e *transientError) Unwrap() error { return e.err }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
