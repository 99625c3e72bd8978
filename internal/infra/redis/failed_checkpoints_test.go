package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/ingester/internal/core/domain"
)

func TestKeys(t *testing.T) {
	if got := queueKey("main"); got != "failed_checkpoints:main" {
		t.Errorf("unexpected queue key %q", got)
	}
	if got := payloadKey("main", "abc"); got != "failed_checkpoint:main:abc" {
		t.Errorf("unexpected payload key %q", got)
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	if _, err := NewClient(Config{URL: "not-a-redis-url"}); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestFailedCheckpointRepo_Redis(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("Skipping redis test. Set TEST_REDIS_URL to run.")
	}

	client, err := NewClient(Config{URL: url})
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	pipeline := "test-" + uuid.NewString()
	repo := NewFailedCheckpointRepo(client)

	now := time.Now().UTC()
	late := &domain.FailedCheckpoint{ID: uuid.NewString(), Pipeline: pipeline, SequenceNumber: 20,
		Kind: domain.FailureKindHTTP, Attempts: 1, CreatedAt: now, LastAttempt: now}
	early := &domain.FailedCheckpoint{ID: uuid.NewString(), Pipeline: pipeline, SequenceNumber: 10,
		Kind: domain.FailureKindDeserialization, Attempts: 1, CreatedAt: now, LastAttempt: now}

	for _, fc := range []*domain.FailedCheckpoint{late, early} {
		if err := repo.Add(ctx, fc); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	late.Attempts = 3
	if err := repo.Add(ctx, late); err != nil {
		t.Fatalf("Add (update) failed: %v", err)
	}

	all, err := repo.GetAll(ctx, pipeline)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 2 || all[0].SequenceNumber != 10 || all[1].Attempts != 3 {
		t.Fatalf("unexpected failed checkpoints: %+v", all)
	}

	for _, fc := range all {
		if err := repo.MarkResolved(ctx, pipeline, fc.ID); err != nil {
			t.Fatalf("MarkResolved failed: %v", err)
		}
	}
	if n, err := repo.Count(ctx, pipeline); err != nil || n != 0 {
		t.Fatalf("expected empty queue, got %d, %v", n, err)
	}
}
