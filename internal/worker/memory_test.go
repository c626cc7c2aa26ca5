package worker

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterDisabledNeverBlocks(t *testing.T) {
	ml := NewMemoryLimiter(0)
	if ml.IsEnabled() {
		t.Fatal("a zero-MB limiter should be disabled")
	}

	release, err := ml.Acquire(context.Background(), 1<<40)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release()
}

func TestMemoryLimiterAcquireReleaseRoundTrips(t *testing.T) {
	ml := NewMemoryLimiter(1024)
	if !ml.IsEnabled() {
		t.Fatal("a positive-MB limiter should be enabled")
	}

	release, err := ml.Acquire(context.Background(), 1024)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if ml.CurrentUsage() == 0 {
		t.Error("CurrentUsage should reflect the reservation")
	}

	release()
	if ml.CurrentUsage() != 0 {
		t.Errorf("CurrentUsage after release = %d, want 0", ml.CurrentUsage())
	}
}

func TestMemoryLimiterAcquireRespectsContextCancellation(t *testing.T) {
	ml := NewMemoryLimiter(16) // 16MB cap; a 4MB file reserves 12MB of it
	release, err := ml.Acquire(context.Background(), 4<<20)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// The cap is already mostly reserved, so a second large Acquire must
	// block until ctx's deadline fires rather than succeed immediately.
	_, err = ml.Acquire(ctx, 4<<20)
	if err == nil {
		t.Fatal("expected Acquire to fail once its context deadline passed")
	}
}
