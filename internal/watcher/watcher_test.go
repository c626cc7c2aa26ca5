package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/surfgoffdude/optiq/internal/ferr"
	"github.com/surfgoffdude/optiq/internal/job"
	"github.com/surfgoffdude/optiq/internal/scanner"
	"github.com/surfgoffdude/optiq/internal/storage"
)

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0644)
}

func openTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(filepath.Join(t.TempDir(), "state.sqlite"))
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWaitStableDetectsStableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	if err := writeFile(path, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	s := New(openTestStorage(t), nil)
	s.StabilityPollInterval = 10 * time.Millisecond
	s.StabilityReads = 2
	s.StabilityTimeout = time.Second

	size, _, ok := s.waitStable(context.Background(), path)
	if !ok {
		t.Fatal("expected waitStable to succeed for a static file")
	}
	if size != 5 {
		t.Errorf("size = %d, want 5", size)
	}
}

func TestWaitStableTimesOutOnMissingFile(t *testing.T) {
	s := New(openTestStorage(t), nil)
	s.StabilityPollInterval = 5 * time.Millisecond
	s.StabilityTimeout = 20 * time.Millisecond

	if _, _, ok := s.waitStable(context.Background(), filepath.Join(t.TempDir(), "missing.jpg")); ok {
		t.Error("expected waitStable to fail for a nonexistent file")
	}
}

func TestStabilizeAndDispatchSkipsAlreadyProcessed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	if err := writeFile(path, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	store := openTestStorage(t)
	info, err := osStat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.MarkProcessed(path, info.size, info.mtime, "deadbeef"); err != nil {
		t.Fatal(err)
	}

	called := false
	s := New(store, func(ctx context.Context, f scanner.File) job.Event {
		called = true
		return job.Event{Status: job.StatusSuccess}
	})
	s.StabilityPollInterval = 5 * time.Millisecond
	s.StabilityReads = 2
	s.StabilityTimeout = time.Second
	s.inFlight = make(map[string]bool)
	s.pending = make(map[string]time.Time)
	s.events = make(chan Event, 10)

	s.stabilizeAndDispatch(context.Background(), path)

	if called {
		t.Error("Dispatch should not be called for an already-processed file")
	}
	select {
	case ev := <-s.events:
		if ev.Status != job.StatusSkipped {
			t.Errorf("status = %s, want skipped", ev.Status)
		}
	default:
		t.Error("expected a skipped event")
	}
}

func TestStabilizeAndDispatchRetriesRetryableFailures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	if err := writeFile(path, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	store := openTestStorage(t)
	attempts := 0
	s := New(store, func(ctx context.Context, f scanner.File) job.Event {
		attempts++
		return job.Event{Status: job.StatusFailed, Result: job.Result{Err: ferr.New(ferr.EEncode, "boom", nil)}}
	})
	s.StabilityPollInterval = 5 * time.Millisecond
	s.StabilityReads = 2
	s.StabilityTimeout = time.Second
	s.MaxRetries = 2
	s.RetryBackoff = time.Millisecond
	s.inFlight = make(map[string]bool)
	s.pending = make(map[string]time.Time)
	s.events = make(chan Event, 10)

	s.stabilizeAndDispatch(context.Background(), path)

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (1 initial + 2 retries)", attempts)
	}
}

func TestStabilizeAndDispatchDoesNotRetryPermissionFailures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	if err := writeFile(path, []byte("hello")); err != nil {
		t.Fatal(err)
	}

	store := openTestStorage(t)
	attempts := 0
	s := New(store, func(ctx context.Context, f scanner.File) job.Event {
		attempts++
		return job.Event{Status: job.StatusFailed, Result: job.Result{Err: ferr.New(ferr.EPermission, "denied", nil)}}
	})
	s.StabilityPollInterval = 5 * time.Millisecond
	s.StabilityReads = 2
	s.StabilityTimeout = time.Second
	s.MaxRetries = 2
	s.RetryBackoff = time.Millisecond
	s.inFlight = make(map[string]bool)
	s.pending = make(map[string]time.Time)
	s.events = make(chan Event, 10)

	s.stabilizeAndDispatch(context.Background(), path)

	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (permission errors are not retryable)", attempts)
	}
}

type statInfo struct{ size, mtime int64 }

func osStat(path string) (statInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return statInfo{}, err
	}
	return statInfo{size: fi.Size(), mtime: fi.ModTime().Unix()}, nil
}
