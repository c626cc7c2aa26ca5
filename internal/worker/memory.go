// Package worker dispatches queued FileJobs across a fixed-size goroutine
// pool, running each through the optimization pipeline.
package worker

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// MemoryLimiter caps how much estimated memory concurrently-running jobs
// may reserve, so a pool of workers decoding large images at once can't
// run the process out of memory.
type MemoryLimiter struct {
	maxMemoryBytes uint64

	mu sync.Mutex

	currentUsage uint64

	enabled bool
}

// NewMemoryLimiter builds a MemoryLimiter capped at maxMemoryMB megabytes;
// 0 disables the limiter entirely.
func NewMemoryLimiter(maxMemoryMB int) *MemoryLimiter {
	if maxMemoryMB <= 0 {
		return &MemoryLimiter{enabled: false}
	}

	return &MemoryLimiter{
		maxMemoryBytes: uint64(maxMemoryMB) * 1024 * 1024,
		enabled:        true,
	}
}

// Acquire reserves enough estimated memory to process a file of fileSize,
// blocking until space frees up. The returned release func must be called
// once the job's decoded buffers are no longer needed.
func (ml *MemoryLimiter) Acquire(ctx context.Context, fileSize int64) (release func(), err error) {
	if !ml.enabled {
		return func() {}, nil
	}

	size := uint64(fileSize)
	// A decoded image plus its analysis buffers and candidate encodes run
	// to roughly 3x the source file's size.
	estimatedUsage := size * 3

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ml.mu.Lock()
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		currentAlloc := memStats.Alloc

		if ml.currentUsage+estimatedUsage <= ml.maxMemoryBytes &&
			currentAlloc+estimatedUsage <= ml.maxMemoryBytes {
			ml.currentUsage += estimatedUsage
			ml.mu.Unlock()

			return func() {
				ml.mu.Lock()
				ml.currentUsage -= estimatedUsage
				ml.mu.Unlock()
			}, nil
		}
		ml.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
			runtime.GC()
		}
	}
}

// IsEnabled reports whether a memory cap was configured.
func (ml *MemoryLimiter) IsEnabled() bool {
	return ml.enabled
}

// CurrentUsage returns the currently reserved estimated usage.
func (ml *MemoryLimiter) CurrentUsage() uint64 {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.currentUsage
}

// MaxMemory returns the configured cap in bytes.
func (ml *MemoryLimiter) MaxMemory() uint64 {
	return ml.maxMemoryBytes
}
