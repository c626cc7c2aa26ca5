// Package worker dispatches queued FileJobs across a fixed-size goroutine
// pool, running each through the optimization pipeline.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/surfgoffdude/optiq/internal/job"
	"github.com/surfgoffdude/optiq/internal/progress"
	"github.com/surfgoffdude/optiq/internal/scanner"
)

// Stats tallies one run's outcome across every file the pool saw.
type Stats struct {
	Processed int64
	Skipped   int64
	Failed    int64
	Total     int64

	InputBytes  int64
	OutputBytes int64
}

// SavedBytes returns how many bytes smaller the outputs are than the inputs.
func (s *Stats) SavedBytes() int64 {
	return s.InputBytes - s.OutputBytes
}

// SavedPercent returns SavedBytes as a percentage of InputBytes.
func (s *Stats) SavedPercent() float64 {
	if s.InputBytes == 0 {
		return 0
	}
	return float64(s.SavedBytes()) / float64(s.InputBytes) * 100
}

// FormatBytes renders a byte count in human-readable units.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// Pool runs a fixed number of worker goroutines, each pulling scanner.Files
// off a shared channel and driving them through a Pipeline.
type Pool struct {
	pipeline      *Pipeline
	workers       int
	verbose       bool
	progress      *progress.Bar
	memoryLimiter *MemoryLimiter
	cancelFlag    *job.CancelFlag

	stats Stats

	mu     sync.Mutex
	events []job.Event
}

// New constructs a Pool of n worker goroutines driving pipeline.
func New(pipeline *Pipeline, workers int, maxMemoryMB int, verbose bool) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		pipeline:      pipeline,
		workers:       workers,
		verbose:       verbose,
		memoryLimiter: NewMemoryLimiter(maxMemoryMB),
		cancelFlag:    &job.CancelFlag{},
	}
}

// SetProgressBar attaches a progress.Bar the pool updates per-file.
func (p *Pool) SetProgressBar(bar *progress.Bar) {
	p.progress = bar
}

// Cancel flips the pool's cooperative cancellation flag; in-flight jobs
// finish their current external process but discard results not yet
// written, per job.FileJob.ShouldAbandonResult.
func (p *Pool) Cancel() {
	p.cancelFlag.Set()
}

// Process runs every file from files through the pool's worker goroutines
// until the channel closes or ctx is cancelled, and returns the final Stats.
func (p *Pool) Process(ctx context.Context, files <-chan scanner.File, errs <-chan error) Stats {
	var wg sync.WaitGroup

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.worker(ctx, workerID, files)
		}(i)
	}

	wg.Wait()

	select {
	case err := <-errs:
		if err != nil {
			p.logError("scan", err)
		}
	default:
	}

	return p.GetStats()
}

func (p *Pool) worker(ctx context.Context, id int, files <-chan scanner.File) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-files:
			if !ok {
				return
			}
			p.processFile(ctx, f)
		}
	}
}

func (p *Pool) processFile(ctx context.Context, f scanner.File) {
	atomic.AddInt64(&p.stats.Total, 1)

	var release func()
	if p.memoryLimiter.IsEnabled() {
		r, err := p.memoryLimiter.Acquire(ctx, f.Size)
		if err != nil {
			p.logError(f.Path, fmt.Errorf("memory limiter: %w", err))
			atomic.AddInt64(&p.stats.Failed, 1)
			return
		}
		release = r
		defer release()
	}

	fj := p.pipeline.Run(ctx, f, p.cancelFlag)
	p.recordEvent(job.EventFor(fj))

	snap := fj.Copy()
	switch snap.Status {
	case job.StatusSuccess:
		atomic.AddInt64(&p.stats.Processed, 1)
		atomic.AddInt64(&p.stats.InputBytes, snap.Result.InputBytes)
		atomic.AddInt64(&p.stats.OutputBytes, snap.Result.OutputBytes)
		if p.progress != nil {
			p.progress.Increment()
		}
		if p.verbose {
			p.writeMessage("%s -> %s (q=%d, mssim=%.4f)\n", f.RelPath, snap.Result.OutputPath, snap.Result.Quality, snap.Result.MSSIM)
		}
	case job.StatusSkipped:
		atomic.AddInt64(&p.stats.Skipped, 1)
		if p.progress != nil {
			p.progress.IncrementSkipped()
		}
		if p.verbose {
			p.writeMessage("skipped: %s (%s)\n", f.RelPath, snap.Result.SkipReason)
		}
	case job.StatusCancelled:
		atomic.AddInt64(&p.stats.Skipped, 1)
		if p.progress != nil {
			p.progress.IncrementSkipped()
		}
	default: // StatusFailed
		atomic.AddInt64(&p.stats.Failed, 1)
		if p.progress != nil {
			p.progress.IncrementFailed()
		}
		p.logError(f.Path, snap.Result.Err)
	}
}

func (p *Pool) recordEvent(e job.Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

// Events returns every job.Event the pool has recorded so far, for a
// coordinator that wants to persist or stream a full per-file history.
func (p *Pool) Events() []job.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]job.Event, len(p.events))
	copy(out, p.events)
	return out
}

func (p *Pool) logError(path string, err error) {
	p.writeMessage("error: %s: %v\n", path, err)
}

func (p *Pool) writeMessage(format string, args ...interface{}) {
	if p.progress != nil && !p.progress.IsDisabled() {
		p.progress.WriteMessage(format, args...)
	} else {
		fmt.Printf(format, args...)
	}
}

// GetStats returns a consistent snapshot of the pool's running totals.
func (p *Pool) GetStats() Stats {
	return Stats{
		Processed:   atomic.LoadInt64(&p.stats.Processed),
		Skipped:     atomic.LoadInt64(&p.stats.Skipped),
		Failed:      atomic.LoadInt64(&p.stats.Failed),
		Total:       atomic.LoadInt64(&p.stats.Total),
		InputBytes:  atomic.LoadInt64(&p.stats.InputBytes),
		OutputBytes: atomic.LoadInt64(&p.stats.OutputBytes),
	}
}
