// Package progress renders a byte/file-count progress bar with ETA for a
// run, backed by github.com/schollz/progressbar/v3 the way the teacher
// wires it for its own conversion runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Bar wraps a progressbar.ProgressBar with the processed/skipped/failed
// counters a run summary needs.
type Bar struct {
	bar *progressbar.ProgressBar

	mu sync.Mutex

	disabled bool

	total int64

	processed int64

	skipped int64

	failed int64

	startTime time.Time

	writer io.Writer
}

// Options configures a new Bar.
type Options struct {
	// Total - item count the bar expects to reach.
	Total int64

	// Description - label shown alongside the bar.
	Description string

	// Disabled - suppress the bar entirely (useful for piped/CI output).
	Disabled bool

	// Writer - output destination, defaults to os.Stderr.
	Writer io.Writer
}

// New создаёт новый прогресс-бар.
func New(opts Options) *Bar {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	b := &Bar{
		disabled:  opts.Disabled,
		total:     opts.Total,
		startTime: time.Now(),
		writer:    writer,
	}

	if !opts.Disabled && opts.Total > 0 {
		description := opts.Description
		if description == "" {
			description = "Processing"
		}

		b.bar = progressbar.NewOptions64(
			opts.Total,
			progressbar.OptionSetWriter(writer),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowBytes(false),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("file"),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]█[reset]",
				SaucerHead:    "[green]▓[reset]",
				SaucerPadding: "░",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(writer)
			}),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	return b
}

// Increment bumps the processed counter by one.
func (b *Bar) Increment() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.processed++

	if b.bar != nil {
		_ = b.bar.Add(1)
	}
}

// IncrementSkipped bumps the skipped counter by one.
func (b *Bar) IncrementSkipped() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.skipped++

	if b.bar != nil {
		_ = b.bar.Add(1)
	}
}

// IncrementFailed bumps the failed counter by one.
func (b *Bar) IncrementFailed() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failed++

	if b.bar != nil {
		_ = b.bar.Add(1)
	}
}

// SetTotal updates the item count once the exact total becomes known
// (e.g. after a scan finishes counting files).
func (b *Bar) SetTotal(total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total = total

	if b.bar != nil {
		b.bar.ChangeMax64(total)
	}
}

// Finish completes the bar's rendering.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

// Clear hides the bar so a message can be printed above it.
func (b *Bar) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		_ = b.bar.Clear()
	}
}

// Stats returns the current processed/skipped/failed counters.
func (b *Bar) Stats() (processed, skipped, failed int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.processed, b.skipped, b.failed
}

// Duration returns the elapsed time since the bar was created.
func (b *Bar) Duration() time.Duration {
	return time.Since(b.startTime)
}

// IsDisabled reports whether the bar was constructed with Disabled: true.
func (b *Bar) IsDisabled() bool {
	return b.disabled
}

// WriteMessage prints a message, momentarily hiding the bar so the two
// don't interleave on the same terminal line.
func (b *Bar) WriteMessage(format string, args ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		_ = b.bar.Clear()
	}

	fmt.Fprintf(b.writer, format, args...)

	if b.bar != nil {
		_ = b.bar.RenderBlank()
	}
}
