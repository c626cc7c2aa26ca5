// Package toolrunner invokes the external encoder binaries (cjpeg,
// pngquant, oxipng, cwebp) that do optiq's actual lossy/lossless encoding,
// grounded on converter/vips.go's exec.CommandContext + stderr-capture
// pattern, generalized into one Runner per tool instead of one vips call
// site handling every format.
package toolrunner

import (
	"context"
	"time"
)

// maxCapturedOutput bounds how much of a tool's stdout/stderr we buffer,
// so a runaway or chatty encoder can't exhaust memory.
const maxCapturedOutput = 8 * 1024 * 1024 // 8 MiB

// EncodeOptions carries the per-call knobs a Runner needs. Not every field
// applies to every tool; each Runner reads only what it understands.
type EncodeOptions struct {
	Quality      int  // 1-100
	Effort       int  // 4-6, WebP only
	NearLossless bool // WebP only
	Lossless     bool // PNG (oxipng) / WebP
	Width        int  // 0 = no resize; cjpeg has no resize flag, ignored there
	Height       int
}

// Result is what a successful Encode call produces.
type Result struct {
	// Data - encoded bytes.
	Data []byte
	// Skipped - true when the tool declined to produce smaller output
	// (pngquant exit 99) rather than failing outright.
	Skipped bool
	// Stderr - captured diagnostic output, kept for logging even on success.
	Stderr   string
	Duration time.Duration
}

// Runner is one external tool's encode contract.
type Runner interface {
	Name() string
	Encode(ctx context.Context, input []byte, opts EncodeOptions) (Result, error)
}

// limitedBuffer caps how many bytes Write will retain, discarding the rest
// while still reporting success to the writer (the process must not block
// or fail just because it's chatty).
type limitedBuffer struct {
	buf   []byte
	limit int
}

func newLimitedBuffer(limit int) *limitedBuffer {
	return &limitedBuffer{limit: limit}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if len(b.buf) < b.limit {
		remaining := b.limit - len(b.buf)
		if remaining > len(p) {
			remaining = len(p)
		}
		b.buf = append(b.buf, p[:remaining]...)
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return string(b.buf)
}

func (b *limitedBuffer) Bytes() []byte {
	return b.buf
}
