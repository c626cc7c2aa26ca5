package toolrunner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// CWebP runs cwebp, the primary WebP encoder — mirrors the teacher's
// "shell out to an external tool for encoding" pattern from converter/vips.go.
type CWebP struct {
	Path string
}

func (c *CWebP) Name() string { return "cwebp" }

func (c *CWebP) Encode(ctx context.Context, input []byte, opts EncodeOptions) (Result, error) {
	start := time.Now()

	effort := opts.Effort
	if effort == 0 {
		effort = 5
	}

	var args []string
	switch {
	case opts.Lossless:
		args = []string{"-lossless", "-z", strconv.Itoa(effort)}
	case opts.NearLossless:
		// near_lossless takes the searched quality as its level (0-100,
		// lower = more preprocessing); -q pins the lossless compression
		// pass itself to maximum, per spec.md §4.1.
		level := opts.Quality
		if level <= 0 {
			level = 60
		}
		args = []string{"-near_lossless", strconv.Itoa(level), "-q", "100", "-m", strconv.Itoa(effort)}
	default:
		quality := opts.Quality
		if quality <= 0 {
			quality = 78
		}
		args = []string{"-q", strconv.Itoa(quality), "-m", strconv.Itoa(effort)}
	}
	// The input is always a freshly re-encoded pixel buffer with no EXIF/XMP
	// of its own; -metadata none keeps cwebp from reintroducing any.
	args = append(args, "-metadata", "none", "-o", "-", "--", "-")

	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Stdin = bytes.NewReader(input)

	stdout := newLimitedBuffer(maxCapturedOutput)
	stderr := newLimitedBuffer(maxCapturedOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		return Result{Stderr: stderr.String(), Duration: duration},
			fmt.Errorf("cwebp failed: %w: %s", err, stderr.String())
	}

	return Result{Data: stdout.Bytes(), Stderr: stderr.String(), Duration: duration}, nil
}
