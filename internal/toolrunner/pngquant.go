package toolrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// pngquantSkipExitCode is the documented exit status pngquant returns when
// it decides the requested quality would not shrink the file worth doing —
// a deliberate skip, not a failure.
const pngquantSkipExitCode = 99

// PNGQuant runs pngquant for lossy PNG palette quantization.
type PNGQuant struct {
	Path string
}

func (p *PNGQuant) Name() string { return "pngquant" }

func (p *PNGQuant) Encode(ctx context.Context, input []byte, opts EncodeOptions) (Result, error) {
	start := time.Now()

	quality := opts.Quality
	if quality <= 0 {
		quality = 80
	}
	// pngquant takes a min-max quality range; we pin both ends to the
	// target so the search in internal/candidate controls quality, not
	// pngquant's own heuristic. --skip-if-larger makes it exit 99 instead
	// of emitting a file bigger than the source, per spec.md §4.1; --strip
	// drops metadata the Metadata Processor has already decided to cut.
	args := []string{"--quality", pngquantQualityRange(quality), "--speed", "1", "--skip-if-larger", "--strip", "-"}

	cmd := exec.CommandContext(ctx, p.Path, args...)
	cmd.Stdin = bytes.NewReader(input)

	stdout := newLimitedBuffer(maxCapturedOutput)
	stderr := newLimitedBuffer(maxCapturedOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	duration := time.Since(start)

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == pngquantSkipExitCode {
		return Result{Skipped: true, Stderr: stderr.String(), Duration: duration}, nil
	}

	if err != nil {
		return Result{Stderr: stderr.String(), Duration: duration},
			fmt.Errorf("pngquant failed: %w: %s", err, stderr.String())
	}

	return Result{Data: stdout.Bytes(), Stderr: stderr.String(), Duration: duration}, nil
}

// pngquantQualityRange formats the min-max argument pngquant expects, kept
// as its own function so the format can be unit-tested.
func pngquantQualityRange(q int) string {
	return strconv.Itoa(q) + "-" + strconv.Itoa(q)
}
