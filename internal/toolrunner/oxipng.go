package toolrunner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// OxiPNG runs oxipng for lossless PNG recompression (and as the lossless
// second pass after pngquant has already reduced the palette).
type OxiPNG struct {
	Path string
}

func (o *OxiPNG) Name() string { return "oxipng" }

func (o *OxiPNG) Encode(ctx context.Context, input []byte, opts EncodeOptions) (Result, error) {
	start := time.Now()

	level := "4"
	if opts.Lossless {
		level = "6" // max effort, used by every Lossless caller
	}

	args := []string{"-o", level, "--stdout", "-"}
	if opts.Lossless {
		args = append(args, "--strip", "safe")
	}

	cmd := exec.CommandContext(ctx, o.Path, args...)
	cmd.Stdin = bytes.NewReader(input)

	stdout := newLimitedBuffer(maxCapturedOutput)
	stderr := newLimitedBuffer(maxCapturedOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		return Result{Stderr: stderr.String(), Duration: duration},
			fmt.Errorf("oxipng failed: %w: %s", err, stderr.String())
	}

	return Result{Data: stdout.Bytes(), Stderr: stderr.String(), Duration: duration}, nil
}
