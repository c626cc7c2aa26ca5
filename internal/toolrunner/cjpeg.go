package toolrunner

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// CJPEG runs MozJPEG's cjpeg over pre-decoded PPM bytes. It is the caller's
// job (internal/imageio) to hand Encode already-decoded PPM, not an
// arbitrary source image — cjpeg itself only reads PPM/BMP/Targa.
type CJPEG struct {
	// Path - absolute path to the cjpeg binary, from toolfinder.
	Path string
}

func (c *CJPEG) Name() string { return "cjpeg" }

func (c *CJPEG) Encode(ctx context.Context, input []byte, opts EncodeOptions) (Result, error) {
	start := time.Now()

	quality := opts.Quality
	if quality <= 0 {
		quality = 82
	}

	args := []string{
		"-quality", strconv.Itoa(quality),
		"-optimize",
		"-progressive",
	}

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
			fmt.Errorf("cjpeg failed: %w: %s", err, stderr.String())
	}

	return Result{Data: stdout.Bytes(), Stderr: stderr.String(), Duration: duration}, nil
}
