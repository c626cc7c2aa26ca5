package worker

import (
	"image"

	"github.com/surfgoffdude/optiq/internal/candidate"
	"github.com/surfgoffdude/optiq/internal/config"
	"github.com/surfgoffdude/optiq/internal/imageio"
	"testing"
)

func TestQualityLabel(t *testing.T) {
	if got := qualityLabel(82); got != "q82" {
		t.Errorf("qualityLabel(82) = %q, want q82", got)
	}
	if got := qualityLabel(0); got != "lossless" {
		t.Errorf("qualityLabel(0) = %q, want lossless", got)
	}
}

func TestResolveFormat(t *testing.T) {
	p := &Pipeline{Mode: config.ModeOptimize}
	cases := []struct {
		src  imageio.Format
		want candidate.Format
	}{
		{imageio.FormatJPEG, candidate.FormatJPEG},
		{imageio.FormatPNG, candidate.FormatPNG},
		{imageio.FormatWebP, candidate.FormatWebP},
		{imageio.FormatTIFF, candidate.FormatJPEG},
	}
	for _, c := range cases {
		if got := p.resolveFormat(c.src); got != c.want {
			t.Errorf("resolveFormat(%s) = %s, want %s", c.src, got, c.want)
		}
	}
}

func TestResolveFormatConvertWebPAlwaysTargetsWebP(t *testing.T) {
	p := &Pipeline{Mode: config.ModeConvertWebP}
	if got := p.resolveFormat(imageio.FormatPNG); got != candidate.FormatWebP {
		t.Errorf("resolveFormat under ModeConvertWebP = %s, want webp", got)
	}
}

func TestBuildStrategyMissingRunnerErrors(t *testing.T) {
	pp := &Pipeline{Settings: config.EffectiveSettings{}, Runners: nil}
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))

	if _, err := pp.buildStrategy(candidate.FormatJPEG, img); err == nil {
		t.Error("expected an error when no cjpeg runner is configured")
	}
	if _, err := pp.buildStrategy(candidate.FormatPNG, img); err == nil {
		t.Error("expected an error when no pngquant runner is configured")
	}
	if _, err := pp.buildStrategy(candidate.FormatWebP, img); err == nil {
		t.Error("expected an error when no cwebp runner is configured")
	}
}
