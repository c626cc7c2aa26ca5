package metaproc

import (
	"image"
	"image/color"
	"testing"

	"github.com/surfgoffdude/optiq/internal/config"
)

func TestResolvePresetKnownName(t *testing.T) {
	got := ResolvePreset("web-safe")
	if !got.Enabled || !got.StripEXIF || got.ICCMode != config.ICCConvertSRGB {
		t.Errorf("ResolvePreset(web-safe) = %+v, want enabled+StripEXIF+ICCConvertSRGB", got)
	}
}

func TestResolvePresetUnknownNameReturnsZeroValue(t *testing.T) {
	got := ResolvePreset("custom")
	if got != (config.MetadataCleanup{}) {
		t.Errorf("ResolvePreset(custom) = %+v, want the zero value", got)
	}
}

func TestProcessWithNoEXIFLeavesOrientationUnbaked(t *testing.T) {
	img := solidImage(4, 4, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	_, report, err := Process(img, []byte("not a jpeg"), config.MetadataCleanup{})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if report.OrientationBaked {
		t.Errorf("report.OrientationBaked = true for a source with no EXIF block")
	}
	if report.OrientationWas != 1 {
		t.Errorf("report.OrientationWas = %d, want 1 (default)", report.OrientationWas)
	}
}

func TestProcessEscalatesKeepCameraWithGPSClean(t *testing.T) {
	img := solidImage(2, 2, color.NRGBA{A: 255})
	flags := config.MetadataCleanup{KeepCamera: true, GPSClean: true}

	_, report, err := Process(img, nil, flags)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !report.EscalatedToStrip {
		t.Errorf("report.EscalatedToStrip = false, want true when KeepCamera and GPSClean both set")
	}
	if !report.EXIFStripped {
		t.Errorf("report.EXIFStripped = false after escalation, want true")
	}
}

func TestProcessICCModeReporting(t *testing.T) {
	img := solidImage(2, 2, color.NRGBA{A: 255})

	cases := []struct {
		mode config.ICCMode
		want string
	}{
		{config.ICCConvertSRGB, "converted"},
		{config.ICCKeep, "kept"},
		{config.ICCStrip, "stripped"},
		{"", "none"},
	}
	for _, c := range cases {
		_, report, err := Process(img, nil, config.MetadataCleanup{ICCMode: c.mode})
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if report.ICCAction != c.want {
			t.Errorf("ICCMode %q: ICCAction = %q, want %q", c.mode, report.ICCAction, c.want)
		}
	}
}

func TestStripGPSKeepRestRejectsNonJPEG(t *testing.T) {
	if _, err := StripGPSKeepRest([]byte("png-ish bytes")); err == nil {
		t.Errorf("StripGPSKeepRest() error = nil, want an error for a non-JPEG, EXIF-less input")
	}
}

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}
