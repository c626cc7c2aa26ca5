package resize

import (
	"image"
	"image/color"
	"testing"
)

func TestToLanczosProducesExactTargetSize(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}

	dst, err := ToLanczos(src, Plan{Width: 40, Height: 20})
	if err != nil {
		t.Fatalf("ToLanczos() error = %v", err)
	}
	if b := dst.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Errorf("ToLanczos() size = %dx%d, want 40x20", b.Dx(), b.Dy())
	}
}

func TestToLanczosRejectsInvalidPlan(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	if _, err := ToLanczos(src, Plan{Width: 0, Height: 10}); err == nil {
		t.Errorf("ToLanczos() error = nil, want an error for a zero-width plan")
	}
}

func TestFitWidthScalesProportionally(t *testing.T) {
	plan, ok := FitWidth(1000, 500, 400, false)
	if !ok {
		t.Fatalf("FitWidth() ok = false, want true")
	}
	if plan.Width != 400 || plan.Height != 200 {
		t.Errorf("FitWidth() = %+v, want {400 200}", plan)
	}
}

func TestFitWidthRefusesUpscaleByDefault(t *testing.T) {
	_, ok := FitWidth(200, 100, 400, false)
	if ok {
		t.Errorf("FitWidth() ok = true, want false when target exceeds source and upscale is disallowed")
	}
}

func TestFitWidthAllowsUpscaleWhenRequested(t *testing.T) {
	plan, ok := FitWidth(200, 100, 400, true)
	if !ok {
		t.Fatalf("FitWidth() ok = false, want true with allowUpscale")
	}
	if plan.Width != 400 || plan.Height != 200 {
		t.Errorf("FitWidth() = %+v, want {400 200}", plan)
	}
}
