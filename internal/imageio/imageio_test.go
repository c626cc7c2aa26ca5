package imageio

import (
	"image"
	"image/color"
	"testing"
)

func solidLuminance(w, h int, v float64) []float64 {
	lum := make([]float64, w*h)
	for i := range lum {
		lum[i] = v
	}
	return lum
}

func TestSobelMagnitudeFlatImageIsZero(t *testing.T) {
	lum := solidLuminance(10, 10, 128)
	mag := SobelMagnitude(lum, 10, 10)

	for i, m := range mag {
		if m != 0 {
			t.Fatalf("SobelMagnitude()[%d] = %v, want 0 for a flat image", i, m)
		}
	}
}

func TestEdgeDensityFlatImageIsZero(t *testing.T) {
	lum := solidLuminance(16, 16, 64)
	if got := EdgeDensity(lum, 16, 16, 1.0); got != 0 {
		t.Errorf("EdgeDensity() = %v, want 0", got)
	}
}

func TestFlatRegionRatioFlatImageIsOne(t *testing.T) {
	lum := solidLuminance(16, 16, 64)
	if got := FlatRegionRatio(lum, 16, 16); got != 1.0 {
		t.Errorf("FlatRegionRatio() = %v, want 1.0", got)
	}
}

func TestTextureLevelFlatImageIsZero(t *testing.T) {
	lum := solidLuminance(16, 16, 200)
	if got := TextureLevel(lum, 16, 16); got != 0 {
		t.Errorf("TextureLevel() = %v, want 0", got)
	}
}

func TestIsPhotoFlatImageIsNotPhoto(t *testing.T) {
	lum := solidLuminance(32, 32, 200)
	if IsPhoto(lum, 32, 32) {
		t.Error("IsPhoto() = true for a flat solid-color image, want false")
	}
}

func TestIsGrayscale(t *testing.T) {
	gray := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			gray.Set(x, y, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
		}
	}
	if !IsGrayscale(gray) {
		t.Error("IsGrayscale() = false for a uniformly gray image, want true")
	}

	colorful := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			colorful.Set(x, y, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
		}
	}
	if IsGrayscale(colorful) {
		t.Error("IsGrayscale() = true for a red image, want false")
	}
}

func TestLuminanceMatchesBT601(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 255})

	lum := Luminance(img)
	want := 0.299 * 255
	if diff := lum[0] - want; diff > 0.01 || diff < -0.01 {
		t.Errorf("Luminance()[0] = %v, want ~%v", lum[0], want)
	}
}

func TestEncodeAsPPMHeader(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 3))
	ppm := EncodeAsPPM(img)

	want := "P6\n2 3\n255\n"
	if string(ppm[:len(want)]) != want {
		t.Errorf("EncodeAsPPM() header = %q, want %q", ppm[:len(want)], want)
	}
	if len(ppm) != len(want)+2*3*3 {
		t.Errorf("EncodeAsPPM() length = %d, want %d", len(ppm), len(want)+2*3*3)
	}
}

func TestDownscaleForAnalysisNoopWhenSmall(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	out := DownscaleForAnalysis(img, 1024)
	if out.Bounds().Dx() != 10 || out.Bounds().Dy() != 10 {
		t.Errorf("DownscaleForAnalysis() changed size of a small image: %v", out.Bounds())
	}
}

func TestDownscaleForAnalysisShrinksLargeImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2048, 1024))
	out := DownscaleForAnalysis(img, 1024)
	if out.Bounds().Dx() != 1024 || out.Bounds().Dy() != 512 {
		t.Errorf("DownscaleForAnalysis() = %v, want 1024x512", out.Bounds())
	}
}
