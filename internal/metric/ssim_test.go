package metric

import "testing"

func flatLum(w, h int, v float64) []float64 {
	lum := make([]float64, w*h)
	for i := range lum {
		lum[i] = v
	}
	return lum
}

func TestMSSIMIdenticalImagesIsOne(t *testing.T) {
	lum := flatLum(64, 64, 128)
	got := MSSIM(lum, lum, 64, 64)
	if got < 0.999 {
		t.Errorf("MSSIM(identical) = %v, want ~1.0", got)
	}
}

func TestMSSIMDifferentImagesIsLower(t *testing.T) {
	a := flatLum(64, 64, 50)
	b := flatLum(64, 64, 200)
	got := MSSIM(a, b, 64, 64)
	if got > 0.9 {
		t.Errorf("MSSIM(very different) = %v, want well below 1.0", got)
	}
}

func TestEdgeSSIMIdenticalImagesIsOne(t *testing.T) {
	lum := flatLum(32, 32, 90)
	got := EdgeSSIM(lum, lum, 32, 32)
	if got < 0.999 {
		t.Errorf("EdgeSSIM(identical) = %v, want ~1.0", got)
	}
}

func TestBandingRiskTooSmallIsZero(t *testing.T) {
	lum := flatLum(16, 16, 100)
	if got := BandingRisk(lum, 16, 16, 1); got != 0 {
		t.Errorf("BandingRisk() on a sub-block-size image = %v, want 0", got)
	}
}

func TestBandingRiskDeterministic(t *testing.T) {
	lum := make([]float64, 64*64)
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			lum[y*64+x] = float64(x) * 2.0 // smooth horizontal gradient
		}
	}

	a := BandingRisk(lum, 64, 64, 42)
	b := BandingRisk(lum, 64, 64, 42)
	if a != b {
		t.Errorf("BandingRisk() not deterministic for a fixed seed: %v vs %v", a, b)
	}

	c := BandingRisk(lum, 64, 64, 7)
	_ = c // different seed may or may not differ in value; just must not panic
}

func TestBandingRiskFlatImageIsLow(t *testing.T) {
	// A perfectly flat image has zero gradient steps everywhere, which is
	// below the noise floor, not a quantized gradient, so risk is low.
	lum := flatLum(64, 64, 100)
	got := BandingRisk(lum, 64, 64, 1)
	if got > 0.1 {
		t.Errorf("BandingRisk(flat) = %v, want near 0 (no gradient at all)", got)
	}
}

func TestMeasureReturnsAllFields(t *testing.T) {
	lum := flatLum(64, 64, 128)
	res := Measure(lum, lum, 64, 64, 1)

	if res.MSSIM < 0.999 {
		t.Errorf("Measure().MSSIM = %v, want ~1.0 for identical input", res.MSSIM)
	}
	if res.EdgeSSIM < 0.999 {
		t.Errorf("Measure().EdgeSSIM = %v, want ~1.0 for identical input", res.EdgeSSIM)
	}
}
