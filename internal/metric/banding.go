package metric

import "math/rand/v2"

const (
	bandingBlockSize   = 32
	bandingSampleCount = 10
	// bandingGradientFloor is the smallest per-step luminance change that
	// still counts as a smooth gradient rather than noise; steps smaller
	// than this across a block are exactly what 8-bit quantization bands.
	bandingGradientFloor = 0.5
	// bandingGradientCeiling bounds how large a step can be and still be
	// considered part of a single gradient rather than a hard edge.
	bandingGradientCeiling = 6.0
)

// BandingRisk samples bandingSampleCount random 32x32 blocks from lum
// (shaped w x h) and scores how much of the candidate output looks like a
// smooth gradient quantized into visible steps — the classic 8-bit banding
// artifact in skies and other soft gradients. The sampler is seeded, so the
// same image and seed always produce the same score (see DESIGN.md's
// banding-risk RNG seeding decision).
//
// There is no direct analogue for this in the retrieved pack; it follows
// the block-sampling-with-a-cap shape of shamspias-fennec's color
// quantization sampling, applied to gradient-step detection instead of
// color-histogram building.
func BandingRisk(lum []float64, w, h int, seed uint64) float64 {
	if w < bandingBlockSize || h < bandingBlockSize {
		return 0
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	var total float64
	samples := 0
	for i := 0; i < bandingSampleCount; i++ {
		x0 := rng.IntN(w - bandingBlockSize + 1)
		y0 := rng.IntN(h - bandingBlockSize + 1)
		total += blockBandingScore(lum, w, x0, y0)
		samples++
	}

	if samples == 0 {
		return 0
	}
	return total / float64(samples)
}

// blockBandingScore measures the fraction of horizontal and vertical steps
// within one block that fall into the "smooth gradient, but quantized"
// band: larger than noise, smaller than a real edge.
func blockBandingScore(lum []float64, w, x0, y0 int) float64 {
	var steps, quantizedSteps int

	for y := y0; y < y0+bandingBlockSize; y++ {
		for x := x0; x < x0+bandingBlockSize-1; x++ {
			step := abs64(lum[y*w+x+1] - lum[y*w+x])
			steps++
			if step >= bandingGradientFloor && step <= bandingGradientCeiling {
				quantizedSteps++
			}
		}
	}
	for x := x0; x < x0+bandingBlockSize; x++ {
		for y := y0; y < y0+bandingBlockSize-1; y++ {
			step := abs64(lum[(y+1)*w+x] - lum[y*w+x])
			steps++
			if step >= bandingGradientFloor && step <= bandingGradientCeiling {
				quantizedSteps++
			}
		}
	}

	if steps == 0 {
		return 0
	}
	return float64(quantizedSteps) / float64(steps)
}

func abs64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
