// Package metric computes the perceptual-quality measures the Candidate
// Builder uses to accept or reject a candidate encode: multi-scale SSIM,
// an edge-weighted SSIM variant, and a banding-risk heuristic. Grounded
// directly on shamspias-fennec/ssim.go's windowedSSIM/MSSSIM, generalized
// from a single before/after comparison into the three named measures
// spec.md §4.3 requires.
package metric

import (
	"math"
	"runtime"
	"sync"

	"github.com/surfgoffdude/optiq/internal/imageio"
)

// SSIM constants from the original Wang et al. paper, unchanged from the
// teacher pack's grounding.
const (
	ssimK1 = 0.01
	ssimK2 = 0.03
	ssimL  = 255.0
	ssimC1 = (ssimK1 * ssimL) * (ssimK1 * ssimL)
	ssimC2 = (ssimK2 * ssimL) * (ssimK2 * ssimL)
)

// Result is the full measurement set the Candidate Builder consults.
type Result struct {
	MSSIM       float64 // multi-scale structural similarity, the primary decision variable
	EdgeSSIM    float64 // SSIM computed over Sobel-filtered luminance, sensitive to ringing/blur
	BandingRisk float64 // 0..1, higher means more likely to show visible banding
}

// Measure compares two same-sized luminance arrays and returns the full
// Result set, seeding the banding-risk sampler deterministically from seed
// so the same pair of images always yields the same measurement (needed
// for reproducible tests and reproducible ladder/smart search behavior).
func Measure(lumA, lumB []float64, w, h int, seed uint64) Result {
	return Result{
		MSSIM:       MSSIM(lumA, lumB, w, h),
		EdgeSSIM:    EdgeSSIM(lumA, lumB, w, h),
		BandingRisk: BandingRisk(lumB, w, h, seed),
	}
}

// windowedSSIM computes SSIM using an 8x8 sliding window with Gaussian
// weighting, sharded across goroutines by row range. Unchanged in shape
// from shamspias-fennec/ssim.go's windowedSSIM.
func windowedSSIM(lumA, lumB []float64, w, h int) float64 {
	const windowSize = 8
	half := windowSize / 2

	if w < windowSize || h < windowSize {
		return pixelSSIM(lumA, lumB)
	}

	kernel := gaussianKernel(windowSize, 1.5)

	type ssimResult struct {
		sum   float64
		count int
	}

	procs := runtime.GOMAXPROCS(0)
	rows := h - windowSize + 1
	if procs > rows {
		procs = rows
	}
	if procs < 1 {
		procs = 1
	}

	results := make([]ssimResult, procs)
	rowsPerProc := (rows + procs - 1) / procs

	var wg sync.WaitGroup
	for p := 0; p < procs; p++ {
		wg.Add(1)
		go func(proc int) {
			defer wg.Done()
			startY := half + proc*rowsPerProc
			endY := startY + rowsPerProc
			if endY > h-half {
				endY = h - half
			}

			var localSum float64
			var localCount int

			for y := startY; y < endY; y++ {
				for x := half; x < w-half; x++ {
					var muA, muB float64
					ki := 0
					for wy := -half; wy < half; wy++ {
						for wx := -half; wx < half; wx++ {
							idx := (y+wy)*w + (x + wx)
							weight := kernel[ki]
							muA += lumA[idx] * weight
							muB += lumB[idx] * weight
							ki++
						}
					}

					var sigAA, sigBB, sigAB float64
					ki = 0
					for wy := -half; wy < half; wy++ {
						for wx := -half; wx < half; wx++ {
							idx := (y+wy)*w + (x + wx)
							weight := kernel[ki]
							da := lumA[idx] - muA
							db := lumB[idx] - muB
							sigAA += da * da * weight
							sigBB += db * db * weight
							sigAB += da * db * weight
							ki++
						}
					}

					num := (2*muA*muB + ssimC1) * (2*sigAB + ssimC2)
					den := (muA*muA + muB*muB + ssimC1) * (sigAA + sigBB + ssimC2)

					localSum += num / den
					localCount++
				}
			}

			results[proc] = ssimResult{localSum, localCount}
		}(p)
	}
	wg.Wait()

	var totalSum float64
	var totalCount int
	for _, r := range results {
		totalSum += r.sum
		totalCount += r.count
	}

	if totalCount == 0 {
		return 1.0
	}
	return totalSum / float64(totalCount)
}

// pixelSSIM is the whole-array fallback for images too small for an 8x8
// window.
func pixelSSIM(lumA, lumB []float64) float64 {
	n := float64(len(lumA))
	if n == 0 {
		return 1.0
	}

	var muA, muB float64
	for i := range lumA {
		muA += lumA[i]
		muB += lumB[i]
	}
	muA /= n
	muB /= n

	var sigAA, sigBB, sigAB float64
	for i := range lumA {
		da := lumA[i] - muA
		db := lumB[i] - muB
		sigAA += da * da
		sigBB += db * db
		sigAB += da * db
	}
	sigAA /= n
	sigBB /= n
	sigAB /= n

	num := (2*muA*muB + ssimC1) * (2*sigAB + ssimC2)
	den := (muA*muA + muB*muB + ssimC1) * (sigAA + sigBB + ssimC2)
	return num / den
}

func gaussianKernel(size int, sigma float64) []float64 {
	kernel := make([]float64, size*size)
	half := size / 2
	var sum float64

	idx := 0
	for y := -half; y < half; y++ {
		for x := -half; x < half; x++ {
			val := math.Exp(-float64(x*x+y*y) / (2 * sigma * sigma))
			kernel[idx] = val
			sum += val
			idx++
		}
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// boxDownsampleLuminance halves (or resizes to) a luminance array using a
// box filter, the same fast iteration-time resampler shamspias-fennec uses
// for MS-SSIM's scale pyramid.
func boxDownsampleLuminance(lum []float64, w, h, dstW, dstH int) []float64 {
	if dstW <= 0 || dstH <= 0 {
		return nil
	}
	dst := make([]float64, dstW*dstH)
	xRatio := float64(w) / float64(dstW)
	yRatio := float64(h) / float64(dstH)

	for dy := 0; dy < dstH; dy++ {
		sy0 := int(float64(dy) * yRatio)
		sy1 := int(float64(dy+1) * yRatio)
		if sy1 > h {
			sy1 = h
		}
		if sy0 >= sy1 {
			sy0 = sy1 - 1
		}
		if sy0 < 0 {
			sy0 = 0
		}

		for dx := 0; dx < dstW; dx++ {
			sx0 := int(float64(dx) * xRatio)
			sx1 := int(float64(dx+1) * xRatio)
			if sx1 > w {
				sx1 = w
			}
			if sx0 >= sx1 {
				sx0 = sx1 - 1
			}
			if sx0 < 0 {
				sx0 = 0
			}

			var sum, count float64
			for sy := sy0; sy < sy1; sy++ {
				for sx := sx0; sx < sx1; sx++ {
					sum += lum[sy*w+sx]
					count++
				}
			}
			if count > 0 {
				dst[dy*dstW+dx] = sum / count
			}
		}
	}
	return dst
}

// MSSIM computes multi-scale SSIM over luminance arrays shaped w x h,
// generalizing shamspias-fennec/ssim.go's MSSSIM (image.Image in, luminance
// arrays out is the same pipeline with one fewer conversion step since
// internal/imageio already hands us luminance).
func MSSIM(lumA, lumB []float64, w, h int) float64 {
	weights := []float64{0.0448, 0.2856, 0.3001, 0.2363, 0.1333}

	for i := 0; i < len(weights)-1; i++ {
		minDim := w
		if h < minDim {
			minDim = h
		}
		if minDim < 8 {
			weights = weights[:i+1]
			var sum float64
			for _, wt := range weights {
				sum += wt
			}
			for j := range weights {
				weights[j] /= sum
			}
			break
		}
	}

	curA, curW, curH := lumA, w, h
	curB := lumB

	var result float64
	for i, wt := range weights {
		ssim := windowedSSIM(curA, curB, curW, curH)
		result += wt * math.Log(math.Max(ssim, 1e-10))

		if i < len(weights)-1 {
			nw, nh := curW/2, curH/2
			if nw < 8 || nh < 8 {
				break
			}
			curA = boxDownsampleLuminance(curA, curW, curH, nw, nh)
			curB = boxDownsampleLuminance(curB, curW, curH, nw, nh)
			curW, curH = nw, nh
		}
	}

	return math.Exp(result)
}

// EdgeSSIM applies windowedSSIM to the Sobel-filtered versions of both
// luminance arrays, catching ringing and edge-blur artifacts that MSSIM's
// whole-image averaging can dilute.
func EdgeSSIM(lumA, lumB []float64, w, h int) float64 {
	edgeA := imageio.SobelMagnitude(lumA, w, h)
	edgeB := imageio.SobelMagnitude(lumB, w, h)
	return windowedSSIM(edgeA, edgeB, w, h)
}
