// Package candidate builds and scores competing encodes of one source
// image and selects the one the rest of the pipeline will write out.
// Grounded on shamspias-fennec/targetsize.go: the Strategy record type
// answers spec.md §9's "callback-chained encoders → explicit strategy
// records" redesign flag, ladder mode generalizes targetsize.go's fixed
// candidate list, and smart mode generalizes jpegQualitySearchOpt's binary
// search from a byte-size target to an SSIM-threshold target.
package candidate

import (
	"context"
	"fmt"

	"github.com/surfgoffdude/optiq/internal/config"
	"github.com/surfgoffdude/optiq/internal/imageio"
	"github.com/surfgoffdude/optiq/internal/metric"
	"github.com/surfgoffdude/optiq/internal/toolrunner"
)

// Format names the encoded output format of a Candidate.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// Candidate is one scored encode attempt.
type Candidate struct {
	Strategy    string
	Format      Format
	Data        []byte
	Quality     int
	MSSIM       float64
	EdgeSSIM    float64
	BandingRisk float64
	Skipped     bool
}

// Size returns the candidate's byte length, 0 if it was skipped.
func (c Candidate) Size() int {
	if c.Skipped {
		return 0
	}
	return len(c.Data)
}

// PassesThreshold reports whether c's MSSIM clears the acceptability bar.
func (c Candidate) PassesThreshold(threshold float64) bool {
	return !c.Skipped && c.MSSIM >= threshold
}

// Strategy is one named way of producing a Candidate at a given quality
// level. The Candidate Builder calls a Strategy repeatedly (ladder: over a
// fixed quality table; smart: over a binary search) and measures each
// result against the source image.
type Strategy struct {
	Name   string
	Format Format
	Encode func(ctx context.Context, quality int) (Candidate, error)
}

// Source is the decoded, analyzed input a Builder scores candidates against.
type Source struct {
	Image       *imageio.Decoded
	NRGBA       *imageio.Decoded // unused placeholder kept for symmetry; NRGBA lives on Luminance below
	Luminance   []float64
	Width       int
	Height      int
	IsPhoto     bool
	SourceBytes []byte
}

// Builder runs strategies against a Source and returns the best Candidate.
type Builder struct {
	Runners map[string]toolrunner.Runner
	Speed   config.Speed
}

// NewBuilder constructs a Builder with the given tool runners keyed by name
// ("cjpeg", "pngquant", "oxipng", "cwebp").
func NewBuilder(runners map[string]toolrunner.Runner, speed config.Speed) *Builder {
	return &Builder{Runners: runners, Speed: speed}
}

// jpegLadder and webpLadder are fixed quality tables, ascending so that
// Ladder can stop at the first (smallest) candidate that clears the
// threshold. Grounded on targetsize.go's fixed-strategy-list shape, values
// chosen to bracket the teacher's own default of 80/78.
var jpegLadder = []int{50, 60, 68, 75, 82, 88, 94}
var webpLadder = []int{45, 55, 65, 72, 78, 85, 92}

// pngLadder is used for lossy PNG (pngquant) passes; oxipng's lossless pass
// has no quality knob and is applied once regardless of ladder/smart mode.
var pngLadder = []int{45, 60, 75, 90}

// bandingRiskThreshold is the veto point for smart mode's banding-risk
// check: a candidate scoring at or above this is rejected regardless of its
// MSSIM, per spec.md §4.3.
const bandingRiskThreshold = 0.05

// Ladder runs a fixed quality table for format, measuring each candidate
// and returning the smallest one whose MSSIM clears threshold. If none
// clear it, it returns the tried candidate with the highest MSSIM, so the caller
// always gets a usable result even when the guard can't be satisfied.
func (b *Builder) Ladder(ctx context.Context, src Source, strategy Strategy, threshold float64) (Candidate, error) {
	var best Candidate
	haveBest := false

	table := jpegLadder
	switch strategy.Format {
	case FormatWebP:
		table = webpLadder
	case FormatPNG:
		table = pngLadder
	}

	for _, q := range table {
		if err := ctx.Err(); err != nil {
			return Candidate{}, err
		}

		cand, err := b.encodeAndMeasure(ctx, src, strategy, q)
		if err != nil {
			continue
		}
		if cand.Skipped {
			continue
		}

		if !haveBest || BetterFit(cand, best, threshold) {
			best = cand
			haveBest = true
		}

		if cand.PassesThreshold(threshold) {
			return cand, nil
		}
	}

	if !haveBest {
		return Candidate{}, fmt.Errorf("no ladder candidate for %s produced usable output", strategy.Name)
	}
	return best, nil
}

// Smart runs a binary search over quality [1,100], converging on the
// smallest quality whose MSSIM still clears threshold — the same
// lo/hi/mid narrowing loop as targetsize.go's jpegQualitySearchOpt, with
// the stop condition generalized from a byte-size budget to an SSIM floor,
// per spec.md §4.4. Non-photo sources raise the lower search bound, since
// lossy artifacts are more visible in flat/graphic content at the same
// nominal quality (the "graphics-bias bound adjustment").
func (b *Builder) Smart(ctx context.Context, src Source, strategy Strategy, threshold float64) (Candidate, error) {
	lo, hi := 1, 100
	if !src.IsPhoto {
		lo = 55
	}

	maxIterations := b.Speed.SmartIterations()
	var best Candidate
	haveBest := false

	for i := 0; lo <= hi && i < maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return Candidate{}, err
		}

		mid := (lo + hi) / 2
		cand, err := b.encodeAndMeasure(ctx, src, strategy, mid)
		if err != nil || cand.Skipped {
			lo = mid + 1
			continue
		}

		if cand.PassesThreshold(threshold) && cand.BandingRisk < bandingRiskThreshold {
			if !haveBest || cand.Size() < best.Size() {
				best = cand
				haveBest = true
			}
			hi = mid - 1 // it passed; try a lower quality to shrink further
		} else {
			lo = mid + 1 // didn't pass (or banding risk vetoed it); need higher quality
		}
	}

	if !haveBest {
		// Nothing cleared the threshold; fall back to the highest quality
		// in range so the caller still gets a usable, if imperfect, result.
		return b.encodeAndMeasure(ctx, src, strategy, 100)
	}
	return best, nil
}

// encodeAndMeasure runs strategy.Encode at quality q and scores the result
// against src via internal/metric.
func (b *Builder) encodeAndMeasure(ctx context.Context, src Source, strategy Strategy, q int) (Candidate, error) {
	cand, err := strategy.Encode(ctx, q)
	if err != nil {
		return Candidate{}, err
	}
	cand.Strategy = strategy.Name
	cand.Format = strategy.Format
	cand.Quality = q

	if cand.Skipped || len(cand.Data) == 0 {
		return cand, nil
	}

	decoded, err := imageio.Decode(cand.Data)
	if err != nil {
		return Candidate{}, fmt.Errorf("decoding candidate for measurement: %w", err)
	}
	nrgba := imageio.ToNRGBA(decoded.Image)
	candLum := imageio.Luminance(nrgba)

	w, h := src.Width, src.Height
	candW, candH := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	if candW != w || candH != h {
		// A candidate whose decoded size differs from the source's is
		// downscaled so its longest edge fits the source's longest edge;
		// the source luminance itself is not resized.
		resized := imageio.DownscaleForAnalysis(nrgba, maxInt(w, h))
		candLum = imageio.Luminance(resized)
		w, h = resized.Bounds().Dx(), resized.Bounds().Dy()
	}

	srcLum := src.Luminance
	if len(srcLum) != w*h {
		// Dimensions diverged further than a simple resize can reconcile;
		// score against whichever is smaller to stay in bounds.
		w, h = src.Width, src.Height
		srcLum = src.Luminance
		candLum = candLum[:minInt(len(candLum), len(srcLum))]
	}

	seed := uint64(len(src.SourceBytes))*31 + uint64(q)
	result := metric.Measure(srcLum, candLum, w, h, seed)
	cand.MSSIM = result.MSSIM
	cand.EdgeSSIM = result.EdgeSSIM
	cand.BandingRisk = result.BandingRisk

	return cand, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// BetterFit mirrors targetsize.go's betterFit tie-break: prefer a
// threshold-passing candidate over a failing one, then higher MSSIM, then
// smaller size.
func BetterFit(a, b Candidate, threshold float64) bool {
	aPass := a.PassesThreshold(threshold)
	bPass := b.PassesThreshold(threshold)

	if aPass && !bPass {
		return true
	}
	if !aPass && bPass {
		return false
	}
	if a.MSSIM != b.MSSIM {
		return a.MSSIM > b.MSSIM
	}
	return a.Size() < b.Size()
}
