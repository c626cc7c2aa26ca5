// Package resize provides the high-quality resampling the Responsive
// Derivative Engine needs for final output (as opposed to
// internal/imageio's CatmullRom, reserved for fast analysis downscales).
// Grounded on spec.md §4.8's "high-quality Lanczos resampler" requirement
// and SPEC_FULL.md §2.2's wiring of golang.org/x/image/draw, the real
// ecosystem library in place of shamspias-fennec's hand-rolled Lanczos.
package resize

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// Plan describes one target size to render.
type Plan struct {
	Width  int
	Height int
}

// ToLanczos resizes img to exactly plan.Width x plan.Height using
// Lanczos3, the resampler the Responsive Derivative Engine uses for
// every derivative it writes out, per spec.md §4.8.
func ToLanczos(img image.Image, plan Plan) (*image.NRGBA, error) {
	if plan.Width <= 0 || plan.Height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", plan.Width, plan.Height)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, plan.Width, plan.Height))
	draw.Lanczos3.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst, nil
}

// FitWidth returns the Plan that scales src proportionally to targetWidth,
// never upscaling unless allowUpscale is true.
func FitWidth(srcW, srcH, targetWidth int, allowUpscale bool) (Plan, bool) {
	if targetWidth <= 0 {
		return Plan{}, false
	}
	if targetWidth > srcW && !allowUpscale {
		return Plan{}, false
	}
	ratio := float64(targetWidth) / float64(srcW)
	h := int(math.Round(float64(srcH) * ratio))
	if h < 1 {
		h = 1
	}
	return Plan{Width: targetWidth, Height: h}, true
}
