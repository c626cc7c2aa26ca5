// Package imageio decodes source images and extracts the per-image
// features the Candidate Builder and Metric Engine need: a luminance array,
// edge density, texture level, flat-region ratio, and a grayscale/photo
// classification. Grounded on shamspias-fennec/ssim.go's toLuminance and
// NRGBA conversion helpers, generalized from "feed SSIM" to "feed the
// analyzer" and extended with stdlib/x-image decoders for every format
// spec.md requires (JPEG, PNG, WebP, TIFF).
package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// Format identifies a decoded source image's container format.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatTIFF Format = "tiff"
)

// Decoded holds a decoded image plus the format it came from.
type Decoded struct {
	Image  image.Image
	Format Format
}

// Decode sniffs and decodes src, returning the image and which decoder
// handled it. TIFF is decode-only by design (spec.md §4.7: TIFF inputs are
// never re-encoded as TIFF, only converted).
func Decode(src []byte) (Decoded, error) {
	r := bytes.NewReader(src)
	_, formatName, err := image.DecodeConfig(r)
	if err == nil {
		switch formatName {
		case "jpeg":
			img, err := jpeg.Decode(bytes.NewReader(src))
			return Decoded{Image: img, Format: FormatJPEG}, err
		case "png":
			img, err := png.Decode(bytes.NewReader(src))
			return Decoded{Image: img, Format: FormatPNG}, err
		}
	}

	if img, err := webp.Decode(bytes.NewReader(src)); err == nil {
		return Decoded{Image: img, Format: FormatWebP}, nil
	}
	if img, err := tiff.Decode(bytes.NewReader(src)); err == nil {
		return Decoded{Image: img, Format: FormatTIFF}, nil
	}

	return Decoded{}, fmt.Errorf("unrecognized or corrupt image data")
}

// ToNRGBA returns img as a freshly-allocated *image.NRGBA, copying pixel
// data if necessary.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

// DownscaleForAnalysis shrinks img to at most maxDim on its longest side
// using CatmullRom, the fast-but-decent resampler the teacher pack reserves
// for iterative/analysis work (Lanczos3 is kept for final Responsive output
// quality, per shamspias-fennec's boxDownsample-for-iteration vs.
// lanczosResize-for-finals split).
func DownscaleForAnalysis(img *image.NRGBA, maxDim int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	scale := float64(maxDim) / math.Max(float64(w), float64(h))
	newW := int(math.Max(1, math.Round(float64(w)*scale)))
	newH := int(math.Max(1, math.Round(float64(h)*scale)))

	dst := image.NewNRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// Luminance converts img to a BT.601 luminance array, row-major.
func Luminance(img *image.NRGBA) []float64 {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	lum := make([]float64, w*h)

	for y := 0; y < h; y++ {
		off := y * img.Stride
		for x := 0; x < w; x++ {
			i := off + x*4
			lum[y*w+x] = 0.299*float64(img.Pix[i]) + 0.587*float64(img.Pix[i+1]) + 0.114*float64(img.Pix[i+2])
		}
	}
	return lum
}

// sobelGx and sobelGy are the standard 3x3 Sobel kernels.
var sobelGx = [9]float64{-1, 0, 1, -2, 0, 2, -1, 0, 1}
var sobelGy = [9]float64{-1, -2, -1, 0, 0, 0, 1, 2, 1}

// SobelMagnitude returns the per-pixel Sobel gradient magnitude of a
// luminance array shaped w x h. Border pixels (no full 3x3 neighborhood)
// are zero.
func SobelMagnitude(lum []float64, w, h int) []float64 {
	out := make([]float64, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var gx, gy float64
			k := 0
			for wy := -1; wy <= 1; wy++ {
				for wx := -1; wx <= 1; wx++ {
					v := lum[(y+wy)*w+(x+wx)]
					gx += v * sobelGx[k]
					gy += v * sobelGy[k]
					k++
				}
			}
			out[y*w+x] = math.Hypot(gx, gy)
		}
	}
	return out
}

// EdgeDensity returns the fraction of pixels whose Sobel magnitude exceeds
// threshold — high for line art/text/graphics, low for smooth photography.
func EdgeDensity(lum []float64, w, h int, threshold float64) float64 {
	mag := SobelMagnitude(lum, w, h)
	if len(mag) == 0 {
		return 0
	}
	var edges int
	for _, m := range mag {
		if m > threshold {
			edges++
		}
	}
	return float64(edges) / float64(len(mag))
}

// laplacianKernel is the standard 4-neighbor discrete Laplacian.
var laplacianKernel = [9]float64{0, 1, 0, 1, -4, 1, 0, 1, 0}

// TextureLevel estimates high-frequency texture content via the variance of
// a Laplacian-filtered luminance array — a standard focus/detail measure.
func TextureLevel(lum []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}
	vals := make([]float64, 0, (w-2)*(h-2))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var acc float64
			k := 0
			for wy := -1; wy <= 1; wy++ {
				for wx := -1; wx <= 1; wx++ {
					acc += lum[(y+wy)*w+(x+wx)] * laplacianKernel[k]
					k++
				}
			}
			vals = append(vals, acc)
		}
	}
	var mean float64
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))

	var variance float64
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	return variance / float64(len(vals))
}

// FlatRegionRatio returns the fraction of pixels in flat (near-zero
// gradient) regions, using the same Sobel magnitude as EdgeDensity but with
// a low threshold. High flat ratio plus low texture is typical of
// screenshots/graphics with large solid-color areas (banding risk).
func FlatRegionRatio(lum []float64, w, h int) float64 {
	mag := SobelMagnitude(lum, w, h)
	if len(mag) == 0 {
		return 0
	}
	const flatThreshold = 2.0
	var flat int
	for _, m := range mag {
		if m < flatThreshold {
			flat++
		}
	}
	return float64(flat) / float64(len(mag))
}

// IsGrayscale reports whether every sampled pixel's channels are within
// tolerance of each other, i.e. the image carries no meaningful color.
func IsGrayscale(img *image.NRGBA) bool {
	const tolerance = 2
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y += maxStep(b.Dy()) {
		off := (y - b.Min.Y) * img.Stride
		for x := b.Min.X; x < b.Max.X; x += maxStep(b.Dx()) {
			i := off + (x-b.Min.X)*4
			r, g, bl := int(img.Pix[i]), int(img.Pix[i+1]), int(img.Pix[i+2])
			if abs(r-g) > tolerance || abs(g-bl) > tolerance || abs(r-bl) > tolerance {
				return false
			}
		}
	}
	return true
}

// maxStep subsamples large images during grayscale detection so the check
// stays O(1)-ish rather than scanning every pixel.
func maxStep(dim int) int {
	step := dim / 64
	if step < 1 {
		return 1
	}
	return step
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// IsPhoto classifies an image as photographic (true) vs. graphics/text/
// screenshot (false), by combining texture level and flat-region ratio:
// photos carry enough high-frequency texture (TextureLevel) and few enough
// large solid-color regions (FlatRegionRatio) that a lossy encoder's
// artifacts stay inconspicuous; graphics/screenshots fail one or both
// tests, per spec.md §4.2.
func IsPhoto(lum []float64, w, h int) bool {
	return TextureLevel(lum, w, h) > 5 && FlatRegionRatio(lum, w, h) < 0.8
}

// EncodeAsPNG and EncodeAsPPM below give the Candidate Builder the exact
// byte shapes the external tools expect: PNG bytes for pngquant/oxipng,
// raw PPM for cjpeg (which only speaks PPM/BMP/Targa, per spec.md §4.1).

// EncodeAsPNG encodes img as a PNG, for handing to pngquant/oxipng.
func EncodeAsPNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeAsPPM encodes img as a binary (P6) PPM, the format cjpeg reads from
// stdin.
func EncodeAsPPM(img image.Image) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	header := fmt.Sprintf("P6\n%d %d\n255\n", w, h)
	out := make([]byte, 0, len(header)+w*h*3)
	out = append(out, header...)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			out = append(out, byte(r>>8), byte(g>>8), byte(bl>>8))
		}
	}
	return out
}

