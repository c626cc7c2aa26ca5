package candidate

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/surfgoffdude/optiq/internal/config"
	"github.com/surfgoffdude/optiq/internal/imageio"
)

func testSource(t *testing.T) (Source, []byte) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 30), G: uint8(y * 30), B: 128, A: 255})
		}
	}
	png, err := imageio.EncodeAsPNG(img)
	if err != nil {
		t.Fatalf("EncodeAsPNG() error = %v", err)
	}
	return Source{
		Width:       8,
		Height:      8,
		IsPhoto:     true,
		Luminance:   imageio.Luminance(img),
		SourceBytes: png,
	}, png
}

// encodeAtQuality returns a Strategy.Encode that re-encodes the source PNG
// unchanged regardless of quality, so every candidate scores a perfect
// match — enough to exercise the Ladder/Smart control flow without a real
// external encoder.
func encodeAtQuality(png []byte) func(ctx context.Context, quality int) (Candidate, error) {
	return func(ctx context.Context, quality int) (Candidate, error) {
		return Candidate{Data: png}, nil
	}
}

func TestLadderReturnsFirstPassingCandidate(t *testing.T) {
	src, png := testSource(t)
	strategy := Strategy{Name: "cjpeg", Format: FormatJPEG, Encode: encodeAtQuality(png)}

	got, err := (&Builder{}).Ladder(context.Background(), src, strategy, 0.5)
	if err != nil {
		t.Fatalf("Ladder() error = %v", err)
	}
	if got.Skipped {
		t.Errorf("Ladder() returned a skipped candidate")
	}
	if !got.PassesThreshold(0.5) {
		t.Errorf("Ladder() candidate MSSIM = %v, want >= 0.5", got.MSSIM)
	}
}

func TestLadderFallsBackToBestWhenNothingPasses(t *testing.T) {
	src, png := testSource(t)
	strategy := Strategy{Name: "cjpeg", Format: FormatJPEG, Encode: encodeAtQuality(png)}

	got, err := (&Builder{}).Ladder(context.Background(), src, strategy, 2.0) // impossible threshold
	if err != nil {
		t.Fatalf("Ladder() error = %v", err)
	}
	if got.Skipped {
		t.Errorf("Ladder() fallback candidate is Skipped, want a usable result")
	}
}

func TestLadderErrorsWhenEverySampleFails(t *testing.T) {
	src, _ := testSource(t)
	strategy := Strategy{
		Name:   "cjpeg",
		Format: FormatJPEG,
		Encode: func(ctx context.Context, quality int) (Candidate, error) { return Candidate{Skipped: true}, nil },
	}

	if _, err := (&Builder{}).Ladder(context.Background(), src, strategy, 0.5); err == nil {
		t.Errorf("Ladder() error = nil, want an error when every candidate is skipped")
	}
}

func TestSmartConvergesOnAPassingCandidate(t *testing.T) {
	src, png := testSource(t)
	strategy := Strategy{Name: "cjpeg", Format: FormatJPEG, Encode: encodeAtQuality(png)}
	b := &Builder{Speed: config.SpeedBalanced}

	got, err := b.Smart(context.Background(), src, strategy, 0.5)
	if err != nil {
		t.Fatalf("Smart() error = %v", err)
	}
	if !got.PassesThreshold(0.5) {
		t.Errorf("Smart() candidate MSSIM = %v, want >= 0.5", got.MSSIM)
	}
}

func TestSmartRaisesLowerBoundForNonPhotoSources(t *testing.T) {
	src, png := testSource(t)
	src.IsPhoto = false

	var sawLow bool
	strategy := Strategy{
		Name:   "cjpeg",
		Format: FormatJPEG,
		Encode: func(ctx context.Context, quality int) (Candidate, error) {
			if quality < 55 {
				sawLow = true
			}
			return Candidate{Data: png}, nil
		},
	}

	if _, err := (&Builder{Speed: config.SpeedBalanced}).Smart(context.Background(), src, strategy, 0.5); err != nil {
		t.Fatalf("Smart() error = %v", err)
	}
	if sawLow {
		t.Errorf("Smart() tried a quality below 55 for a non-photo source, want the graphics-bias bound respected")
	}
}

func TestBetterFitPrefersPassingCandidate(t *testing.T) {
	pass := Candidate{MSSIM: 0.9, Data: []byte{1, 2, 3}}
	fail := Candidate{MSSIM: 0.5, Data: []byte{1}}

	if !BetterFit(pass, fail, 0.8) {
		t.Errorf("BetterFit() preferred the failing (if smaller) candidate over the passing one")
	}
}

func TestBetterFitPrefersSmallerAmongPassing(t *testing.T) {
	small := Candidate{MSSIM: 0.9, Data: []byte{1}}
	large := Candidate{MSSIM: 0.9, Data: []byte{1, 2, 3, 4}}

	if !BetterFit(small, large, 0.5) {
		t.Errorf("BetterFit() did not prefer the smaller candidate when MSSIM ties")
	}
}
