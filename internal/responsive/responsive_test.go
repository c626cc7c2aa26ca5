package responsive

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/surfgoffdude/optiq/internal/candidate"
	"github.com/surfgoffdude/optiq/internal/config"
	"github.com/surfgoffdude/optiq/internal/imageio"
)

func TestBuildPlansWidthModeSkipsUpscales(t *testing.T) {
	cfg := config.ResponsiveConfig{
		Mode:         config.ResponsiveModeWidth,
		Widths:       []int{320, 640, 1600},
		FormatPolicy: config.FormatPolicyWebPOnly,
	}

	plans := BuildPlans(cfg, 800, 600, imageio.FormatJPEG)

	var widths []int
	for _, p := range plans {
		widths = append(widths, p.Width)
	}
	for _, w := range widths {
		if w > 800 {
			t.Errorf("BuildPlans() included an upscale width %d for an 800px-wide source", w)
		}
	}
	if len(widths) != 2 {
		t.Errorf("BuildPlans() produced %d plans, want 2 (320, 640 — 1600 is an upscale)", len(widths))
	}
}

func TestBuildPlansDPRModeMultipliesBaseWidth(t *testing.T) {
	cfg := config.ResponsiveConfig{
		Mode:         config.ResponsiveModeDPR,
		DPRBaseWidth: 300,
		FormatPolicy: config.FormatPolicyWebPOnly,
		AllowUpscale: true,
	}

	plans := BuildPlans(cfg, 1000, 500, imageio.FormatJPEG)
	if len(plans) != 3 {
		t.Fatalf("BuildPlans() produced %d plans, want 3 (1x/2x/3x)", len(plans))
	}
	if plans[0].Suffix != "@1x" || plans[1].Suffix != "@2x" || plans[2].Suffix != "@3x" {
		t.Errorf("BuildPlans() suffixes = %q, %q, %q, want @1x, @2x, @3x", plans[0].Suffix, plans[1].Suffix, plans[2].Suffix)
	}
}

func TestBuildPlansWebPFallbackProducesBothFormats(t *testing.T) {
	cfg := config.ResponsiveConfig{
		Mode:         config.ResponsiveModeWidth,
		Widths:       []int{400},
		FormatPolicy: config.FormatPolicyWebPFallback,
	}

	plans := BuildPlans(cfg, 800, 600, imageio.FormatPNG)
	if len(plans) != 2 {
		t.Fatalf("BuildPlans() produced %d plans, want 2 (webp + png fallback)", len(plans))
	}

	var sawWebP, sawFallback bool
	for _, p := range plans {
		if p.Format == candidate.FormatWebP {
			sawWebP = true
		}
		if p.Fallback && p.Format == candidate.FormatPNG {
			sawFallback = true
		}
	}
	if !sawWebP || !sawFallback {
		t.Errorf("BuildPlans() plans = %+v, want a webp plan and a PNG fallback plan", plans)
	}
}

func TestBuildPlansKeepPolicyUsesSourceFormat(t *testing.T) {
	cfg := config.ResponsiveConfig{
		Mode:         config.ResponsiveModeWidth,
		Widths:       []int{400},
		FormatPolicy: config.FormatPolicyKeep,
	}

	plans := BuildPlans(cfg, 800, 600, imageio.FormatPNG)
	if len(plans) != 1 || plans[0].Format != candidate.FormatPNG {
		t.Errorf("BuildPlans() with FormatPolicyKeep = %+v, want a single PNG plan", plans)
	}
}

func TestBuildSrcsetIncludesEveryNonWebPDerivative(t *testing.T) {
	derivs := []Derivative{
		{Plan: Plan{Width: 320, Format: candidate.FormatJPEG}, Path: "img-320w.jpg"},
		{Plan: Plan{Width: 640, Format: candidate.FormatJPEG}, Path: "img-640w.jpg"},
	}

	snippet, err := BuildSrcset(derivs, "100vw")
	if err != nil {
		t.Fatalf("BuildSrcset() error = %v", err)
	}
	if !strings.Contains(snippet, "img-320w.jpg 320w") || !strings.Contains(snippet, "img-640w.jpg 640w") {
		t.Errorf("BuildSrcset() = %q, missing expected srcset entries", snippet)
	}
	if !strings.Contains(snippet, `sizes="100vw"`) {
		t.Errorf("BuildSrcset() = %q, missing sizes attribute", snippet)
	}
}

func TestBuildPictureIncludesWebPSourceWhenPresent(t *testing.T) {
	derivs := []Derivative{
		{Plan: Plan{Width: 320, Format: candidate.FormatWebP}, Path: "img-320w.webp"},
		{Plan: Plan{Width: 320, Format: candidate.FormatJPEG}, Path: "img-320w.jpg"},
	}

	snippet, err := BuildPicture(derivs, "50vw")
	if err != nil {
		t.Fatalf("BuildPicture() error = %v", err)
	}
	if !strings.Contains(snippet, `type="image/webp"`) {
		t.Errorf("BuildPicture() = %q, missing webp <source>", snippet)
	}
	if !strings.Contains(snippet, "img-320w.jpg") {
		t.Errorf("BuildPicture() = %q, missing fallback <img>", snippet)
	}
}

func TestBuildManifestRoundTripsThroughJSON(t *testing.T) {
	derivs := []Derivative{
		{Plan: Plan{Width: 320, Height: 240, Format: candidate.FormatWebP}, Path: "img-320w.webp", Size: 1234},
	}

	data, err := BuildManifest("img.jpg", "100vw", derivs)
	if err != nil {
		t.Fatalf("BuildManifest() error = %v", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshaling manifest: %v", err)
	}
	if m.Source != "img.jpg" || len(m.Derivatives) != 1 || m.Derivatives[0].Bytes != 1234 {
		t.Errorf("Manifest round-trip = %+v, want source img.jpg with one 1234-byte derivative", m)
	}
}

func TestResolveSizesDefaultsAndTemplates(t *testing.T) {
	if got := ResolveSizes(config.ResponsiveConfig{}); got != "100vw" {
		t.Errorf("ResolveSizes(zero value) = %q, want 100vw", got)
	}
	if got := ResolveSizes(config.ResponsiveConfig{SizesTemplate: "half-width"}); got != "(min-width: 768px) 50vw, 100vw" {
		t.Errorf("ResolveSizes(half-width) = %q, want the half-width media query", got)
	}
	if got := ResolveSizes(config.ResponsiveConfig{CustomSizes: "(min-width: 1024px) 33vw, 100vw"}); got != "(min-width: 1024px) 33vw, 100vw" {
		t.Errorf("ResolveSizes() did not prefer CustomSizes override: %q", got)
	}
}
