// Package config contains optiq's settings: the CLI/file-configurable
// Config that a user edits, and the EffectiveSettings record derived from it
// that the rest of the pipeline actually consumes.
package config

import (
	"fmt"
	"runtime"
)

// RunMode selects which top-level operation a RunRequest performs.
type RunMode string

const (
	ModeOptimize        RunMode = "optimize"
	ModeConvertWebP     RunMode = "convertWebp"
	ModeOptimizeAndWebP RunMode = "optimizeAndWebp"
	ModeSmart           RunMode = "smart"
	ModeResponsive      RunMode = "responsive"
)

// OutputMode is the output disposition policy.
type OutputMode string

const (
	OutputSubfolder OutputMode = "subfolder"
	OutputReplace   OutputMode = "replace"
)

// ExportPreset is a pre-packaged bundle of quality/metadata choices.
type ExportPreset string

const (
	PresetOriginal ExportPreset = "original"
	PresetWeb      ExportPreset = "web"
	PresetDesign   ExportPreset = "design"
)

// QualityMode distinguishes an explicit numeric quality from an
// automatically-derived one (ladder/smart search picks the number).
type QualityMode string

const (
	QualityAuto   QualityMode = "auto"
	QualityManual QualityMode = "manual"
)

// SmartTarget names a perceptual-quality tier the smart search converges to.
type SmartTarget string

const (
	TargetVisuallyLossless SmartTarget = "visually-lossless"
	TargetHigh             SmartTarget = "high"
	TargetBalanced         SmartTarget = "balanced"
	TargetSmall            SmartTarget = "small"
	TargetCustom           SmartTarget = "custom"
)

// Speed trades search thoroughness for wall-clock time in smart mode.
type Speed string

const (
	SpeedFast     Speed = "fast"
	SpeedBalanced Speed = "balanced"
	SpeedThorough Speed = "thorough"
)

// SmartIterations returns the binary-search iteration budget for a speed tier.
func (s Speed) SmartIterations() int {
	switch s {
	case SpeedFast:
		return 4
	case SpeedThorough:
		return 8
	default:
		return 6
	}
}

// ICCMode controls how the ICC colour profile is handled.
type ICCMode string

const (
	ICCConvertSRGB ICCMode = "convert-srgb"
	ICCKeep        ICCMode = "keep"
	ICCStrip       ICCMode = "strip"
)

// MetadataCleanup bundles the Metadata Processor's flags for one run.
type MetadataCleanup struct {
	Enabled      bool
	Preset       string // web-safe, max-compression, keep-copyright, keep-camera-info, custom
	StripEXIF    bool
	StripXMP     bool
	StripIPTC    bool
	ICCMode      ICCMode
	GPSClean     bool
	KeepCamera   bool // contradicts GPSClean; resolved by escalating to StripEXIF, see metaproc
}

// ResponsiveFormatPolicy selects which formats a derivative set produces.
type ResponsiveFormatPolicy string

const (
	FormatPolicyKeep         ResponsiveFormatPolicy = "keep"
	FormatPolicyWebPFallback ResponsiveFormatPolicy = "webp-fallback"
	FormatPolicyWebPOnly     ResponsiveFormatPolicy = "webp-only"
)

// ResponsiveMode selects the plan shape: discrete widths, or DPR multiples.
type ResponsiveMode string

const (
	ResponsiveModeWidth ResponsiveMode = "width"
	ResponsiveModeDPR   ResponsiveMode = "dpr"
)

// ResponsiveConfig configures the Responsive Derivative Engine.
type ResponsiveConfig struct {
	Mode              ResponsiveMode
	Widths            []int
	DPRBaseWidth      int
	FormatPolicy      ResponsiveFormatPolicy
	AllowUpscale      bool
	IncludeOriginal   bool
	OptimizationPreset ExportPreset
	SizesTemplate     string
	CustomSizes       string
}

// Concurrency resolves to either "auto" (cores-derived) or an explicit N.
type Concurrency struct {
	Auto bool
	N    int
}

// Resolve returns the effective worker count for this concurrency setting.
func (c Concurrency) Resolve() int {
	if !c.Auto && c.N > 0 {
		return c.N
	}
	n := runtime.NumCPU() - 1
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return n
}

// EffectiveSettings is the immutable, normalized settings record a
// RunRequest carries through its lifetime. It is derived from Config (the
// user-facing, possibly-partial configuration) by Normalize.
type EffectiveSettings struct {
	OutputMode       OutputMode
	ExportPreset     ExportPreset
	NamingTemplate   string
	JPEGQualityMode  QualityMode
	JPEGQuality      int
	WebPQualityMode  QualityMode
	WebPQuality      int
	WebPEffort       int
	NearLossless     bool
	AggressivePNG    bool
	Concurrency      Concurrency
	AllowLargerOutput bool
	SSIMGuardOn      bool
	SmartTarget      SmartTarget
	CustomGuardrail  int
	Speed            Speed
	Metadata         MetadataCleanup
	Responsive       ResponsiveConfig
}

// clamp restricts v to [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Normalize returns an EffectiveSettings with every field clamped into its
// documented range, filling in defaults for anything the caller left zero.
// Quality clamps to [1,100]; WebP effort clamps to [4,6].
func (c *Config) Normalize() EffectiveSettings {
	es := EffectiveSettings{
		OutputMode:        c.outputModeOrDefault(),
		ExportPreset:      c.exportPresetOrDefault(),
		NamingTemplate:    c.namingTemplateOrDefault(),
		JPEGQualityMode:   c.jpegQualityModeOrDefault(),
		JPEGQuality:       clamp(nonZero(c.JPEGQuality, 82), 1, 100),
		WebPQualityMode:   c.webpQualityModeOrDefault(),
		WebPQuality:       clamp(nonZero(c.WebPQuality, 78), 1, 100),
		WebPEffort:        clamp(nonZero(c.WebPEffort, 5), 4, 6),
		NearLossless:      c.NearLossless,
		AggressivePNG:     c.AggressivePNG,
		Concurrency:       c.concurrencyOrDefault(),
		AllowLargerOutput: c.AllowLargerOutput,
		SSIMGuardOn:       !c.DisableSSIMGuard,
		SmartTarget:       c.smartTargetOrDefault(),
		CustomGuardrail:   clamp(nonZero(c.CustomGuardrail, 95), 0, 100),
		Speed:             c.speedOrDefault(),
		Metadata:          c.Metadata,
		Responsive:        c.Responsive,
	}
	return es
}

func nonZero(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func (c *Config) outputModeOrDefault() OutputMode {
	if c.OutputMode == "" {
		return OutputSubfolder
	}
	return c.OutputMode
}

func (c *Config) exportPresetOrDefault() ExportPreset {
	if c.ExportPreset == "" {
		return PresetWeb
	}
	return c.ExportPreset
}

func (c *Config) namingTemplateOrDefault() string {
	if c.NamingTemplate == "" {
		return "{name}.{ext}"
	}
	return c.NamingTemplate
}

func (c *Config) jpegQualityModeOrDefault() QualityMode {
	if c.JPEGQualityMode == "" {
		return QualityAuto
	}
	return c.JPEGQualityMode
}

func (c *Config) webpQualityModeOrDefault() QualityMode {
	if c.WebPQualityMode == "" {
		return QualityAuto
	}
	return c.WebPQualityMode
}

func (c *Config) concurrencyOrDefault() Concurrency {
	if c.Concurrency.N > 0 {
		return Concurrency{N: c.Concurrency.N}
	}
	return Concurrency{Auto: true}
}

func (c *Config) smartTargetOrDefault() SmartTarget {
	if c.SmartTarget == "" {
		return TargetBalanced
	}
	return c.SmartTarget
}

func (c *Config) speedOrDefault() Speed {
	if c.Speed == "" {
		return SpeedBalanced
	}
	return c.Speed
}

// SSIMThreshold returns the minimum MSSIM a lossy candidate must reach to be
// accepted in ladder mode (guard on/off × aggressive); smart mode uses
// SmartThreshold instead.
func (es EffectiveSettings) SSIMThreshold(aggressive bool) float64 {
	if !es.SSIMGuardOn {
		return 0
	}
	if aggressive {
		return 0.99
	}
	return 0.995
}

// SmartThreshold returns the target MSSIM the smart binary search converges
// toward, derived from SmartTarget (or CustomGuardrail for TargetCustom).
func (es EffectiveSettings) SmartThreshold() float64 {
	switch es.SmartTarget {
	case TargetVisuallyLossless:
		return 0.999
	case TargetHigh:
		return 0.995
	case TargetSmall:
		return 0.98
	case TargetCustom:
		return float64(es.CustomGuardrail) / 100.0
	default:
		return 0.99
	}
}

// Validate reports whether an EffectiveSettings is internally consistent.
// Normalize already clamps numeric ranges, so this mostly catches
// enum values that don't belong to any known variant.
func (es EffectiveSettings) Validate() error {
	switch es.OutputMode {
	case OutputSubfolder, OutputReplace:
	default:
		return fmt.Errorf("unknown output mode: %s", es.OutputMode)
	}
	switch es.SmartTarget {
	case TargetVisuallyLossless, TargetHigh, TargetBalanced, TargetSmall, TargetCustom:
	default:
		return fmt.Errorf("unknown smart target: %s", es.SmartTarget)
	}
	switch es.Speed {
	case SpeedFast, SpeedBalanced, SpeedThorough:
	default:
		return fmt.Errorf("unknown speed: %s", es.Speed)
	}
	return nil
}
