// Package config holds optiq's configuration: the CLI/file-configurable
// Config a user edits, the EffectiveSettings record derived from it, and the
// named-preset persistence layer the "optiq presets" subcommand drives.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Config holds every setting a run can be started with, whether it came
// from CLI flags, a loaded config file, or a named preset. Zero values mean
// "unset"; Normalize fills in defaults and clamps ranges.
type Config struct {
	// Inputs - file and directory paths to process.
	Inputs []string

	// OutputDir - the output.dir / --out setting. The path planner does not
	// read it: "subfolder" output always goes to <common root>/Optimized,
	// and "replace" overwrites originals in place.
	OutputDir string

	// Mode - which pipeline operation this run performs.
	Mode RunMode

	OutputMode      OutputMode
	ExportPreset    ExportPreset
	NamingTemplate  string
	JPEGQualityMode QualityMode
	JPEGQuality     int
	WebPQualityMode QualityMode
	WebPQuality     int
	WebPEffort      int
	NearLossless    bool
	AggressivePNG   bool
	Concurrency     Concurrency

	AllowLargerOutput bool
	DisableSSIMGuard  bool
	SmartTarget       SmartTarget
	CustomGuardrail   int
	Speed             Speed

	Metadata   MetadataCleanup
	Responsive ResponsiveConfig

	// DBPath - path to the SQLite job/index database.
	DBPath string

	// ToolPaths overrides the auto-discovered path for a named external
	// binary (cjpeg, pngquant, oxipng, cwebp), keyed by that name.
	ToolPaths map[string]string

	// DryRun - report planned actions without writing any output.
	DryRun bool

	// Verbose - emit per-file diagnostic logging.
	Verbose bool

	// NoProgress - disable the progress bar (useful for piped/CI output).
	NoProgress bool

	// MaxMemoryMB caps the estimated memory concurrently-running jobs may
	// reserve, 0 meaning unlimited. Lets a large batch run on a memory-
	// constrained machine without cutting Concurrency.
	MaxMemoryMB int
}

// DefaultConfig returns a Config with sensible defaults for an ad-hoc run.
func DefaultConfig() *Config {
	return &Config{
		Mode:            ModeOptimize,
		OutputMode:      OutputSubfolder,
		OutputDir:       "optimized",
		ExportPreset:    PresetWeb,
		NamingTemplate:  "{name}.{ext}",
		JPEGQualityMode: QualityAuto,
		WebPQualityMode: QualityAuto,
		WebPEffort:      5,
		Concurrency:     Concurrency{Auto: true},
		SmartTarget:     TargetBalanced,
		CustomGuardrail: 95,
		Speed:           SpeedBalanced,
	}
}

// Validate checks the fields a Normalize pass cannot safely default, namely
// the ones that describe what to read and where the database lives.
func (c *Config) Validate() error {
	if len(c.Inputs) == 0 {
		return fmt.Errorf("no input paths given (--in)")
	}
	switch c.Mode {
	case ModeOptimize, ModeConvertWebP, ModeOptimizeAndWebP, ModeSmart, ModeResponsive:
	default:
		return fmt.Errorf("unknown run mode: %s (choose optimize, convertWebp, optimizeAndWebp, smart, responsive)", c.Mode)
	}
	if c.OutputMode == OutputSubfolder && c.OutputDir == "" {
		c.OutputDir = "optimized"
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(".optiq", "state.sqlite")
	}
	return nil
}

// OutputParams summarizes the settings that change a file's bytes, for use
// as an idempotency fingerprint alongside the source file's own hash.
func (c *Config) OutputParams() string {
	params := map[string]interface{}{
		"mode":             c.Mode,
		"export_preset":    c.ExportPreset,
		"jpeg_quality":     c.JPEGQuality,
		"webp_quality":     c.WebPQuality,
		"webp_effort":      c.WebPEffort,
		"near_lossless":    c.NearLossless,
		"aggressive_png":   c.AggressivePNG,
		"smart_target":     c.SmartTarget,
		"custom_guardrail": c.CustomGuardrail,
		"metadata":         c.Metadata,
	}
	b, _ := json.Marshal(params)
	return string(b)
}

// OutputParamsHash returns the sha256 of OutputParams, used to recognize
// when a previously processed file needs to be reprocessed because the run
// settings changed since last time.
func (c *Config) OutputParamsHash() string {
	h := sha256.Sum256([]byte(c.OutputParams()))
	return hex.EncodeToString(h[:])
}

// ToolPath returns the configured override for an external tool name, or
// "" if none was set (meaning: let toolfinder search PATH).
func (c *Config) ToolPath(name string) string {
	if c.ToolPaths == nil {
		return ""
	}
	return c.ToolPaths[name]
}

// HasAnyGlobInput reports whether any of c.Inputs looks like a glob pattern
// rather than a plain path, which callers use to decide whether to expand
// it before handing inputs to the scanner.
func (c *Config) HasAnyGlobInput() bool {
	for _, in := range c.Inputs {
		if strings.ContainsAny(in, "*?[") {
			return true
		}
	}
	return false
}
