package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileConfig mirrors a YAML config file's structure. Every field is
// optional; an unset field leaves the corresponding Config field untouched,
// so file values and CLI flags can layer without either side needing to
// know the other's defaults.
type FileConfig struct {
	Input      *InputConfig      `yaml:"input,omitempty"`
	Output     *OutputConfig     `yaml:"output,omitempty"`
	Processing *ProcessingConfig `yaml:"processing,omitempty"`
	Metadata   *MetadataFileConfig `yaml:"metadata,omitempty"`
	Responsive *ResponsiveFileConfig `yaml:"responsive,omitempty"`
	Paths      *PathsConfig      `yaml:"paths,omitempty"`
}

// InputConfig holds input-side settings.
type InputConfig struct {
	Paths []string `yaml:"paths,omitempty"`
}

// OutputConfig holds output-side settings.
type OutputConfig struct {
	Mode           string `yaml:"mode,omitempty"`
	Dir            string `yaml:"dir,omitempty"`
	Preset         string `yaml:"preset,omitempty"`
	NamingTemplate string `yaml:"naming_template,omitempty"`
	JPEGQuality    int    `yaml:"jpeg_quality,omitempty"`
	WebPQuality    int    `yaml:"webp_quality,omitempty"`
	WebPEffort     int    `yaml:"webp_effort,omitempty"`
	NearLossless   *bool  `yaml:"near_lossless,omitempty"`
	AggressivePNG  *bool  `yaml:"aggressive_png,omitempty"`
	AllowLarger    *bool  `yaml:"allow_larger,omitempty"`
}

// ProcessingConfig holds processing/search settings.
type ProcessingConfig struct {
	Mode             string `yaml:"mode,omitempty"`
	Workers          int    `yaml:"workers,omitempty"`
	MaxMemoryMB      int    `yaml:"max_memory_mb,omitempty"`
	DisableSSIMGuard *bool  `yaml:"disable_ssim_guard,omitempty"`
	SmartTarget      string `yaml:"smart_target,omitempty"`
	CustomGuardrail  int    `yaml:"custom_guardrail,omitempty"`
	Speed            string `yaml:"speed,omitempty"`
	DryRun           *bool  `yaml:"dry_run,omitempty"`
	Verbose          *bool  `yaml:"verbose,omitempty"`
	NoProgress       *bool  `yaml:"no_progress,omitempty"`
}

// MetadataFileConfig holds the metadata-cleanup section.
type MetadataFileConfig struct {
	Enabled    *bool  `yaml:"enabled,omitempty"`
	Preset     string `yaml:"preset,omitempty"`
	StripEXIF  *bool  `yaml:"strip_exif,omitempty"`
	StripXMP   *bool  `yaml:"strip_xmp,omitempty"`
	StripIPTC  *bool  `yaml:"strip_iptc,omitempty"`
	ICCMode    string `yaml:"icc_mode,omitempty"`
	GPSClean   *bool  `yaml:"gps_clean,omitempty"`
	KeepCamera *bool  `yaml:"keep_camera,omitempty"`
}

// ResponsiveFileConfig holds the responsive-derivative section.
type ResponsiveFileConfig struct {
	Mode            string `yaml:"mode,omitempty"`
	Widths          []int  `yaml:"widths,omitempty"`
	DPRBaseWidth    int    `yaml:"dpr_base_width,omitempty"`
	FormatPolicy    string `yaml:"format_policy,omitempty"`
	AllowUpscale    *bool  `yaml:"allow_upscale,omitempty"`
	IncludeOriginal *bool  `yaml:"include_original,omitempty"`
	SizesTemplate   string `yaml:"sizes_template,omitempty"`
}

// PathsConfig holds filesystem path overrides.
type PathsConfig struct {
	DB        string            `yaml:"db,omitempty"`
	ToolPaths map[string]string `yaml:"tool_paths,omitempty"`
}

// DefaultConfigPaths returns the ordered list of locations searched for a
// config file when none is given explicitly:
//  1. ./optiq.yaml (current directory)
//  2. ./optiq.yml
//  3. ~/.config/optiq/config.yaml
//  4. ~/.config/optiq/config.yml
func DefaultConfigPaths() []string {
	paths := []string{
		"optiq.yaml",
		"optiq.yml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "optiq", "config.yaml"),
			filepath.Join(home, ".config", "optiq", "config.yml"),
		)
	}
	return paths
}

// LoadFromFile loads a config file from path. It returns nil, nil if the
// file does not exist.
func LoadFromFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing YAML in %s: %w", path, err)
	}
	return &fc, nil
}

// FindAndLoadConfig loads configPath if given, otherwise searches
// DefaultConfigPaths. It returns nil, "", nil if no file was found.
func FindAndLoadConfig(configPath string) (*FileConfig, string, error) {
	if configPath != "" {
		fc, err := LoadFromFile(configPath)
		if err != nil {
			return nil, "", err
		}
		if fc == nil {
			return nil, "", fmt.Errorf("config file not found: %s", configPath)
		}
		return fc, configPath, nil
	}

	for _, path := range DefaultConfigPaths() {
		fc, err := LoadFromFile(path)
		if err != nil {
			return nil, "", err
		}
		if fc != nil {
			return fc, path, nil
		}
	}
	return nil, "", nil
}

// ApplyToConfig layers fc's values onto cfg. Call this before parsing CLI
// flags, since flags must win over the file.
func (fc *FileConfig) ApplyToConfig(cfg *Config) {
	if fc == nil {
		return
	}

	if fc.Input != nil && len(fc.Input.Paths) > 0 {
		cfg.Inputs = fc.Input.Paths
	}

	if o := fc.Output; o != nil {
		if o.Mode != "" {
			cfg.OutputMode = OutputMode(o.Mode)
		}
		if o.Dir != "" {
			cfg.OutputDir = o.Dir
		}
		if o.Preset != "" {
			cfg.ExportPreset = ExportPreset(o.Preset)
		}
		if o.NamingTemplate != "" {
			cfg.NamingTemplate = o.NamingTemplate
		}
		if o.JPEGQuality > 0 {
			cfg.JPEGQuality = o.JPEGQuality
			cfg.JPEGQualityMode = QualityManual
		}
		if o.WebPQuality > 0 {
			cfg.WebPQuality = o.WebPQuality
			cfg.WebPQualityMode = QualityManual
		}
		if o.WebPEffort > 0 {
			cfg.WebPEffort = o.WebPEffort
		}
		if o.NearLossless != nil {
			cfg.NearLossless = *o.NearLossless
		}
		if o.AggressivePNG != nil {
			cfg.AggressivePNG = *o.AggressivePNG
		}
		if o.AllowLarger != nil {
			cfg.AllowLargerOutput = *o.AllowLarger
		}
	}

	if p := fc.Processing; p != nil {
		if p.Mode != "" {
			cfg.Mode = RunMode(p.Mode)
		}
		if p.Workers > 0 {
			cfg.Concurrency = Concurrency{N: p.Workers}
		}
		if p.MaxMemoryMB > 0 {
			cfg.MaxMemoryMB = p.MaxMemoryMB
		}
		if p.DisableSSIMGuard != nil {
			cfg.DisableSSIMGuard = *p.DisableSSIMGuard
		}
		if p.SmartTarget != "" {
			cfg.SmartTarget = SmartTarget(p.SmartTarget)
		}
		if p.CustomGuardrail > 0 {
			cfg.CustomGuardrail = p.CustomGuardrail
		}
		if p.Speed != "" {
			cfg.Speed = Speed(p.Speed)
		}
		if p.DryRun != nil {
			cfg.DryRun = *p.DryRun
		}
		if p.Verbose != nil {
			cfg.Verbose = *p.Verbose
		}
		if p.NoProgress != nil {
			cfg.NoProgress = *p.NoProgress
		}
	}

	if m := fc.Metadata; m != nil {
		if m.Enabled != nil {
			cfg.Metadata.Enabled = *m.Enabled
		}
		if m.Preset != "" {
			cfg.Metadata.Preset = m.Preset
		}
		if m.StripEXIF != nil {
			cfg.Metadata.StripEXIF = *m.StripEXIF
		}
		if m.StripXMP != nil {
			cfg.Metadata.StripXMP = *m.StripXMP
		}
		if m.StripIPTC != nil {
			cfg.Metadata.StripIPTC = *m.StripIPTC
		}
		if m.ICCMode != "" {
			cfg.Metadata.ICCMode = ICCMode(m.ICCMode)
		}
		if m.GPSClean != nil {
			cfg.Metadata.GPSClean = *m.GPSClean
		}
		if m.KeepCamera != nil {
			cfg.Metadata.KeepCamera = *m.KeepCamera
		}
	}

	if r := fc.Responsive; r != nil {
		if r.Mode != "" {
			cfg.Responsive.Mode = ResponsiveMode(r.Mode)
		}
		if len(r.Widths) > 0 {
			cfg.Responsive.Widths = r.Widths
		}
		if r.DPRBaseWidth > 0 {
			cfg.Responsive.DPRBaseWidth = r.DPRBaseWidth
		}
		if r.FormatPolicy != "" {
			cfg.Responsive.FormatPolicy = ResponsiveFormatPolicy(r.FormatPolicy)
		}
		if r.AllowUpscale != nil {
			cfg.Responsive.AllowUpscale = *r.AllowUpscale
		}
		if r.IncludeOriginal != nil {
			cfg.Responsive.IncludeOriginal = *r.IncludeOriginal
		}
		if r.SizesTemplate != "" {
			cfg.Responsive.SizesTemplate = r.SizesTemplate
		}
	}

	if p := fc.Paths; p != nil {
		if p.DB != "" {
			cfg.DBPath = p.DB
		}
		if len(p.ToolPaths) > 0 {
			if cfg.ToolPaths == nil {
				cfg.ToolPaths = map[string]string{}
			}
			for k, v := range p.ToolPaths {
				cfg.ToolPaths[k] = v
			}
		}
	}
}

// FromConfig produces a FileConfig snapshot of cfg, suitable for persisting
// as a named preset.
func FromConfig(cfg *Config) *FileConfig {
	nearLossless := cfg.NearLossless
	aggressivePNG := cfg.AggressivePNG
	allowLarger := cfg.AllowLargerOutput
	return &FileConfig{
		Output: &OutputConfig{
			Mode:           string(cfg.OutputMode),
			Dir:            cfg.OutputDir,
			Preset:         string(cfg.ExportPreset),
			NamingTemplate: cfg.NamingTemplate,
			JPEGQuality:    cfg.JPEGQuality,
			WebPQuality:    cfg.WebPQuality,
			WebPEffort:     cfg.WebPEffort,
			NearLossless:   &nearLossless,
			AggressivePNG:  &aggressivePNG,
			AllowLarger:    &allowLarger,
		},
		Processing: &ProcessingConfig{
			Mode:            string(cfg.Mode),
			SmartTarget:     string(cfg.SmartTarget),
			CustomGuardrail: cfg.CustomGuardrail,
			Speed:           string(cfg.Speed),
		},
		Metadata: &MetadataFileConfig{
			Enabled:    &cfg.Metadata.Enabled,
			Preset:     cfg.Metadata.Preset,
			ICCMode:    string(cfg.Metadata.ICCMode),
			GPSClean:   &cfg.Metadata.GPSClean,
			KeepCamera: &cfg.Metadata.KeepCamera,
		},
	}
}

// SaveToFile marshals fc as YAML and writes it to path.
func (fc *FileConfig) SaveToFile(path string) error {
	data, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file %s: %w", path, err)
	}
	return nil
}

// GenerateExampleConfig returns a commented sample optiq.yaml.
func GenerateExampleConfig() string {
	return `# optiq configuration file.
# All fields are optional; unset fields fall back to built-in defaults.
# CLI flags take priority over this file.

output:
  # subfolder (default) writes into "Optimized" under the inputs' common
  # root; replace overwrites originals in place. "dir" is not read by the
  # path planner.
  mode: subfolder
  dir: optimized
  # original, web, or design.
  preset: web
  naming_template: "{name}.{ext}"
  jpeg_quality: 0   # 0 = let the candidate search choose
  webp_quality: 0
  webp_effort: 5    # 4-6
  near_lossless: false
  aggressive_png: false
  allow_larger: false

processing:
  # optimize, convertWebp, optimizeAndWebp, smart, responsive.
  mode: optimize
  workers: 0        # 0 = auto
  disable_ssim_guard: false
  smart_target: balanced   # visually-lossless, high, balanced, small, custom
  custom_guardrail: 95
  speed: balanced   # fast, balanced, thorough
  dry_run: false
  verbose: false
  no_progress: false

metadata:
  enabled: true
  preset: web-safe  # web-safe, max-compression, keep-copyright, keep-camera-info, custom
  icc_mode: convert-srgb
  gps_clean: true
  keep_camera: false

paths:
  db: ""
`
}
