package config

// ExportPresetBundle is the concrete set of quality/metadata choices a
// named ExportPreset expands to when applied to a Config.
type ExportPresetBundle struct {
	JPEGQuality   int
	WebPQuality   int
	AggressivePNG bool
	Metadata      MetadataCleanup
}

// ExportPresetBundles maps each built-in ExportPreset to its bundle.
// PresetOriginal has no bundle, so ApplyPreset reports false for it; no
// other code treats "original" specially.
var ExportPresetBundles = map[ExportPreset]ExportPresetBundle{
	PresetWeb: {
		JPEGQuality:   80,
		WebPQuality:   78,
		AggressivePNG: false,
		Metadata: MetadataCleanup{
			Enabled:  true,
			Preset:   "web-safe",
			ICCMode:  ICCConvertSRGB,
			GPSClean: true,
		},
	},
	PresetDesign: {
		JPEGQuality:   92,
		WebPQuality:   90,
		AggressivePNG: true,
		Metadata: MetadataCleanup{
			Enabled:    true,
			Preset:     "keep-copyright",
			ICCMode:    ICCKeep,
			GPSClean:   true,
			KeepCamera: false,
		},
	},
}

// ApplyPreset applies the named built-in export preset's bundle to c.
// It returns false for unknown preset names (including "original", which
// has no bundle by design) and leaves c unchanged in that case.
func (c *Config) ApplyPreset(preset string) bool {
	b, ok := ExportPresetBundles[ExportPreset(preset)]
	if !ok {
		return false
	}

	c.ExportPreset = ExportPreset(preset)
	c.JPEGQuality = b.JPEGQuality
	c.JPEGQualityMode = QualityManual
	c.WebPQuality = b.WebPQuality
	c.WebPQualityMode = QualityManual
	c.AggressivePNG = b.AggressivePNG
	c.Metadata = b.Metadata

	return true
}

// ValidPresets returns the names of every built-in export preset that
// ApplyPreset accepts.
func ValidPresets() []string {
	return []string{
		string(PresetWeb),
		string(PresetDesign),
	}
}
