package config

import "testing"

func TestApplyPreset(t *testing.T) {
	tests := []struct {
		name        string
		preset      string
		wantOK      bool
		wantJPEGQ   int
		wantWebPQ   int
		wantAggPNG  bool
	}{
		{
			name:      "web preset",
			preset:    "web",
			wantOK:    true,
			wantJPEGQ: 80,
			wantWebPQ: 78,
		},
		{
			name:       "design preset",
			preset:     "design",
			wantOK:     true,
			wantJPEGQ:  92,
			wantWebPQ:  90,
			wantAggPNG: true,
		},
		{
			name:   "original has no bundle",
			preset: "original",
			wantOK: false,
		},
		{
			name:   "unknown preset",
			preset: "unknown",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			ok := cfg.ApplyPreset(tt.preset)

			if ok != tt.wantOK {
				t.Errorf("ApplyPreset() = %v, want %v", ok, tt.wantOK)
			}

			if tt.wantOK {
				if cfg.JPEGQuality != tt.wantJPEGQ {
					t.Errorf("JPEGQuality = %d, want %d", cfg.JPEGQuality, tt.wantJPEGQ)
				}
				if cfg.WebPQuality != tt.wantWebPQ {
					t.Errorf("WebPQuality = %d, want %d", cfg.WebPQuality, tt.wantWebPQ)
				}
				if cfg.AggressivePNG != tt.wantAggPNG {
					t.Errorf("AggressivePNG = %v, want %v", cfg.AggressivePNG, tt.wantAggPNG)
				}
			}
		})
	}
}

func TestValidPresets(t *testing.T) {
	presets := ValidPresets()

	expected := []string{"web", "design"}
	if len(presets) != len(expected) {
		t.Errorf("ValidPresets() returned %d presets, want %d", len(presets), len(expected))
	}

	for _, exp := range expected {
		found := false
		for _, p := range presets {
			if p == exp {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("ValidPresets() missing %q", exp)
		}
	}
}

func TestExportPresetBundlesValid(t *testing.T) {
	for name, b := range ExportPresetBundles {
		t.Run(string(name), func(t *testing.T) {
			if b.JPEGQuality < 1 || b.JPEGQuality > 100 {
				t.Errorf("preset %s has invalid JPEGQuality: %d", name, b.JPEGQuality)
			}
			if b.WebPQuality < 1 || b.WebPQuality > 100 {
				t.Errorf("preset %s has invalid WebPQuality: %d", name, b.WebPQuality)
			}
		})
	}
}

func TestPresetWebSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyPreset("web")

	if !cfg.Metadata.Enabled {
		t.Error("web preset should enable metadata cleanup")
	}
	if cfg.Metadata.ICCMode != ICCConvertSRGB {
		t.Errorf("web preset ICCMode = %v, want convert-srgb", cfg.Metadata.ICCMode)
	}
	if !cfg.Metadata.GPSClean {
		t.Error("web preset should clean GPS data")
	}
}

func TestPresetDesignSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyPreset("design")

	if cfg.Metadata.ICCMode != ICCKeep {
		t.Errorf("design preset ICCMode = %v, want keep", cfg.Metadata.ICCMode)
	}
	if !cfg.AggressivePNG {
		t.Error("design preset should enable aggressive PNG")
	}
}
