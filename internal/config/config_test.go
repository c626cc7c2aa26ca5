package config

import "testing"

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig() returned nil")
	}

	if cfg.Mode != ModeOptimize {
		t.Errorf("Mode = %v, want %v", cfg.Mode, ModeOptimize)
	}
	if cfg.OutputMode != OutputSubfolder {
		t.Errorf("OutputMode = %v, want %v", cfg.OutputMode, OutputSubfolder)
	}
	if cfg.ExportPreset != PresetWeb {
		t.Errorf("ExportPreset = %v, want %v", cfg.ExportPreset, PresetWeb)
	}
	if !cfg.Concurrency.Auto {
		t.Error("Concurrency should default to auto")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: &Config{
				Inputs: []string{"/input"},
				Mode:   ModeOptimize,
			},
			wantErr: false,
		},
		{
			name:    "missing inputs",
			cfg:     &Config{Mode: ModeOptimize},
			wantErr: true,
		},
		{
			name: "unknown mode",
			cfg: &Config{
				Inputs: []string{"/input"},
				Mode:   "bogus",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateFillsDefaults(t *testing.T) {
	cfg := &Config{Inputs: []string{"a.jpg"}, Mode: ModeOptimize}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.OutputDir == "" {
		t.Error("Validate() should fill a default OutputDir for subfolder mode")
	}
	if cfg.DBPath == "" {
		t.Error("Validate() should fill a default DBPath")
	}
}

func TestConfig_HasAnyGlobInput(t *testing.T) {
	tests := []struct {
		inputs []string
		want   bool
	}{
		{[]string{"photos/a.jpg"}, false},
		{[]string{"photos/*.jpg"}, true},
		{[]string{"photos/img?.png"}, true},
		{[]string{"photos/[ab].png"}, true},
	}

	for _, tt := range tests {
		cfg := &Config{Inputs: tt.inputs}
		if got := cfg.HasAnyGlobInput(); got != tt.want {
			t.Errorf("HasAnyGlobInput(%v) = %v, want %v", tt.inputs, got, tt.want)
		}
	}
}

func TestConfig_ToolPath(t *testing.T) {
	cfg := &Config{ToolPaths: map[string]string{"cwebp": "/usr/local/bin/cwebp"}}

	if got := cfg.ToolPath("cwebp"); got != "/usr/local/bin/cwebp" {
		t.Errorf("ToolPath(cwebp) = %q, want /usr/local/bin/cwebp", got)
	}
	if got := cfg.ToolPath("oxipng"); got != "" {
		t.Errorf("ToolPath(oxipng) = %q, want empty", got)
	}

	var nilPaths Config
	if got := nilPaths.ToolPath("cwebp"); got != "" {
		t.Errorf("ToolPath on nil map = %q, want empty", got)
	}
}

func TestConfig_OutputParamsHashStable(t *testing.T) {
	cfg := &Config{Mode: ModeOptimize, JPEGQuality: 82, WebPQuality: 78}
	h1 := cfg.OutputParamsHash()
	h2 := cfg.OutputParamsHash()
	if h1 != h2 {
		t.Errorf("OutputParamsHash() not stable: %q vs %q", h1, h2)
	}

	cfg2 := &Config{Mode: ModeOptimize, JPEGQuality: 90, WebPQuality: 78}
	if cfg2.OutputParamsHash() == h1 {
		t.Error("OutputParamsHash() should differ when quality changes")
	}
}

func TestRunMode_String(t *testing.T) {
	tests := []struct {
		mode RunMode
		want string
	}{
		{ModeOptimize, "optimize"},
		{ModeConvertWebP, "convertWebp"},
		{ModeOptimizeAndWebP, "optimizeAndWebp"},
		{ModeSmart, "smart"},
		{ModeResponsive, "responsive"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			if got := string(tt.mode); got != tt.want {
				t.Errorf("RunMode string = %q, want %q", got, tt.want)
			}
		})
	}
}
