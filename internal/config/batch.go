package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SavedPreset is a named, user-saved configuration bundle, persisted as its
// own YAML file under the presets directory.
type SavedPreset struct {
	// Name - preset name.
	Name string
	// Path - path to the preset's YAML file.
	Path string
	// Config - the preset's settings.
	Config *FileConfig
}

// GetPresetsDir returns the directory named presets are stored under.
func GetPresetsDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "optiq", "presets"), nil
}

// EnsurePresetsDir creates the presets directory if it doesn't exist.
func EnsurePresetsDir() (string, error) {
	presetsDir, err := GetPresetsDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(presetsDir, 0755); err != nil {
		return "", fmt.Errorf("creating presets directory: %w", err)
	}
	return presetsDir, nil
}

// GetPresetPath returns the file path for a named preset.
func GetPresetPath(name string) (string, error) {
	presetsDir, err := GetPresetsDir()
	if err != nil {
		return "", err
	}

	safeName := sanitizePresetName(name)
	if safeName == "" {
		return "", fmt.Errorf("invalid preset name: %s", name)
	}

	return filepath.Join(presetsDir, safeName+".yaml"), nil
}

// sanitizePresetName strips everything but letters, digits, hyphens and
// underscores, so a preset name can never escape the presets directory.
func sanitizePresetName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// SavePreset persists cfg as a named preset, returning its file path.
func SavePreset(name string, cfg *Config) (string, error) {
	if _, err := EnsurePresetsDir(); err != nil {
		return "", err
	}

	presetPath, err := GetPresetPath(name)
	if err != nil {
		return "", err
	}

	fc := FromConfig(cfg)
	if err := fc.SaveToFile(presetPath); err != nil {
		return "", fmt.Errorf("saving preset: %w", err)
	}

	return presetPath, nil
}

// LoadPreset loads a named preset's settings.
func LoadPreset(name string) (*FileConfig, string, error) {
	presetPath, err := GetPresetPath(name)
	if err != nil {
		return nil, "", err
	}

	fc, err := LoadFromFile(presetPath)
	if err != nil {
		return nil, "", fmt.Errorf("loading preset %q: %w", name, err)
	}
	if fc == nil {
		return nil, "", fmt.Errorf("preset %q not found", name)
	}

	return fc, presetPath, nil
}

// ListPresets returns every saved preset, sorted by name.
func ListPresets() ([]SavedPreset, error) {
	presetsDir, err := GetPresetsDir()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(presetsDir); os.IsNotExist(err) {
		return []SavedPreset{}, nil
	}

	entries, err := os.ReadDir(presetsDir)
	if err != nil {
		return nil, fmt.Errorf("reading presets directory: %w", err)
	}

	var presets []SavedPreset
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		presetName := strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
		presetPath := filepath.Join(presetsDir, name)

		fc, _ := LoadFromFile(presetPath)

		presets = append(presets, SavedPreset{
			Name:   presetName,
			Path:   presetPath,
			Config: fc,
		})
	}

	sort.Slice(presets, func(i, j int) bool {
		return presets[i].Name < presets[j].Name
	})

	return presets, nil
}

// DeletePreset removes a named preset's file.
func DeletePreset(name string) error {
	presetPath, err := GetPresetPath(name)
	if err != nil {
		return err
	}

	if _, err := os.Stat(presetPath); os.IsNotExist(err) {
		return fmt.Errorf("preset %q not found", name)
	}

	if err := os.Remove(presetPath); err != nil {
		return fmt.Errorf("deleting preset: %w", err)
	}

	return nil
}

// PresetExists reports whether a named preset has been saved.
func PresetExists(name string) bool {
	presetPath, err := GetPresetPath(name)
	if err != nil {
		return false
	}

	_, err = os.Stat(presetPath)
	return err == nil
}
