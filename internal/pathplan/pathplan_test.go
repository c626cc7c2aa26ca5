package pathplan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/surfgoffdude/optiq/internal/candidate"
	"github.com/surfgoffdude/optiq/internal/config"
)

func alwaysFree(string) bool { return false }

func TestPlanSubfolderDefaultTemplate(t *testing.T) {
	in := Input{
		Path:       "/photos/trip/beach.jpg",
		CommonRoot: "/photos",
		Format:     candidate.FormatJPEG,
	}
	settings := config.EffectiveSettings{OutputMode: config.OutputSubfolder, NamingTemplate: "{name}.{ext}"}

	got, err := Plan(in, settings, alwaysFree)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	want := filepath.Join("/photos", "Optimized", "trip", "beach.jpg")
	if got != want {
		t.Errorf("Plan() = %q, want %q", got, want)
	}
}

func TestPlanReplaceKeepsOriginalPath(t *testing.T) {
	in := Input{Path: "/photos/beach.jpg", CommonRoot: "/photos", Format: candidate.FormatJPEG}
	settings := config.EffectiveSettings{OutputMode: config.OutputReplace}

	got, err := Plan(in, settings, alwaysFree)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if got != in.Path {
		t.Errorf("Plan() in replace mode = %q, want the original path %q", got, in.Path)
	}
}

func TestPlanReplaceDemotesTIFFToJPEGSidecar(t *testing.T) {
	in := Input{Path: "/photos/scan.tiff", CommonRoot: "/photos", Format: candidate.FormatJPEG, IsTIFF: true}
	settings := config.EffectiveSettings{OutputMode: config.OutputReplace}

	got, err := Plan(in, settings, alwaysFree)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	want := filepath.Join("/photos", "scan.jpg")
	if got != want {
		t.Errorf("Plan() for TIFF under replace = %q, want %q", got, want)
	}
	if got == in.Path {
		t.Errorf("Plan() must never overwrite a TIFF source in place")
	}
}

func TestPlanSubfolderResolvesCollisions(t *testing.T) {
	in := Input{Path: "/photos/beach.jpg", CommonRoot: "/photos", Format: candidate.FormatJPEG}
	settings := config.EffectiveSettings{OutputMode: config.OutputSubfolder, NamingTemplate: "{name}.{ext}"}

	taken := map[string]bool{
		filepath.Join("/photos", "Optimized", "beach.jpg"):   true,
		filepath.Join("/photos", "Optimized", "beach-2.jpg"): true,
	}
	exists := func(p string) bool { return taken[p] }

	got, err := Plan(in, settings, exists)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	want := filepath.Join("/photos", "Optimized", "beach-3.jpg")
	if got != want {
		t.Errorf("Plan() = %q, want %q", got, want)
	}
}

func TestPlanSubfolderTemplateWithDimensions(t *testing.T) {
	in := Input{
		Path:       "/photos/beach.jpg",
		CommonRoot: "/photos",
		Format:     candidate.FormatWebP,
		Width:      800,
		Height:     600,
	}
	settings := config.EffectiveSettings{OutputMode: config.OutputSubfolder, NamingTemplate: "{name}-{width}x{height}.{ext}"}

	got, err := Plan(in, settings, alwaysFree)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	want := filepath.Join("/photos", "Optimized", "beach-800x600.webp")
	if got != want {
		t.Errorf("Plan() = %q, want %q", got, want)
	}
}

func TestCommonRootSharedParent(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	got, err := CommonRoot([]string{filepath.Join(root, "a"), filepath.Join(root, "a", "b")})
	if err != nil {
		t.Fatalf("CommonRoot() error = %v", err)
	}
	want := filepath.Join(root, "a")
	if got != want {
		t.Errorf("CommonRoot() = %q, want %q", got, want)
	}
}

func TestCommonRootSinglePath(t *testing.T) {
	root := t.TempDir()
	got, err := CommonRoot([]string{root})
	if err != nil {
		t.Fatalf("CommonRoot() error = %v", err)
	}
	if got != root {
		t.Errorf("CommonRoot() = %q, want %q", got, root)
	}
}

func TestCommonRootNoPaths(t *testing.T) {
	if _, err := CommonRoot(nil); err == nil {
		t.Errorf("CommonRoot(nil) error = nil, want an error")
	}
}
