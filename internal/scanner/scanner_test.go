package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestHasSupportedExtension(t *testing.T) {
	cases := map[string]bool{
		"a.jpg": true, "a.JPEG": true, "a.png": true, "a.webp": true,
		"a.tif": true, "a.tiff": true, "a.gif": false, "a.bmp": false,
	}
	for name, want := range cases {
		if got := HasSupportedExtension(name); got != want {
			t.Errorf("HasSupportedExtension(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestIsIgnoredFile(t *testing.T) {
	cases := map[string]bool{
		"photo.jpg":        false,
		".DS_Store":        true,
		"Thumbs.db":        true,
		".hidden.jpg":      true,
		"~backup.jpg":      true,
		"download.jpg.tmp": true,
		"file.crdownload":  true,
	}
	for name, want := range cases {
		if got := IsIgnoredFile(name); got != want {
			t.Errorf("IsIgnoredFile(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestScanSkipsIgnoredDirsAndFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "photo.jpg"))
	writeFile(t, filepath.Join(root, "node_modules", "ignored.jpg"))
	writeFile(t, filepath.Join(root, ".git", "ignored.jpg"))
	writeFile(t, filepath.Join(root, "Optimized", "already.jpg"))
	writeFile(t, filepath.Join(root, ".DS_Store"))
	writeFile(t, filepath.Join(root, "notes.txt"))

	s := New([]string{root})
	files, errs := s.Scan(context.Background())

	var got []string
	for f := range files {
		got = append(got, f.RelPath)
	}
	if err := <-errs; err != nil {
		t.Fatalf("scan error: %v", err)
	}

	if len(got) != 1 || got[0] != "photo.jpg" {
		t.Errorf("scanned files = %v, want [photo.jpg]", got)
	}
}

func TestCountFilesMatchesScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.jpg"))
	writeFile(t, filepath.Join(root, "b.png"))
	writeFile(t, filepath.Join(root, "node_modules", "c.jpg"))

	s := New([]string{root})
	n, err := s.CountFiles()
	if err != nil {
		t.Fatalf("CountFiles: %v", err)
	}
	if n != 2 {
		t.Errorf("CountFiles = %d, want 2", n)
	}
}
