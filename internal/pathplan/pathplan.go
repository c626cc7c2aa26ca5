// Package pathplan derives an output path from an input path, the run's
// common root, output mode, and naming template. Generalizes
// converter.BuildDstPath/BuildDstPathDedup's "relative-path-under-output-
// dir, flat vs tree modes" shape into spec.md §4.7's fuller rule set:
// subfolder-under-Optimized/ vs replace, naming-template substitution,
// the @2x scale heuristic, TIFF->jpg renaming, and -2/-3 collision
// suffixes.
package pathplan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/surfgoffdude/optiq/internal/candidate"
	"github.com/surfgoffdude/optiq/internal/config"
)

// Input bundles what Plan needs to know about one source file.
type Input struct {
	Path       string
	CommonRoot string
	Width      int
	Height     int
	Format     candidate.Format // the output format that will actually be written
	IsTIFF     bool              // true when the source decoded as TIFF (never re-encoded as TIFF)
}

// Plan computes the output path for in, under settings' output mode and
// naming template. exists is used to resolve collisions when mode is
// subfolder; it should report whether a candidate path is already taken
// (typically os.Stat-backed, swappable in tests).
func Plan(in Input, settings config.EffectiveSettings, exists func(string) bool) (string, error) {
	switch settings.OutputMode {
	case config.OutputReplace:
		return planReplace(in)
	default:
		return planSubfolder(in, settings, exists)
	}
}

// planReplace overwrites the original in place, except for TIFF inputs:
// per spec.md §4.7/§9's resolved Open Question, TIFF is never overwritten
// (its extension would have to change to .jpg, which "replace" can't do
// without deleting the original under a different name); TIFF inputs are
// demoted to subfolder-style behavior even under replace mode.
func planReplace(in Input) (string, error) {
	if in.IsTIFF {
		ext := outputExt(in.Format, in.IsTIFF)
		dir := filepath.Dir(in.Path)
		base := strings.TrimSuffix(filepath.Base(in.Path), filepath.Ext(in.Path))
		return filepath.Join(dir, base+ext), nil
	}
	return in.Path, nil
}

// planSubfolder mirrors the relative path under <common_root>/Optimized/,
// applying the naming template to the basename and resolving collisions
// with -2, -3, ... suffixes.
func planSubfolder(in Input, settings config.EffectiveSettings, exists func(string) bool) (string, error) {
	rel, err := filepath.Rel(in.CommonRoot, in.Path)
	if err != nil {
		rel = filepath.Base(in.Path)
	}

	relDir := filepath.Dir(rel)
	name, ext := renderName(in, settings.NamingTemplate)

	outDir := filepath.Join(in.CommonRoot, "Optimized")
	if relDir != "." {
		outDir = filepath.Join(outDir, relDir)
	}

	candidatePath := filepath.Join(outDir, name+ext)
	if exists == nil {
		exists = defaultExists
	}
	return resolveCollision(candidatePath, exists), nil
}

func defaultExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// resolveCollision appends -2, -3, ... to the base name until it finds a
// path exists doesn't report as taken.
func resolveCollision(path string, exists func(string) bool) string {
	if !exists(path) {
		return path
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)

	for n := 2; ; n++ {
		candidatePath := filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, n, ext))
		if !exists(candidatePath) {
			return candidatePath
		}
	}
}

// templateVarRe matches {name}, {ext}, {width}, {height}, {scale},
// {format}, {hash}.
var templateVarRe = regexp.MustCompile(`\{(name|ext|width|height|scale|format|hash)\}`)

// renderName substitutes naming-template variables against in, returning
// the rendered base name (without a leading dot) and the extension
// (with a leading dot) the file should actually carry.
func renderName(in Input, tmpl string) (name, ext string) {
	if tmpl == "" {
		tmpl = "{name}.{ext}"
	}

	srcBase := filepath.Base(in.Path)
	srcExt := filepath.Ext(srcBase)
	srcStem := strings.TrimSuffix(srcBase, srcExt)
	outExt := outputExt(in.Format, in.IsTIFF)
	outExtNoDot := strings.TrimPrefix(outExt, ".")

	rendered := templateVarRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		switch m {
		case "{name}":
			return srcStem
		case "{ext}":
			return outExtNoDot
		case "{width}":
			return strconv.Itoa(in.Width)
		case "{height}":
			return strconv.Itoa(in.Height)
		case "{scale}":
			return scaleSuffix(srcBase, in.Width, in.Height)
		case "{format}":
			return string(in.Format)
		case "{hash}":
			return shortContentHash(in.Path)
		default:
			return m
		}
	})

	// The template is expected to include {ext} as its own segment (e.g.
	// "{name}.{ext}"); if it doesn't, the rendered string has no
	// extension and outExt is appended so the file is still openable.
	if strings.HasSuffix(rendered, "."+outExtNoDot) || strings.Contains(tmpl, "{ext}") {
		name = strings.TrimSuffix(rendered, "."+outExtNoDot)
		ext = outExt
		return name, ext
	}
	return rendered, outExt
}

// scaleSuffix implements spec.md §4.7's best-effort @2x heuristic: a
// source filename already tagged "*@2x.*", or an image whose width and
// height are both even, is treated as a 2x asset.
func scaleSuffix(srcBase string, w, h int) string {
	if strings.Contains(srcBase, "@2x.") {
		return "@2x"
	}
	if w > 0 && h > 0 && w%2 == 0 && h%2 == 0 {
		return "@2x"
	}
	return ""
}

// outputExt derives the extension the produced format should carry.
// jpeg -> .jpg; TIFF inputs renamed to .jpg per spec.md §4.7; everything
// else takes its format's own name.
func outputExt(format candidate.Format, isTIFF bool) string {
	if isTIFF {
		return ".jpg"
	}
	switch format {
	case candidate.FormatJPEG:
		return ".jpg"
	case candidate.FormatPNG:
		return ".png"
	case candidate.FormatWebP:
		return ".webp"
	default:
		return "." + string(format)
	}
}

func shortContentHash(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return "00000000"
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, 1<<20)
	n, _ := f.Read(buf)
	h.Write(buf[:n])
	return hex.EncodeToString(h.Sum(nil))[:8]
}

// CommonRoot returns the longest directory prefix shared by every path in
// paths, per spec.md's glossary. Paths are cleaned and made absolute
// first so relative and mixed-style inputs still compare correctly.
func CommonRoot(paths []string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("no paths given")
	}

	abs := make([]string, len(paths))
	for i, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("resolving absolute path for %s: %w", p, err)
		}
		abs[i] = a
	}

	if len(abs) == 1 {
		if info, err := os.Stat(abs[0]); err == nil && info.IsDir() {
			return abs[0], nil
		}
		return filepath.Dir(abs[0]), nil
	}

	segments := strings.Split(filepath.ToSlash(abs[0]), "/")
	if isFile(abs[0]) {
		segments = segments[:len(segments)-1]
	}

	for _, p := range abs[1:] {
		other := strings.Split(filepath.ToSlash(p), "/")
		if isFile(p) {
			other = other[:len(other)-1]
		}
		segments = commonPrefix(segments, other)
	}

	if len(segments) == 0 {
		return "/", nil
	}
	return filepath.FromSlash(strings.Join(segments, "/")), nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func commonPrefix(a, b []string) []string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}
