// Package atomicio writes pipeline output so that readers of the target
// path always see either the pre-existing file or the complete new one,
// never a partial write, with an optional pre-rename backup copy.
// Generalizes the temp-file-then-rename block already in
// converter/vips.go's Convert (tmpPath := dstBase + ".converting" + ext,
// validate, os.Rename) into a standalone writer shared by every pipeline
// stage, with the backup-copy step from spec.md §4.6 added ahead of the
// rename when a backup directory is supplied.
package atomicio

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/surfgoffdude/optiq/internal/imageio"
)

// maxBaseNameLen truncates an over-long temp file base name to stay well
// under the common 255-byte path-component limit, per spec.md §8's
// "very long filenames" boundary behavior.
const maxBaseNameLen = 80

// Options configures one atomic write.
type Options struct {
	// ExpectedFormat, if non-empty, makes Write decode the temp file and
	// confirm it matches before renaming over target.
	ExpectedFormat imageio.Format
	// BackupDir, if set, makes Write copy any pre-existing target file to
	// BackupDir before the rename, returning the backup path.
	BackupDir string
}

// Result reports what Write actually did.
type Result struct {
	BackedUp   bool
	BackupPath string
}

// Write writes data to target atomically: temp file in target's own
// directory, optional format validation, optional backup of any
// pre-existing target, then rename over target. On any failure the temp
// file is unlinked and the original target is left untouched.
func Write(target string, data []byte, opts Options) (Result, error) {
	var res Result

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return res, fmt.Errorf("creating parent directory %s: %w", dir, err)
	}

	tmpPath := tempPath(target)

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return res, fmt.Errorf("writing temp file %s: %w", tmpPath, err)
	}

	if err := validate(tmpPath, opts.ExpectedFormat); err != nil {
		_ = os.Remove(tmpPath)
		return res, err
	}

	if opts.BackupDir != "" {
		if backedUp, backupPath, err := backupExisting(target, opts.BackupDir); err != nil {
			_ = os.Remove(tmpPath)
			return res, fmt.Errorf("backing up existing %s: %w", target, err)
		} else if backedUp {
			res.BackedUp = true
			res.BackupPath = backupPath
		}
	}

	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return res, fmt.Errorf("renaming %s -> %s: %w", tmpPath, target, err)
	}

	return res, nil
}

// tempPath derives a same-directory temp name so the final rename stays
// atomic (same filesystem), truncating an over-long base name per
// spec.md §8.
func tempPath(target string) string {
	dir := filepath.Dir(target)
	base := filepath.Base(target)
	if len(base) > maxBaseNameLen {
		base = base[:maxBaseNameLen]
	}
	suffix := fmt.Sprintf(".%d.%d.tmp", time.Now().UnixNano(), rand.Uint32())
	return filepath.Join(dir, base+suffix)
}

// validate confirms tmpPath is non-empty and, if expectedFormat is set,
// that it decodes as that format.
func validate(tmpPath string, expectedFormat imageio.Format) error {
	info, err := os.Stat(tmpPath)
	if err != nil {
		return fmt.Errorf("stat temp file: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("temp file %s is empty", tmpPath)
	}

	if expectedFormat == "" {
		return nil
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("reading temp file for validation: %w", err)
	}
	decoded, err := imageio.Decode(data)
	if err != nil {
		return fmt.Errorf("validating written %s: decode failed: %w", expectedFormat, err)
	}
	if decoded.Format != expectedFormat {
		return fmt.Errorf("validating written file: expected %s, decoded as %s", expectedFormat, decoded.Format)
	}
	return nil
}

// backupExisting copies target into backupDir before it gets overwritten,
// using a path-encoded name so backups from nested directories never
// collide. Returns false, "", nil if target doesn't exist yet.
func backupExisting(target, backupDir string) (bool, string, error) {
	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return false, "", nil
		}
		return false, "", err
	}

	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return false, "", err
	}

	backupPath := filepath.Join(backupDir, EncodePathAsName(target))
	if err := copyFile(target, backupPath); err != nil {
		return false, "", err
	}
	return true, backupPath, nil
}

// EncodePathAsName turns an absolute path into a single flat filename
// safe to place in a shared backup directory, preserving enough of the
// original name to be recognizable (basename plus a short path hash).
func EncodePathAsName(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	base := filepath.Base(abs)
	dirHash := shortHash(filepath.Dir(abs))
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s.%s%s.bak", stem, dirHash, ext)
}

func shortHash(s string) string {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return fmt.Sprintf("%08x", h)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".copying"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
