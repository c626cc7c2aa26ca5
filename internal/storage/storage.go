// Package storage persists run history, the processed-file fingerprint
// index, last-run backup metadata, and watch-folder configuration in a
// single SQLite database. Grounded on the teacher's storage.go: same
// WAL/busy-timeout DSN, same single-writer-connection pool sizing, same
// TryStartJob/FinalizeJobOK/FinalizeJobFailed idempotency shape, expanded
// per SPEC_FULL.md §3's storage mapping into four tables instead of one.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage wraps the SQLite connection every pipeline stage that needs
// durable state shares.
type Storage struct {
	db *sql.DB
}

// New opens (creating if necessary) the database at dbPath and runs every
// pending migration.
func New(dbPath string) (*Storage, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory %s: %w", dbDir, err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// SQLite has one writer at a time; a single pooled connection avoids
	// SQLITE_BUSY races between goroutines instead of leaning on
	// busy_timeout alone, same choice the teacher's storage.go makes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Storage) migrate() error {
	for i, m := range Migrations() {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// TryStartJob inserts a new in-progress job row for info, or reports why an
// existing row means this file should be skipped. The unique index on
// (src_path, src_size, src_mtime, out_params_hash) is what actually
// enforces idempotency; this method just interprets the resulting conflict.
func (s *Storage) TryStartJob(info FileInfo, outParamsHash string) (*StartJobResult, error) {
	now := time.Now().Unix()

	result, err := s.db.Exec(
		`INSERT INTO jobs (src_path, src_size, src_mtime, out_params_hash, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		info.Path, info.Size, info.Mtime, outParamsHash, StatusInProgress, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return s.checkExistingJob(info, outParamsHash)
		}
		return nil, fmt.Errorf("inserting job row: %w", err)
	}

	jobID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading inserted job id: %w", err)
	}
	return &StartJobResult{Started: true, JobID: jobID}, nil
}

func (s *Storage) checkExistingJob(info FileInfo, outParamsHash string) (*StartJobResult, error) {
	var j Job
	err := s.db.QueryRow(
		`SELECT id, status, dst_path, error FROM jobs
		 WHERE src_path = ? AND src_size = ? AND src_mtime = ? AND out_params_hash = ?
		 LIMIT 1`,
		info.Path, info.Size, info.Mtime, outParamsHash,
	).Scan(&j.ID, &j.Status, &j.DstPath, &j.Error)

	if err != nil {
		return &StartJobResult{Started: false, SkipReason: "already recorded, could not load details"}, nil
	}

	switch j.Status {
	case StatusOK:
		dst := ""
		if j.DstPath != nil {
			dst = *j.DstPath
		}
		return &StartJobResult{Started: false, SkipReason: "already processed", ExistingDstPath: dst}, nil
	case StatusInProgress:
		return &StartJobResult{Started: false, SkipReason: "already in progress"}, nil
	case StatusFailed, StatusSkipped:
		if _, err := s.db.Exec("DELETE FROM jobs WHERE id = ?", j.ID); err != nil {
			return nil, fmt.Errorf("clearing previous %s job: %w", j.Status, err)
		}
		return s.TryStartJob(info, outParamsHash)
	default:
		return &StartJobResult{Started: false, SkipReason: "unrecognized prior status"}, nil
	}
}

// FinalizeJobOK records a successful terminal transition with the
// pipeline's quality telemetry, used by the stats surface and by future
// runs wanting to know what quality a file last converged to.
func (s *Storage) FinalizeJobOK(jobID int64, dstPath string, mssim, bandingRisk float64, format, qualityLabel string) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET status = ?, dst_path = ?, finished_at = ?,
		 mssim = ?, banding_risk = ?, candidate_format = ?, quality_label = ?
		 WHERE id = ?`,
		StatusOK, dstPath, time.Now().Unix(), mssim, bandingRisk, format, qualityLabel, jobID,
	)
	if err != nil {
		return fmt.Errorf("finalizing job %d as ok: %w", jobID, err)
	}
	return nil
}

// FinalizeJobFailed records a failed terminal transition.
func (s *Storage) FinalizeJobFailed(jobID int64, errMsg string) error {
	_, err := s.db.Exec(
		"UPDATE jobs SET status = ?, error = ?, finished_at = ? WHERE id = ?",
		StatusFailed, errMsg, time.Now().Unix(), jobID,
	)
	if err != nil {
		return fmt.Errorf("finalizing job %d as failed: %w", jobID, err)
	}
	return nil
}

// FinalizeJobSkipped records a skip reached mid-run (no candidate cleared
// the quality threshold), distinct from the pre-run TryStartJob skip.
func (s *Storage) FinalizeJobSkipped(jobID int64, reason string) error {
	_, err := s.db.Exec(
		"UPDATE jobs SET status = ?, error = ?, finished_at = ? WHERE id = ?",
		StatusSkipped, reason, time.Now().Unix(), jobID,
	)
	if err != nil {
		return fmt.Errorf("finalizing job %d as skipped: %w", jobID, err)
	}
	return nil
}

// UpdateProgressStage records a running job's current phase, for a stats
// surface or a watch-mode status endpoint to poll.
func (s *Storage) UpdateProgressStage(jobID int64, stage string) error {
	_, err := s.db.Exec("UPDATE jobs SET progress_stage = ? WHERE id = ?", stage, jobID)
	return err
}

// GetStats summarizes jobs by terminal status, for the "optiq stats"
// subcommand.
func (s *Storage) GetStats() (total, ok, failed, skipped, inProgress int64, err error) {
	if err = s.db.QueryRow("SELECT COUNT(*) FROM jobs").Scan(&total); err != nil {
		return
	}
	_ = s.db.QueryRow("SELECT COUNT(*) FROM jobs WHERE status = ?", StatusOK).Scan(&ok)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM jobs WHERE status = ?", StatusFailed).Scan(&failed)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM jobs WHERE status = ?", StatusSkipped).Scan(&skipped)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM jobs WHERE status = ?", StatusInProgress).Scan(&inProgress)
	return
}

// CleanupInProgress marks any job left in_progress (from a prior run that
// crashed or was killed) as failed, so it is retried on the next run
// instead of silently wedging the idempotency index forever.
func (s *Storage) CleanupInProgress() (int64, error) {
	result, err := s.db.Exec(
		"UPDATE jobs SET status = ?, error = ? WHERE status = ?",
		StatusFailed, "interrupted by a previous run", StatusInProgress,
	)
	if err != nil {
		return 0, fmt.Errorf("cleaning up in-progress jobs: %w", err)
	}
	return result.RowsAffected()
}

// LookupProcessed reports whether path's (size, mtime) pair already has a
// processed-index entry, for the Watch Service's de-duplication gate.
func (s *Storage) LookupProcessed(path string, size, mtime int64) (bool, error) {
	var dbSize, dbMtime int64
	err := s.db.QueryRow(
		"SELECT size, mtime FROM processed_index WHERE path = ?", path,
	).Scan(&dbSize, &dbMtime)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up processed index for %s: %w", path, err)
	}
	return dbSize == size && dbMtime == mtime, nil
}

// MarkProcessed upserts path's processed-index entry.
func (s *Storage) MarkProcessed(path string, size, mtime int64, partialHash string) error {
	_, err := s.db.Exec(
		`INSERT INTO processed_index (path, size, mtime, partial_hash, processed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET size=excluded.size, mtime=excluded.mtime,
		 partial_hash=excluded.partial_hash, processed_at=excluded.processed_at`,
		path, size, mtime, partialHash, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("marking %s processed: %w", path, err)
	}
	return nil
}

// SaveLastRun replaces the single last_run row and its backup_records,
// giving Restore everything it needs to reverse a run's writes.
func (s *Storage) SaveLastRun(runID, backupDir, logPath string, records []BackupRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning last-run transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT INTO last_run (id, run_id, backup_dir, log_path, finished_at)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET run_id=excluded.run_id, backup_dir=excluded.backup_dir,
		 log_path=excluded.log_path, finished_at=excluded.finished_at`,
		runID, backupDir, logPath, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("writing last_run row: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM backup_records"); err != nil {
		return fmt.Errorf("clearing previous backup_records: %w", err)
	}
	for _, r := range records {
		if _, err := tx.Exec(
			`INSERT INTO backup_records (original_path, backup_path, written_path)
			 VALUES (?, ?, ?)`,
			r.OriginalPath, r.BackupPath, r.WrittenPath,
		); err != nil {
			return fmt.Errorf("writing backup record for %s: %w", r.OriginalPath, err)
		}
	}

	return tx.Commit()
}

// LoadLastRun returns the last saved run's metadata and its backup records,
// or ok=false if no run has been recorded yet.
func (s *Storage) LoadLastRun() (run LastRun, records []BackupRecord, ok bool, err error) {
	scanErr := s.db.QueryRow(
		"SELECT run_id, backup_dir, log_path, finished_at FROM last_run WHERE id = 1",
	).Scan(&run.RunID, &run.BackupDir, &run.LogPath, &run.FinishedAt)
	if errors.Is(scanErr, sql.ErrNoRows) {
		return LastRun{}, nil, false, nil
	}
	if scanErr != nil {
		return LastRun{}, nil, false, fmt.Errorf("loading last_run: %w", scanErr)
	}

	rows, err := s.db.Query("SELECT original_path, backup_path, written_path FROM backup_records")
	if err != nil {
		return LastRun{}, nil, false, fmt.Errorf("loading backup_records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var r BackupRecord
		if err := rows.Scan(&r.OriginalPath, &r.BackupPath, &r.WrittenPath); err != nil {
			return LastRun{}, nil, false, fmt.Errorf("scanning backup record: %w", err)
		}
		records = append(records, r)
	}
	return run, records, true, rows.Err()
}

// UpsertWatchFolder adds or updates a watched folder's configuration.
func (s *Storage) UpsertWatchFolder(path string, enabled bool, overrideSettingsJSON string) error {
	_, err := s.db.Exec(
		`INSERT INTO watch_folders (path, enabled, override_settings_json)
		 VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET enabled=excluded.enabled,
		 override_settings_json=excluded.override_settings_json`,
		path, enabled, overrideSettingsJSON,
	)
	if err != nil {
		return fmt.Errorf("upserting watch folder %s: %w", path, err)
	}
	return nil
}

// RemoveWatchFolder deletes a watched folder's configuration.
func (s *Storage) RemoveWatchFolder(path string) error {
	_, err := s.db.Exec("DELETE FROM watch_folders WHERE path = ?", path)
	return err
}

// ListWatchFolders returns every configured watch folder.
func (s *Storage) ListWatchFolders() ([]WatchFolder, error) {
	rows, err := s.db.Query("SELECT path, enabled, override_settings_json FROM watch_folders")
	if err != nil {
		return nil, fmt.Errorf("listing watch folders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []WatchFolder
	for rows.Next() {
		var w WatchFolder
		if err := rows.Scan(&w.Path, &w.Enabled, &w.OverrideSettingsJSON); err != nil {
			return nil, fmt.Errorf("scanning watch folder: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// SetWatchFolderEnabled toggles one folder's enabled flag.
func (s *Storage) SetWatchFolderEnabled(path string, enabled bool) error {
	res, err := s.db.Exec("UPDATE watch_folders SET enabled = ? WHERE path = ?", enabled, path)
	if err != nil {
		return fmt.Errorf("toggling watch folder %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("no watch folder configured for %s", path)
	}
	return err
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}
