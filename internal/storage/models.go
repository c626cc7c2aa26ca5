// Package storage's models mirror the teacher's Job/FileInfo/JobResult/
// StartJobResult shapes, extended per SPEC_FULL.md §3 with the quality
// telemetry columns a perceptual pipeline needs and the three additional
// tables (processed_index, last_run/backup_records, watch_folders) a
// single-table converter never had to track.
package storage

import "time"

// JobStatus is a persisted job row's terminal/non-terminal status.
type JobStatus string

const (
	StatusInProgress JobStatus = "in_progress"
	StatusOK         JobStatus = "ok"
	StatusFailed     JobStatus = "failed"
	StatusSkipped    JobStatus = "skipped"
)

// Job is one persisted row of the jobs table.
type Job struct {
	ID              int64
	SrcPath         string
	SrcSize         int64
	SrcMtime        int64
	OutParamsHash   string
	DstPath         *string
	Status          JobStatus
	ProgressStage   string
	MSSIM           float64
	BandingRisk     float64
	CandidateFormat string
	QualityLabel    string
	Error           *string
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

// FileInfo is the fingerprint TryStartJob checks for idempotency.
type FileInfo struct {
	Path  string
	Size  int64
	Mtime int64
}

// StartJobResult is TryStartJob's outcome.
type StartJobResult struct {
	Started         bool
	JobID           int64
	SkipReason      string
	ExistingDstPath string
}

// BackupRecord is one file's pre-run backup, persisted so Restore can undo
// a run's writes even after the process that made them has exited.
type BackupRecord struct {
	OriginalPath string
	BackupPath   string
	WrittenPath  string
}

// LastRun is the single-row summary of the most recently completed run,
// the anchor Restore reads to find its BackupRecords.
type LastRun struct {
	RunID      string
	BackupDir  string
	LogPath    string
	FinishedAt int64
}

// WatchFolder is one row of the watch_folders table.
type WatchFolder struct {
	Path                 string
	Enabled              bool
	OverrideSettingsJSON string
}
