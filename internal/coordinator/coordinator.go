// Package coordinator drives one end-to-end run: resolve the external
// tools, scan the inputs, dispatch a worker pool, and persist enough state
// that a later "optiq restore" can undo it. Combines cli/root.go's
// orchestration sequence (find tool -> open storage -> cleanup in-progress
// -> scan -> pool -> summarize) with the run-level bookkeeping
// (common root, backup dir, last-run persistence) the teacher's single-shot
// CLI never needed because it had no restore feature.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/surfgoffdude/optiq/internal/candidate"
	"github.com/surfgoffdude/optiq/internal/config"
	"github.com/surfgoffdude/optiq/internal/job"
	"github.com/surfgoffdude/optiq/internal/pathplan"
	"github.com/surfgoffdude/optiq/internal/progress"
	"github.com/surfgoffdude/optiq/internal/runid"
	"github.com/surfgoffdude/optiq/internal/scanner"
	"github.com/surfgoffdude/optiq/internal/storage"
	"github.com/surfgoffdude/optiq/internal/toolfinder"
	"github.com/surfgoffdude/optiq/internal/toolrunner"
	"github.com/surfgoffdude/optiq/internal/worker"
)

// requiredTools are the external binaries every run mode needs at least
// one of; resolveRunners locates all four so the Candidate Builder can pick
// whichever the target format needs without a second round of discovery.
var requiredTools = []string{"cjpeg", "pngquant", "oxipng", "cwebp"}

// RunSummary reports what one StartRun call did.
type RunSummary struct {
	RunID     string
	Stats     worker.Stats
	Duration  time.Duration
	BackupDir string
	LogPath   string
	Events    []job.Event
}

// runLog is the structured JSON document persisted to
// <common_root>/.optiq-logs/<run_id>/optimise-log.json, per spec.md §6.
type runLog struct {
	RunID      string                    `json:"run_id"`
	Mode       config.RunMode            `json:"mode"`
	Settings   config.EffectiveSettings  `json:"settings"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
	Cancelled  bool                      `json:"cancelled"`
	Summary    worker.Stats              `json:"summary"`
	Entries    []runLogEntry             `json:"entries"`
}

// runLogEntry is one file's outcome within a runLog.
type runLogEntry struct {
	Path        string  `json:"path"`
	Status      string  `json:"status"`
	OutputPath  string  `json:"output_path,omitempty"`
	SkipReason  string  `json:"skip_reason,omitempty"`
	Strategy    string  `json:"strategy,omitempty"`
	Quality     int     `json:"quality,omitempty"`
	MSSIM       float64 `json:"mssim,omitempty"`
	EdgeSSIM    float64 `json:"edge_ssim,omitempty"`
	InputBytes  int64   `json:"input_bytes,omitempty"`
	OutputBytes int64   `json:"output_bytes,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// buildRunLog assembles the structured run-log document for one StartRun
// call, per spec.md §4.11 step 6.
func buildRunLog(runID string, mode config.RunMode, settings config.EffectiveSettings, startedAt, finishedAt time.Time, cancelled bool, stats worker.Stats, events []job.Event) runLog {
	entries := make([]runLogEntry, 0, len(events))
	for _, e := range events {
		entry := runLogEntry{
			Path:        e.InputPath,
			Status:      string(e.Status),
			OutputPath:  e.Result.OutputPath,
			SkipReason:  e.Result.SkipReason,
			Strategy:    e.Result.Strategy,
			Quality:     e.Result.Quality,
			MSSIM:       e.Result.MSSIM,
			EdgeSSIM:    e.Result.EdgeSSIM,
			InputBytes:  e.Result.InputBytes,
			OutputBytes: e.Result.OutputBytes,
		}
		if e.Result.Err != nil {
			entry.Error = e.Result.Err.Error()
		}
		entries = append(entries, entry)
	}
	return runLog{
		RunID:      runID,
		Mode:       mode,
		Settings:   settings,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Cancelled:  cancelled,
		Summary:    stats,
		Entries:    entries,
	}
}

// writeRunLog marshals log as pretty-printed JSON and writes it to path.
func writeRunLog(path string, log runLog) error {
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run log: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing run log: %w", err)
	}
	return nil
}

// Coordinator owns the storage handle and configuration for a sequence of
// runs against the same database.
type Coordinator struct {
	Config  *config.Config
	Storage *storage.Storage

	// Progress, if non-nil, overrides the bar StartRun would otherwise
	// build from Config.NoProgress — tests and non-interactive callers can
	// supply a disabled bar this way without touching Config.
	Progress *progress.Bar
}

// New constructs a Coordinator. cfg and store must already be valid;
// callers run cfg.Validate() and storage.New themselves so errors surface
// before any filesystem work starts.
func New(cfg *config.Config, store *storage.Storage) *Coordinator {
	return &Coordinator{Config: cfg, Storage: store}
}

// StartRun executes one full pass over cfg.Inputs under ctx. ctx
// cancellation (typically wired to SIGINT/SIGTERM by the caller, the way
// cli/root.go's signal handler does) stops the scan and flips the worker
// pool's cooperative cancellation flag; jobs already past their writing
// phase still complete.
func (c *Coordinator) StartRun(ctx context.Context) (*RunSummary, error) {
	start := time.Now()

	if err := c.Config.Validate(); err != nil {
		return nil, err
	}
	settings := c.Config.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	if cleaned, err := c.Storage.CleanupInProgress(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not clean up in-progress jobs: %v\n", err)
	} else if cleaned > 0 {
		fmt.Printf("cleaned up %d interrupted jobs from a previous run\n", cleaned)
	}

	runners, err := c.resolveRunners()
	if err != nil {
		return nil, err
	}

	commonRoot, err := pathplan.CommonRoot(c.Config.Inputs)
	if err != nil {
		return nil, fmt.Errorf("resolving common root: %w", err)
	}

	runID := runid.New()
	logDir := filepath.Join(commonRoot, ".optiq-logs", runID)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("creating run log directory: %w", err)
	}
	logPath := filepath.Join(logDir, "optimise-log.json")

	backupDir := ""
	if settings.OutputMode == config.OutputReplace {
		backupDir = filepath.Join(commonRoot, ".optiq-backup", runID)
	}

	sc := scanner.New(c.Config.Inputs)

	bar := c.Progress
	if bar == nil {
		total, countErr := sc.CountFiles()
		if countErr != nil {
			total = 0
		}
		bar = progress.New(progress.Options{
			Total:       total,
			Description: "optimizing",
			Disabled:    c.Config.NoProgress,
		})
	}

	files, errs := sc.Scan(ctx)

	builder := candidate.NewBuilder(runners, settings.Speed)
	pipeline := worker.NewPipeline(
		c.Config.Mode, settings, runners, builder, c.Storage,
		commonRoot, backupDir, c.Config.OutputParamsHash(), c.Config.DryRun,
	)
	pool := worker.New(pipeline, settings.Concurrency.Resolve(), c.Config.MaxMemoryMB, c.Config.Verbose)
	pool.SetProgressBar(bar)

	cancelCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		pool.Cancel()
	}()

	stats := pool.Process(cancelCtx, files, errs)
	bar.Finish()
	finishedAt := time.Now()

	events := pool.Events()
	records := backupRecordsFromEvents(events)
	if err := c.Storage.SaveLastRun(runID, backupDir, logPath, records); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not persist last-run state: %v\n", err)
	}

	doc := buildRunLog(runID, c.Config.Mode, settings, start, finishedAt, ctx.Err() != nil, stats, events)
	if err := writeRunLog(logPath, doc); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not write run log: %v\n", err)
	}

	return &RunSummary{
		RunID:     runID,
		Stats:     stats,
		Duration:  time.Since(start),
		BackupDir: backupDir,
		LogPath:   logPath,
		Events:    events,
	}, nil
}

// CanRestoreLastRun reports whether a previous run left state this
// Coordinator's database knows how to undo.
func (c *Coordinator) CanRestoreLastRun() (bool, error) {
	_, _, ok, err := c.Storage.LoadLastRun()
	return ok, err
}

// RestoreLastRun copies every backup_records entry from the most recent run
// back over the file it replaced, restoring the pre-run state. Files with no
// backup (new outputs the run created from scratch) are deleted instead,
// since "restore" means "as if the run never happened."
func (c *Coordinator) RestoreLastRun() (restored, removed int, err error) {
	run, records, ok, err := c.Storage.LoadLastRun()
	if err != nil {
		return 0, 0, fmt.Errorf("loading last run state: %w", err)
	}
	if !ok {
		return 0, 0, fmt.Errorf("no run to restore")
	}
	_ = run

	for _, rec := range records {
		if rec.BackupPath != "" {
			if err := copyFile(rec.BackupPath, rec.OriginalPath); err != nil {
				return restored, removed, fmt.Errorf("restoring %s: %w", rec.OriginalPath, err)
			}
			restored++
			continue
		}
		if rec.WrittenPath != "" {
			if err := os.Remove(rec.WrittenPath); err != nil && !os.IsNotExist(err) {
				return restored, removed, fmt.Errorf("removing %s: %w", rec.WrittenPath, err)
			}
			removed++
		}
	}

	return restored, removed, nil
}

// ScanPaths counts how many eligible files cfg.Inputs currently contains,
// without processing any of them — the backing implementation for `optiq
// scan` and for a UI's upfront file count.
func (c *Coordinator) ScanPaths() (int64, error) {
	return scanner.New(c.Config.Inputs).CountFiles()
}

// BuildDispatcher resolves the external tools and settings once, then
// returns a function that runs one file through the same pipeline StartRun
// uses — the Watch Service's bridge back into the standard pipeline for
// each file it decides is stable and not-yet-processed.
func (c *Coordinator) BuildDispatcher(commonRoot string) (func(ctx context.Context, f scanner.File) job.Event, error) {
	settings := c.Config.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	runners, err := c.resolveRunners()
	if err != nil {
		return nil, err
	}

	backupDir := ""
	if settings.OutputMode == config.OutputReplace {
		backupDir = filepath.Join(commonRoot, ".optiq-backup", "watch")
	}

	builder := candidate.NewBuilder(runners, settings.Speed)
	pipeline := worker.NewPipeline(
		c.Config.Mode, settings, runners, builder, c.Storage,
		commonRoot, backupDir, c.Config.OutputParamsHash(), c.Config.DryRun,
	)

	return func(ctx context.Context, f scanner.File) job.Event {
		fj := pipeline.Run(ctx, f, &job.CancelFlag{})
		return job.EventFor(fj)
	}, nil
}

// Preview runs a smart-mode encode of a single file without writing any
// output, returning the winning candidate's buffer, size, quality label,
// and MSSIM — the backing implementation of spec.md §6's
// Preview{path, settings} external interface, for a UI's before/after view.
func (c *Coordinator) Preview(ctx context.Context, path string) (worker.PreviewResult, error) {
	settings := c.Config.Normalize()
	if err := settings.Validate(); err != nil {
		return worker.PreviewResult{}, err
	}
	runners, err := c.resolveRunners()
	if err != nil {
		return worker.PreviewResult{}, err
	}
	builder := candidate.NewBuilder(runners, settings.Speed)
	pipeline := worker.NewPipeline(c.Config.Mode, settings, runners, builder, c.Storage, "", "", "", true)
	return pipeline.Preview(ctx, path)
}

func (c *Coordinator) resolveRunners() (map[string]toolrunner.Runner, error) {
	runners := make(map[string]toolrunner.Runner, len(requiredTools))
	for _, name := range requiredTools {
		info, err := toolfinder.New(name, c.Config.ToolPath(name)).Find()
		if err != nil {
			return nil, fmt.Errorf("locating %s: %w", name, err)
		}
		switch name {
		case "cjpeg":
			runners[name] = &toolrunner.CJPEG{Path: info.Path}
		case "pngquant":
			runners[name] = &toolrunner.PNGQuant{Path: info.Path}
		case "oxipng":
			runners[name] = &toolrunner.OxiPNG{Path: info.Path}
		case "cwebp":
			runners[name] = &toolrunner.CWebP{Path: info.Path}
		}
	}
	return runners, nil
}

// backupRecordsFromEvents turns the pool's per-file Events into the
// original/backup/written triples SaveLastRun persists, skipping anything
// that didn't reach a written output (skipped, failed, cancelled jobs).
func backupRecordsFromEvents(events []job.Event) []storage.BackupRecord {
	var records []storage.BackupRecord
	for _, e := range events {
		if e.Status != job.StatusSuccess || e.Result.OutputPath == "" {
			continue
		}
		records = append(records, storage.BackupRecord{
			OriginalPath: e.InputPath,
			BackupPath:   e.Result.BackupPath,
			WrittenPath:  e.Result.OutputPath,
		})
	}
	return records
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
