// Package job models one file's journey through the pipeline as an
// explicit state machine, generalizing worker/pool.go's inline
// Total/Skipped/Processed/Failed counters into a typed Status/Phase pair
// per file, the shape other_examples/link270-shrinkray__job.go uses for its
// own Job/Status/Phase/JobEvent trio — the clearest precedent in the pack
// for exactly this kind of per-unit-of-work state tracking.
package job

import (
	"fmt"
	"sync"
	"time"
)

// Status is a FileJob's top-level state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether s is one no further transition can leave.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	default:
		return false
	}
}

// Phase is the sub-stage a running FileJob is currently in, per spec.md
// §4.9's fixed progress pipeline.
type Phase string

const (
	PhaseNone         Phase = ""
	PhaseAnalyzing    Phase = "analyzing"
	PhaseDecoding     Phase = "decoding"
	PhaseTransforming Phase = "transforming"
	PhaseEncoding     Phase = "encoding"
	PhaseWriting      Phase = "writing"
	PhaseVerifying    Phase = "verifying"
	PhaseCleaning     Phase = "cleaning"
)

// phaseOrder fixes the sequence Advance walks, so a caller can't go
// backwards by mistake; skipping ahead to a later phase is allowed.
var phaseOrder = []Phase{
	PhaseAnalyzing, PhaseDecoding, PhaseTransforming,
	PhaseEncoding, PhaseWriting, PhaseVerifying, PhaseCleaning,
}

// Result carries the outcome summary a terminal transition attaches to a
// FileJob, mirrored into the JobEvent the coordinator streams out.
type Result struct {
	OutputPath   string
	BackupPath   string
	InputBytes   int64
	OutputBytes  int64
	Strategy     string
	Quality      int
	MSSIM        float64
	EdgeSSIM     float64
	SkipReason   string
	Err          error
}

// FileJob is one file's state machine instance. All mutation goes through
// its methods, which hold its mutex for the duration — Copy() is the
// supported way to read a consistent snapshot from another goroutine.
type FileJob struct {
	mu sync.Mutex

	ID        string
	InputPath string
	Status    Status
	Phase     Phase
	Result    Result

	QueuedAt    time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// NewFileJob constructs a FileJob in StatusQueued for path.
func NewFileJob(id, path string) *FileJob {
	return &FileJob{
		ID:        id,
		InputPath: path,
		Status:    StatusQueued,
		QueuedAt:  time.Now(),
	}
}

// Copy returns a snapshot safe to read without holding j's lock.
func (j *FileJob) Copy() FileJob {
	j.mu.Lock()
	defer j.mu.Unlock()
	return FileJob{
		ID:          j.ID,
		InputPath:   j.InputPath,
		Status:      j.Status,
		Phase:       j.Phase,
		Result:      j.Result,
		QueuedAt:    j.QueuedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

// Start transitions queued -> running. Per spec.md §4.9, running is only
// reachable from queued.
func (j *FileJob) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status != StatusQueued {
		return fmt.Errorf("job %s: cannot start from status %s", j.ID, j.Status)
	}
	j.Status = StatusRunning
	j.Phase = PhaseAnalyzing
	j.StartedAt = time.Now()
	return nil
}

// Advance moves a running job to the next Phase in sequence. Calling it out
// of order, or on a non-running job, is a programmer error, not a normal
// pipeline outcome — it returns an error rather than panicking so a
// misbehaving strategy fails its one job instead of the whole pool.
func (j *FileJob) Advance(to Phase) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status != StatusRunning {
		return fmt.Errorf("job %s: cannot advance phase from status %s", j.ID, j.Status)
	}
	if !isNextPhase(j.Phase, to) {
		return fmt.Errorf("job %s: invalid phase transition %s -> %s", j.ID, j.Phase, to)
	}
	j.Phase = to
	return nil
}

func isNextPhase(from, to Phase) bool {
	idx := -1
	for i, p := range phaseOrder {
		if p == from {
			idx = i
			break
		}
	}
	for i, p := range phaseOrder {
		if p == to {
			return i >= idx
		}
	}
	return false
}

// Succeed transitions running -> success, attaching res.
func (j *FileJob) Succeed(res Result) error {
	return j.terminal(StatusSuccess, res, StatusRunning)
}

// Fail transitions running -> failed, attaching an error result.
func (j *FileJob) Fail(err error) error {
	return j.terminal(StatusFailed, Result{Err: err}, StatusRunning)
}

// Skip transitions to skipped, reachable from either queued (the
// processed-index dedup rejected it before it ever ran) or running (the
// candidate builder produced nothing worth keeping), per spec.md §4.9.
func (j *FileJob) Skip(reason string) error {
	return j.terminal(StatusSkipped, Result{SkipReason: reason}, StatusQueued, StatusRunning)
}

// Cancel transitions to cancelled from any non-terminal state, the
// cooperative-cancellation outcome spec.md §4.9/§5 describes: already-
// running external processes finish, but their results are discarded if
// cancellation was observed before the writing phase.
func (j *FileJob) Cancel() error {
	return j.terminal(StatusCancelled, Result{}, StatusQueued, StatusRunning)
}

func (j *FileJob) terminal(to Status, res Result, allowedFrom ...Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.Status.IsTerminal() {
		return fmt.Errorf("job %s: cannot transition out of terminal status %s", j.ID, j.Status)
	}
	ok := false
	for _, s := range allowedFrom {
		if j.Status == s {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("job %s: cannot reach %s from status %s", j.ID, to, j.Status)
	}

	j.Status = to
	j.Result = res
	j.CompletedAt = time.Now()
	return nil
}

// ShouldAbandonResult reports whether cancelFlag was observed before
// PhaseWriting, meaning any encode work already done for this job must be
// discarded rather than written out, per spec.md §4.9's cancellation rule.
func (j *FileJob) ShouldAbandonResult(cancelFlag *CancelFlag) bool {
	j.mu.Lock()
	phase := j.Phase
	j.mu.Unlock()

	if !cancelFlag.IsSet() {
		return false
	}
	for _, p := range phaseOrder {
		if p == phase {
			return p == PhaseAnalyzing || p == PhaseDecoding || p == PhaseTransforming || p == PhaseEncoding
		}
	}
	return false
}

// Event is the per-transition notification the Run Coordinator streams to
// progress reporting and (in watch mode) the stats surface, generalizing
// link270-shrinkray's JobEvent from an SSE-over-HTTP payload to an
// in-process channel message.
type Event struct {
	JobID     string
	InputPath string
	Status    Status
	Phase     Phase
	Result    Result
}

// EventFor builds the Event describing j's current snapshot.
func EventFor(j *FileJob) Event {
	snap := j.Copy()
	return Event{JobID: snap.ID, InputPath: snap.InputPath, Status: snap.Status, Phase: snap.Phase, Result: snap.Result}
}

// CancelFlag is the shared cooperative-cancellation signal the Run
// Coordinator flips and every FileJob checks at its stage boundaries.
type CancelFlag struct {
	mu  sync.RWMutex
	set bool
}

// Set flips the flag; subsequent IsSet calls from any goroutine see it.
func (f *CancelFlag) Set() {
	f.mu.Lock()
	f.set = true
	f.mu.Unlock()
}

// IsSet reports the flag's current value.
func (f *CancelFlag) IsSet() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.set
}
