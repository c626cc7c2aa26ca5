// Package watcher observes configured folders and feeds newly-stable files
// into a dispatcher, generalizing the teacher's fsnotify-plus-debounce
// design with the stability gate, size cap, processed-index dedup, and
// retry policy the watch service needs that the teacher's one-shot CLI
// never did.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/surfgoffdude/optiq/internal/ferr"
	"github.com/surfgoffdude/optiq/internal/job"
	"github.com/surfgoffdude/optiq/internal/scanner"
	"github.com/surfgoffdude/optiq/internal/storage"
)

// DispatchFunc runs the standard pipeline against one stable file and
// reports the resulting FileJob event. Implementations typically close
// over a worker.Pipeline built for the watched folder's settings.
type DispatchFunc func(ctx context.Context, f scanner.File) job.Event

// Event is one watch-triggered outcome, reported on the Service's Events
// channel for a UI or log to consume.
type Event struct {
	Path   string
	Status job.Status
	Reason string
}

// Service watches every enabled folder in Storage's watch_folders table and
// dispatches stable, not-yet-processed files through Dispatch.
type Service struct {
	Storage  *storage.Storage
	Dispatch DispatchFunc

	// StabilityPollInterval, StabilityReads, StabilityTimeout implement
	// spec.md §4.12 step 4: a file is stable once its (size, mtime) reads
	// identical StabilityReads times in a row, polled this often, with a
	// hard bail-out after StabilityTimeout.
	StabilityPollInterval time.Duration
	StabilityReads        int
	StabilityTimeout      time.Duration

	// MaxFileSizeMB rejects files larger than this before dispatch; zero
	// means no cap.
	MaxFileSizeMB int64

	// MaxRetries and RetryBackoff implement step 8's exponential-ish
	// backoff: attempt N waits RetryBackoff*N before retrying.
	MaxRetries   int
	RetryBackoff time.Duration

	// IndexFlushInterval batches processed-index writes so a burst of
	// files doesn't fsync the database once per file.
	IndexFlushInterval time.Duration

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time // path -> first-seen time, debounce gate
	inFlight map[string]bool     // path -> stability/dispatch in progress

	flushMu      sync.Mutex
	pendingMarks []processedMark

	events chan Event
}

type processedMark struct {
	path, hash  string
	size, mtime int64
}

// New constructs a Service with spec.md §4.12/§5's default timings.
func New(store *storage.Storage, dispatch DispatchFunc) *Service {
	return &Service{
		Storage:               store,
		Dispatch:              dispatch,
		StabilityPollInterval: 500 * time.Millisecond,
		StabilityReads:        3,
		StabilityTimeout:      30 * time.Second,
		MaxRetries:            2,
		RetryBackoff:          3 * time.Second,
		IndexFlushInterval:    2 * time.Second,
		pending:               make(map[string]time.Time),
		inFlight:              make(map[string]bool),
		events:                make(chan Event, 100),
	}
}

// Events returns the channel Service reports per-file outcomes on.
func (s *Service) Events() <-chan Event { return s.events }

// AddFolder registers path as a watched folder, creating the fsnotify
// subscription immediately if the service is already running.
func (s *Service) AddFolder(path string, enabled bool, overrideSettingsJSON string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	if err := s.Storage.UpsertWatchFolder(abs, enabled, overrideSettingsJSON); err != nil {
		return err
	}
	if enabled && s.fsw != nil {
		return s.addRecursive(abs)
	}
	return nil
}

// RemoveFolder deregisters a watched folder.
func (s *Service) RemoveFolder(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	return s.Storage.RemoveWatchFolder(abs)
}

// ListFolders returns every configured watch folder.
func (s *Service) ListFolders() ([]storage.WatchFolder, error) {
	return s.Storage.ListWatchFolders()
}

// ToggleFolder flips a watched folder's enabled flag.
func (s *Service) ToggleFolder(path string, enabled bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	return s.Storage.SetWatchFolderEnabled(abs, enabled)
}

// Run starts watching every enabled folder and blocks until ctx is
// cancelled. It is safe to call AddFolder/RemoveFolder concurrently while
// Run is active.
func (s *Service) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating filesystem watcher: %w", err)
	}
	s.fsw = fsw
	defer func() { _ = fsw.Close() }()

	folders, err := s.Storage.ListWatchFolders()
	if err != nil {
		return fmt.Errorf("loading watch folders: %w", err)
	}
	for _, f := range folders {
		if !f.Enabled {
			continue
		}
		if err := s.addRecursive(f.Path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not watch %s: %v\n", f.Path, err)
		}
	}

	flushTicker := time.NewTicker(s.IndexFlushInterval)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flushProcessedMarks()
			close(s.events)
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			s.handleFSEvent(ctx, ev)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watcher error: %v\n", err)

		case <-flushTicker.C:
			s.flushProcessedMarks()
		}
	}
}

func (s *Service) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || d.Name() == "node_modules") {
				return filepath.SkipDir
			}
			if err := s.fsw.Add(path); err != nil {
				return fmt.Errorf("watching %s: %w", path, err)
			}
		}
		return nil
	})
}

func (s *Service) handleFSEvent(ctx context.Context, ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if ev.Op&fsnotify.Create != 0 {
			_ = s.fsw.Add(ev.Name)
		}
		return
	}

	if scanner.IsIgnoredFile(ev.Name) || !scanner.HasSupportedExtension(ev.Name) {
		return
	}

	s.mu.Lock()
	if s.inFlight[ev.Name] {
		s.mu.Unlock()
		return
	}
	s.pending[ev.Name] = time.Now()
	s.inFlight[ev.Name] = true
	s.mu.Unlock()

	go s.stabilizeAndDispatch(ctx, ev.Name)
}

// stabilizeAndDispatch implements spec.md §4.12 steps 4-8 for one path:
// wait for size/mtime to settle, enforce the size cap, consult the
// processed index, dispatch, and retry on transient failure.
func (s *Service) stabilizeAndDispatch(ctx context.Context, path string) {
	defer func() {
		s.mu.Lock()
		delete(s.pending, path)
		delete(s.inFlight, path)
		s.mu.Unlock()
	}()

	size, mtime, ok := s.waitStable(ctx, path)
	if !ok {
		return
	}

	if s.MaxFileSizeMB > 0 && size > s.MaxFileSizeMB*1024*1024 {
		s.emit(path, job.StatusSkipped, "exceeds max file size")
		return
	}

	already, err := s.Storage.LookupProcessed(path, size, mtime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: processed-index lookup failed for %s: %v\n", path, err)
	} else if already {
		s.emit(path, job.StatusSkipped, "already processed")
		return
	}

	rel := filepath.Base(path)
	f := scanner.File{Path: path, RelPath: rel, Size: size, Mtime: mtime}

	for attempt := 0; ; attempt++ {
		evt := s.Dispatch(ctx, f)
		switch evt.Status {
		case job.StatusSuccess:
			hash, err := scanner.PartialHash(path)
			if err != nil {
				hash = ""
			}
			s.queueProcessedMark(path, size, mtime, hash)
			s.emit(path, job.StatusSuccess, "")
			return
		case job.StatusSkipped:
			s.emit(path, job.StatusSkipped, evt.Result.SkipReason)
			return
		case job.StatusCancelled:
			s.emit(path, job.StatusCancelled, "")
			return
		default:
			code := ferr.EUnknown
			if fe, ok := asFerr(evt.Result.Err); ok {
				code = fe.Code
			}
			if !ferr.Retryable(code) || attempt >= s.MaxRetries {
				s.emit(path, job.StatusFailed, errString(evt.Result.Err))
				return
			}
			select {
			case <-time.After(s.RetryBackoff * time.Duration(attempt+1)):
			case <-ctx.Done():
				return
			}
		}
	}
}

// waitStable polls path's (size, mtime) every StabilityPollInterval,
// returning once StabilityReads consecutive reads agree, or giving up
// after StabilityTimeout / ctx cancellation.
func (s *Service) waitStable(ctx context.Context, path string) (size, mtime int64, ok bool) {
	deadline := time.Now().Add(s.StabilityTimeout)
	var lastSize, lastMtime int64
	stableCount := 0

	for {
		info, err := os.Stat(path)
		if err != nil {
			return 0, 0, false
		}
		curSize, curMtime := info.Size(), info.ModTime().Unix()
		if curSize == lastSize && curMtime == lastMtime {
			stableCount++
		} else {
			stableCount = 1
		}
		lastSize, lastMtime = curSize, curMtime

		if stableCount >= s.StabilityReads {
			return curSize, curMtime, true
		}
		if time.Now().After(deadline) {
			return 0, 0, false
		}

		select {
		case <-time.After(s.StabilityPollInterval):
		case <-ctx.Done():
			return 0, 0, false
		}
	}
}

func (s *Service) queueProcessedMark(path string, size, mtime int64, hash string) {
	s.flushMu.Lock()
	s.pendingMarks = append(s.pendingMarks, processedMark{path: path, size: size, mtime: mtime, hash: hash})
	s.flushMu.Unlock()
}

func (s *Service) flushProcessedMarks() {
	s.flushMu.Lock()
	marks := s.pendingMarks
	s.pendingMarks = nil
	s.flushMu.Unlock()

	for _, m := range marks {
		if err := s.Storage.MarkProcessed(m.path, m.size, m.mtime, m.hash); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not record %s as processed: %v\n", m.path, err)
		}
	}
}

func (s *Service) emit(path string, status job.Status, reason string) {
	select {
	case s.events <- Event{Path: path, Status: status, Reason: reason}:
	default:
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func asFerr(err error) (*ferr.Error, bool) {
	fe, ok := err.(*ferr.Error)
	return fe, ok
}
