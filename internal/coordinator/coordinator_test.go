package coordinator

import (
	"testing"

	"github.com/surfgoffdude/optiq/internal/job"
	"github.com/surfgoffdude/optiq/internal/storage"
)

func TestBackupRecordsFromEventsSkipsNonSuccess(t *testing.T) {
	events := []job.Event{
		{InputPath: "a.jpg", Status: job.StatusFailed},
		{InputPath: "b.jpg", Status: job.StatusSkipped},
		{InputPath: "c.jpg", Status: job.StatusCancelled},
		{
			InputPath: "d.jpg",
			Status:    job.StatusSuccess,
			Result: job.Result{
				OutputPath: "/out/d.jpg",
				BackupPath: "/backup/d.jpg",
			},
		},
	}

	records := backupRecordsFromEvents(events)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	want := storage.BackupRecord{
		OriginalPath: "d.jpg",
		BackupPath:   "/backup/d.jpg",
		WrittenPath:  "/out/d.jpg",
	}
	if records[0] != want {
		t.Errorf("record = %+v, want %+v", records[0], want)
	}
}

func TestBackupRecordsFromEventsSuccessWithoutOutputPathSkipped(t *testing.T) {
	events := []job.Event{
		{InputPath: "a.jpg", Status: job.StatusSuccess, Result: job.Result{}},
	}
	if records := backupRecordsFromEvents(events); len(records) != 0 {
		t.Errorf("expected 0 records for a success with no output path, got %d", len(records))
	}
}

func TestBackupRecordsFromEventsEmpty(t *testing.T) {
	if records := backupRecordsFromEvents(nil); records != nil {
		t.Errorf("expected nil records for nil events, got %v", records)
	}
}
