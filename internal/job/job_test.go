package job

import "testing"

func TestStartOnlyFromQueued(t *testing.T) {
	j := NewFileJob("1", "a.jpg")
	if err := j.Start(); err != nil {
		t.Fatalf("Start() from queued: %v", err)
	}
	if j.Status != StatusRunning {
		t.Errorf("Status = %v, want running", j.Status)
	}
	if err := j.Start(); err == nil {
		t.Error("Start() from running should fail")
	}
}

func TestAdvanceRejectsOutOfOrder(t *testing.T) {
	j := NewFileJob("1", "a.jpg")
	_ = j.Start()

	if err := j.Advance(PhaseEncoding); err != nil {
		t.Fatalf("Advance forward: %v", err)
	}
	if err := j.Advance(PhaseDecoding); err == nil {
		t.Error("Advance backward should fail")
	}
}

func TestAdvanceRequiresRunning(t *testing.T) {
	j := NewFileJob("1", "a.jpg")
	if err := j.Advance(PhaseDecoding); err == nil {
		t.Error("Advance on a queued job should fail")
	}
}

func TestSucceedIsTerminal(t *testing.T) {
	j := NewFileJob("1", "a.jpg")
	_ = j.Start()

	if err := j.Succeed(Result{OutputPath: "out.jpg"}); err != nil {
		t.Fatalf("Succeed: %v", err)
	}
	if !j.Status.IsTerminal() {
		t.Error("success should be terminal")
	}
	if err := j.Succeed(Result{}); err == nil {
		t.Error("Succeed twice should fail, terminal states don't transition")
	}
	if err := j.Cancel(); err == nil {
		t.Error("Cancel from a terminal state should fail")
	}
}

func TestSkipReachableFromQueuedAndRunning(t *testing.T) {
	queued := NewFileJob("1", "a.jpg")
	if err := queued.Skip("already processed"); err != nil {
		t.Fatalf("Skip from queued: %v", err)
	}
	if queued.Status != StatusSkipped {
		t.Errorf("Status = %v, want skipped", queued.Status)
	}

	running := NewFileJob("2", "b.jpg")
	_ = running.Start()
	if err := running.Skip("no candidate cleared threshold"); err != nil {
		t.Fatalf("Skip from running: %v", err)
	}
}

func TestFailRequiresRunning(t *testing.T) {
	j := NewFileJob("1", "a.jpg")
	if err := j.Fail(nil); err == nil {
		t.Error("Fail from queued should fail, running is required")
	}
}

func TestCancelFlagObservedAcrossGoroutines(t *testing.T) {
	var flag CancelFlag
	if flag.IsSet() {
		t.Fatal("new CancelFlag should be unset")
	}
	flag.Set()
	if !flag.IsSet() {
		t.Error("IsSet should report true after Set")
	}
}

func TestShouldAbandonResultBeforeWriting(t *testing.T) {
	j := NewFileJob("1", "a.jpg")
	_ = j.Start()
	_ = j.Advance(PhaseEncoding)

	var flag CancelFlag
	flag.Set()

	if !j.ShouldAbandonResult(&flag) {
		t.Error("cancellation observed at encoding phase should abandon the result")
	}

	_ = j.Advance(PhaseWriting)
	if j.ShouldAbandonResult(&flag) {
		t.Error("cancellation observed at writing phase should not abandon an in-flight write")
	}
}

func TestEventForReflectsSnapshot(t *testing.T) {
	j := NewFileJob("1", "a.jpg")
	_ = j.Start()
	_ = j.Advance(PhaseWriting)

	ev := EventFor(j)
	if ev.JobID != "1" || ev.Status != StatusRunning || ev.Phase != PhaseWriting {
		t.Errorf("EventFor = %+v, unexpected snapshot", ev)
	}
}
