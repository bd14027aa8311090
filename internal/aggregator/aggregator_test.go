package aggregator

import (
	"errors"
	"testing"

	"github.com/nourivex/orbit/internal/monitor"
)

type fakeWindowReader struct {
	info monitor.WindowInfo
	err  error
}

func (f *fakeWindowReader) ActiveWindow() (monitor.WindowInfo, error) {
	return f.info, f.err
}

type fakeIdleReader struct {
	seconds int
	err     error
}

func (f *fakeIdleReader) IdleSeconds() (int, error) {
	return f.seconds, f.err
}

type fakeFileEventSource struct {
	events []monitor.FileEvent
}

func (f *fakeFileEventSource) Start() error { return nil }
func (f *fakeFileEventSource) Stop() error  { return nil }
func (f *fakeFileEventSource) Recent(limit int) []monitor.FileEvent {
	if limit <= 0 || limit > len(f.events) {
		limit = len(f.events)
	}
	return f.events[:limit]
}

func TestSnapshotFusesAllFields(t *testing.T) {
	win := &fakeWindowReader{info: monitor.WindowInfo{AppName: "Code.exe", WindowTitle: "main.go"}}
	idle := &fakeIdleReader{seconds: 200}
	files := &fakeFileEventSource{events: []monitor.FileEvent{{Kind: monitor.Modified, Path: "a"}, {Kind: monitor.Created, Path: "b"}}}

	a := New(win, idle, files)
	snap := a.Snapshot()

	if snap.ActiveApp != "Code.exe" || snap.WindowTitle != "main.go" {
		t.Fatalf("window fields not fused: %+v", snap)
	}
	if snap.IdleSeconds != 200 {
		t.Fatalf("idle seconds = %d, want 200", snap.IdleSeconds)
	}
	if !snap.IsIdle {
		t.Fatalf("200s idle should set IsIdle")
	}
	if snap.RecentFileChanges != 2 {
		t.Fatalf("recent file changes = %d, want 2", snap.RecentFileChanges)
	}
	if snap.SequenceNumber != 1 {
		t.Fatalf("first snapshot sequence = %d, want 1", snap.SequenceNumber)
	}
}

func TestSnapshotIsolatesWindowFailure(t *testing.T) {
	win := &fakeWindowReader{err: errors.New("boom")}
	idle := &fakeIdleReader{seconds: 10}
	a := New(win, idle, nil)

	snap := a.Snapshot()
	if snap.ActiveApp != "" {
		t.Fatalf("expected empty app name on window failure, got %q", snap.ActiveApp)
	}
	if snap.IdleSeconds != 10 {
		t.Fatalf("idle field should still populate despite window failure")
	}

	health := a.Health()
	if health.WindowFailures != 1 {
		t.Fatalf("window failures = %d, want 1", health.WindowFailures)
	}
	if snap.ErrorCount != 1 {
		t.Fatalf("error count = %d, want 1 (incremented for the window failure)", snap.ErrorCount)
	}
}

func TestSnapshotDegradesToEmptyWhenAllFieldsFail(t *testing.T) {
	win := &fakeWindowReader{err: errors.New("boom")}
	idle := &fakeIdleReader{err: errors.New("boom")}
	a := New(win, idle, nil)

	snap := a.Snapshot()
	if snap.ActiveApp != "" || snap.IdleSeconds != 0 {
		t.Fatalf("expected fully empty snapshot, got %+v", snap)
	}
	// Both the window and idle reads fail independently, each incrementing
	// the error counter on its own.
	if snap.ErrorCount != 2 {
		t.Fatalf("error count = %d, want 2 (one per failed field)", snap.ErrorCount)
	}
}

func TestErrorCountAccumulatesAcrossMultipleFailingFields(t *testing.T) {
	win := &fakeWindowReader{err: errors.New("boom")}
	idle := &fakeIdleReader{seconds: 10}
	a := New(win, idle, nil)

	snap := a.Snapshot()
	if snap.ErrorCount != 1 {
		t.Fatalf("error count = %d, want 1 after one failing field with one healthy field", snap.ErrorCount)
	}

	snap2 := a.Snapshot()
	if snap2.ErrorCount != 2 {
		t.Fatalf("error count = %d, want 2 after a second window failure", snap2.ErrorCount)
	}
}

func TestSequenceNumberIncrementsAcrossCalls(t *testing.T) {
	a := New(&fakeWindowReader{}, &fakeIdleReader{}, nil)
	first := a.Snapshot()
	second := a.Snapshot()
	if second.SequenceNumber != first.SequenceNumber+1 {
		t.Fatalf("sequence numbers = %d, %d, want consecutive", first.SequenceNumber, second.SequenceNumber)
	}
}

func TestNoteFileChangeAccumulatesTotal(t *testing.T) {
	files := &fakeFileEventSource{}
	a := New(&fakeWindowReader{}, &fakeIdleReader{}, files)
	a.NoteFileChange(3)
	a.NoteFileChange(2)

	snap := a.Snapshot()
	if snap.FileChangesTotal != 5 {
		t.Fatalf("file changes total = %d, want 5", snap.FileChangesTotal)
	}
}

func TestLatencyMillisIsPopulated(t *testing.T) {
	a := New(&fakeWindowReader{}, &fakeIdleReader{}, nil)
	snap := a.Snapshot()
	if snap.LatencyMillis < 0 {
		t.Fatalf("latency millis = %d, want >= 0", snap.LatencyMillis)
	}
}
