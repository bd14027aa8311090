// Package aggregator implements the Context Aggregator (C1): it polls the
// three C0 readers in a fixed order and fuses their output into a single
// Snapshot every tick, isolating a failure in any one field from the
// others rather than letting it abort the whole snapshot.
package aggregator

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nourivex/orbit/internal/monitor"
	"github.com/nourivex/orbit/internal/snapshot"
)

// highLatencyThreshold matches the teacher/original's 100ms warning mark.
const highLatencyThreshold = 100 * time.Millisecond

// recentFileChangeLimit is how many of the most recent file events feed
// RecentFileChanges (original_source used limit=5).
const recentFileChangeLimit = 5

// fieldHealth tracks consecutive failures for one polled field, mirroring
// the teacher's per-source sourceHealth counters but scoped to a single
// signal instead of a whole monitor source.
type fieldHealth struct {
	mu       sync.Mutex
	failures int
	lastErr  string
}

func (h *fieldHealth) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
	h.lastErr = ""
}

func (h *fieldHealth) recordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	h.lastErr = err.Error()
}

func (h *fieldHealth) snapshot() (failures int, lastErr string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failures, h.lastErr
}

// Aggregator fuses a WindowReader, IdleReader, and FileEventSource into
// Snapshot values. It is safe for concurrent use; Snapshot() may be called
// from multiple goroutines (only the orchestrator does so today, but the
// counters are atomic/locked regardless).
type Aggregator struct {
	window monitor.WindowReader
	idle   monitor.IdleReader
	files  monitor.FileEventSource

	windowHealth fieldHealth
	idleHealth   fieldHealth

	seq          atomic.Uint64
	errorCount   atomic.Int64
	totalChanges atomic.Int64
}

// New returns an Aggregator reading from the given C0 adapters. files may
// be nil if no file-event source is configured (recent_file_changes and
// file_changes_total will always read 0).
func New(window monitor.WindowReader, idle monitor.IdleReader, files monitor.FileEventSource) *Aggregator {
	return &Aggregator{window: window, idle: idle, files: files}
}

// Snapshot polls window, idle, then file-change signals, in that fixed
// order, and fuses them into a single Snapshot. A failure reading any one
// field is logged and isolated: the field takes its zero value and the
// others are still populated. If every field fails the snapshot degrades
// to Empty().
func (a *Aggregator) Snapshot() snapshot.Snapshot {
	start := time.Now()

	var (
		appName, title string
		idleSeconds    int
		anyFieldOK     bool
	)

	if a.window != nil {
		info, err := a.window.ActiveWindow()
		if err != nil {
			a.windowHealth.recordFailure(err)
			a.errorCount.Add(1)
			log.Printf("aggregator: window read failed: %v", err)
		} else {
			a.windowHealth.recordSuccess()
			appName, title = info.AppName, info.WindowTitle
			anyFieldOK = true
		}
	}

	if a.idle != nil {
		secs, err := a.idle.IdleSeconds()
		if err != nil {
			a.idleHealth.recordFailure(err)
			a.errorCount.Add(1)
			log.Printf("aggregator: idle read failed: %v", err)
		} else {
			a.idleHealth.recordSuccess()
			idleSeconds = secs
			anyFieldOK = true
		}
	}

	var recentChanges int
	var totalChanges int64
	if a.files != nil {
		recent := a.files.Recent(recentFileChangeLimit)
		recentChanges = len(recent)
		totalChanges = a.totalChanges.Load()
		anyFieldOK = true
	}

	if !anyFieldOK {
		return snapshot.Empty(time.Now(), a.seq.Add(1), a.errorCount.Load())
	}

	level := snapshot.LevelForIdleSeconds(idleSeconds)
	snap := snapshot.Snapshot{
		Timestamp:         time.Now(),
		ActiveApp:         appName,
		WindowTitle:       title,
		IdleSeconds:       idleSeconds,
		IdleLevel:         level,
		IsIdle:            level != snapshot.Active,
		RecentFileChanges: recentChanges,
		FileChangesTotal:  totalChanges,
		ErrorCount:        a.errorCount.Load(),
		SequenceNumber:    a.seq.Add(1),
	}

	elapsed := time.Since(start)
	snap.LatencyMillis = elapsed.Milliseconds()
	if elapsed > highLatencyThreshold {
		log.Printf("aggregator: high snapshot latency: %dms", snap.LatencyMillis)
	}

	return snap
}

// NoteFileChange increments the running total-changes counter used to
// populate Snapshot.FileChangesTotal, a cumulative count that survives
// ring-buffer eviction. Snapshot does not call it itself, and neither does
// the orchestrator, so the total only grows when a caller reports changes
// here.
func (a *Aggregator) NoteFileChange(n int) {
	a.totalChanges.Add(int64(n))
}

// FieldHealth reports per-field consecutive-failure counts, for
// introspection/debugging.
type FieldHealth struct {
	WindowFailures int
	WindowLastErr  string
	IdleFailures   int
	IdleLastErr    string
}

// Health returns a snapshot of per-field failure counters.
func (a *Aggregator) Health() FieldHealth {
	wf, we := a.windowHealth.snapshot()
	idf, ie := a.idleHealth.snapshot()
	return FieldHealth{
		WindowFailures: wf,
		WindowLastErr:  we,
		IdleFailures:   idf,
		IdleLastErr:    ie,
	}
}
