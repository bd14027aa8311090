// Package monitor exposes the three pull-style readers the Context
// Aggregator (C1) fuses into a snapshot every tick: the active window, idle
// seconds, and recent file-change events. The shape is generalized from a
// single-purpose session-discovery interface into three narrow capability
// interfaces, one per monitored signal.
package monitor

import "time"

// WindowInfo describes the foreground window/application at the moment it
// was read.
type WindowInfo struct {
	AppName     string
	WindowTitle string
	PID         int
	ExePath     string
	Changed     bool
}

// WindowReader reads the currently active window/application. Real
// implementations are inherently platform-specific; this package ships a
// gopsutil-backed heuristic default (see ProcessWindowReader) good enough
// for headless/dev use, and lets platform builds supply something better.
type WindowReader interface {
	ActiveWindow() (WindowInfo, error)
}

// IdleReader reads the number of seconds since the last user input.
type IdleReader interface {
	IdleSeconds() (int, error)
}

// FileEventKind classifies a single file-change event.
type FileEventKind int

const (
	Created FileEventKind = iota
	Modified
	Deleted
	Moved
)

func (k FileEventKind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	case Moved:
		return "moved"
	default:
		return "unknown"
	}
}

// FileEvent is a single file-change observation.
type FileEvent struct {
	Kind      FileEventKind
	Path      string
	DestPath  string // only set for Moved
	Timestamp time.Time
}

// FileEventSource is a running watcher that accumulates recent file events
// into its own bounded ring, exposed via Recent. Start/Stop manage the
// underlying OS watch; Recent is safe to call at any time, including before
// Start or after Stop (returning whatever is retained).
type FileEventSource interface {
	Start() error
	Stop() error
	Recent(limit int) []FileEvent
}
