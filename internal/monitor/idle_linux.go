//go:build linux

package monitor

import (
	"os"
	"time"
)

// LinuxIdleReader derives idle seconds from the most recent mtime among
// /dev/input/event* nodes, which the kernel touches on every keyboard/mouse
// event. It is a coarse approximation (no access to a display server's idle
// API without per-compositor bindings) but needs no extra dependency and
// works headless.
type LinuxIdleReader struct {
	devicesDir string
}

// NewIdleReader returns the default IdleReader for this platform.
func NewIdleReader() *LinuxIdleReader {
	return &LinuxIdleReader{devicesDir: "/dev/input"}
}

// IdleSeconds implements IdleReader.
func (r *LinuxIdleReader) IdleSeconds() (int, error) {
	entries, err := os.ReadDir(r.devicesDir)
	if err != nil {
		// No /dev/input access (container, permissions): report active
		// rather than fail the whole snapshot.
		return 0, nil
	}

	var newest time.Time
	found := false
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
			found = true
		}
	}
	if !found {
		return 0, nil
	}

	idle := time.Since(newest)
	if idle < 0 {
		idle = 0
	}
	return int(idle.Seconds()), nil
}
