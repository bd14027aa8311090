package monitor

import (
	"os"
	"sort"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessWindowReader is the default, platform-agnostic WindowReader. It has
// no access to a real window manager, so it approximates "the active
// window" with a heuristic: among the current user's running processes, the
// one with the highest recent CPU usage is treated as foreground. This is
// good enough to drive the idle-in-coding-app fallback rule in the intent
// proposer without requiring per-platform window-manager bindings.
type ProcessWindowReader struct {
	lastApp string
}

// NewProcessWindowReader returns a ProcessWindowReader.
func NewProcessWindowReader() *ProcessWindowReader {
	return &ProcessWindowReader{}
}

// ActiveWindow implements WindowReader.
func (r *ProcessWindowReader) ActiveWindow() (WindowInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return WindowInfo{}, err
	}

	uid := os.Getuid()

	type candidate struct {
		proc *process.Process
		cpu  float64
	}
	var candidates []candidate

	for _, p := range procs {
		uids, err := p.Uids()
		if err != nil || len(uids) == 0 {
			continue
		}
		if int(uids[0]) != uid {
			continue
		}
		cpu, err := p.CPUPercent()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{proc: p, cpu: cpu})
	}

	if len(candidates) == 0 {
		return WindowInfo{}, nil
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].cpu > candidates[j].cpu })
	top := candidates[0]

	name, _ := top.proc.Name()
	exe, _ := top.proc.Exe()

	info := WindowInfo{
		AppName: name,
		ExePath: exe,
		PID:     int(top.proc.Pid),
		Changed: name != r.lastApp,
	}
	r.lastApp = name
	return info, nil
}
