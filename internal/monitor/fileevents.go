package monitor

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultFileEventRingSize = 50

// WatcherFileEventSource watches a directory tree with fsnotify and retains
// the most recent file-change events in a bounded ring, matching the
// "recent file changes" signal the Context Aggregator folds into a
// Snapshot.
type WatcherFileEventSource struct {
	root string

	mu      sync.Mutex
	ring    []FileEvent
	cap     int
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcherFileEventSource returns a FileEventSource watching root
// recursively. Start must be called before events are observed.
func NewWatcherFileEventSource(root string) *WatcherFileEventSource {
	return &WatcherFileEventSource{
		root: root,
		cap:  defaultFileEventRingSize,
	}
}

// Start begins watching. It walks the tree once to add every existing
// subdirectory (fsnotify does not recurse on its own).
func (s *WatcherFileEventSource) Start() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries rather than abort the whole watch
		}
		if d.IsDir() {
			_ = w.Add(path)
		}
		return nil
	})
	if err != nil {
		w.Close()
		return err
	}

	s.mu.Lock()
	s.watcher = w
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(w, s.done)
	return nil
}

// Stop shuts down the underlying watcher.
func (s *WatcherFileEventSource) Stop() error {
	s.mu.Lock()
	w := s.watcher
	done := s.done
	s.watcher = nil
	s.mu.Unlock()

	if w == nil {
		return nil
	}
	err := w.Close()
	if done != nil {
		<-done
	}
	return err
}

func (s *WatcherFileEventSource) loop(w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			s.handle(ev, w)
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
			// Individual watch errors don't stop the loop; the aggregator
			// treats a silent tick as "no recent changes".
		}
	}
}

func (s *WatcherFileEventSource) handle(ev fsnotify.Event, w *fsnotify.Watcher) {
	kind, ok := classify(ev.Op)
	if !ok {
		return
	}

	if kind == Created {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.Add(ev.Name)
		}
	}

	s.push(FileEvent{Kind: kind, Path: ev.Name, Timestamp: time.Now()})
}

func classify(op fsnotify.Op) (FileEventKind, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return Created, true
	case op&fsnotify.Write != 0:
		return Modified, true
	case op&fsnotify.Remove != 0:
		return Deleted, true
	case op&fsnotify.Rename != 0:
		return Moved, true
	default:
		return 0, false
	}
}

func (s *WatcherFileEventSource) push(e FileEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring = append(s.ring, e)
	if len(s.ring) > s.cap {
		s.ring = s.ring[len(s.ring)-s.cap:]
	}
}

// Recent implements FileEventSource.
func (s *WatcherFileEventSource) Recent(limit int) []FileEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.ring) {
		limit = len(s.ring)
	}
	out := make([]FileEvent, limit)
	copy(out, s.ring[len(s.ring)-limit:])
	return out
}
