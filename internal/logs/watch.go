package logs

import (
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher is an optional fast-path hint layer over the message-refresh
// poll loop: it watches the directories containing known transcript
// files and records which ones have actually changed since the last
// poll, so the pipeline can skip UpdateFromLog on sessions whose file
// is untouched. It is never load-bearing -- a session never registered
// here (or a Watcher that failed to start at all) simply always looks
// dirty, which is exactly the polling behavior without it.
type Watcher struct {
	fsw *fsnotify.Watcher

	mu      sync.Mutex
	watched map[string]bool // directories already added to fsw
	dirty   map[string]bool // log paths with an event since last Consume
}

// NewWatcher starts an fsnotify watcher. A non-nil error means the
// caller should proceed without one -- transcript discovery degrades to
// always-dirty, matching the teacher's own control-mode/subprocess
// fallback posture for anything OS-dependent.
func NewWatcher() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:     fsw,
		watched: make(map[string]bool),
		dirty:   make(map[string]bool),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.mu.Lock()
			w.dirty[filepath.Clean(ev.Name)] = true
			w.mu.Unlock()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("logs: watcher error: %v", err)
		}
	}
}

// Watch registers logPath's containing directory (vendor CLIs typically
// write to a rotating file inside a fixed session directory, so watching
// the directory catches rotation as well as in-place appends). Safe to
// call repeatedly with the same path.
func (w *Watcher) Watch(logPath string) {
	dir := filepath.Dir(logPath)
	w.mu.Lock()
	already := w.watched[dir]
	if !already {
		w.watched[dir] = true
	}
	w.dirty[filepath.Clean(logPath)] = true // first poll after discovery always runs
	w.mu.Unlock()
	if !already {
		if err := w.fsw.Add(dir); err != nil {
			log.Printf("logs: watch %s: %v", dir, err)
		}
	}
}

// Dirty reports and clears whether logPath has an unconsumed event.
func (w *Watcher) Dirty(logPath string) bool {
	key := filepath.Clean(logPath)
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.watched[filepath.Dir(key)] {
		return true // never registered: behave like plain polling
	}
	if w.dirty[key] {
		delete(w.dirty, key)
		return true
	}
	return false
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
