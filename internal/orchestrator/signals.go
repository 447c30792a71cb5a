package orchestrator

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/nova/internal/logging"
)

const (
	stopFile  = "stop"
	pauseFile = "pause"
)

// Signals exposes operator control files in a directory: creating "stop"
// drains in-flight workers and ends the run, and "pause" holds dispatch for
// as long as the file exists.
type Signals struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool

	watcher *fsnotify.Watcher
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewSignals watches dir, creating it if needed. When a watcher cannot be
// set up the files are still honoured on every tick by polling.
func NewSignals(dir string, logger *slog.Logger) (*Signals, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create signals dir: %w", err)
	}

	s := &Signals{
		dir:    dir,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("signal watcher unavailable, polling", "error", err)
		return s, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		logger.Warn("watch signals dir, polling", "dir", dir, "error", err)
		return s, nil
	}
	s.watcher = watcher
	go s.watch()
	return s, nil
}

// watch forwards create/remove events on the control files to Wake.
func (s *Signals) watch() {
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			base := filepath.Base(event.Name)
			if base != stopFile && base != pauseFile {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if base == stopFile && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				s.mu.Lock()
				s.stopped = true
				s.mu.Unlock()
			}
			s.notify()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Debug("signal watcher error", "error", err)
		}
	}
}

func (s *Signals) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Wake fires when a control file changes so the loop can react before the
// next tick.
func (s *Signals) Wake() <-chan struct{} {
	return s.wake
}

// ShouldStop reports whether a stop was requested. Once seen it stays set.
func (s *Signals) ShouldStop() bool {
	if _, err := os.Stat(filepath.Join(s.dir, stopFile)); err == nil {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Paused reports whether the pause file currently exists.
func (s *Signals) Paused() bool {
	_, err := os.Stat(filepath.Join(s.dir, pauseFile))
	return err == nil
}

// Close stops the watcher.
func (s *Signals) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.watcher != nil {
			s.watcher.Close()
		}
	})
}

// SendStop creates the stop file in dir.
func SendStop(dir string) error {
	return writeSignal(dir, stopFile)
}

// SendPause creates the pause file in dir.
func SendPause(dir string) error {
	return writeSignal(dir, pauseFile)
}

// SendResume removes the pause file from dir.
func SendResume(dir string) error {
	err := os.Remove(filepath.Join(dir, pauseFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// ClearSignals removes both control files so a new run starts clean.
func ClearSignals(dir string) error {
	for _, name := range []string{stopFile, pauseFile} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func writeSignal(dir, name string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(time.Now().Format(time.RFC3339)), 0644)
}
