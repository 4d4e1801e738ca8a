package installer

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reconciles installed plugin records when plugin directories are
// removed or renamed behind the installer's back.
type Watcher struct {
	manager       *Manager
	watcher       *fsnotify.Watcher
	mu            sync.Mutex
	debounceTimer *time.Timer
	debounceDelay time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewWatcher creates a watcher for the manager's plugins directory.
func NewWatcher(manager *Manager, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		manager:       manager,
		debounceDelay: debounce,
		stopChan:      make(chan struct{}),
	}
}

// Start reconciles once and then watches for changes.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.manager.Dir()); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher

	if _, err := w.manager.Reconcile(context.Background()); err != nil {
		log.Printf("Warning: initial plugin reconcile failed: %v", err)
	}

	log.Printf("Plugin watcher started for: %s", w.manager.Dir())
	go w.processEvents()
	return nil
}

// Stop stops the watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.mu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.mu.Unlock()
		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}

func (w *Watcher) processEvents() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Plugin watcher error: %v", err)

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	// Staging directories come and go during every install.
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.reconcile)
}

func (w *Watcher) reconcile() {
	select {
	case <-w.stopChan:
		return
	default:
	}
	removed, err := w.manager.Reconcile(context.Background())
	if err != nil {
		log.Printf("Plugin reconcile error: %v", err)
		return
	}
	if len(removed) > 0 {
		log.Printf("Plugin watcher removed %d stale record(s)", len(removed))
	}
}
