package internal

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// EventType represents the type of filesystem event
type EventType int

const (
	EventCreate EventType = iota
	EventDelete
	EventRename
)

// WatchEvent represents a filesystem event we care about
type WatchEvent struct {
	Type EventType
	Path string
}

// Watcher wraps fsnotify watcher with classifier-based filtering
type Watcher struct {
	watcher    *fsnotify.Watcher
	classifier *Classifier
	events     chan *WatchEvent
	errors     chan error
	done       chan struct{}
}

// NewWatcher watches every directory below the given roots
func NewWatcher(classifier *Classifier, roots ...string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:    fsWatcher,
		classifier: classifier,
		events:     make(chan *WatchEvent, 100),
		errors:     make(chan error, 10),
		done:       make(chan struct{}),
	}

	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			fsWatcher.Close()
			return nil, err
		}
	}

	go w.processEvents()

	return w, nil
}

// addRecursive adds a directory and all its subdirectories to the watcher
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && shouldSkipFolder(d.Name()) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

// processEvents processes raw fsnotify events and filters/converts them
func (w *Watcher) processEvents() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// New folders get watched too; their files arrive as their own events
			if event.Op&fsnotify.Create == fsnotify.Create {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.sendError(err)
					}
					continue
				}
			}

			if w.classifier.Classify(event.Name) == CategoryRejected {
				continue
			}

			watchEvent := &WatchEvent{Path: event.Name}
			switch {
			case event.Op&fsnotify.Create == fsnotify.Create:
				watchEvent.Type = EventCreate
			case event.Op&fsnotify.Remove == fsnotify.Remove:
				watchEvent.Type = EventDelete
			case event.Op&fsnotify.Rename == fsnotify.Rename:
				// fsnotify reports the old name only; the new one arrives as Create
				watchEvent.Type = EventRename
			default:
				continue
			}

			select {
			case w.events <- watchEvent:
			case <-w.done:
				return
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendError(err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) sendError(err error) {
	select {
	case w.errors <- err:
	default:
		// Error channel is full, drop error
	}
}

// Events returns the channel of filtered watch events
func (w *Watcher) Events() <-chan *WatchEvent {
	return w.events
}

// Errors returns the channel of watcher errors
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher and cleans up resources
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

// ApplyWatchEvents feeds watcher events into the registry until ctx is done.
// Events are batched until debounce passes without a new one; each batch is
// then applied, analyzed, and the tree rebuilt and handed to onBatch.
func ApplyWatchEvents(ctx context.Context, reg *Registry, w *Watcher, debounce time.Duration, onBatch func(*Tree)) error {
	pending := make(map[string]EventType)
	var order []string

	timer := time.NewTimer(debounce)
	timer.Stop()

	flush := func() error {
		if len(order) == 0 {
			return nil
		}
		for _, path := range order {
			switch pending[path] {
			case EventCreate:
				if reg.Contains(path) > 0 {
					continue
				}
				reg.Add(path, filepath.Dir(path))
			case EventDelete, EventRename:
				if reg.Contains(path) > 0 {
					reg.Remove(path)
				}
			}
		}
		reg.log.WithField("events", len(order)).Info("Applied watch batch")
		pending = make(map[string]EventType)
		order = order[:0]

		if err := reg.Update(ctx); err != nil {
			return err
		}
		t := reg.BuildTree()
		if onBatch != nil {
			onBatch(t)
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case ev := <-w.Events():
			if _, seen := pending[ev.Path]; !seen {
				order = append(order, ev.Path)
			}
			pending[ev.Path] = ev.Type
			timer.Reset(debounce)

		case err := <-w.Errors():
			reg.log.WithFields(logrus.Fields{"error": err}).Warn("Watcher error")

		case <-timer.C:
			if err := flush(); err != nil {
				return err
			}
		}
	}
}
