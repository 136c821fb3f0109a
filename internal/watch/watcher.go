// Package watch triggers sync runs when Client files land in the inbound
// directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// TriggerFunc runs one sync cycle.
type TriggerFunc func(ctx context.Context) error

// Watcher watches a single directory for *.json changes and calls its
// trigger once the directory has been quiet for the debounce interval.
type Watcher struct {
	dir      string
	debounce time.Duration
	trigger  TriggerFunc
	log      logrus.FieldLogger

	// RunOnStart triggers one cycle before the first event arrives.
	RunOnStart bool
}

// New returns a Watcher for dir.
func New(dir string, debounce time.Duration, trigger TriggerFunc, log logrus.FieldLogger) *Watcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	return &Watcher{
		dir:        dir,
		debounce:   debounce,
		trigger:    trigger,
		log:        log.WithField("dir", dir),
		RunOnStart: true,
	}
}

// Run blocks until ctx is cancelled or the underlying watcher fails.
// Trigger errors are logged; they do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", w.dir, err)
	}
	w.log.WithField("debounce", w.debounce.String()).Info("watching for client files")

	if w.RunOnStart {
		w.fire(ctx)
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return errors.New("fsnotify event channel closed")
			}
			if !relevant(ev) {
				continue
			}
			w.log.WithFields(logrus.Fields{"file": filepath.Base(ev.Name), "op": ev.Op.String()}).Debug("client file changed")
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true

		case <-timer.C:
			pending = false
			w.fire(ctx)

		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("fsnotify error channel closed")
			}
			w.log.WithError(err).Warn("watcher error")
		}
	}
}

func (w *Watcher) fire(ctx context.Context) {
	if err := w.trigger(ctx); err != nil {
		w.log.WithError(err).Error("triggered sync failed")
	}
}

// relevant reports whether ev may have produced a new or changed Client file.
func relevant(ev fsnotify.Event) bool {
	if !strings.HasSuffix(ev.Name, ".json") || strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)
}
