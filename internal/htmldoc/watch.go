package htmldoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"classpane/internal/document"
	"classpane/internal/logging"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to end before reloading.
const DefaultDebounce = 100 * time.Millisecond

// Reload re-reads the source and applies outside edits. When the element
// structure is unchanged only elements whose attributes changed are
// reported; otherwise the tree is replaced and every element is reported.
// It returns the reported elements.
func (d *Document) Reload(ctx context.Context) ([]document.NodeID, error) {
	if d.src == "" {
		return nil, errors.New("htmldoc: document has no source to reload")
	}
	data, err := fetch(ctx, d.src, d.opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	return d.apply(ctx, data)
}

func (d *Document) apply(ctx context.Context, data []byte) ([]document.NodeID, error) {
	timer := logging.StartTimer(logging.CategoryHTMLDoc, "reparse")
	defer timer.StopWithThreshold(250 * time.Millisecond)

	d.mu.RLock()
	own := d.lastSaved != nil && bytes.Equal(data, d.lastSaved)
	d.mu.RUnlock()
	if own {
		return nil, nil
	}

	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reparse %s: %w", d.src, err)
	}
	next := buildTree(root)
	next.loadLinkedSheets(ctx, d.src, d.opts.HTTPClient, d.log)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, document.ErrClosed
	}
	var changed []document.NodeID
	structural := !d.tree.sameShape(next)
	if structural {
		seen := make(map[document.NodeID]struct{})
		for _, id := range append(d.tree.elements(), next.elements()...) {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				changed = append(changed, id)
			}
		}
	} else {
		changed = d.tree.changedElements(next)
	}
	d.tree = next
	if d.path != "" {
		d.lastSaved = data
	}
	d.mu.Unlock()

	d.log.Info("applied outside edit",
		zap.Bool("structural", structural),
		zap.Int("changed", len(changed)))
	for _, id := range changed {
		d.listeners.Notify(id)
	}
	return changed, nil
}

// Watch follows outside edits to the backing file until ctx is done or the
// document is closed. It returns once the watch is established.
func (d *Document) Watch(ctx context.Context) error {
	if d.path == "" {
		return errors.New("htmldoc: only local files can be watched")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return document.ErrClosed
	}
	if d.watcher != nil {
		return nil
	}
	w, err := newWatcher(d, DefaultDebounce)
	if err != nil {
		return err
	}
	// Editors often replace the file, so the directory is watched.
	if err := w.fs.Add(filepath.Dir(d.path)); err != nil {
		w.fs.Close()
		return fmt.Errorf("watch %s: %w", d.path, err)
	}
	d.watcher = w
	go w.run(ctx)
	d.log.Info("watching file", zap.String("path", d.path))
	return nil
}

type watcher struct {
	doc      *Document
	fs       *fsnotify.Watcher
	debounce time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newWatcher(doc *Document, debounce time.Duration) (*watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &watcher{
		doc:      doc,
		fs:       fs,
		debounce: debounce,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

func (w *watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.doc.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.doc.log.Warn("watch error", zap.Error(err))

		case <-fire:
			fire = nil
			if _, err := w.doc.Reload(ctx); err != nil {
				w.doc.log.Warn("reload failed", zap.String("path", w.doc.path), zap.Error(err))
			}
		}
	}
}

func (w *watcher) stop() error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
	return w.fs.Close()
}
