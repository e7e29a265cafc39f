// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upload

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/docchat/internal/config"
)

// UploadFunc sends a batch of files. client.Client.Upload fits once its
// result is dropped.
type UploadFunc func(ctx context.Context, paths []string) error

// =============================================================================
// FOLDER WATCHER
// =============================================================================

// Watcher uploads documents that appear in a folder. Files are sent once
// they have been quiet for the debounce interval, so a copy in progress is
// not uploaded half written.
type Watcher struct {
	dir      string
	cfg      config.UploadConfig
	upload   UploadFunc
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time // path -> last change
	sent    map[string]time.Time // path -> mod time when uploaded

	ctx    context.Context
	cancel context.CancelFunc
	done   sync.WaitGroup
}

// NewWatcher creates a watcher for dir. Nothing happens until Watch.
func NewWatcher(dir string, cfg config.UploadConfig, upload UploadFunc) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New(dir + " is not a directory")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := cfg.WatchDebounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		dir:      dir,
		cfg:      cfg,
		upload:   upload,
		watcher:  fw,
		debounce: debounce,
		pending:  make(map[string]time.Time),
		sent:     make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Watch starts watching. Existing files are left alone; only files created
// or rewritten afterwards are uploaded.
func (w *Watcher) Watch() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	w.done.Add(2)
	go w.processEvents()
	go w.processPending()

	slog.Info("UPLOAD_WATCH_START", "dir", w.dir, "debounce", w.debounce)
	return nil
}

// Close stops watching and waits for an upload in progress to finish.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.watcher.Close()
	w.done.Wait()
	return err
}

func (w *Watcher) processEvents() {
	defer w.done.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("UPLOAD_WATCH_PANIC", "error", r)
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.handleChange(event.Name)
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.forget(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("UPLOAD_WATCH_ERROR", "error", err)
		}
	}
}

func (w *Watcher) handleChange(path string) {
	if !Allowed(path, w.cfg.AllowedExtensions) {
		return
	}
	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) forget(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	delete(w.sent, path)
	w.mu.Unlock()
}

func (w *Watcher) processPending() {
	defer w.done.Done()

	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case now := <-ticker.C:
			if ready := w.ready(now); len(ready) > 0 {
				w.send(ready)
			}
		}
	}
}

// ready removes and returns the pending paths that have settled.
func (w *Watcher) ready(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []string
	for path, changed := range w.pending {
		if now.Sub(changed) >= w.debounce {
			out = append(out, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) send(paths []string) {
	accepted, rejected := Collect(paths, w.cfg)
	for _, r := range rejected {
		slog.Warn("UPLOAD_WATCH_SKIPPED", "path", r.Path, "reason", r.Reason)
	}

	// Skip files whose content was already sent.
	var batch []string
	mods := make(map[string]time.Time, len(accepted))
	w.mu.Lock()
	for _, p := range accepted {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if sent, ok := w.sent[p]; ok && sent.Equal(info.ModTime()) {
			continue
		}
		mods[p] = info.ModTime()
		batch = append(batch, p)
	}
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	if err := w.upload(w.ctx, batch); err != nil {
		slog.Error("UPLOAD_WATCH_FAILED", "files", len(batch), "error", err)
		return
	}

	w.mu.Lock()
	for p, mod := range mods {
		w.sent[p] = mod
	}
	w.mu.Unlock()
	slog.Info("UPLOAD_WATCH_SENT", "files", batch)
}
