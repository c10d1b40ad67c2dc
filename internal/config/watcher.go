package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a config file when it changes and hands the fresh value
// to every registered handler.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	loader   func(path string) (T, error)
	log      zerolog.Logger

	mu       sync.Mutex
	handlers []func(T)

	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce sets the quiet period before a reload.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) { w.debounce = d }
}

// NewWatcher creates a watcher for path. loader is called on every change.
func NewWatcher[T any](path string, loader func(string) (T, error), log zerolog.Logger, opts ...WatcherOption[T]) *Watcher[T] {
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		loader:   loader,
		log:      log,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload registers a handler. Handlers run on the watcher goroutine.
func (w *Watcher[T]) OnReload(fn func(T)) {
	w.mu.Lock()
	w.handlers = append(w.handlers, fn)
	w.mu.Unlock()
}

// Start watches the file's directory, so editors that replace the file by
// rename are seen too.
func (w *Watcher[T]) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("config watcher: %w", err)
	}
	w.fsw = fsw

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.log.Info().Str("path", w.path).Dur("debounce", w.debounce).Msg("config watcher started")
	go w.watch(ctx)
	return nil
}

// Stop ends the watch and waits for the goroutine to exit.
func (w *Watcher[T]) Stop() error {
	if w.fsw == nil {
		return nil
	}
	w.cancel()
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher[T]) watch(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.log.Debug().Str("op", ev.Op.String()).Msg("config change detected")
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher[T]) reload() {
	v, err := w.loader(w.path)
	if err != nil {
		w.log.Warn().Err(err).Msg("config reload failed, keeping current settings")
		return
	}

	w.mu.Lock()
	handlers := append([]func(T){}, w.handlers...)
	w.mu.Unlock()

	w.log.Info().Msg("config reloaded")
	for _, fn := range handlers {
		fn(v)
	}
}
