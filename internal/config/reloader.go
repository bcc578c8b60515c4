package config

import (
	"context"
	"crypto/sha256"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the file must stay quiet before a reload.
const DefaultDebounce = 1500 * time.Millisecond

// Reloader applies a settings file again each time it changes on disk.
// Writes that leave the content unchanged, and files that fail to load,
// never reach Apply.
type Reloader[T any] struct {
	Path     string
	Load     func(path string) (T, error)
	Apply    func(T)
	OnError  func(error) // optional, called when Load fails
	Debounce time.Duration
	Logger   *slog.Logger

	mu     sync.Mutex
	fsw    *fsnotify.Watcher
	cancel context.CancelFunc
	done   chan struct{}
	digest [sha256.Size]byte
}

// Start begins watching. The parent directory is watched so editors that
// save by renaming a new file over the old one are followed.
func (r *Reloader[T]) Start(ctx context.Context) error {
	if r.Load == nil || r.Apply == nil {
		return errors.New("config: reloader needs Load and Apply")
	}
	if r.Debounce <= 0 {
		r.Debounce = DefaultDebounce
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
	r.Path = filepath.Clean(r.Path)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(r.Path)); err != nil {
		_ = fsw.Close()
		return err
	}

	// The content present now is what the process was started with.
	if data, err := os.ReadFile(r.Path); err == nil {
		r.digest = sha256.Sum256(data)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ctx, r.cancel = context.WithCancel(ctx)
	r.fsw = fsw
	r.done = make(chan struct{})
	go r.loop(ctx, fsw, r.done)

	r.Logger.Info("Watching settings file", "path", r.Path, "debounce", r.Debounce)
	return nil
}

// Stop ends watching and waits until no Apply is running. It may be
// called without Start and more than once.
func (r *Reloader[T]) Stop() error {
	r.mu.Lock()
	cancel, fsw, done := r.cancel, r.fsw, r.done
	r.cancel, r.fsw, r.done = nil, nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	err := fsw.Close()
	<-done
	return err
}

func (r *Reloader[T]) loop(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	quiet := time.NewTimer(r.Debounce)
	quiet.Stop()
	defer quiet.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) == r.Path && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				quiet.Reset(r.Debounce)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			r.Logger.Warn("Settings watcher error", "error", err)
		case <-quiet.C:
			if ctx.Err() == nil {
				r.reload()
			}
		}
	}
}

func (r *Reloader[T]) reload() {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		r.fail(err)
		return
	}
	sum := sha256.Sum256(data)
	if sum == r.digest {
		r.Logger.Debug("Settings file touched without changes", "path", r.Path)
		return
	}

	value, err := r.Load(r.Path)
	if err != nil {
		r.fail(err)
		return
	}
	r.digest = sum
	r.Logger.Info("Settings file changed", "path", r.Path)
	r.Apply(value)
}

func (r *Reloader[T]) fail(err error) {
	r.Logger.Warn("Failed to reload settings, keeping current values", "path", r.Path, "error", err)
	if r.OnError != nil {
		r.OnError(err)
	}
}
