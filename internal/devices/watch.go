package devices

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	// Hotplug enables kernel uevents where the platform has them. When
	// disabled or unavailable, Dir is watched instead.
	Hotplug bool

	// Dir holds the device nodes. Default "/dev".
	Dir string

	// Prefix selects device node names. Default "video".
	Prefix string

	// Settle delays the change signal until activity has been quiet this
	// long, giving the kernel time to finish creating nodes. Default 500ms.
	Settle time.Duration

	// Logger for watch operations. If nil, uses slog.Default().
	Logger *slog.Logger
}

func (o WatchOptions) withDefaults() WatchOptions {
	if o.Dir == "" {
		o.Dir = "/dev"
	}
	if o.Prefix == "" {
		o.Prefix = "video"
	}
	if o.Settle <= 0 {
		o.Settle = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// WatchDir signals when a node matching opts.Prefix appears in or
// disappears from opts.Dir. The channel is closed when ctx is done.
func WatchDir(ctx context.Context, opts WatchOptions) (<-chan struct{}, error) {
	opts = opts.withDefaults()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(opts.Dir); err != nil {
		watcher.Close()
		return nil, err
	}

	raw := make(chan struct{}, 1)
	go func() {
		defer close(raw)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if !strings.HasPrefix(filepath.Base(ev.Name), opts.Prefix) {
					continue
				}
				opts.Logger.Debug("Device node change", "path", ev.Name, "op", ev.Op.String())
				kick(raw)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				opts.Logger.Warn("Device directory watcher error", "error", err)
			}
		}
	}()

	opts.Logger.Info("Watching device directory", "dir", opts.Dir, "prefix", opts.Prefix)
	return settle(ctx, raw, opts.Settle), nil
}

// settle forwards one signal per burst on raw, after the burst has been
// quiet for delay. The output closes when raw closes or ctx is done.
func settle(ctx context.Context, raw <-chan struct{}, delay time.Duration) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)

		var timer *time.Timer
		var timerC <-chan time.Time
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-raw:
				if !ok {
					return
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.NewTimer(delay)
				timerC = timer.C
			case <-timerC:
				timerC = nil
				kick(out)
			}
		}
	}()
	return out
}

// kick is a non-blocking, coalescing send.
func kick(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
