package vidcap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/smazurov/vidcap/internal/backend"
	"github.com/smazurov/vidcap/internal/capture"
	"github.com/smazurov/vidcap/internal/devices"
	"github.com/smazurov/vidcap/internal/monitor"
)

// SourcesChangedFunc is called on the backend's monitor goroutine when
// its device set changes. A non-zero return unregisters it.
type SourcesChangedFunc func(b *Backend, userData any) int

// Backend is an acquired backend. It owns a monitor goroutine that
// watches running captures and the device set.
type Backend struct {
	ctx     *Context
	driver  backend.Backend
	info    BackendInfo
	refs    *atomic.Int32
	monitor *monitor.Monitor
	tracker *devices.Tracker
	logger  *slog.Logger

	mu          sync.Mutex
	list        []SourceInfo
	sources     map[*Source]struct{}
	stopWatch   context.CancelFunc
	watchSerial int
	released    bool
}

func newBackend(c *Context, driver backend.Backend, refs *atomic.Int32) *Backend {
	info := driver.Info()
	logger := c.logger.With("backend", info.Identifier)

	var bus monitor.Publisher
	var trackerBus devices.Publisher
	if c.opts.Bus != nil {
		bus = c.opts.Bus
		trackerBus = c.opts.Bus
	}

	return &Backend{
		ctx:     c,
		driver:  driver,
		info:    info,
		refs:    refs,
		monitor: monitor.New(monitor.Options{Backend: info.Identifier, Bus: bus, Logger: logger}),
		tracker: devices.NewTracker(info.Identifier, driver, trackerBus, logger),
		logger:  logger,
		sources: make(map[*Source]struct{}),
	}
}

// Info returns the backend's identity.
func (b *Backend) Info() BackendInfo { return b.info }

// Release releases every source still acquired, stops the monitor and
// returns the backend to the Context.
func (b *Backend) Release() error {
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return capture.NewError(capture.CodeInvalidStateTransition, "backend already released",
			map[string]any{"backend": b.info.Identifier})
	}
	b.released = true
	held := make([]*Source, 0, len(b.sources))
	for s := range b.sources {
		held = append(held, s)
	}
	stop := b.stopWatch
	b.stopWatch = nil
	b.mu.Unlock()

	var errs []error
	for _, s := range held {
		if err := s.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	if stop != nil {
		stop()
	}
	b.monitor.Close()

	b.refs.Add(-1)
	b.ctx.forget(b)
	b.logger.Info("Backend released", "sources", len(held))
	return errors.Join(errs...)
}

// SrcsNotify registers fn for device set changes, replacing any previous
// registration. A nil fn unregisters. When the backend cannot watch its
// devices nothing is registered and an error is returned.
func (b *Backend) SrcsNotify(fn SourcesChangedFunc, userData any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return capture.NewError(capture.CodeInvalidStateTransition, "backend released", nil)
	}

	if b.stopWatch != nil {
		b.stopWatch()
		b.stopWatch = nil
	}
	if fn == nil {
		b.monitor.SetNotify(nil, nil)
		b.logger.Debug("Source notifications unregistered")
		return nil
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	changes, err := b.driver.Watch(watchCtx)
	if err != nil {
		cancel()
		return capture.NewErrorWithCause(capture.CodeBackendResourceFailure, "cannot monitor sources", err,
			map[string]any{"backend": b.info.Identifier})
	}

	// The baseline makes the first notification report real changes only.
	if _, err := b.tracker.Refresh(watchCtx); err != nil {
		cancel()
		return capture.NewErrorWithCause(capture.CodeBackendResourceFailure, "cannot scan sources", err,
			map[string]any{"backend": b.info.Identifier})
	}

	b.watchSerial++
	serial := b.watchSerial
	b.stopWatch = cancel

	b.monitor.SetNotify(changes, func() int {
		diff, err := b.tracker.Refresh(watchCtx)
		if err != nil {
			b.logger.Warn("Source rescan failed", "error", err)
			return 0
		}
		if diff.Empty() {
			return 0
		}
		b.logger.Info("Sources changed",
			"added", len(diff.Added), "removed", len(diff.Removed), "changed", len(diff.Changed))

		if ret := fn(b, userData); ret != 0 {
			b.endWatch(serial)
			return ret
		}
		return 0
	})

	b.logger.Debug("Source notifications registered")
	return nil
}

// endWatch cancels the watch registered as serial if it is still current.
func (b *Backend) endWatch(serial int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watchSerial == serial && b.stopWatch != nil {
		b.stopWatch()
		b.stopWatch = nil
	}
}

// SrcListUpdate rescans the backend's devices and returns how many there
// are. The list is kept for SrcListGet and SrcAcquire(nil).
func (b *Backend) SrcListUpdate(ctx context.Context) (int, error) {
	list, err := b.driver.Scan(ctx)
	if err != nil {
		return 0, capture.NewErrorWithCause(capture.CodeBackendResourceFailure, "failed to enumerate sources", err,
			map[string]any{"backend": b.info.Identifier})
	}

	b.mu.Lock()
	b.list = list
	b.mu.Unlock()

	b.logger.Debug("Source list updated", "count", len(list))
	return len(list), nil
}

// SrcListGet copies the list of the last SrcListUpdate into buf and
// returns the number of entries. buf must hold at least that many.
func (b *Backend) SrcListGet(buf []SourceInfo) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(buf) < len(b.list) {
		return 0, fmt.Errorf("%w: have %d, need %d", ErrShortBuffer, len(buf), len(b.list))
	}
	return copy(buf, b.list), nil
}

// SrcAcquire acquires src exclusively. A nil src selects the first source
// of the list, scanning first when the list is empty.
func (b *Backend) SrcAcquire(ctx context.Context, src *SourceInfo) (*Source, error) {
	if src == nil {
		b.mu.Lock()
		empty := len(b.list) == 0
		b.mu.Unlock()
		if empty {
			if _, err := b.SrcListUpdate(ctx); err != nil {
				return nil, err
			}
		}

		b.mu.Lock()
		if len(b.list) == 0 {
			b.mu.Unlock()
			return nil, capture.NewError(capture.CodeBackendResourceFailure, "backend has no sources",
				map[string]any{"backend": b.info.Identifier})
		}
		first := b.list[0]
		b.mu.Unlock()
		src = &first
	}

	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		return nil, capture.NewError(capture.CodeInvalidStateTransition, "backend released", nil)
	}
	b.mu.Unlock()

	c := b.ctx
	cs, err := capture.Acquire(ctx, b.driver, *src, capture.Options{
		Monitor:       b.monitor,
		Registry:      c.registry,
		Pacing:        c.currentPacing(),
		PermitRescale: c.opts.PermitRescale,
		MaxFrameBytes: c.opts.MaxFrameBytes,
		Clock:         c.opts.Clock,
		Bus:           b.captureBus(),
	})
	if err != nil {
		return nil, err
	}

	s := &Source{backend: b, src: cs}
	b.mu.Lock()
	if b.released {
		b.mu.Unlock()
		_ = cs.Release()
		return nil, capture.NewError(capture.CodeInvalidStateTransition, "backend released", nil)
	}
	b.sources[s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

func (b *Backend) captureBus() capture.Publisher {
	if b.ctx.opts.Bus == nil {
		return nil
	}
	return b.ctx.opts.Bus
}

func (b *Backend) forget(s *Source) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sources, s)
}

func (b *Backend) acquiredSources() []*Source {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Source, 0, len(b.sources))
	for s := range b.sources {
		out = append(out, s)
	}
	return out
}

func (b *Backend) setPacing(cfg PacingConfig) {
	for _, s := range b.acquiredSources() {
		s.src.SetPacing(cfg)
	}
}
