// Package vidcap is a uniform video capture API over the platform capture
// backends. A Context is created once per process; backends are acquired
// from it, sources from a backend, and frames are delivered from a source
// to a callback in the format the application asked for.
//
//	vc, err := vidcap.Initialize(vidcap.Options{})
//	if err != nil {
//		return err
//	}
//	defer vc.Destroy()
//
//	b, err := vc.SapiAcquire(nil)
//	src, err := b.SrcAcquire(ctx, nil)
//	err = src.FormatBind(&vidcap.Format{Width: 640, Height: 480,
//		Fourcc: vidcap.FourccI420, FPSNumerator: 30, FPSDenominator: 1})
//	err = src.CaptureStart(func(s *vidcap.Source, _ any, info *vidcap.CaptureInfo) int {
//		return 0
//	}, nil)
package vidcap

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/vidcap/internal/backend"
	"github.com/smazurov/vidcap/internal/backend/sim"
	"github.com/smazurov/vidcap/internal/capture"
	"github.com/smazurov/vidcap/internal/events"
	"github.com/smazurov/vidcap/internal/format"
	"github.com/smazurov/vidcap/internal/logging"
	"github.com/smazurov/vidcap/internal/metrics"
	"github.com/smazurov/vidcap/internal/pacing"
)

type (
	// Fourcc identifies a pixel encoding.
	Fourcc = format.Fourcc
	// Format is a width, height, encoding and frame rate.
	Format = format.Descriptor
	// BackendInfo identifies a backend.
	BackendInfo = backend.Info
	// SourceInfo identifies a capture device within a backend.
	SourceInfo = backend.SourceInfo
	// CaptureInfo describes one callback invocation.
	CaptureInfo = capture.CaptureInfo
	// State is a source lifecycle state.
	State = capture.State
	// PacingConfig tunes frame rate enforcement.
	PacingConfig = pacing.Config
	// SimulatedDevice describes a device of the simulated backend.
	SimulatedDevice = sim.DeviceConfig
)

// Pixel encodings.
const (
	FourccI420          = format.FourccI420
	FourccYUY2          = format.FourccYUY2
	FourccRGB32         = format.FourccRGB32
	FourccRGB24         = format.FourccRGB24
	FourccRGB555        = format.FourccRGB555
	FourccYVU9          = format.FourccYVU9
	Fourcc2VUY          = format.Fourcc2VUY
	FourccBottomUpRGB24 = format.FourccBottomUpRGB24
)

// Source lifecycle states.
const (
	StateAcquired  = capture.StateAcquired
	StateBound     = capture.StateBound
	StateCapturing = capture.StateCapturing
	StateReleased  = capture.StateReleased
)

// ErrorStatus values of a terminal callback.
const (
	StatusConversionFailed = backend.StatusConversionFailed
	StatusDeviceLost       = backend.StatusDeviceLost
	StatusAborted          = backend.StatusAborted
)

// SimulatedIdentifier is the identifier of the simulated backend.
const SimulatedIdentifier = sim.Identifier

// Options configures a Context.
type Options struct {
	// Backends lists the backend identifiers to enable, in enumeration
	// order. Empty enables DefaultBackends.
	Backends []string

	// Simulated configures the simulated backend when it is enabled. With
	// no devices listed it presents a small demo set.
	Simulated SimulatedOptions

	// V4L2Buffers is the number of mmap buffers per V4L2 stream.
	V4L2Buffers int

	// Hotplug uses kernel uevents for source change notifications where
	// available; otherwise device nodes are watched on the filesystem.
	Hotplug bool

	// Settle delays source change notifications after device activity.
	Settle time.Duration

	Pacing PacingConfig

	// PermitRescale lets a bind fall back to the device's largest mode
	// with software rescaling when no native format fits.
	PermitRescale bool

	// MaxFrameBytes bounds the buffers a single bind may allocate.
	MaxFrameBytes int

	// Clock supplies frame timestamps. If nil, time.Now.
	Clock func() time.Time

	// Bus receives source, capture and monitor events (optional).
	Bus *events.Bus

	// Logger for context operations. If nil, the "vidcap" module logger.
	Logger *slog.Logger
}

// SimulatedOptions configures the simulated backend.
type SimulatedOptions struct {
	Devices []SimulatedDevice
	// Manual disables the frame generator so frames are only fed by tests.
	Manual bool
}

// Context is the process-wide capture state.
type Context struct {
	opts     Options
	logger   *slog.Logger
	registry *capture.Registry
	drivers  []backend.Backend
	refs     []atomic.Int32

	mu        sync.Mutex
	pacing    PacingConfig
	acquired  map[*Backend]struct{}
	destroyed bool
}

// Initialize builds every enabled backend.
func Initialize(opts Options) (*Context, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("vidcap")
	}
	ids := opts.Backends
	if len(ids) == 0 {
		ids = DefaultBackends()
	}

	c := &Context{
		opts:     opts,
		logger:   logger,
		registry: capture.NewRegistry(),
		pacing:   opts.Pacing,
		acquired: make(map[*Backend]struct{}),
	}

	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		f, ok := lookupFactory(id)
		if !ok {
			c.closeDrivers()
			return nil, fmt.Errorf("vidcap: backend %q is not available, have %v", id, AvailableBackends())
		}
		c.drivers = append(c.drivers, f.build(&opts))
	}
	c.refs = make([]atomic.Int32, len(c.drivers))

	logger.Info("Initialized", "backends", ids)
	return c, nil
}

// Destroy releases every backend still acquired, then frees the backends.
// The Context is unusable afterwards.
func (c *Context) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	held := make([]*Backend, 0, len(c.acquired))
	for b := range c.acquired {
		held = append(held, b)
	}
	c.mu.Unlock()

	var errs []error
	for _, b := range held {
		if err := b.Release(); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, c.closeDrivers())

	if n := c.registry.Len(); n > 0 {
		c.logger.Warn("Sources still claimed after destroy", "sources", n)
	}
	c.logger.Info("Destroyed")
	return errors.Join(errs...)
}

func (c *Context) closeDrivers() error {
	var errs []error
	for _, d := range c.drivers {
		if err := d.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close backend %s: %w", d.Info().Identifier, err))
		}
	}
	return errors.Join(errs...)
}

// SapiEnumerate returns the index-th enabled backend.
func (c *Context) SapiEnumerate(index int) (BackendInfo, bool) {
	if index < 0 || index >= len(c.drivers) {
		return BackendInfo{}, false
	}
	return c.drivers[index].Info(), true
}

// SapiAcquire acquires the backend identified by info, or the first one
// when info is nil. A backend is held by one owner at a time.
func (c *Context) SapiAcquire(info *BackendInfo) (*Backend, error) {
	idx := 0
	if info != nil {
		idx = slices.IndexFunc(c.drivers, func(d backend.Backend) bool {
			return d.Info().Identifier == info.Identifier
		})
	}
	if idx < 0 || idx >= len(c.drivers) {
		return nil, capture.NewError(capture.CodeBackendResourceFailure, "no such backend", map[string]any{"backend": info})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, capture.NewError(capture.CodeInvalidStateTransition, "context destroyed", nil)
	}

	if !c.refs[idx].CompareAndSwap(0, 1) {
		return nil, capture.NewError(capture.CodeAlreadyAcquired, "backend already acquired",
			map[string]any{"backend": c.drivers[idx].Info().Identifier})
	}

	b := newBackend(c, c.drivers[idx], &c.refs[idx])
	c.acquired[b] = struct{}{}
	b.logger.Info("Backend acquired")
	return b, nil
}

// SetPacing changes the pacing parameters for captures started afterwards.
func (c *Context) SetPacing(cfg PacingConfig) {
	c.mu.Lock()
	c.pacing = cfg
	held := make([]*Backend, 0, len(c.acquired))
	for b := range c.acquired {
		held = append(held, b)
	}
	c.mu.Unlock()

	for _, b := range held {
		b.setPacing(cfg)
	}
	c.logger.Info("Pacing updated", "history_seconds", cfg.HistorySeconds, "floor_factor", cfg.FloorFactor)
}

func (c *Context) currentPacing() PacingConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pacing
}

func (c *Context) forget(b *Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.acquired, b)
}

// driver returns the backend implementation by identifier.
func (c *Context) driver(id string) backend.Backend {
	for _, d := range c.drivers {
		if d.Info().Identifier == id {
			return d
		}
	}
	return nil
}

// SessionInfo describes one acquired source.
type SessionInfo struct {
	Backend    string                 `json:"backend"`
	Source     SourceInfo             `json:"source"`
	State      string                 `json:"state"`
	Format     *Format                `json:"format,omitempty"`
	Native     *Format                `json:"native,omitempty"`
	Conversion string                 `json:"conversion,omitempty"`
	Session    string                 `json:"session,omitempty"`
	Metrics    *metrics.SourceMetrics `json:"metrics,omitempty"`
}

// Sessions describes every source acquired through this Context.
func (c *Context) Sessions() []SessionInfo {
	c.mu.Lock()
	held := make([]*Backend, 0, len(c.acquired))
	for b := range c.acquired {
		held = append(held, b)
	}
	c.mu.Unlock()

	var out []SessionInfo
	for _, b := range held {
		for _, s := range b.acquiredSources() {
			out = append(out, s.describe())
		}
	}
	slices.SortFunc(out, func(a, b SessionInfo) int {
		return cmp.Compare(a.Backend+"/"+a.Source.Identifier, b.Backend+"/"+b.Source.Identifier)
	})
	return out
}

// FourccString returns the diagnostic name of f, or "????".
func FourccString(f Fourcc) string { return f.String() }

// ParseFourcc is the inverse of FourccString.
func ParseFourcc(name string) (Fourcc, error) { return format.ParseFourcc(name) }

// LogLevelSet changes the level of every logger: none, error, warn, info
// or debug.
func LogLevelSet(level string) error { return logging.SetLevel(level) }
