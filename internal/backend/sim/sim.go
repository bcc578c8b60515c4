// Package sim is a capture backend without hardware. Devices are
// described by their capability lists; frames are either generated on a
// timer or fed explicitly, and device loss and stream errors can be
// injected at any point.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/smazurov/vidcap/internal/backend"
	"github.com/smazurov/vidcap/internal/format"
	"github.com/smazurov/vidcap/internal/logging"
)

// Identifier is the backend identifier.
const Identifier = "sim"

// ErrUnknownDevice is returned when opening a device that is not present.
var ErrUnknownDevice = errors.New("sim: unknown device")

// DeviceConfig describes one simulated device.
type DeviceConfig struct {
	Identifier   string              `toml:"identifier" json:"identifier"`
	Description  string              `toml:"description" json:"description"`
	Capabilities []format.Capability `toml:"capabilities" json:"capabilities"`
}

// Failures makes the next matching operation fail with the given error.
// Each field is consumed by one call.
type Failures struct {
	Open  error
	Bind  error
	Start error
}

// Options configures the backend.
type Options struct {
	Devices []DeviceConfig

	// Manual disables the frame generator; frames are delivered only
	// through Device.Feed.
	Manual bool

	// Logger for backend operations. If nil, the "sim" module logger.
	Logger *slog.Logger
}

// Backend is the simulated backend.
type Backend struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	devices  []DeviceConfig
	open     map[string]*Device
	watchers map[chan struct{}]struct{}
	failures Failures
	closed   bool
}

var _ backend.Backend = (*Backend)(nil)

// New returns a backend presenting opts.Devices.
func New(opts Options) *Backend {
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("sim")
	}
	return &Backend{
		opts:     opts,
		logger:   logger,
		devices:  slices.Clone(opts.Devices),
		open:     make(map[string]*Device),
		watchers: make(map[chan struct{}]struct{}),
	}
}

// DefaultDevices returns a small device set for demos: a webcam offering
// I420 and YUY2 at common sizes and a fixed-size RGB24 capture card.
func DefaultDevices() []DeviceConfig {
	fast := format.Interval{Numerator: 1, Denominator: 30}
	slow := format.Interval{Numerator: 1, Denominator: 1}
	return []DeviceConfig{
		{
			Identifier:  "cam0",
			Description: "Simulated webcam",
			Capabilities: []format.Capability{
				format.Fixed(format.FourccI420, 640, 480, fast, slow),
				format.Fixed(format.FourccI420, 320, 240, fast, slow),
				format.Fixed(format.FourccYUY2, 1280, 720, format.Interval{Numerator: 1, Denominator: 10}, slow),
			},
		},
		{
			Identifier:  "card0",
			Description: "Simulated capture card",
			Capabilities: []format.Capability{
				format.Fixed(format.FourccRGB24, 720, 480, format.Interval{Numerator: 1001, Denominator: 30000}, format.Interval{}),
			},
		},
	}
}

// Info implements backend.Backend.
func (b *Backend) Info() backend.Info {
	return backend.Info{Identifier: Identifier, Description: "Simulated capture devices"}
}

// Scan implements backend.Backend.
func (b *Backend) Scan(_ context.Context) ([]backend.SourceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]backend.SourceInfo, 0, len(b.devices))
	for _, d := range b.devices {
		out = append(out, backend.SourceInfo{Identifier: d.Identifier, Description: d.Description})
	}
	return out, nil
}

// Open implements backend.Backend.
func (b *Backend) Open(_ context.Context, src backend.SourceInfo) (backend.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("sim: backend closed")
	}
	if err := b.failures.Open; err != nil {
		b.failures.Open = nil
		return nil, err
	}

	i := slices.IndexFunc(b.devices, func(d DeviceConfig) bool { return d.Identifier == src.Identifier })
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, src.Identifier)
	}
	if _, busy := b.open[src.Identifier]; busy {
		return nil, fmt.Errorf("sim: device %s busy", src.Identifier)
	}

	cfg := b.devices[i]
	d := &Device{
		backend: b,
		info:    backend.SourceInfo{Identifier: cfg.Identifier, Description: cfg.Description},
		caps:    slices.Clone(cfg.Capabilities),
		manual:  b.opts.Manual,
		logger:  b.logger.With("device", cfg.Identifier),
	}
	b.open[cfg.Identifier] = d
	b.logger.Debug("Opened device", "device", cfg.Identifier)
	return d, nil
}

// Watch implements backend.Backend.
func (b *Backend) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, errors.New("sim: backend closed")
	}
	b.watchers[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if _, ok := b.watchers[ch]; ok {
			delete(b.watchers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}()
	return ch, nil
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for ch := range b.watchers {
		close(ch)
	}
	clear(b.watchers)
	return nil
}

// InjectFailures arms one-shot failures for the next operations.
func (b *Backend) InjectFailures(f Failures) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = f
}

// AddDevice plugs in a device and notifies watchers.
func (b *Backend) AddDevice(cfg DeviceConfig) {
	b.mu.Lock()
	b.devices = append(b.devices, cfg)
	b.signalLocked()
	b.mu.Unlock()
	b.logger.Info("Device added", "device", cfg.Identifier)
}

// RemoveDevice unplugs a device. An open device reports itself lost.
func (b *Backend) RemoveDevice(identifier string) {
	b.mu.Lock()
	b.devices = slices.DeleteFunc(b.devices, func(d DeviceConfig) bool { return d.Identifier == identifier })
	d := b.open[identifier]
	b.signalLocked()
	b.mu.Unlock()

	if d != nil {
		d.Inject(backend.Event{Code: backend.EventDeviceLost, Err: errors.New("device unplugged")})
	}
	b.logger.Info("Device removed", "device", identifier)
}

// Device returns the open device with identifier, or nil.
func (b *Backend) Device(identifier string) *Device {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open[identifier]
}

func (b *Backend) signalLocked() {
	for ch := range b.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (b *Backend) takeFailure(field *error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := *field
	*field = nil
	return err
}

func (b *Backend) release(identifier string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.open, identifier)
}
