//go:build linux

// Package v4l2 is the Video4Linux2 capture backend. Devices stream through
// memory-mapped buffers; source identifiers are the stable /dev/v4l/by-id
// names so they survive re-enumeration.
package v4l2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/vidcap/internal/backend"
	"github.com/smazurov/vidcap/internal/devices"
	"github.com/smazurov/vidcap/internal/logging"
	v4l2dev "github.com/smazurov/vidcap/pkg/linuxav/v4l2"
)

// Identifier is the backend identifier.
const Identifier = "v4l2"

// DefaultBuffers is the mmap buffer count requested per stream.
const DefaultBuffers = 4

// Options configures the backend.
type Options struct {
	// Buffers is the number of mmap buffers per stream. Default 4.
	Buffers int

	// Hotplug uses kernel uevents for Watch; otherwise /dev is watched.
	Hotplug bool

	// Settle delays change signals after device activity. Default 500ms.
	Settle time.Duration

	// Logger for backend operations. If nil, the "v4l2" module logger.
	Logger *slog.Logger
}

// Backend is the V4L2 backend.
type Backend struct {
	opts   Options
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	opened map[string]bool
}

var _ backend.Backend = (*Backend)(nil)

// New returns a V4L2 backend.
func New(opts Options) *Backend {
	if opts.Buffers <= 0 {
		opts.Buffers = DefaultBuffers
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("v4l2")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Backend{opts: opts, logger: logger, ctx: ctx, cancel: cancel, opened: make(map[string]bool)}
}

// Info implements backend.Backend.
func (b *Backend) Info() backend.Info {
	return backend.Info{Identifier: Identifier, Description: "Video4Linux2"}
}

// Scan implements backend.Backend. Only nodes supporting streaming I/O
// are listed.
func (b *Backend) Scan(_ context.Context) ([]backend.SourceInfo, error) {
	found, err := v4l2dev.FindDevices()
	if err != nil {
		return nil, fmt.Errorf("scan video devices: %w", err)
	}

	sources := make([]backend.SourceInfo, 0, len(found))
	for _, d := range found {
		if !d.Streaming() {
			b.logger.Debug("Skipping device without streaming I/O", "path", d.DevicePath)
			continue
		}
		sources = append(sources, backend.SourceInfo{Identifier: d.DeviceID, Description: d.DeviceName})
	}
	return sources, nil
}

// Open implements backend.Backend.
func (b *Backend) Open(ctx context.Context, src backend.SourceInfo) (backend.Device, error) {
	if b.ctx.Err() != nil {
		return nil, errors.New("v4l2: backend closed")
	}

	path, err := devices.ResolveDevicePath(src.Identifier)
	if err != nil {
		return nil, err
	}

	if !b.claim(path) {
		return nil, fmt.Errorf("v4l2: %s is already open", path)
	}
	dev, err := v4l2dev.Open(path)
	if err != nil {
		b.release(path)
		return nil, err
	}

	slots, err := probe(dev)
	if err != nil {
		dev.Close()
		b.release(path)
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	if len(slots) == 0 {
		dev.Close()
		b.release(path)
		return nil, fmt.Errorf("%s offers no supported pixel format", path)
	}

	if src.Description == "" {
		src.Description = path
	}
	d := &Device{
		backend: b,
		info:    src,
		path:    path,
		dev:     dev,
		slots:   slots,
		buffers: b.opts.Buffers,
		logger:  b.logger.With("device", path),
	}
	d.logger.Info("Opened device",
		"id", src.Identifier,
		"capabilities", len(slots),
		"type", deviceType(v4l2dev.GetDeviceType(path)))
	return d, nil
}

// Watch implements backend.Backend.
func (b *Backend) Watch(ctx context.Context) (<-chan struct{}, error) {
	if b.ctx.Err() != nil {
		return nil, errors.New("v4l2: backend closed")
	}

	// Closing the backend ends every watch.
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-b.ctx.Done():
		case <-ctx.Done():
		}
		cancel()
	}()

	return devices.Watch(ctx, devices.WatchOptions{
		Hotplug: b.opts.Hotplug,
		Settle:  b.opts.Settle,
		Logger:  b.logger,
	})
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	b.cancel()
	return nil
}

func (b *Backend) claim(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.opened[path] {
		return false
	}
	b.opened[path] = true
	return true
}

func (b *Backend) release(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.opened, path)
}

func deviceType(t v4l2dev.DeviceType) string {
	switch t {
	case v4l2dev.DeviceTypeWebcam:
		return "webcam"
	case v4l2dev.DeviceTypeHDMI:
		return "hdmi"
	default:
		return "unknown"
	}
}
