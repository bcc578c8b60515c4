//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/smazurov/vidcap/internal/backend"
	"github.com/smazurov/vidcap/internal/format"
	v4l2dev "github.com/smazurov/vidcap/pkg/linuxav/v4l2"
)

// pollTimeoutMs bounds how long the capture loop waits before checking
// for a stop request.
const pollTimeoutMs = 200

// Device is one opened V4L2 node.
type Device struct {
	backend *Backend
	info    backend.SourceInfo
	path    string
	dev     *v4l2dev.Device
	slots   []slot
	buffers int
	logger  *slog.Logger

	mu       sync.Mutex
	bound    *format.Match
	stride   int
	running  bool
	released bool
	stream   *v4l2dev.Stream
	relay    *backend.Relay
	events   chan backend.Event
	stop     chan struct{}
	done     chan struct{}
	notify   bool
}

var _ backend.Device = (*Device)(nil)

// Info implements backend.Device.
func (d *Device) Info() backend.SourceInfo { return d.info }

// Capabilities implements backend.Device.
func (d *Device) Capabilities() []format.Capability { return capabilities(d.slots) }

func capabilities(slots []slot) []format.Capability {
	caps := make([]format.Capability, len(slots))
	for i, s := range slots {
		caps[i] = s.cap
	}
	return caps
}

// Bind implements backend.Device. The driver must accept the exact
// capture size; a negotiated size that differs is an error.
func (d *Device) Bind(m format.Match) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.released:
		return errors.New("v4l2: device released")
	case d.running:
		return errors.New("v4l2: cannot bind while streaming")
	case m.Index < 0 || m.Index >= len(d.slots) || d.slots[m.Index].cap.Fourcc != m.Capture.Fourcc:
		return errors.New("v4l2: match does not refer to a device capability")
	}

	c := m.Capture
	pix, err := d.dev.SetFormat(uint32(c.Width), uint32(c.Height), d.slots[m.Index].pix)
	if err != nil {
		return fmt.Errorf("set format %s: %w", c, err)
	}
	if int(pix.Width) != c.Width || int(pix.Height) != c.Height {
		return fmt.Errorf("v4l2: driver negotiated %dx%d instead of %dx%d", pix.Width, pix.Height, c.Width, c.Height)
	}

	// Frame period is the inverse of the frame rate.
	set, err := d.dev.SetFrameInterval(v4l2dev.Fract{
		Numerator:   uint32(c.FPSDenominator),
		Denominator: uint32(c.FPSNumerator),
	})
	if err != nil {
		return fmt.Errorf("set frame interval: %w", err)
	}
	if !set {
		d.logger.Debug("Driver has no frame interval control, rate is paced in software")
	}

	d.bound = &m
	d.stride = int(pix.BytesPerLine)
	d.logger.Debug("Bound",
		"capture", c.String(),
		"pixel_format", v4l2dev.FormatFourCC(pix.PixelFormat),
		"bytes_per_line", pix.BytesPerLine)
	return nil
}

// Start implements backend.Device.
func (d *Device) Start(sink backend.Sink) (<-chan backend.Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.released:
		return nil, errors.New("v4l2: device released")
	case d.running:
		return nil, errors.New("v4l2: already streaming")
	case d.bound == nil:
		return nil, errors.New("v4l2: no format bound")
	}

	stream, err := d.dev.MapBuffers(d.buffers)
	if err != nil {
		return nil, err
	}

	d.notify = true
	if err := d.dev.SubscribeSourceChange(); err != nil {
		d.notify = false
		if !errors.Is(err, v4l2dev.ErrEventsNotSupported) {
			d.logger.Warn("Source change subscription failed", "error", err)
		}
	}

	if err := stream.Start(); err != nil {
		d.unsubscribe()
		_ = stream.Close()
		return nil, err
	}

	d.stream = stream
	d.relay = backend.NewRelay(sink, Identifier+"/"+d.info.Identifier, d.logger)
	d.events = make(chan backend.Event, 8)
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	d.running = true

	go d.capture(stream, d.relay, d.stride, d.events, d.stop, d.done)

	d.logger.Info("Streaming started", "buffers", stream.Len(), "source_events", d.notify)
	return d.events, nil
}

// Stop implements backend.Device.
func (d *Device) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	stream, relay, events := d.stream, d.relay, d.events
	close(d.stop)
	<-d.done
	d.stream, d.relay, d.events = nil, nil, nil

	err := stream.Close()
	d.unsubscribe()
	d.mu.Unlock()

	relay.Close()
	close(events)
	if err != nil && !errors.Is(err, v4l2dev.ErrDeviceGone) {
		d.logger.Warn("Stream teardown failed", "error", err)
	}
	d.logger.Info("Streaming stopped", "dropped", relay.Dropped())
	return nil
}

// Release implements backend.Device.
func (d *Device) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return errors.New("v4l2: device still streaming")
	}
	if d.released {
		return nil
	}
	d.released = true
	d.backend.release(d.path)
	return d.dev.Close()
}

func (d *Device) unsubscribe() {
	if d.notify {
		_ = d.dev.UnsubscribeSourceChange()
		d.notify = false
	}
}

// capture is the producer loop. Buffers are copied by the relay and
// requeued at once, so the driver never runs dry while the sink is busy.
func (d *Device) capture(stream *v4l2dev.Stream, relay *backend.Relay, stride int,
	events chan<- backend.Event, stop <-chan struct{}, done chan<- struct{},
) {
	defer close(done)

	emit := func(ev backend.Event) {
		select {
		case events <- ev:
		default:
			d.logger.Warn("Event queue full, dropping event", "code", ev.Code.String())
		}
	}
	fail := func(err error) {
		if errors.Is(err, v4l2dev.ErrDeviceGone) {
			d.logger.Warn("Device disappeared while streaming", "error", err)
			emit(backend.Event{Code: backend.EventDeviceLost, Err: err})
			return
		}
		d.logger.Error("Streaming failed", "error", err)
		emit(backend.Event{Code: backend.EventStreamError, Err: err})
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		ready, err := d.dev.Wait(pollTimeoutMs)
		if err != nil {
			fail(err)
			<-stop
			return
		}

		if ready&v4l2dev.ReadyEvent != 0 {
			changes, ok, err := d.dev.DequeueSourceChange()
			switch {
			case err != nil:
				fail(err)
				<-stop
				return
			case ok:
				signal := d.dev.DVTimings()
				d.logger.Info("Source changed",
					"changes", changes,
					"signal_width", signal.Width,
					"signal_height", signal.Height,
					"signal_fps", signal.FPS)
				emit(backend.Event{Code: backend.EventSourceChanged, Param1: int64(changes)})
			}
		}

		if ready&v4l2dev.ReadyFrame == 0 {
			continue
		}

		buf, ok, err := stream.Dequeue()
		if err != nil {
			fail(err)
			<-stop
			return
		}
		if !ok {
			continue
		}
		relay.Push(buf.Data, stride)
		if err := stream.Requeue(buf); err != nil {
			fail(err)
			<-stop
			return
		}
	}
}
