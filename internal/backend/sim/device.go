package sim

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/vidcap/internal/backend"
	"github.com/smazurov/vidcap/internal/convert"
	"github.com/smazurov/vidcap/internal/format"
	"github.com/smazurov/vidcap/internal/pacing"
)

// Device is one opened simulated device.
type Device struct {
	backend *Backend
	info    backend.SourceInfo
	caps    []format.Capability
	manual  bool
	logger  *slog.Logger

	mu       sync.Mutex
	bound    *format.Match
	running  bool
	released bool
	relay    *backend.Relay
	events   chan backend.Event
	stop     chan struct{}
	done     chan struct{}
}

var _ backend.Device = (*Device)(nil)

// Info implements backend.Device.
func (d *Device) Info() backend.SourceInfo { return d.info }

// Capabilities implements backend.Device.
func (d *Device) Capabilities() []format.Capability { return slices.Clone(d.caps) }

// Bind implements backend.Device.
func (d *Device) Bind(m format.Match) error {
	if err := d.backend.takeFailure(&d.backend.failures.Bind); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return errors.New("sim: cannot bind while streaming")
	}
	if m.Index < 0 || m.Index >= len(d.caps) || d.caps[m.Index].Fourcc != m.Capture.Fourcc {
		return errors.New("sim: match does not refer to a device capability")
	}
	d.bound = &m
	d.logger.Debug("Bound", "capture", m.Capture.String())
	return nil
}

// Start implements backend.Device.
func (d *Device) Start(sink backend.Sink) (<-chan backend.Event, error) {
	if err := d.backend.takeFailure(&d.backend.failures.Start); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.released:
		return nil, errors.New("sim: device released")
	case d.running:
		return nil, errors.New("sim: already streaming")
	case d.bound == nil:
		return nil, errors.New("sim: no format bound")
	}

	d.relay = backend.NewRelay(sink, Identifier+"/"+d.info.Identifier, d.logger)
	d.events = make(chan backend.Event, 8)
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	d.running = true

	if d.manual {
		close(d.done)
	} else {
		go d.generate(d.bound.Capture, d.relay, d.stop, d.done)
	}

	d.logger.Debug("Streaming started", "manual", d.manual)
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
	relay, events := d.relay, d.events
	close(d.stop)
	<-d.done
	d.relay, d.events = nil, nil
	d.mu.Unlock()

	relay.Close()
	close(events)
	d.logger.Debug("Streaming stopped")
	return nil
}

// Release implements backend.Device.
func (d *Device) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return errors.New("sim: device still streaming")
	}
	if !d.released {
		d.released = true
		d.backend.release(d.info.Identifier)
	}
	return nil
}

// Feed offers one raw frame in the bound capture format. It reports false
// when the device is not streaming or the frame was dropped.
func (d *Device) Feed(data []byte, stride int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return false
	}
	return d.relay.Push(data, stride)
}

// Frame returns a synthetic frame of the bound capture format.
func (d *Device) Frame(seq int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bound == nil {
		return nil
	}
	return pattern(d.bound.Capture, seq)
}

// Fail makes the stream fail with status. The sink receives exactly one
// terminal notification.
func (d *Device) Fail(status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		d.relay.Fail(status)
	}
}

// Inject delivers an asynchronous device event to the running session.
// It reports false when nothing is streaming or the event queue is full.
func (d *Device) Inject(ev backend.Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return false
	}
	select {
	case d.events <- ev:
		return true
	default:
		d.logger.Warn("Event queue full, dropping event", "code", ev.Code.String())
		return false
	}
}

// Running reports whether the device is streaming.
func (d *Device) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Device) generate(c format.Descriptor, relay *backend.Relay, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	period := pacing.Period(c.FPSNumerator, c.FPSDenominator)
	if period <= 0 {
		period = time.Second / 30
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	frame := make([]byte, convert.FrameSize(c.Fourcc, c.Width, c.Height))
	for seq := 0; ; seq++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
			fill(frame, seq)
			relay.Push(frame, 0)
		}
	}
}

func pattern(c format.Descriptor, seq int) []byte {
	frame := make([]byte, convert.FrameSize(c.Fourcc, c.Width, c.Height))
	fill(frame, seq)
	return frame
}

// fill writes a diagonal ramp that shifts by one step per frame.
func fill(frame []byte, seq int) {
	for i := range frame {
		frame[i] = byte(i + seq*4)
	}
}
