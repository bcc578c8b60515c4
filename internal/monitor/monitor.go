// Package monitor watches running capture sessions of one backend for
// asynchronous device events and cancels sessions that can no longer
// deliver frames.
//
// Each Monitor owns a single goroutine. Registration requests from control
// goroutines are queued without blocking and applied by that goroutine, so
// a cancellation callback may itself add or remove sessions.
package monitor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/vidcap/internal/backend"
	"github.com/smazurov/vidcap/internal/events"
	"github.com/smazurov/vidcap/internal/metrics"
)

// CancelFunc is invoked on the monitor goroutine, at most once per session,
// when a terminal event arrives for it.
type CancelFunc func(ev backend.Event)

// NotifyFunc is invoked on the monitor goroutine whenever the backend's
// device set may have changed. A non-zero return unregisters it.
type NotifyFunc func() int

// Publisher receives monitor events.
type Publisher interface {
	Publish(ev events.Event)
}

// Options configures a Monitor.
type Options struct {
	// Backend names the watched backend in logs, metrics and events.
	Backend string

	// Bus receives a MonitorEvent for every device event (optional).
	Bus Publisher

	// Logger for monitor operations. If nil, uses slog.Default().
	Logger *slog.Logger
}

type requestKind int

const (
	requestAdd requestKind = iota
	requestRemove
	requestNotify
)

type request struct {
	kind    requestKind
	session string
	events  <-chan backend.Event
	cancel  CancelFunc
	changes <-chan struct{}
	notify  NotifyFunc
}

type fired struct {
	session string
	event   backend.Event
}

type watched struct {
	cancel CancelFunc
	stop   chan struct{}
}

// Monitor is the waiting loop of one backend.
type Monitor struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	pending []request
	closed  bool

	changed   chan struct{}
	fired     chan fired
	terminate chan struct{}
	done      chan struct{}

	// loop goroutine only
	sessions map[string]*watched
	changes  <-chan struct{}
	notify   NotifyFunc
}

// New starts the waiting loop.
func New(opts Options) *Monitor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		opts:      opts,
		logger:    logger.With("backend", opts.Backend),
		changed:   make(chan struct{}, 1),
		fired:     make(chan fired),
		terminate: make(chan struct{}),
		done:      make(chan struct{}),
		sessions:  make(map[string]*watched),
	}

	go m.run()
	return m
}

// Add starts watching a capture session. evts is the session's event
// channel; it may be closed at any time. Add never blocks.
func (m *Monitor) Add(session string, evts <-chan backend.Event, cancel CancelFunc) {
	m.enqueue(request{kind: requestAdd, session: session, events: evts, cancel: cancel})
}

// Remove stops watching a session. The cancel function of a removed
// session is never called once the removal has been applied. Remove
// never blocks.
func (m *Monitor) Remove(session string) {
	m.enqueue(request{kind: requestRemove, session: session})
}

// SetNotify registers fn to be called on every signal from changes,
// replacing any previous registration. A nil fn unregisters.
func (m *Monitor) SetNotify(changes <-chan struct{}, fn NotifyFunc) {
	m.enqueue(request{kind: requestNotify, changes: changes, notify: fn})
}

func (m *Monitor) enqueue(r request) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.pending = append(m.pending, r)
	m.mu.Unlock()

	select {
	case m.changed <- struct{}{}:
	default:
	}
}

// Close terminates the loop and waits for it to exit. Sessions still
// registered are dropped without being cancelled.
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		<-m.done
		return
	}
	m.closed = true
	m.pending = nil
	m.mu.Unlock()

	close(m.terminate)
	<-m.done
}

func (m *Monitor) run() {
	defer close(m.done)
	defer func() {
		for _, w := range m.sessions {
			close(w.stop)
		}
	}()

	m.logger.Debug("Monitor started")

	for {
		select {
		case <-m.terminate:
			m.logger.Debug("Monitor terminated")
			return

		case <-m.changed:
			m.drain()

		case f := <-m.fired:
			m.handle(f)

		case _, ok := <-m.changes:
			if !ok {
				m.changes, m.notify = nil, nil
				continue
			}
			if m.notify != nil && m.notify() != 0 {
				m.logger.Debug("Source change notification unregistered by callback")
				m.changes, m.notify = nil, nil
			}
		}
	}
}

func (m *Monitor) drain() {
	m.mu.Lock()
	reqs := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, r := range reqs {
		switch r.kind {
		case requestAdd:
			if old, ok := m.sessions[r.session]; ok {
				close(old.stop)
			}
			w := &watched{cancel: r.cancel, stop: make(chan struct{})}
			m.sessions[r.session] = w
			go m.forward(r.session, r.events, w.stop)
			m.logger.Debug("Watching capture session", "session", r.session)

		case requestRemove:
			if w, ok := m.sessions[r.session]; ok {
				close(w.stop)
				delete(m.sessions, r.session)
				m.logger.Debug("Stopped watching capture session", "session", r.session)
			}

		case requestNotify:
			m.changes, m.notify = r.changes, r.notify
			if r.notify == nil {
				m.changes = nil
			}
		}
	}
}

// forward relays one session's events into the loop until the session is
// removed, its channel closes, or the monitor terminates.
func (m *Monitor) forward(session string, evts <-chan backend.Event, stop <-chan struct{}) {
	for {
		select {
		case ev, ok := <-evts:
			if !ok {
				return
			}
			select {
			case m.fired <- fired{session: session, event: ev}:
			case <-stop:
				return
			case <-m.terminate:
				return
			}
		case <-stop:
			return
		case <-m.terminate:
			return
		}
	}
}

func (m *Monitor) handle(f fired) {
	// A removal queued before this event was fired takes precedence.
	m.drain()

	w, ok := m.sessions[f.session]
	if !ok {
		return
	}

	ev := f.event
	terminal := ev.Terminal()
	metrics.IncMonitorEvents(m.opts.Backend, ev.Code.String())

	if m.opts.Bus != nil {
		m.opts.Bus.Publish(events.MonitorEvent{
			Backend:   m.opts.Backend,
			Session:   f.session,
			Code:      ev.Code.String(),
			Param1:    ev.Param1,
			Param2:    ev.Param2,
			Terminal:  terminal,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}

	if !terminal {
		m.logger.Info("Device event", "session", f.session, "code", ev.Code.String(),
			"param1", ev.Param1, "param2", ev.Param2)
		return
	}

	m.logger.Warn("Cancelling capture session", "session", f.session, "code", ev.Code.String(), "error", ev.Err)
	close(w.stop)
	delete(m.sessions, f.session)
	w.cancel(ev)
}
