package events

import (
	"github.com/kelindar/event"
)

// Bus broadcasts vidcap events to in-process subscribers. Delivery is
// asynchronous and ordered per subscriber.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates an event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// kelindar/event routes on the static type, so each concrete event needs
// its own instantiation of event.Publish.
var publishers = map[uint32]func(*event.Dispatcher, Event){
	TypeSourceChanged:       publisher[SourceChangedEvent],
	TypeCaptureStateChanged: publisher[CaptureStateChangedEvent],
	TypeCaptureError:        publisher[CaptureErrorEvent],
	TypeMonitorEvent:        publisher[MonitorEvent],
	TypeLogEntry:            publisher[LogEntryEvent],
	TypeCaptureMetrics:      publisher[CaptureMetricsEvent],
}

func publisher[T Event](d *event.Dispatcher, ev Event) {
	event.Publish(d, ev.(T))
}

// Publish hands ev to every subscriber of its type. Publishing on a nil
// Bus or an unregistered type does nothing.
func (b *Bus) Publish(ev Event) {
	if b == nil || ev == nil {
		return
	}
	if publish, ok := publishers[ev.Type()]; ok {
		publish(b.dispatcher, ev)
	}
}

// Subscribe calls fn for every published T until the returned function
// is called.
func Subscribe[T Event](b *Bus, fn func(T)) func() {
	return event.Subscribe(b.dispatcher, fn)
}

// SubscribeToChannel forwards every published T to ch for select loops
// such as SSE handlers. Events are dropped while ch is full.
func SubscribeToChannel[T Event](b *Bus, ch chan<- any) func() {
	return Subscribe(b, func(e T) {
		select {
		case ch <- e:
		default:
		}
	})
}
