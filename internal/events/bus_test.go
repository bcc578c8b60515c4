package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		var zero T
		return zero
	}
}

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan SourceChangedEvent, 1)
	defer Subscribe(bus, func(e SourceChangedEvent) { received <- e })()

	want := SourceChangedEvent{Backend: "sim", Identifier: "cam0", Action: "added"}
	bus.Publish(want)

	assert.Equal(t, want, receive(t, received))
}

func TestEveryTypeIsRoutable(t *testing.T) {
	all := []Event{
		SourceChangedEvent{},
		CaptureStateChangedEvent{},
		CaptureErrorEvent{},
		MonitorEvent{},
		LogEntryEvent{},
		CaptureMetricsEvent{},
	}
	require.Len(t, publishers, len(all))
	for _, ev := range all {
		assert.Contains(t, publishers, ev.Type(), "%T", ev)
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := New()
	a := make(chan CaptureStateChangedEvent, 1)
	b := make(chan CaptureStateChangedEvent, 1)
	defer Subscribe(bus, func(e CaptureStateChangedEvent) { a <- e })()
	defer Subscribe(bus, func(e CaptureStateChangedEvent) { b <- e })()

	bus.Publish(CaptureStateChangedEvent{Source: "cam0", From: "bound", To: "capturing"})

	assert.Equal(t, "capturing", receive(t, a).To)
	assert.Equal(t, "capturing", receive(t, b).To)
}

func TestUnsubscribe(t *testing.T) {
	bus := New()
	received := make(chan CaptureErrorEvent, 4)
	unsub := Subscribe(bus, func(e CaptureErrorEvent) { received <- e })

	bus.Publish(CaptureErrorEvent{Source: "cam0", Status: -2})
	assert.Equal(t, -2, receive(t, received).Status)

	unsub()
	bus.Publish(CaptureErrorEvent{Source: "cam0", Status: -3})

	select {
	case e := <-received:
		t.Fatalf("received %+v after unsubscribe", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribersOnlySeeTheirType(t *testing.T) {
	bus := New()
	errs := make(chan CaptureErrorEvent, 1)
	monitors := make(chan MonitorEvent, 1)
	defer Subscribe(bus, func(e CaptureErrorEvent) { errs <- e })()
	defer Subscribe(bus, func(e MonitorEvent) { monitors <- e })()

	bus.Publish(MonitorEvent{Backend: "v4l2", Code: "source-removed"})

	assert.Equal(t, "source-removed", receive(t, monitors).Code)
	select {
	case e := <-errs:
		t.Fatalf("capture error subscriber got %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := New()
	const senders, each = 8, 50

	var mu sync.Mutex
	count := 0
	done := make(chan struct{})
	defer Subscribe(bus, func(LogEntryEvent) {
		mu.Lock()
		defer mu.Unlock()
		count++
		if count == senders*each {
			close(done)
		}
	})()

	var wg sync.WaitGroup
	for p := 0; p < senders; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				bus.Publish(LogEntryEvent{Message: "tick"})
			}
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		mu.Lock()
		defer mu.Unlock()
		t.Fatalf("delivered %d of %d events", count, senders*each)
	}
}

func TestPublishNilBus(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Publish(CaptureErrorEvent{}) })
	assert.NotPanics(t, func() { New().Publish(nil) })
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)
	defer SubscribeToChannel[CaptureMetricsEvent](bus, ch)()

	bus.Publish(CaptureMetricsEvent{Source: "sim/cam0", Delivered: 12})

	got, ok := receive(t, ch).(CaptureMetricsEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(12), got.Delivered)
}

func TestSubscribeToChannelDropsWhenFull(t *testing.T) {
	bus := New()
	ch := make(chan any)
	defer SubscribeToChannel[SourceChangedEvent](bus, ch)()

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(SourceChangedEvent{Identifier: "cam0"})
		}
		close(finished)
	}()
	receive(t, finished)
}
