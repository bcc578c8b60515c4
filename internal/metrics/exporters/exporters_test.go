package exporters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/vidcap/internal/events"
	"github.com/smazurov/vidcap/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []events.CaptureMetricsEvent
}

func (r *recorder) Publish(ev events.Event) {
	if m, ok := ev.(events.CaptureMetricsEvent); ok {
		r.mu.Lock()
		r.events = append(r.events, m)
		r.mu.Unlock()
	}
}

func (r *recorder) forSource(source string) []events.CaptureMetricsEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.CaptureMetricsEvent
	for _, ev := range r.events {
		if ev.Source == source {
			out = append(out, ev)
		}
	}
	return out
}

func TestPrometheusHandler(t *testing.T) {
	const source = "sim/exporters-http"
	metrics.IncFramesDelivered(source)
	defer metrics.DeleteSourceMetrics(source)

	rec := httptest.NewRecorder()
	PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `vidcap_capture_frames_delivered_total{source="sim/exporters-http"} 1`)
}

func TestSamplePublishesOnlyChanges(t *testing.T) {
	const source = "sim/exporters-sample"
	metrics.DeleteSourceMetrics(source)
	defer metrics.DeleteSourceMetrics(source)

	bus := &recorder{}
	p := NewPublisher(bus, time.Hour)

	metrics.IncFramesDelivered(source)
	metrics.IncFramesDelivered(source)
	metrics.IncFramesDropped(source, metrics.DropPacer)
	metrics.IncConversionFailures(source)
	p.sample()

	got := bus.forSource(source)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(2), got[0].Delivered)
	assert.Equal(t, uint64(1), got[0].DroppedPacer)
	assert.Equal(t, uint64(1), got[0].ConversionFailures)

	p.sample()
	assert.Len(t, bus.forSource(source), 1, "unchanged counters are not republished")

	metrics.IncFramesDropped(source, metrics.DropBuffer)
	p.sample()
	got = bus.forSource(source)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[1].DroppedBuffer)

	metrics.DeleteSourceMetrics(source)
	p.sample()
	assert.NotContains(t, p.last, source)
}

func TestPublisherLoop(t *testing.T) {
	const source = "sim/exporters-loop"
	metrics.IncFramesDelivered(source)
	defer metrics.DeleteSourceMetrics(source)

	bus := &recorder{}
	p := NewPublisher(bus, 10*time.Millisecond)
	p.Start(context.Background())
	p.Start(context.Background())

	assert.Eventually(t, func() bool { return len(bus.forSource(source)) > 0 }, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()

	metrics.IncFramesDelivered(source)
	time.Sleep(40 * time.Millisecond)
	assert.Len(t, bus.forSource(source), 1, "nothing is published after Stop")
}

func TestStopBeforeStart(t *testing.T) {
	p := NewPublisher(&recorder{}, 0)
	assert.Equal(t, DefaultInterval, p.interval)
	p.Stop()
}

func TestEventTypes(t *testing.T) {
	assert.Contains(t, EventTypes(), "capture-metrics")
}
