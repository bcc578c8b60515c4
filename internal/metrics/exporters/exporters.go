// Package exporters makes the capture counters visible outside the
// process: Prometheus scrapes and periodic events on the bus.
package exporters

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/vidcap/internal/events"
	"github.com/smazurov/vidcap/internal/metrics"
)

// DefaultInterval is how often Publisher samples the counters.
const DefaultInterval = time.Second

// PrometheusHandler serves every promauto-registered collector, with
// OpenMetrics negotiated when the scraper asks for it.
func PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// EventTypes names the events Publisher emits, for SSE registration.
func EventTypes() map[string]any {
	return map[string]any{
		"capture-metrics": events.CaptureMetricsEvent{},
	}
}

// Publisher emits a CaptureMetricsEvent for every source whose counters
// moved since the previous sample.
type Publisher struct {
	bus      interface{ Publish(events.Event) }
	interval time.Duration
	last     map[string]metrics.SourceMetrics

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPublisher samples every interval; zero means DefaultInterval.
func NewPublisher(bus interface{ Publish(events.Event) }, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Publisher{bus: bus, interval: interval, last: make(map[string]metrics.SourceMetrics)}
}

// Start launches the sampling loop. A running Publisher ignores Start.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// Stop ends the loop and waits for it. Safe to call repeatedly.
func (p *Publisher) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Publisher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sample()
		}
	}
}

// sample publishes changed sources and forgets ones that disappeared.
// Only the loop goroutine touches p.last.
func (p *Publisher) sample() {
	current := metrics.GetAllSourceMetrics()
	for source := range p.last {
		if _, ok := current[source]; !ok {
			delete(p.last, source)
		}
	}
	for source, m := range current {
		if prev, ok := p.last[source]; ok && prev == *m {
			continue
		}
		p.last[source] = *m
		p.bus.Publish(events.CaptureMetricsEvent{
			Source:             source,
			Delivered:          m.Delivered,
			DroppedPacer:       m.DroppedPacer,
			DroppedBuffer:      m.DroppedBuffer,
			ConversionFailures: m.ConversionFailures,
			TerminalErrors:     m.TerminalErrors,
		})
	}
}
