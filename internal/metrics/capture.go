// Package metrics provides Prometheus metrics for the capture pipeline.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons.
const (
	DropPacer  = "pacer"
	DropBuffer = "buffer"
)

var (
	framesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidcap",
		Subsystem: "capture",
		Name:      "frames_delivered_total",
		Help:      "Frames handed to the capture callback",
	}, []string{"source"})

	framesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidcap",
		Subsystem: "capture",
		Name:      "frames_dropped_total",
		Help:      "Frames discarded by rate pacing or buffer contention",
	}, []string{"source", "reason"})

	conversionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidcap",
		Subsystem: "capture",
		Name:      "conversion_failures_total",
		Help:      "Frames whose pixel conversion failed",
	}, []string{"source"})

	terminalErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidcap",
		Subsystem: "capture",
		Name:      "terminal_errors_total",
		Help:      "Capture sessions ended by an asynchronous error",
	}, []string{"source", "status"})

	activeCaptures = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vidcap",
		Subsystem: "capture",
		Name:      "active",
		Help:      "Sources currently capturing",
	})

	monitorEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidcap",
		Subsystem: "monitor",
		Name:      "events_total",
		Help:      "Asynchronous device events seen by backend monitors",
	}, []string{"backend", "code"})

	// Local cache for the status API.
	sourceCache   = make(map[string]*SourceMetrics)
	sourceCacheMu sync.RWMutex
)

// SourceMetrics holds current counter values for a source.
type SourceMetrics struct {
	Delivered          uint64 `json:"delivered"`
	DroppedPacer       uint64 `json:"dropped_pacer"`
	DroppedBuffer      uint64 `json:"dropped_buffer"`
	ConversionFailures uint64 `json:"conversion_failures"`
	TerminalErrors     uint64 `json:"terminal_errors"`
}

// IncFramesDelivered counts a frame handed to the callback.
func IncFramesDelivered(source string) {
	framesDelivered.WithLabelValues(source).Inc()
	updateCache(source, func(m *SourceMetrics) { m.Delivered++ })
}

// IncFramesDropped counts a frame discarded for reason.
func IncFramesDropped(source, reason string) {
	framesDropped.WithLabelValues(source, reason).Inc()
	updateCache(source, func(m *SourceMetrics) {
		if reason == DropPacer {
			m.DroppedPacer++
		} else {
			m.DroppedBuffer++
		}
	})
}

// IncConversionFailures counts a failed pixel conversion.
func IncConversionFailures(source string) {
	conversionFailures.WithLabelValues(source).Inc()
	updateCache(source, func(m *SourceMetrics) { m.ConversionFailures++ })
}

// IncTerminalErrors counts a session ended with status.
func IncTerminalErrors(source string, status int) {
	terminalErrors.WithLabelValues(source, strconv.Itoa(status)).Inc()
	updateCache(source, func(m *SourceMetrics) { m.TerminalErrors++ })
}

// AddActiveCaptures adjusts the active capture gauge.
func AddActiveCaptures(delta float64) {
	activeCaptures.Add(delta)
}

// IncMonitorEvents counts an event of class code on backend.
func IncMonitorEvents(backend, code string) {
	monitorEvents.WithLabelValues(backend, code).Inc()
}

// DeleteSourceMetrics removes all per-source series.
func DeleteSourceMetrics(source string) {
	framesDelivered.DeleteLabelValues(source)
	framesDropped.DeletePartialMatch(prometheus.Labels{"source": source})
	conversionFailures.DeleteLabelValues(source)
	terminalErrors.DeletePartialMatch(prometheus.Labels{"source": source})

	sourceCacheMu.Lock()
	delete(sourceCache, source)
	sourceCacheMu.Unlock()
}

// GetSourceMetrics returns current counter values for a source.
func GetSourceMetrics(source string) *SourceMetrics {
	sourceCacheMu.RLock()
	defer sourceCacheMu.RUnlock()
	if m, ok := sourceCache[source]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllSourceMetrics returns counters for every source seen.
func GetAllSourceMetrics() map[string]*SourceMetrics {
	sourceCacheMu.RLock()
	defer sourceCacheMu.RUnlock()
	result := make(map[string]*SourceMetrics, len(sourceCache))
	for id, m := range sourceCache {
		dup := *m
		result[id] = &dup
	}
	return result
}

func updateCache(source string, update func(*SourceMetrics)) {
	sourceCacheMu.Lock()
	defer sourceCacheMu.Unlock()
	m, ok := sourceCache[source]
	if !ok {
		m = &SourceMetrics{}
		sourceCache[source] = m
	}
	update(m)
}
