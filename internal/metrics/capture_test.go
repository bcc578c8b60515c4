package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSourceMetricsCache(t *testing.T) {
	source := "sim/cam-cache"
	DeleteSourceMetrics(source)

	if m := GetSourceMetrics(source); m != nil {
		t.Error("expected nil for unknown source")
	}

	IncFramesDelivered(source)
	IncFramesDelivered(source)
	IncFramesDropped(source, DropPacer)
	IncFramesDropped(source, DropBuffer)
	IncFramesDropped(source, DropBuffer)
	IncConversionFailures(source)
	IncTerminalErrors(source, -2)

	m := GetSourceMetrics(source)
	if m == nil {
		t.Fatal("expected non-nil metrics")
	}
	if m.Delivered != 2 {
		t.Errorf("Delivered = %d, want 2", m.Delivered)
	}
	if m.DroppedPacer != 1 {
		t.Errorf("DroppedPacer = %d, want 1", m.DroppedPacer)
	}
	if m.DroppedBuffer != 2 {
		t.Errorf("DroppedBuffer = %d, want 2", m.DroppedBuffer)
	}
	if m.ConversionFailures != 1 {
		t.Errorf("ConversionFailures = %d, want 1", m.ConversionFailures)
	}
	if m.TerminalErrors != 1 {
		t.Errorf("TerminalErrors = %d, want 1", m.TerminalErrors)
	}

	if got := testutil.ToFloat64(framesDelivered.WithLabelValues(source)); got != 2 {
		t.Errorf("frames_delivered_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(framesDropped.WithLabelValues(source, DropBuffer)); got != 2 {
		t.Errorf("frames_dropped_total{reason=buffer} = %v, want 2", got)
	}

	// Returned values are copies.
	m.Delivered = 999
	if GetSourceMetrics(source).Delivered != 2 {
		t.Error("cache was modified through returned copy")
	}

	DeleteSourceMetrics(source)
	if GetSourceMetrics(source) != nil {
		t.Error("expected nil after delete")
	}
}

func TestGetAllSourceMetrics(t *testing.T) {
	DeleteSourceMetrics("sim/a")
	DeleteSourceMetrics("sim/b")

	IncFramesDelivered("sim/a")
	IncConversionFailures("sim/b")

	all := GetAllSourceMetrics()
	if all["sim/a"] == nil || all["sim/a"].Delivered != 1 {
		t.Errorf("sim/a = %+v, want Delivered 1", all["sim/a"])
	}
	if all["sim/b"] == nil || all["sim/b"].ConversionFailures != 1 {
		t.Errorf("sim/b = %+v, want ConversionFailures 1", all["sim/b"])
	}

	DeleteSourceMetrics("sim/a")
	DeleteSourceMetrics("sim/b")
}

func TestSourceMetricsConcurrent(t *testing.T) {
	source := "sim/concurrent"
	DeleteSourceMetrics(source)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				IncFramesDelivered(source)
			}
		}()
	}
	wg.Wait()

	if got := GetSourceMetrics(source).Delivered; got != 800 {
		t.Errorf("Delivered = %d, want 800", got)
	}
	DeleteSourceMetrics(source)
}
