package backend

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/smazurov/vidcap/internal/dblbuf"
	"github.com/smazurov/vidcap/internal/metrics"
)

type frame struct {
	data   []byte
	stride int
}

// Relay decouples a device's producer goroutine from the sink. Frames are
// copied into a double buffer by Push, which never blocks, and delivered
// to the sink by a separate goroutine. When the sink falls behind, frames
// are dropped rather than queued.
type Relay struct {
	sink   Sink
	source string
	logger *slog.Logger

	pool sync.Pool
	buf  *dblbuf.Buffer[*frame]

	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	failed atomic.Int32
	once   sync.Once
}

// NewRelay starts the delivery goroutine for sink. source labels the drop
// counter.
func NewRelay(sink Sink, source string, logger *slog.Logger) *Relay {
	r := &Relay{
		sink:   sink,
		source: source,
		logger: logger,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	r.pool.New = func() any { return &frame{} }

	// copy is non-nil, New cannot fail
	r.buf, _ = dblbuf.New(r.clone, r.recycle)

	go r.deliver()
	return r
}

func (r *Relay) clone(f *frame) *frame {
	c := r.pool.Get().(*frame)
	c.data = append(c.data[:0], f.data...)
	c.stride = f.stride
	return c
}

func (r *Relay) recycle(f *frame) { r.pool.Put(f) }

// Push offers a frame. data is copied before Push returns. It reports false
// when the frame was dropped.
func (r *Relay) Push(data []byte, stride int) bool {
	f := r.pool.Get().(*frame)
	f.data = append(f.data[:0], data...)
	f.stride = stride

	ok := r.buf.Insert(f)
	if !ok {
		metrics.IncFramesDropped(r.source, metrics.DropBuffer)
		r.logger.Debug("Relay dropped frame, delivery busy", "source", r.source)
	}
	r.signal()
	return ok
}

// Fail schedules a terminal error delivery with status. Frames pushed
// afterwards are never delivered.
func (r *Relay) Fail(status int) {
	if r.failed.CompareAndSwap(0, int32(status)) {
		r.signal()
	}
}

// Dropped returns the number of frames the double buffer discarded.
func (r *Relay) Dropped() int64 { return r.buf.Dropped() }

func (r *Relay) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Relay) deliver() {
	defer close(r.done)

	for {
		select {
		case <-r.stop:
			return
		case <-r.wake:
		}

		if status := r.failed.Load(); status != 0 {
			r.sink.Notify(nil, 0, int(status))
			<-r.stop
			return
		}

		for {
			f, ok := r.buf.Read()
			if !ok {
				break
			}
			r.sink.Notify(f.data, f.stride, 0)
			r.recycle(f)

			if r.failed.Load() != 0 {
				r.signal()
				break
			}
		}
	}
}

// Close stops delivery and waits until the sink can no longer be called.
func (r *Relay) Close() {
	r.once.Do(func() {
		close(r.stop)
		<-r.done
		r.logger.Debug("Relay closed", "source", r.source, "pushed", r.buf.Count(), "dropped", r.buf.Dropped())
		r.buf.Close()
	})
}
