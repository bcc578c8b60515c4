// Package pacing throttles a frame stream down to a target rate using a
// sliding window of recent delivery times.
package pacing

import (
	"fmt"
	"math"
	"time"
)

// Defaults for Config fields left at zero.
const (
	DefaultHistorySeconds = 4.0
	DefaultFloorFactor    = 0.9
)

// Config tunes the window length and the minimum spacing between frames.
type Config struct {
	HistorySeconds float64 `toml:"history_seconds" env:"PACING_HISTORY_SECONDS"`
	FloorFactor    float64 `toml:"floor_factor" env:"PACING_FLOOR_FACTOR"`
}

func (c Config) withDefaults() Config {
	if c.HistorySeconds <= 0 {
		c.HistorySeconds = DefaultHistorySeconds
	}
	if c.FloorFactor <= 0 {
		c.FloorFactor = DefaultFloorFactor
	}
	return c
}

// Period returns the frame period of a num/den fps rate.
func Period(num, den int) time.Duration {
	if num <= 0 {
		return 0
	}
	return time.Duration(int64(den) * int64(time.Second) / int64(num))
}

// Pacer decides which frames to deliver. It is not safe for concurrent use.
type Pacer struct {
	now    func() time.Time
	period time.Duration
	floor  time.Duration

	// ring of authorized delivery times, oldest at head
	times []time.Time
	head  int
	count int

	next time.Time
}

// New creates a pacer for a target of num/den fps. now defaults to
// time.Now.
func New(num, den int, cfg Config, now func() time.Time) (*Pacer, error) {
	if num <= 0 || den <= 0 {
		return nil, fmt.Errorf("invalid frame rate %d/%d", num, den)
	}
	cfg = cfg.withDefaults()

	size := int(math.Ceil(cfg.HistorySeconds * float64(num) / float64(den)))
	if size <= 0 {
		return nil, fmt.Errorf("window length %d for %d/%d fps", size, num, den)
	}
	if now == nil {
		now = time.Now
	}

	period := Period(num, den)
	return &Pacer{
		now:    now,
		period: period,
		floor:  time.Duration(float64(period) * cfg.FloorFactor),
		times:  make([]time.Time, size),
	}, nil
}

// WindowSize returns the number of delivery times kept.
func (p *Pacer) WindowSize() int { return len(p.times) }

// Authorize reports whether a frame arriving now should be delivered, and
// records it when it is.
func (p *Pacer) Authorize() bool {
	now := p.now()

	if p.count > 0 && now.Before(p.next) {
		return false
	}

	oldest := now
	if p.count > 0 {
		oldest = p.times[p.head]
	}

	// The window averages out jitter; the floor stops a burst after a stall.
	next := oldest.Add(time.Duration(p.count) * p.period)
	if floor := now.Add(p.floor); !floor.Before(next) {
		next = floor
	}
	p.next = next

	p.push(now)
	return true
}

// push appends t, evicting the oldest entry when the window is full.
func (p *Pacer) push(t time.Time) {
	size := len(p.times)
	if p.count < size {
		p.times[(p.head+p.count)%size] = t
		p.count++
		return
	}
	p.times[p.head] = t
	p.head = (p.head + 1) % size
}
