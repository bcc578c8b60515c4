package pacing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1700000000, 0)} }

func TestNewWindowSize(t *testing.T) {
	tests := []struct {
		num, den int
		cfg      Config
		want     int
	}{
		{30, 1, Config{}, 120},
		{15, 1, Config{}, 60},
		{30000, 1001, Config{}, 120},
		{1, 2, Config{}, 2},
		{30, 1, Config{HistorySeconds: 1}, 30},
	}

	for _, tt := range tests {
		p, err := New(tt.num, tt.den, tt.cfg, nil)
		require.NoError(t, err)
		if got := p.WindowSize(); got != tt.want {
			t.Errorf("WindowSize(%d/%d) = %d, want %d", tt.num, tt.den, got, tt.want)
		}
	}
}

func TestNewRejectsEmptyWindow(t *testing.T) {
	_, err := New(0, 1, Config{}, nil)
	assert.Error(t, err)

	_, err = New(30, 0, Config{}, nil)
	assert.Error(t, err)
}

func TestPeriod(t *testing.T) {
	assert.Equal(t, 33333333*time.Nanosecond, Period(30, 1))
	assert.Equal(t, 2*time.Second, Period(1, 2))
	assert.Equal(t, time.Duration(0), Period(0, 1))
}

func TestFirstFrameAlwaysAuthorized(t *testing.T) {
	clock := newClock()
	p, err := New(1, 10, Config{}, clock.Now)
	require.NoError(t, err)

	assert.True(t, p.Authorize())
	assert.False(t, p.Authorize(), "second frame at the same instant")
}

func TestAuthorizeAtTargetRate(t *testing.T) {
	clock := newClock()
	p, err := New(15, 1, Config{}, clock.Now)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.True(t, p.Authorize(), "frame %d", i)
		clock.Advance(Period(15, 1))
	}
}

func TestAuthorizeThrottlesFasterSource(t *testing.T) {
	clock := newClock()
	p, err := New(15, 1, Config{}, clock.Now)
	require.NoError(t, err)

	delivered := 0
	for i := 0; i < 300; i++ {
		if p.Authorize() {
			delivered++
		}
		clock.Advance(Period(30, 1))
	}

	assert.InDelta(t, 150, delivered, 3)
}

func TestAuthorizeFloorAfterStall(t *testing.T) {
	clock := newClock()
	p, err := New(10, 1, Config{}, clock.Now)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.True(t, p.Authorize())
		clock.Advance(Period(10, 1))
	}

	clock.Advance(5 * time.Second)
	require.True(t, p.Authorize())

	// A backlog burst right after the stall must still respect the floor.
	burst := 0
	for i := 0; i < 20; i++ {
		clock.Advance(10 * time.Millisecond)
		if p.Authorize() {
			burst++
		}
	}
	assert.LessOrEqual(t, burst, 3)
}
