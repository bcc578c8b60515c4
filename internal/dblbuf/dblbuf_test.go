package dblbuf

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(v int) int { return v }

func TestNewRequiresCopy(t *testing.T) {
	_, err := New[int](nil, nil)
	assert.Error(t, err)
}

func TestReadEmpty(t *testing.T) {
	b, err := New(identity, nil)
	require.NoError(t, err)

	_, ok := b.Read()
	assert.False(t, ok)
}

func TestReadNeverRepeats(t *testing.T) {
	var released []int
	b, err := New(identity, func(v int) { released = append(released, v) })
	require.NoError(t, err)

	require.True(t, b.Insert(1))
	v, ok := b.Read()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = b.Read()
	assert.False(t, ok, "same object must not be read twice")

	for _, v := range []int{2, 3, 4} {
		require.True(t, b.Insert(v))
	}
	v, ok = b.Read()
	require.True(t, ok)
	assert.Equal(t, 4, v)

	_, ok = b.Read()
	assert.False(t, ok)

	assert.Equal(t, []int{1, 2}, released)
	assert.Equal(t, int64(4), b.Count())

	b.Close()
	assert.ElementsMatch(t, []int{1, 2, 3, 4}, released)
}

func TestInsertDropsWhenSlotBusy(t *testing.T) {
	var released []int
	b, err := New(identity, func(v int) { released = append(released, v) })
	require.NoError(t, err)

	b.locks[0].Lock()
	assert.False(t, b.Insert(7))
	b.locks[0].Unlock()

	assert.Equal(t, []int{7}, released)
	assert.Equal(t, int64(1), b.Dropped())
	assert.Equal(t, int64(0), b.Count())
}

func TestConcurrentReadsIncrease(t *testing.T) {
	var copies atomic.Int64
	b, err := New(func(v int) int {
		copies.Add(1)
		return v
	}, nil)
	require.NoError(t, err)

	const total = 20000
	var wg sync.WaitGroup
	var done atomic.Bool

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			b.Insert(i)
		}
		done.Store(true)
	}()

	last := -1
	reads := 0
	for {
		finished := done.Load()
		v, ok := b.Read()
		if ok {
			if v <= last {
				t.Fatalf("Read() = %d after %d, want strictly increasing", v, last)
			}
			last = v
			reads++
		}
		if finished && !ok {
			break
		}
	}
	wg.Wait()

	assert.Equal(t, int64(reads), copies.Load())
	assert.Equal(t, int64(total), b.Count()+b.Dropped())
}
