package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPushPopRoundTrip(t *testing.T) {
	p, c := New(8)

	n := p.Push([]float32{1, 2, 3})
	require.Equal(t, 3, n)

	for _, want := range []float32{1, 2, 3} {
		v, ok := c.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, v)
	}

	_, ok := c.TryPop()
	assert.False(t, ok)
}

func TestNewRoundsCapacityUpToPowerOfTwo(t *testing.T) {
	p, _ := New(5)
	n := p.Push(make([]float32, 8))
	assert.Equal(t, 8, n, "capacity should round up to 8")
}

func TestPushDropsOnOverflowAndCountsIt(t *testing.T) {
	p, c := New(4)

	n := p.Push([]float32{1, 2, 3, 4, 5, 6})
	assert.Equal(t, 4, n)
	assert.Equal(t, uint64(2), c.Overflowed())
	assert.Equal(t, uint64(1), p.ConsecutiveDrops())

	// A push that fits resets the streak.
	_, _ = c.TryPop()
	_, _ = c.TryPop()
	p.Push([]float32{7, 8})
	assert.Equal(t, uint64(0), p.ConsecutiveDrops())
}

func TestConsecutiveDropsAccumulatesAcrossCalls(t *testing.T) {
	p, _ := New(2)

	p.Push([]float32{1, 2, 3})
	p.Push([]float32{4, 5})
	assert.Equal(t, uint64(2), p.ConsecutiveDrops())
}

func TestLenTracksQueuedSamples(t *testing.T) {
	p, c := New(16)
	p.Push([]float32{1, 2, 3})
	assert.Equal(t, 3, c.Len())
	c.TryPop()
	assert.Equal(t, 2, c.Len())
}

// TestFIFOOrderHolds checks, for arbitrary push/pop interleavings within
// capacity, that samples come out in the order they went in.
func TestFIFOOrderHolds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 64).Draw(t, "capacity")
		batch := rapid.SliceOfN(rapid.Float32(), 0, capacity).Draw(t, "batch")

		p, c := New(capacity)
		n := p.Push(batch)
		require.Equal(t, len(batch), n, "batch within capacity should never be dropped")

		for _, want := range batch {
			got, ok := c.TryPop()
			require.True(t, ok)
			require.Equal(t, want, got)
		}
		_, ok := c.TryPop()
		require.False(t, ok)
	})
}
