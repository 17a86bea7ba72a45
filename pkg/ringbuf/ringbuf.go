// Package ringbuf provides a lock-free single-producer single-consumer
// queue of float32 audio samples.
//
// The producer half is meant to be driven from an OS audio callback: Push
// never allocates, never blocks, and never takes a lock. The consumer half
// drains from a separate goroutine. Capacity is fixed at construction time;
// once full, Push drops the newest samples and records the loss so callers
// can decide whether sustained overflow is fatal.
package ringbuf

import "sync/atomic"

// Ring is the shared backing store for a Producer/Consumer pair.
type Ring struct {
	buf  []float32
	mask uint64

	head atomic.Uint64 // next write index, producer-owned
	tail atomic.Uint64 // next read index, consumer-owned

	overflowed       atomic.Uint64 // cumulative samples dropped on a full ring
	consecutiveDrops atomic.Uint64 // pushes in a row that dropped at least one sample
}

// Producer is the write half of a Ring. Exactly one goroutine may call
// Push at a time.
type Producer struct{ r *Ring }

// Consumer is the read half of a Ring. Exactly one goroutine may call
// TryPop/Len at a time.
type Consumer struct{ r *Ring }

// New creates a ring sized to the next power of two >= capacity and returns
// its producer and consumer halves. capacity is in samples, not bytes.
func New(capacity int) (*Producer, *Consumer) {
	size := nextPow2(capacity)
	r := &Ring{
		buf:  make([]float32, size),
		mask: uint64(size - 1),
	}
	return &Producer{r}, &Consumer{r}
}

func nextPow2(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Push copies as many samples as fit into the ring and returns the count
// accepted. The remainder is dropped and counted by Overflowed. Called from
// the producer side only; never blocks, never allocates.
func (p *Producer) Push(samples []float32) int {
	r := p.r
	head := r.head.Load()
	tail := r.tail.Load()
	free := uint64(len(r.buf)) - (head - tail)

	n := uint64(len(samples))
	accepted := n
	if accepted > free {
		accepted = free
	}

	for i := uint64(0); i < accepted; i++ {
		r.buf[(head+i)&r.mask] = samples[i]
	}
	if accepted > 0 {
		r.head.Store(head + accepted)
	}

	if dropped := n - accepted; dropped > 0 {
		r.overflowed.Add(dropped)
		r.consecutiveDrops.Add(1)
	} else {
		r.consecutiveDrops.Store(0)
	}

	return int(accepted)
}

// ConsecutiveDrops returns how many Push calls in a row have dropped at
// least one sample. A sustained run past a caller-chosen threshold signals
// the consumer cannot keep up and the pipeline should terminate rather than
// silently degrade.
func (p *Producer) ConsecutiveDrops() uint64 { return p.r.consecutiveDrops.Load() }

// TryPop removes and returns the oldest sample, or (0, false) if the ring
// is empty. Called from the consumer side only.
func (c *Consumer) TryPop() (float32, bool) {
	r := c.r
	tail := r.tail.Load()
	head := r.head.Load()
	if tail == head {
		return 0, false
	}
	v := r.buf[tail&r.mask]
	r.tail.Store(tail + 1)
	return v, true
}

// Len reports the number of samples currently queued. Approximate under
// concurrent Push, exact once the producer has stopped.
func (c *Consumer) Len() int {
	r := c.r
	return int(r.head.Load() - r.tail.Load())
}

// Overflowed returns the cumulative number of samples dropped because the
// ring was full, across the life of the Ring.
func (c *Consumer) Overflowed() uint64 { return c.r.overflowed.Load() }
