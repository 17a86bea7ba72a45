package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenwick-labs/sttcapture/internal/telemetry"
	"github.com/fenwick-labs/sttcapture/pkg/ringbuf"
)

// fakeSource stands in for a real device so Controller's drain/resample/
// assemble/dispatch pipeline can be exercised without hardware.
type fakeSource struct {
	rate     uint32
	producer *ringbuf.Producer
	consumer *ringbuf.Consumer
	closed   bool
}

func newFakeSource(rate uint32, capacity int) *fakeSource {
	p, c := ringbuf.New(capacity)
	return &fakeSource{rate: rate, producer: p, consumer: c}
}

func (f *fakeSource) SampleRate() uint32              { return f.rate }
func (f *fakeSource) TakeConsumer() *ringbuf.Consumer { return f.consumer }
func (f *fakeSource) Producer() *ringbuf.Producer     { return f.producer }
func (f *fakeSource) Play() error                     { return nil }
func (f *fakeSource) Close() error                    { f.closed = true; return nil }

func TestControllerDeliversFramesAtSixteenKHz(t *testing.T) {
	src := newFakeSource(16000, 1<<20)
	ctrl := NewSystemController(src, telemetry.New("error"))

	received := make(chan Frame, 64)
	require.NoError(t, ctrl.Start(func(f Frame) { received <- f }))
	defer ctrl.Stop()

	// One loud frame's worth of samples at unity rate should come straight
	// through as a single Send action.
	loud := make([]float32, FrameSamples)
	for i := range loud {
		loud[i] = 0.8
	}
	src.producer.Push(loud)

	select {
	case f := <-received:
		assert.NotEqual(t, Frame{}, f)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a frame")
	}
}

func TestControllerClosesSourceOnStop(t *testing.T) {
	src := newFakeSource(16000, 4096)
	ctrl := NewSystemController(src, telemetry.New("error"))

	require.NoError(t, ctrl.Start(func(Frame) {}))
	ctrl.Stop()

	assert.True(t, src.closed)
}

func TestControllerTerminatesOnSustainedOverflow(t *testing.T) {
	// Pre-fill a one-sample ring with more overflowing pushes than the
	// fatal threshold before the worker ever runs, so the first check it
	// makes is deterministic rather than racing a live drain loop.
	src := newFakeSource(16000, 1)
	for i := 0; i < maxConsecutiveDrops+5; i++ {
		src.producer.Push(make([]float32, 8))
	}
	require.Greater(t, src.producer.ConsecutiveDrops(), uint64(maxConsecutiveDrops))

	ctrl := NewSystemController(src, telemetry.New("error"))
	err := ctrl.dspWorker(
		context.Background(),
		src.consumer,
		src.producer,
		NewStreamingResampler(16000, 16000),
		nil,
		newFrameAssembler(),
		func(Frame) {},
	)
	assert.Error(t, err)
}
