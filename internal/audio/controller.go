package audio

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fenwick-labs/sttcapture/internal/telemetry"
	"github.com/fenwick-labs/sttcapture/pkg/ringbuf"
)

// maxConsecutiveDrops is how many ring-buffer pushes in a row may drop
// samples before the pipeline gives up rather than silently degrading
// audio quality indefinitely.
const maxConsecutiveDrops = 50

// dspDrainBatch bounds how many samples a single worker tick pulls from
// the ring, so one slow tick can't starve the pacing sleep below.
const dspDrainBatch = 480

// FrameSink receives one 20ms frame at a time, in order, for as long as a
// Controller is running.
type FrameSink func(frame Frame)

// source is what a Controller drives: something that owns a device and
// hands back a ring consumer to drain.
type source interface {
	SampleRate() uint32
	TakeConsumer() *ringbuf.Consumer
	Play() error
	Close() error
}

// producerSource additionally exposes the producer half, used only to
// detect sustained overflow from the worker side.
type producerSource interface {
	source
	Producer() *ringbuf.Producer
}

// Controller owns one audio source end to end: starting it, running its
// DSP worker, and tearing it down. Both the microphone and system-audio
// pipelines are driven by the same Controller, parameterized over which
// source they wrap.
type Controller struct {
	src    source
	suppr  *SilenceSuppressor
	vad    *SpeechIndicator
	label  string
	log    *telemetry.Logger
	hqMode bool
	stats  *telemetry.Metrics

	cancel context.CancelFunc
	group  *errgroup.Group
}

// ControllerOption customizes a Controller at construction.
type ControllerOption func(*Controller)

// WithHighQualityResample swaps in the polyphase anti-aliasing resampler
// in place of the default zero-latency streaming one, trading a firTaps-long
// FIR per output sample for cleaner audio. Its filter window reads ahead
// only within the current chunk, so it adds no buffering delay.
func WithHighQualityResample() ControllerOption {
	return func(c *Controller) { c.hqMode = true }
}

// WithMetrics records this controller's frame/overflow counts into m.
func WithMetrics(m *telemetry.Metrics) ControllerOption {
	return func(c *Controller) { c.stats = m }
}

// NewMicController wraps a MicrophoneSource with the microphone silence
// preset.
func NewMicController(mic *MicrophoneSource, log *telemetry.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		src:   mic,
		suppr: NewSilenceSuppressor(MicrophonePreset()),
		vad:   NewSpeechIndicator(),
		label: "mic",
		log:   log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewSystemController wraps a system-audio source with the more permissive
// system-audio silence preset.
func NewSystemController(sys source, log *telemetry.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		src:   sys,
		suppr: NewSilenceSuppressor(SystemAudioPreset()),
		vad:   NewSpeechIndicator(),
		label: "system",
		log:   log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SampleRate returns the underlying source's native rate.
func (c *Controller) SampleRate() int { return int(c.src.SampleRate()) }

// IsSpeech reports the suppressor's current speech/silence verdict.
func (c *Controller) IsSpeech() bool { return c.suppr.IsSpeech() }

// Stats returns cumulative frames sent and suppressed.
func (c *Controller) Stats() (sent, suppressed uint64) { return c.suppr.Stats() }

// Start begins capture and spawns the DSP worker that drains the source's
// ring, resamples, assembles frames, and dispatches them through the
// suppressor to sink. Start returns once the source device is running;
// the worker continues until Stop is called or it observes sustained
// ring overflow.
func (c *Controller) Start(sink FrameSink) error {
	if err := c.src.Play(); err != nil {
		return fmt.Errorf("start %s source: %w", c.label, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	c.cancel = cancel
	c.group = group

	consumer := c.src.TakeConsumer()
	resampler := NewStreamingResampler(float64(c.src.SampleRate()), 16000)

	var hqResampler *PolyphaseResampler
	if c.hqMode {
		hqResampler = NewPolyphaseResampler(int(c.src.SampleRate()), 16000)
	}

	assembler := newFrameAssembler()

	var producer *ringbuf.Producer
	if ps, ok := c.src.(producerSource); ok {
		producer = ps.Producer()
	}

	if c.stats != nil {
		c.stats.ResamplerRatio.WithLabelValues(c.label).Set(float64(c.src.SampleRate()) / 16000.0)
	}

	group.Go(func() error {
		return c.dspWorker(ctx, consumer, producer, resampler, hqResampler, assembler, sink)
	})

	return nil
}

func (c *Controller) dspWorker(
	ctx context.Context,
	consumer *ringbuf.Consumer,
	producer *ringbuf.Producer,
	resampler *StreamingResampler,
	hqResampler *PolyphaseResampler,
	assembler *frameAssembler,
	sink FrameSink,
) error {
	batch := make([]float32, 0, dspDrainBatch)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if producer != nil && producer.ConsecutiveDrops() > maxConsecutiveDrops {
			c.log.Error("sustained ring overflow, terminating capture", "source", c.label)
			if c.stats != nil {
				c.stats.RingOverflow.WithLabelValues(c.label).Add(float64(consumer.Overflowed()))
			}
			return fmt.Errorf("%s: sustained ring overflow (>%d consecutive drops)", c.label, maxConsecutiveDrops)
		}

		batch = batch[:0]
		for len(batch) < dspDrainBatch {
			v, ok := consumer.TryPop()
			if !ok {
				break
			}
			batch = append(batch, v)
		}

		var resampled []int16
		if len(batch) > 0 {
			if hqResampler != nil {
				resampled = float32ToI16(hqResampler.Resample(batch))
			} else {
				resampled = resampler.Resample(batch)
			}
		}

		frames := assembler.push(resampled)
		for _, frame := range frames {
			c.vad.Update(frame)
			action := c.suppr.Process(frame)
			switch action.Kind {
			case ActionSend:
				sink(action.Frame)
				if c.stats != nil {
					c.stats.FramesSent.WithLabelValues(c.label).Inc()
				}
			case ActionSendSilence:
				sink(Frame{})
				if c.stats != nil {
					c.stats.FramesSent.WithLabelValues(c.label).Inc()
				}
			case ActionSuppress:
				if c.stats != nil {
					c.stats.FramesSuppressed.WithLabelValues(c.label).Inc()
				}
			}
		}

		// Pace the loop on whether a whole frame was assembled this tick,
		// not on whether the ring yielded any samples at all: a slow trickle
		// of samples (fewer than one frame per poll) must still sleep, or
		// this loop busy-spins on TryPop with no frame ever produced.
		if len(frames) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Millisecond):
			}
		}
	}
}

// float32ToI16 converts the polyphase resampler's f32 output to the same
// i16 wire format the streaming resampler produces, so both paths feed an
// identical frame assembler.
func float32ToI16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = clampI16(s * 32767.0)
	}
	return out
}

// Stop signals the DSP worker to exit and waits for it, then releases the
// underlying source.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.group != nil {
		if err := c.group.Wait(); err != nil {
			c.log.Warn("dsp worker exited with error", "source", c.label, "err", err)
		}
	}
	if err := c.src.Close(); err != nil {
		c.log.Warn("error closing source", "source", c.label, "err", err)
	}
}
