package audio

import "math"

// StreamingResampler converts f32 audio at an arbitrary input rate to i16
// audio at a fixed output rate using linear interpolation. It is stateful:
// the fractional read position carries across calls to Resample as an
// index into the *next* chunk, and the previous chunk's last sample is kept
// so a position that falls between two chunks is interpolated once the
// second one arrives. Chunk boundaries therefore introduce no clicks or
// discontinuities and no chunk needs to be buffered ahead of time. Feeding
// the same stream through Resample in arbitrarily different chunk sizes
// produces the same output as one call over the whole stream.
//
// Linear interpolation is used instead of a polyphase/FIR filter
// (see PolyphaseResampler) because it adds zero algorithmic latency: every
// input sample can produce output the instant it arrives. A windowed-sinc
// filter needs a lookahead window before it can emit its first sample,
// which this pipeline's real-time budget does not have room for.
type StreamingResampler struct {
	ratio         float64 // inputRate / outputRate
	fractionalPos float64 // carried read position into the next chunk
	prevSample    float32 // last sample of the previous chunk

	// Outputs emitted and inputs consumed so far; fractionalPos is computed
	// from them so its rounding does not depend on how input was chunked.
	emitted, consumed uint64
}

// NewStreamingResampler creates a resampler converting inputRate to
// outputRate. outputRate is conventionally 16000 for speech recognition.
func NewStreamingResampler(inputRate, outputRate float64) *StreamingResampler {
	return &StreamingResampler{ratio: inputRate / outputRate}
}

// Resample converts one chunk of input samples, returning the i16 samples
// produced. The number of samples returned depends on the fractional
// position carried from prior calls and is not a fixed function of
// len(input) alone.
func (r *StreamingResampler) Resample(input []float32) []int16 {
	if len(input) == 0 {
		return nil
	}

	estimated := int(float64(len(input))/r.ratio) + 2
	output := make([]int16, 0, estimated)

	n := float64(len(input))
samples:
	for r.fractionalPos < n {
		pos := r.fractionalPos
		idx := int(math.Floor(pos))
		frac := pos - float64(idx)

		var sampleA, sampleB float32
		switch {
		case idx < 0:
			sampleA = r.prevSample
		case idx < len(input):
			sampleA = input[idx]
		default:
			break samples
		}
		switch {
		case idx < 0:
			sampleB = input[0]
		case idx+1 < len(input):
			sampleB = input[idx+1]
		case frac == 0:
			sampleB = input[idx]
		default:
			// Needs the next chunk's first sample; emitted on the next call.
			break samples
		}

		interpolated := sampleA + float32(frac)*(sampleB-sampleA)
		output = append(output, clampI16(interpolated*32767.0))

		r.emitted++
		r.fractionalPos = float64(r.emitted)*r.ratio - float64(r.consumed)
	}

	r.consumed += uint64(len(input))
	r.fractionalPos = float64(r.emitted)*r.ratio - float64(r.consumed)
	r.prevSample = input[len(input)-1]

	return output
}

// Reset clears all carried state, as if the resampler were newly created.
func (r *StreamingResampler) Reset() {
	*r = StreamingResampler{ratio: r.ratio}
}

func clampI16(v float32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// ResampleOneShot is a convenience wrapper for non-streaming callers that
// only need a single chunk converted. Streaming callers should keep a
// StreamingResampler alive across chunks instead, to preserve phase
// continuity.
func ResampleOneShot(input []float32, inputRate, outputRate float64) []int16 {
	r := NewStreamingResampler(inputRate, outputRate)
	return r.Resample(input)
}
