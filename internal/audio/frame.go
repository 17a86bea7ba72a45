package audio

// FrameSamples is the number of i16 samples in one output frame: 20ms at
// the fixed 16kHz output rate.
const FrameSamples = 320

// Frame is one 20ms block of mono 16kHz i16 audio, the unit the suppressor
// and sink operate on.
type Frame [FrameSamples]int16

// frameAssembler buffers resampler output until a whole frame is available.
// It never emits a partial frame: leftover samples stay buffered for the
// next call. The buffer is capped at a few frames' worth so a producer
// that never drains cannot grow it without bound.
type frameAssembler struct {
	buf []int16
}

const frameAssemblerMaxBuffered = 4 * FrameSamples

func newFrameAssembler() *frameAssembler {
	return &frameAssembler{buf: make([]int16, 0, frameAssemblerMaxBuffered)}
}

// push appends newly resampled samples and returns every whole frame that
// can now be detached, in order. The returned frames hold copies; the
// assembler's internal buffer is safe to reuse after this call.
func (a *frameAssembler) push(samples []int16) []Frame {
	a.buf = append(a.buf, samples...)

	var frames []Frame
	taken := 0
	for len(a.buf)-taken >= FrameSamples {
		var f Frame
		copy(f[:], a.buf[taken:taken+FrameSamples])
		frames = append(frames, f)
		taken += FrameSamples
	}

	remaining := copy(a.buf, a.buf[taken:])
	a.buf = a.buf[:remaining]

	if len(a.buf) > frameAssemblerMaxBuffered {
		// Producer is outpacing frame consumption; keep only the most
		// recent frameAssemblerMaxBuffered samples so memory stays bounded.
		drop := len(a.buf) - frameAssemblerMaxBuffered
		a.buf = a.buf[:copy(a.buf, a.buf[drop:])]
	}

	return frames
}

// reset discards any partially-buffered samples.
func (a *frameAssembler) reset() {
	a.buf = a.buf[:0]
}
