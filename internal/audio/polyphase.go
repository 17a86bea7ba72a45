package audio

import "math"

// firTaps is the anti-aliasing filter length: long enough to suppress
// aliasing from typical device rates (44.1/48kHz) down to 16kHz without
// costing more than a couple of frames of lookahead latency.
const firTaps = 64

// PolyphaseResampler is the optional high-quality capture path: a
// windowed-sinc FIR filters out energy above the output Nyquist frequency
// before downsampling, avoiding the aliasing a plain decimation would fold
// back into the passband. Upsampling needs no anti-imaging filter in this
// pipeline, so it falls back to linear interpolation. Selected only via
// WithHighQualityResample; the default path is the zero-latency
// StreamingResampler.
type PolyphaseResampler struct {
	ratio  float64
	coeffs []float32

	carry    []float32 // last firTaps input samples, for FIR continuity across calls
	prevTail float32   // last input sample of the previous upsample call
	scratch  []float32 // reused carry+input concatenation buffer
}

// NewPolyphaseResampler builds a resampler for the given rate conversion.
// Use it for downsampling (e.g. 48kHz -> 16kHz); for upsampling, the
// zero-latency StreamingResampler is sufficient on its own.
func NewPolyphaseResampler(fromRate, toRate int) *PolyphaseResampler {
	ratio := float64(toRate) / float64(fromRate)
	cutoff := 0.5
	if ratio < 1.0 {
		cutoff = ratio * 0.5 // downsampling: filter at the output Nyquist
	}

	return &PolyphaseResampler{
		ratio:  ratio,
		coeffs: designLowpassFIR(cutoff, firTaps),
		carry:  make([]float32, firTaps),
	}
}

// designLowpassFIR builds a normalized windowed-sinc lowpass filter: cutoff
// is expressed as a fraction of the sample rate, taps is the filter length.
func designLowpassFIR(cutoff float64, taps int) []float32 {
	coeffs := make([]float32, taps)
	center := float64(taps-1) / 2.0

	var sum float32
	for i := range coeffs {
		n := float64(i) - center
		var v float64
		if n == 0 {
			v = 2.0 * cutoff
		} else {
			sinc := math.Sin(2.0*math.Pi*cutoff*n) / (math.Pi * n)
			hamming := 0.54 - 0.46*math.Cos(2.0*math.Pi*float64(i)/float64(taps-1))
			v = sinc * hamming
		}
		coeffs[i] = float32(v)
		sum += coeffs[i]
	}
	for i := range coeffs {
		coeffs[i] /= sum
	}
	return coeffs
}

// Resample converts one call's worth of samples. State carries across calls
// (the FIR's trailing history on the downsample path, the last input
// sample on the upsample path), so callers must feed a single resampler
// instance a continuous stream rather than reusing it across sources.
func (r *PolyphaseResampler) Resample(input []float32) []float32 {
	if r.ratio == 1.0 || len(input) == 0 {
		return input
	}
	if r.ratio > 1.0 {
		return r.upsample(input)
	}
	return r.downsample(input)
}

func (r *PolyphaseResampler) upsample(input []float32) []float32 {
	n := len(input)
	out := make([]float32, int(float64(n)*r.ratio))

	for i := range out {
		pos := float64(i) / r.ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		a := r.prevTail
		if idx < n {
			a = input[idx]
		}
		b := a
		if idx+1 < n {
			b = input[idx+1]
		} else if idx < n {
			b = input[n-1]
		}
		out[i] = a + (b-a)*frac
	}

	r.prevTail = input[n-1]
	return out
}

// downsample runs the FIR across a buffer that prepends the previous call's
// trailing firTaps samples, so the filter has real history at every chunk
// boundary instead of zero-padding and producing an audible seam.
func (r *PolyphaseResampler) downsample(input []float32) []float32 {
	n := len(input)
	out := make([]float32, int(float64(n)*r.ratio))

	need := len(r.carry) + n
	if cap(r.scratch) < need {
		r.scratch = make([]float32, need)
	}
	combined := r.scratch[:need]
	copy(combined, r.carry)
	copy(combined[len(r.carry):], input)

	half := len(r.coeffs) / 2
	for i := range out {
		center := int(float64(i)/r.ratio) + len(r.carry)
		var acc float32
		for j, coeff := range r.coeffs {
			idx := center - half + j
			if idx >= 0 && idx < len(combined) {
				acc += combined[idx] * coeff
			}
		}
		out[i] = acc
	}

	if n >= len(r.carry) {
		copy(r.carry, input[n-len(r.carry):])
	} else {
		shift := len(r.carry) - n
		copy(r.carry, r.carry[n:])
		copy(r.carry[shift:], input)
	}

	return out
}

// ResamplePolyphase is a one-shot convenience wrapper. Downsampling routes
// through the FIR above; upsampling routes through the streaming
// resampler's one-shot entry point instead, since linear interpolation
// needs no anti-imaging filter.
func ResamplePolyphase(input []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate {
		return input
	}
	if toRate < fromRate {
		return NewPolyphaseResampler(fromRate, toRate).Resample(input)
	}

	i16 := ResampleOneShot(input, float64(fromRate), float64(toRate))
	out := make([]float32, len(i16))
	for i, s := range i16 {
		out[i] = float32(s) / 32767.0
	}
	return out
}
