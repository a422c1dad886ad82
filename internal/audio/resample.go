package audio

import (
	"errors"
	"fmt"
	"math"
)

// ErrConverter marks a buffer the resampler could not convert. The caller
// drops that buffer and keeps capturing.
var ErrConverter = errors.New("audio converter failure")

// Format describes a native input.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz x%d", f.SampleRate, f.Channels)
}

// Resampler converts interleaved native frames to canonical 16 kHz mono using
// linear interpolation. It keeps its phase and the last frame between calls so
// consecutive buffers join without clicks or drift.
type Resampler struct {
	src      Format
	step     float64 // source frames per output sample
	pos      float64
	prev     float32
	primed   bool
	scratch  []float32
	combined []float32
}

// NewResampler returns a converter from src to the canonical format.
func NewResampler(src Format) (*Resampler, error) {
	if src.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid source rate %d", ErrConverter, src.SampleRate)
	}
	if src.Channels <= 0 {
		return nil, fmt.Errorf("%w: invalid channel count %d", ErrConverter, src.Channels)
	}
	return &Resampler{
		src:  src,
		step: float64(src.SampleRate) / float64(SampleRate),
	}, nil
}

// Source returns the native format this resampler expects.
func (r *Resampler) Source() Format { return r.src }

// Convert turns one buffer of interleaved native samples into canonical
// samples. On error nothing is emitted and the resampler state is untouched.
func (r *Resampler) Convert(in []float32) ([]float32, error) {
	ch := r.src.Channels
	if len(in)%ch != 0 {
		return nil, fmt.Errorf("%w: %d samples is not a whole number of %d-channel frames", ErrConverter, len(in), ch)
	}
	frames := len(in) / ch
	if cap(r.scratch) < frames {
		r.scratch = make([]float32, frames)
	}
	mono := r.scratch[:frames]
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < ch; c++ {
			v := in[i*ch+c]
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return nil, fmt.Errorf("%w: non-finite sample at frame %d", ErrConverter, i)
			}
			sum += v
		}
		mono[i] = sum / float32(ch)
	}
	if frames == 0 {
		return []float32{}, nil
	}
	if r.src.SampleRate == SampleRate {
		out := make([]float32, frames)
		copy(out, mono)
		return out, nil
	}

	buf := mono
	if r.primed {
		r.combined = append(r.combined[:0], r.prev)
		r.combined = append(r.combined, mono...)
		buf = r.combined
	}
	last := len(buf) - 1
	out := make([]float32, 0, int(float64(frames)/r.step)+2)
	for r.pos < float64(last) {
		idx := int(r.pos)
		frac := float32(r.pos - float64(idx))
		out = append(out, buf[idx]*(1-frac)+buf[idx+1]*frac)
		r.pos += r.step
	}
	r.pos -= float64(last)
	r.prev = buf[last]
	r.primed = true
	return out, nil
}

// Reset forgets phase and history.
func (r *Resampler) Reset() {
	r.pos = 0
	r.prev = 0
	r.primed = false
}

// ResampleLinear converts a whole mono clip between rates in one shot.
func ResampleLinear(in []float32, srcSR, dstSR int) []float32 {
	if srcSR == dstSR || len(in) == 0 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	ratio := float64(dstSR) / float64(srcSR)
	outLen := int(float64(len(in))*ratio + 0.9999)
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		pos := float64(i) / ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}
