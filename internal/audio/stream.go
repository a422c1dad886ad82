// Package audio holds the canonical 16 kHz mono sample stream and the pieces
// that bridge a native input (device or file) to it.
package audio

import (
	"math"
	"time"
)

// SampleRate is the canonical rate of the stream.
const SampleRate = 16000

// SampleStream is an append-only sequence of canonical samples for one
// recording session. It is owned by the capture producer goroutine.
type SampleStream struct {
	samples []float32
}

// NewSampleStream returns an empty stream with room for about capSec seconds.
func NewSampleStream(capSec int) *SampleStream {
	if capSec < 0 {
		capSec = 0
	}
	return &SampleStream{samples: make([]float32, 0, capSec*SampleRate)}
}

// Append adds converted samples to the end of the stream.
func (s *SampleStream) Append(samples []float32) {
	s.samples = append(s.samples, samples...)
}

// Len returns the number of samples captured so far.
func (s *SampleStream) Len() int { return len(s.samples) }

// Slice returns a copy of samples in [start, end), clamped to the stream.
func (s *SampleStream) Slice(start, end int) []float32 {
	if start < 0 {
		start = 0
	}
	if end > len(s.samples) {
		end = len(s.samples)
	}
	if start >= end {
		return []float32{}
	}
	out := make([]float32, end-start)
	copy(out, s.samples[start:end])
	return out
}

// Snapshot returns a copy of the whole stream.
func (s *SampleStream) Snapshot() []float32 {
	return s.Slice(0, len(s.samples))
}

// Reset clears the stream for a new session.
func (s *SampleStream) Reset() {
	s.samples = s.samples[:0]
}

// Seconds converts a sample count to seconds at the canonical rate.
func Seconds(n int) float64 {
	return float64(n) / SampleRate
}

// Duration converts a canonical sample count to wall time.
func Duration(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}

// RMS returns the root-mean-square amplitude of samples. An empty buffer has
// an RMS of 0 and is therefore silence.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Level maps RMS to a 0..1 meter value (x10, clamped).
func Level(rms float64) float64 {
	return math.Min(math.Max(rms*10, 0), 1)
}
