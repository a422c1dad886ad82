package audio

import (
	"errors"
	"io"
)

// ErrInputUnavailable is returned when no input device can be opened, either
// because none is present or because permission was denied.
var ErrInputUnavailable = errors.New("audio input unavailable")

// Source delivers interleaved native float32 frames.
type Source interface {
	// Open prepares the input and reports its native format.
	Open() (Format, error)
	// Read blocks until buf holds one buffer of interleaved samples and
	// returns how many samples were written. It returns io.EOF when a finite
	// source is exhausted.
	Read(buf []float32) (int, error)
	Close() error
}

// SliceSource replays in-memory samples in fixed-size reads.
type SliceSource struct {
	Format  Format
	Samples []float32
	off     int
	closed  bool
}

// NewSliceSource returns a source over mono samples at the canonical rate.
func NewSliceSource(samples []float32) *SliceSource {
	return &SliceSource{Format: Format{SampleRate: SampleRate, Channels: 1}, Samples: samples}
}

func (s *SliceSource) Open() (Format, error) {
	if s.Format.SampleRate == 0 {
		s.Format = Format{SampleRate: SampleRate, Channels: 1}
	}
	return s.Format, nil
}

func (s *SliceSource) Read(buf []float32) (int, error) {
	if s.closed || s.off >= len(s.Samples) {
		return 0, io.EOF
	}
	n := copy(buf, s.Samples[s.off:])
	s.off += n
	return n, nil
}

func (s *SliceSource) Close() error {
	s.closed = true
	return nil
}
