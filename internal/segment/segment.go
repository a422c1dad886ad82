// Package segment cuts the canonical sample stream into disjoint chunks that
// can be transcribed while the speaker is still talking.
package segment

import (
	"fmt"
	"math"
	"time"

	"flowstate/internal/audio"
	"flowstate/internal/config"
)

// Config holds the cut policy.
type Config struct {
	MinChunk         time.Duration
	MaxChunk         time.Duration
	SilenceThreshold float64 // normalized RMS below which a buffer is silence
	MinSilence       time.Duration
}

// DefaultConfig returns the stock cut policy.
func DefaultConfig() Config {
	return Config{
		MinChunk:         2 * time.Second,
		MaxChunk:         10 * time.Second,
		SilenceThreshold: 0.02,
		MinSilence:       400 * time.Millisecond,
	}
}

// FromConfig reads the [segmenter] section.
func FromConfig(cfg *config.Config) Config {
	s := cfg.Segmenter
	return Config{
		MinChunk:         config.Seconds(s.MinChunkSec),
		MaxChunk:         config.Seconds(s.MaxChunkSec),
		SilenceThreshold: s.SilenceThreshold,
		MinSilence:       config.Seconds(s.MinSilenceSec),
	}
}

// Chunk is a span [Start, End) of stream sample indices.
type Chunk struct {
	Seq   int  `json:"seq"`
	Start int  `json:"start"`
	End   int  `json:"end"`
	Final bool `json:"final"`
}

// Len returns the number of samples in the chunk.
func (c Chunk) Len() int { return c.End - c.Start }

// Duration returns the chunk length at the canonical rate.
func (c Chunk) Duration() time.Duration {
	return time.Duration(c.Len()) * time.Second / audio.SampleRate
}

func (c Chunk) String() string {
	return fmt.Sprintf("chunk#%d[%d,%d) final=%t", c.Seq, c.Start, c.End, c.Final)
}

// State is the segmentation bookkeeping, in samples.
type State struct {
	LastChunkEnd   int
	SilenceSamples int
	SinceLastChunk int
	StreamEnd      int
}

// Segmenter applies the cut policy one buffer at a time. It does no I/O and
// is owned by the capture producer.
type Segmenter struct {
	minChunk   int
	maxChunk   int
	minSilence int

	state State
	seq   int
	done  bool
	final Chunk
}

// New returns a Segmenter for cfg.
func New(cfg Config) *Segmenter {
	return &Segmenter{
		minChunk:   toSamples(cfg.MinChunk),
		maxChunk:   toSamples(cfg.MaxChunk),
		minSilence: toSamples(cfg.MinSilence),
	}
}

func toSamples(d time.Duration) int {
	return int(math.Round(d.Seconds() * audio.SampleRate))
}

// Push accounts for one buffer of n samples and returns a chunk when the
// cut policy fires.
func (s *Segmenter) Push(n int, silent bool) (Chunk, bool) {
	if s.done || n < 0 {
		return Chunk{}, false
	}
	st := &s.state
	st.StreamEnd += n
	st.SinceLastChunk += n
	if silent {
		st.SilenceSamples += n
	} else {
		st.SilenceSamples = 0
	}
	canCut := st.SinceLastChunk > s.minChunk && st.SilenceSamples > s.minSilence
	mustCut := st.SinceLastChunk > s.maxChunk
	if !canCut && !mustCut {
		return Chunk{}, false
	}
	return s.cut(false), true
}

// Flush emits the final chunk covering whatever remains, even if empty.
// Later calls return the same final chunk.
func (s *Segmenter) Flush() Chunk {
	if s.done {
		return s.final
	}
	s.final = s.cut(true)
	s.done = true
	return s.final
}

func (s *Segmenter) cut(final bool) Chunk {
	st := &s.state
	c := Chunk{Seq: s.seq, Start: st.LastChunkEnd, End: st.StreamEnd, Final: final}
	s.seq++
	st.LastChunkEnd = st.StreamEnd
	st.SinceLastChunk = 0
	st.SilenceSamples = 0
	return c
}

// State returns a copy of the bookkeeping.
func (s *Segmenter) State() State { return s.state }

// Pending returns the number of samples not yet claimed by a chunk.
func (s *Segmenter) Pending() int { return s.state.StreamEnd - s.state.LastChunkEnd }

// Reset starts a new session; sequence numbers restart at zero.
func (s *Segmenter) Reset() {
	s.state = State{}
	s.seq = 0
	s.done = false
	s.final = Chunk{}
}
