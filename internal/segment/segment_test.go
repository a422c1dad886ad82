package segment

import (
	"testing"
	"time"

	"flowstate/internal/audio"
	"flowstate/internal/config"
)

// 100 ms buffers
const buf = 1600

type step struct {
	seconds float64
	rms     float64
}

func run(t *testing.T, cfg Config, steps []step) (*Segmenter, []Chunk) {
	t.Helper()
	s := New(cfg)
	det := RMSDetector{Threshold: cfg.SilenceThreshold}
	var chunks []Chunk
	for _, st := range steps {
		n := int(st.seconds*audio.SampleRate) / buf
		for i := 0; i < n; i++ {
			if c, ok := s.Push(buf, det.Silent(nil, st.rms)); ok {
				chunks = append(chunks, c)
			}
		}
	}
	return s, chunks
}

func TestSpeechThenPauseCutsOnce(t *testing.T) {
	s, chunks := run(t, DefaultConfig(), []step{{3.0, 0.1}, {0.5, 0.01}})
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d: %v", len(chunks), chunks)
	}
	c := chunks[0]
	if c.Seq != 0 || c.Start != 0 || c.End != 56000 || c.Final {
		t.Fatalf("unexpected chunk %v", c)
	}
	if c.Duration() != 3500*time.Millisecond {
		t.Fatalf("duration %v", c.Duration())
	}
	if s.Pending() != 0 {
		t.Fatalf("pending %d", s.Pending())
	}
}

func TestShortPauseDoesNotCut(t *testing.T) {
	_, chunks := run(t, DefaultConfig(), []step{{3.0, 0.1}, {0.4, 0.0}, {1.0, 0.1}})
	if len(chunks) != 0 {
		t.Fatalf("0.4s of silence is not more than min silence: %v", chunks)
	}
}

func TestEarlyPauseDoesNotCut(t *testing.T) {
	// silence before min chunk elapsed
	_, chunks := run(t, DefaultConfig(), []step{{1.0, 0.1}, {0.8, 0.0}})
	if len(chunks) != 0 {
		t.Fatalf("cut before min chunk: %v", chunks)
	}
}

func TestContinuousSpeechForcesCut(t *testing.T) {
	_, chunks := run(t, DefaultConfig(), []step{{11.0, 0.1}})
	if len(chunks) != 1 {
		t.Fatalf("want 1 forced chunk, got %v", chunks)
	}
	c := chunks[0]
	if c.Start != 0 || c.End != 161600 {
		t.Fatalf("forced cut at %v", c)
	}
	if d := c.Duration(); d < 10*time.Second || d > 10*time.Second+100*time.Millisecond {
		t.Fatalf("forced cut duration %v", d)
	}
}

func TestChunksAreDisjointAndCoverStream(t *testing.T) {
	steps := []step{
		{2.5, 0.1}, {0.6, 0.0},
		{12.0, 0.2},
		{0.3, 0.0}, {2.2, 0.1}, {0.5, 0.001},
		{1.0, 0.1},
	}
	s, chunks := run(t, DefaultConfig(), steps)
	chunks = append(chunks, s.Flush())
	next := 0
	for i, c := range chunks {
		if c.Seq != i {
			t.Fatalf("chunk %d has seq %d", i, c.Seq)
		}
		if c.Start != next {
			t.Fatalf("chunk %v does not start at %d", c, next)
		}
		if c.End < c.Start {
			t.Fatalf("inverted chunk %v", c)
		}
		next = c.End
	}
	if next != s.State().StreamEnd {
		t.Fatalf("chunks end at %d, stream at %d", next, s.State().StreamEnd)
	}
	if !chunks[len(chunks)-1].Final {
		t.Fatalf("last chunk not final")
	}
	for _, c := range chunks[:len(chunks)-1] {
		if c.Final {
			t.Fatalf("non-last chunk marked final: %v", c)
		}
	}
}

func TestFlushEmitsEmptyFinalChunk(t *testing.T) {
	s, chunks := run(t, DefaultConfig(), []step{{3.0, 0.1}, {0.5, 0.0}})
	if len(chunks) != 1 {
		t.Fatalf("setup: %v", chunks)
	}
	final := s.Flush()
	if !final.Final || final.Seq != 1 || final.Len() != 0 || final.Start != 56000 {
		t.Fatalf("final chunk %v", final)
	}
	if again := s.Flush(); again != final {
		t.Fatalf("second flush %v != %v", again, final)
	}
	if _, ok := s.Push(buf, false); ok {
		t.Fatalf("push after flush produced a chunk")
	}
}

func TestFlushShortTail(t *testing.T) {
	s, _ := run(t, DefaultConfig(), []step{{0.5, 0.1}})
	final := s.Flush()
	if final.Seq != 0 || final.Start != 0 || final.End != 8000 {
		t.Fatalf("tail chunk %v", final)
	}
}

func TestResetRestartsSequence(t *testing.T) {
	s, _ := run(t, DefaultConfig(), []step{{11.0, 0.1}})
	s.Flush()
	s.Reset()
	if c, ok := s.Push(0, true); ok {
		t.Fatalf("zero-length push cut %v", c)
	}
	if f := s.Flush(); f.Seq != 0 || f.Len() != 0 {
		t.Fatalf("after reset %v", f)
	}
}

func TestZeroLengthBufferIsSilence(t *testing.T) {
	d := RMSDetector{Threshold: 0.02}
	if !d.Silent(nil, audio.RMS(nil)) {
		t.Fatalf("empty buffer should be silence")
	}
}

func TestFromConfigAndDetector(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if got := FromConfig(cfg); got != DefaultConfig() {
		t.Fatalf("config mismatch: %+v vs %+v", got, DefaultConfig())
	}
	det, err := NewDetector(cfg)
	if err != nil {
		t.Fatalf("detector: %v", err)
	}
	if _, ok := det.(RMSDetector); !ok {
		t.Fatalf("default detector %T", det)
	}
	cfg.Segmenter.Detector = "bogus"
	if _, err := NewDetector(cfg); err == nil {
		t.Fatalf("expected error for unknown detector")
	}
}
