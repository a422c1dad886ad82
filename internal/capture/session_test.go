package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"flowstate/internal/audio"
	"flowstate/internal/logging"
	"flowstate/internal/segment"
	"flowstate/internal/spectrum"
	"flowstate/internal/transcript"
)

type recordingSink struct {
	mu   sync.Mutex
	jobs []transcript.Job
}

func (r *recordingSink) Submit(job transcript.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingSink) all() []transcript.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transcript.Job(nil), r.jobs...)
}

type countingWarmer struct{ n atomic.Int32 }

func (w *countingWarmer) Warmup(ctx context.Context) error {
	w.n.Add(1)
	return errors.New("offline")
}

func constant(seconds, v float64) []float32 {
	out := make([]float32, int(seconds*audio.SampleRate))
	for i := range out {
		out[i] = float32(v)
	}
	return out
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("producer did not finish")
	}
}

func TestSessionCutsAndFlushes(t *testing.T) {
	samples := append(constant(3.0, 0.1), constant(0.5, 0.01)...)
	sink := &recordingSink{}
	warm := &countingWarmer{}
	s, err := Start(context.Background(), Options{
		Source:          audio.NewSliceSource(samples),
		FramesPerBuffer: 1600,
		Segmenter:       segment.DefaultConfig(),
		Generation:      7,
		Sink:            sink,
		Warmer:          warm,
		Logger:          logging.NewTestLogger(),
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, s)
	full, tail := s.Stop()
	if len(full) != 56000 {
		t.Fatalf("full stream %d samples", len(full))
	}
	if len(tail) != 0 {
		t.Fatalf("tail %d samples", len(tail))
	}
	jobs := sink.all()
	if len(jobs) != 2 {
		t.Fatalf("want 2 jobs, got %d", len(jobs))
	}
	first, last := jobs[0], jobs[1]
	if first.Generation != 7 || first.Chunk.Start != 0 || first.Chunk.End != 56000 || first.Chunk.Final {
		t.Fatalf("first job %+v", first.Chunk)
	}
	if len(first.Samples) != 56000 {
		t.Fatalf("first job carries %d samples", len(first.Samples))
	}
	if !last.Chunk.Final || last.Chunk.Seq != 1 || len(last.Samples) != 0 {
		t.Fatalf("final job %+v", last.Chunk)
	}
	// second Stop is a no-op
	full2, _ := s.Stop()
	if len(full2) != len(full) || len(sink.all()) != 2 {
		t.Fatalf("second stop changed state")
	}
	deadline := time.Now().Add(time.Second)
	for warm.n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if warm.n.Load() != 1 {
		t.Fatalf("warmup called %d times", warm.n.Load())
	}
}

func TestSessionTailIsUnclaimedSamples(t *testing.T) {
	sink := &recordingSink{}
	s, err := Start(context.Background(), Options{
		Source:          audio.NewSliceSource(constant(1.2, 0.1)),
		FramesPerBuffer: 1600,
		Segmenter:       segment.DefaultConfig(),
		Sink:            sink,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, s)
	full, tail := s.Stop()
	if len(full) != len(tail) || len(tail) != 19200 {
		t.Fatalf("full %d tail %d", len(full), len(tail))
	}
	jobs := sink.all()
	if len(jobs) != 1 || !jobs[0].Chunk.Final {
		t.Fatalf("jobs %+v", jobs)
	}
}

func TestSessionInputUnavailable(t *testing.T) {
	src := audio.NewWAVSource(filepath.Join(t.TempDir(), "missing.wav"))
	_, err := Start(context.Background(), Options{Source: src, Segmenter: segment.DefaultConfig()})
	if !errors.Is(err, audio.ErrInputUnavailable) {
		t.Fatalf("got %v", err)
	}
	if _, err := Start(context.Background(), Options{}); !errors.Is(err, audio.ErrInputUnavailable) {
		t.Fatalf("nil source: %v", err)
	}
}

func TestSessionDropsRaggedBuffer(t *testing.T) {
	// stereo input whose last read is half a frame short
	src := &audio.SliceSource{
		Format:  audio.Format{SampleRate: audio.SampleRate, Channels: 2},
		Samples: constant(0.5, 0.1)[:6401],
	}
	s, err := Start(context.Background(), Options{
		Source:          src,
		FramesPerBuffer: 1600,
		Segmenter:       segment.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, s)
	full, _ := s.Stop()
	if len(full) != 3200 {
		t.Fatalf("got %d canonical samples", len(full))
	}
}

func TestSessionPublishesMetersAndDumps(t *testing.T) {
	meters := spectrum.NewMailbox[Meter]()
	dump := filepath.Join(t.TempDir(), "session.wav")
	s, err := Start(context.Background(), Options{
		Source:          audio.NewSliceSource(constant(0.5, 0.3)),
		FramesPerBuffer: 1024,
		Segmenter:       segment.DefaultConfig(),
		Meters:          meters,
		Spectrum:        true,
		DumpPath:        dump,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, s)
	s.Stop()
	m, ok := meters.Take()
	if !ok {
		t.Fatalf("no meter published")
	}
	if m.Level != 1 || m.Samples != 8000 {
		t.Fatalf("meter %+v", m)
	}
	if _, err := os.Stat(dump); err != nil {
		t.Fatalf("dump missing: %v", err)
	}
	back, err := audio.ReadWAV(dump)
	if err != nil || len(back) != 8000 {
		t.Fatalf("dump read %d samples, err %v", len(back), err)
	}
}

func TestStopBeforeEOF(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := Start(ctx, Options{
		Source:          audio.NewSliceSource(constant(60, 0.1)),
		FramesPerBuffer: 1600,
		Segmenter:       segment.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	full, tail := s.Stop()
	if len(full) > 60*audio.SampleRate || len(tail) > len(full) {
		t.Fatalf("full %d tail %d", len(full), len(tail))
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("done not closed after stop")
	}
}
