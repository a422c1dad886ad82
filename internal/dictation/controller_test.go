package dictation

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"flowstate/internal/audio"
	"flowstate/internal/config"
	"flowstate/internal/format"
	"flowstate/internal/history"
	"flowstate/internal/hotkey"
	"flowstate/internal/logging"
	"flowstate/internal/output"
	"flowstate/internal/segment"
	"flowstate/internal/transcript"
)

// heldSource serves its samples once and then behaves like a quiet live
// microphone: reads wait briefly and return nothing until closed.
type heldSource struct {
	samples []float32
	off     int
	closed  chan struct{}
	once    sync.Once
	openErr error
}

func newHeldSource(samples []float32) *heldSource {
	return &heldSource{samples: samples, closed: make(chan struct{})}
}

func (s *heldSource) Open() (audio.Format, error) {
	if s.openErr != nil {
		return audio.Format{}, s.openErr
	}
	return audio.Format{SampleRate: audio.SampleRate, Channels: 1}, nil
}

func (s *heldSource) Read(buf []float32) (int, error) {
	if s.off < len(s.samples) {
		n := copy(buf, s.samples[s.off:])
		s.off += n
		return n, nil
	}
	select {
	case <-s.closed:
		return 0, io.EOF
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (s *heldSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type recordingSink struct {
	mu  sync.Mutex
	got []output.Delivery
	err error
}

func (r *recordingSink) Name() string { return "test" }

func (r *recordingSink) Deliver(_ context.Context, d output.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, d)
	return r.err
}

func (r *recordingSink) deliveries() []output.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]output.Delivery(nil), r.got...)
}

type countingNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *countingNotifier) Notify(title, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
	return nil
}

type harness struct {
	ctrl     *Controller
	orch     *transcript.Orchestrator
	sink     *recordingSink
	notifier *countingNotifier
	store    *history.Store
}

func newHarness(t *testing.T, tr transcript.Transcriber, newSource func() audio.Source) *harness {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Formatter.APIKey = ""
	logger := logging.NewTestLogger()
	orch := transcript.New(transcript.Options{Transcriber: tr, Logger: logger})
	store, err := history.Open(filepath.Join(t.TempDir(), "history.jsonl"), 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	h := &harness{orch: orch, sink: &recordingSink{}, notifier: &countingNotifier{}, store: store}
	h.ctrl = New(Options{
		Orchestrator:    orch,
		NewSource:       newSource,
		FramesPerBuffer: 1600,
		Segmenter:       segment.DefaultConfig(),
		Formatter:       format.New(cfg, logger),
		Output:          h.sink,
		History:         store,
		StatusTail:      5,
		Notifier:        h.notifier,
		Logger:          logger,
	})
	t.Cleanup(func() {
		h.ctrl.Close()
		orch.Close()
	})
	return h
}

func (h *harness) waitFinished(t *testing.T) Transcript {
	t.Helper()
	select {
	case tr := <-h.ctrl.Finished():
		return tr
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not finish (state %s)", h.ctrl.State())
		return Transcript{}
	}
}

func speech(sec float64) []float32 {
	out := make([]float32, int(sec*audio.SampleRate))
	for i := range out {
		out[i] = 0.3
	}
	return out
}

func fixed(text string) transcript.Transcriber {
	return transcript.TranscriberFunc(func(ctx context.Context, samples []float32) (string, error) {
		return text, nil
	})
}

func TestPressReleaseDelivers(t *testing.T) {
	h := newHarness(t, fixed("hello world"), func() audio.Source { return newHeldSource(speech(1)) })
	h.ctrl.Handle(hotkey.Event{Kind: hotkey.Press})
	if h.ctrl.State() != Recording {
		t.Fatalf("state %s", h.ctrl.State())
	}
	h.ctrl.Handle(hotkey.Event{Kind: hotkey.Release})
	tr := h.waitFinished(t)
	if tr.Result != ResultDelivered || tr.Text != "Hello world." || tr.Raw != "hello world" {
		t.Fatalf("transcript %+v", tr)
	}
	if d := h.sink.deliveries(); len(d) != 1 || d[0].Text != "Hello world." || d[0].Category != "default" {
		t.Fatalf("deliveries %+v", d)
	}
	waitIdle(t, h.ctrl)
	st := h.ctrl.Status()
	if st.Last == nil || st.Last.Text != "Hello world." || len(st.Recent) != 1 {
		t.Fatalf("status %+v", st)
	}
}

func TestStatusShowsPreviewWhileRecording(t *testing.T) {
	samples := append(speech(2.5), make([]float32, audio.SampleRate/2)...)
	h := newHarness(t, fixed("first chunk"), func() audio.Source { return newHeldSource(samples) })
	h.ctrl.Handle(hotkey.Event{Kind: hotkey.Press})
	deadline := time.Now().Add(3 * time.Second)
	for {
		st := h.ctrl.Status()
		if st.Preview == "first chunk" {
			if st.State != Recording.String() {
				t.Fatalf("preview seen in state %s", st.State)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("no preview while recording (status %+v)", st)
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.ctrl.Handle(hotkey.Event{Kind: hotkey.Release})
	if tr := h.waitFinished(t); tr.Raw != "first chunk" {
		t.Fatalf("transcript %+v", tr)
	}
	waitIdle(t, h.ctrl)
	if st := h.ctrl.Status(); st.Preview != "" {
		t.Fatalf("preview kept after session: %q", st.Preview)
	}
}

func TestToggleUsesAppProfile(t *testing.T) {
	h := newHarness(t, fixed("On my way."), func() audio.Source { return newHeldSource(speech(0.5)) })
	h.ctrl.Handle(hotkey.Event{Kind: hotkey.Toggle, App: "Messages"})
	h.ctrl.Handle(hotkey.Event{Kind: hotkey.Toggle})
	tr := h.waitFinished(t)
	if tr.Text != "on my way" || tr.Category != "casual" || tr.App != "Messages" {
		t.Fatalf("transcript %+v", tr)
	}
}

func TestEventsIgnoredWhileDraining(t *testing.T) {
	gate := make(chan struct{})
	tr := transcript.TranscriberFunc(func(ctx context.Context, samples []float32) (string, error) {
		<-gate
		return "slow result", nil
	})
	sources := 0
	h := newHarness(t, tr, func() audio.Source {
		sources++
		return newHeldSource(speech(0.5))
	})
	h.ctrl.Handle(hotkey.Event{Kind: hotkey.Press})
	h.ctrl.Handle(hotkey.Event{Kind: hotkey.Release})
	if s := h.ctrl.State(); s != Draining {
		t.Fatalf("state %s", s)
	}
	h.ctrl.Handle(hotkey.Event{Kind: hotkey.Press})
	h.ctrl.Handle(hotkey.Event{Kind: hotkey.Toggle})
	if s := h.ctrl.State(); s != Draining || sources != 1 {
		t.Fatalf("state %s sources %d", s, sources)
	}
	close(gate)
	if got := h.waitFinished(t); got.Text != "Slow result." {
		t.Fatalf("transcript %+v", got)
	}
	if len(h.sink.deliveries()) != 1 {
		t.Fatalf("deliveries %d", len(h.sink.deliveries()))
	}
}

func TestInputUnavailable(t *testing.T) {
	h := newHarness(t, fixed("x"), func() audio.Source {
		s := newHeldSource(nil)
		s.openErr = errors.New("permission denied")
		return s
	})
	if err := h.ctrl.Start(""); !errors.Is(err, audio.ErrInputUnavailable) {
		t.Fatalf("want ErrInputUnavailable, got %v", err)
	}
	if h.ctrl.State() != Idle {
		t.Fatalf("state %s", h.ctrl.State())
	}
	if st := h.ctrl.Status(); st.LastError == "" {
		t.Fatalf("last error not reported")
	}
	if len(h.notifier.titles) != 1 {
		t.Fatalf("notifications %v", h.notifier.titles)
	}
	if h.orch.State() != transcript.Idle {
		t.Fatalf("orchestrator left in %s", h.orch.State())
	}
	if err := h.ctrl.Handle(hotkey.Event{Kind: hotkey.Toggle}); !errors.Is(err, audio.ErrInputUnavailable) {
		t.Fatalf("toggle: want ErrInputUnavailable, got %v", err)
	}
	if err := h.ctrl.Handle(hotkey.Event{Kind: hotkey.Release}); err != nil {
		t.Fatalf("release while idle: %v", err)
	}
}

func TestSourceEndFinishesSession(t *testing.T) {
	h := newHarness(t, fixed("from a file"), func() audio.Source { return audio.NewSliceSource(speech(0.5)) })
	h.ctrl.Handle(hotkey.Event{Kind: hotkey.Press})
	tr := h.waitFinished(t)
	if tr.Result != ResultDelivered || tr.Text != "From a file." {
		t.Fatalf("transcript %+v", tr)
	}
	if tr.Audio != 500*time.Millisecond {
		t.Fatalf("audio %v", tr.Audio)
	}
}

func TestEmptyTranscriptIsNotDelivered(t *testing.T) {
	h := newHarness(t, fixed("   "), func() audio.Source { return newHeldSource(speech(0.2)) })
	h.ctrl.Handle(hotkey.Event{Kind: hotkey.Press})
	h.ctrl.Handle(hotkey.Event{Kind: hotkey.Release})
	tr := h.waitFinished(t)
	if tr.Result != ResultEmpty {
		t.Fatalf("result %s", tr.Result)
	}
	if len(h.sink.deliveries()) != 0 || len(h.store.Recent(0)) != 0 {
		t.Fatalf("empty transcript delivered or recorded")
	}
}

func TestDeliveryFailureReported(t *testing.T) {
	h := newHarness(t, fixed("hello"), func() audio.Source { return newHeldSource(speech(0.2)) })
	h.sink.err = errors.New("clipboard busy")
	h.ctrl.Handle(hotkey.Event{Kind: hotkey.Press})
	h.ctrl.Handle(hotkey.Event{Kind: hotkey.Release})
	if tr := h.waitFinished(t); tr.Result != ResultDeliveryFailed {
		t.Fatalf("result %s", tr.Result)
	}
	waitIdle(t, h.ctrl)
	if h.ctrl.Status().LastError == "" {
		t.Fatalf("last error missing")
	}
}

func waitIdle(t *testing.T, c *Controller) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.State() != Idle {
		if time.Now().After(deadline) {
			t.Fatalf("still %s", c.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
