package transcript

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"flowstate/internal/logging"
	"flowstate/internal/metrics"
	"flowstate/internal/segment"
)

// gated blocks each call until its gate is opened. samples[0] carries an id
// chosen by the test.
type gated struct {
	mu    sync.Mutex
	gates map[int]chan struct{}
	texts map[int]string
	errs  map[int]error
	calls map[int]int
}

func newGated() *gated {
	return &gated{
		gates: map[int]chan struct{}{},
		texts: map[int]string{},
		errs:  map[int]error{},
		calls: map[int]int{},
	}
}

func (g *gated) gate(id int) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[id]
	if !ok {
		ch = make(chan struct{})
		g.gates[id] = ch
	}
	return ch
}

func (g *gated) set(id int, text string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.texts[id] = text
	g.errs[id] = err
}

func (g *gated) open(id int) { close(g.gate(id)) }

func (g *gated) Transcribe(ctx context.Context, samples []float32) (string, error) {
	id := int(samples[0])
	g.mu.Lock()
	g.calls[id]++
	g.mu.Unlock()
	select {
	case <-g.gate(id):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.texts[id], g.errs[id]
}

func (g *gated) callCount(id int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[id]
}

func newOrch(t *testing.T, tr Transcriber) *Orchestrator {
	t.Helper()
	o := New(Options{Transcriber: tr, Logger: logging.NewTestLogger(), Metrics: metrics.New()})
	t.Cleanup(o.Close)
	return o
}

func job(gen uint64, seq, id int, final bool) Job {
	return Job{
		Generation: gen,
		Chunk:      segment.Chunk{Seq: seq, Final: final},
		Samples:    []float32{float32(id)},
	}
}

func drain(t *testing.T, o *Orchestrator) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := o.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	return res
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestMergeIgnoresCompletionOrder(t *testing.T) {
	words := []string{"alpha", "bravo", "charlie", "delta"}
	orders := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{2, 0, 3, 1},
		{1, 3, 0, 2},
	}
	for _, order := range orders {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			g := newGated()
			o := newOrch(t, g)
			gen, err := o.Begin()
			if err != nil {
				t.Fatalf("begin: %v", err)
			}
			for seq, w := range words {
				g.set(seq, w, nil)
				if err := o.Submit(job(gen, seq, seq, seq == len(words)-1)); err != nil {
					t.Fatalf("submit %d: %v", seq, err)
				}
			}
			for _, seq := range order {
				g.open(seq)
				// let each completion land before the next one
				want := 4 - 1 - indexOf(order, seq)
				waitFor(t, func() bool { return o.Snapshot().Pending == want })
			}
			res := drain(t, o)
			if res.Text != "alpha bravo charlie delta" {
				t.Fatalf("merged %q", res.Text)
			}
			if res.Chunks != 4 || res.Generation != gen {
				t.Fatalf("result %+v", res)
			}
		})
	}
}

func indexOf(xs []int, v int) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}

func TestStaleGenerationDiscarded(t *testing.T) {
	g := newGated()
	o := newOrch(t, g)

	gen1, _ := o.Begin()
	g.set(100, "old words", nil)
	if err := o.Submit(job(gen1, 0, 100, false)); err != nil {
		t.Fatalf("submit old: %v", err)
	}

	gen2, _ := o.Begin()
	if gen2 != gen1+1 {
		t.Fatalf("generation %d after %d", gen2, gen1)
	}
	if err := o.Submit(job(gen1, 1, 101, false)); !errors.Is(err, ErrStaleGeneration) {
		t.Fatalf("late submit for old generation: %v", err)
	}
	g.set(200, "new words", nil)
	if err := o.Submit(job(gen2, 0, 200, true)); err != nil {
		t.Fatalf("submit new: %v", err)
	}
	g.open(200)
	waitFor(t, func() bool { return o.Snapshot().Pending == 0 })

	// the old task finishes after the new one reused seq 0
	g.open(100)
	waitFor(t, func() bool { return o.Snapshot().Stale == 0 })

	res := drain(t, o)
	if res.Text != "new words" {
		t.Fatalf("merged %q", res.Text)
	}
	if res.Discarded != 1 {
		t.Fatalf("discarded %d", res.Discarded)
	}
}

func TestDrainWaitsForSlowTask(t *testing.T) {
	g := newGated()
	o := newOrch(t, g)
	gen, _ := o.Begin()
	g.set(0, "quick", nil)
	g.set(1, "slow", nil)
	_ = o.Submit(job(gen, 0, 0, false))
	_ = o.Submit(job(gen, 1, 1, true))
	g.open(0)

	done := make(chan Result, 1)
	go func() {
		res, err := o.Drain(context.Background())
		if err != nil {
			t.Errorf("drain: %v", err)
		}
		done <- res
	}()

	select {
	case res := <-done:
		t.Fatalf("drain returned before the slow task: %+v", res)
	case <-time.After(100 * time.Millisecond):
	}
	if s := o.Snapshot(); s.State != Draining || s.Pending != 1 {
		t.Fatalf("snapshot while draining: %+v", s)
	}
	g.open(1)
	select {
	case res := <-done:
		if res.Text != "quick slow" {
			t.Fatalf("merged %q", res.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("drain never returned")
	}
	if o.State() != Idle {
		t.Fatalf("state after drain %v", o.State())
	}
}

func TestDrainContextCancelled(t *testing.T) {
	g := newGated()
	o := newOrch(t, g)
	gen, _ := o.Begin()
	_ = o.Submit(job(gen, 0, 0, true))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := o.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
	g.open(0)
}

func TestFailureLeavesEmptyFragment(t *testing.T) {
	tr := TranscriberFunc(func(ctx context.Context, samples []float32) (string, error) {
		switch int(samples[0]) {
		case 0:
			return "  first ", nil
		case 1:
			return "", errors.New("model exploded")
		case 2:
			panic("boom")
		case 3:
			return "   ", nil
		default:
			return "last", nil
		}
	})
	o := newOrch(t, tr)
	gen, _ := o.Begin()
	for seq := 0; seq < 5; seq++ {
		if err := o.Submit(job(gen, seq, seq, seq == 4)); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	res := drain(t, o)
	if res.Text != "first last" {
		t.Fatalf("merged %q", res.Text)
	}
	if res.Failed != 2 {
		t.Fatalf("failed %d", res.Failed)
	}
	if len(res.Fragments) != 2 || res.Fragments[0].Seq != 0 || res.Fragments[1].Seq != 4 {
		t.Fatalf("fragments %+v", res.Fragments)
	}
}

func TestPreviewFollowsSequenceOrder(t *testing.T) {
	g := newGated()
	o := newOrch(t, g)
	gen, _ := o.Begin()
	g.set(0, "hello", nil)
	g.set(1, "world", nil)
	_ = o.Submit(job(gen, 0, 0, false))
	_ = o.Submit(job(gen, 1, 1, false))

	g.open(1)
	expectPreview(t, o, "world")
	g.open(0)
	expectPreview(t, o, "hello world")
}

func expectPreview(t *testing.T, o *Orchestrator, want string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case p := <-o.Preview():
			if p.Text == want {
				return
			}
		case <-timeout:
			t.Fatalf("preview never became %q (pending %d)", want, o.Snapshot().Pending)
		}
	}
}

func TestDuplicateChunkIgnored(t *testing.T) {
	g := newGated()
	o := newOrch(t, g)
	gen, _ := o.Begin()
	g.set(0, "once", nil)
	_ = o.Submit(job(gen, 0, 0, false))
	_ = o.Submit(job(gen, 0, 0, false))
	g.open(0)
	res := drain(t, o)
	if res.Chunks != 1 || res.Text != "once" {
		t.Fatalf("result %+v", res)
	}
	if n := g.callCount(0); n != 1 {
		t.Fatalf("transcriber called %d times", n)
	}
}

func TestSubmitOutsideRecording(t *testing.T) {
	o := newOrch(t, newGated())
	if err := o.Submit(job(0, 0, 0, false)); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("before begin: %v", err)
	}
	gen, _ := o.Begin()
	res := drain(t, o)
	if res.Text != "" || res.Generation != gen {
		t.Fatalf("empty session %+v", res)
	}
	if err := o.Submit(job(gen, 0, 0, false)); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("after drain: %v", err)
	}
}

func TestCloseRejectsWork(t *testing.T) {
	g := newGated()
	o := New(Options{Transcriber: g, Logger: logging.NewTestLogger()})
	gen, _ := o.Begin()
	_ = o.Submit(job(gen, 0, 0, true))
	o.Close()
	if _, err := o.Begin(); !errors.Is(err, ErrClosed) {
		t.Fatalf("begin after close: %v", err)
	}
	if _, err := o.Drain(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("drain after close: %v", err)
	}
	o.Close()
}
