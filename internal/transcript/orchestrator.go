// Package transcript runs chunk transcriptions concurrently and assembles
// their fragments in chunk order.
//
// All bookkeeping (generation, task registry, fragments, drain waiters) is
// owned by a single loop goroutine. Callers and finished tasks talk to it
// only through one events channel.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"flowstate/internal/metrics"
	"flowstate/internal/segment"
	"flowstate/internal/spectrum"
)

var (
	// ErrStaleGeneration is returned for work tagged with a superseded session.
	ErrStaleGeneration = errors.New("stale generation")
	// ErrNotRecording is returned when a chunk arrives outside Recording.
	ErrNotRecording = errors.New("orchestrator is not recording")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("orchestrator closed")
)

// Transcriber is the speech-to-text capability. Latency is unbounded and
// calls may run concurrently.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, samples []float32) (string, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, samples []float32) (string, error) {
	return f(ctx, samples)
}

// State of the orchestrator.
type State int

const (
	Idle State = iota
	Recording
	Draining
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Draining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Job is one chunk handed over by the capture producer.
type Job struct {
	Generation uint64
	Chunk      segment.Chunk
	Samples    []float32
}

// Fragment is the text of one chunk.
type Fragment struct {
	Seq  int    `json:"seq"`
	Text string `json:"text"`
}

// Result is what Drain returns once every task of a generation resolved.
type Result struct {
	Generation uint64        `json:"generation"`
	Text       string        `json:"text"`
	Fragments  []Fragment    `json:"fragments"`
	Chunks     int           `json:"chunks"`
	Failed     int           `json:"failed"`
	Discarded  int           `json:"discarded"`
	Drain      time.Duration `json:"drain"`
}

// Preview is the live transcript of the current generation.
type Preview struct {
	Generation uint64 `json:"generation"`
	Text       string `json:"text"`
}

// Snapshot is a point-in-time view for status endpoints.
type Snapshot struct {
	State      State  `json:"-"`
	StateName  string `json:"state"`
	Generation uint64 `json:"generation"`
	Pending    int    `json:"pending"`
	Stale      int    `json:"stale"`
}

// Options configures an Orchestrator.
type Options struct {
	Transcriber Transcriber
	Logger      logrus.FieldLogger
	Metrics     *metrics.Metrics
	// TaskTimeout bounds a single transcription; zero means no bound.
	TaskTimeout time.Duration
}

type taskKey struct {
	gen uint64
	seq int
}

type task struct {
	key     taskKey
	final   bool
	started time.Time
	discard atomic.Bool
}

// Orchestrator dispatches chunk transcriptions and merges their fragments.
type Orchestrator struct {
	tr      Transcriber
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
	timeout time.Duration

	events  chan any
	preview *spectrum.Mailbox[Preview]

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once

	// loop-owned
	state      State
	gen        uint64
	registry   map[taskKey]*task
	fragments  map[int]string
	chunks     int
	failed     int
	discarded  int
	drainStart time.Time
	waiters    []chan drainReply
}

type beginMsg struct{ reply chan uint64 }

type submitMsg struct {
	job   Job
	reply chan error
}

type doneMsg struct {
	t    *task
	text string
	err  error
}

type drainMsg struct{ reply chan drainReply }

type drainReply struct {
	res Result
	err error
}

type snapshotMsg struct{ reply chan Snapshot }

// New starts the orchestrator loop.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		logger = l
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		tr:        opts.Transcriber,
		logger:    logger,
		metrics:   opts.Metrics,
		timeout:   opts.TaskTimeout,
		events:    make(chan any, 64),
		preview:   spectrum.NewMailbox[Preview](),
		ctx:       ctx,
		cancel:    cancel,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		registry:  make(map[taskKey]*task),
		fragments: make(map[int]string),
	}
	go o.loop()
	return o
}

// Begin starts a new session: the generation is bumped, sequence numbers and
// fragments reset, and tasks still running for older generations are marked
// to be discarded when they finish.
func (o *Orchestrator) Begin() (uint64, error) {
	reply := make(chan uint64, 1)
	if err := o.send(beginMsg{reply: reply}); err != nil {
		return 0, err
	}
	select {
	case gen := <-reply:
		return gen, nil
	case <-o.done:
		return 0, ErrClosed
	}
}

// Submit dispatches one chunk. A key already seen is ignored.
func (o *Orchestrator) Submit(job Job) error {
	reply := make(chan error, 1)
	if err := o.send(submitMsg{job: job, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-o.done:
		return ErrClosed
	}
}

// Drain blocks until every task of the current generation resolved, then
// returns the merged transcript. It joins; it never cancels tasks.
func (o *Orchestrator) Drain(ctx context.Context) (Result, error) {
	reply := make(chan drainReply, 1)
	if err := o.send(drainMsg{reply: reply}); err != nil {
		return Result{}, err
	}
	select {
	case r := <-reply:
		return r.res, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-o.done:
		return Result{}, ErrClosed
	}
}

// Snapshot reports the loop state.
func (o *Orchestrator) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	if err := o.send(snapshotMsg{reply: reply}); err != nil {
		return Snapshot{State: Idle, StateName: Idle.String()}
	}
	select {
	case s := <-reply:
		return s
	case <-o.done:
		return Snapshot{State: Idle, StateName: Idle.String()}
	}
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.Snapshot().State }

// Preview delivers the latest live transcript; older unread values are
// replaced.
func (o *Orchestrator) Preview() <-chan Preview { return o.preview.C() }

// Close stops the loop. Running transcriptions see their context cancelled
// and their results are dropped.
func (o *Orchestrator) Close() {
	o.once.Do(func() {
		close(o.stop)
	})
	<-o.done
}

func (o *Orchestrator) send(msg any) error {
	select {
	case <-o.done:
		return ErrClosed
	default:
	}
	select {
	case o.events <- msg:
		return nil
	case <-o.done:
		return ErrClosed
	}
}

func (o *Orchestrator) loop() {
	defer close(o.done)
	defer o.cancel()
	for {
		select {
		case <-o.stop:
			for _, w := range o.waiters {
				w <- drainReply{err: ErrClosed}
			}
			o.waiters = nil
			return
		case ev := <-o.events:
			o.handle(ev)
		}
	}
}

func (o *Orchestrator) handle(ev any) {
	switch m := ev.(type) {
	case beginMsg:
		m.reply <- o.begin()
	case submitMsg:
		m.reply <- o.submit(m.job)
	case doneMsg:
		o.resolve(m.t, m.text, m.err)
	case drainMsg:
		o.drain(m.reply)
	case snapshotMsg:
		m.reply <- o.snapshot()
	}
}

func (o *Orchestrator) begin() uint64 {
	stale := 0
	for _, t := range o.registry {
		t.discard.Store(true)
		stale++
	}
	for _, w := range o.waiters {
		w <- drainReply{err: ErrStaleGeneration}
	}
	o.waiters = nil
	o.gen++
	o.state = Recording
	o.fragments = make(map[int]string)
	o.chunks, o.failed, o.discarded = 0, 0, 0
	o.logger.WithFields(logrus.Fields{"generation": o.gen, "stale_tasks": stale}).Debug("session begin")
	o.publish()
	return o.gen
}

func (o *Orchestrator) submit(job Job) error {
	if job.Generation != o.gen {
		return fmt.Errorf("%w: chunk %d for generation %d, current %d", ErrStaleGeneration, job.Chunk.Seq, job.Generation, o.gen)
	}
	if o.state != Recording {
		return fmt.Errorf("%w (state %s)", ErrNotRecording, o.state)
	}
	key := taskKey{gen: job.Generation, seq: job.Chunk.Seq}
	if _, ok := o.registry[key]; ok {
		o.logger.WithFields(logrus.Fields{"generation": key.gen, "seq": key.seq}).Debug("duplicate chunk ignored")
		return nil
	}
	t := &task{key: key, final: job.Chunk.Final, started: time.Now()}
	o.registry[key] = t
	o.chunks++
	o.metrics.TaskStarted()
	go o.run(t, job.Samples)
	return nil
}

// run executes on its own goroutine and reports back through the events
// channel. A panic in the capability becomes a failure.
func (o *Orchestrator) run(t *task, samples []float32) {
	text, err := o.transcribe(samples)
	select {
	case o.events <- doneMsg{t: t, text: text, err: err}:
	case <-o.done:
	}
}

func (o *Orchestrator) transcribe(samples []float32) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transcriber panic: %v", r)
		}
	}()
	if o.tr == nil {
		return "", errors.New("no transcriber configured")
	}
	ctx := o.ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	return o.tr.Transcribe(ctx, samples)
}

func (o *Orchestrator) resolve(t *task, text string, err error) {
	delete(o.registry, t.key)
	took := time.Since(t.started)
	log := o.logger.WithFields(logrus.Fields{
		"generation": t.key.gen,
		"seq":        t.key.seq,
		"final":      t.final,
		"took_ms":    took.Milliseconds(),
	})

	if t.discard.Load() || t.key.gen != o.gen {
		o.discarded++
		o.metrics.TaskResolved(metrics.OutcomeDiscarded, took)
		log.Debug("stale transcription discarded")
		return
	}
	switch {
	case err != nil:
		o.failed++
		o.metrics.TaskResolved(metrics.OutcomeFailed, took)
		log.WithError(err).Warn("chunk transcription failed; keeping empty fragment")
	default:
		text = strings.TrimSpace(text)
		if text == "" {
			o.metrics.TaskResolved(metrics.OutcomeEmpty, took)
			log.Debug("chunk transcribed to nothing")
		} else {
			o.fragments[t.key.seq] = text
			o.metrics.TaskResolved(metrics.OutcomeText, took)
			log.WithField("chars", len(text)).Debug("chunk transcribed")
		}
	}
	o.publish()
	o.maybeFinish()
}

func (o *Orchestrator) drain(reply chan drainReply) {
	if o.state == Recording {
		o.state = Draining
		o.drainStart = time.Now()
	}
	o.waiters = append(o.waiters, reply)
	o.maybeFinish()
}

func (o *Orchestrator) maybeFinish() {
	if len(o.waiters) == 0 || o.pending() > 0 {
		return
	}
	res := o.finalize()
	if o.state == Draining {
		res.Drain = time.Since(o.drainStart)
		o.metrics.Drained(res.Drain)
	}
	o.state = Idle
	for _, w := range o.waiters {
		w <- drainReply{res: res}
	}
	o.waiters = nil
}

// pending counts unresolved tasks of the current generation.
func (o *Orchestrator) pending() int {
	n := 0
	for k := range o.registry {
		if k.gen == o.gen {
			n++
		}
	}
	return n
}

func (o *Orchestrator) ordered() []Fragment {
	out := make([]Fragment, 0, len(o.fragments))
	for seq, text := range o.fragments {
		out = append(out, Fragment{Seq: seq, Text: text})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (o *Orchestrator) merged() string {
	frags := o.ordered()
	parts := make([]string, len(frags))
	for i, f := range frags {
		parts[i] = f.Text
	}
	return strings.Join(parts, " ")
}

func (o *Orchestrator) finalize() Result {
	return Result{
		Generation: o.gen,
		Text:       o.merged(),
		Fragments:  o.ordered(),
		Chunks:     o.chunks,
		Failed:     o.failed,
		Discarded:  o.discarded,
	}
}

func (o *Orchestrator) publish() {
	o.preview.Put(Preview{Generation: o.gen, Text: o.merged()})
}

func (o *Orchestrator) snapshot() Snapshot {
	p := o.pending()
	return Snapshot{
		State:      o.state,
		StateName:  o.state.String(),
		Generation: o.gen,
		Pending:    p,
		Stale:      len(o.registry) - p,
	}
}
