// Package dictation drives one push-to-talk cycle: capture while the key is
// held, drain the chunk transcriptions, format, deliver and record.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"flowstate/internal/audio"
	"flowstate/internal/capture"
	"flowstate/internal/format"
	"flowstate/internal/history"
	"flowstate/internal/hotkey"
	"flowstate/internal/logging"
	"flowstate/internal/metrics"
	"flowstate/internal/output"
	"flowstate/internal/segment"
	"flowstate/internal/spectrum"
	"flowstate/internal/transcript"
)

const closeGrace = 10 * time.Second

// Session results, used as the metrics label.
const (
	ResultDelivered        = "delivered"
	ResultEmpty            = "empty"
	ResultDeliveryFailed   = "delivery_failed"
	ResultDrainFailed      = "drain_failed"
	ResultInputUnavailable = "input_unavailable"
)

// State of the controller.
type State int

const (
	Idle State = iota
	Recording
	Draining
	Formatting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Draining:
		return "draining"
	case Formatting:
		return "formatting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Notifier shows desktop notifications.
type Notifier interface {
	Notify(title, message string) error
}

// BeeepNotifier uses the native notification center.
type BeeepNotifier struct{}

func (BeeepNotifier) Notify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Transcript is the outcome of one finished session.
type Transcript struct {
	ID         string        `json:"id"`
	Generation uint64        `json:"generation"`
	Raw        string        `json:"raw"`
	Text       string        `json:"text"`
	App        string        `json:"app,omitempty"`
	Category   string        `json:"category"`
	UsedLLM    bool          `json:"used_llm"`
	Chunks     int           `json:"chunks"`
	Failed     int           `json:"failed"`
	Audio      time.Duration `json:"audio"`
	Drain      time.Duration `json:"drain"`
	Format     time.Duration `json:"format"`
	Total      time.Duration `json:"total"`
	Result     string        `json:"result"`
	At         time.Time     `json:"at"`
}

// Status is the snapshot served to the UI and the control socket.
type Status struct {
	State      string          `json:"state"`
	Generation uint64          `json:"generation"`
	App        string          `json:"app,omitempty"`
	Elapsed    float64         `json:"elapsed_sec"`
	Preview    string          `json:"preview"`
	Meter      capture.Meter   `json:"meter"`
	Last       *Transcript     `json:"last,omitempty"`
	LastError  string          `json:"last_error,omitempty"`
	Pending    int             `json:"pending"`
	Recent     []history.Entry `json:"recent,omitempty"`
}

// Options wires a Controller. Orchestrator, NewSource, Formatter and Output
// are required.
type Options struct {
	Orchestrator *transcript.Orchestrator
	// NewSource returns a fresh input for every session.
	NewSource       func() audio.Source
	FramesPerBuffer int
	Segmenter       segment.Config
	Detector        segment.Detector
	Spectrum        bool
	DumpPath        string
	Warmer          capture.Warmer
	Formatter       *format.Formatter
	Output          output.Sink
	History         *history.Store
	StatusTail      int
	Notifier        Notifier
	Metrics         *metrics.Metrics
	Logger          logrus.FieldLogger
	// DrainTimeout bounds the wait for outstanding chunks; zero waits forever.
	DrainTimeout time.Duration
}

// Controller is the push-to-talk state machine Idle→Recording→Draining→
// Formatting→Idle. Events that arrive while draining or formatting are
// ignored.
type Controller struct {
	opts   Options
	logger logrus.FieldLogger
	meters *spectrum.Mailbox[capture.Meter]

	mu        sync.Mutex
	state     State
	session   *capture.Session
	sessionID string
	gen       uint64
	app       string
	started   time.Time
	meter     capture.Meter
	preview   string
	last      *Transcript
	lastErr   string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	// finished receives every completed Transcript; buffered, newest kept.
	finished *spectrum.Mailbox[Transcript]
}

func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		opts:     opts,
		logger:   logger,
		meters:   spectrum.NewMailbox[capture.Meter](),
		ctx:      ctx,
		cancel:   cancel,
		finished: spectrum.NewMailbox[Transcript](),
	}
}

// Run consumes hotkey events until ctx ends, then stops any active session
// and waits for in-flight work.
func (c *Controller) Run(ctx context.Context, events <-chan hotkey.Event) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			ev.Reply(c.Handle(ev))
		}
	}
}

// Handle applies one hotkey event. The error is non-nil only when the event
// tried to start a session and capture could not begin.
func (c *Controller) Handle(ev hotkey.Event) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	switch {
	case state == Idle && (ev.Kind == hotkey.Press || ev.Kind == hotkey.Toggle):
		if err := c.Start(ev.App); err != nil {
			c.logger.Warnf("start dictation: %v", err)
			return err
		}
	case state == Recording && (ev.Kind == hotkey.Release || ev.Kind == hotkey.Toggle):
		c.Finish()
	case state == Draining || state == Formatting:
		c.logger.Debugf("%s ignored while %s", ev.Kind, state)
	default:
		c.logger.Debugf("%s ignored in %s", ev.Kind, state)
	}
	return nil
}

// Start opens a new capture session under a fresh generation.
func (c *Controller) Start(app string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return fmt.Errorf("cannot start while %s", c.state)
	}
	gen, err := c.opts.Orchestrator.Begin()
	if err != nil {
		return err
	}
	id := uuid.NewString()
	log := logging.ForSession(c.logger, id, gen)
	var src audio.Source
	if c.opts.NewSource != nil {
		src = c.opts.NewSource()
	}
	sess, err := capture.Start(c.ctx, capture.Options{
		Source:          src,
		FramesPerBuffer: c.opts.FramesPerBuffer,
		Segmenter:       c.opts.Segmenter,
		Detector:        c.opts.Detector,
		Generation:      gen,
		Sink:            c.opts.Orchestrator,
		Warmer:          c.opts.Warmer,
		Meters:          c.meters,
		Spectrum:        c.opts.Spectrum,
		DumpPath:        c.opts.DumpPath,
		Logger:          log,
		Metrics:         c.opts.Metrics,
	})
	if err != nil {
		c.lastErr = err.Error()
		// release the generation so Drain does not wait on it
		_, _ = c.opts.Orchestrator.Drain(c.ctx)
		c.opts.Metrics.SessionFinished(ResultInputUnavailable, 0, 0)
		if errors.Is(err, audio.ErrInputUnavailable) {
			c.notify("Microphone unavailable", err.Error())
		}
		return err
	}
	c.state = Recording
	c.session = sess
	c.sessionID = id
	c.gen = gen
	c.app = app
	c.started = time.Now()
	c.lastErr = ""
	c.meter = capture.Meter{}
	c.preview = ""
	log.WithField("app", app).Info("dictation started")

	c.wg.Add(1)
	go c.watch(sess, gen)
	return nil
}

// watch ends the session if the input stops on its own (device gone, file
// replay finished).
func (c *Controller) watch(sess *capture.Session, gen uint64) {
	defer c.wg.Done()
	select {
	case <-sess.Done():
	case <-c.ctx.Done():
		return
	}
	c.mu.Lock()
	same := c.state == Recording && c.gen == gen
	c.mu.Unlock()
	if !same {
		return
	}
	if err := sess.Err(); err != nil {
		c.logger.Warnf("input stopped: %v", err)
	}
	c.Finish()
}

// Finish stops capture and runs drain, format and delivery in the
// background. It is a no-op unless recording.
func (c *Controller) Finish() {
	c.mu.Lock()
	if c.state != Recording {
		c.mu.Unlock()
		return
	}
	c.state = Draining
	run := finishing{
		sess:      c.session,
		gen:       c.gen,
		app:       c.app,
		id:        c.sessionID,
		started:   c.started,
		formatter: c.opts.Formatter,
		out:       c.opts.Output,
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t := c.complete(run)
		c.mu.Lock()
		c.state = Idle
		c.session = nil
		c.last = &t
		if t.Result == ResultDrainFailed || t.Result == ResultDeliveryFailed {
			c.lastErr = t.Result
		}
		c.mu.Unlock()
		c.finished.Put(t)
	}()
}

// finishing is what complete needs from the session being wound down.
type finishing struct {
	sess      *capture.Session
	gen       uint64
	app       string
	id        string
	started   time.Time
	formatter *format.Formatter
	out       output.Sink
}

func (c *Controller) complete(run finishing) Transcript {
	id, app, started := run.id, run.app, run.started
	log := logging.ForSession(c.logger, id, run.gen)
	full, _ := run.sess.Stop()
	t := Transcript{ID: id, Generation: run.gen, App: app, Audio: audio.Duration(len(full)), At: time.Now()}

	dctx := c.ctx
	if c.opts.DrainTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(c.ctx, c.opts.DrainTimeout)
		defer cancel()
	}
	res, err := c.opts.Orchestrator.Drain(dctx)
	if err != nil {
		log.Errorf("drain: %v", err)
		t.Result = ResultDrainFailed
		t.Total = time.Since(started)
		c.opts.Metrics.SessionFinished(t.Result, t.Audio, 0)
		return t
	}
	t.Raw, t.Chunks, t.Failed, t.Drain = res.Text, res.Chunks, res.Failed, res.Drain

	c.setState(Formatting)
	out := run.formatter.Format(c.ctx, res.Text, format.Hints{App: app})
	t.Text, t.Category, t.UsedLLM, t.Format = out.Text, string(out.Category), out.UsedLLM, out.Took
	if res.Text != "" {
		c.opts.Metrics.Formatted(out.UsedLLM, out.Took)
	}

	switch {
	case strings.TrimSpace(t.Text) == "":
		t.Result = ResultEmpty
		log.Info("nothing transcribed")
	default:
		err := run.out.Deliver(c.ctx, output.Delivery{Text: t.Text, App: app, Category: t.Category})
		if err != nil {
			log.Errorf("deliver via %s: %v", run.out.Name(), err)
			t.Result = ResultDeliveryFailed
			c.notify("Paste failed", err.Error())
		} else {
			t.Result = ResultDelivered
		}
	}
	t.Total = time.Since(started)
	words := len(strings.Fields(t.Text))
	c.opts.Metrics.SessionFinished(t.Result, t.Audio, words)
	log.WithFields(logrus.Fields{
		"result":   t.Result,
		"chunks":   t.Chunks,
		"failed":   t.Failed,
		"audio_s":  t.Audio.Seconds(),
		"drain_ms": t.Drain.Milliseconds(),
		"llm":      t.UsedLLM,
	}).Info("dictation finished")

	if c.opts.History != nil && t.Text != "" {
		_, err := c.opts.History.Append(history.Entry{
			ID:           id,
			Text:         t.Text,
			Raw:          t.Raw,
			App:          app,
			Category:     t.Category,
			Timestamp:    t.At,
			DurationSec:  t.Audio.Seconds(),
			TranscribeMS: t.Drain.Milliseconds(),
			FormatMS:     t.Format.Milliseconds(),
			TotalMS:      t.Total.Milliseconds(),
			Chunks:       t.Chunks,
			UsedLLM:      t.UsedLLM,
		})
		if err != nil {
			log.Warnf("history: %v", err)
		}
	}
	return t
}

// Reconfigure swaps the formatter and output sink. A session already
// draining keeps the ones it started with.
func (c *Controller) Reconfigure(f *format.Formatter, out output.Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f != nil {
		c.opts.Formatter = f
	}
	if out != nil {
		c.opts.Output = out
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) notify(title, msg string) {
	if c.opts.Notifier == nil {
		return
	}
	if err := c.opts.Notifier.Notify("FlowState: "+title, msg); err != nil {
		c.logger.Debugf("notify: %v", err)
	}
}

// Finished delivers the latest completed session.
func (c *Controller) Finished() <-chan Transcript { return c.finished.C() }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status assembles the snapshot for status, level and watch requests. The
// live preview comes from the orchestrator's preview mailbox only.
func (c *Controller) Status() Status {
	if m, ok := c.meters.Take(); ok {
		c.mu.Lock()
		c.meter = m
		c.mu.Unlock()
	}
	snap := c.opts.Orchestrator.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.takePreview()
	st := Status{
		State:      c.state.String(),
		Generation: c.gen,
		App:        c.app,
		Meter:      c.meter,
		Last:       c.last,
		LastError:  c.lastErr,
		Pending:    snap.Pending,
	}
	if c.state != Idle {
		st.Elapsed = time.Since(c.started).Seconds()
		st.Preview = c.preview
	}
	if c.opts.History != nil && c.opts.StatusTail > 0 {
		st.Recent = c.opts.History.Recent(c.opts.StatusTail)
	}
	return st
}

// takePreview keeps the newest preview of the current generation. Callers
// hold c.mu.
func (c *Controller) takePreview() {
	for {
		select {
		case p := <-c.opts.Orchestrator.Preview():
			if p.Generation == c.gen {
				c.preview = p.Text
			}
		default:
			return
		}
	}
}

// Close finishes an active recording, gives background work closeGrace to
// complete, then cancels it and waits.
func (c *Controller) Close() {
	c.Finish()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeGrace):
		c.logger.Warn("dictation still busy at shutdown, cancelling")
	}
	c.cancel()
	<-done
}
