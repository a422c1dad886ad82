package run

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"flowstate/internal/config"
	"flowstate/internal/control"
	"flowstate/internal/dictation"
	"flowstate/internal/format"
	"flowstate/internal/history"
	"flowstate/internal/hotkey"
	"flowstate/internal/metrics"
	"flowstate/internal/output"
	"flowstate/internal/spectrum"

	"github.com/sirupsen/logrus"
)

// levelBands is the number of spectrum bars served to `watch`.
const levelBands = 16

// hotkeyReplyTimeout bounds how long a control request waits for the
// controller. It stays well under the client's socket deadline.
const hotkeyReplyTimeout = 3 * time.Second

// Server owns the dictation controller and exposes it on the control socket.
type Server struct {
	cfg       *config.Config
	logger    *logrus.Logger
	ctrl      *dictation.Controller
	hotkeys   *hotkey.Channel
	metrics   *metrics.Metrics
	startedAt time.Time

	transcriptsMu sync.Mutex
	transcripts   []control.Transcript

	wg sync.WaitGroup
}

func newServer(cfg *config.Config, logger *logrus.Logger, ctrl *dictation.Controller, m *metrics.Metrics) *Server {
	return &Server{
		cfg:         cfg,
		logger:      logger,
		ctrl:        ctrl,
		hotkeys:     hotkey.NewChannel(8),
		metrics:     m,
		startedAt:   time.Now(),
		transcripts: make([]control.Transcript, 0, max(1, cfg.UI.StatusTail)),
	}
}

// Serve runs the daemon until interrupted.
func Serve(cfg *config.Config, logger *logrus.Logger) error {
	if err := config.MustStatePaths(cfg); err != nil {
		return err
	}
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(cfg.Paths.PidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("remove pid file: %v", err)
		}
	}()
	if err := os.Remove(cfg.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debugf("remove stale socket: %v", err)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	p, err := dictation.NewPipeline(cfg, logger, m)
	if err != nil {
		return err
	}
	defer p.Close()
	out, err := output.New(cfg, logger)
	if err != nil {
		return err
	}
	var hist *history.Store
	if cfg.History.Enabled {
		if hist, err = history.Open(cfg.Paths.HistoryPath, cfg.History.MaxEntries); err != nil {
			return err
		}
		if n := hist.Skipped(); n > 0 {
			logger.Warnf("history: skipped %d malformed entries", n)
		}
	}
	ctrl := p.Controller(out, hist, p.DeviceSource())

	ln, err := net.Listen("unix", cfg.Paths.SocketPath)
	if err != nil {
		return fmt.Errorf("control listen: %w", err)
	}
	defer os.Remove(cfg.Paths.SocketPath)

	srv := newServer(cfg, logger, ctrl, m)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv.start(ctx, ln)
	if cfg.Metrics.Enabled {
		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()
			srv.metricsServe(ctx, cfg.Metrics.Addr)
		}()
	}
	logger.Infof("flowstate ready (asr=%s output=%s socket=%s)", cfg.ASR.Backend, out.Name(), cfg.Paths.SocketPath)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)
	s := <-sigCh
	logger.Infof("received signal %s, shutting down", s)
	cancel()
	srv.wg.Wait()
	return nil
}

// start launches the controller, the transcript worker and the control loop.
// All of them stop when ctx ends; wg tracks them.
func (s *Server) start(ctx context.Context, ln net.Listener) {
	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.ctrl.Run(ctx, s.hotkeys.Events())
	}()
	go func() {
		defer s.wg.Done()
		s.transcriptWorker(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.controlLoop(ctx, ln)
	}()
}

func (s *Server) recordTranscript(t dictation.Transcript) {
	entry := control.Transcript{
		Text:      t.Text,
		App:       t.App,
		Result:    t.Result,
		Timestamp: t.At,
	}
	s.transcriptsMu.Lock()
	defer s.transcriptsMu.Unlock()
	s.transcripts = append(s.transcripts, entry)
	if tail := max(1, s.cfg.UI.StatusTail); len(s.transcripts) > tail {
		s.transcripts = s.transcripts[len(s.transcripts)-tail:]
	}
}

func (s *Server) copyTranscripts() []control.Transcript {
	s.transcriptsMu.Lock()
	defer s.transcriptsMu.Unlock()
	out := make([]control.Transcript, len(s.transcripts))
	copy(out, s.transcripts)
	return out
}

func (s *Server) controlLoop(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Errorf("control accept: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && ctx.Err() == nil {
			s.logger.Warnf("control connection close: %v", err)
		}
	}()
	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		return
	}
	var req control.Request
	if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{Message: "bad request: " + err.Error()})
		return
	}
	_ = json.NewEncoder(conn).Encode(s.handle(req))
}

// handle answers one control request. The reply is always JSON encodable.
func (s *Server) handle(req control.Request) any {
	known := true
	defer func() { s.metrics.ControlRequest(req.Op, known) }()

	switch req.Op {
	case control.OpStatus:
		return control.Status{
			Running:     true,
			UptimeSec:   time.Since(s.startedAt).Seconds(),
			Status:      s.ctrl.Status(),
			Transcripts: s.copyTranscripts(),
		}
	case control.OpHealth:
		return control.SimpleResponse{OK: true, Message: "ok"}
	case control.OpLevel:
		st := s.ctrl.Status()
		return control.Level{
			State:   st.State,
			Level:   st.Meter.Level,
			Bands:   spectrum.Bars(st.Meter.Spectrum, levelBands),
			Preview: st.Preview,
			Elapsed: st.Elapsed,
		}
	case control.OpPress, control.OpRelease, control.OpToggle:
		kind, _ := hotkey.ParseKind(req.Op)
		return s.sendHotkey(hotkey.Event{Kind: kind, App: req.App})
	case control.OpReload:
		msg, err := s.reload()
		if err != nil {
			s.logger.Warnf("reload: %v", err)
			return control.SimpleResponse{Message: err.Error()}
		}
		return control.SimpleResponse{OK: true, Message: msg}
	default:
		known = false
		return control.SimpleResponse{Message: fmt.Sprintf("unknown op %q", req.Op)}
	}
}

// sendHotkey queues ev and waits briefly for the controller to apply it, so
// a press that cannot open the microphone is reported to the caller.
func (s *Server) sendHotkey(ev hotkey.Event) control.SimpleResponse {
	done := make(chan error, 1)
	ev.Done = done
	if !s.hotkeys.Send(ev) {
		return control.SimpleResponse{Message: "hotkey queue full"}
	}
	select {
	case err := <-done:
		if err != nil {
			return control.SimpleResponse{Message: err.Error()}
		}
		return control.SimpleResponse{OK: true, Message: ev.Kind.String() + " applied"}
	case <-time.After(hotkeyReplyTimeout):
		return control.SimpleResponse{OK: true, Message: ev.Kind.String() + " queued"}
	}
}

// reload rereads the config file and swaps formatter and output. Capture,
// segmenter and ASR settings need a restart.
func (s *Server) reload() (string, error) {
	cfg, err := config.Load(s.cfg.Paths.ConfigPath)
	if err != nil {
		return "", err
	}
	out, err := output.New(cfg, s.logger)
	if err != nil {
		return "", err
	}
	s.ctrl.Reconfigure(format.New(cfg, s.logger), out)
	s.logger.Infof("reloaded formatter and output (mode=%s)", out.Name())
	return "output=" + out.Name(), nil
}
