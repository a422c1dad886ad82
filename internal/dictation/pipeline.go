package dictation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"flowstate/internal/asr"
	"flowstate/internal/audio"
	"flowstate/internal/capture"
	"flowstate/internal/config"
	"flowstate/internal/format"
	"flowstate/internal/history"
	"flowstate/internal/metrics"
	"flowstate/internal/output"
	"flowstate/internal/segment"
	"flowstate/internal/transcript"
)

// Pipeline holds the long-lived pieces shared by every session: the speech
// backend, the orchestrator and the formatter.
type Pipeline struct {
	cfg          *config.Config
	logger       *logrus.Logger
	Transcriber  asr.Transcriber
	Orchestrator *transcript.Orchestrator
	Formatter    *format.Formatter
	Detector     segment.Detector
	Metrics      *metrics.Metrics
}

// modelWarmupTimeout bounds the one-off decode a local backend runs at load.
const modelWarmupTimeout = 30 * time.Second

// NewPipeline loads and warms the configured backend. m may be nil.
func NewPipeline(cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics) (*Pipeline, error) {
	tr, err := asr.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("asr init: %w", err)
	}
	return newPipeline(cfg, logger, m, tr)
}

func newPipeline(cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics, tr asr.Transcriber) (*Pipeline, error) {
	det, err := segment.NewDetector(cfg)
	if err != nil {
		_ = tr.Close()
		return nil, err
	}
	warmModel(tr, logger)
	orch := transcript.New(transcript.Options{
		Transcriber: tr,
		Logger:      logger,
		Metrics:     m,
	})
	return &Pipeline{
		cfg:          cfg,
		logger:       logger,
		Transcriber:  tr,
		Orchestrator: orch,
		Formatter:    format.New(cfg, logger),
		Detector:     det,
		Metrics:      m,
	}, nil
}

// Controller wires a session controller over this pipeline. hist may be nil.
func (p *Pipeline) Controller(out output.Sink, hist *history.Store, newSource func() audio.Source) *Controller {
	var notifier Notifier
	if p.cfg.UI.Notify {
		notifier = BeeepNotifier{}
	}
	return New(Options{
		Orchestrator:    p.Orchestrator,
		NewSource:       newSource,
		FramesPerBuffer: p.cfg.Audio.FramesPerBuffer,
		Segmenter:       segment.FromConfig(p.cfg),
		Detector:        p.Detector,
		Spectrum:        p.cfg.Spectrum.Enabled,
		DumpPath:        p.cfg.Paths.SessionWAV,
		Warmer:          p.Formatter,
		Formatter:       p.Formatter,
		Output:          out,
		History:         hist,
		StatusTail:      p.cfg.UI.StatusTail,
		Notifier:        notifier,
		Metrics:         p.Metrics,
		Logger:          p.logger,
	})
}

// DeviceSource returns a factory for the configured microphone.
func (p *Pipeline) DeviceSource() func() audio.Source {
	a := p.cfg.Audio
	return func() audio.Source {
		return audio.NewDeviceSource(a.DeviceName, a.FramesPerBuffer, a.Channels)
	}
}

// Close stops the orchestrator and releases the backend.
func (p *Pipeline) Close() error {
	p.Orchestrator.Close()
	return p.Transcriber.Close()
}

// warmModel pays a local backend's lazy initialisation once, before any
// session exists. Sessions only warm the formatter endpoint.
func warmModel(tr asr.Transcriber, logger logrus.FieldLogger) {
	w, ok := tr.(capture.Warmer)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), modelWarmupTimeout)
	defer cancel()
	start := time.Now()
	if err := w.Warmup(ctx); err != nil {
		logger.Warnf("asr warmup: %v", err)
		return
	}
	logger.Debugf("asr warmed up in %s", time.Since(start).Round(time.Millisecond))
}
