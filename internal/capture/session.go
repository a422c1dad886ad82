// Package capture runs one recording session: it reads native buffers from
// an input, converts them to the canonical stream, cuts chunks and feeds the
// level/spectrum meter.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"flowstate/internal/audio"
	"flowstate/internal/metrics"
	"flowstate/internal/segment"
	"flowstate/internal/spectrum"
	"flowstate/internal/transcript"
)

const warmupTimeout = 5 * time.Second

// ChunkSink receives every cut chunk with a private copy of its samples.
type ChunkSink interface {
	Submit(job transcript.Job) error
}

// Warmer is pinged once at session start to hide connection setup latency.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// Meter is the per-buffer visual feedback.
type Meter struct {
	Level    float64        `json:"level"`
	RMS      float64        `json:"rms"`
	Spectrum spectrum.Frame `json:"spectrum"`
	Samples  int            `json:"samples"`
}

// Options configures a session.
type Options struct {
	Source          audio.Source
	FramesPerBuffer int
	Segmenter       segment.Config
	// Detector decides silence; nil uses the RMS threshold from Segmenter.
	Detector   segment.Detector
	Generation uint64
	Sink       ChunkSink
	Warmer     Warmer
	// Meters receives one Meter per buffer, newest wins. Optional.
	Meters   *spectrum.Mailbox[Meter]
	Spectrum bool
	// DumpPath, when set, receives the full session as a WAV file on Stop.
	DumpPath string
	Logger   logrus.FieldLogger
	Metrics  *metrics.Metrics
}

// Session is one active capture. The producer goroutine owns the stream,
// segmenter and analyzer until Stop joins it.
type Session struct {
	opts     Options
	logger   logrus.FieldLogger
	format   audio.Format
	conv     *audio.Resampler
	stream   *audio.SampleStream
	seg      *segment.Segmenter
	det      segment.Detector
	analyzer *spectrum.Analyzer

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	full     []float32
	tail     []float32
	err      error
	started  time.Time
}

// Start opens the source and begins delivering buffers. Only failures to open
// the input are returned; everything later is logged and recovered.
func Start(ctx context.Context, opts Options) (*Session, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("%w: no source", audio.ErrInputUnavailable)
	}
	if opts.FramesPerBuffer <= 0 {
		opts.FramesPerBuffer = 1024
	}
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	format, err := opts.Source.Open()
	if err != nil {
		if !errors.Is(err, audio.ErrInputUnavailable) {
			err = fmt.Errorf("%w: %v", audio.ErrInputUnavailable, err)
		}
		return nil, err
	}
	conv, err := audio.NewResampler(format)
	if err != nil {
		_ = opts.Source.Close()
		return nil, fmt.Errorf("%w: %v", audio.ErrInputUnavailable, err)
	}
	det := opts.Detector
	if det == nil {
		det = segment.RMSDetector{Threshold: opts.Segmenter.SilenceThreshold}
	}

	s := &Session{
		opts:    opts,
		logger:  logger.WithField("generation", opts.Generation),
		format:  format,
		conv:    conv,
		stream:  audio.NewSampleStream(30),
		seg:     segment.New(opts.Segmenter),
		det:     det,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	if opts.Spectrum {
		s.analyzer = spectrum.NewAnalyzer()
	}

	if opts.Warmer != nil {
		go func() {
			wctx, cancel := context.WithTimeout(context.Background(), warmupTimeout)
			defer cancel()
			if err := opts.Warmer.Warmup(wctx); err != nil {
				s.logger.Debugf("warmup ignored: %v", err)
			}
		}()
	}

	pctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.logger.Infof("capture started (%s)", format)
	go s.produce(pctx)
	return s, nil
}

// Format returns the native input format.
func (s *Session) Format() audio.Format { return s.format }

// Done is closed when the producer stops: after Stop, on source EOF, on a
// read error or when the start context ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the producer stopped early, if it did.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Session) produce(ctx context.Context) {
	defer close(s.done)
	buf := make([]float32, s.opts.FramesPerBuffer*s.format.Channels)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := s.opts.Source.Read(buf)
		if n > 0 {
			s.process(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = err
				s.logger.Errorf("capture read: %v", err)
			}
			return
		}
	}
}

func (s *Session) process(native []float32) {
	samples, err := s.conv.Convert(native)
	if err != nil {
		s.opts.Metrics.ConverterDrop()
		s.logger.Warnf("dropping buffer: %v", err)
		return
	}
	s.stream.Append(samples)
	s.opts.Metrics.BufferProcessed()

	rms := audio.RMS(samples)
	if c, ok := s.seg.Push(len(samples), s.det.Silent(samples, rms)); ok {
		s.emit(c)
	}

	if s.opts.Meters == nil {
		return
	}
	m := Meter{Level: audio.Level(rms), RMS: rms, Samples: s.stream.Len()}
	if s.analyzer != nil {
		m.Spectrum = s.analyzer.Process(samples)
	}
	s.opts.Meters.Put(m)
}

func (s *Session) emit(c segment.Chunk) {
	s.opts.Metrics.ChunkEmitted(c.Final, c.Duration())
	s.logger.WithFields(logrus.Fields{"seq": c.Seq, "start": c.Start, "end": c.End, "final": c.Final}).Debug("chunk cut")
	if s.opts.Sink == nil {
		return
	}
	job := transcript.Job{
		Generation: s.opts.Generation,
		Chunk:      c,
		Samples:    s.stream.Slice(c.Start, c.End),
	}
	if err := s.opts.Sink.Submit(job); err != nil {
		s.logger.Warnf("chunk %d not accepted: %v", c.Seq, err)
	}
}

// Stop halts delivery, emits the final chunk and returns the whole stream
// and the samples the final chunk covers. It is safe to call more than once.
func (s *Session) Stop() (full, tail []float32) {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.done
		if err := s.opts.Source.Close(); err != nil {
			s.logger.Warnf("close input: %v", err)
		}
		final := s.seg.Flush()
		s.tail = s.stream.Slice(final.Start, final.End)
		s.emit(final)
		s.full = s.stream.Snapshot()
		s.logger.Infof("capture stopped: %.2fs captured, %d chunks", audio.Seconds(len(s.full)), final.Seq+1)
		if s.opts.DumpPath != "" {
			if err := audio.SaveWAV(s.opts.DumpPath, s.full); err != nil {
				s.logger.Warnf("session dump: %v", err)
			}
		}
	})
	return s.full, s.tail
}

// Elapsed is the wall time since Start.
func (s *Session) Elapsed() time.Duration { return time.Since(s.started) }
