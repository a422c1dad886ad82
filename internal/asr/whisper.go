//go:build whisper

package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/sirupsen/logrus"

	"flowstate/internal/audio"
	"flowstate/internal/config"
)

// WhisperBuilt reports whether whisper.cpp is linked into this binary.
const WhisperBuilt = true

// whisper.cpp rejects inputs shorter than a second
const minWhisperSamples = audio.SampleRate + audio.SampleRate/10

// Whisper runs a local ggml model. Contexts created from one model share its
// decoder state, so calls are serialized.
type Whisper struct {
	mu     sync.Mutex
	model  whisper.Model
	params decodeParams
	logger logrus.FieldLogger
}

// NewWhisper loads the model at asr.model_path.
func NewWhisper(cfg *config.Config, logger *logrus.Logger) (*Whisper, error) {
	model, err := whisper.New(cfg.ASR.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", cfg.ASR.ModelPath, err)
	}
	logger.Infof("whisper model loaded: %s", cfg.ASR.ModelPath)
	return &Whisper{
		model:  model,
		params: newDecodeParams(cfg),
		logger: logger,
	}, nil
}

func (w *Whisper) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	if len(samples) < minWhisperSamples {
		padded := make([]float32, minWhisperSamples)
		copy(padded, samples)
		samples = padded
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper context: %w", err)
	}
	w.apply(wctx)
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper process: %w", err)
	}
	var b strings.Builder
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
		b.WriteString(seg.Text)
		if !strings.HasSuffix(seg.Text, " ") {
			b.WriteByte(' ')
		}
	}
	return Clean(b.String()), nil
}

// apply sets the decoding hints on a fresh context. NewContext already
// selects greedy sampling.
func (w *Whisper) apply(wctx whisper.Context) {
	p := w.params
	if p.Threads > 0 {
		wctx.SetThreads(uint(p.Threads))
	}
	wctx.SetTranslate(p.Translate)
	wctx.SetTokenTimestamps(p.TokenTimestamps)
	if p.Language != "" {
		if err := wctx.SetLanguage(p.Language); err != nil {
			w.logger.Warnf("set language %q: %v", p.Language, err)
		}
	}
}

// Warmup runs half a second of silence so the first real chunk does not pay
// for lazy initialisation.
func (w *Whisper) Warmup(ctx context.Context) error {
	_, err := w.Transcribe(ctx, make([]float32, audio.SampleRate/2))
	return err
}

func (w *Whisper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.model.Close()
}
