//go:build !whisper

package asr

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"flowstate/internal/config"
)

// WhisperBuilt reports whether whisper.cpp is linked into this binary.
const WhisperBuilt = false

// Whisper is unavailable without the whisper build tag.
type Whisper struct{}

// NewWhisper reports that whisper.cpp is not linked in.
func NewWhisper(cfg *config.Config, logger *logrus.Logger) (*Whisper, error) {
	return nil, fmt.Errorf("%w: whisper (rebuild with '-tags whisper' or set asr.backend = \"openai\")", ErrNotBuilt)
}

func (w *Whisper) Transcribe(ctx context.Context, samples []float32) (string, error) {
	return "", ErrNotBuilt
}

func (w *Whisper) Warmup(ctx context.Context) error { return ErrNotBuilt }

func (w *Whisper) Close() error { return nil }
