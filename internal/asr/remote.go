package asr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"flowstate/internal/audio"
	"flowstate/internal/config"
)

// Remote transcribes through an OpenAI-compatible /audio/transcriptions
// endpoint (OpenAI, Groq). Calls are independent and may overlap.
type Remote struct {
	client   *openai.Client
	model    string
	language string
	logger   logrus.FieldLogger
}

// NewRemote builds a client from the [asr] section.
func NewRemote(cfg *config.Config, logger *logrus.Logger) (*Remote, error) {
	if strings.TrimSpace(cfg.ASR.APIKey) == "" {
		return nil, errors.New("asr: api_key (or OPENAI_API_KEY / GROQ_API_KEY) is required for the openai backend")
	}
	oc := openai.DefaultConfig(cfg.ASR.APIKey)
	if cfg.ASR.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.ASR.BaseURL, "/")
	}
	model := cfg.ASR.RemoteModel
	if model == "" {
		model = openai.Whisper1
	}
	return &Remote{
		client:   openai.NewClientWithConfig(oc),
		model:    model,
		language: cfg.ASR.Language,
		logger:   logger,
	}, nil
}

func (r *Remote) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	f, err := os.CreateTemp("", "flowstate-chunk-*.wav")
	if err != nil {
		return "", fmt.Errorf("temp wav: %w", err)
	}
	path := f.Name()
	defer func() { _ = os.Remove(path) }()
	if err := audio.WriteWAV(f, samples); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    r.model,
		FilePath: path,
		Language: r.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("remote transcription: %w", err)
	}
	return Clean(resp.Text), nil
}

func (r *Remote) Close() error { return nil }
