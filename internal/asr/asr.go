// Package asr provides the speech-to-text backends used for chunk
// transcription.
package asr

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"flowstate/internal/config"
)

// ErrNotBuilt is returned for a backend left out of this binary.
var ErrNotBuilt = errors.New("asr backend not built")

// Transcriber turns canonical 16 kHz mono samples into text.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
	Close() error
}

// New returns the backend named by asr.backend.
func New(cfg *config.Config, logger *logrus.Logger) (Transcriber, error) {
	switch strings.ToLower(cfg.ASR.Backend) {
	case "openai":
		r, err := NewRemote(cfg, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "whisper", "":
		w, err := NewWhisper(cfg, logger)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unknown asr backend %q", cfg.ASR.Backend)
	}
}

// decodeParams are the local decoder settings applied to every chunk. The
// context starts from greedy sampling; chunks are dictation, never translated,
// and only text is read back so token timestamps stay off.
type decodeParams struct {
	Language        string
	Threads         int
	Translate       bool
	TokenTimestamps bool
}

func newDecodeParams(cfg *config.Config) decodeParams {
	return decodeParams{
		Language: strings.TrimSpace(cfg.ASR.Language),
		Threads:  max(0, cfg.ASR.Threads),
	}
}

// hallucinations are phrases whisper emits for non-speech input.
var hallucinations = []string{"[BLANK_AUDIO]", "[Music]", "(Music)", "Breathing", "Subtitle", "Music", "Silence"}

var hallucinationRe = func() *regexp.Regexp {
	quoted := make([]string, len(hallucinations))
	for i, h := range hallucinations {
		quoted[i] = regexp.QuoteMeta(h)
		// Bare words only match whole words so "musical" survives.
		if isWordRune(rune(h[0])) && isWordRune(rune(h[len(h)-1])) {
			quoted[i] = `\b` + quoted[i] + `\b`
		}
	}
	return regexp.MustCompile(`(?i)` + strings.Join(quoted, "|"))
}()

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

var spaceRe = regexp.MustCompile(`\s+`)

// Clean strips known non-speech markers and returns "" when no letters are
// left (for example a lone "...").
func Clean(text string) string {
	text = hallucinationRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
	if strings.IndexFunc(text, unicode.IsLetter) < 0 {
		return ""
	}
	return text
}
