// Package output delivers formatted text to the user: pasted into the
// focused app, left on the clipboard, printed, or handed to a hook command.
package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"flowstate/internal/config"
	"flowstate/internal/hook"
)

// Delivery is one piece of finished text and where it is going.
type Delivery struct {
	Text     string
	App      string
	Category string
}

// Sink delivers text. Empty text is a no-op for every sink.
type Sink interface {
	Deliver(ctx context.Context, d Delivery) error
	Name() string
}

// New picks the sink for output.mode.
func New(cfg *config.Config, logger logrus.FieldLogger) (Sink, error) {
	switch strings.ToLower(cfg.Output.Mode) {
	case "", "paste":
		return NewPaste(SystemClipboard{}, KeyboardPaster{}, time.Duration(cfg.Output.PasteDelayMS)*time.Millisecond, cfg.Output.RestoreClipboard), nil
	case "clipboard":
		return &Clipboard{clip: SystemClipboard{}}, nil
	case "stdout":
		return &Writer{W: os.Stdout}, nil
	case "hook":
		return &Hook{Runner: hook.NewRunner(cfg, logger)}, nil
	default:
		return nil, fmt.Errorf("unknown output mode %q", cfg.Output.Mode)
	}
}

// Writer prints each delivery on its own line.
type Writer struct {
	W io.Writer
}

func (w *Writer) Name() string { return "stdout" }

func (w *Writer) Deliver(_ context.Context, d Delivery) error {
	if d.Text == "" {
		return nil
	}
	_, err := fmt.Fprintln(w.W, d.Text)
	return err
}

// Hook runs the configured hook command with the text.
type Hook struct {
	Runner *hook.Runner
}

func (h *Hook) Name() string { return "hook" }

func (h *Hook) Deliver(ctx context.Context, d Delivery) error {
	if d.Text == "" {
		return nil
	}
	return h.Runner.Run(ctx, hook.Job{
		Text:      d.Text,
		App:       d.App,
		Category:  d.Category,
		Timestamp: time.Now(),
	})
}

// ErrClipboard wraps clipboard access failures.
var ErrClipboard = errors.New("clipboard unavailable")
