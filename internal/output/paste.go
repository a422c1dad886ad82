package output

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

// ClipboardAPI is the subset of the system clipboard we use.
type ClipboardAPI interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// Keystroker sends the platform paste shortcut to the focused app.
type Keystroker interface {
	Paste() error
}

// SystemClipboard uses atotto/clipboard (pbcopy, xclip/xsel/wl-copy, win32).
type SystemClipboard struct{}

func (SystemClipboard) ReadAll() (string, error) { return clipboard.ReadAll() }
func (SystemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// KeyboardPaster simulates Cmd+V on macOS and Ctrl+V elsewhere.
type KeyboardPaster struct{}

func (KeyboardPaster) Paste() error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return fmt.Errorf("keyboard: %w", err)
	}
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	kb.SetKeys(keybd_event.VK_V)
	return kb.Launching()
}

// Clipboard leaves the text on the clipboard for the user to paste.
type Clipboard struct {
	clip ClipboardAPI
}

// NewClipboard returns a clipboard-only sink.
func NewClipboard(clip ClipboardAPI) *Clipboard { return &Clipboard{clip: clip} }

func (c *Clipboard) Name() string { return "clipboard" }

func (c *Clipboard) Deliver(_ context.Context, d Delivery) error {
	if d.Text == "" {
		return nil
	}
	if err := c.clip.WriteAll(d.Text); err != nil {
		return fmt.Errorf("%w: %v", ErrClipboard, err)
	}
	return nil
}

// Paste writes the clipboard, waits delay for it to settle, then sends the
// paste shortcut. With restore set the previous clipboard text is put back.
type Paste struct {
	clip    ClipboardAPI
	keys    Keystroker
	delay   time.Duration
	restore bool
}

func NewPaste(clip ClipboardAPI, keys Keystroker, delay time.Duration, restore bool) *Paste {
	return &Paste{clip: clip, keys: keys, delay: delay, restore: restore}
}

func (p *Paste) Name() string { return "paste" }

func (p *Paste) Deliver(ctx context.Context, d Delivery) error {
	if d.Text == "" {
		return nil
	}
	var prev string
	if p.restore {
		prev, _ = p.clip.ReadAll()
	}
	if err := p.clip.WriteAll(d.Text); err != nil {
		return fmt.Errorf("%w: %v", ErrClipboard, err)
	}
	if err := sleep(ctx, p.delay); err != nil {
		return err
	}
	if err := p.keys.Paste(); err != nil {
		return fmt.Errorf("paste keystroke: %w", err)
	}
	if p.restore {
		// the target app reads the clipboard asynchronously
		if err := sleep(ctx, p.delay+120*time.Millisecond); err != nil {
			return err
		}
		_ = p.clip.WriteAll(prev)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
