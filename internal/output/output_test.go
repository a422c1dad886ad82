package output

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"flowstate/internal/config"
	"flowstate/internal/logging"
)

type fakeClip struct {
	content string
	writes  []string
	err     error
}

func (f *fakeClip) ReadAll() (string, error) { return f.content, nil }

func (f *fakeClip) WriteAll(s string) error {
	if f.err != nil {
		return f.err
	}
	f.content = s
	f.writes = append(f.writes, s)
	return nil
}

type fakeKeys struct {
	pastes  int
	clip    *fakeClip
	pasted  []string
	failure error
}

func (k *fakeKeys) Paste() error {
	k.pastes++
	k.pasted = append(k.pasted, k.clip.content)
	return k.failure
}

func TestPasteRestoresClipboard(t *testing.T) {
	clip := &fakeClip{content: "previous"}
	keys := &fakeKeys{clip: clip}
	p := NewPaste(clip, keys, 0, true)
	if err := p.Deliver(context.Background(), Delivery{Text: "Hello there."}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if keys.pastes != 1 || keys.pasted[0] != "Hello there." {
		t.Fatalf("pasted %v", keys.pasted)
	}
	if clip.content != "previous" {
		t.Fatalf("clipboard not restored: %q", clip.content)
	}
}

func TestPasteWithoutRestoreLeavesText(t *testing.T) {
	clip := &fakeClip{content: "previous"}
	keys := &fakeKeys{clip: clip}
	p := NewPaste(clip, keys, 0, false)
	if err := p.Deliver(context.Background(), Delivery{Text: "kept"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if clip.content != "kept" {
		t.Fatalf("clipboard %q", clip.content)
	}
}

func TestPasteErrors(t *testing.T) {
	clip := &fakeClip{err: errors.New("no xclip")}
	p := NewPaste(clip, &fakeKeys{clip: clip}, 0, false)
	if err := p.Deliver(context.Background(), Delivery{Text: "x"}); !errors.Is(err, ErrClipboard) {
		t.Fatalf("want ErrClipboard, got %v", err)
	}

	clip = &fakeClip{}
	keys := &fakeKeys{clip: clip, failure: errors.New("no uinput")}
	p = NewPaste(clip, keys, 0, false)
	if err := p.Deliver(context.Background(), Delivery{Text: "x"}); err == nil {
		t.Fatalf("expected keystroke error")
	}
}

func TestEmptyTextIsNoop(t *testing.T) {
	clip := &fakeClip{}
	keys := &fakeKeys{clip: clip}
	sinks := []Sink{NewPaste(clip, keys, 0, true), NewClipboard(clip), &Writer{W: &bytes.Buffer{}}}
	for _, s := range sinks {
		if err := s.Deliver(context.Background(), Delivery{}); err != nil {
			t.Fatalf("%s: %v", s.Name(), err)
		}
	}
	if len(clip.writes) != 0 || keys.pastes != 0 {
		t.Fatalf("empty delivery touched clipboard: %v", clip.writes)
	}
}

func TestWriterAndClipboard(t *testing.T) {
	var buf bytes.Buffer
	w := &Writer{W: &buf}
	_ = w.Deliver(context.Background(), Delivery{Text: "one"})
	_ = w.Deliver(context.Background(), Delivery{Text: "two"})
	if buf.String() != "one\ntwo\n" {
		t.Fatalf("writer got %q", buf.String())
	}

	clip := &fakeClip{}
	if err := NewClipboard(clip).Deliver(context.Background(), Delivery{Text: "copied"}); err != nil {
		t.Fatalf("clipboard: %v", err)
	}
	if clip.content != "copied" {
		t.Fatalf("clipboard %q", clip.content)
	}
}

func TestHookSink(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	script := filepath.Join(dir, "hook.sh")
	body := "#!/bin/sh\nprintf '%s' \"$FLOWSTATE_APP:$1\" > " + out + "\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, _ := config.Default()
	cfg.Output.Mode = "hook"
	cfg.Hook.Command = script
	sink, err := New(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if sink.Name() != "hook" {
		t.Fatalf("sink %s", sink.Name())
	}
	if err := sink.Deliver(context.Background(), Delivery{Text: "ship it", App: "Terminal"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	b, _ := os.ReadFile(out)
	if strings.TrimSpace(string(b)) != "Terminal:ship it" {
		t.Fatalf("hook got %q", b)
	}
}

func TestNewModes(t *testing.T) {
	cfg, _ := config.Default()
	for mode, want := range map[string]string{"paste": "paste", "clipboard": "clipboard", "stdout": "stdout", "HOOK": "hook"} {
		cfg.Output.Mode = mode
		s, err := New(cfg, logging.NewTestLogger())
		if err != nil || s.Name() != want {
			t.Fatalf("mode %s -> %v %v", mode, s, err)
		}
	}
	cfg.Output.Mode = "fax"
	if _, err := New(cfg, logging.NewTestLogger()); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
