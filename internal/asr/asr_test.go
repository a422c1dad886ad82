package asr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"flowstate/internal/config"
	"flowstate/internal/logging"
)

func TestClean(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"  hello world  ", "hello world"},
		{"[BLANK_AUDIO]", ""},
		{"[music] okay then", "okay then"},
		{"...", ""},
		{"(Music)  ", ""},
		{"send it [BLANK_AUDIO] now", "send it now"},
		{"", ""},
		{"Music", ""},
		{"a musical evening", "a musical evening"},
		{"Silence please. Silence", "please."},
		{"subtitles are on", "subtitles are on"},
	}
	for _, c := range cases {
		if got := Clean(c.in); got != c.want {
			t.Fatalf("Clean(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	return cfg
}

func TestRemoteTranscribe(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("multipart: %v", err)
		}
		if m := r.FormValue("model"); m != "whisper-large-v3-turbo" {
			t.Errorf("model %q", m)
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" hello there [BLANK_AUDIO] "}`))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.ASR.Backend = "openai"
	cfg.ASR.BaseURL = srv.URL + "/v1/"
	cfg.ASR.APIKey = "test-key"
	tr, err := New(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer tr.Close()

	text, err := tr.Transcribe(context.Background(), make([]float32, 1600))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello there" {
		t.Fatalf("text %q", text)
	}
	if empty, _ := tr.Transcribe(context.Background(), nil); empty != "" || hits.Load() != 1 {
		t.Fatalf("empty chunk should not hit the server (hits=%d)", hits.Load())
	}
}

func TestRemoteFailureSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"nope"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()
	cfg := testConfig(t)
	cfg.ASR.BaseURL = srv.URL
	cfg.ASR.APIKey = "k"
	r, err := NewRemote(cfg, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := r.Transcribe(context.Background(), make([]float32, 1600)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRemoteRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GROQ_API_KEY", "")
	cfg := testConfig(t)
	cfg.ASR.APIKey = ""
	if _, err := NewRemote(cfg, logging.NewTestLogger()); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestDecodeParams(t *testing.T) {
	cfg := testConfig(t)
	cfg.ASR.Language = " en "
	cfg.ASR.Threads = -2
	p := newDecodeParams(cfg)
	if p.Language != "en" || p.Threads != 0 {
		t.Fatalf("params %+v", p)
	}
	if p.Translate || p.TokenTimestamps {
		t.Fatalf("dictation decodes without translation or token timestamps: %+v", p)
	}
}

func TestUnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.ASR.Backend = "carrier-pigeon"
	if _, err := New(cfg, logging.NewTestLogger()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWhisperStubWhenNotBuilt(t *testing.T) {
	cfg := testConfig(t)
	cfg.ASR.ModelPath = "/nonexistent/model.bin"
	_, err := New(cfg, logging.NewTestLogger())
	if err == nil {
		t.Fatalf("expected error for missing model or missing backend")
	}
	// without the whisper tag the error names the missing backend
	if !WhisperBuilt && !errors.Is(err, ErrNotBuilt) {
		t.Fatalf("got %v", err)
	}
}
