package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultStatusTail    = 10
	defaultHistoryMax    = 100
	defaultStateDirLinux = ".local/state/flowstate"
	defaultConfigDir     = ".config/flowstate"

	// SampleRate is the canonical rate of everything downstream of capture.
	SampleRate = 16000
)

// Config holds user configuration loaded from TOML.
type Config struct {
	Audio struct {
		DeviceName      string `toml:"device_name"`
		FramesPerBuffer int    `toml:"frames_per_buffer"`
		Channels        int    `toml:"channels"`
	} `toml:"audio"`

	Segmenter struct {
		MinChunkSec       float64 `toml:"min_chunk_sec"`
		MaxChunkSec       float64 `toml:"max_chunk_sec"`
		SilenceThreshold  float64 `toml:"silence_threshold"`
		MinSilenceSec     float64 `toml:"min_silence_sec"`
		Detector          string  `toml:"detector"` // rms, webrtc
		VADAggressiveness int     `toml:"vad_aggressiveness"`
	} `toml:"segmenter"`

	Spectrum struct {
		Enabled bool `toml:"enabled"`
	} `toml:"spectrum"`

	ASR struct {
		Backend     string `toml:"backend"` // whisper, openai
		ModelPath   string `toml:"model_path"`
		Language    string `toml:"language"`
		Threads     int    `toml:"threads"`
		RemoteModel string `toml:"remote_model"`
		BaseURL     string `toml:"base_url"`
		APIKey      string `toml:"api_key"`
	} `toml:"asr"`

	Formatter struct {
		Enabled       bool     `toml:"enabled"`
		BaseURL       string   `toml:"base_url"`
		Model         string   `toml:"model"`
		APIKey        string   `toml:"api_key"`
		TimeoutSec    float64  `toml:"timeout_sec"`
		Temperature   float64  `toml:"temperature"`
		MaxTokens     int      `toml:"max_tokens"`
		LLMCategories []string `toml:"llm_categories"`
	} `toml:"formatter"`

	Profiles []Profile `toml:"profiles"`

	Output struct {
		Mode             string `toml:"mode"` // paste, clipboard, stdout, hook
		PasteDelayMS     int    `toml:"paste_delay_ms"`
		RestoreClipboard bool   `toml:"restore_clipboard"`
	} `toml:"output"`

	Hook struct {
		Command    string            `toml:"command"`
		Args       []string          `toml:"args"`
		Prefix     string            `toml:"prefix"`
		TimeoutSec float64           `toml:"timeout_sec"`
		Env        map[string]string `toml:"env"`
		RedactPII  bool              `toml:"redact_pii"`
	} `toml:"hook"`

	Hooks []HookConfig `toml:"hooks"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // text, json
		Stdout bool   `toml:"stdout"`
	} `toml:"logging"`

	Paths struct {
		StateDir    string `toml:"state_dir"`
		LogPath     string `toml:"log_path"`
		HistoryPath string `toml:"history_path"`
		SocketPath  string `toml:"socket_path"`
		PidPath     string `toml:"pid_path"`
		SessionWAV  string `toml:"session_wav"` // optional dump of the last session
		ConfigPath  string `toml:"-"`
	} `toml:"paths"`

	UI struct {
		StatusTail int  `toml:"status_tail"`
		Notify     bool `toml:"notify"`
	} `toml:"ui"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`

	History struct {
		Enabled    bool `toml:"enabled"`
		MaxEntries int  `toml:"max_entries"`
		TypingWPM  int  `toml:"typing_wpm"`
	} `toml:"history"`
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	// macOS prefers ~/Library/Application Support/flowstate for state/logs
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "flowstate")
	}

	cfg := &Config{}

	cfg.Audio.FramesPerBuffer = 1024
	cfg.Audio.Channels = 1

	cfg.Segmenter.MinChunkSec = 2.0
	cfg.Segmenter.MaxChunkSec = 10.0
	cfg.Segmenter.SilenceThreshold = 0.02
	cfg.Segmenter.MinSilenceSec = 0.4
	cfg.Segmenter.Detector = "rms"
	cfg.Segmenter.VADAggressiveness = 2

	cfg.Spectrum.Enabled = true

	cfg.ASR.Backend = "whisper"
	cfg.ASR.ModelPath = filepath.Join(stateDir, "models", "ggml-base.en.bin")
	cfg.ASR.Language = "en"
	cfg.ASR.Threads = runtime.NumCPU()
	cfg.ASR.RemoteModel = "whisper-large-v3-turbo"
	cfg.ASR.BaseURL = "https://api.groq.com/openai/v1"

	cfg.Formatter.Enabled = true
	cfg.Formatter.BaseURL = "https://api.groq.com/openai/v1"
	cfg.Formatter.Model = "llama-3.1-8b-instant"
	cfg.Formatter.TimeoutSec = 5
	cfg.Formatter.Temperature = 0.3
	cfg.Formatter.MaxTokens = 1024
	cfg.Formatter.LLMCategories = []string{"formal"}

	cfg.Output.Mode = "paste"
	cfg.Output.PasteDelayMS = 100
	cfg.Output.RestoreClipboard = false

	cfg.Hook.Args = []string{}
	cfg.Hook.TimeoutSec = 5
	cfg.Hook.Env = map[string]string{}

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "flowstate.log")
	cfg.Paths.HistoryPath = filepath.Join(stateDir, "history.jsonl")
	cfg.Paths.SocketPath = filepath.Join(stateDir, "flowstate.sock")
	cfg.Paths.PidPath = filepath.Join(stateDir, "flowstate.pid")

	cfg.UI.StatusTail = defaultStatusTail
	cfg.UI.Notify = true

	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:9318"

	cfg.History.Enabled = true
	cfg.History.MaxEntries = defaultHistoryMax
	cfg.History.TypingWPM = 40

	return cfg, nil
}

// Load loads config from file, applying defaults.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, defaultConfigDir, "config.toml")
	}

	// Read if exists; otherwise write template.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := Save(cfg, path); err != nil {
				return nil, err
			}
			cfg.Paths.ConfigPath = path
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Paths.ConfigPath = path
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	s := c.Segmenter
	if s.MinChunkSec < 0 || s.MaxChunkSec <= 0 {
		return fmt.Errorf("segmenter: chunk durations must be positive (min %.2f, max %.2f)", s.MinChunkSec, s.MaxChunkSec)
	}
	if s.MinChunkSec > s.MaxChunkSec {
		return fmt.Errorf("segmenter: min_chunk_sec %.2f exceeds max_chunk_sec %.2f", s.MinChunkSec, s.MaxChunkSec)
	}
	switch strings.ToLower(s.Detector) {
	case "", "rms", "webrtc":
	default:
		return fmt.Errorf("segmenter: unknown detector %q (want rms or webrtc)", s.Detector)
	}
	switch strings.ToLower(c.ASR.Backend) {
	case "whisper", "openai":
	default:
		return fmt.Errorf("asr: unknown backend %q (want whisper or openai)", c.ASR.Backend)
	}
	switch strings.ToLower(c.Output.Mode) {
	case "paste", "clipboard", "stdout", "hook":
	default:
		return fmt.Errorf("output: unknown mode %q", c.Output.Mode)
	}
	if c.Audio.FramesPerBuffer <= 0 {
		return fmt.Errorf("audio: frames_per_buffer must be positive")
	}
	return nil
}

// Seconds converts fractional seconds from config into a duration.
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	for _, p := range []string{cfg.Paths.StateDir, filepath.Dir(cfg.Paths.LogPath), filepath.Dir(cfg.Paths.HistoryPath)} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLOWSTATE_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("FLOWSTATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FLOWSTATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("FLOWSTATE_ASR_BACKEND"); v != "" {
		cfg.ASR.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("FLOWSTATE_OUTPUT_MODE"); v != "" {
		cfg.Output.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("FLOWSTATE_NOTIFY"); v != "" {
		cfg.UI.Notify = v != "0" && strings.ToLower(v) != "false"
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" && cfg.Formatter.APIKey == "" {
		cfg.Formatter.APIKey = v
	}
	if cfg.ASR.APIKey == "" {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.ASR.APIKey = v
		} else if v := os.Getenv("GROQ_API_KEY"); v != "" {
			cfg.ASR.APIKey = v
		}
	}
}
