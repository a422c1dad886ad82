// Package doctor checks that the configured backends can actually run.
package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"flowstate/internal/asr"
	"flowstate/internal/audio"
	"flowstate/internal/config"
	"flowstate/internal/segment"

	"github.com/atotto/clipboard"
)

// Result represents a diagnostic check.
type Result struct {
	Name   string
	Pass   bool
	Detail string
}

// Run executes doctor checks for the configured backends only.
func Run(cfg *config.Config) []Result {
	results := []Result{
		checkFile("config path", cfg.Paths.ConfigPath),
		checkStateDir(cfg.Paths.StateDir),
	}
	results = append(results, checkASR(cfg)...)
	results = append(results, checkDetector(cfg), checkFormatter(cfg))
	results = append(results, checkOutput(cfg)...)
	results = append(results, checkPortAudioPkgConfig(), checkPortAudio())
	return results
}

func checkFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

func checkStateDir(dir string) Result {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{Name: "state dir", Pass: false, Detail: err.Error()}
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Result{Name: "state dir", Pass: false, Detail: "not writable: " + err.Error()}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return Result{Name: "state dir", Pass: true, Detail: dir}
}

func checkASR(cfg *config.Config) []Result {
	if strings.EqualFold(cfg.ASR.Backend, "openai") {
		r := Result{Name: "asr", Pass: true, Detail: fmt.Sprintf("remote %s at %s", cfg.ASR.RemoteModel, cfg.ASR.BaseURL)}
		if strings.TrimSpace(cfg.ASR.APIKey) == "" {
			r = Result{Name: "asr", Pass: false, Detail: "no api key (set asr.api_key, OPENAI_API_KEY or GROQ_API_KEY)"}
		}
		return []Result{r}
	}
	build := Result{Name: "asr", Pass: asr.WhisperBuilt, Detail: "whisper.cpp linked"}
	if !asr.WhisperBuilt {
		build.Detail = "built without whisper.cpp (rebuild with -tags whisper or use asr.backend = \"openai\")"
	}
	return []Result{build, checkFile("model file", cfg.ASR.ModelPath)}
}

func checkDetector(cfg *config.Config) Result {
	if _, err := segment.NewDetector(cfg); err != nil {
		return Result{Name: "vad", Pass: false, Detail: err.Error()}
	}
	name := cfg.Segmenter.Detector
	if name == "" {
		name = "rms"
	}
	return Result{Name: "vad", Pass: true, Detail: name}
}

// checkFormatter never fails: without a key the rule-based path is used.
func checkFormatter(cfg *config.Config) Result {
	switch {
	case !cfg.Formatter.Enabled:
		return Result{Name: "formatter", Pass: true, Detail: "llm disabled, rules only"}
	case strings.TrimSpace(cfg.Formatter.APIKey) == "":
		return Result{Name: "formatter", Pass: true, Detail: "no GROQ_API_KEY, rules only"}
	default:
		return Result{Name: "formatter", Pass: true, Detail: fmt.Sprintf("%s for %s", cfg.Formatter.Model, strings.Join(cfg.Formatter.LLMCategories, ", "))}
	}
}

func checkOutput(cfg *config.Config) []Result {
	mode := strings.ToLower(cfg.Output.Mode)
	switch mode {
	case "paste", "clipboard":
		if clipboard.Unsupported {
			return []Result{{Name: "output", Pass: false, Detail: "no clipboard utility found (install xclip, xsel or wl-clipboard)"}}
		}
		return []Result{{Name: "output", Pass: true, Detail: mode}}
	case "hook":
		var out []Result
		if cfg.Hook.Command != "" {
			out = append(out, checkHookExecutable("hook.command", cfg.Hook.Command))
		}
		for i, h := range cfg.Hooks {
			out = append(out, checkHookExecutable(fmt.Sprintf("hooks[%d]", i), h.Command))
		}
		if len(out) == 0 {
			out = append(out, Result{Name: "output", Pass: false, Detail: "output.mode is hook but no hook is configured"})
		}
		return out
	default:
		return []Result{{Name: "output", Pass: true, Detail: mode}}
	}
}

func checkHookExecutable(label, cmd string) Result {
	if cmd == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	path := os.ExpandEnv(cmd)
	// If contains a path separator, treat as explicit path.
	if strings.ContainsAny(path, `/\`) {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Pass: false, Detail: "is a directory; point the hook at an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}

func checkPortAudioPkgConfig() Result {
	pkg, err := exec.LookPath("pkg-config")
	if err != nil {
		return Result{Name: "pkg-config", Pass: false, Detail: "pkg-config not found (brew install pkg-config)"}
	}
	cmd := exec.Command(pkg, "--exists", "portaudio-2.0")
	if err := cmd.Run(); err != nil {
		return Result{Name: "portaudio", Pass: false, Detail: "portaudio-2.0 not found (brew install portaudio)"}
	}
	versionCmd := exec.Command(pkg, "--modversion", "portaudio-2.0")
	if out, err := versionCmd.Output(); err == nil {
		return Result{Name: "portaudio", Pass: true, Detail: strings.TrimSpace(string(out))}
	}
	return Result{Name: "portaudio", Pass: true, Detail: "found via pkg-config"}
}

func checkPortAudio() Result {
	if err := audio.ProbeInput(); err != nil {
		return Result{Name: "microphone", Pass: false, Detail: err.Error()}
	}
	return Result{Name: "microphone", Pass: true, Detail: "default input opens"}
}
