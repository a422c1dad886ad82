package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"flowstate/internal/control"
	"flowstate/internal/daemon"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// API keys usually live in a .env next to where the daemon is started.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	root := &cobra.Command{
		Use:   "flowstate",
		Short: "FlowState, push-to-talk dictation with live transcription",
		Long: `FlowState records while you hold the hotkey, cuts the audio into chunks at natural pauses,
transcribes the chunks concurrently (whisper.cpp locally or an OpenAI-compatible API), formats
the merged text for the app you are in and pastes it.

Key commands:
  start|stop|restart                 Daemon lifecycle
  record press|release|toggle        Drive the hotkey from scripts or a window manager
  status [--json] | watch            State, last transcripts, live meter and preview
  transcribe <wav>                   Run the pipeline over a file
  history [--stats]                  Past dictations and time saved
  mic list|set                       Select microphone (alias: microphone, mics)
  doctor|setup                       Check backends and prerequisites
  service install|uninstall|status   launchd helper (macOS)

Notable flags/env:
  --metrics-addr <addr>     Enable /metrics (Prometheus)
  Env overrides: FLOWSTATE_METRICS_ADDR, FLOWSTATE_ASR_BACKEND, FLOWSTATE_OUTPUT_MODE,
                 FLOWSTATE_LOG_LEVEL/FORMAT, FLOWSTATE_NOTIFY, GROQ_API_KEY, OPENAI_API_KEY`,
		Example: `  flowstate start --backend openai
  flowstate record toggle --app Slack
  flowstate watch
  flowstate transcribe memo.wav --app Mail
  flowstate history --stats
  flowstate service install --with-keys`,
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
	}

	root.Version = version
	root.SetVersionTemplate("FlowState v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML). Defaults to ~/.config/flowstate/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(daemon.NewStartCmd(cfgPath))
	root.AddCommand(daemon.NewStopCmd(cfgPath))
	root.AddCommand(daemon.NewRestartCmd(cfgPath))
	root.AddCommand(control.NewStatusCmd(cfgPath))
	root.AddCommand(control.NewWatchCmd(cfgPath))
	root.AddCommand(control.NewRecordCmd(cfgPath))
	root.AddCommand(control.NewReloadCmd(cfgPath))
	root.AddCommand(control.NewHistoryCmd(cfgPath))
	root.AddCommand(control.NewTailLogCmd(cfgPath))
	root.AddCommand(control.NewMicCmd(cfgPath))
	root.AddCommand(control.NewTestOutputCmd(cfgPath))
	root.AddCommand(control.NewTranscribeCmd(cfgPath))
	root.AddCommand(control.NewDoctorCmd(cfgPath))
	root.AddCommand(control.NewServiceCmd(cfgPath))
	root.AddCommand(control.NewSetupCmd(cfgPath))
	root.AddCommand(control.NewHealthCmd(cfgPath))

	// Hidden internal serve command used by start.
	root.AddCommand(daemon.NewServeCmd(cfgPath))

	applyColorHelp(root)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return root.ExecuteContext(ctx)
}

func applyColorHelp(root *cobra.Command) {
	const (
		boldBlue = "\033[1;34m"
		green    = "\033[32m"
		bold     = "\033[1m"
		dim      = "\033[2m"
		reset    = "\033[0m"
	)
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			defaultHelp(cmd, args)
			return
		}
		out := cmd.OutOrStdout()
		write := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }
		writeln := func(line string) { _, _ = fmt.Fprintln(out, line) }

		write("%sFlowState%s, push-to-talk dictation %s(v%s)%s\n", boldBlue, reset, dim, version, reset)
		write("%sHold the hotkey, talk, release. Chunks transcribe while you speak.%s\n\n", dim, reset)

		write("%sUsage%s\n", bold, reset)
		write("  flowstate [command] [flags]\n\n")

		write("%sKey commands%s\n", bold, reset)
		writeln("  start|stop|restart          daemon lifecycle (start --foreground for launchd)")
		writeln("  record press|release|toggle hotkey events over the control socket")
		writeln("  status [--json]             state, pending chunks, last transcripts")
		writeln("  watch [--once]              live level meter, spectrum and preview")
		writeln("  transcribe <wav>            run the full pipeline over a file")
		writeln("  history [--stats|--clear]   past dictations and minutes saved")
		writeln("  mic list|set                select input device (alias: microphone, mics)")
		writeln("  doctor|setup                check backends, model, hooks, portaudio")
		writeln("  reload                      reread formatter/output config")
		writeln("  test-output \"text\"          format and deliver sample text")
		writeln("  service install|uninstall|status manage launchd plist (macOS)")
		writeln("")

		write("%sNotable flags & env%s\n", bold, reset)
		writeln("  --metrics-addr <addr>   enable /metrics (Prometheus)")
		writeln("  --backend <name>        whisper or openai for this run")
		writeln("  --output <mode>         paste, clipboard, stdout or hook for this run")
		writeln("  -c, --config <path>     config file (default ~/.config/flowstate/config.toml)")
		writeln("  Env: FLOWSTATE_METRICS_ADDR=host:port, FLOWSTATE_LOG_LEVEL=debug,")
		writeln("       FLOWSTATE_LOG_FORMAT=json, FLOWSTATE_NOTIFY=0,")
		writeln("       GROQ_API_KEY (formatter, remote asr), OPENAI_API_KEY (remote asr)")
		writeln("")

		write("%sExamples%s\n", bold, reset)
		writeln("  flowstate start --metrics-addr 127.0.0.1:9317")
		writeln("  flowstate record toggle --app Slack")
		writeln("  flowstate transcribe memo.wav --app Mail")
		writeln("  flowstate mic set --index 1")
		writeln("  flowstate service install --with-keys")
		writeln("")

		write("%sCommands%s\n", bold, reset)
		for _, c := range cmd.Commands() {
			if c.Hidden {
				continue
			}
			write("  %s%-15s%s %s\n", green, c.Name(), reset, c.Short)
		}
	})
}
