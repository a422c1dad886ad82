package control

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"flowstate/internal/config"
	"flowstate/internal/doctor"
	"flowstate/internal/format"
	"flowstate/internal/hotkey"
	"flowstate/internal/logging"
	"flowstate/internal/output"

	"github.com/spf13/cobra"
)

// NewStatusCmd queries daemon status.
func NewStatusCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var status Status
			if err := Call(cfg.Paths.SocketPath, Request{Op: OpStatus}, &status); err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "running: %v\nuptime: %.1fs\nstate: %s\n", status.Running, status.UptimeSec, status.State)
			if status.State != "idle" {
				fmt.Fprintf(out, "recording: %.1fs, %d chunks pending\n", status.Elapsed, status.Pending)
				if status.Preview != "" {
					fmt.Fprintf(out, "preview: %s\n", status.Preview)
				}
			}
			if status.LastError != "" {
				fmt.Fprintf(out, "last error: %s\n", status.LastError)
			}
			for _, t := range status.Transcripts {
				fmt.Fprintf(out, "%s  %-9s %s\n", t.Timestamp.Format("15:04:05"), t.Result, t.Text)
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

// NewHealthCmd pings the control socket.
func NewHealthCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Ping the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var resp SimpleResponse
			if err := Call(cfg.Paths.SocketPath, Request{Op: OpHealth}, &resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("unhealthy: %s", resp.Message)
			}
			cmd.Println(resp.Message)
			return nil
		},
	}
}

// NewRecordCmd sends push-to-talk events to the daemon. Bind it to a global
// shortcut: `flowstate record press` on key down, `record release` on key up.
func NewRecordCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "record press|release|toggle",
		Short:     "Send a push-to-talk event",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"press", "release", "toggle"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := hotkey.ParseKind(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			app, _ := cmd.Flags().GetString("app")
			var resp SimpleResponse
			if err := Call(cfg.Paths.SocketPath, Request{Op: kind.String(), App: app}, &resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("%s rejected: %s", kind, resp.Message)
			}
			cmd.Println(resp.Message)
			return nil
		},
	}
	cmd.Flags().String("app", "", "destination app (bundle id or name) used to pick the formatting profile")
	return cmd
}

// NewTailLogCmd tails the main log file (simple last N lines).
func NewTailLogCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail-log",
		Short: "Show last log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("lines")
			return tailFile(cmd, cfg.Paths.LogPath, n)
		},
	}
	cmd.Flags().IntP("lines", "n", 50, "number of lines")
	return cmd
}

func tailFile(cmd *cobra.Command, path string, n int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := lastLines(string(data), n)
	for _, l := range lines {
		cmd.Println(l)
	}
	return nil
}

func lastLines(data string, n int) []string {
	var lines []string
	for _, l := range strings.Split(data, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// NewTestOutputCmd formats text for an app and delivers it like a finished
// dictation would.
func NewTestOutputCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test-output \"some text\"",
		Short: "Format sample text and send it through the configured output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
				cfg.Output.Mode = mode
			}
			logger, err := logging.ConfigureConsole(cfg)
			if err != nil {
				return err
			}
			app, _ := cmd.Flags().GetString("app")
			raw, _ := cmd.Flags().GetBool("raw")
			text := args[0]
			category := ""
			if !raw {
				out := format.New(cfg, logger).Format(cmd.Context(), text, format.Hints{App: app})
				text, category = out.Text, string(out.Category)
				logger.Infof("test-output: category=%s llm=%v took=%s", out.Category, out.UsedLLM, out.Took)
			}
			sink, err := output.New(cfg, logger)
			if err != nil {
				return err
			}
			return sink.Deliver(cmd.Context(), output.Delivery{Text: text, App: app, Category: category})
		},
	}
	cmd.Flags().String("app", "", "destination app for profile selection")
	cmd.Flags().String("mode", "", "override output.mode (paste, clipboard, stdout, hook)")
	cmd.Flags().Bool("raw", false, "skip formatting")
	return cmd
}

// NewReloadCmd asks the daemon to reload formatter and output settings.
func NewReloadCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload formatter/output config in the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var resp SimpleResponse
			if err := Call(cfg.Paths.SocketPath, Request{Op: OpReload}, &resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("reload failed: %s", resp.Message)
			}
			cmd.Println("reload ok:", resp.Message)
			return nil
		},
	}
}

// NewDoctorCmd runs environment checks.
func NewDoctorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check dependencies and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			results := doctor.Run(cfg)
			failed := false
			for _, r := range results {
				status := "ok"
				if !r.Pass {
					status = "fail"
					failed = true
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-4s %s\n", r.Name, status, r.Detail)
			}
			if failed {
				return fmt.Errorf("doctor found issues")
			}
			return nil
		},
	}
}

// NewServiceCmd installs a launchd plist (macOS).
func NewServiceCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage launchd service (macOS)",
	}

	cmd.AddCommand(newServiceInstallCmd(cfgPath))
	cmd.AddCommand(newServiceUninstallCmd())
	cmd.AddCommand(newServiceStatusCmd())
	return cmd
}
