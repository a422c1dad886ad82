package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"flowstate/internal/config"
	"flowstate/internal/logging"
	"flowstate/internal/run"

	"github.com/spf13/cobra"
)

// NewStartCmd starts the daemon (background unless --foreground).
func NewStartCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start flowstate daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := runtimeEnv(cmd)
			if fg, _ := cmd.Flags().GetBool("foreground"); fg {
				for _, kv := range overrides {
					k, v, _ := strings.Cut(kv, "=")
					if err := os.Setenv(k, v); err != nil {
						return fmt.Errorf("set %s: %w", k, err)
					}
				}
				return serve(*cfgPath)
			}
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := ensureNotRunning(cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Paths.PidPath), 0o755); err != nil {
				return err
			}
			self, err := os.Executable()
			if err != nil {
				return err
			}
			child := exec.Command(self, "serve", "--config", cfg.Paths.ConfigPath)
			child.Env = append(os.Environ(), overrides...)
			child.Stdout = os.Stdout
			child.Stderr = os.Stderr
			if err := child.Start(); err != nil {
				return err
			}
			// Wait a moment and confirm pid file appears.
			waited := 0
			for waited < 20 {
				if _, err := os.Stat(cfg.Paths.PidPath); err == nil {
					break
				}
				time.Sleep(100 * time.Millisecond)
				waited++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "flowstate started (pid %d)\n", child.Process.Pid)
			return nil
		},
	}
	cmd.Flags().Bool("foreground", false, "run in this process instead of forking")
	addRuntimeFlags(cmd)
	return cmd
}

// addRuntimeFlags registers the per-run overrides shared by start and serve.
func addRuntimeFlags(cmd *cobra.Command) {
	cmd.Flags().String("metrics-addr", "", "enable metrics at address (e.g., 127.0.0.1:9317) for this run")
	cmd.Flags().String("backend", "", "override asr.backend (whisper or openai) for this run")
	cmd.Flags().String("output", "", "override output.mode (paste, clipboard, stdout, hook) for this run")
}

// runtimeEnv turns the runtime flags into env overrides understood by
// config.Load.
func runtimeEnv(cmd *cobra.Command) []string {
	var env []string
	for flag, key := range map[string]string{
		"metrics-addr": "FLOWSTATE_METRICS_ADDR",
		"backend":      "FLOWSTATE_ASR_BACKEND",
		"output":       "FLOWSTATE_OUTPUT_MODE",
	} {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			env = append(env, key+"="+v)
		}
	}
	sort.Strings(env)
	return env
}

// NewServeCmd runs the daemon foreground (internal).
func NewServeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "serve",
		Short:  "Run flowstate daemon (internal)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, kv := range runtimeEnv(cmd) {
				k, v, _ := strings.Cut(kv, "=")
				if err := os.Setenv(k, v); err != nil {
					return fmt.Errorf("set %s: %w", k, err)
				}
			}
			return serve(*cfgPath)
		},
	}
	addRuntimeFlags(cmd)
	return cmd
}

func serve(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger, err := logging.Configure(cfg)
	if err != nil {
		return err
	}
	return run.Serve(cfg, logger)
}

// NewStopCmd stops the daemon. Sessions in flight get the daemon's close
// grace period to finish delivering.
func NewStopCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop flowstate daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := signalDaemon(cfg, syscall.SIGTERM); err != nil {
				return err
			}
			if wait, _ := cmd.Flags().GetDuration("wait"); wait > 0 {
				if err := waitForShutdown(cfg, wait); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "stopped")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stop signal sent")
			return nil
		},
	}
	cmd.Flags().Duration("wait", 0, "wait up to this long for the daemon to exit")
	return cmd
}

// NewRestartCmd stops then starts.
func NewRestartCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart flowstate daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := signalDaemon(cfg, syscall.SIGTERM); err == nil {
				// the daemon may spend up to its close grace draining a session
				if err := waitForShutdown(cfg, 15*time.Second); err != nil {
					return err
				}
			}
			startCmd := NewStartCmd(cfgPath)
			startCmd.SetOut(cmd.OutOrStdout())
			for _, kv := range runtimeEnv(cmd) {
				k, v, _ := strings.Cut(kv, "=")
				_ = os.Setenv(k, v)
			}
			return startCmd.RunE(startCmd, args)
		},
	}
	addRuntimeFlags(cmd)
	return cmd
}

func signalDaemon(cfg *config.Config, sig syscall.Signal) error {
	pid, err := readPID(cfg.Paths.PidPath)
	if err != nil {
		return fmt.Errorf("daemon not running (%w)", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(sig)
}

func ensureNotRunning(cfg *config.Config) error {
	pid, err := readPID(cfg.Paths.PidPath)
	if err != nil {
		return nil
	}
	// Check if process alive.
	proc, err := os.FindProcess(pid)
	if err == nil {
		if err := proc.Signal(syscall.Signal(0)); err == nil {
			return fmt.Errorf("already running with pid %d", pid)
		}
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, err
	}
	return pid, nil
}

func waitForShutdown(cfg *config.Config, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pid, err := readPID(cfg.Paths.PidPath)
		if err != nil {
			return nil // pid file gone
		}
		proc, _ := os.FindProcess(pid)
		if proc != nil {
			if err := proc.Signal(syscall.Signal(0)); err != nil {
				_ = os.Remove(cfg.Paths.PidPath)
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}
