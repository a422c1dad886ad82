package control

import (
	"fmt"
	"os"
	"strings"

	"flowstate/internal/asr"
	"flowstate/internal/config"

	"github.com/spf13/cobra"
)

// NewSetupCmd writes the config file if missing and reports what the chosen
// speech backend still needs.
func NewSetupCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create config and check the speech backend prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := config.MustStatePaths(cfg); err != nil {
				return err
			}
			cmd.Println("config:", cfg.Paths.ConfigPath)
			cmd.Println("state: ", cfg.Paths.StateDir)
			for _, line := range setupAdvice(cfg) {
				cmd.Println(line)
			}
			return nil
		},
	}
}

func setupAdvice(cfg *config.Config) []string {
	var out []string
	switch strings.ToLower(cfg.ASR.Backend) {
	case "openai":
		if cfg.ASR.APIKey == "" {
			out = append(out, "asr: set asr.api_key or OPENAI_API_KEY/GROQ_API_KEY for the remote backend")
		} else {
			out = append(out, fmt.Sprintf("asr: remote %s at %s", cfg.ASR.RemoteModel, cfg.ASR.BaseURL))
		}
	default:
		if !asr.WhisperBuilt {
			out = append(out, "asr: this binary has no whisper.cpp support; rebuild with '-tags whisper' or set asr.backend = \"openai\"")
		}
		if _, err := os.Stat(os.ExpandEnv(cfg.ASR.ModelPath)); err != nil {
			out = append(out, fmt.Sprintf("asr: place a ggml model at %s (or point asr.model_path at one)", cfg.ASR.ModelPath))
		} else {
			out = append(out, "asr: model present at "+cfg.ASR.ModelPath)
		}
	}
	if cfg.Formatter.Enabled && cfg.Formatter.APIKey == "" {
		out = append(out, "formatter: no GROQ_API_KEY, rule-based formatting only")
	}
	return out
}
