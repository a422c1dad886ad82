package control

import (
	"encoding/json"
	"fmt"

	"flowstate/internal/config"
	"flowstate/internal/history"

	"github.com/spf13/cobra"
)

// NewHistoryCmd prints recent dictations or usage stats.
func NewHistoryCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent dictations (--stats for time saved)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			store, err := history.Open(cfg.Paths.HistoryPath, cfg.History.MaxEntries)
			if err != nil {
				return err
			}
			if wipe, _ := cmd.Flags().GetBool("clear"); wipe {
				if err := store.Clear(); err != nil {
					return err
				}
				cmd.Println("history cleared")
				return nil
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()
			if stats, _ := cmd.Flags().GetBool("stats"); stats {
				st := store.Stats(cfg.History.TypingWPM)
				if jsonOut {
					return json.NewEncoder(out).Encode(st)
				}
				fmt.Fprintf(out, "dictations: %d\nwords: %d\nspoken: %.1fs\ntime saved: %s (typing at %d wpm)\n",
					st.Entries, st.Words, st.SpokenSec, history.FormatSaved(st.SavedMinutes), cfg.History.TypingWPM)
				return nil
			}
			n, _ := cmd.Flags().GetInt("limit")
			entries := store.Recent(n)
			if jsonOut {
				return json.NewEncoder(out).Encode(entries)
			}
			for _, e := range entries {
				app := e.App
				if app == "" {
					app = "-"
				}
				fmt.Fprintf(out, "%s  %-12s %5.1fs  %s\n", e.Timestamp.Format("2006-01-02 15:04"), app, e.DurationSec, e.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 10, "number of entries (0 for all)")
	cmd.Flags().Bool("stats", false, "show totals and time saved")
	cmd.Flags().Bool("clear", false, "delete all history")
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}
