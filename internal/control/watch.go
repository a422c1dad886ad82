package control

import (
	"fmt"
	"strings"
	"time"

	"flowstate/internal/config"

	"github.com/spf13/cobra"
)

var barRunes = []rune("▁▂▃▄▅▆▇█")

// NewWatchCmd draws the live level meter and spectrum bars from the daemon.
func NewWatchCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Show the live level meter, spectrum and preview",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			once, _ := cmd.Flags().GetBool("once")
			every := time.Duration(cfg.Audio.FramesPerBuffer) * time.Second / config.SampleRate
			if every < 20*time.Millisecond {
				every = 20 * time.Millisecond
			}
			out := cmd.OutOrStdout()
			tick := time.NewTicker(every)
			defer tick.Stop()
			for {
				var lvl Level
				if err := Call(cfg.Paths.SocketPath, Request{Op: OpLevel}, &lvl); err != nil {
					return err
				}
				if once {
					_, err := fmt.Fprintln(out, renderLevel(lvl, 60))
					return err
				}
				fmt.Fprintf(out, "\r\033[K%s", renderLevel(lvl, 60))
				select {
				case <-cmd.Context().Done():
					fmt.Fprintln(out)
					return nil
				case <-tick.C:
				}
			}
		},
	}
	cmd.Flags().Bool("once", false, "print one reading and exit")
	return cmd
}

// renderLevel draws one status line: state, level meter, bars, preview.
func renderLevel(l Level, previewWidth int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s ", l.State)
	b.WriteString(meter(l.Level, 10))
	b.WriteByte(' ')
	for _, v := range l.Bands {
		b.WriteRune(bar(v))
	}
	if l.State != "idle" {
		fmt.Fprintf(&b, " %5.1fs", l.Elapsed)
	}
	if p := strings.TrimSpace(l.Preview); p != "" {
		if r := []rune(p); len(r) > previewWidth {
			p = "…" + string(r[len(r)-previewWidth+1:])
		}
		b.WriteString("  ")
		b.WriteString(p)
	}
	return b.String()
}

func meter(v float64, width int) string {
	n := int(clamp01(v)*float64(width) + 0.5)
	return "[" + strings.Repeat("#", n) + strings.Repeat(" ", width-n) + "]"
}

func bar(v float64) rune {
	i := int(clamp01(v) * float64(len(barRunes)-1))
	return barRunes[i]
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

