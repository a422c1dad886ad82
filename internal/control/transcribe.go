package control

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"flowstate/internal/audio"
	"flowstate/internal/config"
	"flowstate/internal/dictation"
	"flowstate/internal/logging"
	"flowstate/internal/output"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewTranscribeCmd runs the full pipeline over a WAV file: the file is
// replayed through capture and the segmenter, chunks are transcribed
// concurrently, merged, formatted and printed.
func NewTranscribeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <wavfile>",
		Short: "Transcribe a WAV file through the dictation pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.ConfigureConsole(cfg)
			if err != nil {
				return err
			}
			app, _ := cmd.Flags().GetString("app")
			deliver, _ := cmd.Flags().GetBool("deliver")
			jsonOut, _ := cmd.Flags().GetBool("json")

			var sink output.Sink = &output.Writer{W: cmd.OutOrStdout()}
			if jsonOut {
				sink = &output.Writer{W: io.Discard}
			}
			if deliver {
				if sink, err = output.New(cfg, logger); err != nil {
					return err
				}
			}
			t, err := TranscribeFile(cmd.Context(), cfg, logger, args[0], app, sink)
			if err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(t)
			}
			return nil
		},
	}
	cmd.Flags().String("app", "", "destination app for profile selection")
	cmd.Flags().Bool("deliver", false, "send the result through output.mode instead of stdout")
	cmd.Flags().Bool("json", false, "print the full result as JSON")
	return cmd
}

// TranscribeFile replays path through a one-off pipeline and returns the
// finished transcript.
func TranscribeFile(ctx context.Context, cfg *config.Config, logger *logrus.Logger, path, app string, sink output.Sink) (dictation.Transcript, error) {
	cfg.UI.Notify = false
	p, err := dictation.NewPipeline(cfg, logger, nil)
	if err != nil {
		return dictation.Transcript{}, err
	}
	defer p.Close()
	ctrl := p.Controller(sink, nil, func() audio.Source { return audio.NewWAVSource(path) })
	defer ctrl.Close()

	if err := ctrl.Start(app); err != nil {
		return dictation.Transcript{}, err
	}
	select {
	case t := <-ctrl.Finished():
		switch t.Result {
		case dictation.ResultDrainFailed:
			return t, fmt.Errorf("transcription did not complete")
		case dictation.ResultDeliveryFailed:
			return t, fmt.Errorf("delivery via %s failed", sink.Name())
		}
		return t, nil
	case <-ctx.Done():
		return dictation.Transcript{}, ctx.Err()
	}
}
