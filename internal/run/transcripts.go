package run

import (
	"context"

	"flowstate/internal/dictation"
)

// transcriptWorker keeps the status tail fed from finished sessions.
func (s *Server) transcriptWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.ctrl.Finished():
			s.recordTranscript(t)
			switch t.Result {
			case dictation.ResultDelivered:
				s.logger.Debugf("session %s delivered %d chars", t.ID, len(t.Text))
			case dictation.ResultEmpty:
			default:
				s.logger.Warnf("session %s ended with %s", t.ID, t.Result)
			}
		}
	}
}
