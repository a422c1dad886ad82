package segment

import (
	"fmt"
	"strings"

	"flowstate/internal/config"
)

// Detector decides whether one canonical buffer is silence.
type Detector interface {
	Silent(samples []float32, rms float64) bool
}

// RMSDetector treats a buffer as silence when its RMS is below Threshold.
// An empty buffer has RMS 0 and is silence.
type RMSDetector struct {
	Threshold float64
}

func (d RMSDetector) Silent(_ []float32, rms float64) bool {
	return rms < d.Threshold
}

// NewDetector builds the detector named by segmenter.detector.
func NewDetector(cfg *config.Config) (Detector, error) {
	switch strings.ToLower(cfg.Segmenter.Detector) {
	case "", "rms":
		return RMSDetector{Threshold: cfg.Segmenter.SilenceThreshold}, nil
	case "webrtc":
		d, err := NewWebRTCDetector(cfg.Segmenter.VADAggressiveness, cfg.Segmenter.SilenceThreshold)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown silence detector %q", cfg.Segmenter.Detector)
	}
}
