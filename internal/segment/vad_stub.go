//go:build !whisper

package segment

import "errors"

// WebRTCDetector needs cgo and the whisper build tag.
type WebRTCDetector struct{}

// NewWebRTCDetector reports that the VAD is not part of this build.
func NewWebRTCDetector(aggressiveness int, threshold float64) (*WebRTCDetector, error) {
	return nil, errors.New("webrtc detector not built (use -tags whisper)")
}

func (d *WebRTCDetector) Silent(samples []float32, rms float64) bool { return rms == 0 }
