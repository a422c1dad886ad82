//go:build !whisper

package audio

import "fmt"

// DeviceSource is unavailable without the whisper build tag (PortAudio).
type DeviceSource struct{}

// NewDeviceSource returns a source that always fails to open.
func NewDeviceSource(preferred string, framesPerBuffer, channels int) *DeviceSource {
	return &DeviceSource{}
}

func (s *DeviceSource) Open() (Format, error) {
	return Format{}, fmt.Errorf("%w: build with '-tags whisper' to enable microphone capture (PortAudio required)", ErrInputUnavailable)
}

func (s *DeviceSource) Read(buf []float32) (int, error) {
	return 0, ErrInputUnavailable
}

func (s *DeviceSource) Close() error { return nil }

// InputDevice describes one capture-capable device.
type InputDevice struct {
	Index     int     `json:"index"`
	Name      string  `json:"name"`
	Channels  int     `json:"channels"`
	RateHz    float64 `json:"rate_hz"`
	LatencyMs float64 `json:"latency_ms"`
	Default   bool    `json:"default"`
}

// ListInputDevices needs PortAudio.
func ListInputDevices() ([]InputDevice, error) {
	return nil, fmt.Errorf("build with '-tags whisper' to enable microphone listing (PortAudio required)")
}

// ProbeInput needs PortAudio.
func ProbeInput() error {
	return fmt.Errorf("not built with PortAudio (use -tags whisper)")
}
