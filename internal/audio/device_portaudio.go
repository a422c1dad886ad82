//go:build whisper

package audio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// DeviceSource captures from a PortAudio input device.
type DeviceSource struct {
	preferred string
	frames    int
	channels  int

	stream *portaudio.Stream
	buf    []float32
	inited bool
}

// NewDeviceSource returns a microphone source. preferred is matched as a
// case-insensitive substring of the device name; empty means system default.
func NewDeviceSource(preferred string, framesPerBuffer, channels int) *DeviceSource {
	if framesPerBuffer <= 0 {
		framesPerBuffer = 1024
	}
	if channels <= 0 {
		channels = 1
	}
	return &DeviceSource{preferred: preferred, frames: framesPerBuffer, channels: channels}
}

func (s *DeviceSource) Open() (Format, error) {
	if err := portaudio.Initialize(); err != nil {
		return Format{}, fmt.Errorf("%w: portaudio init: %v", ErrInputUnavailable, err)
	}
	s.inited = true
	dev, err := selectDevice(s.preferred)
	if err != nil {
		s.terminate()
		return Format{}, fmt.Errorf("%w: %v", ErrInputUnavailable, err)
	}
	channels := s.channels
	if dev.MaxInputChannels < channels {
		channels = dev.MaxInputChannels
	}
	rate := dev.DefaultSampleRate
	s.buf = make([]float32, s.frames*channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      rate,
		FramesPerBuffer: s.frames,
	}, &s.buf)
	if err != nil {
		s.terminate()
		return Format{}, fmt.Errorf("%w: open stream on %s: %v", ErrInputUnavailable, dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		s.terminate()
		return Format{}, fmt.Errorf("%w: start stream on %s: %v", ErrInputUnavailable, dev.Name, err)
	}
	s.stream = stream
	return Format{SampleRate: int(rate), Channels: channels}, nil
}

func (s *DeviceSource) Read(buf []float32) (int, error) {
	if s.stream == nil {
		return 0, errors.New("device source not open")
	}
	if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return 0, fmt.Errorf("stream read: %w", err)
	}
	return copy(buf, s.buf), nil
}

func (s *DeviceSource) Close() error {
	var err error
	if s.stream != nil {
		_ = s.stream.Stop()
		err = s.stream.Close()
		s.stream = nil
	}
	s.terminate()
	return err
}

func (s *DeviceSource) terminate() {
	if s.inited {
		_ = portaudio.Terminate()
		s.inited = false
	}
}

// InputDevice describes one capture-capable device.
type InputDevice struct {
	Index     int     `json:"index"`
	Name      string  `json:"name"`
	Channels  int     `json:"channels"`
	RateHz    float64 `json:"rate_hz"`
	LatencyMs float64 `json:"latency_ms"`
	Default   bool    `json:"default"`
}

// ListInputDevices enumerates devices with at least one input channel.
func ListInputDevices() ([]InputDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	def, _ := portaudio.DefaultInputDevice()
	out := []InputDevice{}
	for i, d := range devs {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, InputDevice{
			Index:     i,
			Name:      d.Name,
			Channels:  d.MaxInputChannels,
			RateHz:    d.DefaultSampleRate,
			LatencyMs: d.DefaultLowInputLatency.Seconds() * 1000,
			Default:   def != nil && d.Name == def.Name,
		})
	}
	return out, nil
}

// ProbeInput reports whether PortAudio can initialise at all.
func ProbeInput() error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	return portaudio.Terminate()
}

func selectDevice(preferred string) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if preferred != "" {
		for _, d := range devs {
			if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(preferred)) {
				return d, nil
			}
		}
	}
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		return def, nil
	}
	for _, d := range devs {
		if d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input devices found")
}
