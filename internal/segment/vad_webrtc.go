//go:build whisper

package segment

import (
	"encoding/binary"
	"fmt"
	"math"

	vad "github.com/maxhawkins/go-webrtcvad"

	"flowstate/internal/audio"
)

// 30 ms at 16 kHz
const vadFrameSamples = 480

// WebRTCDetector asks the WebRTC voice activity detector about every 30 ms
// frame in a buffer. The buffer is silence when no frame has voice. Samples
// that do not fill a frame are carried into the next call.
type WebRTCDetector struct {
	v        *vad.VAD
	fallback RMSDetector
	carry    []float32
	frame    []byte
}

// NewWebRTCDetector returns a detector at the given aggressiveness (0-3).
// Buffers too short to judge fall back to the RMS threshold.
func NewWebRTCDetector(aggressiveness int, threshold float64) (*WebRTCDetector, error) {
	v, err := vad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: %w", err)
	}
	if err := v.SetMode(aggressiveness); err != nil {
		return nil, fmt.Errorf("webrtc vad mode %d: %w", aggressiveness, err)
	}
	return &WebRTCDetector{
		v:        v,
		fallback: RMSDetector{Threshold: threshold},
		frame:    make([]byte, vadFrameSamples*2),
	}, nil
}

func (d *WebRTCDetector) Silent(samples []float32, rms float64) bool {
	d.carry = append(d.carry, samples...)
	if len(d.carry) < vadFrameSamples {
		return d.fallback.Silent(samples, rms)
	}
	voiced := false
	judged := false
	off := 0
	for ; off+vadFrameSamples <= len(d.carry); off += vadFrameSamples {
		for i, s := range d.carry[off : off+vadFrameSamples] {
			c := math.Max(-1, math.Min(1, float64(s)))
			binary.LittleEndian.PutUint16(d.frame[i*2:], uint16(int16(c*32767)))
		}
		active, err := d.v.Process(audio.SampleRate, d.frame)
		if err != nil {
			continue
		}
		judged = true
		if active {
			voiced = true
		}
	}
	d.carry = append(d.carry[:0], d.carry[off:]...)
	if !judged {
		return d.fallback.Silent(samples, rms)
	}
	return !voiced
}
