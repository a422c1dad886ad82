package audio

import (
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVSource replays a PCM WAV file as if it were a live input.
type WAVSource struct {
	path string
	f    *os.File
	dec  *wav.Decoder
	fmt  Format
	buf  *goaudio.IntBuffer
	full float64
}

// NewWAVSource returns a source over the WAV file at path.
func NewWAVSource(path string) *WAVSource {
	return &WAVSource{path: path}
}

func (s *WAVSource) Open() (Format, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return Format{}, fmt.Errorf("%w: %v", ErrInputUnavailable, err)
	}
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		_ = f.Close()
		return Format{}, fmt.Errorf("%w: %s is not a valid WAV file", ErrInputUnavailable, s.path)
	}
	if dec.BitDepth == 0 || dec.NumChans == 0 {
		_ = f.Close()
		return Format{}, fmt.Errorf("%w: %s has no PCM format info", ErrInputUnavailable, s.path)
	}
	s.f = f
	s.dec = dec
	s.fmt = Format{SampleRate: int(dec.SampleRate), Channels: int(dec.NumChans)}
	s.full = math.Pow(2, float64(dec.BitDepth)-1)
	return s.fmt, nil
}

func (s *WAVSource) Read(buf []float32) (int, error) {
	if s.dec == nil {
		return 0, io.EOF
	}
	if s.buf == nil || len(s.buf.Data) != len(buf) {
		s.buf = &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: s.fmt.Channels, SampleRate: s.fmt.SampleRate},
			Data:           make([]int, len(buf)),
			SourceBitDepth: int(s.dec.BitDepth),
		}
	}
	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil && err != io.EOF {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	// keep whole frames only
	n -= n % s.fmt.Channels
	for i := 0; i < n; i++ {
		buf[i] = float32(float64(s.buf.Data[i]) / s.full)
	}
	return n, nil
}

func (s *WAVSource) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	s.dec = nil
	return err
}

// ReadWAV decodes a whole WAV file into canonical mono samples.
func ReadWAV(path string) ([]float32, error) {
	src := NewWAVSource(path)
	format, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()
	conv, err := NewResampler(format)
	if err != nil {
		return nil, err
	}
	buf := make([]float32, 4096*format.Channels)
	var out []float32
	for {
		n, err := src.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		converted, err := conv.Convert(buf[:n])
		if err != nil {
			return nil, err
		}
		out = append(out, converted...)
	}
	return out, nil
}

// WriteWAV encodes canonical samples as 16-bit mono PCM.
func WriteWAV(w io.WriteSeeker, samples []float32) error {
	enc := wav.NewEncoder(w, SampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, v := range samples {
		c := math.Max(-1, math.Min(1, float64(v)))
		data[i] = int(math.Round(c * 32767))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return enc.Close()
}

// SaveWAV writes samples to a file at path.
func SaveWAV(path string, samples []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, samples); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
