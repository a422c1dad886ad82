// Package spectrum turns capture buffers into a smoothed 8-band level signal
// for the overlay. Nothing here affects segmentation or transcripts.
package spectrum

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"flowstate/internal/audio"
)

const (
	// Bands is the number of display bands.
	Bands = 8
	// WindowSize is the number of samples fed to each FFT.
	WindowSize = 1024

	floorDB   = -35.0
	ceilDB    = 0.0
	minPower  = 1e-9
	releaseK  = 0.7
	releaseIn = 0.3
)

// BandEdges are the band boundaries in Hz. Band i covers [BandEdges[i], BandEdges[i+1]).
var BandEdges = [Bands + 1]float64{80, 200, 400, 700, 1100, 1700, 2600, 4000, 8000}

// Frame is one analysis result.
type Frame struct {
	Raw      [Bands]float64 `json:"raw"`
	Smoothed [Bands]float64 `json:"smoothed"`
}

// Analyzer is not safe for concurrent use; it runs on the capture producer.
type Analyzer struct {
	fft    *fourier.FFT
	window []float64
	coeffs []complex128
	ranges [Bands][2]int
	prev   [Bands]float64
	latest Frame
}

// NewAnalyzer returns an analyzer with zeroed smoothing state.
func NewAnalyzer() *Analyzer {
	a := &Analyzer{
		fft:    fourier.NewFFT(WindowSize),
		window: make([]float64, WindowSize),
	}
	binHz := float64(audio.SampleRate) / WindowSize
	bins := WindowSize / 2
	for b := 0; b < Bands; b++ {
		lo := int(math.Ceil(BandEdges[b] / binHz))
		hi := int(math.Ceil(BandEdges[b+1] / binHz))
		if hi > bins {
			hi = bins
		}
		if hi <= lo {
			hi = lo + 1
		}
		a.ranges[b] = [2]int{lo, hi}
	}
	return a
}

// Process analyses the first WindowSize samples of buf, zero-padding short
// buffers.
func (a *Analyzer) Process(buf []float32) Frame {
	n := copy32(a.window, buf)
	for i := n; i < WindowSize; i++ {
		a.window[i] = 0
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.window)

	var f Frame
	for b := 0; b < Bands; b++ {
		lo, hi := a.ranges[b][0], a.ranges[b][1]
		var sum float64
		for k := lo; k < hi; k++ {
			sum += cmplx.Abs(a.coeffs[k]) * 2 / WindowSize
		}
		f.Raw[b] = Normalize(sum / float64(hi-lo))
		f.Smoothed[b] = Smooth(a.prev[b], f.Raw[b])
	}
	a.prev = f.Smoothed
	a.latest = f
	return f
}

// Latest returns the most recent frame.
func (a *Analyzer) Latest() Frame { return a.latest }

// Reset clears smoothing state for a new session.
func (a *Analyzer) Reset() {
	a.prev = [Bands]float64{}
	a.latest = Frame{}
}

// Normalize maps a mean band magnitude to [0,1]: dB against a fixed
// [-35, 0] window, clamped, then squared.
func Normalize(avg float64) float64 {
	db := 10 * math.Log10(math.Max(avg, minPower))
	v := (db - floorDB) / (ceilDB - floorDB)
	v = math.Min(math.Max(v, 0), 1)
	return v * v
}

// Smooth snaps up to a louder value and decays toward a quieter one.
func Smooth(prev, next float64) float64 {
	if next > prev {
		return next
	}
	return prev*releaseK + next*releaseIn
}

func copy32(dst []float64, src []float32) int {
	n := len(src)
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = float64(src[i])
	}
	return n
}
