// Package metrics holds the prometheus collectors for the dictation pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Task outcomes.
const (
	OutcomeText      = "text"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
)

// Metrics contains all collectors, registered on their own registry.
type Metrics struct {
	reg *prometheus.Registry

	// capture
	BuffersProcessed prometheus.Counter
	ConverterDrops   prometheus.Counter
	ChunksEmitted    *prometheus.CounterVec
	ChunkDuration    prometheus.Histogram

	// transcription
	TasksInFlight         prometheus.Gauge
	TaskOutcomes          *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram
	DrainDuration         prometheus.Histogram

	// sessions
	Sessions         *prometheus.CounterVec
	SessionAudio     prometheus.Histogram
	Formatting       *prometheus.CounterVec
	FormatDuration   prometheus.Histogram
	WordsTranscribed prometheus.Counter

	// daemon
	ControlRequests *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,

		BuffersProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "flowstate_capture_buffers_total",
			Help: "Capture buffers converted and segmented",
		}),
		ConverterDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "flowstate_capture_converter_drops_total",
			Help: "Capture buffers dropped because resampling failed",
		}),
		ChunksEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_chunks_emitted_total",
			Help: "Chunks cut by the segmenter",
		}, []string{"final"}),
		ChunkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowstate_chunk_duration_seconds",
			Help:    "Audio length of emitted chunks",
			Buckets: prometheus.LinearBuckets(0, 1, 12),
		}),
		TasksInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "flowstate_transcription_tasks_in_flight",
			Help: "Chunk transcriptions currently running",
		}),
		TaskOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_transcription_tasks_total",
			Help: "Resolved chunk transcriptions by outcome",
		}, []string{"outcome"}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowstate_transcription_duration_seconds",
			Help:    "Latency of a single chunk transcription",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		DrainDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowstate_drain_duration_seconds",
			Help:    "Time between stop and the last pending chunk resolving",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		Sessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_sessions_total",
			Help: "Recording sessions by result",
		}, []string{"result"}),
		SessionAudio: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowstate_session_audio_seconds",
			Help:    "Captured audio per session",
			Buckets: prometheus.ExponentialBuckets(1, 2, 9), // 1s to ~4 minutes
		}),
		Formatting: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_format_total",
			Help: "Formatted transcripts by path (llm or rules)",
		}, []string{"path"}),
		FormatDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowstate_format_duration_seconds",
			Help:    "Time spent formatting a final transcript",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		WordsTranscribed: f.NewCounter(prometheus.CounterOpts{
			Name: "flowstate_words_total",
			Help: "Words delivered to the output",
		}),
		ControlRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flowstate_control_requests_total",
			Help: "Control socket requests by op",
		}, []string{"op"}),
	}
}

// Registry exposes the registry for tests and custom handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the collectors in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) BufferProcessed() {
	if m != nil {
		m.BuffersProcessed.Inc()
	}
}

func (m *Metrics) ConverterDrop() {
	if m != nil {
		m.ConverterDrops.Inc()
	}
}

func (m *Metrics) ChunkEmitted(final bool, d time.Duration) {
	if m == nil {
		return
	}
	label := "false"
	if final {
		label = "true"
	}
	m.ChunksEmitted.WithLabelValues(label).Inc()
	m.ChunkDuration.Observe(d.Seconds())
}

func (m *Metrics) TaskStarted() {
	if m != nil {
		m.TasksInFlight.Inc()
	}
}

// TaskResolved records one finished transcription. A discarded task still
// leaves the in-flight gauge.
func (m *Metrics) TaskResolved(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.TasksInFlight.Dec()
	m.TaskOutcomes.WithLabelValues(outcome).Inc()
	m.TranscriptionDuration.Observe(took.Seconds())
}

func (m *Metrics) Drained(took time.Duration) {
	if m != nil {
		m.DrainDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) SessionFinished(result string, audio time.Duration, words int) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(result).Inc()
	m.SessionAudio.Observe(audio.Seconds())
	if words > 0 {
		m.WordsTranscribed.Add(float64(words))
	}
}

func (m *Metrics) Formatted(usedLLM bool, took time.Duration) {
	if m == nil {
		return
	}
	path := "rules"
	if usedLLM {
		path = "llm"
	}
	m.Formatting.WithLabelValues(path).Inc()
	m.FormatDuration.Observe(took.Seconds())
}

// ControlRequest counts one control socket request. Unknown ops share a label.
func (m *Metrics) ControlRequest(op string, known bool) {
	if m == nil {
		return
	}
	if !known {
		op = "unknown"
	}
	m.ControlRequests.WithLabelValues(op).Inc()
}
