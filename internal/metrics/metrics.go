package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Block outcomes for AudioBlocks.
const (
	BlockProcessed = "processed"
	BlockDropped   = "dropped"
	BlockIdle      = "idle"
)

// Control message outcomes for ControlMessages.
const (
	ControlApplied = "applied"
	ControlDropped = "dropped"
	ControlIgnored = "ignored"
)

// Metrics contains all Prometheus metrics for the transcription server
type Metrics struct {
	// Audio pipeline
	AudioBlocks     *prometheus.CounterVec
	ChunksProcessed prometheus.Counter
	ChunkDuration   prometheus.Histogram
	ChunkPeak       prometheus.Histogram
	Recording       prometheus.Gauge

	// Recognition
	DecodeFailures       prometheus.Counter
	TranscriptsPublished *prometheus.CounterVec

	// Sessions
	ActiveSessions  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	LaggedEvents    prometheus.Counter
	ControlMessages *prometheus.CounterVec
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AudioBlocks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "s2t_audio_blocks_total",
			Help: "Capture blocks seen by the audio callback, by outcome",
		}, []string{"result"}),
		ChunksProcessed: f.NewCounter(prometheus.CounterOpts{
			Name: "s2t_audio_chunks_total",
			Help: "One-second chunks resampled and fed to the recognizer",
		}),
		ChunkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "s2t_chunk_processing_seconds",
			Help:    "Time spent normalizing and recognizing one chunk",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		ChunkPeak: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "s2t_chunk_peak_amplitude",
			Help:    "Peak absolute amplitude of each chunk before normalization",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		Recording: f.NewGauge(prometheus.GaugeOpts{
			Name: "s2t_recording",
			Help: "1 while recording is enabled",
		}),
		DecodeFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "s2t_decode_failures_total",
			Help: "Chunks the recognizer reported as failed",
		}),
		TranscriptsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "s2t_transcripts_published_total",
			Help: "Transcript events published to the broadcaster, by kind",
		}, []string{"kind"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "s2t_ws_sessions_active",
			Help: "Currently connected websocket clients",
		}),
		SessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "s2t_ws_sessions_total",
			Help: "Websocket clients accepted since start",
		}),
		LaggedEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "s2t_subscriber_lagged_events_total",
			Help: "Transcript events skipped by slow websocket clients",
		}),
		ControlMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "s2t_control_messages_total",
			Help: "Inbound client control messages, by outcome",
		}, []string{"result"}),
	}
}
