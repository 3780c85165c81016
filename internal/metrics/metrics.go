package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_sessions_active",
		Help: "Currently open voice sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_sessions_total",
		Help: "Total voice sessions accepted",
	})

	FramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_frames_total",
		Help: "Total audio frames received",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Per-stage latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"stage"})

	RoundDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_round_duration_seconds",
		Help:    "End-to-end latency from frame receipt to terminal message",
		Buckets: []float64{0.1, 0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0, 10.0},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})

	EmptyTranscripts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "asr_empty_transcripts_total",
		Help: "Frames where the engine heard nothing",
	})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tool_calls_total",
		Help: "Tool invocations by tool name and outcome",
	}, []string{"tool", "status"})

	ModelCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "model_calls_total",
		Help: "Language model calls by outcome",
	}, []string{"status"})
)
