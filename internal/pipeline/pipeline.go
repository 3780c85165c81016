// Package pipeline runs one session's audio frames through normalize →
// transcribe → chat round, emitting progress and terminal messages.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/autumn-voice/gateway/internal/asr"
	"github.com/autumn-voice/gateway/internal/audio"
	"github.com/autumn-voice/gateway/internal/chat"
	"github.com/autumn-voice/gateway/internal/metrics"
	"github.com/autumn-voice/gateway/internal/trace"
)

// Transcriber is the lenient-mode transcription port consumed by the pipeline.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32) (*asr.Result, error)
}

// Config holds one session's pipeline wiring.
type Config struct {
	ASR          Transcriber
	Orchestrator *chat.Orchestrator
	Tracer       *trace.Tracer
}

// Pipeline processes a single session's frames strictly in arrival order.
// It owns the session's conversation; nothing else may touch it.
type Pipeline struct {
	asr    Transcriber
	orch   *chat.Orchestrator
	conv   *chat.Conversation
	tracer *trace.Tracer
}

// New creates a pipeline with a fresh conversation.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		asr:    cfg.ASR,
		orch:   cfg.Orchestrator,
		conv:   chat.NewConversation(),
		tracer: cfg.Tracer,
	}
}

// Conversation returns the session's turn log.
func (p *Pipeline) Conversation() *chat.Conversation { return p.conv }

// ProcessFrame runs the full pipeline for one audio frame. The caller reports
// the returned error as the frame's terminal message; the connection itself
// stays usable for the next frame.
func (p *Pipeline) ProcessFrame(ctx context.Context, data []byte, codec audio.Codec, sampleRate int, emit Emit) error {
	metrics.FramesTotal.Inc()
	start := time.Now()
	roundID := p.tracer.StartRound()

	emit(NewStatus("transcribing"))

	samples, err := p.decode(ctx, data, codec, sampleRate, roundID)
	if err != nil {
		metrics.Errors.WithLabelValues("decode", "decode_error").Inc()
		p.tracer.EndRound(roundID, sinceMs(start), "", "", "error")
		return err
	}

	result, err := p.transcribe(ctx, samples, roundID)
	if err != nil {
		metrics.Errors.WithLabelValues("asr", "transcription_error").Inc()
		p.tracer.EndRound(roundID, sinceMs(start), "", "", "error")
		return err
	}

	emit(NewTranscript(result.Text))
	if result.Text == "" {
		// Nothing said. Not an error, and no reason to wake the model.
		metrics.EmptyTranscripts.Inc()
		emit(NewResponse(nil))
		p.tracer.EndRound(roundID, sinceMs(start), "", "", "empty")
		return nil
	}
	slog.Info("transcript", "text", result.Text, "asr_ms", result.LatencyMs)

	emit(NewStatus("thinking"))
	reply, err := p.orch.Respond(ctx, p.conv, result.Text, roundID, p.tracer)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "model_call_error").Inc()
		p.tracer.EndRound(roundID, sinceMs(start), result.Text, "", "error")
		return err
	}

	emit(NewResponse(reply))

	elapsed := time.Since(start)
	metrics.RoundDuration.Observe(elapsed.Seconds())
	slog.Info("round done", "e2e_ms", elapsed.Milliseconds(), "transcript", result.Text)
	p.tracer.EndRound(roundID, float64(elapsed.Milliseconds()), result.Text, derefOr(reply, ""), "ok")
	return nil
}

// decode produces mono 16 kHz samples from the frame: containerized blobs go
// through the normalizer's ffmpeg path, raw codec frames are decoded and
// resampled in-process.
func (p *Pipeline) decode(ctx context.Context, data []byte, codec audio.Codec, sampleRate int, roundID string) ([]float32, error) {
	start := time.Now()

	var samples []float32
	var err error
	if codec == audio.CodecAuto || codec == "" {
		samples, err = audio.Normalize(ctx, data)
	} else {
		var rate int
		samples, rate, err = audio.Decode(data, codec, sampleRate)
		if err == nil {
			samples = audio.Resample(samples, rate, audio.TargetRate)
		}
	}

	elapsed := time.Since(start)
	metrics.StageDuration.WithLabelValues("decode").Observe(elapsed.Seconds())
	status, errMsg := "ok", ""
	if err != nil {
		status, errMsg = "error", err.Error()
	}
	p.tracer.RecordSpan(roundID, "decode", start, float64(elapsed.Milliseconds()),
		fmt.Sprintf("bytes=%d codec=%s", len(data), codec),
		fmt.Sprintf("samples=%d", len(samples)), status, errMsg)

	return samples, err
}

func (p *Pipeline) transcribe(ctx context.Context, samples []float32, roundID string) (*asr.Result, error) {
	start := time.Now()
	result, err := p.asr.Transcribe(ctx, samples)

	status, errMsg, out := "ok", "", ""
	if err != nil {
		status, errMsg = "error", err.Error()
	} else {
		out = result.Text
	}
	p.tracer.RecordSpan(roundID, "asr", start, float64(time.Since(start).Milliseconds()),
		fmt.Sprintf("samples=%d", len(samples)), out, status, errMsg)

	return result, err
}

func sinceMs(t time.Time) float64 {
	return float64(time.Since(t).Milliseconds())
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
