// Package asr wraps the speech recognition engine behind a small HTTP port.
//
// The engine is a whisper-compatible server consuming mono 16 kHz WAV. Two
// call modes exist and stay distinct: Transcribe treats an empty engine
// result as "nothing said" and returns an empty transcript; TranscribeStrict
// treats the same condition as a failure.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/autumn-voice/gateway/internal/audio"
	"github.com/autumn-voice/gateway/internal/httpc"
	"github.com/autumn-voice/gateway/internal/metrics"
)

// ErrNoSpeech marks a strict-mode transcription that produced no text.
// Callers match it with errors.Is to tell empty input apart from engine
// failures.
var ErrNoSpeech = errors.New("no speech recognized")

// TranscriptionError reports an engine failure, unusable input, or (in
// strict mode) an empty result.
type TranscriptionError struct {
	Detail string
	Err    error
}

func (e *TranscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcribe: %s: %v", e.Detail, e.Err)
	}
	return "transcribe: " + e.Detail
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// Segment is one timed span of recognized speech.
type Segment struct {
	Text         string  `json:"text"`
	StartMs      float64 `json:"start_ms"`
	EndMs        float64 `json:"end_ms"`
	NoSpeechProb float64 `json:"no_speech_prob"`
}

// Result holds the transcription output for one utterance.
type Result struct {
	Text      string    `json:"text"`
	Segments  []Segment `json:"segments,omitempty"`
	LatencyMs float64   `json:"latency_ms"`
}

// Config controls the whisper server client.
type Config struct {
	URL         string
	Language    string  // optional language hint forwarded to the engine
	Temperature float64 // sampling temperature, 0 keeps the engine default
	PoolSize    int
	Timeout     time.Duration
}

// Client posts audio to a whisper-compatible server's /inference endpoint.
type Client struct {
	cfg    Config
	client *http.Client
}

// NewClient creates a transcription client for the given server.
func NewClient(cfg Config) *Client {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 50
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, client: httpc.NewPooled(cfg.PoolSize, cfg.Timeout)}
}

// Warmup sends a second of silence to verify the engine is responsive.
func (c *Client) Warmup(ctx context.Context) error {
	_, err := c.Transcribe(ctx, make([]float32, audio.TargetRate))
	return err
}

// Transcribe runs the engine in lenient mode: zero segments or empty text
// yield an empty transcript, never an error. Callers treat "" as nothing said.
func (c *Client) Transcribe(ctx context.Context, samples []float32) (*Result, error) {
	start := time.Now()

	resp, err := c.post(ctx, samples)
	if err != nil {
		metrics.Errors.WithLabelValues("asr", "http").Inc()
		return nil, &TranscriptionError{Detail: "whisper request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.Errors.WithLabelValues("asr", "status").Inc()
		return nil, &TranscriptionError{Detail: fmt.Sprintf("whisper status %d: %s", resp.StatusCode, body)}
	}

	var wire whisperResponse
	if err = json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &TranscriptionError{Detail: "decode whisper response", Err: err}
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("asr").Observe(latency.Seconds())

	result := &Result{
		Text:      strings.TrimSpace(wire.Text),
		LatencyMs: float64(latency.Milliseconds()),
	}
	for _, s := range wire.Segments {
		result.Segments = append(result.Segments, Segment{
			Text:         strings.TrimSpace(s.Text),
			StartMs:      s.T0 * 10, // whisper.cpp reports centiseconds
			EndMs:        s.T1 * 10,
			NoSpeechProb: s.NoSpeechProb,
		})
	}
	return result, nil
}

// TranscribeStrict runs the engine in strict mode: an empty transcript is a
// TranscriptionError. Use where downstream requires something to have been said.
func (c *Client) TranscribeStrict(ctx context.Context, samples []float32) (*Result, error) {
	result, err := c.Transcribe(ctx, samples)
	if err != nil {
		return nil, err
	}
	if result.Text == "" {
		return nil, &TranscriptionError{Detail: "empty transcript", Err: ErrNoSpeech}
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, samples []float32) (*http.Response, error) {
	body, contentType, err := c.buildForm(samples)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.URL+"/inference", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.client.Do(req)
}

// buildForm packages the samples as a multipart WAV upload with the response
// format and optional language hint the engine understands.
func (c *Client) buildForm(samples []float32) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err = part.Write(audio.SamplesToWAV(samples, audio.TargetRate)); err != nil {
		return nil, "", fmt.Errorf("write wav data: %w", err)
	}
	if err = writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, "", fmt.Errorf("write response_format field: %w", err)
	}
	if c.cfg.Language != "" {
		if err = writer.WriteField("language", c.cfg.Language); err != nil {
			return nil, "", fmt.Errorf("write language field: %w", err)
		}
	}
	if c.cfg.Temperature > 0 {
		if err = writer.WriteField("temperature", strconv.FormatFloat(c.cfg.Temperature, 'f', -1, 64)); err != nil {
			return nil, "", fmt.Errorf("write temperature field: %w", err)
		}
	}
	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}

type whisperResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text         string  `json:"text"`
		T0           float64 `json:"t0"`
		T1           float64 `json:"t1"`
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
}
