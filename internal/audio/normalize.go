// Package audio converts inbound audio of arbitrary provenance into the one
// format the transcription engine accepts: mono, 16 kHz, float32 PCM in [-1, 1].
package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// TargetRate is the sample rate the transcription engine consumes.
const TargetRate = 16000

// DecodeError reports audio that could not be parsed, or a decoder process
// that could not be spawned or exited non-zero.
type DecodeError struct {
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode audio: %s: %v", e.Detail, e.Err)
	}
	return "decode audio: " + e.Detail
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Normalize converts a raw audio blob (any container or compression ffmpeg
// understands, or a plain WAV) into mono 16 kHz float32 samples.
//
// Empty input yields empty output, not an error: absence of audio is not bad
// audio. WAV blobs are decoded in-process; everything else goes through a
// short-lived ffmpeg child whose output is fully consumed before returning.
func Normalize(ctx context.Context, raw []byte) ([]float32, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if isWAV(raw) {
		return normalizeWAV(raw)
	}
	return normalizeFFmpeg(ctx, raw)
}

func isWAV(b []byte) bool {
	return len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WAVE"))
}

// normalizeFFmpeg pipes the blob through ffmpeg configured for s16le mono
// 16 kHz output. A non-zero exit surfaces as DecodeError rather than
// silently returning whatever bytes made it to stdout.
func normalizeFFmpeg(ctx context.Context, raw []byte) ([]float32, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-ac", "1", "-ar", strconv.Itoa(TargetRate),
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(raw)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, &DecodeError{Detail: "spawn ffmpeg", Err: err}
	}
	if err := cmd.Wait(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "ffmpeg exited non-zero"
		}
		return nil, &DecodeError{Detail: detail, Err: err}
	}

	out := stdout.Bytes()
	return decodePCM(out[:len(out)&^1]), nil // whole samples only
}

// normalizeWAV decodes a RIFF/WAVE blob in-process, downmixes to mono, and
// resamples to the target rate.
func normalizeWAV(raw []byte) ([]float32, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, &DecodeError{Detail: "parse wav", Err: err}
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, &DecodeError{Detail: "wav missing format chunk"}
	}
	mono := downmix(buf, int(dec.BitDepth))
	return Resample(mono, buf.Format.SampleRate, TargetRate), nil
}

// downmix averages interleaved channels into mono float32 scaled to [-1, 1].
func downmix(buf *gaudio.IntBuffer, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(uint64(1) << (bitDepth - 1))
	ch := buf.Format.NumChannels

	frames := len(buf.Data) / ch
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range ch {
			sum += float32(buf.Data[i*ch+c]) / scale
		}
		mono[i] = sum / float32(ch)
	}
	return mono
}
