package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sine generates n samples of a sine wave at freq Hz and the given rate.
func sine(n int, freq float64, rate int, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

// stereoWAV encodes the same signal into both channels of a 16-bit stereo WAV.
func stereoWAV(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * 4
	buf := make([]byte, 44+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 2)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*4))
	binary.LittleEndian.PutUint16(buf[32:34], 4)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	for i, s := range samples {
		v := uint16(int16(s * math.MaxInt16))
		binary.LittleEndian.PutUint16(buf[44+i*4:], v)
		binary.LittleEndian.PutUint16(buf[44+i*4+2:], v)
	}
	return buf
}

func TestNormalizeEmptyInput(t *testing.T) {
	samples, err := Normalize(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, samples)

	samples, err = Normalize(context.Background(), []byte{})
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestNormalizeWAVRoundTrip(t *testing.T) {
	orig := sine(TargetRate/2, 440, TargetRate, 0.5)
	raw := SamplesToWAV(orig, TargetRate)

	samples, err := Normalize(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, samples, len(orig))
	for i := range orig {
		assert.InDelta(t, orig[i], samples[i], 1e-3)
	}
}

func TestNormalizeWAVResamples(t *testing.T) {
	const srcRate = 44100
	orig := sine(srcRate/2, 440, srcRate, 0.5)
	raw := SamplesToWAV(orig, srcRate)

	samples, err := Normalize(context.Background(), raw)
	require.NoError(t, err)

	wantLen := int(float64(len(orig)) * TargetRate / srcRate)
	assert.InDelta(t, wantLen, len(samples), 2)
	for _, s := range samples {
		assert.GreaterOrEqual(t, s, float32(-1))
		assert.LessOrEqual(t, s, float32(1))
	}
}

func TestNormalizeWAVStereoDownmix(t *testing.T) {
	orig := sine(TargetRate/4, 220, TargetRate, 0.25)
	raw := stereoWAV(orig, TargetRate)

	samples, err := Normalize(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, samples, len(orig))
	// Both channels carry the same signal, so the downmix equals it.
	for i := range orig {
		assert.InDelta(t, orig[i], samples[i], 1e-3)
	}
}

func TestNormalizeCorruptWAV(t *testing.T) {
	raw := append([]byte("RIFF\x00\x00\x00\x00WAVE"), []byte("not a real wav body")...)

	_, err := Normalize(context.Background(), raw)
	var derr *DecodeError
	require.ErrorAs(t, err, &derr)
}

func TestNormalizeGarbageViaFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	_, err := Normalize(context.Background(), []byte("definitely not audio data"))
	var derr *DecodeError
	require.True(t, errors.As(err, &derr))
	assert.NotEmpty(t, derr.Detail)
}

func TestSamplesToWAVHeader(t *testing.T) {
	raw := SamplesToWAV(make([]float32, 100), TargetRate)

	require.Len(t, raw, 44+200)
	assert.Equal(t, "RIFF", string(raw[0:4]))
	assert.Equal(t, "WAVE", string(raw[8:12]))
	assert.Equal(t, uint32(TargetRate), binary.LittleEndian.Uint32(raw[24:28]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(raw[22:24]))
	assert.Equal(t, uint32(200), binary.LittleEndian.Uint32(raw[40:44]))
}
