package audio

import "encoding/binary"

// Codec identifies the per-frame encoding declared by a streaming client.
type Codec string

const (
	// CodecAuto marks a containerized blob (webm, ogg, wav, ...) decoded by Normalize.
	CodecAuto     Codec = "auto"
	CodecPCM      Codec = "pcm"
	CodecG711Ulaw Codec = "g711_ulaw"
	CodecG711Alaw Codec = "g711_alaw"
)

// decoder pairs a codec's decode function with its fixed sample rate.
// A rate of 0 means the caller-declared rate applies (raw PCM).
type decoder struct {
	fn   func([]byte) []float32
	rate int
}

var decoders = map[Codec]decoder{
	CodecPCM:      {fn: decodePCM, rate: 0},
	CodecG711Ulaw: {fn: decodeG711Ulaw, rate: 8000},
	CodecG711Alaw: {fn: decodeG711Alaw, rate: 8000},
}

// Decode converts encoded frame bytes to float32 samples in [-1, 1] and
// reports the rate they are at. Containerized input (CodecAuto) is not
// handled here; use Normalize for that.
func Decode(data []byte, codec Codec, sampleRate int) ([]float32, int, error) {
	dec, ok := decoders[codec]
	if !ok {
		return nil, 0, &DecodeError{Detail: "unsupported codec " + string(codec)}
	}
	rate := dec.rate
	if rate == 0 {
		rate = sampleRate
	}
	return dec.fn(data), rate, nil
}

// decodePCM interprets data as signed 16-bit little-endian mono samples.
// Division by 32768 keeps the full int16 range inside [-1, 1].
func decodePCM(data []byte) []float32 {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(s) / 32768
	}
	return samples
}
