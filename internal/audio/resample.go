package audio

import "math"

const resampleTaps = 31

// Resample converts samples from srcRate to dstRate by linear interpolation
// with a windowed-sinc anti-aliasing filter on the appropriate side. The
// input is returned unchanged when the rates already match.
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	cutoff := float64(min(srcRate, dstRate)) / 2.0

	// Remove content above the new Nyquist before decimating.
	if srcRate > dstRate {
		samples = lowPass(samples, cutoff, float64(srcRate))
	}

	ratio := float64(srcRate) / float64(dstRate)
	out := make([]float32, int(float64(len(samples))/ratio))
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		out[i] = lerp(samples, idx, frac)
	}

	// Remove imaging artifacts introduced by interpolation.
	if dstRate > srcRate {
		out = lowPass(out, cutoff, float64(dstRate))
	}

	return out
}

func lerp(samples []float32, idx int, frac float32) float32 {
	if idx+1 >= len(samples) {
		return samples[len(samples)-1]
	}
	return samples[idx]*(1-frac) + samples[idx+1]*frac
}

// lowPass convolves the signal with a Blackman-windowed sinc FIR kernel.
// Kernel taps falling outside the input simply do not contribute.
func lowPass(samples []float32, cutoff, sampleRate float64) []float32 {
	kernel := sincKernel(cutoff, sampleRate, resampleTaps)
	half := resampleTaps / 2
	out := make([]float32, len(samples))

	for i := range samples {
		jStart := max(0, half-i)
		jEnd := min(resampleTaps, len(samples)-i+half)
		var sum float32
		for j := jStart; j < jEnd; j++ {
			sum += samples[i+j-half] * kernel[j]
		}
		out[i] = sum
	}

	return out
}

func sincKernel(cutoff, sampleRate float64, taps int) []float32 {
	fc := cutoff / sampleRate
	half := taps / 2
	kernel := make([]float32, taps)

	var sum float64
	for i := range taps {
		n := float64(i - half)
		sinc := 1.0
		if n != 0 {
			x := 2.0 * math.Pi * fc * n
			sinc = math.Sin(x) / x
		}
		window := 0.42 - 0.5*math.Cos(2.0*math.Pi*float64(i)/float64(taps-1)) +
			0.08*math.Cos(4.0*math.Pi*float64(i)/float64(taps-1))
		val := sinc * window
		kernel[i] = float32(val)
		sum += val
	}

	// Unity gain at DC.
	scale := float32(1.0 / sum)
	for i := range kernel {
		kernel[i] *= scale
	}

	return kernel
}
