package audio

import "math"

// Mixdown folds interleaved frames into mono by averaging the channels of each
// frame and appends the result to dst. A single channel is copied through.
// Samples of a trailing partial frame are ignored.
func Mixdown(dst, interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return append(dst, interleaved...)
	}
	frames := len(interleaved) / channels
	if channels == 2 {
		for i := 0; i < frames; i++ {
			dst = append(dst, (interleaved[2*i]+interleaved[2*i+1])*0.5)
		}
		return dst
	}
	inv := 1 / float32(channels)
	for i := 0; i < frames; i++ {
		var sum float32
		for _, s := range interleaved[i*channels : (i+1)*channels] {
			sum += s
		}
		dst = append(dst, sum*inv)
	}
	return dst
}

// Resample walks chunk in increments of step (inputRate/targetRate) and
// appends a linearly interpolated sample for every position to dst. Positions
// past the last sample clamp to it. The output is neither trimmed nor padded.
func Resample(dst, chunk []float32, step float64) []float32 {
	n := len(chunk)
	if n == 0 || step <= 0 {
		return dst
	}
	for idx := 0.0; idx < float64(n); idx += step {
		i := int(math.Floor(idx))
		if i >= n {
			break
		}
		cur := chunk[i]
		next := cur
		if i+1 < n {
			next = chunk[i+1]
		}
		frac := float32(idx - float64(i))
		dst = append(dst, cur+(next-cur)*frac)
	}
	return dst
}

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}

// Normalize scales samples in place so the loudest one has magnitude 1.
// Silent input is left untouched. The pre-normalization peak is returned.
func Normalize(samples []float32) float32 {
	peak := Peak(samples)
	if peak == 0 {
		return 0
	}
	for i := range samples {
		samples[i] /= peak
	}
	return peak
}

// Quantize maps [-1, 1] floats onto the signed 16-bit range, truncating
// toward zero, and appends them to dst.
func Quantize(dst []int16, samples []float32) []int16 {
	for _, s := range samples {
		dst = append(dst, int16(s*math.MaxInt16))
	}
	return dst
}
