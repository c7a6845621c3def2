// Package resample converts mono sample buffers between sample rates.
package resample

import (
	"github.com/voxfilter-go/voxfilter/pkg/audio"
)

// Resample converts src from one sample rate to another using linear
// interpolation. The input is returned unchanged when the rates match.
//
// Output duration matches input duration to within one sample.
func Resample(src []float32, from, to audio.SampleRate) []float32 {
	if from == to || len(src) == 0 {
		return src
	}

	ratio := float64(from) / float64(to)
	outLen := int(float64(len(src)) * float64(to) / float64(from))
	if outLen == 0 {
		outLen = 1
	}
	dst := make([]float32, outLen)
	for idx := range dst {
		pos := float64(idx) * ratio
		left := int(pos)
		if left >= len(src)-1 {
			dst[idx] = src[len(src)-1]
			continue
		}
		fract := float32(pos - float64(left))
		dst[idx] = src[left]*(1-fract) + src[left+1]*fract
	}
	return dst
}

// MixdownMono averages interleaved multi-channel samples into one channel.
func MixdownMono(interleaved []float32, channels audio.Channel) []float32 {
	if channels <= 1 {
		return interleaved
	}
	n := int(channels)
	out := make([]float32, len(interleaved)/n)
	for idx := range out {
		var sum float32
		for ch := 0; ch < n; ch++ {
			sum += interleaved[idx*n+ch]
		}
		out[idx] = sum / float32(n)
	}
	return out
}
