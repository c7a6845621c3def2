// Package frame defines the fixed processing granularity of the engine:
// 480-sample windows of mono audio at 48kHz, which is the frame size the
// noise suppression model requires.
package frame

import (
	"math"

	"github.com/voxfilter-go/voxfilter/pkg/audio"
)

const (
	// Size is the exact amount of samples in one processing frame.
	Size = 480

	// SampleRate is the only sample rate the processing pipeline operates at.
	SampleRate = audio.SampleRate(48000)
)

// Frame is one fixed-length window of normalized ([-1..1]) samples.
//
// A Frame is ephemeral: it is constructed per processing step and never
// retained across calls.
type Frame = []float32

// Validate checks the hard preconditions of the per-frame contract: the
// length must be exactly Size and every sample must be finite. Violations
// are caller bugs, not transient conditions, so the returned errors are
// fatal for the call and must not be retried with the same frame.
func Validate(f Frame) error {
	if len(f) != Size {
		return &InvalidFrameError{Length: len(f)}
	}
	for idx, v := range f {
		f64 := float64(v)
		if math.IsNaN(f64) || math.IsInf(f64, 0) {
			return &InvalidSampleError{Index: idx, Value: f64}
		}
	}
	return nil
}

// RMS returns the root mean square level of the given samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Peak returns the maximum absolute sample value.
func Peak(samples []float32) float64 {
	var peak float64
	for _, v := range samples {
		abs := math.Abs(float64(v))
		if abs > peak {
			peak = abs
		}
	}
	return peak
}
