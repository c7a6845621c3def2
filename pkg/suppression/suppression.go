// Package suppression defines the noise suppression capability the pipeline
// is built around, a model-less fallback, and the asynchronous loader that
// produces one or the other.
package suppression

import (
	"context"
	"io"
)

// Suppressor processes exactly one frame at a time, in place.
//
// The frame uses the model's fixed-point convention: normalized samples
// multiplied by frame.FixedPointScale (see frame.Codec). The slice is owned
// by the caller and must not be retained across calls.
//
// The returned value is a voice-activity probability in [0..1].
type Suppressor interface {
	io.Closer

	Process(ctx context.Context, scaled []float32) (voiceProb float64, err error)
}
