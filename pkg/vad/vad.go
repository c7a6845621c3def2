// Package vad is voice activity detection over mono 48kHz sample
// streams.
package vad

import (
	"context"
	"time"
)

// VAD scans audio for voice activity.
type VAD interface {
	// FindNextVoice scans the samples for a run of voice activity of at
	// least minDuration where the per-frame confidence stays at or above
	// confidenceThreshold. It returns the highest confidence seen and the
	// offset of the first voiced frame, or -1 when no voice was found.
	FindNextVoice(
		ctx context.Context,
		samples []float32,
		confidenceThreshold float64,
		minDuration time.Duration,
	) (float64, time.Duration, error)
}
