package suppression

import (
	"context"
	"math"

	"github.com/voxfilter-go/voxfilter/pkg/frame"
)

const (
	// GateThreshold is the amplitude (normalized scale) below which samples
	// are treated as noise.
	GateThreshold = 0.01

	// GateAttenuation is the multiplier applied to samples below the
	// threshold: they are attenuated by 90%, not removed entirely.
	GateAttenuation = 0.1
)

// Gate is the degraded-mode fallback: a simple amplitude gate used when the
// neural model is unavailable. It guarantees the pipeline never stalls
// waiting on a model that failed to load.
type Gate struct{}

var _ Suppressor = (*Gate)(nil)

func NewGate() *Gate {
	return &Gate{}
}

func (g *Gate) Close() error {
	return nil
}

// Process attenuates samples below the threshold and passes the rest
// through unchanged. The synthetic voice probability is derived from the
// average absolute amplitude of the passed-through samples, clamped to
// [0..1].
func (g *Gate) Process(_ context.Context, scaled []float32) (float64, error) {
	threshold := float32(GateThreshold * frame.FixedPointScale)

	var passedSum float64
	var passedCount int
	for idx, v := range scaled {
		abs := v
		if abs < 0 {
			abs = -abs
		}
		if abs < threshold {
			scaled[idx] = v * GateAttenuation
			continue
		}
		passedSum += float64(abs)
		passedCount++
	}

	if passedCount == 0 {
		return 0, nil
	}
	avg := passedSum / float64(passedCount) / frame.FixedPointScale
	return math.Min(avg*10, 1), nil
}
