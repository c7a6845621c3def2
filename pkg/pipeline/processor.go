package pipeline

import (
	"context"
	"fmt"

	"github.com/voxfilter-go/voxfilter/pkg/frame"
	"github.com/voxfilter-go/voxfilter/pkg/suppression"
)

// FrameProcessor runs the per-frame model step: validation, fixed-point
// scaling into the loop-exclusive scratch, in-place suppression, rescaling,
// and the static reduction factor.
type FrameProcessor struct {
	codec      *frame.Codec
	suppressor suppression.Suppressor
	factor     float64
}

func NewFrameProcessor(suppressor suppression.Suppressor, level Level) *FrameProcessor {
	return &FrameProcessor{
		codec:      frame.NewCodec(),
		suppressor: suppressor,
		factor:     ReductionFactor(level),
	}
}

// ProcessFrame denoises exactly one frame. in and out must both be exactly
// frame.Size samples long; in must contain only finite values. Violations
// are fatal for the call and must not be retried.
func (p *FrameProcessor) ProcessFrame(ctx context.Context, in, out frame.Frame) (float64, error) {
	if err := frame.Validate(in); err != nil {
		return 0, err
	}
	if len(out) != frame.Size {
		return 0, &frame.InvalidFrameError{Length: len(out)}
	}

	scaled := p.codec.Scale(in)
	voiceProb, err := p.suppressor.Process(ctx, scaled)
	if err != nil {
		return 0, fmt.Errorf("unable to suppress noise: %w", err)
	}
	p.codec.Unscale(out)

	if p.factor != 1 {
		f := float32(p.factor)
		for idx := range out {
			out[idx] *= f
		}
	}
	return voiceProb, nil
}

// Factor exposes the active reduction factor.
func (p *FrameProcessor) Factor() float64 {
	return p.factor
}
