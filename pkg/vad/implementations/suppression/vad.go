// Package suppression implements voice activity detection on top of the
// voice probability a noise suppressor already computes per frame, so a
// deployment that runs suppression gets VAD for free.
package suppression

import (
	"context"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/voxfilter-go/voxfilter/pkg/frame"
	"github.com/voxfilter-go/voxfilter/pkg/suppression"
	"github.com/voxfilter-go/voxfilter/pkg/vad"
)

// frameDuration is 10ms: 480 samples at 48kHz.
const frameDuration = time.Second * frame.Size / time.Duration(frame.SampleRate)

type VAD struct {
	suppressor suppression.Suppressor
	codec      *frame.Codec
	scratch    [frame.Size]float32
}

var _ vad.VAD = (*VAD)(nil)

func NewVAD(suppressor suppression.Suppressor) *VAD {
	return &VAD{
		suppressor: suppressor,
		codec:      frame.NewCodec(),
	}
}

func (v *VAD) FindNextVoice(
	ctx context.Context,
	samples []float32,
	confidenceThreshold float64,
	minDuration time.Duration,
) (float64, time.Duration, error) {
	if len(samples) == 0 {
		return 0, -1, nil
	}

	var maxConfidence float64
	var foundVoiceFor time.Duration
	firstVoiceDetection := time.Duration(-1)

	for pos := 0; ; pos++ {
		if len(samples) < frame.Size {
			return maxConfidence, firstVoiceDetection, nil
		}
		copy(v.scratch[:], samples[:frame.Size])
		samples = samples[frame.Size:]

		// the suppressor also denoises the scratch copy; only the voice
		// probability is used here
		scaled := v.codec.Scale(v.scratch[:])
		confidence, err := v.suppressor.Process(ctx, scaled)
		if err != nil {
			return maxConfidence, firstVoiceDetection, err
		}

		if confidence > maxConfidence {
			maxConfidence = confidence
		}
		if confidence >= confidenceThreshold {
			foundVoiceFor += frameDuration
			if firstVoiceDetection < 0 {
				firstVoiceDetection = frameDuration * time.Duration(pos)
			}
		}
		if foundVoiceFor >= minDuration {
			logger.Tracef(ctx, "found %v of voice starting at %v", foundVoiceFor, firstVoiceDetection)
			return maxConfidence, firstVoiceDetection, nil
		}
	}
}
