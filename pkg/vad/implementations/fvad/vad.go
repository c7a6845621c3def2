//go:build fvad
// +build fvad

// Package fvad implements voice activity detection through libfvad, the
// standalone WebRTC voice detector. Unlike the suppression-backed
// detector it reports a binary decision, mapped to confidence 0 or 1.
package fvad

import (
	"context"
	"fmt"
	"sync"
	"time"

	upstream "github.com/josharian/fvad"
	"github.com/voxfilter-go/voxfilter/pkg/frame"
	"github.com/voxfilter-go/voxfilter/pkg/vad"
)

// frameDuration is 10ms: 480 samples at 48kHz, one libfvad frame.
const frameDuration = time.Second * frame.Size / time.Duration(frame.SampleRate)

// Supported reports whether this build carries the libfvad backend.
const Supported = true

type VAD struct {
	locker   sync.Mutex
	detector *upstream.Detector
	scratch  [frame.Size]int16
}

var _ vad.VAD = (*VAD)(nil)

// NewVAD builds a detector. Aggressiveness is the libfvad mode, 0
// (permissive) through 3 (aggressive).
func NewVAD(aggressiveness int) (vad.VAD, error) {
	detector := upstream.NewDetector()
	if err := detector.SetSampleRate(int(frame.SampleRate)); err != nil {
		return nil, fmt.Errorf("unable to set the sample rate: %w", err)
	}
	if err := detector.SetMode(aggressiveness); err != nil {
		return nil, fmt.Errorf("unable to set the aggressiveness mode: %w", err)
	}
	return &VAD{detector: detector}, nil
}

func (v *VAD) Close() error {
	v.locker.Lock()
	defer v.locker.Unlock()
	v.detector.Close()
	v.detector = nil
	return nil
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

	v.locker.Lock()
	defer v.locker.Unlock()
	if v.detector == nil {
		return 0, -1, fmt.Errorf("the detector is already closed")
	}

	var maxConfidence float64
	var foundVoiceFor time.Duration
	firstVoiceDetection := time.Duration(-1)

	for pos := 0; ; pos++ {
		if len(samples) < frame.Size {
			return maxConfidence, firstVoiceDetection, nil
		}
		for idx := range v.scratch {
			v.scratch[idx] = int16(clamp(samples[idx]) * 32767)
		}
		samples = samples[frame.Size:]

		voiced, err := v.detector.Process(v.scratch[:])
		if err != nil {
			return maxConfidence, firstVoiceDetection, err
		}

		confidence := 0.0
		if voiced {
			confidence = 1.0
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
			return maxConfidence, firstVoiceDetection, nil
		}
	}
}

func clamp(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
