package engine

import (
	"context"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/voxfilter-go/voxfilter/pkg/agc"
	"github.com/voxfilter-go/voxfilter/pkg/audio"
	"github.com/voxfilter-go/voxfilter/pkg/conceal"
	"github.com/voxfilter-go/voxfilter/pkg/conceal/fourierext"
	"github.com/voxfilter-go/voxfilter/pkg/dsp"
	"github.com/voxfilter-go/voxfilter/pkg/frame"
	"github.com/voxfilter-go/voxfilter/pkg/pipeline"
	"github.com/voxfilter-go/voxfilter/pkg/resample"
	"github.com/voxfilter-go/voxfilter/pkg/wave"
)

// ProcessFile runs a whole WAV file through the processing pipeline and
// returns the result as a mono 16-bit 48kHz WAV. The input must be mono
// 16-bit PCM; any sample rate is accepted and resampled. Frames the
// suppressor rejects become gaps, concealed afterwards from both sides of
// the gap; the file path can afford that because, unlike a live stream,
// the future is known.
func (e *Engine) ProcessFile(ctx context.Context, wavBytes []byte) (_ []byte, _err error) {
	logger.Debugf(ctx, "ProcessFile, len:%d", len(wavBytes))
	defer func() { logger.Debugf(ctx, "/ProcessFile: %v", _err) }()

	samples, sampleRate, err := wave.Decode(wavBytes)
	if err != nil {
		return nil, err
	}
	out, err := e.processSamples(ctx, samples, sampleRate)
	if err != nil {
		return nil, err
	}
	return wave.Encode(out, frame.SampleRate), nil
}

// ProcessOggFile is ProcessFile for ogg/vorbis input. Multichannel input
// is mixed down to mono before processing.
func (e *Engine) ProcessOggFile(ctx context.Context, oggBytes []byte) (_ []byte, _err error) {
	logger.Debugf(ctx, "ProcessOggFile, len:%d", len(oggBytes))
	defer func() { logger.Debugf(ctx, "/ProcessOggFile: %v", _err) }()

	samples, sampleRate, err := wave.DecodeOgg(oggBytes)
	if err != nil {
		return nil, err
	}
	out, err := e.processSamples(ctx, samples, sampleRate)
	if err != nil {
		return nil, err
	}
	return wave.Encode(out, frame.SampleRate), nil
}

func (e *Engine) processSamples(
	ctx context.Context,
	samples []float32,
	sampleRate audio.SampleRate,
) ([]float32, error) {
	if err := e.sm.RequireState("process-file", StateReady, StateProcessing, StateDegraded); err != nil {
		return nil, err
	}
	e.locker.Lock()
	sup := e.suppressor
	e.locker.Unlock()
	if sup == nil {
		return nil, &InvalidStateError{
			Operation: "process-file",
			Current:   e.sm.State(),
			Required:  []State{StateReady, StateProcessing, StateDegraded},
		}
	}

	if sampleRate != frame.SampleRate {
		samples = resample.Resample(samples, sampleRate, frame.SampleRate)
	}
	originalLen := len(samples)

	// pad to a whole amount of frames; the tail padding is cut afterwards
	if tail := len(samples) % frame.Size; tail != 0 {
		samples = append(samples, make([]float32, frame.Size-tail)...)
	}

	work := make([]float32, len(samples))
	copy(work, samples)

	chain := dsp.NewVoiceChain(float64(frame.SampleRate))
	chain.Process(work)

	var gain *agc.AGC
	if e.agc.Enabled() {
		gain = agc.New(e.cfg.AGCTargetLevel, agc.WithMaxGain(agc.SafeMaxGain))
	}

	proc := pipeline.NewFrameProcessor(sup, e.cfg.NoiseReductionLevel)
	out := make([]float32, len(work))
	var gaps []int

	// offline time base: with no hardware clock, each frame advances the
	// gain-update clock by its own duration
	frameDuration := time.Second * frame.Size / time.Duration(frame.SampleRate)
	now := time.Now()

	for offset := 0; offset < len(work); offset += frame.Size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in := work[offset : offset+frame.Size]
		dst := out[offset : offset+frame.Size]
		if _, err := proc.ProcessFrame(ctx, in, dst); err != nil {
			logger.Warnf(ctx, "a frame at sample %d failed, leaving a gap: %v", offset, err)
			gaps = append(gaps, offset)
			continue
		}
		if gain != nil {
			gain.Observe(dst)
			now = now.Add(frameDuration)
			gain.UpdateGain(now)
			gain.Apply(dst)
		}
	}

	if len(gaps) > 0 {
		concealGaps(out, gaps, fourierext.New())
	}
	return out[:originalLen], nil
}

// concealGaps fills each failed frame from the audio on both of its
// sides. Adjacent failed frames are merged into one gap first, so the
// interpolator never anchors on another gap's zeroes.
func concealGaps(samples []float32, gaps []int, interp conceal.Interpolator) {
	for i := 0; i < len(gaps); {
		start := gaps[i]
		end := start + frame.Size
		j := i + 1
		for j < len(gaps) && gaps[j] == end {
			end += frame.Size
			j++
		}

		before := toFloat64(samples[:start])
		after := toFloat64(samples[end:])
		filled := interp.Interpolate(before, after, end-start)
		for k, v := range filled {
			samples[start+k] = float32(v)
		}
		i = j
	}
}

func toFloat64(src []float32) []float64 {
	dst := make([]float64, len(src))
	for idx, v := range src {
		dst[idx] = float64(v)
	}
	return dst
}
