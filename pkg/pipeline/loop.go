// Package pipeline implements the per-callback frame processing loop:
// buffer assembly, model invocation, gain/filter staging and metrics
// accumulation.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/mjibson/go-dsp/fft"
	"github.com/voxfilter-go/voxfilter/pkg/agc"
	"github.com/voxfilter-go/voxfilter/pkg/dsp"
	"github.com/voxfilter-go/voxfilter/pkg/frame"
	"github.com/voxfilter-go/voxfilter/pkg/suppression"
)

// DefaultBufferSize is the default audio-hardware callback size in samples.
const DefaultBufferSize = 4096

type LoopState string

const (
	LoopStateProcessing = LoopState("processing")
	LoopStatePaused     = LoopState("paused")
	LoopStateStopped    = LoopState("stopped")
)

type LoopConfig struct {
	Suppressor  suppression.Suppressor
	Level       Level
	Chain       *dsp.Chain   // optional pre-model filter cascade
	AGC         *agc.AGC     // optional gain stage
	Accumulator *Accumulator // optional; a fresh one is created when nil
}

// Loop is the engine of one stream: it runs once per audio-hardware
// callback and must complete synchronously and quickly. It is state
// machine-free; pausing only gates whether a callback does any work.
type Loop struct {
	proc  *FrameProcessor
	chain *dsp.Chain
	agc   *agc.AGC
	acc   *Accumulator

	locker   sync.Mutex
	state    LoopState
	inQ      sampleQueue
	outQ     sampleQueue
	work     []float32
	frameIn  [frame.Size]float32
	frameOut [frame.Size]float32
	metrics  Metrics
}

func NewLoop(cfg LoopConfig) *Loop {
	acc := cfg.Accumulator
	if acc == nil {
		acc = NewAccumulator(time.Now())
	}
	return &Loop{
		proc:  NewFrameProcessor(cfg.Suppressor, cfg.Level),
		chain: cfg.Chain,
		agc:   cfg.AGC,
		acc:   acc,
		state: LoopStateProcessing,
	}
}

// ProcessCallback consumes one hardware input buffer and fills one output
// buffer of the same size. When the loop is paused or stopped the callback
// still fires (the hardware drives it), but the output is zeroed and the
// input is not enqueued, so no backlog accumulates.
func (l *Loop) ProcessCallback(ctx context.Context, input, output []float32) {
	l.locker.Lock()
	defer l.locker.Unlock()

	if l.state != LoopStateProcessing {
		zero(output)
		return
	}
	now := time.Now()

	inputRMS := frame.RMS(input)
	inputPeak := frame.Peak(input)

	if cap(l.work) < len(input) {
		l.work = make([]float32, len(input))
	}
	work := l.work[:len(input)]
	copy(work, input)

	if l.chain != nil {
		l.chain.Process(work)
	}
	if l.agc != nil {
		l.agc.Observe(work)
		l.agc.UpdateGain(now)
		l.agc.Apply(work)
	}

	l.inQ.Push(work)

	start := time.Now()
	var framesProcessed, framesDropped int
	var inRMSSum, outRMSSum float64
	var lastVoiceProb float64
	for l.inQ.PopInto(l.frameIn[:]) {
		inRMSSum += frame.RMS(l.frameIn[:])
		voiceProb, err := l.proc.ProcessFrame(ctx, l.frameIn[:], l.frameOut[:])
		if err != nil {
			// pass the frame through unprocessed rather than dropping audio
			logger.Warnf(ctx, "frame processing failed, passing through: %v", err)
			copy(l.frameOut[:], l.frameIn[:])
			framesDropped++
		} else {
			framesProcessed++
			lastVoiceProb = voiceProb
		}
		outRMSSum += frame.RMS(l.frameOut[:])
		l.outQ.Push(l.frameOut[:])
	}
	latency := time.Since(start)

	n := l.outQ.PopUpTo(output)
	zero(output[n:]) // underrun is silence, not an error

	total := framesProcessed + framesDropped
	if total > 0 {
		avgIn := inRMSSum / float64(total)
		avgOut := outRMSSum / float64(total)
		reductionPct := 0.0
		if avgIn > 0 {
			reductionPct = (1 - avgOut/avgIn) * 100
			if reductionPct < 0 {
				reductionPct = 0
			}
		}
		l.metrics = Metrics{
			InputRMS:            inputRMS,
			InputPeak:           inputPeak,
			OutputRMS:           avgOut,
			OutputPeak:          frame.Peak(output),
			NoiseReductionPct:   reductionPct,
			VoiceProb:           lastVoiceProb,
			FramesProcessed:     l.metrics.FramesProcessed + uint64(framesProcessed),
			DroppedFrames:       l.metrics.DroppedFrames + uint64(framesDropped),
			DominantFrequencyHz: dominantFrequency(l.frameOut[:]),
			Timestamp:           now,
		}
		l.acc.Record(framesProcessed, framesDropped, l.metrics.NoiseReductionPct, latency, avgIn, avgOut, now)
	}
}

// SetAGC swaps the gain stage at runtime. Passing nil disconnects it; the
// next callback processes at unity gain.
func (l *Loop) SetAGC(a *agc.AGC) {
	l.locker.Lock()
	defer l.locker.Unlock()
	l.agc = a
}

func (l *Loop) Pause() {
	l.locker.Lock()
	defer l.locker.Unlock()
	if l.state == LoopStateProcessing {
		l.state = LoopStatePaused
	}
}

func (l *Loop) Resume() {
	l.locker.Lock()
	defer l.locker.Unlock()
	if l.state == LoopStatePaused {
		l.state = LoopStateProcessing
	}
}

func (l *Loop) Stop() {
	l.locker.Lock()
	defer l.locker.Unlock()
	l.state = LoopStateStopped
	l.inQ.Reset()
	l.outQ.Reset()
}

func (l *Loop) State() LoopState {
	l.locker.Lock()
	defer l.locker.Unlock()
	return l.state
}

// Metrics returns the last published callback snapshot.
func (l *Loop) Metrics() Metrics {
	l.locker.Lock()
	defer l.locker.Unlock()
	return l.metrics
}

// Accumulator exposes the metrics aggregate for explicit injection into
// consumers (the recording manager).
func (l *Loop) Accumulator() *Accumulator {
	return l.acc
}

// dominantFrequency locates the strongest spectral bin of the frame. With
// 480 samples at 48kHz the bin resolution is 100Hz, which is plenty for a
// diagnostics readout.
func dominantFrequency(f frame.Frame) float64 {
	in := make([]float64, len(f))
	for idx, v := range f {
		in[idx] = float64(v)
	}
	spectrum := fft.FFTReal(in)

	bestBin := 0
	var bestMag float64
	for bin := 1; bin < len(spectrum)/2; bin++ {
		re := real(spectrum[bin])
		im := imag(spectrum[bin])
		mag := re*re + im*im
		if mag > bestMag {
			bestMag = mag
			bestBin = bin
		}
	}
	binWidth := float64(frame.SampleRate) / float64(len(f))
	return float64(bestBin) * binWidth
}

func zero(samples []float32) {
	for idx := range samples {
		samples[idx] = 0
	}
}
