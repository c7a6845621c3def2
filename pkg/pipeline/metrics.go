package pipeline

import (
	"sync"
	"time"
)

// Metrics is the last published per-callback snapshot of the loop.
type Metrics struct {
	InputRMS            float64
	InputPeak           float64
	OutputRMS           float64
	OutputPeak          float64
	NoiseReductionPct   float64
	VoiceProb           float64
	FramesProcessed     uint64
	DroppedFrames       uint64
	DominantFrequencyHz float64
	Timestamp           time.Time
}

// AccumulatedMetrics is a running aggregate over a time period, consumed by
// the recording manager to stamp real values into chunk records.
type AccumulatedMetrics struct {
	TotalFrames          uint64
	DroppedFrames        uint64
	AvgNoiseReductionPct float64
	AvgLatency           time.Duration
	AvgInputLevel        float64
	AvgOutputLevel       float64
	PeriodStart          time.Time
	PeriodEnd            time.Time
}

// Accumulator aggregates per-batch measurements into AccumulatedMetrics.
// It is handed to consumers by explicit injection, never through any
// ambient registry.
type Accumulator struct {
	locker sync.Mutex

	frames        uint64
	dropped       uint64
	sumReduction  float64 // weighted by frames
	sumLatency    time.Duration
	batches       uint64
	sumInputRMS   float64
	sumOutputRMS  float64
	periodStart   time.Time
	lastUpdatedAt time.Time
}

func NewAccumulator(now time.Time) *Accumulator {
	return &Accumulator{periodStart: now}
}

// Record adds one callback batch: the amount of frames processed, the noise
// reduction achieved, the processing latency spent, and the level pair.
func (a *Accumulator) Record(frames int, dropped int, reductionPct float64, latency time.Duration, inputRMS, outputRMS float64, now time.Time) {
	if frames == 0 && dropped == 0 {
		return
	}
	a.locker.Lock()
	defer a.locker.Unlock()
	a.frames += uint64(frames)
	a.dropped += uint64(dropped)
	a.sumReduction += reductionPct * float64(frames)
	a.sumLatency += latency
	a.batches++
	a.sumInputRMS += inputRMS
	a.sumOutputRMS += outputRMS
	a.lastUpdatedAt = now
}

// Snapshot returns the aggregate for the current period.
func (a *Accumulator) Snapshot() AccumulatedMetrics {
	a.locker.Lock()
	defer a.locker.Unlock()

	m := AccumulatedMetrics{
		TotalFrames:   a.frames,
		DroppedFrames: a.dropped,
		PeriodStart:   a.periodStart,
		PeriodEnd:     a.lastUpdatedAt,
	}
	if a.frames > 0 {
		m.AvgNoiseReductionPct = a.sumReduction / float64(a.frames)
	}
	if a.batches > 0 {
		m.AvgLatency = a.sumLatency / time.Duration(a.batches)
		m.AvgInputLevel = a.sumInputRMS / float64(a.batches)
		m.AvgOutputLevel = a.sumOutputRMS / float64(a.batches)
	}
	return m
}

// ResetPeriod starts a new aggregation period.
func (a *Accumulator) ResetPeriod(now time.Time) {
	a.locker.Lock()
	defer a.locker.Unlock()
	a.frames = 0
	a.dropped = 0
	a.sumReduction = 0
	a.sumLatency = 0
	a.batches = 0
	a.sumInputRMS = 0
	a.sumOutputRMS = 0
	a.periodStart = now
	a.lastUpdatedAt = time.Time{}
}
