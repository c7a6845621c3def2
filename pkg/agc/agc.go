// Package agc implements automatic gain control with asymmetric
// attack/release smoothing.
package agc

import (
	"math"
	"time"
)

const (
	// DefaultAttack is the time constant used when the gain must increase
	// (the signal got quieter): fast enough to rescue a suddenly-quiet
	// voice.
	DefaultAttack = 100 * time.Millisecond

	// DefaultRelease is the time constant used when the gain must decrease
	// (the signal got louder): slow enough not to duck every loud syllable.
	DefaultRelease = 500 * time.Millisecond

	// MaxGain is the hard internal gain ceiling.
	MaxGain = 10.0

	// SafeMaxGain is the tighter ceiling the engine constructs its AGC
	// with.
	SafeMaxGain = 6.0
)

// AGC continuously measures the loudness of the audio flowing through its
// analysis point and moves a smoothed gain factor toward the target level.
type AGC struct {
	targetLevel float64
	maxGain     float64
	attack      time.Duration
	release     time.Duration

	gain       float64
	sumSquares float64
	count      int
	lastUpdate time.Time
}

type Option func(*AGC)

func WithMaxGain(maxGain float64) Option {
	return func(a *AGC) {
		a.maxGain = maxGain
	}
}

func WithTimeConstants(attack, release time.Duration) Option {
	return func(a *AGC) {
		a.attack = attack
		a.release = release
	}
}

// New creates an AGC aiming at the given target level (linear RMS scale,
// 0..1).
func New(targetLevel float64, opts ...Option) *AGC {
	a := &AGC{
		targetLevel: targetLevel,
		maxGain:     MaxGain,
		attack:      DefaultAttack,
		release:     DefaultRelease,
		gain:        1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Observe feeds samples into the loudness measurement window. The window is
// consumed by the next UpdateGain call.
func (a *AGC) Observe(samples []float32) {
	for _, v := range samples {
		a.sumSquares += float64(v) * float64(v)
	}
	a.count += len(samples)
}

// TargetGainFor returns the unsmoothed gain the AGC is aiming at for the
// given RMS: min(targetLevel/rms, maxGain), or the current gain for a
// silent signal.
func (a *AGC) TargetGainFor(rms float64) float64 {
	if rms <= 0 {
		return a.gain
	}
	return math.Min(a.targetLevel/rms, a.maxGain)
}

// UpdateGain recomputes the live gain from the samples observed since the
// previous update, ramping toward the target with an exponential time
// constant: attack when the gain must rise, release when it must fall.
func (a *AGC) UpdateGain(now time.Time) {
	defer func() {
		a.sumSquares = 0
		a.count = 0
		a.lastUpdate = now
	}()

	if a.count == 0 {
		return
	}
	rms := math.Sqrt(a.sumSquares / float64(a.count))
	if rms <= 0 {
		return
	}
	target := a.TargetGainFor(rms)

	if a.lastUpdate.IsZero() {
		a.gain = target
		return
	}
	dt := now.Sub(a.lastUpdate)
	if dt <= 0 {
		return
	}

	tau := a.attack
	if target < a.gain {
		tau = a.release
	}
	coeff := 1 - math.Exp(-dt.Seconds()/tau.Seconds())
	a.gain += (target - a.gain) * coeff
	if a.gain > a.maxGain {
		a.gain = a.maxGain
	}
}

// CurrentGain returns the live smoothed gain, for diagnostics.
func (a *AGC) CurrentGain() float64 {
	return a.gain
}

// Apply multiplies the samples by the current gain, in place.
func (a *AGC) Apply(samples []float32) {
	g := float32(a.gain)
	if g == 1 {
		return
	}
	for idx := range samples {
		samples[idx] *= g
	}
}
