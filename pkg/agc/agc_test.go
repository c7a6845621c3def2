package agc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func constantSamples(level float32, n int) []float32 {
	samples := make([]float32, n)
	for idx := range samples {
		samples[idx] = level
	}
	return samples
}

func TestTargetGainFor(t *testing.T) {
	t.Run("quiet signal wants a boost", func(t *testing.T) {
		a := New(0.3)
		require.InDelta(t, 7.5, a.TargetGainFor(0.04), 1e-9)
	})

	t.Run("clamped at the ceiling", func(t *testing.T) {
		a := New(0.3, WithMaxGain(SafeMaxGain))
		require.InDelta(t, SafeMaxGain, a.TargetGainFor(0.04), 1e-9)
	})

	t.Run("near-silence keeps the current gain", func(t *testing.T) {
		a := New(0.3)
		require.InDelta(t, 1.0, a.TargetGainFor(0), 1e-9)
	})
}

func TestUpdateGainRamp(t *testing.T) {
	a := New(0.3, WithMaxGain(SafeMaxGain))
	now := time.Now()

	// the first update snaps straight to the target
	a.Observe(constantSamples(0.1, 480))
	a.UpdateGain(now)
	require.InDelta(t, 3.0, a.CurrentGain(), 1e-6)

	// a quieter signal ramps the gain up with the attack constant; after
	// one attack period roughly 63% of the distance is covered
	a.Observe(constantSamples(0.06, 480))
	now = now.Add(DefaultAttack)
	a.UpdateGain(now)
	require.Greater(t, a.CurrentGain(), 3.0)
	require.Less(t, a.CurrentGain(), 5.0)
	require.InDelta(t, 3.0+(5.0-3.0)*0.632, a.CurrentGain(), 0.05)

	// a loud burst ramps down slower (release), never below what the
	// target demands
	a.Observe(constantSamples(0.6, 480))
	now = now.Add(DefaultRelease)
	a.UpdateGain(now)
	require.Less(t, a.CurrentGain(), 3.0)
	require.Greater(t, a.CurrentGain(), 0.5)
}

func TestGainNeverExceedsCeiling(t *testing.T) {
	a := New(0.3, WithMaxGain(SafeMaxGain))
	now := time.Now()
	for i := 0; i < 100; i++ {
		a.Observe(constantSamples(0.001, 480))
		now = now.Add(10 * time.Millisecond)
		a.UpdateGain(now)
		require.LessOrEqual(t, a.CurrentGain(), SafeMaxGain+1e-9)
	}
}

func TestApply(t *testing.T) {
	a := New(0.3)
	a.Observe(constantSamples(0.1, 480))
	a.UpdateGain(time.Now())

	samples := constantSamples(0.1, 4)
	a.Apply(samples)
	require.InDelta(t, 0.3, float64(samples[0]), 1e-3)
}
