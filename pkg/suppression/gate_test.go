package suppression

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voxfilter-go/voxfilter/pkg/frame"
)

func TestGate(t *testing.T) {
	ctx := context.Background()
	gate := NewGate()

	t.Run("attenuates sub-threshold samples", func(t *testing.T) {
		quiet := float32(0.005 * frame.FixedPointScale)
		samples := []float32{quiet, -quiet}
		prob, err := gate.Process(ctx, samples)
		require.NoError(t, err)
		require.InDelta(t, float64(quiet)*GateAttenuation, float64(samples[0]), 1e-3)
		require.InDelta(t, -float64(quiet)*GateAttenuation, float64(samples[1]), 1e-3)
		require.Zero(t, prob)
	})

	t.Run("passes loud samples through untouched", func(t *testing.T) {
		loud := float32(0.5 * frame.FixedPointScale)
		samples := []float32{loud, -loud}
		prob, err := gate.Process(ctx, samples)
		require.NoError(t, err)
		require.Equal(t, loud, samples[0])
		require.Equal(t, -loud, samples[1])
		require.Greater(t, prob, 0.0)
	})

	t.Run("voice probability is clamped to one", func(t *testing.T) {
		loud := float32(0.9 * frame.FixedPointScale)
		prob, err := gate.Process(ctx, []float32{loud, loud})
		require.NoError(t, err)
		require.Equal(t, 1.0, prob)
	})
}
