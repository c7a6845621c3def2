package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReductionFactor(t *testing.T) {
	require.Equal(t, 1.0, ReductionFactor(LevelLow))
	require.Equal(t, 0.9, ReductionFactor(LevelMedium))
	require.Equal(t, 0.8, ReductionFactor(LevelHigh))
	require.Equal(t, 0.9, ReductionFactor(LevelAuto))

	// an unknown level falls back to the medium factor
	require.Equal(t, 0.9, ReductionFactor(Level("whatever")))
}
