package engine

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiagnostics(t *testing.T) {
	ctx := context.Background()
	e := New(Config{SuppressorFactory: dummyFactory})
	require.NoError(t, e.Initialize(ctx))
	defer func() { _ = e.Destroy(ctx, false) }()

	d := e.Diagnostics(ctx)
	require.Equal(t, Version, d.Version)
	require.Equal(t, StateReady, d.State)
	require.False(t, d.DegradedMode)
	require.Empty(t, d.DegradedCause)
	require.Zero(t, d.ActiveStreams)
	require.Zero(t, d.RetainedChunks)
	require.Equal(t, runtime.Version(), d.GoVersion)
	require.Positive(t, d.NumCPU)
	require.Positive(t, d.MemAllocBytes)
	require.True(t, d.Capabilities.NoiseGate)
	require.Empty(t, d.ErrorHistory)
}
