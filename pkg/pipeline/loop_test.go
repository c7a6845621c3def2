package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voxfilter-go/voxfilter/pkg/frame"
	"github.com/voxfilter-go/voxfilter/pkg/suppression"
)

func TestLoopProcessing(t *testing.T) {
	ctx := context.Background()
	loop := NewLoop(LoopConfig{Suppressor: suppression.Dummy{}, Level: LevelLow})

	input := make([]float32, frame.Size*2)
	for idx := range input {
		input[idx] = 0.25
	}
	output := make([]float32, len(input))
	loop.ProcessCallback(ctx, input, output)

	m := loop.Metrics()
	require.EqualValues(t, 2, m.FramesProcessed)
	require.EqualValues(t, 0, m.DroppedFrames)
	// a passthrough suppressor at the low level removes nothing
	require.InDelta(t, 0.0, m.NoiseReductionPct, 1e-6)
	require.GreaterOrEqual(t, m.NoiseReductionPct, 0.0)
}

func TestLoopNoiseReductionNeverNegative(t *testing.T) {
	ctx := context.Background()

	// an amplifying "suppressor" would naively yield negative reduction
	loop := NewLoop(LoopConfig{Suppressor: amplifyingSuppressor{}, Level: LevelLow})
	input := make([]float32, frame.Size)
	for idx := range input {
		input[idx] = 0.1
	}
	output := make([]float32, len(input))
	loop.ProcessCallback(ctx, input, output)

	require.GreaterOrEqual(t, loop.Metrics().NoiseReductionPct, 0.0)
}

type amplifyingSuppressor struct{}

func (amplifyingSuppressor) Close() error { return nil }
func (amplifyingSuppressor) Process(_ context.Context, scaled []float32) (float64, error) {
	for idx := range scaled {
		scaled[idx] *= 2
	}
	return 1, nil
}

func TestLoopPassesThroughFailedFrames(t *testing.T) {
	ctx := context.Background()
	loop := NewLoop(LoopConfig{Suppressor: erroringSuppressor{}, Level: LevelMedium})

	input := make([]float32, frame.Size)
	for idx := range input {
		input[idx] = 0.5
	}
	output := make([]float32, len(input))
	loop.ProcessCallback(ctx, input, output)

	m := loop.Metrics()
	require.EqualValues(t, 0, m.FramesProcessed)
	require.EqualValues(t, 1, m.DroppedFrames)
	// passthrough: the audio survives, unprocessed
	require.InDelta(t, 0.5, float64(output[0]), 1e-6)
}

type erroringSuppressor struct{}

func (erroringSuppressor) Close() error { return nil }
func (erroringSuppressor) Process(context.Context, []float32) (float64, error) {
	return 0, fmt.Errorf("boom")
}

func TestLoopPaused(t *testing.T) {
	ctx := context.Background()
	loop := NewLoop(LoopConfig{Suppressor: suppression.Dummy{}, Level: LevelLow})
	loop.Pause()
	require.Equal(t, LoopStatePaused, loop.State())

	input := make([]float32, frame.Size)
	for idx := range input {
		input[idx] = 0.5
	}
	output := make([]float32, len(input))
	output[0] = 42
	loop.ProcessCallback(ctx, input, output)

	// paused output is silence, and the input was not enqueued
	require.Zero(t, output[0])
	require.EqualValues(t, 0, loop.Metrics().FramesProcessed)

	loop.Resume()
	require.Equal(t, LoopStateProcessing, loop.State())
	loop.ProcessCallback(ctx, input, output)
	require.EqualValues(t, 1, loop.Metrics().FramesProcessed)
}

func TestLoopUnderrunIsSilence(t *testing.T) {
	ctx := context.Background()
	loop := NewLoop(LoopConfig{Suppressor: suppression.Dummy{}, Level: LevelLow})

	// half a frame in: nothing can be processed yet, the output must be
	// all zeroes rather than stale garbage
	input := make([]float32, frame.Size/2)
	for idx := range input {
		input[idx] = 0.5
	}
	output := make([]float32, len(input))
	for idx := range output {
		output[idx] = 1
	}
	loop.ProcessCallback(ctx, input, output)
	for idx := range output {
		require.Zero(t, output[idx], "sample %d", idx)
	}
}

func TestLoopCarriesRemainderAcrossCallbacks(t *testing.T) {
	ctx := context.Background()
	loop := NewLoop(LoopConfig{Suppressor: suppression.Dummy{}, Level: LevelLow})

	input := make([]float32, frame.Size/2)
	for idx := range input {
		input[idx] = 0.5
	}
	output := make([]float32, len(input))

	loop.ProcessCallback(ctx, input, output)
	require.EqualValues(t, 0, loop.Metrics().FramesProcessed)

	// the second half completes the frame
	loop.ProcessCallback(ctx, input, output)
	require.EqualValues(t, 1, loop.Metrics().FramesProcessed)
}
