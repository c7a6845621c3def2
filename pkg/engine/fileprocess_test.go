package engine

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voxfilter-go/voxfilter/pkg/audio"
	"github.com/voxfilter-go/voxfilter/pkg/conceal/fourierext"
	"github.com/voxfilter-go/voxfilter/pkg/frame"
	"github.com/voxfilter-go/voxfilter/pkg/wave"
)

func sineWAV(freq float64, sampleRate int, seconds float64) []byte {
	n := int(float64(sampleRate) * seconds)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.5 * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return wave.Encode(samples, audio.SampleRate(sampleRate))
}

func TestProcessFileResamplesTo48kHz(t *testing.T) {
	ctx := context.Background()
	e := New(Config{SuppressorFactory: dummyFactory})
	require.NoError(t, e.Initialize(ctx))
	defer func() { _ = e.Destroy(ctx, false) }()

	const seconds = 2.5
	out, err := e.ProcessFile(ctx, sineWAV(440, 44100, seconds))
	require.NoError(t, err)

	samples, sampleRate, err := wave.Decode(out)
	require.NoError(t, err)
	require.EqualValues(t, frame.SampleRate, sampleRate)

	gotSeconds := float64(len(samples)) / float64(frame.SampleRate)
	require.InDelta(t, seconds, gotSeconds, 0.1)

	// a 440Hz tone passes the voice chain mostly intact
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	require.Greater(t, rms, 0.1)
}

func TestProcessFileRequiresInitializedEngine(t *testing.T) {
	ctx := context.Background()
	e := New(Config{SuppressorFactory: dummyFactory})

	_, err := e.ProcessFile(ctx, sineWAV(440, 44100, 0.1))
	require.Error(t, err)
	require.Equal(t, "invalid-state", CodeOf(err))
}

func TestProcessFileRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	e := New(Config{SuppressorFactory: dummyFactory})
	require.NoError(t, e.Initialize(ctx))
	defer func() { _ = e.Destroy(ctx, false) }()

	_, err := e.ProcessFile(ctx, []byte("definitely not a wav"))
	require.Error(t, err)
	require.Equal(t, "unsupported-format", CodeOf(err))
}

func TestConcealGapsFillsMergedGaps(t *testing.T) {
	// a sine with two adjacent failed frames zeroed out in the middle
	total := frame.Size * 8
	samples := make([]float32, total)
	for i := range samples {
		samples[i] = 0.5 * float32(math.Sin(2*math.Pi*440*float64(i)/float64(frame.SampleRate)))
	}
	gapStart := frame.Size * 3
	gaps := []int{gapStart, gapStart + frame.Size}
	for i := gapStart; i < gapStart+2*frame.Size; i++ {
		samples[i] = 0
	}

	concealGaps(samples, gaps, fourierext.New())

	var sum float64
	for i := gapStart; i < gapStart+2*frame.Size; i++ {
		sum += float64(samples[i]) * float64(samples[i])
	}
	rms := math.Sqrt(sum / float64(2*frame.Size))
	require.Greater(t, rms, 0.05, "the gap must carry synthesized audio, not silence")
	for _, s := range samples {
		require.False(t, math.IsNaN(float64(s)))
	}
}
