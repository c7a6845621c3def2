package suppression

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/voxfilter-go/voxfilter/pkg/frame"
	"github.com/voxfilter-go/voxfilter/pkg/suppression"
)

func buildSamples(silentFrames, voicedFrames int) []float32 {
	out := make([]float32, 0, (silentFrames+voicedFrames)*frame.Size)
	out = append(out, make([]float32, silentFrames*frame.Size)...)
	for i := 0; i < voicedFrames*frame.Size; i++ {
		v := 0.5 * float32(math.Sin(2*math.Pi*300*float64(i)/float64(frame.SampleRate)))
		out = append(out, v)
	}
	return out
}

func TestFindNextVoice(t *testing.T) {
	ctx := context.Background()
	v := NewVAD(suppression.NewGate())

	t.Run("voice after leading silence", func(t *testing.T) {
		samples := buildSamples(10, 10)
		confidence, offset, err := v.FindNextVoice(ctx, samples, 0.5, 30*time.Millisecond)
		require.NoError(t, err)
		require.Equal(t, 1.0, confidence)
		require.Equal(t, 10*frameDuration, offset)
	})

	t.Run("silence only", func(t *testing.T) {
		samples := buildSamples(20, 0)
		confidence, offset, err := v.FindNextVoice(ctx, samples, 0.5, 30*time.Millisecond)
		require.NoError(t, err)
		require.Less(t, confidence, 0.5)
		require.Equal(t, time.Duration(-1), offset)
	})

	t.Run("empty input", func(t *testing.T) {
		_, offset, err := v.FindNextVoice(ctx, nil, 0.5, 30*time.Millisecond)
		require.NoError(t, err)
		require.Equal(t, time.Duration(-1), offset)
	})

	t.Run("voice shorter than the minimum run", func(t *testing.T) {
		samples := buildSamples(0, 2)
		_, offset, err := v.FindNextVoice(ctx, samples, 0.5, 100*time.Millisecond)
		require.NoError(t, err)
		// two voiced frames never reach 100ms; the partial run is still
		// reported through the offset of its first frame
		require.Equal(t, time.Duration(0), offset)
	})
}
