package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSampleRate = 48000.0

// sineRMS runs a steady sine through the filter and measures the RMS of
// the second half, after the transient settled.
func sineRMS(b *Biquad, freq float64) float64 {
	n := int(testSampleRate)
	var sum float64
	var count int
	for i := 0; i < n; i++ {
		v := math.Sin(2 * math.Pi * freq * float64(i) / testSampleRate)
		out := b.ProcessSample(v)
		if i >= n/2 {
			sum += out * out
			count++
		}
	}
	return math.Sqrt(sum / float64(count))
}

const unitSineRMS = 0.7071

func TestHighPass(t *testing.T) {
	t.Run("attenuates below the cutoff", func(t *testing.T) {
		b := NewHighPass(testSampleRate, HighPassFreq, HighPassQ)
		require.Less(t, sineRMS(b, 30), 0.15)
	})
	t.Run("passes voice frequencies", func(t *testing.T) {
		b := NewHighPass(testSampleRate, HighPassFreq, HighPassQ)
		require.InDelta(t, unitSineRMS, sineRMS(b, 800), 0.05)
	})
}

func TestNotch(t *testing.T) {
	t.Run("attenuates the center frequency", func(t *testing.T) {
		b := NewNotch(testSampleRate, NotchFreq, NotchQ)
		require.Less(t, sineRMS(b, NotchFreq), 0.1)
	})
	t.Run("passes frequencies away from the notch", func(t *testing.T) {
		b := NewNotch(testSampleRate, NotchFreq, NotchQ)
		require.InDelta(t, unitSineRMS, sineRMS(b, 400), 0.05)
	})
}

func TestLowShelf(t *testing.T) {
	b := NewLowShelf(testSampleRate, LowShelfFreq, LowShelfGain)
	got := sineRMS(b, 60)
	want := unitSineRMS * math.Pow(10, LowShelfGain/20.0)
	require.InDelta(t, want, got, 0.05)
}

func TestVoiceChain(t *testing.T) {
	chain := NewVoiceChain(testSampleRate)

	t.Run("suppresses hum and the notched harmonics", func(t *testing.T) {
		chain.Reset()
		samples := sineSamples(NotchFreq, 48000)
		chain.Process(samples)
		require.Less(t, rms(samples[24000:]), 0.1)
	})

	t.Run("keeps mid voice band mostly intact", func(t *testing.T) {
		chain.Reset()
		samples := sineSamples(500, 48000)
		chain.Process(samples)
		require.Greater(t, rms(samples[24000:]), 0.5)
	})
}

func sineSamples(freq float64, n int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / testSampleRate))
	}
	return samples
}

func rms(samples []float32) float64 {
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
