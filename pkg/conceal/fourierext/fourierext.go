// Package fourierext conceals gaps by spectral extension: the tonal
// components on each side of a gap are identified with an FFT and projected
// into the gap as phase-continuous sinusoids, then the two projections are
// cross-faded.
package fourierext

import (
	"math"

	"github.com/brettbuddin/fourier"
	"github.com/voxfilter-go/voxfilter/pkg/conceal"
)

const (
	// maxWindow caps the FFT analysis window on each side of the gap.
	maxWindow = 1024

	// minContext is the minimum amount of samples required on each side for
	// the spectral analysis to be meaningful.
	minContext = 4

	// peakSensitivity: a spectral peak must stand this far above the average
	// magnitude to count as a tonal component rather than noise floor.
	peakSensitivity = 2.5
)

type Interpolator struct{}

var _ conceal.Interpolator = Interpolator{}

func New() Interpolator {
	return Interpolator{}
}

func (Interpolator) Interpolate(before, after []float64, gapLen int) []float64 {
	if gapLen <= 0 {
		return nil
	}
	if len(before) < minContext || len(after) < minContext {
		return make([]float64, gapLen)
	}

	n := largestPowerOfTwo(min(len(before), len(after), maxWindow))
	windowBefore := before[len(before)-n:]
	windowAfter := after[:n]

	forward := extend(windowBefore, gapLen, true)
	backward := extend(windowAfter, gapLen, false)

	// Anchor both projections to the actual boundary samples so the stitch
	// points are click-free, then cross-fade with a cubic weight.
	vStart := windowBefore[n-1]
	vEnd := windowAfter[0]
	startDiff := forward[0] - vStart
	endDiff := backward[gapLen-1] - vEnd

	result := make([]float64, gapLen)
	for i := range result {
		t := float64(i+1) / float64(gapLen+1)
		w := t * t * (3 - 2*t)
		result[i] = (1-w)*forward[i] + w*backward[i] - (1-w)*startDiff - w*endDiff
	}
	return result
}

// extend projects the tonal peaks of samples beyond the window: forward in
// time when forward is true, backward otherwise.
func extend(samples []float64, gapLen int, forward bool) []float64 {
	n := len(samples)
	coeffs := make([]complex128, n)
	for i, v := range samples {
		coeffs[i] = complex(v, 0)
	}
	if err := fourier.Forward(coeffs); err != nil {
		return make([]float64, gapLen)
	}

	magnitudes := make([]float64, n)
	var avg float64
	for i, c := range coeffs {
		magnitudes[i] = math.Hypot(real(c), imag(c))
		avg += magnitudes[i]
	}
	threshold := avg / float64(n) * peakSensitivity

	type peak struct {
		bin   int
		mag   float64
		phase float64
	}
	var peaks []peak
	for i := 1; i < n/2; i++ {
		if magnitudes[i] > threshold && magnitudes[i] > magnitudes[i-1] && magnitudes[i] > magnitudes[i+1] {
			peaks = append(peaks, peak{
				bin:   i,
				mag:   magnitudes[i] * 2 / float64(n),
				phase: math.Atan2(imag(coeffs[i]), real(coeffs[i])),
			})
		}
	}
	dc := real(coeffs[0]) / float64(n)

	result := make([]float64, gapLen)
	for i := range result {
		var t float64
		if forward {
			t = float64(n + i)
		} else {
			t = float64(i - gapLen)
		}
		sum := dc
		for _, p := range peaks {
			sum += p.mag * math.Cos(2*math.Pi*float64(p.bin)*t/float64(n)+p.phase)
		}
		result[i] = sum
	}
	return result
}

func largestPowerOfTwo(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}
