// Package conceal fills gaps left by frames the suppressor failed to
// process. It is used by the offline file path, where both sides of a gap
// are available.
package conceal

// Interpolator synthesizes gapLen samples bridging the signal between the
// before and after context windows.
type Interpolator interface {
	Interpolate(before, after []float64, gapLen int) []float64
}

// Zero is the trivial interpolator: it fills gaps with silence.
type Zero struct{}

var _ Interpolator = Zero{}

func (Zero) Interpolate(_, _ []float64, gapLen int) []float64 {
	return make([]float64, gapLen)
}
