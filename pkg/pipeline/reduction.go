package pipeline

// Level selects how aggressively noise suppression shapes the output.
type Level string

const (
	LevelLow    = Level("low")
	LevelMedium = Level("medium")
	LevelHigh   = Level("high")
	LevelAuto   = Level("auto")
)

// ReductionFactor returns the static post-model multiplier for the given
// level. The factors are mild since the AGC independently restores
// perceived loudness; unknown levels fall back to the medium factor.
func ReductionFactor(level Level) float64 {
	switch level {
	case LevelLow:
		return 1.0
	case LevelMedium:
		return 0.9
	case LevelHigh:
		return 0.8
	case LevelAuto:
		return 0.9
	default:
		return 0.9
	}
}
