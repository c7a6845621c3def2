package dsp

// Parameters of the fixed voice chain. The topology is applied once per
// stream at setup time and is not reconfigurable per frame:
// high-pass (sub-80Hz rumble) -> notch 1kHz -> notch 2kHz (electronic
// hum/beep and its harmonic) -> low-shelf -3dB below 200Hz (room
// resonance).
const (
	HighPassFreq  = 80.0
	HighPassQ     = 0.707
	NotchFreq     = 1000.0
	NotchHarmonic = 2000.0
	NotchQ        = 30.0
	LowShelfFreq  = 200.0
	LowShelfGain  = -3.0
)

// Chain is a series cascade of biquad sections. State is carried across
// Process calls, so one Chain serves exactly one stream.
type Chain struct {
	sections []*Biquad
}

// NewVoiceChain builds the fixed pre-model filter cascade.
func NewVoiceChain(sampleRate float64) *Chain {
	return &Chain{
		sections: []*Biquad{
			NewHighPass(sampleRate, HighPassFreq, HighPassQ),
			NewNotch(sampleRate, NotchFreq, NotchQ),
			NewNotch(sampleRate, NotchHarmonic, NotchQ),
			NewLowShelf(sampleRate, LowShelfFreq, LowShelfGain),
		},
	}
}

// Process runs the samples through every section in order, in place.
func (c *Chain) Process(samples []float32) {
	for idx, v := range samples {
		x := float64(v)
		for _, section := range c.sections {
			x = section.ProcessSample(x)
		}
		samples[idx] = float32(x)
	}
}

func (c *Chain) Reset() {
	for _, section := range c.sections {
		section.Reset()
	}
}
