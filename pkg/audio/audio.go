package audio

import (
	"fmt"
	"time"
)

// SampleRate is an amount of samples per second.
type SampleRate uint

// Channel is an amount of audio channels (1 for mono, 2 for stereo, ...).
type Channel uint16

type PCMFormat int

const (
	PCMFormatUndefined = PCMFormat(iota)
	PCMFormatS16LE
	PCMFormatFloat32LE
)

// Size returns the amount of bytes required to store one sample.
func (f PCMFormat) Size() uint {
	switch f {
	case PCMFormatS16LE:
		return 2
	case PCMFormatFloat32LE:
		return 4
	default:
		panic(fmt.Sprintf("unknown format: %d", int(f)))
	}
}

func (f PCMFormat) String() string {
	switch f {
	case PCMFormatUndefined:
		return "undefined"
	case PCMFormatS16LE:
		return "s16le"
	case PCMFormatFloat32LE:
		return "f32le"
	default:
		return fmt.Sprintf("unknown_format_%d", int(f))
	}
}

// EncodingPCM describes a raw (uncompressed) audio sample stream.
type EncodingPCM struct {
	PCMFormat  PCMFormat
	SampleRate SampleRate
}

func (e EncodingPCM) BytesPerSample() uint {
	return e.PCMFormat.Size()
}

func (e EncodingPCM) BytesForDuration(d time.Duration) uint64 {
	samples := uint64(d.Seconds() * float64(e.SampleRate))
	return samples * uint64(e.BytesPerSample())
}

func (e EncodingPCM) DurationForBytes(b uint64) time.Duration {
	samples := b / uint64(e.BytesPerSample())
	return time.Duration(float64(samples) / float64(e.SampleRate) * float64(time.Second))
}
