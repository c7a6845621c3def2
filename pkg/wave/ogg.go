package wave

import (
	"bytes"
	"fmt"

	"github.com/jfreymuth/oggvorbis"
	"github.com/voxfilter-go/voxfilter/pkg/audio"
	"github.com/voxfilter-go/voxfilter/pkg/resample"
)

// DecodeOgg decodes an Ogg/Vorbis buffer into normalized mono samples.
// Multi-channel input is mixed down by averaging.
func DecodeOgg(b []byte) ([]float32, audio.SampleRate, error) {
	data, format, err := oggvorbis.ReadAll(bytes.NewReader(b))
	if err != nil {
		return nil, 0, fmt.Errorf("unable to decode ogg/vorbis: %w", err)
	}
	samples := resample.MixdownMono(data, audio.Channel(format.Channels))
	return samples, audio.SampleRate(format.SampleRate), nil
}
