package wave

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voxfilter-go/voxfilter/pkg/audio"
)

func TestEncodeHeader(t *testing.T) {
	samples := make([]float32, 100)
	b := Encode(samples, 48000)

	require.Len(t, b, HeaderSize+200)
	require.Equal(t, "RIFF", string(b[0:4]))
	require.Equal(t, uint32(36+200), binary.LittleEndian.Uint32(b[4:8]))
	require.Equal(t, "WAVE", string(b[8:12]))
	require.Equal(t, "fmt ", string(b[12:16]))
	require.Equal(t, uint32(16), binary.LittleEndian.Uint32(b[16:20]))
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(b[20:22]), "PCM")
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(b[22:24]), "mono")
	require.Equal(t, uint32(48000), binary.LittleEndian.Uint32(b[24:28]))
	require.Equal(t, uint32(96000), binary.LittleEndian.Uint32(b[28:32]), "byte rate")
	require.Equal(t, uint16(2), binary.LittleEndian.Uint16(b[32:34]), "block align")
	require.Equal(t, uint16(16), binary.LittleEndian.Uint16(b[34:36]))
	require.Equal(t, "data", string(b[36:40]))
	require.Equal(t, uint32(200), binary.LittleEndian.Uint32(b[40:44]))
}

func TestRoundTrip(t *testing.T) {
	in := make([]float32, 4800)
	for idx := range in {
		in[idx] = float32(math.Sin(2 * math.Pi * 440 * float64(idx) / 48000))
	}

	decoded, rate, err := Decode(Encode(in, 48000))
	require.NoError(t, err)
	require.Equal(t, audio.SampleRate(48000), rate)
	require.Len(t, decoded, len(in))
	for idx := range in {
		require.InDelta(t, float64(in[idx]), float64(decoded[idx]), 1.0/32000, "sample %d", idx)
	}
}

func TestEncodeClamps(t *testing.T) {
	b := Encode([]float32{2.0, -2.0, 1.0, -1.0}, 48000)
	require.Equal(t, int16(32767), int16(binary.LittleEndian.Uint16(b[HeaderSize:])))
	require.Equal(t, int16(-32768), int16(binary.LittleEndian.Uint16(b[HeaderSize+2:])))
	// full scale clips by one step on the positive side only
	require.Equal(t, int16(32767), int16(binary.LittleEndian.Uint16(b[HeaderSize+4:])))
	require.Equal(t, int16(-32768), int16(binary.LittleEndian.Uint16(b[HeaderSize+6:])))
}

func TestDecodeRejections(t *testing.T) {
	requireUnsupported := func(t *testing.T, b []byte, parameter string) {
		t.Helper()
		_, _, err := Decode(b)
		var formatErr *UnsupportedFormatError
		require.ErrorAs(t, err, &formatErr)
		require.Equal(t, parameter, formatErr.Parameter)
		require.Equal(t, "unsupported-format", formatErr.Code())
	}

	t.Run("too short", func(t *testing.T) {
		requireUnsupported(t, make([]byte, 10), "container")
	})

	t.Run("not RIFF", func(t *testing.T) {
		requireUnsupported(t, make([]byte, HeaderSize), "container")
	})

	t.Run("stereo", func(t *testing.T) {
		b := Encode(make([]float32, 10), 48000)
		binary.LittleEndian.PutUint16(b[22:24], 2)
		requireUnsupported(t, b, "channels")
	})

	t.Run("wrong bit depth", func(t *testing.T) {
		b := Encode(make([]float32, 10), 48000)
		binary.LittleEndian.PutUint16(b[34:36], 24)
		requireUnsupported(t, b, "bits per sample")
	})

	t.Run("non-PCM", func(t *testing.T) {
		b := Encode(make([]float32, 10), 48000)
		binary.LittleEndian.PutUint16(b[20:22], 3)
		requireUnsupported(t, b, "audio format")
	})
}

func TestDecodeSkipsForeignChunks(t *testing.T) {
	// a LIST chunk between fmt and data must be walked over
	base := Encode([]float32{0.5, -0.5}, 44100)
	var b []byte
	b = append(b, base[:36]...)
	b = append(b, []byte("LIST")...)
	b = binary.LittleEndian.AppendUint32(b, 4)
	b = append(b, []byte("INFO")...)
	b = append(b, base[36:]...)
	binary.LittleEndian.PutUint32(b[4:8], uint32(len(b)-8))

	samples, rate, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, audio.SampleRate(44100), rate)
	require.Len(t, samples, 2)
	require.InDelta(t, 0.5, float64(samples[0]), 0.001)
}
