// Package wave reads and writes the WAV container the file-processing
// interface accepts and produces: PCM, mono, 16-bit.
package wave

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/voxfilter-go/voxfilter/pkg/audio"
)

const (
	// HeaderSize is the canonical RIFF/WAVE/fmt/data header length.
	HeaderSize = 44

	formatPCM = 1
)

// UnsupportedFormatError names the parameter of the input that the
// file-processing contract rejects.
type UnsupportedFormatError struct {
	Parameter string
	Value     string
	Expected  string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format: %s is %s, expected %s", e.Parameter, e.Value, e.Expected)
}

func (e *UnsupportedFormatError) Code() string {
	return "unsupported-format"
}

// Decode parses a WAV byte buffer, requiring PCM, mono, 16-bit. Any other
// encoding, channel count or bit depth is rejected with an
// *UnsupportedFormatError naming the offending parameter. The sample rate
// is returned as-is; resampling is the caller's concern.
func Decode(b []byte) ([]float32, audio.SampleRate, error) {
	if len(b) < HeaderSize {
		return nil, 0, &UnsupportedFormatError{Parameter: "container", Value: fmt.Sprintf("%d bytes", len(b)), Expected: "at least a 44-byte WAV header"}
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, 0, &UnsupportedFormatError{Parameter: "container", Value: "not RIFF/WAVE", Expected: "RIFF/WAVE"}
	}

	var sampleRate audio.SampleRate
	var data []byte
	fmtSeen := false

	// walk chunks; fmt and data are the only ones we care about
	pos := 12
	for pos+8 <= len(b) {
		chunkID := string(b[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := b[pos+8:]
		if chunkSize > len(body) {
			chunkSize = len(body)
		}
		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, 0, &UnsupportedFormatError{Parameter: "fmt chunk", Value: fmt.Sprintf("%d bytes", chunkSize), Expected: "at least 16 bytes"}
			}
			audioFormat := binary.LittleEndian.Uint16(body[0:2])
			if audioFormat != formatPCM {
				return nil, 0, &UnsupportedFormatError{Parameter: "audio format", Value: fmt.Sprintf("%d", audioFormat), Expected: "1 (PCM)"}
			}
			channels := binary.LittleEndian.Uint16(body[2:4])
			if channels != 1 {
				return nil, 0, &UnsupportedFormatError{Parameter: "channels", Value: fmt.Sprintf("%d", channels), Expected: "1 (mono)"}
			}
			bitsPerSample := binary.LittleEndian.Uint16(body[14:16])
			if bitsPerSample != 16 {
				return nil, 0, &UnsupportedFormatError{Parameter: "bits per sample", Value: fmt.Sprintf("%d", bitsPerSample), Expected: "16"}
			}
			sampleRate = audio.SampleRate(binary.LittleEndian.Uint32(body[4:8]))
			fmtSeen = true
		case "data":
			data = body[:chunkSize]
		}
		pos += 8 + chunkSize
		if chunkSize%2 == 1 {
			pos++ // RIFF chunks are word-aligned
		}
	}

	if !fmtSeen {
		return nil, 0, &UnsupportedFormatError{Parameter: "fmt chunk", Value: "missing", Expected: "present"}
	}
	if data == nil {
		return nil, 0, &UnsupportedFormatError{Parameter: "data chunk", Value: "missing", Expected: "present"}
	}

	samples := make([]float32, len(data)/2)
	for idx := range samples {
		samples[idx] = float32(int16(binary.LittleEndian.Uint16(data[idx*2:]))) / 32768
	}
	return samples, sampleRate, nil
}

// Encode writes normalized samples as a 16-bit mono PCM WAV buffer with
// the standard 44-byte header.
func Encode(samples []float32, sampleRate audio.SampleRate) []byte {
	dataSize := len(samples) * 2
	out := make([]byte, HeaderSize+dataSize)

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(HeaderSize+dataSize-8))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], formatPCM)
	binary.LittleEndian.PutUint16(out[22:24], 1) // mono
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate)*2) // byte rate
	binary.LittleEndian.PutUint16(out[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(out[34:36], 16)                   // bits per sample
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	for idx, v := range samples {
		// round to nearest on the same 32768 scale Decode divides by;
		// truncation or an asymmetric 32767 scale biases the round trip
		n := math.Round(float64(v) * 32768)
		if n > 32767 {
			n = 32767
		}
		if n < -32768 {
			n = -32768
		}
		binary.LittleEndian.PutUint16(out[HeaderSize+idx*2:], uint16(int16(n)))
	}
	return out
}
