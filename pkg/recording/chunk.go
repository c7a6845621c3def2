package recording

import (
	"time"
)

// ChunkMetrics is the metrics snapshot embedded into a finalized chunk.
// NoiseRemoved is always within [0..100]: when no metrics feed is
// available it falls back to 0, never to a sentinel or a blob-size-derived
// guess.
type ChunkMetrics struct {
	ProcessingLatency time.Duration
	FrameCount        uint64
	DroppedFrames     uint64
	InputLevel        float64
	OutputLevel       float64
	NoiseRemoved      float64
}

// ProcessedChunk is one finalized time-boxed recording segment, carrying
// both the processed and the original audio variant.
type ProcessedChunk struct {
	ID        string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	ProcessedURL  string
	OriginalURL   string
	ProcessedSize int
	OriginalSize  int

	IsValid      bool
	ErrorMessage string

	Metrics ChunkMetrics
}

// chunkRecording is one in-flight cycle's accumulated raw segments for both
// capture devices.
type chunkRecording struct {
	startedAt          time.Time
	processedFragments [][]byte
	originalFragments  [][]byte
	finalized          bool
}

func totalSize(fragments [][]byte) int {
	var n int
	for _, f := range fragments {
		n += len(f)
	}
	return n
}

func assemble(fragments [][]byte) []byte {
	out := make([]byte, 0, totalSize(fragments))
	for _, f := range fragments {
		out = append(out, f...)
	}
	return out
}
