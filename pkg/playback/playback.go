// Package playback renders processed audio to the speakers. The input is
// always the processing format of this module: float32le, mono, 48kHz.
package playback

import (
	"context"
	"io"
)

// Stream is one running playback.
type Stream interface {
	io.Closer

	// Drain blocks until the reader is exhausted and the backend played
	// everything out.
	Drain() error
}

// Sink is an audio output backend.
type Sink interface {
	io.Closer

	// Ping verifies the backend can actually play on this host.
	Ping(ctx context.Context) error

	// Play renders float32le mono 48kHz PCM from the reader until EOF or
	// Close.
	Play(ctx context.Context, reader io.Reader) (Stream, error)
}
