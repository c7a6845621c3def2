// Package capture acquires live microphone audio in the processing
// format of this module: float32le, mono, 48kHz. Backends register
// themselves through the registry; NewSourceAuto picks the best one
// available at runtime.
package capture

import (
	"context"
	"io"
)

// Stream is one running capture.
type Stream interface {
	io.Closer

	// Drain blocks until the capture goroutines finished.
	Drain() error
}

// Source is an audio input backend.
type Source interface {
	io.Closer

	// Ping verifies the backend can actually capture on this host.
	Ping(ctx context.Context) error

	// Capture streams float32le mono 48kHz PCM into the writer until the
	// stream is closed or the context is canceled.
	Capture(ctx context.Context, writer io.Writer) (Stream, error)
}
