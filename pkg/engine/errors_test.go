package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	require.Equal(t, "already-initialized", CodeOf(&AlreadyInitializedError{}))
	require.Equal(t, "environment-unsupported", CodeOf(&EnvironmentUnsupportedError{Capability: "x"}))
	require.Equal(t, "internal", CodeOf(fmt.Errorf("something else")))

	// the code survives wrapping
	wrapped := fmt.Errorf("outer: %w", &InitializationFailedError{Cause: fmt.Errorf("inner")})
	require.Equal(t, "initialization-failed", CodeOf(wrapped))
}

func TestErrorChainsUnwrap(t *testing.T) {
	cause := fmt.Errorf("the model file is missing")
	err := &InitializationFailedError{Cause: cause}
	require.ErrorIs(t, err, cause)

	procErr := &ProcessingFailedError{StreamID: "s-1", Cause: cause}
	require.ErrorIs(t, procErr, cause)
	require.Contains(t, procErr.Error(), "s-1")

	cleanupErr := &CleanupFailedError{Cause: cause}
	require.ErrorIs(t, cleanupErr, cause)
}

func TestErrorHistoryBound(t *testing.T) {
	h := &errorHistory{}
	for i := 0; i < ErrorHistorySize+5; i++ {
		h.Record(fmt.Errorf("failure %d", i))
	}

	entries := h.List()
	require.Len(t, entries, ErrorHistorySize)
	// the oldest five were evicted, order is oldest first
	require.Equal(t, "failure 5", entries[0].Message)
	require.Equal(t, "failure 14", entries[len(entries)-1].Message)
	require.Equal(t, "internal", entries[0].Code)
}
