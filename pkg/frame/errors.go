package frame

import (
	"fmt"
)

// InvalidFrameError is returned when a frame's length is not exactly Size.
type InvalidFrameError struct {
	Length int
}

func (e *InvalidFrameError) Error() string {
	return fmt.Sprintf("invalid frame length: %d != %d", e.Length, Size)
}

func (e *InvalidFrameError) Code() string {
	return "invalid-frame"
}

// InvalidSampleError is returned when a frame contains a non-finite sample.
type InvalidSampleError struct {
	Index int
	Value float64
}

func (e *InvalidSampleError) Error() string {
	return fmt.Sprintf("invalid sample at index %d: %v", e.Index, e.Value)
}

func (e *InvalidSampleError) Code() string {
	return "invalid-sample"
}
