package engine

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Coder is implemented by every error of this module that carries a
// stable machine-readable code. Codes are what callers should switch on;
// messages are for humans and logs.
type Coder interface {
	Code() string
}

// CodeOf extracts the stable code from an error chain, or
// "internal" when the chain carries none.
func CodeOf(err error) string {
	var coder Coder
	if errors.As(err, &coder) {
		return coder.Code()
	}
	return "internal"
}

type AlreadyInitializedError struct{}

func (e *AlreadyInitializedError) Error() string {
	return "the engine is already initialized"
}

func (e *AlreadyInitializedError) Code() string {
	return "already-initialized"
}

type InitializationFailedError struct {
	Cause error
}

func (e *InitializationFailedError) Error() string {
	return fmt.Sprintf("unable to initialize the engine: %v", e.Cause)
}

func (e *InitializationFailedError) Unwrap() error {
	return e.Cause
}

func (e *InitializationFailedError) Code() string {
	return "initialization-failed"
}

type EnvironmentUnsupportedError struct {
	Capability string
}

func (e *EnvironmentUnsupportedError) Error() string {
	return fmt.Sprintf("the environment does not support the required capability '%s'", e.Capability)
}

func (e *EnvironmentUnsupportedError) Code() string {
	return "environment-unsupported"
}

type InvalidStateError struct {
	Operation string
	Current   State
	Required  []State
}

func (e *InvalidStateError) Error() string {
	required := make([]string, 0, len(e.Required))
	for _, s := range e.Required {
		required = append(required, string(s))
	}
	return fmt.Sprintf(
		"operation '%s' requires one of the states [%s], but the engine is in '%s'",
		e.Operation, strings.Join(required, ", "), e.Current,
	)
}

func (e *InvalidStateError) Code() string {
	return "invalid-state"
}

type ProcessingFailedError struct {
	StreamID string
	Cause    error
}

func (e *ProcessingFailedError) Error() string {
	if e.StreamID == "" {
		return fmt.Sprintf("unable to process the audio: %v", e.Cause)
	}
	return fmt.Sprintf("unable to process the stream '%s': %v", e.StreamID, e.Cause)
}

func (e *ProcessingFailedError) Unwrap() error {
	return e.Cause
}

func (e *ProcessingFailedError) Code() string {
	return "processing-failed"
}

type CleanupFailedError struct {
	Cause error
}

func (e *CleanupFailedError) Error() string {
	return fmt.Sprintf("the engine was torn down, but a cleanup step failed: %v", e.Cause)
}

func (e *CleanupFailedError) Unwrap() error {
	return e.Cause
}

func (e *CleanupFailedError) Code() string {
	return "cleanup-failed"
}

// ErrorHistorySize is how many recent errors the engine retains for
// diagnostics.
const ErrorHistorySize = 10

// RecordedError is one entry of the bounded error history.
type RecordedError struct {
	Time    time.Time
	Code    string
	Message string
}

// errorHistory is a bounded, oldest-first record of recent engine errors.
// When full, recording a new error evicts the oldest entry.
type errorHistory struct {
	locker  sync.Mutex
	entries []RecordedError
}

func (h *errorHistory) Record(err error) {
	h.locker.Lock()
	defer h.locker.Unlock()
	h.entries = append(h.entries, RecordedError{
		Time:    time.Now(),
		Code:    CodeOf(err),
		Message: err.Error(),
	})
	if len(h.entries) > ErrorHistorySize {
		h.entries = h.entries[len(h.entries)-ErrorHistorySize:]
	}
}

// List returns the retained errors, oldest first.
func (h *errorHistory) List() []RecordedError {
	h.locker.Lock()
	defer h.locker.Unlock()
	result := make([]RecordedError, len(h.entries))
	copy(result, h.entries)
	return result
}
