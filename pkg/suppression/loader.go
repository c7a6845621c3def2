package suppression

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
)

// DefaultLoadTimeout bounds how long a model load attempt may take before
// it is abandoned.
const DefaultLoadTimeout = 5 * time.Second

// Factory constructs a Suppressor. It may block (native library
// initialization, model weights loading); the Loader races it against the
// configured timeout.
type Factory func(ctx context.Context) (Suppressor, error)

// InitializationTimeoutError is returned when a model load attempt did not
// complete within the configured timeout.
type InitializationTimeoutError struct {
	Timeout time.Duration
}

func (e *InitializationTimeoutError) Error() string {
	return fmt.Sprintf("model loading did not complete within %v", e.Timeout)
}

func (e *InitializationTimeoutError) Code() string {
	return "initialization-timeout"
}

// LoadResult is the explicit two-variant outcome of one load attempt:
// either a real model (Degraded == false) or the Gate fallback together
// with the cause that forced it. The caller decides whether degraded
// operation is acceptable.
type LoadResult struct {
	Suppressor Suppressor
	Degraded   bool
	Cause      error
}

type loadAttempt struct {
	done   chan struct{}
	result Suppressor
	err    error
}

type factoryResult struct {
	s   Suppressor
	err error
}

// Loader loads a Suppressor asynchronously, with a timeout, sharing one
// in-flight attempt between concurrent callers.
type Loader struct {
	factory Factory
	timeout time.Duration

	locker  sync.Mutex
	attempt *loadAttempt
}

func NewLoader(factory Factory, timeout time.Duration) *Loader {
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}
	return &Loader{
		factory: factory,
		timeout: timeout,
	}
}

// Load returns the loaded Suppressor, waiting for the shared in-flight
// attempt if one is already running. Concurrent callers never trigger a
// second factory invocation while the first is still pending.
func (l *Loader) Load(ctx context.Context) (Suppressor, error) {
	l.locker.Lock()
	attempt := l.attempt
	if attempt == nil {
		attempt = &loadAttempt{done: make(chan struct{})}
		l.attempt = attempt
		observability.Go(ctx, func() {
			l.run(ctx, attempt)
		})
	}
	l.locker.Unlock()

	select {
	case <-attempt.done:
		return attempt.result, attempt.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LoadOrFallback performs one load attempt and, on failure, returns the
// Gate fallback instead of an error.
func (l *Loader) LoadOrFallback(ctx context.Context) LoadResult {
	s, err := l.Load(ctx)
	if err != nil {
		logger.Warnf(ctx, "model loading failed, falling back to the amplitude gate: %v", err)
		return LoadResult{Suppressor: NewGate(), Degraded: true, Cause: err}
	}
	return LoadResult{Suppressor: s}
}

func (l *Loader) run(ctx context.Context, attempt *loadAttempt) {
	defer close(attempt.done)

	logger.Debugf(ctx, "loading the noise suppression model")
	resultCh := make(chan factoryResult, 1)
	observability.Go(ctx, func() {
		s, err := l.factory(ctx)
		resultCh <- factoryResult{s: s, err: err}
	})

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()
	select {
	case r := <-resultCh:
		logger.Debugf(ctx, "/loading the noise suppression model: %v", r.err)
		attempt.result, attempt.err = r.s, r.err
	case <-timer.C:
		attempt.err = &InitializationTimeoutError{Timeout: l.timeout}
		l.discardLate(ctx, resultCh)
	case <-ctx.Done():
		attempt.err = ctx.Err()
		l.discardLate(ctx, resultCh)
	}

	if attempt.err != nil {
		// a later Load may retry
		l.locker.Lock()
		if l.attempt == attempt {
			l.attempt = nil
		}
		l.locker.Unlock()
	}
}

// discardLate releases a model that finished loading after the attempt was
// already abandoned.
func (l *Loader) discardLate(ctx context.Context, resultCh <-chan factoryResult) {
	observability.Go(ctx, func() {
		r := <-resultCh
		if r.s != nil {
			if err := r.s.Close(); err != nil {
				logger.Errorf(ctx, "unable to close a late-loaded model: %v", err)
			}
		}
	})
}
