package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/voxfilter-go/voxfilter/pkg/suppression"
)

// eventCollector records emitted events; the engine emits from several
// goroutines (the metrics loop included), so access is serialized.
type eventCollector struct {
	locker sync.Mutex
	events []Event
}

func (c *eventCollector) collect(ev Event) {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.events = append(c.events, ev)
}

func (c *eventCollector) stateChanges() []StateChangeEvent {
	c.locker.Lock()
	defer c.locker.Unlock()
	var out []StateChangeEvent
	for _, ev := range c.events {
		if sc, ok := ev.(StateChangeEvent); ok {
			out = append(out, sc)
		}
	}
	return out
}

func (c *eventCollector) find(name string) Event {
	c.locker.Lock()
	defer c.locker.Unlock()
	for _, ev := range c.events {
		if ev.EventName() == name {
			return ev
		}
	}
	return nil
}

func dummyFactory(context.Context) (suppression.Suppressor, error) {
	return suppression.Dummy{}, nil
}

type failingCloser struct {
	err error
}

func (c *failingCloser) Close() error { return c.err }

func TestEngineInitialize(t *testing.T) {
	ctx := context.Background()
	collector := &eventCollector{}
	e := New(Config{SuppressorFactory: dummyFactory})
	unsubscribe := e.Subscribe(collector.collect)
	defer unsubscribe()

	require.Equal(t, StateUninitialized, e.State())
	require.NoError(t, e.Initialize(ctx))
	require.Equal(t, StateReady, e.State())
	require.False(t, e.DegradedMode())

	changes := collector.stateChanges()
	require.Len(t, changes, 4)
	require.Equal(t, StateUninitialized, changes[0].Old)
	require.Equal(t, StateInitializing, changes[0].New)
	require.Equal(t, StateCreatingContext, changes[1].New)
	require.Equal(t, StateLoadingModel, changes[2].New)
	require.Equal(t, StateReady, changes[3].New)

	t.Run("second initialize is rejected", func(t *testing.T) {
		err := e.Initialize(ctx)
		var alreadyErr *AlreadyInitializedError
		require.ErrorAs(t, err, &alreadyErr)
		require.Equal(t, "already-initialized", CodeOf(err))
	})

	require.NoError(t, e.Destroy(ctx, false))
	require.Equal(t, StateDestroyed, e.State())
}

func TestEngineConcurrentInitializeSharesOneAttempt(t *testing.T) {
	ctx := context.Background()
	var factoryCalls atomic.Int64
	releaseCh := make(chan struct{})
	e := New(Config{
		SuppressorFactory: func(context.Context) (suppression.Suppressor, error) {
			factoryCalls.Add(1)
			<-releaseCh
			return suppression.Dummy{}, nil
		},
	})

	const callers = 8
	errCh := make(chan error, callers)
	for i := 0; i < callers; i++ {
		go func() {
			errCh <- e.Initialize(ctx)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(releaseCh)

	for i := 0; i < callers; i++ {
		require.NoError(t, <-errCh)
	}
	require.Equal(t, int64(1), factoryCalls.Load())
	require.Equal(t, StateReady, e.State())
	require.NoError(t, e.Destroy(ctx, false))
}

func TestEngineInitializeRetryAfterFailure(t *testing.T) {
	ctx := context.Background()
	var calls int
	e := New(Config{
		SuppressorFactory: func(context.Context) (suppression.Suppressor, error) {
			calls++
			if calls == 1 {
				return nil, fmt.Errorf("the model blob is corrupted")
			}
			return suppression.Dummy{}, nil
		},
	})

	err := e.Initialize(ctx)
	require.Error(t, err)
	require.Equal(t, "initialization-failed", CodeOf(err))
	require.Equal(t, StateError, e.State())

	history := e.ErrorHistory()
	require.Len(t, history, 1)
	require.Equal(t, "initialization-failed", history[0].Code)

	require.NoError(t, e.Initialize(ctx))
	require.Equal(t, StateReady, e.State())
	require.Equal(t, 2, calls)
	require.NoError(t, e.Destroy(ctx, false))
}

func TestEngineDegradedFallback(t *testing.T) {
	ctx := context.Background()
	collector := &eventCollector{}
	e := New(Config{
		SuppressorFactory: func(context.Context) (suppression.Suppressor, error) {
			return nil, fmt.Errorf("neural backend unavailable")
		},
		AllowDegraded: true,
	})
	unsubscribe := e.Subscribe(collector.collect)
	defer unsubscribe()

	require.NoError(t, e.Initialize(ctx))
	require.Equal(t, StateDegraded, e.State())
	require.True(t, e.DegradedMode())

	// the failure is surfaced through the error path before the fallback
	// settles into the degraded state
	changes := collector.stateChanges()
	require.Equal(t, StateError, changes[len(changes)-2].New)
	require.Equal(t, StateDegraded, changes[len(changes)-1].New)

	degradedEv := collector.find("degraded-mode")
	require.NotNil(t, degradedEv)
	require.ErrorContains(t, degradedEv.(DegradedModeEvent).Cause, "neural backend unavailable")

	history := e.ErrorHistory()
	require.NotEmpty(t, history)
	require.Equal(t, "initialization-failed", history[0].Code)

	require.NoError(t, e.Destroy(ctx, false))
}

func TestEngineDestroy(t *testing.T) {
	ctx := context.Background()

	t.Run("cleanup failure is returned after full teardown", func(t *testing.T) {
		closeErr := fmt.Errorf("the device is wedged")
		e := New(Config{
			SuppressorFactory: dummyFactory,
			ContextFactory: func(context.Context) (AudioContext, error) {
				return &failingCloser{err: closeErr}, nil
			},
		})
		require.NoError(t, e.Initialize(ctx))

		err := e.Destroy(ctx, false)
		var cleanupErr *CleanupFailedError
		require.ErrorAs(t, err, &cleanupErr)
		require.ErrorIs(t, err, closeErr)
		// the teardown still completed
		require.Equal(t, StateDestroyed, e.State())

		history := e.ErrorHistory()
		require.Equal(t, "cleanup-failed", history[len(history)-1].Code)
	})

	t.Run("destroy is idempotent", func(t *testing.T) {
		e := New(Config{SuppressorFactory: dummyFactory})
		require.NoError(t, e.Initialize(ctx))
		require.NoError(t, e.Destroy(ctx, false))
		require.NoError(t, e.Destroy(ctx, false))
		require.Equal(t, StateDestroyed, e.State())
	})

	t.Run("initialize after destroy is rejected", func(t *testing.T) {
		e := New(Config{SuppressorFactory: dummyFactory})
		require.NoError(t, e.Initialize(ctx))
		require.NoError(t, e.Destroy(ctx, false))

		err := e.Initialize(ctx)
		require.Error(t, err)
		require.Equal(t, "invalid-state", CodeOf(err))
		require.Equal(t, StateDestroyed, e.State())
	})

	t.Run("uninitialized engine can be destroyed", func(t *testing.T) {
		e := New(Config{SuppressorFactory: dummyFactory})
		require.NoError(t, e.Destroy(ctx, true))
		require.Equal(t, StateDestroyed, e.State())
	})

	t.Run("destroyed event is emitted", func(t *testing.T) {
		collector := &eventCollector{}
		e := New(Config{SuppressorFactory: dummyFactory})
		e.Subscribe(collector.collect)
		require.NoError(t, e.Initialize(ctx))
		require.NoError(t, e.Destroy(ctx, false))
		require.NotNil(t, collector.find("destroyed"))
	})
}

func TestEngineMetricsWithoutStreams(t *testing.T) {
	e := New(Config{SuppressorFactory: dummyFactory})
	m := e.Metrics()
	require.Zero(t, m.FramesProcessed)
	require.Zero(t, m.InputRMS)
	require.False(t, m.Timestamp.IsZero())
}

func TestEngineAGCToggle(t *testing.T) {
	e := New(Config{SuppressorFactory: dummyFactory, AGCEnabled: true})
	require.True(t, e.AGCEnabled())
	e.SetAGCEnabled(false)
	require.False(t, e.AGCEnabled())
}

func TestEngineUnknownAlgorithm(t *testing.T) {
	ctx := context.Background()
	e := New(Config{Algorithm: Algorithm("quantum")})
	err := e.Initialize(ctx)
	require.Error(t, err)
	require.Equal(t, "initialization-failed", CodeOf(err))
	var unsupportedErr *EnvironmentUnsupportedError
	require.ErrorAs(t, err, &unsupportedErr)
	require.Equal(t, "algorithm:quantum", unsupportedErr.Capability)
}
