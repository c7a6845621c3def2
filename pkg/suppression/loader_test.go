package suppression

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoaderSharesOneAttempt(t *testing.T) {
	ctx := context.Background()

	var factoryCalls atomic.Int64
	releaseCh := make(chan struct{})
	loader := NewLoader(func(context.Context) (Suppressor, error) {
		factoryCalls.Add(1)
		<-releaseCh
		return Dummy{}, nil
	}, time.Minute)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, results[idx] = loader.Load(ctx)
		}(i)
	}

	// let every caller attach to the in-flight attempt before releasing it
	time.Sleep(50 * time.Millisecond)
	close(releaseCh)
	wg.Wait()

	require.EqualValues(t, 1, factoryCalls.Load())
	for idx, err := range results {
		require.NoError(t, err, "caller %d", idx)
	}
}

func TestLoaderTimeout(t *testing.T) {
	ctx := context.Background()

	loader := NewLoader(func(ctx context.Context) (Suppressor, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, 20*time.Millisecond)

	_, err := loader.Load(ctx)
	var timeoutErr *InitializationTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	require.Equal(t, "initialization-timeout", timeoutErr.Code())
}

func TestLoaderRetriesAfterFailure(t *testing.T) {
	ctx := context.Background()

	var factoryCalls atomic.Int64
	loader := NewLoader(func(context.Context) (Suppressor, error) {
		if factoryCalls.Add(1) == 1 {
			return nil, fmt.Errorf("transient failure")
		}
		return Dummy{}, nil
	}, time.Minute)

	_, err := loader.Load(ctx)
	require.Error(t, err)

	s, err := loader.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	require.EqualValues(t, 2, factoryCalls.Load())
}

func TestLoadOrFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("success is not degraded", func(t *testing.T) {
		loader := NewLoader(func(context.Context) (Suppressor, error) {
			return Dummy{}, nil
		}, time.Minute)
		result := loader.LoadOrFallback(ctx)
		require.False(t, result.Degraded)
		require.NoError(t, result.Cause)
		require.IsType(t, Dummy{}, result.Suppressor)
	})

	t.Run("failure falls back to the gate", func(t *testing.T) {
		loader := NewLoader(func(context.Context) (Suppressor, error) {
			return nil, fmt.Errorf("no model")
		}, time.Minute)
		result := loader.LoadOrFallback(ctx)
		require.True(t, result.Degraded)
		require.Error(t, result.Cause)
		require.IsType(t, &Gate{}, result.Suppressor)
	})
}
