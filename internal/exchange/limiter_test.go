package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_MinimumSpacing(t *testing.T) {
	l := NewLimiter(50, 5, 10, 100)
	ctx := context.Background()

	var starts []time.Time
	for i := 0; i < 3; i++ {
		err := l.Do(ctx, func(ctx context.Context) error {
			starts = append(starts, time.Now())
			return nil
		})
		require.NoError(t, err)
	}

	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		require.GreaterOrEqualf(t, gap, 50*time.Millisecond, "gap %d was %s", i, gap)
	}
}

func TestLimiter_RetriesTransientThenSucceeds(t *testing.T) {
	l := NewLimiter(1, 5, 500, 4000)
	ctx := context.Background()

	attempts := 0
	start := time.Now()
	err := l.Do(ctx, func(ctx context.Context) error {
		attempts++
		if attempts <= 2 {
			return &HTTPStatusError{StatusCode: 503, Err: errors.New("boom")}
		}
		return nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.GreaterOrEqual(t, elapsed, 1500*time.Millisecond)
}

func TestLimiter_PermanentErrorNotRetried(t *testing.T) {
	l := NewLimiter(1, 5, 1, 10)
	ctx := context.Background()

	attempts := 0
	err := l.Do(ctx, func(ctx context.Context) error {
		attempts++
		return &HTTPStatusError{StatusCode: 400, Err: errors.New("bad request")}
	})

	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestLimiter_ExhaustsRetriesAndSurfacesLastError(t *testing.T) {
	l := NewLimiter(1, 3, 1, 5)
	ctx := context.Background()

	attempts := 0
	err := l.Do(ctx, func(ctx context.Context) error {
		attempts++
		return &HTTPStatusError{StatusCode: 429, Err: errors.New("rate limited")}
	})

	require.Error(t, err)
	require.Equal(t, 3, attempts)
}
