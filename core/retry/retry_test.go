package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Options{MaxRetries: 3, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	attempts := 0
	wantErr := fmt.Errorf("still broken")
	err := Do(context.Background(), Options{MaxRetries: 2, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, attempts, "initial attempt plus two retries")
}

func TestDo_ShouldRetryVeto(t *testing.T) {
	authErr := errors.New("auth required")
	attempts := 0
	err := Do(context.Background(), Options{
		MaxRetries:   5,
		InitialDelay: time.Millisecond,
		ShouldRetry:  func(err error) bool { return !errors.Is(err, authErr) },
	}, func(ctx context.Context) error {
		attempts++
		return authErr
	})
	assert.ErrorIs(t, err, authErr)
	assert.Equal(t, 1, attempts, "veto must prevent any retry")
}

func TestDo_CancelledBeforeAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Do(ctx, Options{MaxRetries: 3, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, attempts)
}

func TestDo_CancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, Options{MaxRetries: 1, InitialDelay: 10 * time.Second}, func(ctx context.Context) error {
			return fmt.Errorf("transient")
		})
	}()

	// Let the first attempt fail and the wait begin.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), 5*time.Second, "wait must resolve promptly on cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("retry wait did not observe cancellation")
	}
}

func TestDo_CancelledErrorNeverRetried(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Options{MaxRetries: 5, InitialDelay: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		return fmt.Errorf("wrapped: %w", context.Canceled)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDo_OfflineProbe(t *testing.T) {
	online := false
	attempts := 0
	var retryErrs []error

	err := Do(context.Background(), Options{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		Offline:      func() bool { return !online },
		OnRetry: func(attempt int, err error) {
			retryErrs = append(retryErrs, err)
			// Connectivity returns after the first failed attempt.
			online = true
		},
	}, func(ctx context.Context) error {
		attempts++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "operation must not run while offline")
	require.Len(t, retryErrs, 1)
	assert.ErrorIs(t, retryErrs[0], ErrOffline)
}

func TestBackoff_Caps(t *testing.T) {
	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"first retry", 0, 100 * time.Millisecond},
		{"second retry doubles", 1, 200 * time.Millisecond},
		{"third retry doubles again", 2, 400 * time.Millisecond},
		{"capped at max", 5, time.Second},
	}

	opts := Options{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, backoff(opts, tt.attempt))
		})
	}
}

func TestDoWithResult(t *testing.T) {
	got, err := DoWithResult(context.Background(), Options{MaxRetries: 1, InitialDelay: time.Millisecond}, func(ctx context.Context) (string, error) {
		return "value", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "value", got)
}
