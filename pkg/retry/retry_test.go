package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/viewersettings/pkg/errors"
)

func fastConfig() Config {
	config := DefaultConfig()
	config.MaxAttempts = 3
	config.InitialDelay = time.Millisecond
	config.MaxDelay = 5 * time.Millisecond
	config.Jitter = false
	return config
}

func TestRetryer_Success(t *testing.T) {
	retryer := New(fastConfig())

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryer_RetryableError(t *testing.T) {
	retryer := New(fastConfig())

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		if attempts < 3 {
			return errors.NewError(errors.ErrCodeNetworkError, "connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryer_NonRetryableError(t *testing.T) {
	retryer := New(fastConfig())

	tests := []struct {
		name string
		err  error
	}{
		{"not found", errors.NewError(errors.ErrCodeObjectNotFound, "no such key")},
		{"access denied", errors.NewError(errors.ErrCodeAccessDenied, "forbidden")},
		{"plain error", fmt.Errorf("not a settings error")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			err := retryer.Do(func() error {
				attempts++
				return tt.err
			})
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, attempts)
		})
	}
}

func TestRetryer_MaxAttemptsExceeded(t *testing.T) {
	retryer := New(fastConfig())

	attempts := 0
	cause := errors.NewError(errors.ErrCodeConnectionTimeout, "timeout")
	err := retryer.Do(func() error {
		attempts++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConnectionTimeout))
}

func TestRetryer_ContextCancellation(t *testing.T) {
	config := fastConfig()
	config.InitialDelay = time.Second
	config.MaxDelay = time.Second
	retryer := New(config)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := retryer.DoWithContext(ctx, func(context.Context) error {
		attempts++
		cancel()
		return errors.NewError(errors.ErrCodeNetworkError, "flaky")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryer_ExponentialBackoff(t *testing.T) {
	retryer := New(Config{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     35 * time.Millisecond,
		Multiplier:   2,
	})

	assert.Equal(t, 10*time.Millisecond, retryer.calculateDelay(1))
	assert.Equal(t, 20*time.Millisecond, retryer.calculateDelay(2))
	assert.Equal(t, 35*time.Millisecond, retryer.calculateDelay(3))
}

func TestRetryer_JitterBounds(t *testing.T) {
	config := fastConfig()
	config.InitialDelay = 100 * time.Millisecond
	config.MaxDelay = time.Second
	config.Jitter = true
	retryer := New(config)

	for i := 0; i < 50; i++ {
		d := retryer.calculateDelay(1)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	var seen []int
	retryer := New(fastConfig()).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		seen = append(seen, attempt)
	})

	_ = retryer.Do(func() error {
		return errors.NewError(errors.ErrCodeConnectionFailed, "refused")
	})

	assert.Equal(t, []int{1, 2}, seen)
}

func TestNew_AppliesDefaults(t *testing.T) {
	config := New(Config{}).Config()
	def := DefaultConfig()

	assert.Equal(t, def.MaxAttempts, config.MaxAttempts)
	assert.Equal(t, def.InitialDelay, config.InitialDelay)
	assert.Equal(t, def.MaxDelay, config.MaxDelay)
	assert.Equal(t, def.Multiplier, config.Multiplier)
	assert.Equal(t, def.RetryableErrors, config.RetryableErrors)
}
