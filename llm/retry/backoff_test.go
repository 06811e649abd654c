package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/teddyvoice/testutil"
	"github.com/BaSui01/teddyvoice/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func transient() error {
	return types.NewTransientError("test", "blip", nil)
}

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(ctx context.Context) error {
		callCount++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount, "应该只调用一次")
}

func TestBackoffRetryer_TransientThenSuccess(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(ctx context.Context) error {
		callCount++
		if callCount < 3 {
			return transient()
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestBackoffRetryer_MaxRetriesExceeded(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(2), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(ctx context.Context) error {
		callCount++
		return transient()
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "重试 2 次后仍失败")
	assert.Equal(t, 3, callCount, "初始调用 + 2 次重试")
	assert.True(t, types.IsCode(err, types.ErrTransientProvider), "错误码应能穿透包装")
}

func TestBackoffRetryer_PermanentErrorNotRetried(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	tests := []struct {
		name string
		err  error
	}{
		{"permanent provider error", types.NewPermanentError("test", "bad key", nil)},
		{"plain error", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callCount := 0
			err := retryer.Do(context.Background(), func(ctx context.Context) error {
				callCount++
				return tt.err
			})
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, callCount, "不应该重试")
		})
	}
}

func TestBackoffRetryer_CustomShouldRetry(t *testing.T) {
	sentinel := errors.New("retry me")
	policy := fastPolicy(2)
	policy.ShouldRetry = func(err error) bool { return errors.Is(err, sentinel) }

	retryer := NewBackoffRetryer(policy, zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func(ctx context.Context) error {
		callCount++
		return sentinel
	})

	assert.Error(t, err)
	assert.Equal(t, 3, callCount)
}

func TestBackoffRetryer_ContextCanceled(t *testing.T) {
	policy := &RetryPolicy{
		MaxRetries:   5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	callCount := 0
	err := retryer.Do(ctx, func(ctx context.Context) error {
		callCount++
		return transient()
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "重试被取消")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_AlreadyCancelledStopsAfterFirstAttempt(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(testutil.CancelledContext(), func(ctx context.Context) error {
		callCount++
		return transient()
	})

	assert.True(t, types.IsCode(err, types.ErrTransientProvider))
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_DelayCalculation(t *testing.T) {
	policy := &RetryPolicy{
		MaxRetries:   5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop()).(*backoffRetryer)

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second}, // 达到最大延迟
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, retryer.calculateDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoffRetryer_JitterStaysInRange(t *testing.T) {
	policy := &RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop()).(*backoffRetryer)

	for i := 0; i < 50; i++ {
		d := retryer.calculateDelay(2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	var attempts []int
	policy := fastPolicy(2)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
		assert.Greater(t, delay, time.Duration(0))
	}

	retryer := NewBackoffRetryer(policy, zap.NewNop())

	callCount := 0
	_ = retryer.Do(context.Background(), func(ctx context.Context) error {
		callCount++
		if callCount < 3 {
			return transient()
		}
		return nil
	})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestExponentialDelay(t *testing.T) {
	base := 100 * time.Millisecond

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, 1600 * time.Millisecond},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ExponentialDelay(base, tt.attempt), "attempt %d", tt.attempt)
	}
	assert.Equal(t, time.Duration(0), ExponentialDelay(0, 3))
}

// ---------------------------------------------------------------------------
// DoTyped (generic wrapper)
// ---------------------------------------------------------------------------

func TestDoTyped(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	t.Run("success", func(t *testing.T) {
		val, err := DoTyped(context.Background(), r, func(ctx context.Context) (string, error) {
			return "hi there", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "hi there", val)
	})

	t.Run("retry then success", func(t *testing.T) {
		callCount := 0
		val, err := DoTyped(context.Background(), r, func(ctx context.Context) (int, error) {
			callCount++
			if callCount < 2 {
				return 0, transient()
			}
			return 42, nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 42, val)
	})

	t.Run("error returns zero value", func(t *testing.T) {
		val, err := DoTyped(context.Background(), r, func(ctx context.Context) (int, error) {
			return 7, errors.New("fail")
		})
		assert.Error(t, err)
		assert.Equal(t, 0, val)
	})
}
