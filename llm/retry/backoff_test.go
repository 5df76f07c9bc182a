package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func fastPolicy(maxRetries int) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestBackoffRetryer_SucceedsFirstTry(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(3), zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_RetriesUntilSuccess(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(3), zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackoffRetryer_Exhausted(t *testing.T) {
	sentinel := errors.New("persistent")
	r := NewBackoffRetryer(fastPolicy(2), zap.NewNop())
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestBackoffRetryer_ShouldRetryStopsEarly(t *testing.T) {
	fatal := errors.New("fatal")
	p := fastPolicy(5)
	p.ShouldRetry = func(err error) bool { return !errors.Is(err, fatal) }
	r := NewBackoffRetryer(p, nil)

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return fatal
	})
	assert.Same(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_ContextCancelled(t *testing.T) {
	p := fastPolicy(5)
	p.InitialDelay = time.Second
	p.MaxDelay = time.Second
	r := NewBackoffRetryer(p, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	p := fastPolicy(2)
	var attempts []int
	p.OnRetry = func(attempt int, _ error, _ time.Duration) {
		attempts = append(attempts, attempt)
	}
	r := NewBackoffRetryer(p, zap.NewNop())
	_ = r.Do(context.Background(), func() error { return errors.New("x") })
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoWithResultTyped(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(1), zap.NewNop())
	v, err := DoWithResultTyped(r, context.Background(), func() (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestCalculateDelay_Bounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := time.Duration(rapid.IntRange(1, 1000).Draw(t, "initial")) * time.Millisecond
		maxDelay := initial * time.Duration(rapid.IntRange(1, 50).Draw(t, "factor"))
		attempt := rapid.IntRange(1, 20).Draw(t, "attempt")
		jitter := rapid.Bool().Draw(t, "jitter")

		r := NewBackoffRetryer(&RetryPolicy{
			MaxRetries:   3,
			InitialDelay: initial,
			MaxDelay:     maxDelay,
			Multiplier:   2.0,
			Jitter:       jitter,
		}, nil).(*backoffRetryer)

		d := r.calculateDelay(attempt)
		if d < initial {
			t.Fatalf("delay %v below initial %v", d, initial)
		}
		upper := time.Duration(float64(maxDelay) * 1.25)
		if d > upper {
			t.Fatalf("delay %v above jittered max %v", d, upper)
		}
	})
}
