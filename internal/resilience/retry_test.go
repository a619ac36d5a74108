package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryFunc_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := RetryFunc(context.Background(), RetryConfig{MaxAttempts: 3}, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetryFunc_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := RetryFunc(context.Background(), RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
	}, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryFunc_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := RetryFunc(context.Background(), RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	}, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected last error, got %v", err)
	}
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Fatalf("expected ErrMaxRetriesExceeded, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryFunc_RespectsRetryIf(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := RetryFunc(context.Background(), RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Millisecond,
		RetryIf:        func(err error) bool { return !errors.Is(err, permanent) },
	}, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("permanent error must not be retried, got %d calls", calls)
	}
}

func TestRetryFunc_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryFunc(ctx, RetryConfig{MaxAttempts: 3}, func() error {
		return errors.New("should not run")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRetryFunc_OnRetryCallback(t *testing.T) {
	var attempts []int
	_ = RetryFunc(context.Background(), RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			attempts = append(attempts, attempt)
		},
	}, func() error {
		return errors.New("transient")
	})
	if len(attempts) != 2 {
		t.Fatalf("expected 2 retry callbacks, got %v", attempts)
	}
}
