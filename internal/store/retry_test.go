package store

import (
	"context"
	"errors"
	"testing"

	"github.com/askloop/askloop/server/internal/model"
)

func TestReadWithRetryRepeatsTransientFailureOnce(t *testing.T) {
	calls := 0
	v, err := ReadWithRetry(context.Background(), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("connection reset")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("retry did not recover: %v", err)
	}
	if v != 42 || calls != 2 {
		t.Fatalf("want value 42 after 2 calls, got %d after %d", v, calls)
	}
}

func TestReadWithRetryStopsAfterSecondFailure(t *testing.T) {
	calls := 0
	_, err := ReadWithRetry(context.Background(), func() (int, error) {
		calls++
		return 0, errors.New("still down")
	})
	if err == nil {
		t.Fatal("expected error after exhausted retry")
	}
	if calls != 2 {
		t.Fatalf("want exactly 2 attempts, got %d", calls)
	}
}

func TestReadWithRetrySkipsDomainSentinels(t *testing.T) {
	for _, sentinel := range []error{
		model.ErrNotFound,
		model.ErrValidation,
		model.ErrForbidden,
		model.ErrConflict,
		model.ErrInvalidState,
	} {
		calls := 0
		_, err := ReadWithRetry(context.Background(), func() (int, error) {
			calls++
			return 0, sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("sentinel %v not passed through: %v", sentinel, err)
		}
		if calls != 1 {
			t.Fatalf("sentinel %v retried: %d attempts", sentinel, calls)
		}
	}
}

func TestReadWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := ReadWithRetry(ctx, func() (int, error) {
		calls++
		return 0, errors.New("interrupted")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("cancelled context must not retry, got %d attempts", calls)
	}
}
