package store

import (
	"context"
	"errors"

	"github.com/askloop/askloop/server/internal/model"
)

// ReadWithRetry runs an idempotent read and repeats it once when the first
// attempt fails with a transient error. Domain sentinels and context
// cancellation pass through untouched. Writes must never go through here.
func ReadWithRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	v, err := fn()
	if err == nil || !retryable(ctx, err) {
		return v, err
	}
	return fn()
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	for _, sentinel := range []error{
		model.ErrNotFound,
		model.ErrValidation,
		model.ErrForbidden,
		model.ErrConflict,
		model.ErrInvalidState,
	} {
		if errors.Is(err, sentinel) {
			return false
		}
	}
	return true
}
