package engine

import (
	"context"
	"errors"
	"time"
)

const (
	retryBackoff  = 5 * time.Millisecond
	retryAttempts = 200
)

// Retry re-runs op while it is refused because another settlement holds the engine.
// It is for callers that are never inside a dispatcher or settlement hook, such as
// network handlers. Waiting is bounded by ctx and by a fixed number of attempts.
func Retry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	v, err := op()
	for i := 1; i < retryAttempts && errors.Is(err, ErrReentrantCall); i++ {
		if ctx.Value(settlingKey{}) != nil {
			break
		}
		select {
		case <-ctx.Done():
			return v, err
		case <-time.After(retryBackoff):
		}
		v, err = op()
	}
	return v, err
}
