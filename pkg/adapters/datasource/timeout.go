package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/ekaya-inc/ekaya-datagate/pkg/apperrors"
)

// EffectiveTimeout returns d, or DefaultQueryTimeout when d is not positive.
func EffectiveTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultQueryTimeout
	}
	return d
}

// RunWithTimeout races fn against a deadline. The context passed to fn is
// cancelled when the deadline passes, so drivers that honour context
// cancellation abort the backend call as well.
func RunWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	timeout = EffectiveTimeout(timeout)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(runCtx)
		done <- outcome{value: v, err: err}
	}()

	timedOut := func() error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w after %dms", apperrors.ErrQueryTimeout, timeout.Milliseconds())
	}

	select {
	case out := <-done:
		// a driver that noticed the deadline first reports it as its own error
		if out.err != nil && runCtx.Err() != nil {
			var zero T
			return zero, timedOut()
		}
		return out.value, out.err
	case <-runCtx.Done():
		var zero T
		return zero, timedOut()
	}
}
