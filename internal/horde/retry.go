package horde

import (
	"context"
	"fmt"
	"time"
)

// waitFunc blocks for d. It returns errInterrupted if the wait was cut short by
// an interrupt, or the context error.
type waitFunc func(ctx context.Context, d time.Duration) error

// Retrier bounds consecutive connection failures around a single operation.
// Any success resets the count, so Max is a consecutive-failure budget, not a
// session total.
type Retrier struct {
	// Max is the number of consecutive failures that exhausts the budget
	Max int

	// Delay is the pause after each failure
	Delay time.Duration

	// OnFailure is called after each counted failure (optional)
	OnFailure func(attempt, max int, err error)

	failures int
}

// Failures returns the current consecutive failure count.
func (r *Retrier) Failures() int {
	return r.failures
}

// Do runs op until it succeeds or returns a non-connection error. After
// r.Max consecutive connection failures it returns an error wrapping
// ErrConnectionExhausted and the last failure; op is not called again.
func (r *Retrier) Do(ctx context.Context, wait waitFunc, op func(context.Context) error) error {
	for {
		err := op(ctx)
		if err == nil {
			r.failures = 0
			return nil
		}
		if !IsConnectionError(err) || ctx.Err() != nil {
			return err
		}

		r.failures++
		if r.OnFailure != nil {
			r.OnFailure(r.failures, r.Max, err)
		}
		if r.failures >= r.Max {
			return fmt.Errorf("%w after %d consecutive failures: %w", ErrConnectionExhausted, r.failures, err)
		}
		if err := wait(ctx, r.Delay); err != nil {
			return err
		}
	}
}
