// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transfer

import (
	"context"
	"time"
)

// failureHook is called after a failed attempt that will be retried.
// It returns how long to wait before the next attempt.
type failureHook func(attempt int, err error) time.Duration

// withRetries runs fn until it succeeds or maxAttempts attempts failed.
// It returns the number of attempts made and the last error. Context
// cancellation stops the loop between attempts and during the wait.
func withRetries(ctx context.Context, maxAttempts int, fn func(attempt int) error, onFailure failureHook) (int, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		if attempt >= maxAttempts {
			return attempt, err
		}

		var delay time.Duration
		if onFailure != nil {
			delay = onFailure(attempt, err)
		}
		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
}
