package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradeDesk/internal/ports"

	"github.com/jpillora/backoff"
)

// withConflictRetry runs fn until it succeeds, fails with anything other than
// ports.ErrConflict, or the retry budget is spent. An exhausted budget is an
// internal error.
func (s *ExecutionService) withConflictRetry(ctx context.Context, op string, fn func() error) error {
	b := &backoff.Backoff{
		Min:    s.retryMinDelay,
		Max:    s.retryMaxDelay,
		Factor: 2,
		Jitter: true,
	}
	attempts := s.maxConflictRetries + 1

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ports.ErrConflict) {
			return err
		}
		if attempt == attempts {
			break
		}
		delay := b.Duration()
		s.logger.Warn(ctx, "Conflict detected, retrying", map[string]interface{}{
			"operation": op,
			"attempt":   attempt,
			"delay":     delay.String(),
			"cause":     err.Error(),
		})
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	s.logger.Error(ctx, err, "Conflict retries exhausted", map[string]interface{}{"operation": op, "attempts": attempts})
	return fmt.Errorf("%s: gave up after %d attempts (%v): %w", op, attempts, err, ports.ErrInternal)
}
