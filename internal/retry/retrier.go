package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tibia-housing-crawler/internal/metrics"
)

// ErrExhausted is matched by ExhaustedError via errors.Is.
var ErrExhausted = errors.New("retry budget exhausted")

// ExhaustedError reports that every allowed attempt failed.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("%s: %s after %d attempts", e.Op, ErrExhausted, e.Attempts)
	}
	return fmt.Sprintf("%s: %s after %d attempts: %v", e.Op, ErrExhausted, e.Attempts, e.Last)
}

// Unwrap exposes the last failure.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Is lets errors.Is(err, ErrExhausted) match.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Retrier runs operations under an ExponentialPolicy.
type Retrier struct {
	policy *ExponentialPolicy
	logger *zap.Logger
	sleep  Sleeper
}

// Option customises a Retrier.
type Option func(*Retrier)

// WithSleeper replaces the context-aware timer, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) {
		if s != nil {
			r.sleep = s
		}
	}
}

// New builds a Retrier.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Retrier{
		policy: NewExponentialPolicy(cfg),
		logger: logger.Named("retry"),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy exposes the backoff schedule.
func (r *Retrier) Policy() *ExponentialPolicy {
	return r.policy
}

// Do invokes op until it succeeds, the context ends, or the attempt budget
// is spent. Exhaustion returns *ExhaustedError; a zero budget exhausts
// without calling op.
func Do[T any](ctx context.Context, r *Retrier, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var last error
	attempts := 0
	for attempt := 0; attempt < r.policy.MaxAttempts(); attempt++ {
		attempts++
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		last = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("%s: %w", op, ctxErr)
		}
		r.logger.Warn("attempt failed",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", r.policy.MaxAttempts()),
			zap.Error(err),
		)
		if !r.policy.ShouldRetry(err, attempt) {
			break
		}
		metrics.ObserveRetry()
		if err := r.sleep(ctx, r.policy.Backoff(attempt)); err != nil {
			return zero, fmt.Errorf("%s: %w", op, err)
		}
	}

	metrics.ObserveExhausted()
	r.logger.Error("retries exhausted",
		zap.String("op", op),
		zap.Int("attempts", attempts),
		zap.Error(last),
	)
	return zero, &ExhaustedError{Op: op, Attempts: attempts, Last: last}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
