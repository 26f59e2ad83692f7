// Package retry re-runs failing remote operations with exponential backoff
// and reports budget exhaustion as a typed error.
package retry

import (
	"math"
	"time"

	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
)

// Defaults used when a Config leaves a field zero.
const (
	DefaultMaxAttempts = 3
	DefaultBase        = 2.0
	DefaultUnit        = time.Second
)

// Config tunes the exponential policy.
type Config struct {
	MaxAttempts int
	Base        float64
	Unit        time.Duration
}

// FromPolicy reads the retry budget and backoff from the shared request policy.
func FromPolicy(p housing.RequestPolicy) Config {
	return Config{MaxAttempts: p.MaxRetries, Base: p.RetryBase, Unit: p.RetryUnit}
}

// ExponentialPolicy waits Base^attempt * Unit after the attempt-th failure
// (zero based). There is no jitter and no cap.
type ExponentialPolicy struct {
	maxAttempts int
	base        float64
	unit        time.Duration
}

// NewExponentialPolicy builds a policy; a negative MaxAttempts is treated as zero.
func NewExponentialPolicy(cfg Config) *ExponentialPolicy {
	p := &ExponentialPolicy{
		maxAttempts: cfg.MaxAttempts,
		base:        cfg.Base,
		unit:        cfg.Unit,
	}
	if p.maxAttempts < 0 {
		p.maxAttempts = 0
	}
	if p.base <= 0 {
		p.base = DefaultBase
	}
	if p.unit <= 0 {
		p.unit = DefaultUnit
	}
	return p
}

// MaxAttempts is the total number of invocations allowed.
func (p *ExponentialPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry decides whether another attempt follows the failed one. Every
// failure counts against the budget, including per-request timeouts;
// cancellation of the caller is decided by Do from its own context.
func (p *ExponentialPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	return attempt+1 < p.maxAttempts
}

// Backoff returns the wait duration after the attempt-th failure.
func (p *ExponentialPolicy) Backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(p.base, float64(attempt)) * float64(p.unit))
}
