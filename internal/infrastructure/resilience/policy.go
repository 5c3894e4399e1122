package resilience

import "time"

// Config bounds every external call made through an Executor.
// AttemptTimeout of zero leaves attempts bounded only by the caller's context.
type Config struct {
	AttemptTimeout time.Duration

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// DefaultConfig matches the LLM_TIMEOUT and RETRY_* defaults.
func DefaultConfig() Config {
	return Config{
		AttemptTimeout: 60 * time.Second,

		RetryMaxAttempts:    3,
		RetryInitialBackoff: 200 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	out := c

	out.AttemptTimeout = max(out.AttemptTimeout, 0)
	out.RetryMaxAttempts = orDefault(out.RetryMaxAttempts, def.RetryMaxAttempts)
	out.RetryInitialBackoff = orDefault(out.RetryInitialBackoff, def.RetryInitialBackoff)
	out.RetryMaxBackoff = max(orDefault(out.RetryMaxBackoff, def.RetryMaxBackoff), out.RetryInitialBackoff)
	if out.RetryMultiplier < 1 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	out.BreakerMinRequests = orDefault(out.BreakerMinRequests, def.BreakerMinRequests)
	if out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	out.BreakerFailureRatio = orDefault(out.BreakerFailureRatio, def.BreakerFailureRatio)
	out.BreakerOpenTimeout = orDefault(out.BreakerOpenTimeout, def.BreakerOpenTimeout)
	out.BreakerHalfOpenMaxCalls = orDefault(out.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls)
	return out
}

func orDefault[T int | uint32 | float64 | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}
