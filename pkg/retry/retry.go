package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// JitterStrategy defines the jitter strategy to use
type JitterStrategy int

const (
	// JitterNone disables jitter
	JitterNone JitterStrategy = iota
	// JitterEqual applies uniform jitter (equal chance of any delay in range)
	JitterEqual
	// JitterDecorrelated applies decorrelated jitter (AWS recommended)
	JitterDecorrelated
)

// Policy computes the pause before the next attempt. attempt is the number of
// attempts already made, starting at 1.
type Policy interface {
	Delay(attempt int) time.Duration
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(attempt int) time.Duration

// Delay implements Policy.
func (f PolicyFunc) Delay(attempt int) time.Duration { return f(attempt) }

// Constant waits d between attempts.
func Constant(d time.Duration) Policy {
	if d < 0 {
		d = 0
	}
	return PolicyFunc(func(int) time.Duration { return d })
}

// Config defines exponential backoff configuration
type Config struct {
	// InitialDelay is the delay after the first attempt
	InitialDelay time.Duration
	// MinDelay is the minimum delay between attempts (defaults to InitialDelay)
	MinDelay time.Duration
	// MaxDelay is the maximum delay between attempts
	MaxDelay time.Duration
	// Multiplier is the exponential backoff multiplier
	Multiplier float64
	// JitterStrategy defines the jitter algorithm to use
	JitterStrategy JitterStrategy
	// Rand is the random source for jitter (optional, the shared v2 source is used if nil)
	Rand *rand.Rand
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterStrategy: JitterDecorrelated,
	}
}

// Normalize validates and normalizes the configuration
func (c *Config) Normalize() error {
	if c.InitialDelay <= 0 {
		return errors.New("retry: InitialDelay must be positive")
	}
	if c.MinDelay <= 0 {
		c.MinDelay = c.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MinDelay > c.MaxDelay {
		return errors.New("retry: MinDelay cannot be greater than MaxDelay")
	}
	if c.InitialDelay < c.MinDelay || c.InitialDelay > c.MaxDelay {
		return errors.New("retry: InitialDelay must be between MinDelay and MaxDelay")
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.Multiplier < 1.0 {
		return errors.New("retry: Multiplier must be >= 1.0")
	}
	return nil
}

type exponential struct {
	cfg Config
}

// Exponential returns a Policy growing InitialDelay by Multiplier per attempt,
// capped at MaxDelay, with the configured jitter applied.
func Exponential(config Config) (Policy, error) {
	cfg := config
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return exponential{cfg: cfg}, nil
}

// Delay implements Policy.
func (e exponential) Delay(attempt int) time.Duration {
	return e.cfg.applyJitter(e.cfg.calculateDelay(attempt))
}

// calculateDelay calculates the delay for the given attempt using exponential backoff
func (c Config) calculateDelay(attempt int) time.Duration {
	delay := c.InitialDelay

	// Apply multiplier (attempt-1) times
	for i := 1; i < attempt; i++ {
		// Check for overflow before multiplication
		if delay > c.MaxDelay/time.Duration(c.Multiplier) {
			return c.MaxDelay
		}
		delay = time.Duration(float64(delay) * c.Multiplier)
		if delay > c.MaxDelay {
			return c.MaxDelay
		}
	}

	return clamp(delay, c.MinDelay, c.MaxDelay)
}

// applyJitter applies the configured jitter strategy to the delay
func (c Config) applyJitter(baseDelay time.Duration) time.Duration {
	if baseDelay <= 0 {
		return baseDelay
	}
	switch c.JitterStrategy {
	case JitterEqual:
		// Equal jitter: random value between 0 and baseDelay
		return clamp(time.Duration(c.int64N(int64(baseDelay))), c.MinDelay, c.MaxDelay)
	case JitterDecorrelated:
		// Decorrelated jitter: 3 * baseDelay / 2 ± baseDelay / 2
		spread := 3*baseDelay/2 - baseDelay/2
		if spread <= 0 {
			return baseDelay
		}
		return clamp(baseDelay+time.Duration(c.int64N(int64(spread))), c.MinDelay, c.MaxDelay)
	default:
		return baseDelay
	}
}

func (c Config) int64N(n int64) int64 {
	if c.Rand != nil {
		return c.Rand.Int64N(n)
	}
	return rand.Int64N(n)
}

// clamp ensures the value is within the specified bounds
func clamp(value, min, max time.Duration) time.Duration {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Wait blocks for d or until ctx is done. A non-positive d only checks ctx.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
