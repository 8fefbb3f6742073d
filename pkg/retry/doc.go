// Package retry provides pause policies between repeated attempts: no pause,
// a constant pause, or exponential backoff with jitter.
//
// Key Features:
//   - Multiple jitter strategies (None, Equal, Decorrelated)
//   - Bounded growth (MinDelay, MaxDelay)
//   - Context aware waiting
//
// Basic Usage:
//
//	policy := retry.Constant(250 * time.Millisecond)
//	if err := retry.Wait(ctx, policy.Delay(attempt)); err != nil {
//	    return err
//	}
//
// Exponential Backoff:
//
//	policy, err := retry.Exponential(retry.Config{
//	    InitialDelay:   200 * time.Millisecond,
//	    MaxDelay:       10 * time.Second,
//	    JitterStrategy: retry.JitterDecorrelated,
//	})
//
// Custom Policies:
//
//	policy := retry.PolicyFunc(func(attempt int) time.Duration {
//	    return time.Second * time.Duration(attempt)
//	})
//
// pkg/jsonrest accepts any Policy through jsonrest.WithBackoff; by default it
// re-issues a failed request immediately.
package retry
