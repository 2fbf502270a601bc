package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// DecisionKind is what a failed attempt should do next.
type DecisionKind int

const (
	// RetryAfter retries the same request on the same session after Delay.
	RetryAfter DecisionKind = iota
	// ReinitializeSessionThenRetryAfter discards the session, waits Delay,
	// then retries on a freshly warmed session.
	ReinitializeSessionThenRetryAfter
	// Abort stops retrying and surfaces the error.
	Abort
)

// String returns a log-friendly name for the decision kind.
func (k DecisionKind) String() string {
	switch k {
	case RetryAfter:
		return "retry"
	case ReinitializeSessionThenRetryAfter:
		return "reinitialize_then_retry"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// Decision is the policy's verdict for one failed attempt.
type Decision struct {
	Kind  DecisionKind
	Delay time.Duration
}

// Policy decides what a failed upstream attempt does next. It is a pure
// decision function: callers sleep and rebuild sessions themselves, so the
// same policy instance can be shared across sources.
type Policy struct {
	// MaxAttempts is the total number of attempts (including the first try).
	// A value of 1 means no retries. Default: 3.
	MaxAttempts int

	// TransientBase is the base delay for transient failures. Default: 2s.
	TransientBase time.Duration

	// BlockedBase is the base delay after an anti-bot block. Blocks need far
	// longer cool-downs than ordinary transient failures. Default: 10s.
	BlockedBase time.Duration

	// MaxDelay caps any computed delay. Default: 2m.
	MaxDelay time.Duration

	// Multiplier scales the delay after each attempt. Default: 2.0.
	Multiplier float64

	// JitterFraction adds random jitter as a fraction of the computed delay
	// (0.0 = no jitter, 0.5 = ±50%). Jitter keeps repeated failures across
	// chunks from synchronizing against the upstream. Default: 0.25.
	JitterFraction float64

	// randFn overrides the jitter source in tests.
	randFn func() float64
}

// DefaultPolicy returns the retry policy used against the exchange APIs.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		TransientBase:  2 * time.Second,
		BlockedBase:    10 * time.Second,
		MaxDelay:       2 * time.Minute,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// FromConfig builds a policy from config values, keeping defaults for any
// non-positive field.
func FromConfig(maxAttempts int, transientBaseMs, blockedBaseMs, maxDelayMs int) Policy {
	p := DefaultPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if transientBaseMs > 0 {
		p.TransientBase = time.Duration(transientBaseMs) * time.Millisecond
	}
	if blockedBaseMs > 0 {
		p.BlockedBase = time.Duration(blockedBaseMs) * time.Millisecond
	}
	if maxDelayMs > 0 {
		p.MaxDelay = time.Duration(maxDelayMs) * time.Millisecond
	}
	return p
}

// Decide maps (attempt, class) to the next action. attempt is zero-based:
// Decide(0, ...) judges the failure of the first try. Not-found aborts on any
// attempt; integrity and persistence failures are not upstream conditions and
// abort as well. Everything else retries with exponential backoff until the
// attempt ceiling converts further failures into Abort.
func (p Policy) Decide(attempt int, class Class) Decision {
	p = p.withDefaults()

	switch class {
	case ClassNotFound, ClassIntegrity, ClassPersistence:
		return Decision{Kind: Abort}
	}

	if attempt >= p.MaxAttempts-1 {
		return Decision{Kind: Abort}
	}

	if class == ClassBlocked {
		return Decision{
			Kind:  ReinitializeSessionThenRetryAfter,
			Delay: p.backoff(attempt, p.BlockedBase),
		}
	}
	return Decision{
		Kind:  RetryAfter,
		Delay: p.backoff(attempt, p.TransientBase),
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.TransientBase <= 0 {
		p.TransientBase = def.TransientBase
	}
	if p.BlockedBase <= 0 {
		p.BlockedBase = def.BlockedBase
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = def.Multiplier
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	return p
}

func (p Policy) backoff(attempt int, base time.Duration) time.Duration {
	delay := float64(base) * math.Pow(p.Multiplier, float64(attempt))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}

	// Apply jitter: ±JitterFraction of delay.
	if p.JitterFraction > 0 {
		randFn := p.randFn
		if randFn == nil {
			randFn = rand.Float64
		}
		jitterRange := delay * p.JitterFraction
		jitter := (randFn()*2 - 1) * jitterRange // [-jitterRange, +jitterRange]
		delay += jitter
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
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
