// Package backoff implements the capped exponential retry delay shared by the
// scan loop's adapter re-initialization and the broker reconnect settings.
package backoff

import (
	"context"
	"time"
)

// Policy describes a capped exponential backoff: delays start at Initial and
// double on every attempt until they reach Max.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultPolicy returns the 1s-to-30s policy used when configuration does not
// override it.
func DefaultPolicy() Policy {
	return Policy{
		Initial: 1 * time.Second,
		Max:     30 * time.Second,
	}
}

// New creates a fresh retry state for the policy.
func (p Policy) New() *Backoff {
	if p.Initial <= 0 {
		p.Initial = DefaultPolicy().Initial
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	return &Backoff{policy: p}
}

// Backoff tracks consecutive failures for one retry loop. Not safe for
// concurrent use; each loop owns its own instance.
type Backoff struct {
	policy  Policy
	attempt int
}

// Next returns the delay for the current attempt and advances the state.
func (b *Backoff) Next() time.Duration {
	d := b.policy.Initial << b.attempt
	if d <= 0 || d > b.policy.Max { // <= 0 guards shift overflow
		d = b.policy.Max
	} else {
		b.attempt++
	}
	return d
}

// Attempt returns the number of completed delays since the last Reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Reset clears the failure streak after a successful attempt.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Wait sleeps for the next delay, returning early with ctx.Err() if the
// context is cancelled first.
func (b *Backoff) Wait(ctx context.Context) error {
	t := time.NewTimer(b.Next())
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
