// ABOUTME: Bounded exponential backoff for re-establishing a lost peer link.
// ABOUTME: Gives up after a few attempts and waits for the next liveness signal.

package lifecycle

import "time"

// Default reconnect policy. Applied when the transport drops while
// liveness still reports the peer reachable. Constants are tunable.
const (
	DefaultBackoffBase       = 2 * time.Second
	DefaultBackoffMultiplier = 1.5
	DefaultBackoffCap        = 15 * time.Second
	DefaultBackoffAttempts   = 5
)

// Backoff computes reconnect delays. Not safe for concurrent use; each
// connection owns one.
type Backoff struct {
	Base        time.Duration
	Multiplier  float64
	Cap         time.Duration
	MaxAttempts int

	attempt int
}

// NewBackoff returns a Backoff with the default policy.
func NewBackoff() *Backoff {
	return &Backoff{
		Base:        DefaultBackoffBase,
		Multiplier:  DefaultBackoffMultiplier,
		Cap:         DefaultBackoffCap,
		MaxAttempts: DefaultBackoffAttempts,
	}
}

// Next returns the delay before the next attempt, or false when the
// attempt budget is exhausted and the caller should stop retrying until
// an explicit liveness signal arrives.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.attempt >= b.MaxAttempts {
		return 0, false
	}
	delay := time.Duration(float64(b.Base) * pow(b.Multiplier, b.attempt))
	if delay > b.Cap {
		delay = b.Cap
	}
	b.attempt++
	return delay, true
}

// Reset restores the full attempt budget after a successful reconnect.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// Attempt returns how many delays have been handed out since the last
// reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
