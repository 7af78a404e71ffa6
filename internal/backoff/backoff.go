// Package backoff implements the stability-aware reconnect backoff used
// by the connection supervisor: delays double on every failed attempt
// and only reset once a session has proven itself stable, rather than
// resetting unconditionally on the next successful handshake.
package backoff

import "time"

const (
	// Min is the first delay a fresh Backoff reports.
	Min = 1 * time.Second
	// Max is the ceiling a growing Backoff never exceeds.
	Max = 30 * time.Second
	// minStableWindow is the floor below which a short-lived connection
	// session is never considered proof of stability, even if the delay
	// that produced it was tiny.
	minStableWindow = 5 * time.Second
)

// Backoff tracks the current reconnect delay. The zero value is not
// usable; use New.
type Backoff struct {
	current time.Duration
}

// New returns a Backoff starting at Min.
func New() *Backoff {
	return &Backoff{current: Min}
}

// Current returns the delay that would be used for the next attempt.
func (b *Backoff) Current() time.Duration {
	return b.current
}

// Grow doubles the delay, capped at Max, and returns the new value. Call
// it after a failed connect attempt, or after a session that did not
// prove itself stable.
func (b *Backoff) Grow() time.Duration {
	b.current *= 2
	if b.current > Max {
		b.current = Max
	}
	return b.current
}

// Reset drops the delay back to Min. Call it only after Stable reports
// true for the session that just ended.
func (b *Backoff) Reset() time.Duration {
	b.current = Min
	return b.current
}

// Stable reports whether a session that took delayUsed of backoff to
// establish, and then ran for sessionDuration before ending, earned a
// reset of the backoff delay. A session must outlive both the delay it
// took to connect and a minimum stability window, so a server that
// accepts a connection and immediately drops it repeatedly does not
// trick the supervisor back down to Min.
func Stable(delayUsed, sessionDuration time.Duration) bool {
	floor := delayUsed
	if floor < minStableWindow {
		floor = minStableWindow
	}
	return sessionDuration >= floor
}
