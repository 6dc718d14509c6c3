package stream

import "time"

// Backoff yields growing reconnect delays: base, base*factor, ... capped at
// max. It is owned by a single goroutine.
type Backoff struct {
	base   time.Duration
	max    time.Duration
	factor float64

	current  time.Duration
	attempts int
}

// NewBackoff creates a Backoff. A factor below 1 is treated as 1.
func NewBackoff(base, max time.Duration, factor float64) *Backoff {
	if factor < 1 {
		factor = 1
	}
	if max < base {
		max = base
	}
	return &Backoff{
		base:    base,
		max:     max,
		factor:  factor,
		current: base,
	}
}

// Next returns the delay for the upcoming attempt and advances.
func (b *Backoff) Next() time.Duration {
	d := b.current
	b.attempts++

	next := time.Duration(float64(b.current) * b.factor)
	if next > b.max || next < b.current {
		next = b.max
	}
	b.current = next

	return d
}

// Reset returns to the base delay and clears the attempt count.
func (b *Backoff) Reset() {
	b.current = b.base
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	return b.attempts
}
