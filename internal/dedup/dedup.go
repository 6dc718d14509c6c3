// Package dedup suppresses live quotes whose bid has not changed since the
// last emitted tick for the same instrument.
package dedup

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Tracker remembers the last emitted bid per instrument.
type Tracker struct {
	mu      sync.Mutex
	lastBid map[string]decimal.Decimal
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		lastBid: make(map[string]decimal.Decimal),
	}
}

// ShouldEmit reports whether a tick with this (already rounded) bid should
// be published, recording it when it should.
func (t *Tracker) ShouldEmit(instrument string, bid decimal.Decimal) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.lastBid[instrument]; ok && last.Equal(bid) {
		return false
	}
	t.lastBid[instrument] = bid
	return true
}

// Reset clears all state. Called on every new streaming session.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.lastBid)
}

// Forget clears the state for one instrument.
func (t *Tracker) Forget(instrument string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastBid, instrument)
}

// Len returns the number of instruments tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lastBid)
}
