package stream

import (
	"errors"
	"time"
)

// Errors
var (
	ErrRetriesExhausted = errors.New("stream reconnect attempts exhausted")
	ErrStale            = errors.New("stream stale (no data within read timeout)")

	// errResubscribe ends a session so the next one carries a new list.
	errResubscribe = errors.New("instrument set changed")
)

// State is the connector lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config holds connector configuration.
type Config struct {
	BackoffBase       time.Duration // First reconnect delay (default: 5s)
	BackoffMax        time.Duration // Delay cap (default: 60s)
	BackoffFactor     float64       // Growth per failed attempt (default: 1.5)
	MaxAttempts       int           // Consecutive reconnects before giving up; 0 = unbounded
	MaxDuration       time.Duration // Total run time; 0 = unbounded
	ReadTimeout       time.Duration // Max silence before the stream is stale (default: 30s)
	HeartbeatLogEvery int           // Log every Nth heartbeat (default: 20)
	PublishTimeout    time.Duration // Per-tick publish bound (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BackoffBase:       5 * time.Second,
		BackoffMax:        60 * time.Second,
		BackoffFactor:     1.5,
		ReadTimeout:       30 * time.Second,
		HeartbeatLogEvery: 20,
		PublishTimeout:    5 * time.Second,
	}
}

// Stats provides connector statistics.
type Stats struct {
	State      State
	Sessions   int64 // Successful STREAMING entries
	Reconnects int64
	Heartbeats int64
	Published  int64
	Suppressed int64
	Malformed  int64
	PublishErr int64
}
