package instrument

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Confirmation statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Confirmation is pushed to the control channel after every registry
// operation.
type Confirmation struct {
	Status            string   `json:"status"`
	Message           string   `json:"message,omitempty"`
	ActiveInstruments []string `json:"active_instruments"`
	InstrumentCount   *int     `json:"instrument_count,omitempty"`
}

// Responder delivers confirmations.
type Responder interface {
	Respond(ctx context.Context, c Confirmation) error
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, c Confirmation) error

// Respond calls f(ctx, c).
func (f ResponderFunc) Respond(ctx context.Context, c Confirmation) error {
	return f(ctx, c)
}

// ChangeKind describes a registry mutation.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
)

// Change is one mutation of the active set.
type Change struct {
	Instrument string
	Kind       ChangeKind
}

// subscriberBuffer bounds each subscriber's pending changes.
const subscriberBuffer = 64

// Registry is the synchronized set of active instruments.
type Registry struct {
	mu     sync.RWMutex
	active map[string]struct{}

	subMu  sync.Mutex
	subs   map[int]chan Change
	nextID int

	responder Responder
	logger    *slog.Logger
}

// NewRegistry creates a Registry seeded with the initial instruments.
// Seeding does not emit confirmations or changes.
func NewRegistry(initial []string, responder Responder, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		active:    make(map[string]struct{}, len(initial)),
		subs:      make(map[int]chan Change),
		responder: responder,
		logger:    logger.With("component", "instrument_registry"),
	}
	for _, name := range initial {
		if name != "" {
			r.active[name] = struct{}{}
		}
	}
	return r
}

// Add activates an instrument and reports whether it was newly added.
// Adding an active instrument is a no-op that still confirms.
func (r *Registry) Add(ctx context.Context, name string) bool {
	if name == "" {
		r.respond(ctx, Confirmation{
			Status:            StatusError,
			Message:           "instrument is required",
			ActiveInstruments: r.List(),
		})
		return false
	}

	r.mu.Lock()
	_, exists := r.active[name]
	if !exists {
		r.active[name] = struct{}{}
	}
	active := r.listLocked()
	r.mu.Unlock()

	if exists {
		r.logger.Info("instrument already active", "instrument", name)
	} else {
		r.logger.Info("instrument added", "instrument", name, "active", len(active))
		r.notify(Change{Instrument: name, Kind: ChangeAdded})
	}

	r.respond(ctx, Confirmation{
		Status:            StatusSuccess,
		Message:           fmt.Sprintf("Added %s to streaming", name),
		ActiveInstruments: active,
	})

	return !exists
}

// Remove deactivates an instrument and reports whether it was active.
// Removing an inactive instrument is a no-op that still confirms.
func (r *Registry) Remove(ctx context.Context, name string) bool {
	if name == "" {
		r.respond(ctx, Confirmation{
			Status:            StatusError,
			Message:           "instrument is required",
			ActiveInstruments: r.List(),
		})
		return false
	}

	r.mu.Lock()
	_, exists := r.active[name]
	delete(r.active, name)
	active := r.listLocked()
	r.mu.Unlock()

	if exists {
		r.logger.Info("instrument removed", "instrument", name, "active", len(active))
		r.notify(Change{Instrument: name, Kind: ChangeRemoved})
	} else {
		r.logger.Info("instrument not active", "instrument", name)
	}

	r.respond(ctx, Confirmation{
		Status:            StatusSuccess,
		Message:           fmt.Sprintf("Removed %s from streaming", name),
		ActiveInstruments: active,
	})

	return exists
}

// ReportActive pushes the active list with its count.
func (r *Registry) ReportActive(ctx context.Context) []string {
	active := r.List()
	count := len(active)

	r.respond(ctx, Confirmation{
		Status:            StatusSuccess,
		ActiveInstruments: active,
		InstrumentCount:   &count,
	})

	return active
}

// List returns a sorted snapshot of the active set.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

// Contains reports whether name is active.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.active[name]
	return ok
}

// Len returns the number of active instruments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// Subscribe returns a feed of registry changes and a function that ends the
// subscription. A subscriber that falls behind loses changes.
func (r *Registry) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)

	r.subMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			close(ch)
			r.subMu.Unlock()
		})
	}
	return ch, cancel
}

func (r *Registry) listLocked() []string {
	out := make([]string, 0, len(r.active))
	for name := range r.active {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func (r *Registry) notify(c Change) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	for _, ch := range r.subs {
		select {
		case ch <- c:
		default:
			r.logger.Warn("change subscriber full, dropping",
				"instrument", c.Instrument,
				"kind", c.Kind,
			)
		}
	}
}

func (r *Registry) respond(ctx context.Context, c Confirmation) {
	if r.responder == nil {
		return
	}
	if err := r.responder.Respond(ctx, c); err != nil {
		r.logger.Warn("failed to send confirmation", "error", err, "message", c.Message)
	}
}
