package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rickgao/price-streamer/internal/instrument"
)

// Pusher appends to a cache list.
type Pusher interface {
	Push(ctx context.Context, key string, value []byte) error
}

// ListResponder LPUSHes confirmations as JSON onto a cache list.
type ListResponder struct {
	pusher Pusher
	key    string
}

// NewListResponder creates a responder writing to key.
func NewListResponder(pusher Pusher, key string) *ListResponder {
	return &ListResponder{pusher: pusher, key: key}
}

// Respond implements instrument.Responder.
func (r *ListResponder) Respond(ctx context.Context, c instrument.Confirmation) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode confirmation: %w", err)
	}
	return r.pusher.Push(ctx, r.key, data)
}
