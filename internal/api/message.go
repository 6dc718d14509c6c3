package api

import (
	"encoding/json"
	"fmt"

	"github.com/rickgao/price-streamer/internal/model"
)

// Stream message types.
const (
	MessageTypePrice     = "PRICE"
	MessageTypeHeartbeat = "HEARTBEAT"
)

// StreamMessage is one decoded line of the price stream.
type StreamMessage interface {
	MessageType() string
}

// PriceBucket is one level of the quoted book.
type PriceBucket struct {
	Price     string `json:"price"`
	Liquidity int64  `json:"liquidity"`
}

// PriceMessage carries a quote update. Only the first bucket of each side
// is used.
type PriceMessage struct {
	Type        string        `json:"type"`
	Instrument  string        `json:"instrument"`
	Time        string        `json:"time"`
	Bids        []PriceBucket `json:"bids"`
	Asks        []PriceBucket `json:"asks"`
	CloseoutBid string        `json:"closeoutBid"`
	CloseoutAsk string        `json:"closeoutAsk"`
	Tradeable   *bool         `json:"tradeable"`
}

func (m *PriceMessage) MessageType() string { return MessageTypePrice }

// IsTradeable returns the tradeable flag, defaulting to true when absent.
func (m *PriceMessage) IsTradeable() bool {
	return m.Tradeable == nil || *m.Tradeable
}

// HeartbeatMessage is the provider keep-alive.
type HeartbeatMessage struct {
	Type string `json:"type"`
	Time string `json:"time"`
}

func (m *HeartbeatMessage) MessageType() string { return MessageTypeHeartbeat }

// OtherMessage is any message type the pipeline does not act on.
type OtherMessage struct {
	Type string
	Raw  json.RawMessage
}

func (m *OtherMessage) MessageType() string { return m.Type }

// DecodeStreamMessage parses one NDJSON line. Errors wrap
// model.ErrMalformedPayload.
func DecodeStreamMessage(line []byte) (StreamMessage, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, fmt.Errorf("decode stream envelope: %w: %w", model.ErrMalformedPayload, err)
	}

	switch envelope.Type {
	case MessageTypePrice:
		var msg PriceMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("decode price: %w: %w", model.ErrMalformedPayload, err)
		}
		return &msg, nil
	case MessageTypeHeartbeat:
		var msg HeartbeatMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("decode heartbeat: %w: %w", model.ErrMalformedPayload, err)
		}
		return &msg, nil
	default:
		raw := make(json.RawMessage, len(line))
		copy(raw, line)
		return &OtherMessage{Type: envelope.Type, Raw: raw}, nil
	}
}
