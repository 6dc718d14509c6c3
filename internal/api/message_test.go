package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/price-streamer/internal/model"
)

func TestDecodeStreamMessage(t *testing.T) {
	t.Run("price", func(t *testing.T) {
		line := []byte(`{"type":"PRICE","time":"2024-03-01T14:30:00.123456789Z","instrument":"EUR_USD",
			"bids":[{"price":"1.08001","liquidity":1000000}],"asks":[{"price":"1.08015","liquidity":1000000}],
			"closeoutBid":"1.07990","closeoutAsk":"1.08025","tradeable":false}`)
		msg, err := DecodeStreamMessage(line)
		require.NoError(t, err)

		price, ok := msg.(*PriceMessage)
		require.True(t, ok, "got %T, want *PriceMessage", msg)
		assert.Equal(t, "EUR_USD", price.Instrument)
		assert.Equal(t, "1.08001", price.Bids[0].Price)
		assert.Equal(t, "1.08015", price.Asks[0].Price)
		assert.False(t, price.IsTradeable())
	})

	t.Run("tradeable defaults to true", func(t *testing.T) {
		msg, err := DecodeStreamMessage([]byte(`{"type":"PRICE","instrument":"EUR_USD","bids":[],"asks":[]}`))
		require.NoError(t, err)
		assert.True(t, msg.(*PriceMessage).IsTradeable())
	})

	t.Run("heartbeat", func(t *testing.T) {
		msg, err := DecodeStreamMessage([]byte(`{"type":"HEARTBEAT","time":"2024-03-01T14:30:05.000000000Z"}`))
		require.NoError(t, err)
		assert.Equal(t, MessageTypeHeartbeat, msg.MessageType())
	})

	t.Run("other", func(t *testing.T) {
		msg, err := DecodeStreamMessage([]byte(`{"type":"CLIENT_CONFIGURE"}`))
		require.NoError(t, err)
		other, ok := msg.(*OtherMessage)
		require.True(t, ok, "msg = %#v", msg)
		assert.Equal(t, "CLIENT_CONFIGURE", other.Type)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, line := range []string{`not json`, `{"type":"PRICE","bids":"oops"}`} {
			_, err := DecodeStreamMessage([]byte(line))
			assert.ErrorIs(t, err, model.ErrMalformedPayload, line)
		}
	})
}
