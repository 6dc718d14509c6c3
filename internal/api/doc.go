// Package api provides the quote provider client for REST and streaming endpoints.
//
// REST endpoints (OANDA v20):
//   - Live: https://api-fxtrade.oanda.com
//   - Practice: https://api-fxpractice.oanda.com
//
// Streaming endpoint:
//   - https://stream-fxtrade.oanda.com/v3/accounts/{id}/pricing/stream
//
// The stream is newline-delimited JSON; each line is decoded into a
// StreamMessage (PriceMessage, HeartbeatMessage or OtherMessage).
package api
