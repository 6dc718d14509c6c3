// Package stream maintains the long-lived price stream connection.
//
// The Connector runs a single state machine:
//
//	DISCONNECTED → CONNECTING → STREAMING → (ERROR | CLOSED) → DISCONNECTED
//
// One connection carries every active instrument. Lines are decoded,
// normalized, deduplicated and published synchronously in arrival order.
// Transient failures reconnect with exponential backoff; authentication and
// not-found failures end Run. Adding an instrument the connection does not
// carry reconnects immediately with the new list.
package stream
