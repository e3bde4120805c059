// Package transport defines the envelope-delivery collaborator the DR
// engine treats as opaque: listing and publishing wire envelopes, and
// reporting the server's per-conversation maximum counter for gap
// detection. The DR engine itself never imports this package — callers
// wire it in at the orchestration layer.
package transport

import "context"

// Envelope is the transport-level wrapper around a ratchet.Packet: opaque
// bytes plus the metadata needed for ordering and backoff decisions.
type Envelope struct {
	ConversationID string
	Counter        uint64
	Payload        []byte
}

// StatusError carries an HTTP-like status code from a transport
// operation, distinguishing retryable server errors from terminal client
// errors and the "counter too low" rollback trigger.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string { return e.Msg }

// CounterTooLow reports whether err is the 409-style rejection that
// triggers the DR engine's rollback-and-re-encrypt path.
func CounterTooLow(err error) bool {
	se, ok := err.(*StatusError)
	return ok && se.Code == 409
}

// Transport is the opaque envelope-delivery collaborator.
type Transport interface {
	ListMessages(ctx context.Context, conversationID string, sinceCounter uint64) ([]Envelope, error)
	PutEnvelope(ctx context.Context, env Envelope) error
	FetchServerMaxCounter(ctx context.Context, conversationID string) (uint64, error)
}
