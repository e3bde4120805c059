// Package memtransport is an in-memory transport.Transport for tests: a
// per-conversation append-only envelope log guarded by a mutex.
package memtransport

import (
	"context"
	"sync"

	"github.com/sentry-msgr/e2ee/internal/transport"
)

type Transport struct {
	mu          sync.Mutex
	logs        map[string][]transport.Envelope
	rejectBelow map[string]uint64
}

func New() *Transport {
	return &Transport{logs: make(map[string][]transport.Envelope), rejectBelow: make(map[string]uint64)}
}

// RejectBelow makes PutEnvelope return a 409 StatusError for any counter
// less than floor, simulating a server that has already advanced.
func (t *Transport) RejectBelow(conversationID string, floor uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rejectBelow[conversationID] = floor
}

func (t *Transport) ListMessages(_ context.Context, conversationID string, sinceCounter uint64) ([]transport.Envelope, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []transport.Envelope
	for _, env := range t.logs[conversationID] {
		if env.Counter > sinceCounter {
			out = append(out, env)
		}
	}
	return out, nil
}

func (t *Transport) PutEnvelope(_ context.Context, env transport.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if floor, ok := t.rejectBelow[env.ConversationID]; ok && env.Counter < floor {
		return &transport.StatusError{Code: 409, Msg: "counter too low"}
	}
	t.logs[env.ConversationID] = append(t.logs[env.ConversationID], env)
	return nil
}

func (t *Transport) FetchServerMaxCounter(_ context.Context, conversationID string) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var max uint64
	for _, env := range t.logs[conversationID] {
		if env.Counter > max {
			max = env.Counter
		}
	}
	return max, nil
}
