// Package ablytransport adapts an Ably realtime connection to
// transport.Transport. Ably is pub/sub, not a queryable log, so each
// conversation channel is subscribed once and its deliveries are kept in
// a local ordered buffer that ListMessages/FetchServerMaxCounter read
// from.
package ablytransport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ably/ably-go/ably"
	"github.com/sirupsen/logrus"

	"github.com/sentry-msgr/e2ee/internal/transport"
)

const eventName = "message"

// Transport is a transport.Transport backed by one Ably realtime
// connection, one channel per conversation.
type Transport struct {
	client *ably.Realtime
	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Logger

	subMutex    sync.RWMutex
	subscribed  map[string]bool

	bufMu sync.Mutex
	bufs  map[string][]transport.Envelope
}

func New(apiKey string, log *logrus.Logger) (*Transport, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ablytransport: API key is required")
	}
	if log == nil {
		log = logrus.New()
	}
	client, err := ably.NewRealtime(ably.WithKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("ablytransport: create client: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		client:     client,
		ctx:        ctx,
		cancel:     cancel,
		log:        log,
		subscribed: make(map[string]bool),
		bufs:       make(map[string][]transport.Envelope),
	}, nil
}

func channelName(conversationID string) string {
	return fmt.Sprintf("conversation:%s", conversationID)
}

// ensureSubscribed subscribes to conversationID's channel exactly once,
// appending each delivered envelope to the local buffer in arrival order.
func (t *Transport) ensureSubscribed(conversationID string) error {
	t.subMutex.Lock()
	defer t.subMutex.Unlock()

	if t.subscribed[conversationID] {
		return nil
	}

	name := channelName(conversationID)
	channel := t.client.Channels.Get(name)

	_, err := channel.SubscribeAll(t.ctx, func(msg *ably.Message) {
		if msg.Name != eventName {
			return
		}
		env, err := decodeEnvelope(conversationID, msg.Data)
		if err != nil {
			t.log.WithError(err).WithField("channel", name).Warn("ablytransport: dropping undecodable message")
			return
		}
		t.bufMu.Lock()
		t.bufs[conversationID] = append(t.bufs[conversationID], env)
		t.bufMu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("ablytransport: subscribe %s: %w", name, err)
	}
	t.subscribed[conversationID] = true
	return nil
}

func decodeEnvelope(conversationID string, data interface{}) (transport.Envelope, error) {
	var raw []byte
	switch v := data.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return transport.Envelope{}, fmt.Errorf("re-encode message data: %w", err)
		}
		raw = encoded
	}
	var wire struct {
		Counter uint64 `json:"counter"`
		Payload []byte `json:"payload"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return transport.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return transport.Envelope{ConversationID: conversationID, Counter: wire.Counter, Payload: wire.Payload}, nil
}

func (t *Transport) ListMessages(_ context.Context, conversationID string, sinceCounter uint64) ([]transport.Envelope, error) {
	if err := t.ensureSubscribed(conversationID); err != nil {
		return nil, err
	}
	t.bufMu.Lock()
	defer t.bufMu.Unlock()
	var out []transport.Envelope
	for _, env := range t.bufs[conversationID] {
		if env.Counter > sinceCounter {
			out = append(out, env)
		}
	}
	return out, nil
}

func (t *Transport) PutEnvelope(ctx context.Context, env transport.Envelope) error {
	name := channelName(env.ConversationID)
	channel := t.client.Channels.Get(name)

	payload, err := json.Marshal(struct {
		Counter uint64 `json:"counter"`
		Payload []byte `json:"payload"`
	}{Counter: env.Counter, Payload: env.Payload})
	if err != nil {
		return fmt.Errorf("ablytransport: encode envelope: %w", err)
	}

	if err := channel.Publish(ctx, eventName, string(payload)); err != nil {
		t.log.WithError(err).WithField("channel", name).Error("ablytransport: publish failed")
		return &transport.StatusError{Code: 502, Msg: err.Error()}
	}
	return nil
}

func (t *Transport) FetchServerMaxCounter(_ context.Context, conversationID string) (uint64, error) {
	if err := t.ensureSubscribed(conversationID); err != nil {
		return 0, err
	}
	t.bufMu.Lock()
	defer t.bufMu.Unlock()
	var max uint64
	for _, env := range t.bufs[conversationID] {
		if env.Counter > max {
			max = env.Counter
		}
	}
	return max, nil
}

// Close detaches every subscribed channel and closes the connection.
func (t *Transport) Close() error {
	t.subMutex.Lock()
	defer t.subMutex.Unlock()
	for conversationID := range t.subscribed {
		channel := t.client.Channels.Get(channelName(conversationID))
		_ = channel.Detach(t.ctx)
	}
	t.subscribed = make(map[string]bool)
	t.cancel()
	t.client.Close()
	return nil
}
