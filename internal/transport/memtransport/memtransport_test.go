package memtransport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentry-msgr/e2ee/internal/transport"
)

func TestListMessagesReturnsOnlyNewerCounters(t *testing.T) {
	tr := New()
	ctx := context.Background()
	require.NoError(t, tr.PutEnvelope(ctx, transport.Envelope{ConversationID: "c1", Counter: 1, Payload: []byte("a")}))
	require.NoError(t, tr.PutEnvelope(ctx, transport.Envelope{ConversationID: "c1", Counter: 2, Payload: []byte("b")}))

	msgs, err := tr.ListMessages(ctx, "c1", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, uint64(2), msgs[0].Counter)
}

func TestFetchServerMaxCounter(t *testing.T) {
	tr := New()
	ctx := context.Background()
	require.NoError(t, tr.PutEnvelope(ctx, transport.Envelope{ConversationID: "c1", Counter: 5, Payload: []byte("a")}))
	max, err := tr.FetchServerMaxCounter(ctx, "c1")
	require.NoError(t, err)
	assert.EqualValues(t, 5, max)
}

func TestRejectBelowReturnsCounterTooLow(t *testing.T) {
	tr := New()
	ctx := context.Background()
	tr.RejectBelow("c1", 3)
	err := tr.PutEnvelope(ctx, transport.Envelope{ConversationID: "c1", Counter: 2, Payload: []byte("a")})
	require.Error(t, err)
	assert.True(t, transport.CounterTooLow(err))
}
