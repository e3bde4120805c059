package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/sentry-msgr/e2ee/internal/config"
	"github.com/sentry-msgr/e2ee/internal/contacts"
	"github.com/sentry-msgr/e2ee/internal/prekeys"
	"github.com/sentry-msgr/e2ee/internal/transport"
	"github.com/sentry-msgr/e2ee/internal/transport/memtransport"
	"github.com/sentry-msgr/e2ee/internal/vault"
)

func newTestWire(t *testing.T, deviceID string) *Wire {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Wire{
		Cfg:       config.Config{DataDir: t.TempDir(), DeviceID: deviceID},
		Log:       log,
		Durable:   newMemStore(),
		Session:   newMemStore(),
		Contacts:  contacts.New(log),
		Transport: memtransport.New(),
	}
}

func TestIdentitySaveAndUnlockRoundTrips(t *testing.T) {
	w := newTestWire(t, "dev-a")
	mk, err := vault.GenerateMK()
	require.NoError(t, err)
	dp, _, err := prekeys.GenerateInitialBundle("dev-a", 0, 5)
	require.NoError(t, err)

	require.NoError(t, w.SaveIdentity("hunter2", mk, dp))

	recovered, err := w.Unlock("hunter2")
	require.NoError(t, err)
	require.Equal(t, mk, recovered)

	loaded, err := w.LoadDevicePrivate(recovered)
	require.NoError(t, err)
	require.Equal(t, dp.IKPub, loaded.IKPub)
	require.Len(t, loaded.OPKPriv, 5)
}

func TestUnlockWrongPassword(t *testing.T) {
	w := newTestWire(t, "dev-a")
	mk, err := vault.GenerateMK()
	require.NoError(t, err)
	dp, _, err := prekeys.GenerateInitialBundle("dev-a", 0, 1)
	require.NoError(t, err)
	require.NoError(t, w.SaveIdentity("correct-horse", mk, dp))

	_, err = w.Unlock("wrong-password")
	require.Error(t, err)
}

func TestHandshakeThenSendReceiveRoundTrips(t *testing.T) {
	guestWire := newTestWire(t, "dev-guest")
	ownerWire := newTestWire(t, "dev-owner")
	sharedTransport := memtransport.New()
	guestWire.Transport = sharedTransport
	ownerWire.Transport = sharedTransport

	guestDP, _, err := prekeys.GenerateInitialBundle("dev-guest", 0, 3)
	require.NoError(t, err)
	ownerDP, ownerPublic, err := prekeys.GenerateInitialBundle("dev-owner", 0, 3)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	invite, err := guestWire.Initiate(nil, guestDP, "owner", *ownerPublic, now)
	require.NoError(t, err)

	require.NoError(t, ownerWire.Respond(nil, ownerDP, "guest", *invite, now))
	require.NoError(t, ownerWire.SaveDevicePrivate(nil, ownerDP))

	ctx := context.Background()
	require.NoError(t, guestWire.Send(ctx, "owner", []byte("hello owner"), now))
	require.NoError(t, guestWire.Send(ctx, "owner", []byte("second message"), now.Add(time.Second)))

	msgs, err := ownerWire.Receive(ctx, "guest", now.Add(2*time.Second))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "hello owner", string(msgs[0]))
	require.Equal(t, "second message", string(msgs[1]))

	require.NoError(t, ownerWire.Send(ctx, "guest", []byte("reply"), now.Add(3*time.Second)))
	require.NoError(t, ownerWire.Send(ctx, "guest", []byte("reply2"), now.Add(3500*time.Millisecond)))
	back, err := guestWire.Receive(ctx, "owner", now.Add(4*time.Second))
	require.NoError(t, err)
	require.Len(t, back, 2)
	require.Equal(t, "reply", string(back[0]))
	require.Equal(t, "reply2", string(back[1]))

	// Switch direction again to exercise a second DH rotation each way.
	require.NoError(t, guestWire.Send(ctx, "owner", []byte("third"), now.Add(5*time.Second)))
	final, err := ownerWire.Receive(ctx, "guest", now.Add(6*time.Second))
	require.NoError(t, err)
	require.Len(t, final, 1)
	require.Equal(t, "third", string(final[0]))
}

// flakyOnceTransport rejects the first PutEnvelope for each conversation
// with a 409, then delegates normally — simulating a stale-counter
// rejection that resolves itself by the time Send's single automatic
// retry fires.
type flakyOnceTransport struct {
	transport.Transport
	failed map[string]bool
}

func (f *flakyOnceTransport) PutEnvelope(ctx context.Context, env transport.Envelope) error {
	if !f.failed[env.ConversationID] {
		f.failed[env.ConversationID] = true
		return &transport.StatusError{Code: 409, Msg: "counter too low"}
	}
	return f.Transport.PutEnvelope(ctx, env)
}

func TestSendRollsBackAndRetriesOnCounterTooLow(t *testing.T) {
	guestWire := newTestWire(t, "dev-guest")
	ownerWire := newTestWire(t, "dev-owner")
	sharedTransport := &flakyOnceTransport{Transport: memtransport.New(), failed: make(map[string]bool)}
	guestWire.Transport = sharedTransport
	ownerWire.Transport = sharedTransport.Transport

	guestDP, _, err := prekeys.GenerateInitialBundle("dev-guest", 0, 3)
	require.NoError(t, err)
	ownerDP, ownerPublic, err := prekeys.GenerateInitialBundle("dev-owner", 0, 3)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	invite, err := guestWire.Initiate(nil, guestDP, "owner", *ownerPublic, now)
	require.NoError(t, err)
	require.NoError(t, ownerWire.Respond(nil, ownerDP, "guest", *invite, now))

	ctx := context.Background()
	require.NoError(t, guestWire.Send(ctx, "owner", []byte("hello"), now))

	msgs, err := ownerWire.Receive(ctx, "guest", now.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "hello", string(msgs[0]))
}
