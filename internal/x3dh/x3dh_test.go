package x3dh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentry-msgr/e2ee/internal/apperr"
	"github.com/sentry-msgr/e2ee/internal/prekeys"
	"github.com/sentry-msgr/e2ee/internal/ratchet"
)

func TestHandshakeThenFirstMessageRoundTrips(t *testing.T) {
	aliceDP, _, err := prekeys.GenerateInitialBundle("alice-device", 0, 3)
	require.NoError(t, err)
	bobDP, bobBundle, err := prekeys.GenerateInitialBundle("bob-device", 0, 3)
	require.NoError(t, err)

	chosen := prekeys.Choose(bobDP)
	assert.NotNil(t, chosen.OneTimePreKeyID)

	initRes, err := Initiate(aliceDP, chosen)
	require.NoError(t, err)
	require.NotNil(t, initRes.State)

	guest := GuestBundle{
		IdentityKey:     aliceDP.IKPub,
		EphemeralKey:    initRes.EphemeralPub,
		OneTimePreKeyID: initRes.UsedOneTimePreKeyID,
	}
	bobState, err := Respond(bobDP, guest)
	require.NoError(t, err)

	_ = bobBundle

	pkt, err := ratchet.Send(bobState, []byte("hello alice"), ratchet.SendOpts{DeviceID: "bob-device", Version: 1})
	require.NoError(t, err)

	plain, err := ratchet.Receive(initRes.State, pkt, ratchet.ReceiveOpts{})
	require.NoError(t, err)
	assert.Equal(t, "hello alice", string(plain))

	pkt2, err := ratchet.Send(initRes.State, []byte("hi bob"), ratchet.SendOpts{DeviceID: "alice-device", Version: 1})
	require.NoError(t, err)
	plain2, err := ratchet.Receive(bobState, pkt2, ratchet.ReceiveOpts{})
	require.NoError(t, err)
	assert.Equal(t, "hi bob", string(plain2))
}

func TestHandshakeWithoutOneTimePreKeyDegradesGracefully(t *testing.T) {
	aliceDP, _, err := prekeys.GenerateInitialBundle("alice-device", 0, 0)
	require.NoError(t, err)
	bobDP, _, err := prekeys.GenerateInitialBundle("bob-device", 0, 0)
	require.NoError(t, err)

	chosen := prekeys.Choose(bobDP)
	assert.Nil(t, chosen.OneTimePreKeyID)

	initRes, err := Initiate(aliceDP, chosen)
	require.NoError(t, err)

	guest := GuestBundle{IdentityKey: aliceDP.IKPub, EphemeralKey: initRes.EphemeralPub}
	bobState, err := Respond(bobDP, guest)
	require.NoError(t, err)

	pkt, err := ratchet.Send(bobState, []byte("no opk needed"), ratchet.SendOpts{DeviceID: "bob-device", Version: 1})
	require.NoError(t, err)
	plain, err := ratchet.Receive(initRes.State, pkt, ratchet.ReceiveOpts{})
	require.NoError(t, err)
	assert.Equal(t, "no opk needed", string(plain))
}

func TestInitiateRejectsBadSignature(t *testing.T) {
	aliceDP, _, err := prekeys.GenerateInitialBundle("alice-device", 0, 1)
	require.NoError(t, err)
	bobDP, _, err := prekeys.GenerateInitialBundle("bob-device", 0, 1)
	require.NoError(t, err)

	chosen := prekeys.Choose(bobDP)
	chosen.SignedPreKeySig[0] ^= 0xFF

	_, err = Initiate(aliceDP, chosen)
	require.ErrorIs(t, err, apperr.ErrX3dhSignatureInvalid)
}
