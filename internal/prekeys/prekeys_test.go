package prekeys

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/crypto/ed25519"
)

func mk(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, 32)
	_, err := rand.Read(k)
	require.NoError(t, err)
	return k
}

func TestGenerateInitialBundleSignatureVerifies(t *testing.T) {
	dp, bundle, err := GenerateInitialBundle("device-1", 0, 5)
	require.NoError(t, err)
	assert.Len(t, dp.OPKPriv, 5)
	assert.Equal(t, uint32(5), dp.NextOPKID)
	assert.True(t, ed25519.Verify(bundle.IdentityKey, bundle.SignedPreKey, bundle.SignedPreKeySig))
}

func TestGenerateOPKsFromIsIncremental(t *testing.T) {
	dp, _, err := GenerateInitialBundle("device-1", 0, 2)
	require.NoError(t, err)

	pubs, err := GenerateOPKsFrom(dp, dp.NextOPKID, 3)
	require.NoError(t, err)
	assert.Len(t, pubs, 3)
	assert.Len(t, dp.OPKPriv, 5)
	assert.Equal(t, uint32(5), dp.NextOPKID)
}

func TestChooseConsumesOneOPK(t *testing.T) {
	dp, _, err := GenerateInitialBundle("device-1", 0, 1)
	require.NoError(t, err)

	cb := Choose(dp)
	require.NotNil(t, cb.OneTimePreKeyID)
	assert.Len(t, dp.OPKPriv, 0, "consumed opk must be removed from the pool")

	cb2 := Choose(dp)
	assert.Nil(t, cb2.OneTimePreKeyID, "exhausted pool degrades to no OPK")
}

func TestWrapUnwrapDevicePriv(t *testing.T) {
	key := mk(t)
	dp, _, err := GenerateInitialBundle("device-1", 0, 3)
	require.NoError(t, err)

	env, err := WrapDevicePriv(dp, key)
	require.NoError(t, err)

	got, err := UnwrapDevicePriv(env, key)
	require.NoError(t, err)
	assert.Equal(t, dp.DeviceID, got.DeviceID)
	assert.Equal(t, dp.IKPub, got.IKPub)
	assert.Len(t, got.OPKPriv, 3)
}
