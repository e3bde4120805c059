package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	mk, err := GenerateMK()
	require.NoError(t, err)

	env, err := WrapMK("correct horse battery staple", mk, DefaultParams)
	require.NoError(t, err)

	got, err := UnwrapMK("correct horse battery staple", env)
	require.NoError(t, err)
	assert.Equal(t, mk, got)
}

func TestUnwrapWrongPasswordReturnsNil(t *testing.T) {
	mk, err := GenerateMK()
	require.NoError(t, err)

	env, err := WrapMK("right-password", mk, DefaultParams)
	require.NoError(t, err)

	got, err := UnwrapMK("wrong-password", env)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWrapIsNonDeterministicButUnwrapsConsistently(t *testing.T) {
	mk, err := GenerateMK()
	require.NoError(t, err)

	envA, err := WrapMK("pw", mk, DefaultParams)
	require.NoError(t, err)
	envB, err := WrapMK("pw", mk, DefaultParams)
	require.NoError(t, err)

	assert.NotEqual(t, envA.CT, envB.CT, "fresh iv should change ciphertext across wraps")
	assert.NotEqual(t, envA.IV, envB.IV)

	gotA, err := UnwrapMK("pw", envA)
	require.NoError(t, err)
	gotB, err := UnwrapMK("pw", envB)
	require.NoError(t, err)
	assert.Equal(t, mk, gotA)
	assert.Equal(t, mk, gotB)
}

func TestUnwrapMalformedEnvelope(t *testing.T) {
	got, err := UnwrapMK("pw", Envelope{V: 1, KDF: kdfName})
	require.NoError(t, err)
	assert.Nil(t, got)
}
