package aead

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentry-msgr/e2ee/internal/apperr"
)

func randKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, KeySize)
	_, err := rand.Read(k)
	require.NoError(t, err)
	return k
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	mk := randKey(t)
	plain := []byte("hello from the chain")

	tr, err := Encrypt(plain, mk, TagBlob)
	require.NoError(t, err)

	got, err := Decrypt(tr.Cipher, mk, tr.Salt, tr.IV, TagBlob)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestDecryptDomainSeparation(t *testing.T) {
	mk := randKey(t)
	tr, err := Encrypt([]byte("payload"), mk, TagBlob)
	require.NoError(t, err)

	_, err = Decrypt(tr.Cipher, mk, tr.Salt, tr.IV, TagMedia)
	require.ErrorIs(t, err, apperr.ErrAeadAuthFail)
}

func TestWrapUnwrapJSON(t *testing.T) {
	mk := randKey(t)
	type payload struct {
		Foo string `json:"foo"`
	}
	in := payload{Foo: "bar"}

	env, err := WrapJSON(in, mk, TagSettings)
	require.NoError(t, err)

	var out payload
	require.NoError(t, UnwrapJSON(env, mk, &out))
	assert.Equal(t, in, out)
}

func TestUnwrapRejectsForbiddenTag(t *testing.T) {
	mk := randKey(t)
	env, err := WrapJSON(map[string]string{"a": "b"}, mk, TagBlob)
	require.NoError(t, err)
	env.Info = "forbidden/v1"

	err = UnwrapJSON(env, mk, nil)
	require.ErrorIs(t, err, apperr.ErrInvalidInfoTag)
}

func TestUnwrapRejectsMalformedFields(t *testing.T) {
	mk := randKey(t)
	env := Envelope{V: 1, Aead: aeadAlgorithm, Info: TagBlob}
	err := UnwrapJSON(env, mk, nil)
	require.ErrorIs(t, err, apperr.ErrEnvelopeMalformed)
}

func TestUnwrapRejectsWrongAead(t *testing.T) {
	mk := randKey(t)
	env, err := WrapJSON(map[string]string{"a": "b"}, mk, TagBlob)
	require.NoError(t, err)
	env.Aead = "chacha20-poly1305"

	err = UnwrapJSON(env, mk, nil)
	require.ErrorIs(t, err, apperr.ErrEnvelopeMalformed)
}
