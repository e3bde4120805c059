// Package vault implements password-derived master-key wrap and unwrap. A
// user password is stretched with Argon2id into a key-encryption key (KEK);
// the 32-byte master key (MK) is never written to disk except as an AEAD
// envelope sealed under that KEK.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"

	"github.com/sentry-msgr/e2ee/internal/apperr"
)

const (
	// MKSize is the master key length in bytes.
	MKSize = 32
	saltSize = 16
	ivSize   = 12
	hashLen  = 32
	kdfName  = "argon2id"
)

// Params holds the tunable Argon2id cost parameters. Zero-value Params is
// invalid; use DefaultParams for new wraps.
type Params struct {
	MemoryMiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultParams is a conservative interactive-unlock cost setting.
var DefaultParams = Params{MemoryMiB: 64, Iterations: 3, Parallelism: 1}

// Envelope is the MK wrap envelope wire format.
type Envelope struct {
	V    int    `json:"v"`
	KDF  string `json:"kdf"`
	M    uint32 `json:"m"`
	T    uint32 `json:"t"`
	P    uint32 `json:"p"`
	Salt string `json:"salt_b64"`
	IV   string `json:"iv_b64"`
	CT   string `json:"ct_b64"`
}

func deriveKEK(password string, salt []byte, p Params) []byte {
	return argon2.IDKey([]byte(password), salt, p.Iterations, p.MemoryMiB*1024, p.Parallelism, hashLen)
}

// GenerateMK returns 32 fresh random bytes suitable as a master key.
func GenerateMK() ([]byte, error) {
	mk := make([]byte, MKSize)
	if _, err := io.ReadFull(rand.Reader, mk); err != nil {
		return nil, fmt.Errorf("generate mk: %w", err)
	}
	return mk, nil
}

// WrapMK seals mk under a KEK derived from password with a fresh salt and
// iv, recording the Argon2id parameters in the envelope itself so a future
// unwrap call can reproduce the same KEK even after the process defaults
// change.
func WrapMK(password string, mk []byte, params Params) (Envelope, error) {
	if len(mk) != MKSize {
		return Envelope{}, fmt.Errorf("wrap mk: mk must be %d bytes: %w", MKSize, apperr.ErrEnvelopeMalformed)
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return Envelope{}, fmt.Errorf("generate salt: %w", err)
	}
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Envelope{}, fmt.Errorf("generate iv: %w", err)
	}

	kek := deriveKEK(password, salt, params)
	block, err := aes.NewCipher(kek)
	if err != nil {
		return Envelope{}, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Envelope{}, fmt.Errorf("new gcm: %w", err)
	}
	ct := gcm.Seal(nil, iv, mk, nil)

	return Envelope{
		V:    1,
		KDF:  kdfName,
		M:    params.MemoryMiB,
		T:    params.Iterations,
		P:    uint32(params.Parallelism),
		Salt: base64.StdEncoding.EncodeToString(salt),
		IV:   base64.StdEncoding.EncodeToString(iv),
		CT:   base64.StdEncoding.EncodeToString(ct),
	}, nil
}

// UnwrapMK attempts to recover the master key from env under password. Any
// failure (wrong password or malformed envelope) returns (nil, nil) rather
// than a distinguishable error — wrong-password must be indistinguishable
// from corrupt-envelope to the caller.
func UnwrapMK(password string, env Envelope) ([]byte, error) {
	if env.KDF != kdfName || env.V != 1 {
		return nil, nil
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil || len(salt) == 0 {
		return nil, nil
	}
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil || len(iv) != ivSize {
		return nil, nil
	}
	ct, err := base64.StdEncoding.DecodeString(env.CT)
	if err != nil || len(ct) == 0 {
		return nil, nil
	}

	params := Params{MemoryMiB: env.M, Iterations: env.T, Parallelism: uint8(env.P)}
	kek := deriveKEK(password, salt, params)
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, nil
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil
	}
	mk, err := gcm.Open(nil, iv, ct, nil)
	if err != nil {
		return nil, nil
	}
	return mk, nil
}

// Zeroize overwrites mk in place. Callers holding the MK in a lockable cell
// must call this on logout; the wrapping process owns the lifetime.
func Zeroize(mk []byte) {
	for i := range mk {
		mk[i] = 0
	}
}
