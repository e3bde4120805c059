// Package aead implements HKDF-SHA256 key derivation and AES-256-GCM
// encryption under a domain-separated envelope format. One key is derived
// per call (fresh salt) so a single compromised envelope never amplifies to
// others; the info tag prevents cross-context reuse of a derived key.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/sentry-msgr/e2ee/internal/apperr"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// SaltSize is the HKDF salt length in bytes.
	SaltSize = 16
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12

	envelopeVersion = 1
	aeadAlgorithm   = "aes-256-gcm"
)

// InfoTag is a domain-separation string fed to HKDF as its "info" parameter.
// Only tags in Whitelist may be used; unknown tags are rejected at parse
// time before any key derivation runs.
type InfoTag string

// Whitelist enumerates every info tag this build recognizes.
const (
	TagBlob             InfoTag = "blob/v1"
	TagMedia            InfoTag = "media/v1"
	TagMediaChunk       InfoTag = "media/chunk-v1"
	TagMediaManifest    InfoTag = "media/manifest-v1"
	TagProfile          InfoTag = "profile/v1"
	TagSettings         InfoTag = "settings/v1"
	TagSnapshot         InfoTag = "snapshot/v1"
	TagContactSecrets   InfoTag = "contact-secrets/backup/v1"
	TagDeviceKeys       InfoTag = "devkeys/v1"
	TagContact          InfoTag = "contact/v1"
	TagMessageKey       InfoTag = "message-key/v1"
)

var whitelist = map[InfoTag]struct{}{
	TagBlob:           {},
	TagMedia:          {},
	TagMediaChunk:     {},
	TagMediaManifest:  {},
	TagProfile:        {},
	TagSettings:       {},
	TagSnapshot:       {},
	TagContactSecrets: {},
	TagDeviceKeys:     {},
	TagContact:        {},
	TagMessageKey:     {},
}

// Envelope is the self-describing AEAD record: on-the-wire and at-rest
// representation, JSON-tagged exactly per the wire contract.
type Envelope struct {
	V    int     `json:"v"`
	Aead string  `json:"aead"`
	Info InfoTag `json:"info"`
	Salt string  `json:"salt_b64"`
	IV   string  `json:"iv_b64"`
	CT   string  `json:"ct_b64"`
}

// Triple is the {cipher, iv, salt} result of a bare encrypt call.
type Triple struct {
	Cipher []byte
	IV     []byte
	Salt   []byte
}

func validTag(tag InfoTag) bool {
	_, ok := whitelist[tag]
	return ok
}

// DeriveKey runs HKDF-SHA256 over mk with the given 16-byte salt and the
// whitelisted info tag as HKDF's info parameter, producing a 32-byte
// AES-256 key. Rejects tags outside Whitelist before deriving anything.
func DeriveKey(mk []byte, salt []byte, info InfoTag) ([]byte, error) {
	if !validTag(info) {
		return nil, fmt.Errorf("derive key: tag %q: %w", info, apperr.ErrInvalidInfoTag)
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("derive key: salt must be %d bytes: %w", SaltSize, apperr.ErrEnvelopeMalformed)
	}
	r := hkdf.New(sha256.New, mk, salt, []byte(info))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf derive: %w", err)
	}
	return key, nil
}

func newSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

func newNonce() ([]byte, error) {
	iv := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	return iv, nil
}

func seal(key, iv, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm.Seal(nil, iv, plain, nil), nil
}

func open(key, iv, cipherText []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	plain, err := gcm.Open(nil, iv, cipherText, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm open: %w", apperr.ErrAeadAuthFail)
	}
	return plain, nil
}

// Encrypt generates a fresh salt and iv, derives a per-call key from mk via
// DeriveKey, and seals plain under AES-256-GCM.
func Encrypt(plain, mk []byte, info InfoTag) (Triple, error) {
	salt, err := newSalt()
	if err != nil {
		return Triple{}, err
	}
	iv, err := newNonce()
	if err != nil {
		return Triple{}, err
	}
	key, err := DeriveKey(mk, salt, info)
	if err != nil {
		return Triple{}, err
	}
	ct, err := seal(key, iv, plain)
	if err != nil {
		return Triple{}, err
	}
	return Triple{Cipher: ct, IV: iv, Salt: salt}, nil
}

// Decrypt re-derives the per-call key from salt/info and opens cipher under
// iv. Returns ErrAeadAuthFail on tag mismatch, ErrInvalidInfoTag on an
// unknown tag, ErrEnvelopeMalformed on structurally invalid fields.
func Decrypt(cipherText, mk, salt, iv []byte, info InfoTag) ([]byte, error) {
	if len(cipherText) == 0 {
		return nil, fmt.Errorf("decrypt: empty ciphertext: %w", apperr.ErrEnvelopeMalformed)
	}
	if len(iv) != NonceSize {
		return nil, fmt.Errorf("decrypt: iv must be %d bytes: %w", NonceSize, apperr.ErrEnvelopeMalformed)
	}
	key, err := DeriveKey(mk, salt, info)
	if err != nil {
		return nil, err
	}
	return open(key, iv, cipherText)
}

// RawSeal encrypts plain directly under key/iv with no key derivation step.
// For callers (the ratchet engine) where key IS already the final AES key.
func RawSeal(key, iv, plain []byte) ([]byte, error) {
	return seal(key, iv, plain)
}

// RawOpen decrypts cipherText directly under key/iv with no key derivation
// step. RawSeal's inverse.
func RawOpen(key, iv, cipherText []byte) ([]byte, error) {
	return open(key, iv, cipherText)
}

// WrapJSON marshals obj to JSON and encrypts it into an Envelope.
func WrapJSON(obj any, mk []byte, info InfoTag) (Envelope, error) {
	plain, err := json.Marshal(obj)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	t, err := Encrypt(plain, mk, info)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		V:    envelopeVersion,
		Aead: aeadAlgorithm,
		Info: info,
		Salt: base64.StdEncoding.EncodeToString(t.Salt),
		IV:   base64.StdEncoding.EncodeToString(t.IV),
		CT:   base64.StdEncoding.EncodeToString(t.Cipher),
	}, nil
}

// UnwrapJSON validates envelope shape, decrypts it under mk, and unmarshals
// the plaintext into out. Enforces aead=="aes-256-gcm", a whitelisted info
// tag, and non-empty salt/iv/ct fields before attempting decryption.
func UnwrapJSON(env Envelope, mk []byte, out any) error {
	if env.Aead != aeadAlgorithm {
		return fmt.Errorf("unwrap: unsupported aead %q: %w", env.Aead, apperr.ErrEnvelopeMalformed)
	}
	if !validTag(env.Info) {
		return fmt.Errorf("unwrap: tag %q: %w", env.Info, apperr.ErrInvalidInfoTag)
	}
	if env.Salt == "" || env.IV == "" || env.CT == "" {
		return fmt.Errorf("unwrap: missing field: %w", apperr.ErrEnvelopeMalformed)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return fmt.Errorf("unwrap: decode salt: %w", apperr.ErrEnvelopeMalformed)
	}
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return fmt.Errorf("unwrap: decode iv: %w", apperr.ErrEnvelopeMalformed)
	}
	ct, err := base64.StdEncoding.DecodeString(env.CT)
	if err != nil {
		return fmt.Errorf("unwrap: decode ciphertext: %w", apperr.ErrEnvelopeMalformed)
	}
	plain, err := Decrypt(ct, mk, salt, iv, env.Info)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(plain, out); err != nil {
		return fmt.Errorf("unwrap: unmarshal payload: %w", apperr.ErrEnvelopeMalformed)
	}
	return nil
}
