// Package prekeys implements identity key, signed prekey, and one-time
// prekey pool management. The device-private bundle — the aggregate of
// every private key a device holds — is never persisted in plaintext; it
// only ever leaves this package as an AEAD envelope sealed under the
// master key.
package prekeys

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/ed25519"

	"github.com/sentry-msgr/e2ee/internal/aead"
	"github.com/sentry-msgr/e2ee/internal/apperr"
)

// DevicePrivate is the aggregate of every private key a device holds:
// identity key, signed prekey, its signature, and the one-time prekey pool.
// JSON-tagged because it travels as the payload of a devkeys/v1 envelope.
type DevicePrivate struct {
	DeviceID      string            `json:"device_id"`
	IKPriv        []byte            `json:"ik_priv"` // Ed25519 seed+pub (64 bytes)
	IKPub         []byte            `json:"ik_pub"`
	SPKPriv       []byte            `json:"spk_priv"` // X25519 scalar (32 bytes)
	SPKPub        []byte            `json:"spk_pub"`
	SPKSig        []byte            `json:"spk_sig"`
	OPKPriv       map[uint32][]byte `json:"opk_priv"`
	NextOPKID     uint32            `json:"next_opk_id"`
}

// PublicBundle is the counterpart published for others to fetch — the
// PreKeyBundle type X3DH consumes, widened with id bookkeeping so a server
// can track which OPK it handed out.
type PublicBundle struct {
	DeviceID        string           `json:"device_id"`
	IdentityKey     []byte           `json:"identity_key"`
	SignedPreKey    []byte           `json:"signed_pre_key"`
	SignedPreKeySig []byte           `json:"signed_pre_key_sig"`
	OneTimePreKeys  map[uint32][]byte `json:"one_time_pre_keys"`
}

// ChosenBundle is what a responder actually serves to one initiator: the
// signed prekey plus at most one one-time prekey drawn from the pool.
type ChosenBundle struct {
	IdentityKey     []byte
	SignedPreKey    []byte
	SignedPreKeySig []byte
	OneTimePreKeyID *uint32
	OneTimePreKey   []byte // nil if none was available
}

func newX25519Keypair() (priv, pub []byte, err error) {
	priv = make([]byte, 32)
	if _, err = io.ReadFull(rand.Reader, priv); err != nil {
		return nil, nil, fmt.Errorf("generate x25519 priv: %w", err)
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("derive x25519 pub: %w", err)
	}
	return priv, pub, nil
}

// GenerateInitialBundle creates a fresh identity key, signed prekey (with
// its detached Ed25519 signature), and `count` one-time prekeys starting at
// id `nextOPKIDStart`.
func GenerateInitialBundle(deviceID string, nextOPKIDStart uint32, count int) (*DevicePrivate, *PublicBundle, error) {
	ikPub, ikPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate identity key: %w", err)
	}

	spkPriv, spkPub, err := newX25519Keypair()
	if err != nil {
		return nil, nil, err
	}
	spkSig := ed25519.Sign(ikPriv, spkPub)

	dp := &DevicePrivate{
		DeviceID:  deviceID,
		IKPriv:    []byte(ikPriv),
		IKPub:     []byte(ikPub),
		SPKPriv:   spkPriv,
		SPKPub:    spkPub,
		SPKSig:    spkSig,
		OPKPriv:   make(map[uint32][]byte),
		NextOPKID: nextOPKIDStart,
	}

	opkPub, err := generateOPKs(dp, nextOPKIDStart, count)
	if err != nil {
		return nil, nil, err
	}

	bundle := &PublicBundle{
		DeviceID:        deviceID,
		IdentityKey:     ikPub,
		SignedPreKey:    spkPub,
		SignedPreKeySig: spkSig,
		OneTimePreKeys:  opkPub,
	}
	return dp, bundle, nil
}

// generateOPKs mints count one-time prekeys starting at nextOPKIDStart,
// storing the privates in dp and advancing dp.NextOPKID. Callers must pass
// a strictly increasing nextOPKIDStart across calls for idempotent ranges.
func generateOPKs(dp *DevicePrivate, nextOPKIDStart uint32, count int) (map[uint32][]byte, error) {
	pubs := make(map[uint32][]byte, count)
	for i := 0; i < count; i++ {
		priv, pub, err := newX25519Keypair()
		if err != nil {
			return nil, err
		}
		id := nextOPKIDStart + uint32(i)
		dp.OPKPriv[id] = priv
		pubs[id] = pub
	}
	dp.NextOPKID = nextOPKIDStart + uint32(count)
	return pubs, nil
}

// GenerateOPKsFrom replenishes the one-time prekey pool, minting a fresh
// range [nextOPKIDStart, nextOPKIDStart+count) into dp and returning the
// newly published public keys. Idempotent with respect to the id range:
// calling it twice with the same start simply re-derives the same ids (the
// caller is responsible for passing a fresh start).
func GenerateOPKsFrom(dp *DevicePrivate, nextOPKIDStart uint32, count int) (map[uint32][]byte, error) {
	if dp == nil {
		return nil, fmt.Errorf("replenish opks: %w", apperr.ErrDevicePrivMissing)
	}
	return generateOPKs(dp, nextOPKIDStart, count)
}

// ConsumeOPK removes and returns the one-time private key for id, reporting
// whether it was present. A missing/already-consumed id is a non-fatal
// degradation for the responder path, not an error.
func ConsumeOPK(dp *DevicePrivate, id uint32) (priv []byte, ok bool) {
	priv, ok = dp.OPKPriv[id]
	if ok {
		delete(dp.OPKPriv, id)
	}
	return priv, ok
}

// Choose selects the signed prekey plus (if available) one unconsumed
// one-time prekey to serve a single X3DH initiator, consuming it from the
// pool. The returned ChosenBundle's OneTimePreKey is nil when the pool is
// empty — the initiator proceeds without DH4.
func Choose(dp *DevicePrivate) ChosenBundle {
	cb := ChosenBundle{
		IdentityKey:     dp.IKPub,
		SignedPreKey:    dp.SPKPub,
		SignedPreKeySig: dp.SPKSig,
	}
	for id, pub := range publicOPKs(dp) {
		priv, ok := ConsumeOPK(dp, id)
		if !ok {
			continue
		}
		_ = priv // private stays with the responder; only pub goes out
		idCopy := id
		cb.OneTimePreKeyID = &idCopy
		cb.OneTimePreKey = pub
		break
	}
	return cb
}

// CurrentPublicBundle re-derives the publishable bundle from dp's current
// key material, reflecting whatever OPKs remain unconsumed. Used to
// re-publish a bundle after the device-private blob has been restored
// from disk, without needing to keep a separate public copy around.
func CurrentPublicBundle(dp *DevicePrivate) *PublicBundle {
	return &PublicBundle{
		DeviceID:        dp.DeviceID,
		IdentityKey:     dp.IKPub,
		SignedPreKey:    dp.SPKPub,
		SignedPreKeySig: dp.SPKSig,
		OneTimePreKeys:  publicOPKs(dp),
	}
}

func publicOPKs(dp *DevicePrivate) map[uint32][]byte {
	out := make(map[uint32][]byte, len(dp.OPKPriv))
	for id, priv := range dp.OPKPriv {
		pub, err := curve25519.X25519(priv, curve25519.Basepoint)
		if err != nil {
			continue
		}
		out[id] = pub
	}
	return out
}

// WrapDevicePriv seals dp under mk as a devkeys/v1 envelope. OPK private
// keys only ever exist inside this blob.
func WrapDevicePriv(dp *DevicePrivate, mk []byte) (aead.Envelope, error) {
	return aead.WrapJSON(dp, mk, aead.TagDeviceKeys)
}

// UnwrapDevicePriv is WrapDevicePriv's inverse.
func UnwrapDevicePriv(env aead.Envelope, mk []byte) (*DevicePrivate, error) {
	var dp DevicePrivate
	if err := aead.UnwrapJSON(env, mk, &dp); err != nil {
		return nil, err
	}
	if dp.OPKPriv == nil {
		dp.OPKPriv = make(map[uint32][]byte)
	}
	return &dp, nil
}
