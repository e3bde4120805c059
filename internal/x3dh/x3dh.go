// Package x3dh implements the X3DH handshake: combining an identity key,
// signed prekey, one-time prekey, and ephemeral key into a shared root key
// that seeds the initial Double Ratchet state for a new peer session.
package x3dh

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/ed25519"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/hkdf"

	"github.com/sentry-msgr/e2ee/internal/apperr"
	"github.com/sentry-msgr/e2ee/internal/prekeys"
	"github.com/sentry-msgr/e2ee/internal/ratchet"
)

const (
	rootSalt = "x3dh-salt"
	rootInfo = "x3dh-root"
)

// InitiatorResult is everything the initiator needs to both drive its own
// session and tell the responder how to construct the mirrored one.
type InitiatorResult struct {
	State           *ratchet.State
	EphemeralPub    []byte
	UsedOneTimePreKeyID *uint32
}

// GuestBundle is what an initiator publishes to the responder out of band
// (transport/envelope delivery of this value is outside this package).
type GuestBundle struct {
	IdentityKey     []byte  `json:"identity_key"`
	EphemeralKey    []byte  `json:"ephemeral_key"`
	OneTimePreKeyID *uint32 `json:"one_time_pre_key_id,omitempty"`
}

func newEphemeral() (priv, pub []byte, err error) {
	priv = make([]byte, 32)
	if _, err = io.ReadFull(rand.Reader, priv); err != nil {
		return nil, nil, fmt.Errorf("generate ephemeral priv: %w", err)
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("derive ephemeral pub: %w", err)
	}
	return priv, pub, nil
}

// Initiate runs the initiator side of the handshake against a responder's
// chosen bundle, verifying the signed-prekey signature before deriving any
// key material.
func Initiate(local *prekeys.DevicePrivate, peer prekeys.ChosenBundle) (*InitiatorResult, error) {
	if !ed25519.Verify(peer.IdentityKey, peer.SignedPreKey, peer.SignedPreKeySig) {
		return nil, apperr.ErrX3dhSignatureInvalid
	}

	ekPriv, ekPub, err := newEphemeral()
	if err != nil {
		return nil, err
	}

	ikPriv := ed25519.PrivateKey(local.IKPriv)
	ikSeed := ikPriv.Seed()

	dh1, err := curve25519.X25519(ikSeed, peer.SignedPreKey)
	if err != nil {
		return nil, fmt.Errorf("x3dh dh1: %w", err)
	}
	dh2, err := curve25519.X25519(ekPriv, peer.IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("x3dh dh2: %w", err)
	}
	dh3, err := curve25519.X25519(ekPriv, peer.SignedPreKey)
	if err != nil {
		return nil, fmt.Errorf("x3dh dh3: %w", err)
	}

	var dh4 []byte
	if peer.OneTimePreKey != nil {
		dh4, err = curve25519.X25519(ekPriv, peer.OneTimePreKey)
		if err != nil {
			return nil, fmt.Errorf("x3dh dh4: %w", err)
		}
	}

	rk := deriveRootKey(dh1, dh2, dh3, dh4)
	st := ratchet.NewState(rk, ekPriv, ekPub, nil, false)

	return &InitiatorResult{
		State:               st,
		EphemeralPub:        ekPub,
		UsedOneTimePreKeyID: peer.OneTimePreKeyID,
	}, nil
}

// Respond runs the responder side against the initiator's guest bundle,
// mirroring the initiator's DH operands. The returned state is marked
// pending a send-side DH rotation: the responder's first outgoing message
// rotates onto a fresh ratchet keypair rather than encrypting straight off
// rk, so the initiator's first-receive rotation derives the same chain.
func Respond(local *prekeys.DevicePrivate, guest GuestBundle) (*ratchet.State, error) {
	var opkPriv []byte
	if guest.OneTimePreKeyID != nil {
		if priv, ok := prekeys.ConsumeOPK(local, *guest.OneTimePreKeyID); ok {
			opkPriv = priv
		} else {
			// A missing/already-consumed id degrades to no DH4, never an error.
			logrus.WithField("opk_id", *guest.OneTimePreKeyID).Warn("x3dh: one-time prekey missing or already consumed, continuing without DH4")
		}
	}

	ikPriv := ed25519.PrivateKey(local.IKPriv)
	ikSeed := ikPriv.Seed()

	dh1, err := curve25519.X25519(local.SPKPriv, guest.IdentityKey)
	if err != nil {
		return nil, fmt.Errorf("x3dh dh1: %w", err)
	}
	dh2, err := curve25519.X25519(ikSeed, guest.EphemeralKey)
	if err != nil {
		return nil, fmt.Errorf("x3dh dh2: %w", err)
	}
	dh3, err := curve25519.X25519(local.SPKPriv, guest.EphemeralKey)
	if err != nil {
		return nil, fmt.Errorf("x3dh dh3: %w", err)
	}

	var dh4 []byte
	if opkPriv != nil {
		dh4, err = curve25519.X25519(opkPriv, guest.EphemeralKey)
		if err != nil {
			return nil, fmt.Errorf("x3dh dh4: %w", err)
		}
	}

	rk := deriveRootKey(dh1, dh2, dh3, dh4)

	myPriv, myPub, err := newEphemeral()
	if err != nil {
		return nil, err
	}

	return ratchet.NewState(rk, myPriv, myPub, guest.EphemeralKey, true), nil
}

// deriveRootKey computes rk = HKDF-SHA256(ikm=dh1||dh2||dh3||dh4?,
// salt="x3dh-salt", info="x3dh-root", L=32).
func deriveRootKey(dh1, dh2, dh3, dh4 []byte) []byte {
	ikm := bytes.Join([][]byte{dh1, dh2, dh3, dh4}, nil)
	r := hkdf.New(sha256.New, ikm, []byte(rootSalt), []byte(rootInfo))
	rk := make([]byte, 32)
	if _, err := io.ReadFull(r, rk); err != nil {
		panic(err)
	}
	return rk
}
