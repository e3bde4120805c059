// Package ratchet implements the Double Ratchet session engine: per-peer
// symmetric chains combined with a Diffie-Hellman ratchet on direction
// switch, giving forward secrecy and post-compromise security to an
// established session. A State is produced by the x3dh package and then
// driven exclusively through Send/Receive for the lifetime of the session.
package ratchet

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

const maxSkippedKeys = 2000

// State is the DR session tuple for one peer device. Zero value is not
// usable; construct with NewState (normally called by package x3dh).
type State struct {
	RK              []byte `json:"rk"`
	CKS             []byte `json:"cks,omitempty"`
	CKR             []byte `json:"ckr,omitempty"`
	Ns              uint32 `json:"ns"`
	Nr              uint32 `json:"nr"`
	PN              uint32 `json:"pn"`
	NsTotal         uint64 `json:"ns_total"`
	NrTotal         uint64 `json:"nr_total"`
	MyRatchetPriv   []byte `json:"my_ratchet_priv"`
	MyRatchetPub    []byte `json:"my_ratchet_pub"`
	TheirRatchetPub []byte `json:"their_ratchet_pub,omitempty"`

	// PendingSendRatchet forces a DH rotation on the next Send. Set by
	// NewState for a fresh responder session (whose first send must rotate
	// onto a chain the initiator can derive too) and by Restore callers
	// resuming a session after logout, so a restored state never reuses a
	// message key from before the snapshot.
	PendingSendRatchet bool `json:"pending_send_ratchet"`

	// SkippedKeys maps skippedKeyID(theirRatchetPub, n) to a message key
	// held for a message that arrived out of order.
	SkippedKeys map[string][]byte `json:"-"`

	UpdatedAt int64 `json:"updated_at"`
}

// NewState builds a fresh DR state after X3DH completes. pendingSendRatchet
// marks a state whose first outgoing message must run a DH rotation before
// encrypting rather than seeding ckS straight from rk — used on the
// responder path, since the responder's first send uses a ratchet keypair
// the initiator has never seen, and seeding that chain from rk directly
// would never line up with the kdf_rk-derived chain the initiator computes
// when it rotates on receiving that keypair for the first time.
func NewState(rk, myPriv, myPub, theirPub []byte, pendingSendRatchet bool) *State {
	return &State{
		RK:                 rk,
		MyRatchetPriv:      myPriv,
		MyRatchetPub:       myPub,
		TheirRatchetPub:    theirPub,
		SkippedKeys:        make(map[string][]byte),
		PendingSendRatchet: pendingSendRatchet,
	}
}

func newRatchetKeypair() (priv, pub []byte, err error) {
	priv = make([]byte, 32)
	if _, err = io.ReadFull(rand.Reader, priv); err != nil {
		return nil, nil, fmt.Errorf("generate ratchet priv: %w", err)
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, fmt.Errorf("derive ratchet pub: %w", err)
	}
	return priv, pub, nil
}

func newIV() ([]byte, error) {
	iv := make([]byte, 12)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	return iv, nil
}
