package ratchet

import (
	"github.com/sentry-msgr/e2ee/internal/aead"
)

// Send advances the sending chain by one message and encrypts plaintext
// under the freshly derived message key. If pendingSendRatchet is set, a
// DH rotation runs first; if the send chain has never been used, it is
// seeded from rk.
func Send(st *State, plaintext []byte, opts SendOpts) (*Packet, error) {
	if st.PendingSendRatchet {
		if err := rotateOnSend(st); err != nil {
			return nil, err
		}
		st.PendingSendRatchet = false
	}
	if st.CKS == nil {
		st.CKS = seedChainFromRoot(st.RK)
	}

	mk, cksNext := kdfCK(st.CKS)
	st.CKS = cksNext
	st.Ns++
	st.NsTotal++

	iv, err := newIV()
	if err != nil {
		return nil, err
	}
	ct, err := aead.RawSeal(mk, iv, plaintext)
	if err != nil {
		return nil, err
	}

	header := Header{
		DR:       1,
		EkPub:    st.MyRatchetPub,
		PN:       st.PN,
		N:        st.Ns,
		IV:       iv,
		DeviceID: opts.DeviceID,
		Version:  opts.Version,
	}
	return &Packet{
		Aead:       "aes-256-gcm",
		Header:     header,
		IV:         iv,
		Ciphertext: ct,
	}, nil
}
