package ratchet

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/sentry-msgr/e2ee/internal/aead"
	"github.com/sentry-msgr/e2ee/internal/apperr"
)

func skippedKeyID(theirPub []byte, n uint32) string {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, n)
	return base64.StdEncoding.EncodeToString(append(append([]byte{}, theirPub...), buf...))
}

func storeSkippedKey(st *State, theirPub []byte, n uint32, mk []byte) {
	if len(st.SkippedKeys) >= maxSkippedKeys {
		for k := range st.SkippedKeys {
			delete(st.SkippedKeys, k)
			break
		}
	}
	st.SkippedKeys[skippedKeyID(theirPub, n)] = mk
}

// Receive decrypts pkt against st, advancing the receiving chain (and
// running a DH rotation if pkt's ek_pub is new) as needed.
func Receive(st *State, pkt *Packet, opts ReceiveOpts) (plain []byte, err error) {
	if pkt.Header.Fallback {
		return nil, apperr.ErrLegacyPacketUnsupported
	}

	if opts.PacketKey != nil {
		plain, err := aead.RawOpen(opts.PacketKey, pkt.Header.IV, pkt.Ciphertext)
		if err != nil {
			return nil, err
		}
		return plain, nil
	}

	theirPub := pkt.Header.EkPub
	keyID := skippedKeyID(theirPub, pkt.Header.N)
	if mk, ok := st.SkippedKeys[keyID]; ok {
		plain, err := aead.RawOpen(mk, pkt.Header.IV, pkt.Ciphertext)
		if err == nil {
			delete(st.SkippedKeys, keyID)
			return plain, nil
		}
	}

	// A failed receive leaves st exactly as it was before the call.
	saved := *st
	savedSkipped := make(map[string][]byte, len(st.SkippedKeys))
	for k, v := range st.SkippedKeys {
		savedSkipped[k] = v
	}
	defer func() {
		if err != nil {
			*st = saved
			st.SkippedKeys = savedSkipped
		}
	}()

	if st.TheirRatchetPub == nil || !bytes.Equal(theirPub, st.TheirRatchetPub) {
		if err := rotateOnReceive(st, theirPub); err != nil {
			return nil, err
		}
	}

	if st.CKR == nil {
		st.CKR = seedChainFromRoot(st.RK)
	}

	if pkt.Header.N <= st.Nr {
		return nil, fmt.Errorf("receive: counter %d already processed (at %d): %w", pkt.Header.N, st.Nr, apperr.ErrCounterTooLow)
	}

	gap := int64(pkt.Header.N) - int64(st.Nr) - 1
	if gap > maxSkippedKeys {
		return nil, fmt.Errorf("receive: counter gap %d exceeds bound: %w", gap, apperr.ErrFatalInconsistency)
	}

	if pkt.Header.N > st.Nr+1 {
		var skipped []SkippedKeyRecord
		for k := st.Nr + 1; k < pkt.Header.N; k++ {
			mk, ckNext := kdfCK(st.CKR)
			st.CKR = ckNext
			storeSkippedKey(st, theirPub, k, mk)
			skipped = append(skipped, SkippedKeyRecord{TheirRatchetPub: theirPub, N: k, MessageKey: mk})
		}
		if opts.OnSkippedKeys != nil && len(skipped) > 0 {
			opts.OnSkippedKeys(skipped)
		}
	}

	mk, ckNext := kdfCK(st.CKR)
	st.CKR = ckNext
	st.Nr = pkt.Header.N
	st.NrTotal++

	plain, err = aead.RawOpen(mk, pkt.Header.IV, pkt.Ciphertext)
	if err != nil {
		if fallback, ok := st.SkippedKeys[keyID]; ok {
			if p2, err2 := aead.RawOpen(fallback, pkt.Header.IV, pkt.Ciphertext); err2 == nil {
				delete(st.SkippedKeys, keyID)
				return p2, nil
			}
		}
		return nil, err
	}
	return plain, nil
}
