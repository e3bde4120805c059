package ratchet

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	saltRK  = "dr-rk"
	infoRK  = "root"
	saltCK  = "dr-ck"
	infoCK  = "chain"
)

func hkdfDerive(salt, ikm, info string, size int) []byte {
	r := hkdf.New(sha256.New, []byte(ikm), []byte(salt), []byte(info))
	out := make([]byte, size)
	if _, err := io.ReadFull(r, out); err != nil {
		panic(err)
	}
	return out
}

// kdfRK is the root-chain KDF: HKDF(ikm=rk||dh, salt="dr-rk", info="root",
// L=64) split into (rk', ck).
func kdfRK(rk, dh []byte) (rkNext, ck []byte) {
	out := hkdfDerive(saltRK, string(rk)+string(dh), infoRK, 64)
	return out[:32], out[32:]
}

// kdfCK is the message-chain KDF: HKDF(ikm=ck, salt="dr-ck", info="chain",
// L=64) split into (message_key, ck_next).
func kdfCK(ck []byte) (messageKey, ckNext []byte) {
	out := hkdfDerive(saltCK, string(ck), infoCK, 64)
	return out[:32], out[32:]
}

// seedChainFromRoot treats rk as an ad-hoc chain key input the first time a
// direction's chain is used before any rotation has occurred, per the X3DH
// handshake's "derive it from rk via kdf_ck" rule. Only the chain-key half
// of the split is kept; the spurious message key half is discarded.
func seedChainFromRoot(rk []byte) []byte {
	_, ck := kdfCK(rk)
	return ck
}

func dh(priv, pub []byte) ([]byte, error) {
	return curve25519.X25519(priv, pub)
}
