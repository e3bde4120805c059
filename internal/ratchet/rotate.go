package ratchet

import "fmt"

// rotateOnReceive runs the full DH rotation when a received header carries
// a theirRatchetPub distinct from the one currently on file. It advances
// both the receiving chain (under the old myRatchetPriv) and the sending
// chain (under a freshly generated keypair), matching the two-step shape
// of a standard Double Ratchet DH step.
func rotateOnReceive(st *State, theirNewPub []byte) error {
	d1, err := dh(st.MyRatchetPriv, theirNewPub)
	if err != nil {
		return fmt.Errorf("rotate recv dh1: %w", err)
	}
	rkPrime, ckrSeed := kdfRK(st.RK, d1)

	newPriv, newPub, err := newRatchetKeypair()
	if err != nil {
		return err
	}
	d2, err := dh(newPriv, theirNewPub)
	if err != nil {
		return fmt.Errorf("rotate recv dh2: %w", err)
	}
	rkDouble, cksSeed := kdfRK(rkPrime, d2)

	st.RK = rkDouble
	st.CKR = ckrSeed
	st.CKS = cksSeed
	st.PN = st.Ns
	st.Ns = 0
	st.Nr = 0
	st.MyRatchetPriv = newPriv
	st.MyRatchetPub = newPub
	st.TheirRatchetPub = theirNewPub
	return nil
}

// rotateOnSend runs the sending-side half of the rotation when
// pendingSendRatchet forces a fresh DH step without a newly observed peer
// public — the theirRatchetPub on file is unchanged.
func rotateOnSend(st *State) error {
	newPriv, newPub, err := newRatchetKeypair()
	if err != nil {
		return err
	}
	d, err := dh(newPriv, st.TheirRatchetPub)
	if err != nil {
		return fmt.Errorf("rotate send dh: %w", err)
	}
	rkPrime, cksSeed := kdfRK(st.RK, d)

	st.RK = rkPrime
	st.CKS = cksSeed
	st.PN = st.Ns
	st.Ns = 0
	st.MyRatchetPriv = newPriv
	st.MyRatchetPub = newPub
	return nil
}
