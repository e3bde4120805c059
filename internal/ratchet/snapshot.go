package ratchet

import "github.com/sentry-msgr/e2ee/internal/apperr"

const snapshotVersion = 1

// Snapshot is the JSON-serializable DR state record, all byte fields
// base64-encoded by the standard library's []byte JSON marshaling.
type Snapshot struct {
	V                  int    `json:"v"`
	RK                 []byte `json:"rk_b64"`
	CKS                []byte `json:"cks_b64,omitempty"`
	CKR                []byte `json:"ckr_b64,omitempty"`
	Ns                 uint32 `json:"Ns"`
	Nr                 uint32 `json:"Nr"`
	PN                 uint32 `json:"PN"`
	NsTotal            uint64 `json:"ns_total"`
	NrTotal            uint64 `json:"nr_total"`
	MyRatchetPriv      []byte `json:"myRatchetPriv_b64"`
	MyRatchetPub       []byte `json:"myRatchetPub_b64"`
	TheirRatchetPub    []byte `json:"theirRatchetPub_b64,omitempty"`
	PendingSendRatchet bool   `json:"pendingSendRatchet"`
	UpdatedAt          int64  `json:"updatedAt"`
}

// TakeSnapshot produces a snapshot of st as of updatedAtUnixMs. The caller
// supplies the timestamp (package ratchet never reads the clock) so
// callers can keep it deterministic in tests and in replay.
func TakeSnapshot(st *State, updatedAtUnixMs int64) Snapshot {
	return Snapshot{
		V:                  snapshotVersion,
		RK:                 st.RK,
		CKS:                st.CKS,
		CKR:                st.CKR,
		Ns:                 st.Ns,
		Nr:                 st.Nr,
		PN:                 st.PN,
		NsTotal:            st.NsTotal,
		NrTotal:            st.NrTotal,
		MyRatchetPriv:      st.MyRatchetPriv,
		MyRatchetPub:       st.MyRatchetPub,
		TheirRatchetPub:    st.TheirRatchetPub,
		PendingSendRatchet: st.PendingSendRatchet,
		UpdatedAt:          updatedAtUnixMs,
	}
}

// Restore rebuilds a State from a snapshot. It does not itself set
// PendingSendRatchet — a caller resuming after logout must do that
// explicitly so a restored state never reuses a send-chain message key
// from before the snapshot; a caller retrying a rolled-back send in the
// same process should leave it false.
func Restore(snap Snapshot) (*State, error) {
	if snap.V != snapshotVersion {
		return nil, apperr.ErrSnapshotVersionMismatch
	}
	if len(snap.RK) == 0 || len(snap.MyRatchetPriv) == 0 || len(snap.MyRatchetPub) == 0 {
		return nil, apperr.ErrEnvelopeMalformed
	}
	return &State{
		RK:                 snap.RK,
		CKS:                snap.CKS,
		CKR:                snap.CKR,
		Ns:                 snap.Ns,
		Nr:                 snap.Nr,
		PN:                 snap.PN,
		NsTotal:            snap.NsTotal,
		NrTotal:            snap.NrTotal,
		MyRatchetPriv:      snap.MyRatchetPriv,
		MyRatchetPub:       snap.MyRatchetPub,
		TheirRatchetPub:    snap.TheirRatchetPub,
		PendingSendRatchet: snap.PendingSendRatchet,
		SkippedKeys:        make(map[string][]byte),
		UpdatedAt:          snap.UpdatedAt,
	}, nil
}
