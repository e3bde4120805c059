package contacts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentry-msgr/e2ee/internal/ratchet"
)

func strPtr(s string) *string { return &s }

func TestNormalizePeerID(t *testing.T) {
	assert.Equal(t, "AB12CD", NormalizePeerID("ab:12-cd"))
}

func TestLegacyRoleNormalization(t *testing.T) {
	assert.Equal(t, RoleGuest, NormalizeRole("initiator"))
	assert.Equal(t, RoleOwner, NormalizeRole("responder"))
}

func TestSetMergeWithOverride(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Set("peer1", Patch{InviteID: strPtr("inv-1"), ConversationID: strPtr("conv-1")}))

	rec, ok := s.Get("peer1")
	require.True(t, ok)
	assert.Equal(t, "inv-1", rec.InviteID)
	assert.Equal(t, "conv-1", rec.ConversationID)

	require.NoError(t, s.Set("peer1", Patch{ConversationToken: strPtr("tok")}))
	rec, ok = s.Get("peer1")
	require.True(t, ok)
	assert.Equal(t, "inv-1", rec.InviteID, "unmentioned field must survive the merge")
	assert.Equal(t, "tok", rec.ConversationToken)
}

func TestDRSnapshotPatchGatedOnVersionAndRootKey(t *testing.T) {
	s := New(nil)
	bad := &ratchet.Snapshot{V: 1} // no RK
	require.NoError(t, s.Set("peer1", Patch{DRState: bad}))
	rec, _ := s.Get("peer1")
	assert.Nil(t, rec.DRState, "snapshot without rk_b64 must be dropped")

	good := &ratchet.Snapshot{V: 1, RK: []byte("0123456789012345678901234567890"), MyRatchetPriv: []byte("x"), MyRatchetPub: []byte("y")}
	require.NoError(t, s.Set("peer1", Patch{DRState: good}))
	rec, _ = s.Get("peer1")
	assert.Same(t, good, rec.DRState)
}

func TestLockRejectsWrites(t *testing.T) {
	s := New(nil)
	s.Lock("logout")
	require.NoError(t, s.Set("peer1", Patch{InviteID: strPtr("inv")}))
	_, ok := s.Get("peer1")
	assert.False(t, ok, "writes after lock must be ignored")
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Set("peer1", Patch{InviteID: strPtr("inv")}))
	require.NoError(t, s.Delete("peer1"))
	_, ok := s.Get("peer1")
	assert.False(t, ok)
}

func TestHistoryAppendKeepsSortedOrderAndCursor(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Set("peer1", Patch{AppendDRHistory: []HistoryEntry{
		{Ts: 20, MessageID: "b"},
		{Ts: 10, MessageID: "a"},
	}}))
	rec, _ := s.Get("peer1")
	require.Len(t, rec.DRHistory, 2)
	assert.Equal(t, "a", rec.DRHistory[0].MessageID)
	assert.Equal(t, "b", rec.DRHistory[1].MessageID)
	assert.EqualValues(t, 20, rec.DRHistoryCursorTs)
	assert.Equal(t, "b", rec.DRHistoryCursorID)
}
