// Package contacts implements the contact-secrets store: the durable
// per-peer record of a session's handshake secrets, DR snapshot, and DR
// history, with checksum-based two-tier hydration on process start.
package contacts

import (
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sentry-msgr/e2ee/internal/ratchet"
)

// Role is a peer's normalized role in a conversation. The legacy names
// initiator/responder are mapped onto guest/owner on read.
type Role string

const (
	RoleOwner Role = "owner"
	RoleGuest Role = "guest"
)

// NormalizeRole maps the legacy X3DH-side naming onto the current schema.
func NormalizeRole(r string) Role {
	switch r {
	case "initiator":
		return RoleGuest
	case "responder":
		return RoleOwner
	case string(RoleOwner), string(RoleGuest):
		return Role(r)
	default:
		return Role(r)
	}
}

// HistoryEntry is one DR send/receive event, kept for O(1) replay of a
// range of past messages.
type HistoryEntry struct {
	Ts             int64
	MessageID      string
	SnapshotBefore *ratchet.Snapshot
	SnapshotAfter  *ratchet.Snapshot
	MessageKey     []byte
}

// Record is the per-peer contact-secret record.
type Record struct {
	InviteID           string
	Secret             []byte
	Role               Role
	ConversationToken  string
	ConversationID     string
	ConversationDRInit bool
	DRState            *ratchet.Snapshot
	DRSeed             []byte
	DRHistory          []HistoryEntry
	DRHistoryCursorTs  int64
	DRHistoryCursorID  string
	LastFetchedCounter uint64
	UpdatedAt          int64
}

// Patch carries only the fields a Set call should override. A nil pointer
// field leaves the existing value untouched.
type Patch struct {
	InviteID           *string
	Secret             []byte
	Role               *Role
	ConversationToken  *string
	ConversationID     *string
	ConversationDRInit *bool
	DRState            *ratchet.Snapshot
	DRSeed             []byte
	AppendDRHistory    []HistoryEntry
	LastFetchedCounter *uint64
	UpdatedAt          *int64
}

var nonHex = regexp.MustCompile(`[^0-9A-Fa-f]`)

// NormalizePeerID strips non-hex characters and uppercases the remainder,
// so a peer identifier arriving with mixed formatting always maps onto
// the same store key.
func NormalizePeerID(id string) string {
	return strings.ToUpper(nonHex.ReplaceAllString(id, ""))
}

// Store is the in-memory working set of contact-secret records, guarded
// by a single mutex that readers (Get) and writers alike take, so reads
// are serialized with each other as well as with writes. Persistence is
// handled by the caller (Persist/Restore).
type Store struct {
	mu         sync.Mutex
	records    map[string]Record
	locked     bool
	lockReason string
	log        *logrus.Logger
}

func New(log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{records: make(map[string]Record), log: log}
}

// Get returns a copy of the record for peer, if any.
func (s *Store) Get(peer string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[NormalizePeerID(peer)]
	return rec, ok
}

// Set merges patch into the existing record for peer (or a zero record if
// none exists yet), field by field. A DR snapshot in the patch is only
// accepted when it carries v:1 and a non-null root key; otherwise it is
// dropped (logged) so a stale or malformed snapshot can never clobber a
// live session.
func (s *Store) Set(peer string, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := NormalizePeerID(peer)
	if s.locked {
		s.log.WithField("peer", key).Warn("contacts: write rejected, store is locked")
		return nil
	}

	rec := s.records[key]

	if patch.InviteID != nil {
		rec.InviteID = *patch.InviteID
	}
	if patch.Secret != nil {
		rec.Secret = patch.Secret
	}
	if patch.Role != nil {
		rec.Role = *patch.Role
	}
	if patch.ConversationToken != nil {
		rec.ConversationToken = *patch.ConversationToken
	}
	if patch.ConversationID != nil {
		rec.ConversationID = *patch.ConversationID
	}
	if patch.ConversationDRInit != nil {
		rec.ConversationDRInit = *patch.ConversationDRInit
	}
	if patch.DRState != nil {
		if patch.DRState.V == 1 && len(patch.DRState.RK) > 0 {
			rec.DRState = patch.DRState
		} else {
			s.log.WithField("peer", key).Warn("contacts: dropped DR snapshot patch failing v:1/rk_b64 gate")
		}
	}
	if patch.DRSeed != nil {
		rec.DRSeed = patch.DRSeed
	}
	if len(patch.AppendDRHistory) > 0 {
		rec.DRHistory = append(rec.DRHistory, patch.AppendDRHistory...)
		sortHistory(rec.DRHistory)
		last := rec.DRHistory[len(rec.DRHistory)-1]
		rec.DRHistoryCursorTs = last.Ts
		rec.DRHistoryCursorID = last.MessageID
	}
	if patch.LastFetchedCounter != nil {
		rec.LastFetchedCounter = *patch.LastFetchedCounter
	}
	if patch.UpdatedAt != nil {
		rec.UpdatedAt = *patch.UpdatedAt
	}

	s.records[key] = rec
	return nil
}

// Delete removes peer's record entirely.
func (s *Store) Delete(peer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		s.log.WithField("peer", NormalizePeerID(peer)).Warn("contacts: delete rejected, store is locked")
		return nil
	}
	delete(s.records, NormalizePeerID(peer))
	return nil
}

// Lock marks the store read-only; subsequent Set/Delete calls are
// ignored and logged rather than erroring, matching the store's
// debounced-persistence design where callers fire-and-forget writes.
func (s *Store) Lock(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = true
	s.lockReason = reason
	s.log.WithField("reason", reason).Info("contacts: store locked")
}

func sortHistory(h []HistoryEntry) {
	for i := 1; i < len(h); i++ {
		for j := i; j > 0; j-- {
			a, b := h[j-1], h[j]
			if a.Ts < b.Ts || (a.Ts == b.Ts && a.MessageID <= b.MessageID) {
				break
			}
			h[j-1], h[j] = h[j], h[j-1]
		}
	}
}
