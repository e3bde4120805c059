package contacts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sentry-msgr/e2ee/internal/aead"
	"github.com/sentry-msgr/e2ee/internal/persistence"
	"github.com/sentry-msgr/e2ee/internal/ratchet"
)

const (
	slotKey       = "contact-secrets"
	legacySlotKey = "contactSecrets"
)

// wireRecord is Record's JSON-serializable shape (exported fields only,
// tagged for the on-wire/at-rest contract).
type wireRecord struct {
	InviteID           string         `json:"inviteId"`
	Secret             []byte         `json:"secret,omitempty"`
	Role               Role           `json:"role"`
	ConversationToken  string         `json:"conversationToken,omitempty"`
	ConversationID     string         `json:"conversationId,omitempty"`
	ConversationDRInit bool              `json:"conversationDrInit"`
	DRState            *ratchet.Snapshot `json:"drState,omitempty"`
	DRSeed             []byte            `json:"drSeed,omitempty"`
	DRHistory          []wireHistory     `json:"drHistory,omitempty"`
	DRHistoryCursorTs  int64             `json:"drHistoryCursorTs"`
	DRHistoryCursorID  string            `json:"drHistoryCursorId"`
	LastFetchedCounter uint64            `json:"lastFetchedCounter"`
	UpdatedAt          int64             `json:"updatedAt"`
}

type wireHistory struct {
	Ts             int64             `json:"ts"`
	MessageID      string            `json:"messageId"`
	SnapshotBefore *ratchet.Snapshot `json:"snapshot_before,omitempty"`
	SnapshotAfter  *ratchet.Snapshot `json:"snapshot_after,omitempty"`
	MessageKey     []byte            `json:"messageKey_b64,omitempty"`
}

type pair struct {
	PeerID string     `json:"peerId"`
	Record wireRecord `json:"record"`
}

// toWire returns a JSON-serializable snapshot of the whole store for
// wrapping into the contact-secrets/backup/v1 envelope.
func (s *Store) toWire() []pair {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]pair, 0, len(s.records))
	for peer, rec := range s.records {
		wr := wireRecord{
			InviteID:           rec.InviteID,
			Secret:             rec.Secret,
			Role:               rec.Role,
			ConversationToken:  rec.ConversationToken,
			ConversationID:     rec.ConversationID,
			ConversationDRInit: rec.ConversationDRInit,
			DRSeed:             rec.DRSeed,
			DRHistoryCursorTs:  rec.DRHistoryCursorTs,
			DRHistoryCursorID:  rec.DRHistoryCursorID,
			LastFetchedCounter: rec.LastFetchedCounter,
			UpdatedAt:          rec.UpdatedAt,
		}
		wr.DRState = rec.DRState
		for _, h := range rec.DRHistory {
			wh := wireHistory{
				Ts:             h.Ts,
				MessageID:      h.MessageID,
				MessageKey:     h.MessageKey,
				SnapshotBefore: h.SnapshotBefore,
				SnapshotAfter:  h.SnapshotAfter,
			}
			wr.DRHistory = append(wr.DRHistory, wh)
		}
		out = append(out, pair{PeerID: peer, Record: wr})
	}
	return out
}

func (s *Store) fromWire(pairs []pair) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]Record, len(pairs))
	for _, p := range pairs {
		wr := p.Record
		rec := Record{
			InviteID:           wr.InviteID,
			Secret:             wr.Secret,
			Role:               NormalizeRole(string(wr.Role)),
			ConversationToken:  wr.ConversationToken,
			ConversationID:     wr.ConversationID,
			ConversationDRInit: wr.ConversationDRInit,
			DRSeed:             wr.DRSeed,
			DRHistoryCursorTs:  wr.DRHistoryCursorTs,
			DRHistoryCursorID:  wr.DRHistoryCursorID,
			LastFetchedCounter: wr.LastFetchedCounter,
			UpdatedAt:          wr.UpdatedAt,
		}
		rec.DRState = wr.DRState
		for _, wh := range wr.DRHistory {
			rec.DRHistory = append(rec.DRHistory, HistoryEntry{
				Ts:             wh.Ts,
				MessageID:      wh.MessageID,
				MessageKey:     wh.MessageKey,
				SnapshotBefore: wh.SnapshotBefore,
				SnapshotAfter:  wh.SnapshotAfter,
			})
		}
		s.records[p.PeerID] = rec
	}
}

// Persist wraps the whole store as a contact-secrets/backup/v1 envelope
// under mk, writing the payload to the durable tier and a mirror to the
// session tier, each alongside its checksum and timestamp.
func (s *Store) Persist(mk []byte, durable, session persistence.Store, now time.Time) error {
	env, err := aead.WrapJSON(s.toWire(), mk, aead.TagContactSecrets)
	if err != nil {
		return fmt.Errorf("persist contact secrets: %w", err)
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	rec := persistence.Record{Payload: payload, Ts: now, Checksum: persistence.Checksum(payload)}
	if err := durable.Set(slotKey, rec); err != nil {
		return fmt.Errorf("persist durable: %w", err)
	}
	if err := session.Set(slotKey, rec); err != nil {
		return fmt.Errorf("persist session mirror: %w", err)
	}
	return nil
}

// Restore hydrates the store from up to five candidates (durable and
// session tier, each under the current and the legacy key name, plus an
// optional in-memory seed, which is taken under the current key only),
// writes the winner to the durable tier under the current key, and then
// erases the session copy.
func (s *Store) Restore(mk []byte, durable, session persistence.Store, seed []byte) error {
	var candidates []persistence.Candidate
	add := func(origin string, legacy bool, store persistence.Store, key string) {
		rec, ok, err := store.Get(key)
		if err != nil {
			s.log.WithError(err).WithField("origin", origin).Warn("contacts: hydration source read failed")
			return
		}
		candidates = append(candidates, persistence.Candidate{Origin: origin, Legacy: legacy, Rec: rec, Present: ok})
	}
	add("durable", false, durable, slotKey)
	add("durable-legacy", true, durable, legacySlotKey)
	add("session", false, session, slotKey)
	add("session-legacy", true, session, legacySlotKey)
	if len(seed) > 0 {
		candidates = append(candidates, persistence.Candidate{
			Origin: "memory", Present: true,
			Rec: persistence.Record{Payload: seed, Checksum: persistence.Checksum(seed)},
		})
	}

	winner, ok := persistence.Hydrate(candidates, s.log)
	if !ok {
		return nil
	}

	var env aead.Envelope
	if err := json.Unmarshal(winner.Payload, &env); err != nil {
		return fmt.Errorf("restore: decode envelope: %w", err)
	}
	var pairs []pair
	if err := aead.UnwrapJSON(env, mk, &pairs); err != nil {
		return fmt.Errorf("restore: unwrap: %w", err)
	}
	s.fromWire(pairs)

	if err := durable.Set(slotKey, winner); err != nil {
		return fmt.Errorf("restore: promote to durable: %w", err)
	}
	if err := session.Delete(slotKey); err != nil {
		s.log.WithError(err).Warn("contacts: failed to erase session copy after promotion")
	}
	_ = session.Delete(legacySlotKey)
	return nil
}
