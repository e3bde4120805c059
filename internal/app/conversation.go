package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sentry-msgr/e2ee/internal/contacts"
	"github.com/sentry-msgr/e2ee/internal/ids"
	"github.com/sentry-msgr/e2ee/internal/prekeys"
	"github.com/sentry-msgr/e2ee/internal/ratchet"
	"github.com/sentry-msgr/e2ee/internal/transport"
	"github.com/sentry-msgr/e2ee/internal/x3dh"
)

// Invite is the out-of-band payload a handshake initiator hands to its
// peer (over whatever side channel the two operators agree on — this
// engine never transports it itself).
type Invite struct {
	ConversationID string           `json:"conversationId"`
	Guest          x3dh.GuestBundle `json:"guest"`
}

// Initiate runs the X3DH initiator side against peerBundle (as published
// by the responder out of band), seeds the contact record with a fresh
// DR session, and returns the invite the responder needs to mirror it.
func (w *Wire) Initiate(mk []byte, dp *prekeys.DevicePrivate, peer string, peerBundle prekeys.PublicBundle, now time.Time) (*Invite, error) {
	chosen := prekeys.ChosenBundle{
		IdentityKey:     peerBundle.IdentityKey,
		SignedPreKey:    peerBundle.SignedPreKey,
		SignedPreKeySig: peerBundle.SignedPreKeySig,
	}
	for id, pub := range peerBundle.OneTimePreKeys {
		idCopy := id
		chosen.OneTimePreKeyID = &idCopy
		chosen.OneTimePreKey = pub
		break
	}

	result, err := x3dh.Initiate(dp, chosen)
	if err != nil {
		return nil, fmt.Errorf("initiate: %w", err)
	}

	conversationID := ids.New(now)
	snap := ratchet.TakeSnapshot(result.State, now.UnixMilli())
	guestRole := contacts.RoleGuest
	if err := w.Contacts.Set(peer, contacts.Patch{
		Role:               &guestRole,
		ConversationID:     &conversationID,
		DRState:            &snap,
	}); err != nil {
		return nil, fmt.Errorf("initiate: record contact: %w", err)
	}

	return &Invite{
		ConversationID: conversationID,
		Guest: x3dh.GuestBundle{
			IdentityKey:     dp.IKPub,
			EphemeralKey:    result.EphemeralPub,
			OneTimePreKeyID: result.UsedOneTimePreKeyID,
		},
	}, nil
}

// Respond runs the X3DH responder side against an invite handed to us out
// of band, seeding the mirrored DR session. Since this may consume an
// OPK, the caller must persist dp afterward (SaveDevicePrivate).
func (w *Wire) Respond(mk []byte, dp *prekeys.DevicePrivate, peer string, invite Invite, now time.Time) error {
	st, err := x3dh.Respond(dp, invite.Guest)
	if err != nil {
		return fmt.Errorf("respond: %w", err)
	}
	snap := ratchet.TakeSnapshot(st, now.UnixMilli())
	ownerRole := contacts.RoleOwner
	return w.Contacts.Set(peer, contacts.Patch{
		Role:           &ownerRole,
		ConversationID: &invite.ConversationID,
		DRState:        &snap,
	})
}

// Send advances peer's DR session by one message, pushes the resulting
// packet through the transport with the configured backoff policy, and
// records the updated session snapshot and history entry in w.Contacts.
// That store is in memory only: Send does not call Contacts.Persist, so
// the update does not reach a persistence tier.
func (w *Wire) Send(ctx context.Context, peer string, plaintext []byte, now time.Time) error {
	rec, ok := w.Contacts.Get(peer)
	if !ok || rec.DRState == nil {
		return fmt.Errorf("send: no established session with %q", peer)
	}

	st, err := ratchet.Restore(*rec.DRState)
	if err != nil {
		return fmt.Errorf("send: restore session: %w", err)
	}

	before := ratchet.TakeSnapshot(st, now.UnixMilli())
	if _, err := w.encryptAndDeliver(ctx, st, rec.ConversationID, plaintext); err != nil {
		if !transport.CounterTooLow(err) {
			return fmt.Errorf("send: %w", err)
		}
		w.Log.WithField("peer", peer).Warn("send: server rejected counter, rolling back and re-encrypting")
		st, err = ratchet.Restore(before)
		if err != nil {
			return fmt.Errorf("send: restore after rollback: %w", err)
		}
		if _, err := w.encryptAndDeliver(ctx, st, rec.ConversationID, plaintext); err != nil {
			return fmt.Errorf("send: retry after rollback: %w", err)
		}
	}

	after := ratchet.TakeSnapshot(st, now.UnixMilli())
	msgID := ids.New(now)
	return w.Contacts.Set(peer, contacts.Patch{
		DRState: &after,
		AppendDRHistory: []contacts.HistoryEntry{
			{Ts: now.UnixMilli(), MessageID: msgID, SnapshotBefore: &before, SnapshotAfter: &after},
		},
	})
}

// encryptAndDeliver advances st's send chain by one message and pushes the
// resulting packet through the transport under the backoff policy. A 409
// counter rejection surfaces unwrapped so Send can roll st back to its
// pre-send snapshot and retry once with a freshly encrypted packet.
func (w *Wire) encryptAndDeliver(ctx context.Context, st *ratchet.State, conversationID string, plaintext []byte) (*ratchet.Packet, error) {
	pkt, err := ratchet.Send(st, plaintext, ratchet.SendOpts{DeviceID: w.Cfg.DeviceID, Version: 1})
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(pkt)
	if err != nil {
		return nil, fmt.Errorf("marshal packet: %w", err)
	}
	env := transport.Envelope{ConversationID: conversationID, Counter: st.NsTotal, Payload: payload}
	if err := w.putWithBackoff(ctx, env); err != nil {
		return nil, err
	}
	return pkt, nil
}

func (w *Wire) putWithBackoff(ctx context.Context, env transport.Envelope) error {
	policy := transport.DefaultBackoff()
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := w.Transport.PutEnvelope(ctx, env)
		if err == nil {
			return nil
		}
		lastErr = err
		delay, retry := policy.ShouldRetry(err, attempt)
		if !retry {
			return lastErr
		}
		w.Log.WithError(err).WithField("attempt", attempt).WithField("delay", delay).Warn("app: retrying envelope delivery")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Receive fetches every envelope newer than peer's last-seen counter,
// decrypts each in order, and records the resulting session state and
// history in the in-memory w.Contacts store (Contacts.Persist is not
// called).
func (w *Wire) Receive(ctx context.Context, peer string, now time.Time) ([][]byte, error) {
	rec, ok := w.Contacts.Get(peer)
	if !ok || rec.DRState == nil {
		return nil, fmt.Errorf("receive: no established session with %q", peer)
	}

	envs, err := w.Transport.ListMessages(ctx, rec.ConversationID, rec.LastFetchedCounter)
	if err != nil {
		return nil, fmt.Errorf("receive: list messages: %w", err)
	}
	if len(envs) == 0 {
		return nil, nil
	}

	st, err := ratchet.Restore(*rec.DRState)
	if err != nil {
		return nil, fmt.Errorf("receive: restore session: %w", err)
	}

	var plaintexts [][]byte
	var history []contacts.HistoryEntry
	maxCounter := rec.LastFetchedCounter
	for _, env := range envs {
		var pkt ratchet.Packet
		if err := json.Unmarshal(env.Payload, &pkt); err != nil {
			w.Log.WithError(err).WithField("peer", peer).Warn("receive: dropping undecodable envelope")
			continue
		}
		before := ratchet.TakeSnapshot(st, now.UnixMilli())
		plain, err := ratchet.Receive(st, &pkt, ratchet.ReceiveOpts{})
		if err != nil {
			w.Log.WithError(err).WithField("peer", peer).WithField("counter", env.Counter).Warn("receive: packet rejected")
			continue
		}
		after := ratchet.TakeSnapshot(st, now.UnixMilli())
		plaintexts = append(plaintexts, plain)
		history = append(history, contacts.HistoryEntry{
			Ts: now.UnixMilli(), MessageID: ids.New(now), SnapshotBefore: &before, SnapshotAfter: &after,
		})
		if env.Counter > maxCounter {
			maxCounter = env.Counter
		}
	}

	finalSnap := ratchet.TakeSnapshot(st, now.UnixMilli())
	if err := w.Contacts.Set(peer, contacts.Patch{
		DRState:            &finalSnap,
		AppendDRHistory:    history,
		LastFetchedCounter: &maxCounter,
	}); err != nil {
		return nil, fmt.Errorf("receive: persist session: %w", err)
	}
	return plaintexts, nil
}
