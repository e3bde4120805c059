// Package keyringstore is the session persistence.Store tier: a thin JSON
// envelope over internal/keychain, erased after a successful hydration
// promotion into the durable tier.
package keyringstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sentry-msgr/e2ee/internal/keychain"
	"github.com/sentry-msgr/e2ee/internal/persistence"
)

type record struct {
	Payload  []byte `json:"payload"`
	TsUnix   int64  `json:"ts_unix"`
	Checksum string `json:"checksum"`
}

// Store adapts a keychain.Ring to persistence.Store.
type Store struct {
	ring *keychain.Ring
}

func New(ring *keychain.Ring) *Store {
	return &Store{ring: ring}
}

func (s *Store) Get(key string) (persistence.Record, bool, error) {
	raw, ok, err := s.ring.Get(key)
	if err != nil || !ok {
		return persistence.Record{}, false, err
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return persistence.Record{}, false, fmt.Errorf("decode session record %q: %w", key, err)
	}
	return persistence.Record{Payload: rec.Payload, Ts: time.Unix(rec.TsUnix, 0), Checksum: rec.Checksum}, true, nil
}

func (s *Store) Set(key string, rec persistence.Record) error {
	raw, err := json.Marshal(record{Payload: rec.Payload, TsUnix: rec.Ts.Unix(), Checksum: rec.Checksum})
	if err != nil {
		return fmt.Errorf("encode session record %q: %w", key, err)
	}
	return s.ring.Set(key, raw)
}

func (s *Store) Delete(key string) error {
	return s.ring.Delete(key)
}
