package app

import "github.com/sentry-msgr/e2ee/internal/persistence"

// memStore is a trivial in-memory persistence.Store for tests, standing
// in for sqlitestore/keyringstore without touching disk or the OS
// keychain.
type memStore struct {
	data map[string]persistence.Record
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]persistence.Record)}
}

func (m *memStore) Get(key string) (persistence.Record, bool, error) {
	rec, ok := m.data[key]
	return rec, ok, nil
}

func (m *memStore) Set(key string, rec persistence.Record) error {
	m.data[key] = rec
	return nil
}

func (m *memStore) Delete(key string) error {
	delete(m.data, key)
	return nil
}
