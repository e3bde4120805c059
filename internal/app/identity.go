package app

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sentry-msgr/e2ee/internal/aead"
	"github.com/sentry-msgr/e2ee/internal/apperr"
	"github.com/sentry-msgr/e2ee/internal/persistence"
	"github.com/sentry-msgr/e2ee/internal/prekeys"
	"github.com/sentry-msgr/e2ee/internal/vault"
)

// SaveIdentity wraps mk under password and dp under mk, persisting both
// to the durable tier. Called once by `init`.
func (w *Wire) SaveIdentity(password string, mk []byte, dp *prekeys.DevicePrivate) error {
	params := w.Cfg.Argon2
	if params == (vault.Params{}) {
		params = vault.DefaultParams
	}
	vaultEnv, err := vault.WrapMK(password, mk, params)
	if err != nil {
		return fmt.Errorf("save identity: wrap mk: %w", err)
	}
	vaultPayload, err := json.Marshal(vaultEnv)
	if err != nil {
		return fmt.Errorf("save identity: marshal vault envelope: %w", err)
	}
	if err := w.Durable.Set(keyVaultEnvelope, persistence.Record{
		Payload: vaultPayload, Ts: time.Now(), Checksum: persistence.Checksum(vaultPayload),
	}); err != nil {
		return fmt.Errorf("save identity: persist vault envelope: %w", err)
	}

	deviceEnv, err := prekeys.WrapDevicePriv(dp, mk)
	if err != nil {
		return fmt.Errorf("save identity: wrap device private: %w", err)
	}
	devicePayload, err := json.Marshal(deviceEnv)
	if err != nil {
		return fmt.Errorf("save identity: marshal device envelope: %w", err)
	}
	if err := w.Durable.Set(keyDeviceBundle, persistence.Record{
		Payload: devicePayload, Ts: time.Now(), Checksum: persistence.Checksum(devicePayload),
	}); err != nil {
		return fmt.Errorf("save identity: persist device envelope: %w", err)
	}
	return nil
}

// Unlock reads the vault envelope and recovers mk under password. A wrong
// password and a corrupt envelope are indistinguishable (both return
// ErrWrongPassword), per vault.UnwrapMK's contract; a missing envelope is
// reported as "no identity found".
func (w *Wire) Unlock(password string) ([]byte, error) {
	rec, ok, err := w.Durable.Get(keyVaultEnvelope)
	if err != nil {
		return nil, fmt.Errorf("unlock: read vault envelope: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("unlock: no identity found, run init first")
	}
	var env vault.Envelope
	if err := json.Unmarshal(rec.Payload, &env); err != nil {
		return nil, apperr.ErrWrongPassword
	}
	mk, err := vault.UnwrapMK(password, env)
	if err != nil {
		return nil, fmt.Errorf("unlock: %w", err)
	}
	if mk == nil {
		return nil, apperr.ErrWrongPassword
	}
	return mk, nil
}

// LoadDevicePrivate unwraps the device-private bundle under mk.
func (w *Wire) LoadDevicePrivate(mk []byte) (*prekeys.DevicePrivate, error) {
	rec, ok, err := w.Durable.Get(keyDeviceBundle)
	if err != nil {
		return nil, fmt.Errorf("load device private: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("load device private: %w", apperr.ErrDevicePrivMissing)
	}
	var env aead.Envelope
	if err := json.Unmarshal(rec.Payload, &env); err != nil {
		return nil, fmt.Errorf("load device private: decode envelope: %w", apperr.ErrEnvelopeMalformed)
	}
	return prekeys.UnwrapDevicePriv(env, mk)
}

// SaveDevicePrivate re-wraps dp (e.g. after OPK consumption or
// replenishment) and persists it back to the durable tier.
func (w *Wire) SaveDevicePrivate(mk []byte, dp *prekeys.DevicePrivate) error {
	env, err := prekeys.WrapDevicePriv(dp, mk)
	if err != nil {
		return fmt.Errorf("save device private: %w", err)
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("save device private: marshal envelope: %w", err)
	}
	return w.Durable.Set(keyDeviceBundle, persistence.Record{
		Payload: payload, Ts: time.Now(), Checksum: persistence.Checksum(payload),
	})
}

// CacheSessionMK stashes mk in the OS-keychain-backed session tier so a
// later command in the same login session does not need the password
// again.
func (w *Wire) CacheSessionMK(mk []byte) error {
	return w.Session.Set(keySessionMK, persistence.Record{
		Payload: mk, Ts: time.Now(), Checksum: persistence.Checksum(mk),
	})
}

// SessionMK returns the cached master key, if unlock has been run and
// lock has not since erased it.
func (w *Wire) SessionMK() ([]byte, bool, error) {
	rec, ok, err := w.Session.Get(keySessionMK)
	if err != nil || !ok {
		return nil, false, err
	}
	return rec.Payload, true, nil
}

// ClearSession erases the cached master key and locks the in-memory
// contact-secrets store.
func (w *Wire) ClearSession(reason string) error {
	w.Contacts.Lock(reason)
	return w.Session.Delete(keySessionMK)
}
