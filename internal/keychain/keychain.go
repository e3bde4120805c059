// Package keychain wraps the OS-native secret store (or a machine-bound
// encrypted file when no OS backend is available) for session-tier
// secrets: the unlocked master key cell's backing store, and the
// persistence session tier's byte sink.
package keychain

import (
	"fmt"
	"os"

	"github.com/99designs/keyring"
	"github.com/denisbrodbeck/machineid"
)

const serviceName = "sentry-e2ee"

// Ring wraps an OS keyring (or machine-bound file fallback) scoped to one
// local data directory.
type Ring struct {
	kr keyring.Keyring
}

func machineKey() (string, error) {
	id, err := machineid.ProtectedID(serviceName)
	if err != nil {
		return "", fmt.Errorf("machine id: %w", err)
	}
	return id, nil
}

// Open opens the ring, using dataDir as the file-backend fallback
// location when no OS keyring backend is reachable (headless CI, some
// Linux setups without a secret-service agent).
func Open(dataDir string) (*Ring, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create keychain dir: %w", err)
	}
	kr, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.FileBackend,
		},
		FileDir: dataDir,
		FilePasswordFunc: func(string) (string, error) {
			return machineKey()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return &Ring{kr: kr}, nil
}

// Set stores data under key, labeled for whatever the OS prompt shows.
func (r *Ring) Set(key string, data []byte) error {
	if err := r.kr.Set(keyring.Item{
		Key:         key,
		Data:        data,
		Label:       "Sentry E2EE secret",
		Description: "end-to-end encryption session material",
	}); err != nil {
		return fmt.Errorf("keychain set %q: %w", key, err)
	}
	return nil
}

// Get retrieves data stored under key; ok is false if absent.
func (r *Ring) Get(key string) (data []byte, ok bool, err error) {
	item, err := r.kr.Get(key)
	if err != nil {
		if err == keyring.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("keychain get %q: %w", key, err)
	}
	return item.Data, true, nil
}

// Delete removes key if present.
func (r *Ring) Delete(key string) error {
	if err := r.kr.Remove(key); err != nil && err != keyring.ErrKeyNotFound {
		return fmt.Errorf("keychain delete %q: %w", key, err)
	}
	return nil
}
