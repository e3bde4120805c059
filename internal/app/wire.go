// Package app wires the engine's components into the dependency set the
// CLI commands share: durable and session persistence tiers, the
// contact-secrets store, the transport collaborator, and logging.
package app

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sentry-msgr/e2ee/internal/config"
	"github.com/sentry-msgr/e2ee/internal/contacts"
	"github.com/sentry-msgr/e2ee/internal/keychain"
	"github.com/sentry-msgr/e2ee/internal/persistence"
	"github.com/sentry-msgr/e2ee/internal/persistence/keyringstore"
	"github.com/sentry-msgr/e2ee/internal/persistence/sqlitestore"
	"github.com/sentry-msgr/e2ee/internal/transport"
	"github.com/sentry-msgr/e2ee/internal/transport/ablytransport"
	"github.com/sentry-msgr/e2ee/internal/transport/memtransport"
)

const (
	keyDeviceBundle = "device/private-v1"
	keyVaultEnvelope = "vault/mk-envelope-v1"
	keySessionMK     = "session/mk"
)

// Wire is the constructed set of dependencies every CLI command operates
// against for the lifetime of one invocation.
type Wire struct {
	Cfg      config.Config
	Log      *logrus.Logger
	Durable  persistence.Store
	Session  persistence.Store
	Contacts *contacts.Store
	Transport transport.Transport

	durableConn *sqlitestore.Store
	ring        *keychain.Ring
	ablyConn    *ablytransport.Transport
}

// New opens every storage tier rooted at cfg.DataDir and builds the
// transport collaborator: Ably-backed when an API key is configured,
// otherwise an in-memory fake suitable for local experimentation.
func New(cfg config.Config) (*Wire, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	durableConn, err := sqlitestore.Open(cfg.DataDir + "/sentry.db")
	if err != nil {
		return nil, fmt.Errorf("app: open durable store: %w", err)
	}

	ring, err := keychain.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("app: open keychain: %w", err)
	}
	session := keyringstore.New(ring)

	var tr transport.Transport
	var ablyConn *ablytransport.Transport
	if cfg.AblyAPIKey != "" {
		ablyConn, err = ablytransport.New(cfg.AblyAPIKey, log)
		if err != nil {
			return nil, fmt.Errorf("app: open ably transport: %w", err)
		}
		tr = ablyConn
	} else {
		log.Warn("app: no SENTRY_ABLY_API_KEY configured, using in-memory transport")
		tr = memtransport.New()
	}

	w := &Wire{
		Cfg:         cfg,
		Log:         log,
		Durable:     durableConn,
		Session:     session,
		Contacts:    contacts.New(log),
		Transport:   tr,
		durableConn: durableConn,
		ring:        ring,
		ablyConn:    ablyConn,
	}
	return w, nil
}

// Close releases every owned connection.
func (w *Wire) Close() error {
	if w.ablyConn != nil {
		_ = w.ablyConn.Close()
	}
	return w.durableConn.Close()
}
