// Package ids generates sortable message and conversation identifiers.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a new ULID string seeded from the caller-supplied time, so
// identifier generation stays deterministic under test and never reads
// the wall clock itself. Successive calls with the same timestamp still
// sort monotonically.
func New(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}
