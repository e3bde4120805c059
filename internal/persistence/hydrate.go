package persistence

import "github.com/sirupsen/logrus"

// Candidate is one hydration source for a logical slot. contacts.Restore
// supplies up to five: durable/session tiers, each under the current and a
// legacy key name, plus an in-memory seed value supplied by the caller for
// first-run (current key only).
type Candidate struct {
	Origin   string // "durable", "session", "memory"
	Legacy   bool
	Rec      Record
	Present  bool
}

// Hydrate picks the freshest candidate among the given sources: greatest
// byte length wins; ties break by newer timestamp, then by non-legacy
// origin, then by a differing checksum (logged, not fatal). Returns the
// winner's Record and whether a winner was found at all.
func Hydrate(candidates []Candidate, log *logrus.Logger) (Record, bool) {
	var best Candidate
	found := false

	for _, c := range candidates {
		if !c.Present {
			continue
		}
		if !found {
			best, found = c, true
			continue
		}
		if len(c.Rec.Payload) != len(best.Rec.Payload) {
			if len(c.Rec.Payload) > len(best.Rec.Payload) {
				best = c
			}
			continue
		}
		if !c.Rec.Ts.Equal(best.Rec.Ts) {
			if c.Rec.Ts.After(best.Rec.Ts) {
				best = c
			}
			continue
		}
		if c.Legacy != best.Legacy {
			if !c.Legacy {
				best = c
			}
			continue
		}
		if c.Rec.Checksum != best.Rec.Checksum {
			if log != nil {
				log.WithFields(logrus.Fields{
					"origin_a":   best.Origin,
					"origin_b":   c.Origin,
					"checksum_a": best.Rec.Checksum,
					"checksum_b": c.Rec.Checksum,
				}).Warn("persistence: checksum mismatch between equally-ranked hydration candidates")
			}
		}
	}

	return best.Rec, found
}
