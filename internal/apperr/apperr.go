// Package apperr defines the closed error taxonomy surfaced to callers of
// the E2EE core, per the propagation policy: recoverable errors are handled
// at the component boundary, everything else carries one of these tags to
// the calling orchestrator.
package apperr

import "errors"

// Sentinel errors. Wrap with fmt.Errorf("...: %w", ErrXxx) at the point of
// failure so errors.Is still matches after context is added.
var (
	// ErrWrongPassword covers both a wrong password and a corrupt envelope;
	// unwrap_mk never distinguishes the two to the caller.
	ErrWrongPassword = errors.New("wrong password")

	// ErrEnvelopeMalformed is an input-validation failure: missing/empty
	// base64 fields, bad JSON shape. Never consumes state.
	ErrEnvelopeMalformed = errors.New("envelope malformed")

	// ErrInvalidInfoTag is raised when an envelope's info tag is not in the
	// closed whitelist. No key derivation runs before this check fails.
	ErrInvalidInfoTag = errors.New("invalid info tag")

	// ErrAeadAuthFail is an AES-GCM tag mismatch. The session is unchanged.
	ErrAeadAuthFail = errors.New("aead authentication failed")

	// ErrLegacyPacketUnsupported is returned for any header carrying
	// fallback:true. Such packets are rejected unconditionally.
	ErrLegacyPacketUnsupported = errors.New("legacy fallback packet unsupported")

	// ErrCounterTooLow signals a transport-level "counter too low" (409)
	// response; recoverable via rollback + one automatic re-encrypt.
	ErrCounterTooLow = errors.New("counter too low")

	// ErrSnapshotVersionMismatch is an out-of-band-state failure: a
	// snapshot or envelope carries a version this build cannot parse.
	ErrSnapshotVersionMismatch = errors.New("snapshot version mismatch")

	// ErrDevicePrivMissing means the wrapped device-private bundle could
	// not be unwrapped or was never created.
	ErrDevicePrivMissing = errors.New("device private bundle missing")

	// ErrPrekeyBundleInvalid covers structurally invalid prekey bundles
	// (wrong key sizes, missing required fields).
	ErrPrekeyBundleInvalid = errors.New("prekey bundle invalid")

	// ErrX3dhSignatureInvalid is an authentication failure: the signed
	// prekey's signature does not verify under the claimed identity key.
	ErrX3dhSignatureInvalid = errors.New("x3dh signed prekey signature invalid")

	// ErrFatalInconsistency marks a session that must be quarantined: a
	// decrypted header implies a (pn, n) the ratchet state cannot reach.
	ErrFatalInconsistency = errors.New("fatal ratchet state inconsistency")

	// ErrStoreLocked names the contact-secrets store's locked state. The
	// store itself does not return it: Set/Delete after Lock are ignored
	// and logged, and return nil.
	ErrStoreLocked = errors.New("contact-secrets store is locked")
)

// Is reports whether err matches target anywhere in its wrap chain. Thin
// wrapper kept so call sites can read apperr.Is(err, apperr.ErrAeadAuthFail)
// instead of importing errors directly everywhere.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
