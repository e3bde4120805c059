package commands

import "fmt"

// resolveMK returns the cached session master key if unlock has already
// run, otherwise unwraps it from the passphrase flag.
func resolveMK() ([]byte, error) {
	if mk, ok, err := appCtx.SessionMK(); err != nil {
		return nil, err
	} else if ok {
		return mk, nil
	}
	if passphrase == "" {
		return nil, fmt.Errorf("not unlocked: run `unlock` first or pass --passphrase")
	}
	return appCtx.Unlock(passphrase)
}
