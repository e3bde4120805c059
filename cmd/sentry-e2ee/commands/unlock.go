package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// unlockCmd recovers the master key under --passphrase and caches it in
// the OS-keychain-backed session tier so later commands in the same
// login session don't need the password again.
func unlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Unlock the identity and cache the master key for this session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("--passphrase is required")
			}
			mk, err := appCtx.Unlock(passphrase)
			if err != nil {
				return fmt.Errorf("unlocking: %w", err)
			}
			if err := appCtx.CacheSessionMK(mk); err != nil {
				return fmt.Errorf("caching session key: %w", err)
			}
			fmt.Println("Unlocked.")
			return nil
		},
	}
}
