package commands

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sentry-msgr/e2ee/internal/prekeys"
	"github.com/sentry-msgr/e2ee/internal/vault"
)

const initialOPKCount = 10

func fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])
}

// initCmd creates a fresh identity: an X3DH-ready device key bundle,
// wrapped under a freshly generated master key that is itself wrapped
// under --passphrase.
func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new device identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("--passphrase is required")
			}

			mk, err := vault.GenerateMK()
			if err != nil {
				return fmt.Errorf("generating master key: %w", err)
			}
			dp, _, err := prekeys.GenerateInitialBundle(appCtx.Cfg.DeviceID, 0, initialOPKCount)
			if err != nil {
				return fmt.Errorf("generating device bundle: %w", err)
			}
			if err := appCtx.SaveIdentity(passphrase, mk, dp); err != nil {
				return fmt.Errorf("saving identity: %w", err)
			}

			fmt.Println("Identity created.")
			fmt.Printf("Device: %s\n", dp.DeviceID)
			fmt.Printf("Fingerprint: %s\n", fingerprint(dp.IKPub))
			return nil
		},
	}
}
