package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentry-msgr/e2ee/internal/prekeys"
)

// bundleCmd prints the current publishable prekey bundle, re-derived
// from whatever key material remains in the device-private blob.
func bundleCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Print this device's publishable prekey bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mk, err := resolveMK()
			if err != nil {
				return err
			}
			dp, err := appCtx.LoadDevicePrivate(mk)
			if err != nil {
				return fmt.Errorf("loading device private: %w", err)
			}

			bundle := prekeys.CurrentPublicBundle(dp)
			out, err := json.MarshalIndent(bundle, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding bundle: %w", err)
			}
			if outPath == "" {
				fmt.Println(string(out))
				return nil
			}
			return os.WriteFile(outPath, out, 0600)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "write the bundle to this file instead of stdout")
	return cmd
}
