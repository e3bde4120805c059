package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// lockCmd erases the cached session master key and locks the in-memory
// contact-secrets store against further writes.
func lockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Erase the cached session master key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appCtx.ClearSession("logout"); err != nil {
				return fmt.Errorf("locking: %w", err)
			}
			fmt.Println("Locked.")
			return nil
		},
	}
}
