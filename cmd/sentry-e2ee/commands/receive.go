package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func receiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "receive <peer>",
		Short: "Fetch and decrypt queued messages from a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := resolveMK(); err != nil {
				return err
			}
			peer := args[0]
			msgs, err := appCtx.Receive(cmd.Context(), peer, time.Now())
			if err != nil {
				return fmt.Errorf("receiving from %q: %w", peer, err)
			}
			for _, m := range msgs {
				fmt.Printf("[%s] %s\n", peer, string(m))
			}
			return nil
		},
	}
}
