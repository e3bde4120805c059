package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send a message to a peer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := resolveMK(); err != nil {
				return err
			}
			peer, message := args[0], args[1]
			if err := appCtx.Send(cmd.Context(), peer, []byte(message), time.Now()); err != nil {
				return fmt.Errorf("sending to %q: %w", peer, err)
			}
			fmt.Println("Message sent.")
			return nil
		},
	}
}
