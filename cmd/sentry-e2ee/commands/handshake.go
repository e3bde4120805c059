package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentry-msgr/e2ee/internal/app"
	"github.com/sentry-msgr/e2ee/internal/prekeys"
)

func handshakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handshake",
		Short: "Run the X3DH handshake with a peer",
	}
	cmd.AddCommand(handshakeInitiateCmd(), handshakeRespondCmd())
	return cmd
}

// handshakeInitiateCmd runs the X3DH initiator side against a peer's
// published bundle file, writing the invite the peer needs to mirror it.
func handshakeInitiateCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "initiate <peer> <bundle-file>",
		Short: "Start a session with a peer using their published bundle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, bundlePath := args[0], args[1]

			mk, err := resolveMK()
			if err != nil {
				return err
			}
			dp, err := appCtx.LoadDevicePrivate(mk)
			if err != nil {
				return fmt.Errorf("loading device private: %w", err)
			}

			raw, err := os.ReadFile(bundlePath)
			if err != nil {
				return fmt.Errorf("reading peer bundle: %w", err)
			}
			var peerBundle prekeys.PublicBundle
			if err := json.Unmarshal(raw, &peerBundle); err != nil {
				return fmt.Errorf("decoding peer bundle: %w", err)
			}

			invite, err := appCtx.Initiate(mk, dp, peer, peerBundle, time.Now())
			if err != nil {
				return fmt.Errorf("initiating handshake: %w", err)
			}

			out, err := json.MarshalIndent(invite, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding invite: %w", err)
			}
			if outPath == "" {
				fmt.Println(string(out))
				return nil
			}
			return os.WriteFile(outPath, out, 0600)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "write the invite to this file instead of stdout")
	return cmd
}

// handshakeRespondCmd runs the X3DH responder side against an invite
// produced by handshakeInitiateCmd, consuming a one-time prekey if one
// was referenced.
func handshakeRespondCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "respond <peer> <invite-file>",
		Short: "Accept a peer's handshake invite",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, invitePath := args[0], args[1]

			mk, err := resolveMK()
			if err != nil {
				return err
			}
			dp, err := appCtx.LoadDevicePrivate(mk)
			if err != nil {
				return fmt.Errorf("loading device private: %w", err)
			}

			raw, err := os.ReadFile(invitePath)
			if err != nil {
				return fmt.Errorf("reading invite: %w", err)
			}
			var invite app.Invite
			if err := json.Unmarshal(raw, &invite); err != nil {
				return fmt.Errorf("decoding invite: %w", err)
			}

			if err := appCtx.Respond(mk, dp, peer, invite, time.Now()); err != nil {
				return fmt.Errorf("responding to handshake: %w", err)
			}
			if err := appCtx.SaveDevicePrivate(mk, dp); err != nil {
				return fmt.Errorf("saving updated device private: %w", err)
			}

			fmt.Println("Session established.")
			return nil
		},
	}
}
