// Package commands implements the sentry-e2ee cobra CLI: init, bundle,
// handshake, send, receive, unlock, and lock, each driving
// internal/app.Wire end to end.
package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sentry-msgr/e2ee/internal/app"
	"github.com/sentry-msgr/e2ee/internal/config"
)

var (
	envFile    string
	passphrase string

	appCtx *app.Wire
)

// Execute builds the wired application context and runs the root cobra
// command.
func Execute() error {
	root := &cobra.Command{
		Use:   "sentry-e2ee",
		Short: "End-to-end encrypted messenger engine CLI",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			appCtx, err = app.New(cfg)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if appCtx == nil {
				return nil
			}
			return appCtx.Close()
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env.local", "path to a .env file to load before reading the environment")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase to unlock your identity")

	root.AddCommand(
		initCmd(),
		bundleCmd(),
		handshakeCmd(),
		sendCmd(),
		receiveCmd(),
		unlockCmd(),
		lockCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	root.SetContext(ctx)

	return root.Execute()
}
