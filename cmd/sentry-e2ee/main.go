package main

import (
	"fmt"
	"os"

	"github.com/sentry-msgr/e2ee/cmd/sentry-e2ee/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
