package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	baseURL string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "verifyctl",
		Short: "Operate a verifysvcd instance: drive sessions, load, and live session state",
	}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "verifysvcd API base URL")

	cmd.AddCommand(
		newCreateSessionCommand(opts),
		newSendCodeCommand(opts),
		newCheckCodeCommand(opts),
		newGetSessionCommand(opts),
		newWatchCommand(opts),
		newLoadgenCommand(opts),
	)
	return cmd
}
