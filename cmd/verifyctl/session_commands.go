package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCreateSessionCommand(rootOpts *rootOptions) *cobra.Command {
	var e164 uint64
	var sourceTag string
	cmd := &cobra.Command{
		Use:   "create-session",
		Short: "Create a verification session for a phone number",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(rootOpts.baseURL)
			env, err := client.createSession(cmd.Context(), e164, sourceTag)
			if err != nil {
				return err
			}
			printSessionResult(cmd, env)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&e164, "e164", 0, "phone number in E.164 numeric form")
	cmd.Flags().StringVar(&sourceTag, "source-tag", "default", "rate limit composite key tag for this request's origin")
	return cmd
}

func newSendCodeCommand(rootOpts *rootOptions) *cobra.Command {
	var sessionID, transport string
	cmd := &cobra.Command{
		Use:   "send-code",
		Short: "Send a verification code over SMS or voice",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(rootOpts.baseURL)
			env, err := client.sendCode(cmd.Context(), sessionID, transport)
			if err != nil {
				return err
			}
			printSessionResult(cmd, env)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id returned by create-session")
	cmd.Flags().StringVar(&transport, "transport", "SMS", "SMS or VOICE")
	_ = cmd.MarkFlagRequired("session-id")
	return cmd
}

func newCheckCodeCommand(rootOpts *rootOptions) *cobra.Command {
	var sessionID, code string
	cmd := &cobra.Command{
		Use:   "check-code",
		Short: "Check a verification code against a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(rootOpts.baseURL)
			env, err := client.checkCode(cmd.Context(), sessionID, code)
			if err != nil {
				return err
			}
			printSessionResult(cmd, env)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id returned by create-session")
	cmd.Flags().StringVar(&code, "code", "", "verification code to check")
	_ = cmd.MarkFlagRequired("session-id")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func newGetSessionCommand(rootOpts *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "get-session",
		Short: "Fetch a session's current metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(rootOpts.baseURL)
			env, err := client.getSession(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			printSessionResult(cmd, env)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id to look up")
	_ = cmd.MarkFlagRequired("session-id")
	return cmd
}

func printSessionResult(cmd *cobra.Command, env *envelope) {
	if env.Data.Error != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "error: %s (retryable=%t)\n", env.Data.Error.Kind, env.Data.Error.MayRetry)
		return
	}
	if env.Data.SessionMetadata != nil {
		m := env.Data.SessionMetadata
		fmt.Fprintf(cmd.OutOrStdout(), "session %s e164=%d verified=%t\n", m.SessionID, m.E164, m.Verified)
	}
	if env.Data.Verified != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "verified=%t\n", *env.Data.Verified)
	}
}
