package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/skratchdot/open-golang/open"
	"github.com/spf13/cobra"

	"github.com/waabox/kinopub/internal/auth"
	"github.com/waabox/kinopub/internal/tui"
)

func newLoginCmd(g *globalFlags) *cobra.Command {
	var plain, openBrowser bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize this client with the device flow",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(g)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.cfg.TokenStoreOrDefault() == "memory" {
				rt.log.Warn("token store is memory: the token will be lost on exit (set token.store to file or bolt)")
			}

			var tok auth.TokenState
			if plain {
				tok, err = runPlainLogin(cmd.Context(), rt.tokens, openBrowser)
			} else {
				m := tui.NewLoginModel(cmd.Context())
				m.RequestCode = rt.tokens.StartDeviceFlow
				m.Poll = pollUntilExpiry(rt.tokens)
				if openBrowser {
					m.OpenURL = open.Run
				}
				tok, err = tui.RunLogin(m)
			}
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			fmt.Fprintf(os.Stderr, "Authenticated. Token %s saved to the %s store.\n",
				auth.Mask(tok.AccessToken), rt.cfg.TokenStoreOrDefault())
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print prompts to stderr instead of the interactive screen")
	cmd.Flags().BoolVar(&openBrowser, "open-browser", false, "open the verification page in the default browser")
	return cmd
}

// pollUntilExpiry bounds polling by the lifetime of the device code.
func pollUntilExpiry(tm *auth.TokenManager) func(context.Context, auth.DeviceFlowSession) (auth.TokenState, error) {
	return func(ctx context.Context, s auth.DeviceFlowSession) (auth.TokenState, error) {
		if !s.ExpiresAt.IsZero() {
			var cancel context.CancelFunc
			ctx, cancel = context.WithDeadline(ctx, s.ExpiresAt.Add(time.Second))
			defer cancel()
		}
		return tm.PollForToken(ctx, s)
	}
}

// runPlainLogin runs the device flow with prompts on stderr so stdout stays
// clean for piping.
func runPlainLogin(ctx context.Context, tm *auth.TokenManager, openBrowser bool) (auth.TokenState, error) {
	session, err := tm.StartDeviceFlow(ctx)
	if err != nil {
		return auth.TokenState{}, fmt.Errorf("requesting device code: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Visit:      %s\n", session.VerificationURI)
	fmt.Fprintf(os.Stderr, "Enter code: %s\n", session.UserCode)
	if openBrowser {
		if err := open.Run(session.VerificationURI); err != nil {
			fmt.Fprintf(os.Stderr, "could not open browser: %v\n", err)
		}
	}
	fmt.Fprintf(os.Stderr, "Waiting for authorization...\n")
	return pollUntilExpiry(tm)(ctx, session)
}

func newLogoutCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		RunE: func(_ *cobra.Command, _ []string) error {
			rt, err := openRuntime(g, false)
			if err != nil {
				return err
			}
			defer rt.Close()
			rt.tokens.Invalidate()
			fmt.Fprintln(os.Stderr, "Logged out.")
			return nil
		},
	}
}

func newTokenCmd(g *globalFlags) *cobra.Command {
	var refresh, reveal bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Show the current token, refreshing it when needed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(g)
			if err != nil {
				return err
			}
			defer rt.Close()

			var tok auth.TokenState
			if refresh {
				tok, err = rt.tokens.Refresh(cmd.Context())
			} else {
				tok, err = rt.tokens.ValidToken(cmd.Context())
			}
			if err != nil {
				return err
			}
			shown := auth.Mask(tok.AccessToken)
			if reveal {
				shown = tok.AccessToken
			}
			out := map[string]any{
				"access_token":  shown,
				"token_type":    tok.TokenType,
				"has_refresh":   tok.RefreshToken != "",
				"scope":         tok.Scope,
				"expires_at":    tok.ExpiresAt,
				"expires_in_ms": time.Until(tok.ExpiresAt).Milliseconds(),
			}
			if tok.ExpiresAt.IsZero() {
				delete(out, "expires_at")
				delete(out, "expires_in_ms")
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "force a refresh")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print the full access token")
	return cmd
}
