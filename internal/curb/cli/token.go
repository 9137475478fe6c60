package cli

import (
	"fmt"
	"time"

	"github.com/aussiebroadwan/curb/internal/curb/app"
	"github.com/aussiebroadwan/curb/pkg/cryptox"
	"github.com/aussiebroadwan/curb/pkg/curbsdk"
	"github.com/spf13/cobra"
)

func newTokenCmd(cfg *app.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the cached API token",
	}

	var reveal bool

	fetch := &cobra.Command{
		Use:   "fetch",
		Short: "Run a password grant and cache the new token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			tok, err := application.FetchToken(cmd.Context())
			if err != nil {
				return err
			}
			return printToken(cmd, tok, reveal)
		},
	}

	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Renew the cached token with its refresh token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := openApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			tok, err := application.RefreshToken(cmd.Context())
			if err != nil {
				return err
			}
			return printToken(cmd, tok, reveal)
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the cached token without contacting the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			tok := application.CachedToken()
			if tok == nil {
				return fmt.Errorf("no cached token for %s: %w", cfg.Username, curbsdk.ErrNoExistingToken)
			}
			return printToken(cmd, tok, reveal)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the cached token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer application.Close()

			return application.ForgetToken(cmd.Context())
		},
	}

	for _, c := range []*cobra.Command{fetch, refresh, show} {
		c.Flags().BoolVar(&reveal, "reveal", false, "print the full token as JSON instead of a summary")
	}

	cmd.AddCommand(fetch, refresh, show, clearCmd)
	return cmd
}

func printToken(cmd *cobra.Command, tok *curbsdk.Token, reveal bool) error {
	if reveal {
		data, err := tok.Serialize()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}

	t := newTable(cmd)
	t.AppendRows(rowsOf(
		[]any{"User ID", tok.UserID},
		[]any{"Token type", tok.TokenType},
		[]any{"Fingerprint", cryptox.FingerprintToken(tok.AccessToken)},
		[]any{"Expires", tok.Expiry().Format(time.RFC3339)},
		[]any{"Valid", tok.IsValid()},
	))
	t.Render()
	return nil
}
