package cli

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/curb/internal/curb/app"
	"github.com/aussiebroadwan/curb/pkg/curbsdk"
	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates credentials or a prior token are missing.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the API rejected the credentials.
	ExitCodeAuthFailed = 3
	// ExitCodeAPIError indicates a resource endpoint returned an error document.
	ExitCodeAPIError = 4
)

// NewRootCmd builds the command tree. Flag defaults come from the
// environment so flags always win.
func NewRootCmd() *cobra.Command {
	cfg := app.LoadConfig()

	root := &cobra.Command{
		Use:   "curb",
		Short: "Query the Curb energy monitoring API",
		Long: `curb talks to the Curb energy monitoring REST API.

Credentials are read from CURB_USERNAME, CURB_PASSWORD, CURB_CLIENT_TOKEN and
CURB_CLIENT_SECRET, or from the matching flags. Issued tokens are cached in
CURB_TOKEN_CACHE between runs so most commands skip the password grant.`,
		Version:       curbsdk.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(`{{printf "curb version %s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "Curb API base URL (env: CURB_API_URL)")
	flags.StringVar(&cfg.Username, "username", cfg.Username, "account username (env: CURB_USERNAME)")
	flags.StringVar(&cfg.Password, "password", cfg.Password, "account password (env: CURB_PASSWORD)")
	flags.StringVar(&cfg.ClientToken, "client-token", cfg.ClientToken, "application client token (env: CURB_CLIENT_TOKEN)")
	flags.StringVar(&cfg.ClientSecret, "client-secret", cfg.ClientSecret, "application client secret (env: CURB_CLIENT_SECRET)")
	flags.StringVar(&cfg.TokenCache, "token-cache", cfg.TokenCache, "token cache file, empty disables caching (env: CURB_TOKEN_CACHE)")
	flags.IntVar(&cfg.RateLimitRPS, "rate-limit", cfg.RateLimitRPS, "max requests per second, 0 disables pacing (env: CURB_RATE_LIMIT_RPS)")
	flags.DurationVar(&cfg.HTTPTimeout, "timeout", cfg.HTTPTimeout, "per request timeout (env: CURB_HTTP_TIMEOUT)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error (env: LOG_LEVEL)")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: text, json (env: LOG_FORMAT)")

	root.AddCommand(
		newTokenCmd(&cfg),
		newProfilesCmd(&cfg),
		newDevicesCmd(&cfg),
		newHistoricalCmd(&cfg),
	)

	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root := NewRootCmd()
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		root.PrintErrln("Error:", err)
		return exitCode(err)
	}
	return ExitCodeSuccess
}

// exitCode maps errors to semantic exit codes for scripting.
func exitCode(err error) int {
	switch {
	case errors.Is(err, app.ErrMissingCredentials),
		errors.Is(err, curbsdk.ErrNoExistingToken):
		return ExitCodeAuthRequired
	case errors.Is(err, curbsdk.ErrAuthentication):
		return ExitCodeAuthFailed
	}

	var apiErr *curbsdk.APIError
	if errors.As(err, &apiErr) {
		return ExitCodeAPIError
	}

	return ExitCodeError
}

// openApp validates the config and builds the Application. The caller
// must Close it.
func openApp(cmd *cobra.Command, cfg *app.Config) (*app.Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newApp(cmd, cfg)
}

func newApp(cmd *cobra.Command, cfg *app.Config) (*app.Application, error) {
	c := *cfg
	c.LogOutput = cmd.ErrOrStderr()
	return app.New(cmd.Context(), c)
}

// runSession opens an app session around fn and closes everything after.
func runSession(cmd *cobra.Command, cfg *app.Config, fn func(context.Context, *curbsdk.Client) error) error {
	application, err := openApp(cmd, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	return application.Run(cmd.Context(), fn)
}
