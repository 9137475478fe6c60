package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aussiebroadwan/curb/internal/curb/store"
	"github.com/aussiebroadwan/curb/internal/curb/store/drivers/sqlite"
	"github.com/aussiebroadwan/curb/pkg/cryptox"
	"github.com/aussiebroadwan/curb/pkg/curbsdk"
	"github.com/aussiebroadwan/curb/pkg/httpx"
	"github.com/aussiebroadwan/curb/pkg/slogx"
)

// Application wires the SDK client to the local token cache.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db     store.Store // nil when caching is disabled
	client *curbsdk.Client
	cached *curbsdk.Token
}

// New creates an Application. A cached token for the configured account is
// loaded and handed to the client, so a still-valid token saves a grant.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "curb",
			Version: curbsdk.Version,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  cfg.LogOutput,
		}),
	}

	if cfg.TokenCache != "" {
		if err := app.initDatabase(); err != nil {
			return nil, err
		}
		app.cached = app.loadCachedToken(ctx)
	}

	app.initClient()
	return app, nil
}

func (app *Application) Logger() *slog.Logger { return app.logger }

func (app *Application) Client() *curbsdk.Client { return app.client }

// CachedToken is the token loaded from or last written to the cache.
func (app *Application) CachedToken() *curbsdk.Token { return app.cached }

// Run executes fn inside a client session and caches whatever token the
// session ended up with, even when fn failed. A cached token the API no
// longer renews is dropped, so the next run starts from the password grant.
func (app *Application) Run(ctx context.Context, fn func(context.Context, *curbsdk.Client) error) error {
	ctx = slogx.WithContext(ctx, app.logger)

	fromCache := app.cached != nil && app.client.Token() == app.cached

	err := app.client.WithSession(ctx, fn)
	if fromCache && errors.Is(err, curbsdk.ErrAuthentication) {
		app.logger.Warn("cached token could not be renewed, dropping it")
		if forgetErr := app.ForgetToken(ctx); forgetErr != nil {
			app.logger.Warn("failed to drop cached token", "error", forgetErr)
		}
		return err
	}

	if tok := app.client.Token(); tok.IsValid() {
		if saveErr := app.saveToken(ctx, tok); saveErr != nil {
			app.logger.Warn("failed to cache token", "error", saveErr)
		}
	}
	return err
}

// FetchToken runs a fresh password grant, ignoring any cached token.
func (app *Application) FetchToken(ctx context.Context) (*curbsdk.Token, error) {
	ctx = slogx.WithContext(ctx, app.logger)

	tok, err := app.client.PasswordGrant(ctx, curbsdk.Credentials{})
	if err != nil {
		return nil, err
	}
	if !tok.IsValid() {
		return nil, curbsdk.ErrAuthentication
	}

	return tok, app.saveToken(ctx, tok)
}

// RefreshToken renews the cached token with the refresh grant.
func (app *Application) RefreshToken(ctx context.Context) (*curbsdk.Token, error) {
	ctx = slogx.WithContext(ctx, app.logger)

	tok, err := app.client.RefreshGrant(ctx, curbsdk.Credentials{})
	if err != nil {
		return nil, err
	}
	if !tok.IsValid() {
		return nil, curbsdk.ErrAuthentication
	}

	return tok, app.saveToken(ctx, tok)
}

// ForgetToken drops the cached token for the configured account.
func (app *Application) ForgetToken(ctx context.Context) error {
	app.cached = nil
	if app.db == nil {
		return nil
	}
	return app.db.Tokens().DeleteToken(ctx, app.cacheKey())
}

// Close releases the client session and the cache database.
func (app *Application) Close() error {
	err := app.client.Close()
	if app.db != nil {
		err = errors.Join(err, app.db.Close())
	}
	return err
}

// initDatabase opens the token cache and applies migrations
func (app *Application) initDatabase() error {
	if err := os.MkdirAll(filepath.Dir(app.cfg.TokenCache), 0o700); err != nil {
		return fmt.Errorf("failed to create token cache directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.TokenCache)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to open token cache: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply token cache migrations: %w", err)
	}

	app.db = db
	app.logger.Debug("token cache ready", "path", app.cfg.TokenCache)
	return nil
}

func (app *Application) initClient() {
	opts := []curbsdk.Option{
		curbsdk.WithAPIURL(app.cfg.APIURL),
		curbsdk.WithLogger(app.logger),
		curbsdk.WithHTTPClient(&http.Client{Timeout: app.cfg.HTTPTimeout}),
	}
	if app.cached != nil {
		opts = append(opts, curbsdk.WithToken(app.cached))
	}
	if app.cfg.RateLimitRPS > 0 {
		opts = append(opts, curbsdk.WithRateLimit(httpx.RateLimitConfig{
			RequestsPerWindow: app.cfg.RateLimitRPS,
			Window:            time.Second,
			Burst:             app.cfg.RateLimitBurst,
		}))
	}

	app.client = curbsdk.NewClient(curbsdk.Credentials{
		Username:     app.cfg.Username,
		Password:     app.cfg.Password,
		ClientToken:  app.cfg.ClientToken,
		ClientSecret: app.cfg.ClientSecret,
	}, opts...)
}

func (app *Application) cacheKey() string {
	return store.TokenKey(app.cfg.Username, app.cfg.APIURL)
}

// loadCachedToken never fails the command: an unreadable cache entry only
// costs a fresh grant.
func (app *Application) loadCachedToken(ctx context.Context) *curbsdk.Token {
	entry, err := app.db.Tokens().GetToken(ctx, app.cacheKey())
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		app.logger.Warn("failed to read token cache", "error", err)
		return nil
	}

	payload := entry.Payload
	if entry.Sealed {
		if app.cfg.TokenCacheKey == "" {
			app.logger.Warn("cached token is sealed but no cache key is set, ignoring it")
			return nil
		}
		if payload, err = cryptox.Open(app.cfg.TokenCacheKey, payload); err != nil {
			app.logger.Warn("failed to unseal cached token, ignoring it", "error", err)
			return nil
		}
	}

	tok, err := curbsdk.ParseToken(payload)
	if err != nil {
		app.logger.Warn("discarding malformed cached token", "error", err)
		_ = app.db.Tokens().DeleteToken(ctx, app.cacheKey())
		return nil
	}

	app.logger.Debug("loaded cached token",
		"token_fp", cryptox.FingerprintToken(tok.AccessToken),
		"valid", tok.IsValid(),
		"cached_at", entry.UpdatedAt,
	)
	return tok
}

func (app *Application) saveToken(ctx context.Context, tok *curbsdk.Token) error {
	app.cached = tok
	if app.db == nil {
		return nil
	}

	payload, err := tok.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize token: %w", err)
	}

	sealed := app.cfg.TokenCacheKey != ""
	if sealed {
		if payload, err = cryptox.Seal(app.cfg.TokenCacheKey, payload); err != nil {
			return fmt.Errorf("failed to seal token: %w", err)
		}
	}

	return app.db.Tokens().PutToken(ctx, store.CachedToken{
		Key:     app.cacheKey(),
		Payload: payload,
		Sealed:  sealed,
	})
}
