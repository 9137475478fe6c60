package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/curb/internal/curb/store"
	"github.com/aussiebroadwan/curb/internal/curb/store/drivers/sqlite"
	"github.com/aussiebroadwan/curb/pkg/curbsdk"
	"github.com/stretchr/testify/require"
)

// fakeAPI issues sequential tokens and serves the entry point to any
// bearer, it only counts grants.
type fakeAPI struct {
	srv    *httptest.Server
	grants atomic.Int32
	reject atomic.Bool
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()

	f := &fakeAPI{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		n := f.grants.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if f.reject.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  fmt.Sprintf("access-%d", n),
			"refresh_token": fmt.Sprintf("refresh-%d", n),
			"expires_in":    3600,
			"user_id":       101,
		})
	})
	mux.HandleFunc("GET /api", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"_links":{"profiles":{"href":"/api/profiles"},"devices":{"href":"/api/devices"}}}`))
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func testConfig(t *testing.T, apiURL string) Config {
	t.Helper()

	return Config{
		APIURL:         apiURL,
		Username:       "user@example.com",
		Password:       "hunter2",
		ClientToken:    "app-token",
		ClientSecret:   "app-secret",
		TokenCache:     filepath.Join(t.TempDir(), "nested", "tokens.db"),
		RateLimitBurst: 5,
		HTTPTimeout:    5 * time.Second,
		LogLevel:       "error",
		LogOutput:      io.Discard,
	}
}

func newTestApp(t *testing.T, cfg Config) *Application {
	t.Helper()

	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func noop(context.Context, *curbsdk.Client) error { return nil }

func TestRunCachesToken(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	cfg := testConfig(t, api.srv.URL)
	ctx := context.Background()

	first := newTestApp(t, cfg)
	require.Nil(t, first.CachedToken())
	require.NoError(t, first.Run(ctx, noop))
	require.Equal(t, int32(1), api.grants.Load())
	require.NoError(t, first.Close())

	// A second run reuses the cached token instead of running a grant
	second := newTestApp(t, cfg)
	cached := second.CachedToken()
	require.NotNil(t, cached)
	require.Equal(t, "access-1", cached.AccessToken)
	require.True(t, cached.IsValid())

	require.NoError(t, second.Run(ctx, noop))
	require.Equal(t, int32(1), api.grants.Load())
}

func TestRunDropsRejectedCachedToken(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	cfg := testConfig(t, api.srv.URL)
	ctx := context.Background()

	// Creates the cache file and schema
	require.NoError(t, newTestApp(t, cfg).Close())

	db, err := sqlite.NewStore(cfg.TokenCache)
	require.NoError(t, err)
	require.NoError(t, db.Tokens().PutToken(ctx, store.CachedToken{
		Key:     store.TokenKey(cfg.Username, cfg.APIURL),
		Payload: []byte(`{"access_token":"stale","refresh_token":"stale-refresh","expires_in":-60,"user_id":101}`),
	}))
	require.NoError(t, db.Close())

	api.reject.Store(true)

	app := newTestApp(t, cfg)
	require.NotNil(t, app.CachedToken())
	require.ErrorIs(t, app.Run(ctx, noop), curbsdk.ErrAuthentication)
	require.Nil(t, app.CachedToken())
	require.NoError(t, app.Close())

	require.Nil(t, newTestApp(t, cfg).CachedToken(), "stale token is gone from the cache")

	// Fresh credentials work again on the next run
	api.reject.Store(false)
	next := newTestApp(t, cfg)
	require.NoError(t, next.Run(ctx, noop))
	require.True(t, next.CachedToken().IsValid())
}

func TestSealedCache(t *testing.T) {
	t.Parallel()

	api := newFakeAPI(t)
	cfg := testConfig(t, api.srv.URL)
	cfg.TokenCacheKey = "correct horse"
	ctx := context.Background()

	app := newTestApp(t, cfg)
	_, err := app.FetchToken(ctx)
	require.NoError(t, err)
	require.NoError(t, app.Close())

	db, err := sqlite.NewStore(cfg.TokenCache)
	require.NoError(t, err)
	entry, err := db.Tokens().GetToken(ctx, store.TokenKey(cfg.Username, cfg.APIURL))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.True(t, entry.Sealed)
	require.NotContains(t, string(entry.Payload), "access-1")

	t.Run("right key", func(t *testing.T) {
		require.Equal(t, "access-1", newTestApp(t, cfg).CachedToken().AccessToken)
	})

	t.Run("wrong key is ignored", func(t *testing.T) {
		wrong := cfg
		wrong.TokenCacheKey = "battery staple"
		require.Nil(t, newTestApp(t, wrong).CachedToken())
	})

	t.Run("missing key is ignored", func(t *testing.T) {
		missing := cfg
		missing.TokenCacheKey = ""
		require.Nil(t, newTestApp(t, missing).CachedToken())
	})
}

func TestTokenCommands(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("refresh without a cached token", func(t *testing.T) {
		t.Parallel()

		app := newTestApp(t, testConfig(t, newFakeAPI(t).srv.URL))
		_, err := app.RefreshToken(ctx)
		require.ErrorIs(t, err, curbsdk.ErrNoExistingToken)
	})

	t.Run("fetch then refresh", func(t *testing.T) {
		t.Parallel()

		api := newFakeAPI(t)
		cfg := testConfig(t, api.srv.URL)

		fetched, err := newTestApp(t, cfg).FetchToken(ctx)
		require.NoError(t, err)
		require.Equal(t, "access-1", fetched.AccessToken)

		refreshed, err := newTestApp(t, cfg).RefreshToken(ctx)
		require.NoError(t, err)
		require.Equal(t, "access-2", refreshed.AccessToken)

		require.Equal(t, "access-2", newTestApp(t, cfg).CachedToken().AccessToken)
	})

	t.Run("forget", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t, newFakeAPI(t).srv.URL)
		_, err := newTestApp(t, cfg).FetchToken(ctx)
		require.NoError(t, err)

		app := newTestApp(t, cfg)
		require.NotNil(t, app.CachedToken())
		require.NoError(t, app.ForgetToken(ctx))
		require.Nil(t, app.CachedToken())

		require.Nil(t, newTestApp(t, cfg).CachedToken())
	})

	t.Run("cache disabled", func(t *testing.T) {
		t.Parallel()

		cfg := testConfig(t, newFakeAPI(t).srv.URL)
		cfg.TokenCache = ""

		app := newTestApp(t, cfg)
		require.NoError(t, app.Run(ctx, noop))
		require.NotNil(t, app.CachedToken())
		require.NoError(t, app.ForgetToken(ctx))
	})
}

func TestLoadConfig(t *testing.T) {
	// Not parallel, t.Setenv
	t.Setenv("CURB_USERNAME", "user@example.com")
	t.Setenv("CURB_CLIENT_TOKEN", "app-token")
	t.Setenv("CURB_CLIENT_SECRET", "app-secret")
	t.Setenv("CURB_RATE_LIMIT_RPS", "4")
	t.Setenv("CURB_HTTP_TIMEOUT", "15")
	t.Setenv("CURB_TOKEN_CACHE", "/tmp/curb-test/tokens.db")
	t.Setenv("LOG_LEVEL", "")

	cfg := LoadConfig()
	require.Equal(t, curbsdk.DefaultAPIURL, cfg.APIURL)
	require.Equal(t, 4, cfg.RateLimitRPS)
	require.Equal(t, 5, cfg.RateLimitBurst)
	require.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	require.Equal(t, "/tmp/curb-test/tokens.db", cfg.TokenCache)
	require.Equal(t, "warn", cfg.LogLevel)
	require.NoError(t, cfg.Validate())

	cfg.ClientSecret = ""
	require.ErrorIs(t, cfg.Validate(), ErrMissingCredentials)
}
