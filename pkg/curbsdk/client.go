package curbsdk

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/aussiebroadwan/curb/pkg/httpx"
	"github.com/aussiebroadwan/curb/pkg/slogx"
)

const (
	// DefaultAPIURL is the production REST API.
	DefaultAPIURL = "https://app.energycurb.com"

	// Version is reported in the User-Agent header.
	Version = "0.3.0"
)

// Credentials identify both the user and the application. ClientToken and
// ClientSecret are the application's OAuth2 identity, sent as HTTP Basic
// auth on every grant.
type Credentials struct {
	Username     string
	Password     string
	ClientToken  string
	ClientSecret string
}

// merge returns c with every non-empty field of override applied.
func (c Credentials) merge(override Credentials) Credentials {
	if override.Username != "" {
		c.Username = override.Username
	}
	if override.Password != "" {
		c.Password = override.Password
	}
	if override.ClientToken != "" {
		c.ClientToken = override.ClientToken
	}
	if override.ClientSecret != "" {
		c.ClientSecret = override.ClientSecret
	}
	return c
}

// Client talks to the Curb REST API on behalf of one user. It holds a
// single logical session: Open, any number of resource calls, Close.
//
// The mutex only keeps concurrent use memory safe. Two accessors that see
// an expired token at the same time will both refresh.
type Client struct {
	apiURL     string
	creds      Credentials
	httpClient *http.Client
	store      TokenStore
	clock      Clock
	logger     *slog.Logger
	userAgent  string
	rateLimit  *httpx.RateLimitConfig

	mu         sync.Mutex
	state      State
	entryPoint *EntryPoint
}

// Option configures a Client.
type Option func(*Client)

// WithAPIURL points the client at a different API host.
func WithAPIURL(apiURL string) Option {
	return func(c *Client) { c.apiURL = strings.TrimSuffix(apiURL, "/") }
}

// WithToken seeds the client with a previously issued token.
func WithToken(token *Token) Option {
	return func(c *Client) { c.store.Set(token) }
}

// WithTokenStore replaces the in-memory token store.
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) {
		if current := c.store.Current(); current != nil && store.Current() == nil {
			store.Set(current)
		}
		c.store = store
	}
}

// WithHTTPClient uses hc for all requests. The client owns hc's idle
// connections and releases them on Close.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock overrides the clock used to stamp issued tokens.
func WithClock(clock Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithLogger sets the fallback logger. A logger carried in the request
// context always wins.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRateLimit paces outgoing requests. Requests over budget wait rather
// than fail.
func WithRateLimit(cfg httpx.RateLimitConfig) Option {
	return func(c *Client) { c.rateLimit = &cfg }
}

// NewClient creates a client in the Unauthenticated state.
func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		apiURL:    DefaultAPIURL,
		creds:     creds,
		store:     NewMemoryTokenStore(nil),
		clock:     SystemClock,
		userAgent: "curb-go/" + Version,
		state:     StateUnauthenticated,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.httpClient = c.buildHTTPClient(c.httpClient)

	return c
}

// buildHTTPClient layers request pacing and request logging over the
// caller's transport. The caller's *http.Client is copied, not mutated.
func (c *Client) buildHTTPClient(hc *http.Client) *http.Client {
	var out http.Client
	if hc != nil {
		out = *hc
	}

	base := out.Transport
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	if c.rateLimit != nil {
		base = httpx.NewRateLimitTransport(base, *c.rateLimit)
	}
	out.Transport = slogx.NewTransport(base, c.logger)

	return &out
}

// APIURL returns the API host the client talks to.
func (c *Client) APIURL() string { return c.apiURL }

// Token returns the currently held token, or nil.
func (c *Client) Token() *Token { return c.store.Current() }

// resolve turns an API path or link href into an absolute URL.
func (c *Client) resolve(path string) (string, error) {
	base, err := url.Parse(c.apiURL + "/")
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// log prefers the logger carried by ctx.
func (c *Client) log(ctx context.Context) *slog.Logger {
	return slogx.FromContext(ctx, c.logger)
}
