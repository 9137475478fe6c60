package curbsdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/curb/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testClientToken  = "app-token"
	testClientSecret = "app-secret"
)

var testCreds = Credentials{
	Username:     "user@example.com",
	Password:     "hunter2",
	ClientToken:  testClientToken,
	ClientSecret: testClientSecret,
}

// fakeCurb is an in-process stand-in for the vendor API. Resource routes
// only accept access tokens it issued (or was told to allow), presented
// the way the real API wants them.
type fakeCurb struct {
	srv *httptest.Server

	mu            sync.Mutex
	rejectGrants  bool
	jwtAccess     bool
	expiresIn     int64
	issued        int
	accepted      map[string]bool
	grants        []url.Values
	hits          map[string]int
	lastQuery     url.Values
	lastUserAgent string
	overrides     map[string]fakeResponse
}

type fakeResponse struct {
	status int
	body   string
}

func newFakeCurb(t *testing.T) *fakeCurb {
	t.Helper()

	f := &fakeCurb{
		expiresIn: 3600,
		accepted:  make(map[string]bool),
		hits:      make(map[string]int),
		overrides: make(map[string]fakeResponse),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", f.handleToken)
	mux.HandleFunc("GET /api", f.resource(entryPointBody))
	mux.HandleFunc("GET /api/profiles", f.resource(profilesBody))
	mux.HandleFunc("GET /api/devices", f.resource(devicesBody))
	mux.HandleFunc("GET /api/profiles/{id}/historical-data", f.resource(historicalBody))

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeCurb) client(opts ...Option) *Client {
	return NewClient(testCreds, append([]Option{WithAPIURL(f.srv.URL), WithLogger(slogx.Discard())}, opts...)...)
}

func (f *fakeCurb) allow(accessToken string) {
	f.mu.Lock()
	f.accepted[accessToken] = true
	f.mu.Unlock()
}

func (f *fakeCurb) override(path string, status int, body string) {
	f.mu.Lock()
	f.overrides[path] = fakeResponse{status: status, body: body}
	f.mu.Unlock()
}

func (f *fakeCurb) setRejectGrants(v bool) {
	f.mu.Lock()
	f.rejectGrants = v
	f.mu.Unlock()
}

func (f *fakeCurb) grantLog() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.grants...)
}

func (f *fakeCurb) hitCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeCurb) query() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

func (f *fakeCurb) userAgent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastUserAgent
}

func (f *fakeCurb) handleToken(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, pass, ok := r.BasicAuth()
	if !ok || user != testClientToken || pass != testClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	f.grants = append(f.grants, r.PostForm)

	if f.rejectGrants {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":             "invalid_grant",
			"error_description": "bad credentials",
		})
		return
	}

	f.issued++
	access := fmt.Sprintf("access-%d", f.issued)
	resp := map[string]any{
		"refresh_token": fmt.Sprintf("refresh-%d", f.issued),
		"expires_in":    f.expiresIn,
		"token_type":    "bearer",
	}
	if f.jwtAccess {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "202",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString([]byte("fake-issuer-key"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
			return
		}
		access = signed
	} else {
		resp["user_id"] = 101
	}
	resp["access_token"] = access
	f.accepted[access] = true

	writeJSON(w, http.StatusOK, resp)
}

func (f *fakeCurb) resource(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		f.hits[r.URL.Path]++
		f.lastQuery = r.URL.Query()
		f.lastUserAgent = r.UserAgent()

		authorized := false
		for access := range f.accepted {
			if r.Header.Get("Authorization") == authHeader(access) {
				authorized = true
				break
			}
		}
		if !authorized {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
			return
		}

		if o, ok := f.overrides[r.URL.Path]; ok {
			w.WriteHeader(o.status)
			_, _ = w.Write([]byte(o.body))
			return
		}

		w.Header().Set("Content-Type", "application/hal+json")
		_, _ = w.Write([]byte(body))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// manualClock is a Clock that only moves when told to.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func requireGrant(t *testing.T, form url.Values, grantType string) {
	t.Helper()
	require.Equal(t, grantType, form.Get("grant_type"))
}

const entryPointBody = `{
  "_links": {
    "self": {"href": "/api"},
    "profiles": {"href": "/api/profiles", "methods": ["GET"]},
    "devices": {"href": "/api/devices", "methods": ["GET"]}
  }
}`

const profilesBody = `{
  "_links": {"self": {"href": "/api/profiles"}},
  "_embedded": {
    "profiles": [{
      "id": 7,
      "display_name": "Home",
      "real_time": [{
        "topic": "owl/abc/live",
        "format": "curb",
        "prefix": "owl",
        "_links": {"ws": {"href": "wss://rt.energycurb.com/mqtt"}}
      }],
      "register_groups": {
        "grid": [{"id": "urn:energycurb:registers:curb:abc:0:a"}],
        "use": [{"id": "urn:energycurb:registers:curb:abc:1:b"}]
      },
      "_embedded": {
        "registers": {
          "registers": [
            {"id": "urn:energycurb:registers:curb:abc:0:a", "label": "Mains", "multiplier": 2},
            {"id": "urn:energycurb:registers:curb:abc:1:b", "label": "Oven", "flip_domain": true}
          ]
        }
      }
    }]
  }
}`

const devicesBody = `{
  "devices": [{
    "name": "House",
    "building_type": "residential",
    "timezone": "Australia/Sydney",
    "_links": {"self": {"href": "/api/devices/42"}},
    "_embedded": {
      "sensor_groups": [{
        "_links": {"self": {"href": "/api/sensor_groups/9"}},
        "_embedded": {
          "sensors": [
            {"id": 3, "name": "hub", "arbitrary_name": "Garage"},
            {"name": "clamp", "_links": {"self": {"href": "/api/sensors/4"}}}
          ]
        }
      }]
    }
  }]
}`

const historicalBody = `{
  "results": [{
    "granularity": "1H",
    "since": 1700000000,
    "until": 1700003600,
    "unit": "$/hr",
    "headers": ["ts", "Mains"],
    "data": [[1700000000, 0.42]]
  }]
}`
