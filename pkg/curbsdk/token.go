package curbsdk

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/oauth2"
)

// DefaultTokenType is used when the issuer does not name one.
const DefaultTokenType = "bearer"

// maxExpiresIn is the longest lifetime a time.Duration can hold, about 292
// years. Longer lifetimes are treated as this one.
const maxExpiresIn = math.MaxInt64 / int64(time.Second)

// UserID identifies the account a token was issued to. The API hands out
// numeric ids, but older payloads carry them as strings, so both decode.
type UserID string

// MarshalJSON writes canonical integer ids back as JSON numbers. Anything
// else, "007" or "+5" included, stays a string.
func (u UserID) MarshalJSON() ([]byte, error) {
	if u == "" {
		return []byte("null"), nil
	}
	if n, err := strconv.ParseInt(string(u), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(u) {
		return []byte(u), nil
	}
	return json.Marshal(string(u))
}

func (u *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*u = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = UserID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*u = UserID(n.String())
		return nil
	}
}

// Token is an access/refresh token pair with expiry bookkeeping. The issue
// time is captured when the Token is built and never changes afterwards.
type Token struct {
	AccessToken  string
	RefreshToken string
	// ExpiresIn is the lifetime in seconds as issued, counted from the
	// moment the Token was built.
	ExpiresIn int64
	UserID    UserID
	TokenType string

	issuedAt time.Time
	clock    Clock
}

// NewToken builds a Token issued now. An empty tokenType becomes "bearer".
func NewToken(accessToken, refreshToken string, expiresIn int64, userID UserID, tokenType string) *Token {
	return newTokenAt(SystemClock, accessToken, refreshToken, expiresIn, userID, tokenType)
}

func newTokenAt(clock Clock, accessToken, refreshToken string, expiresIn int64, userID UserID, tokenType string) *Token {
	if clock == nil {
		clock = SystemClock
	}
	if tokenType == "" {
		tokenType = DefaultTokenType
	}
	return &Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		UserID:       userID,
		TokenType:    tokenType,
		issuedAt:     clock.Now(),
		clock:        clock,
	}
}

// IssuedAt is the instant the token was built.
func (t *Token) IssuedAt() time.Time { return t.issuedAt }

// Expiry is IssuedAt plus ExpiresIn seconds.
func (t *Token) Expiry() time.Time {
	secs := min(max(t.ExpiresIn, -maxExpiresIn), maxExpiresIn)
	return t.issuedAt.Add(time.Duration(secs) * time.Second)
}

// IsValid reports whether both tokens are present and the expiry lies in
// the future.
func (t *Token) IsValid() bool {
	if t == nil {
		return false
	}
	return t.AccessToken != "" && t.RefreshToken != "" && t.now().Before(t.Expiry())
}

// Equal compares the logical identity of two tokens. Timing fields are
// ignored: the same grant fetched twice is the same token.
func (t *Token) Equal(other *Token) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.AccessToken == other.AccessToken &&
		t.RefreshToken == other.RefreshToken &&
		t.UserID == other.UserID &&
		t.TokenType == other.TokenType
}

func (t *Token) now() time.Time {
	if t.clock == nil {
		return SystemClock.Now()
	}
	return t.clock.Now()
}

// tokenJSON is the persisted and issued wire shape. expires_in is a float
// because older caches wrote fractional seconds.
type tokenJSON struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    float64 `json:"expires_in"`
	UserID       UserID  `json:"user_id"`
	TokenType    string  `json:"token_type"`
}

// Serialize encodes the token for persistence. expires_in holds the
// seconds remaining at the time of the call, not the original lifetime,
// so a token read back later expires at the same instant.
func (t *Token) Serialize() ([]byte, error) {
	remaining := int64(t.Expiry().Sub(t.now()) / time.Second)
	return json.Marshal(tokenJSON{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresIn:    float64(remaining),
		UserID:       t.UserID,
		TokenType:    t.TokenType,
	})
}

// ParseToken is the inverse of Serialize. It also accepts a raw token
// endpoint response.
func ParseToken(data []byte) (*Token, error) {
	return parseTokenAt(SystemClock, data)
}

func parseTokenAt(clock Clock, data []byte) (*Token, error) {
	if !utf8.Valid(data) {
		return nil, &MalformedTokenError{Reason: "payload is not valid UTF-8"}
	}

	var wire *tokenJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &MalformedTokenError{Reason: "payload is not a JSON object", Err: err}
	}
	if wire == nil {
		return nil, &MalformedTokenError{Reason: "payload is null"}
	}

	return newTokenAt(clock,
		wire.AccessToken,
		wire.RefreshToken,
		clampSeconds(wire.ExpiresIn),
		wire.UserID,
		wire.TokenType,
	), nil
}

// clampSeconds truncates a decoded lifetime to whole seconds within the
// range Expiry can represent.
func clampSeconds(f float64) int64 {
	switch {
	case f >= float64(maxExpiresIn):
		return maxExpiresIn
	case f <= -float64(maxExpiresIn):
		return -maxExpiresIn
	default:
		return int64(f)
	}
}

// OAuth2 converts the token into the golang.org/x/oauth2 representation.
// The user id travels as the "user_id" extra.
func (t *Token) OAuth2() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry(),
		ExpiresIn:    t.ExpiresIn,
	}
	return tok.WithExtra(map[string]any{"user_id": string(t.UserID)})
}
