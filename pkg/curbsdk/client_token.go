package curbsdk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/curb/pkg/cryptox"
	"github.com/aussiebroadwan/curb/pkg/jwtx"
)

const tokenPath = "/oauth2/token"

// jwtLeeway absorbs clock skew when sanity checking issued JWTs.
const jwtLeeway = time.Minute

// PasswordGrant requests a token with the user's credentials. Non-empty
// fields of creds override the client's credentials for this call only.
//
// A rejected grant is not an error: it is logged and (nil, nil) returned.
// The token is not installed; Authenticate does that.
func (c *Client) PasswordGrant(ctx context.Context, creds Credentials) (*Token, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	creds = c.creds.merge(creds)
	data := url.Values{
		"grant_type": {"password"},
		"username":   {creds.Username},
		"password":   {creds.Password},
	}

	return c.requestToken(ctx, creds, data)
}

// RefreshGrant renews the held token. On success the new token replaces
// the held one, since the server invalidates the old refresh token. A
// rejected grant is logged, returns (nil, nil) and leaves the store as is.
func (c *Client) RefreshGrant(ctx context.Context, creds Credentials) (*Token, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	current := c.store.Current()
	if current == nil {
		return nil, ErrNoExistingToken
	}

	creds = c.creds.merge(creds)
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {current.RefreshToken},
		"user_id":       {string(current.UserID)},
	}

	tok, err := c.requestToken(ctx, creds, data)
	if err != nil || tok == nil {
		return nil, err
	}

	c.store.Set(tok)
	return tok, nil
}

// Authenticate makes sure a valid token is held. Without a token it runs
// the password grant; with an expired one it runs the refresh grant; a
// valid token is returned as is. ErrAuthentication is returned when no
// valid token comes out of that.
//
// A password grant result is only installed when valid. The refresh grant
// installs whatever the server issued, since the old refresh token is
// spent, so an already expired refresh result stays held after
// ErrAuthentication and the next call refreshes from it.
func (c *Client) Authenticate(ctx context.Context) (*Token, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	var (
		tok *Token
		err error
	)

	current := c.store.Current()
	switch {
	case current == nil:
		c.setState(StateAuthenticating)
		tok, err = c.PasswordGrant(ctx, Credentials{})
	case !current.IsValid():
		c.setState(StateRefreshing)
		tok, err = c.RefreshGrant(ctx, Credentials{})
	default:
		return current, nil
	}

	if err != nil {
		c.setState(StateUnauthenticated)
		return nil, err
	}
	if !tok.IsValid() {
		c.setState(StateUnauthenticated)
		return nil, ErrAuthentication
	}

	c.store.Set(tok)
	c.setState(StateAuthenticated)
	return tok, nil
}

func (c *Client) requestToken(ctx context.Context, creds Credentials, data url.Values) (*Token, error) {
	endpoint, err := c.resolve(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("failed to build token url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(creds.ClientToken, creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	grant := data.Get("grant_type")
	logger := c.log(ctx)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		oauthErr := parseErrorResponse(resp.StatusCode, body)
		logger.Warn("token request rejected",
			"grant_type", grant,
			"status", resp.StatusCode,
			"error", oauthErr.Code,
			"error_description", oauthErr.Description,
		)
		return nil, nil
	}

	tok, err := parseTokenAt(c.clock, body)
	if err != nil {
		return nil, err
	}
	c.inspectJWT(ctx, tok)

	logger.Debug("token issued",
		"grant_type", grant,
		"token_fp", cryptox.FingerprintToken(tok.AccessToken),
		"user_id", string(tok.UserID),
		"expires_in", tok.ExpiresIn,
	)

	return tok, nil
}

// inspectJWT reads hints out of JWT access tokens. The claims are not
// verified and are never used to decide validity.
func (c *Client) inspectJWT(ctx context.Context, tok *Token) {
	claims, err := jwtx.ParseUnverified(tok.AccessToken)
	if err != nil {
		return
	}

	if tok.UserID == "" && claims.Subject != "" {
		tok.UserID = UserID(claims.Subject)
	}

	if err := claims.ValidateExpiryWithLeeway(c.clock.Now(), jwtLeeway); err != nil {
		c.log(ctx).Warn("issued access token fails its own time claims",
			"token_fp", cryptox.FingerprintToken(tok.AccessToken),
			"error", err,
		)
	}
}
