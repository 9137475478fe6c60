package curbsdk

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// authHeader builds the Authorization value. The API expects the access
// token base64 encoded inside the Bearer credential.
func authHeader(accessToken string) string {
	return "Bearer " + base64.StdEncoding.EncodeToString([]byte(accessToken))
}

// Fetch performs an authenticated GET of path and decodes the body.
//
// A missing or expired token is renewed first, so callers never see an
// expired token error. A body that is not JSON is logged and yields the
// zero value with a nil error. A JSON body with a non-2xx status is
// returned as *APIError.
func Fetch[T any](
	ctx context.Context,
	c *Client,
	path string,
	params url.Values,
	decode func([]byte) (T, error),
) (T, error) {
	var zero T

	if err := c.checkOpen(); err != nil {
		return zero, err
	}

	tok := c.store.Current()
	if !tok.IsValid() {
		var err error
		if tok, err = c.Authenticate(ctx); err != nil {
			return zero, err
		}
	}

	status, body, err := c.doAuthRequest(ctx, path, params, tok)
	if err != nil {
		return zero, err
	}

	if !json.Valid(body) {
		c.log(ctx).Warn("invalid JSON from resource endpoint",
			"path", path,
			"status", status,
			"bytes", len(body),
		)
		return zero, nil
	}

	if status < 200 || status > 299 {
		return zero, parseAPIError(status, path, body)
	}

	v, err := decode(body)
	if err != nil {
		return zero, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return v, nil
}

// doAuthRequest issues the GET and returns the status and full body.
func (c *Client) doAuthRequest(ctx context.Context, path string, params url.Values, tok *Token) (int, []byte, error) {
	endpoint, err := c.resolve(path)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build url for %s: %w", path, err)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", authHeader(tok.AccessToken))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, body, nil
}
