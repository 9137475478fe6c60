package curbsdk

import (
	"context"
	"encoding/base64"
	"net/http"

	"golang.org/x/oauth2"
)

type tokenSource struct {
	ctx    context.Context
	client *Client
}

// Token renews the held token when needed. The access token is returned
// base64 encoded, the form the resource endpoints expect in the Bearer
// credential.
func (ts *tokenSource) Token() (*oauth2.Token, error) {
	tok := ts.client.store.Current()
	if !tok.IsValid() {
		var err error
		if tok, err = ts.client.Authenticate(ts.ctx); err != nil {
			return nil, err
		}
	}

	out := tok.OAuth2()
	out.AccessToken = base64.StdEncoding.EncodeToString([]byte(tok.AccessToken))
	return out, nil
}

// TokenSource exposes the client's token lifecycle as an oauth2.TokenSource
// for calls the SDK has no accessor for.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, client: c}
}

// AuthorizedHTTPClient returns an *http.Client that authorizes every
// request with the client's token, renewing it as needed. It shares the
// client's transport, so Close releases its connections too.
func (c *Client) AuthorizedHTTPClient(ctx context.Context) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: c.TokenSource(ctx),
			Base:   c.httpClient.Transport,
		},
		Timeout: c.httpClient.Timeout,
	}
}
