/*
Package curbsdk is a client for the Curb energy monitoring REST API.

# Overview

A Client holds one logical session for one user. It obtains an OAuth2
token with the password grant, renews it with the refresh grant when it
expires, and authorizes every resource request with it. Callers never see
an expired token error: each request checks the held token first and
renews it if needed.

	client := curbsdk.NewClient(curbsdk.Credentials{
		Username:     "user@example.com",
		Password:     "secret",
		ClientToken:  appToken,
		ClientSecret: appSecret,
	})

	err := client.WithSession(ctx, func(ctx context.Context, c *curbsdk.Client) error {
		profiles, err := c.Profiles(ctx)
		if err != nil {
			return err
		}
		for _, p := range profiles {
			m, err := c.HistoricalData(ctx, p.ID, curbsdk.HistoricalQuery{
				Granularity: curbsdk.PerDay,
				Unit:        curbsdk.Watt,
			})
			...
		}
		return nil
	})

# Session Lifecycle

A client moves through these states:

	Unauthenticated -> Authenticating -> Authenticated
	Authenticated -> Refreshing -> Authenticated
	any -> Closed

Open authenticates (unless a valid token is already held) and fetches the
API entry point. If that fails the client is closed before the error is
returned. Close is terminal and may be called any number of times; every
other operation on a closed client returns ErrSessionClosed.

# Tokens

Token values can be persisted with Serialize and restored with ParseToken.
The serialized expires_in is the lifetime remaining at the time of the
call, so a restored token expires when the original would have:

	data, _ := client.Token().Serialize()
	...
	tok, err := curbsdk.ParseToken(data)
	client := curbsdk.NewClient(creds, curbsdk.WithToken(tok))

# Error Handling

Two kinds of failure are distinguished.

Soft failures return a nil or zero result with a nil error and log a
warning. A rejected grant (wrong password, revoked refresh token) and a
resource response that is not JSON are soft failures. Authenticate turns a
rejected grant into ErrAuthentication.

Hard failures are returned as errors: ErrAuthentication,
ErrNoExistingToken, ErrSessionClosed, *MalformedTokenError (matching
ErrMalformedToken), *APIError for JSON error documents from resource
endpoints, and transport errors such as a cancelled context.

# Wire Quirks

The API expects the access token base64 encoded inside the Bearer
credential:

	Authorization: Bearer base64(access_token)

TokenSource and AuthorizedHTTPClient follow the same convention.

# Concurrency

A Client is safe for concurrent use in the memory sense, but refreshes are
not coalesced. Two calls that observe an expired token at the same time
will both run the refresh grant.
*/
package curbsdk
