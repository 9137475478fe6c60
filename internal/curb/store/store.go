package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

// Store is the root data access interface for the CLI's local state.
// Drivers expose sub-repositories rather than flat methods so new concerns
// can be added without widening every caller's dependency.
type Store interface {
	Tokens() Tokens

	ApplyMigrations() error

	// Close releases the underlying database handle.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// CachedToken is a serialized API token kept between CLI runs. Payload is
// either the token JSON or, when Sealed, its encrypted form.
type CachedToken struct {
	// Key identifies the account, see TokenKey.
	Key       string
	Payload   []byte
	Sealed    bool
	UpdatedAt time.Time
}

type Tokens interface {
	// GetToken returns the cached token for key or ErrNotFound.
	GetToken(ctx context.Context, key string) (CachedToken, error)

	// PutToken inserts or replaces the cached token for t.Key.
	PutToken(ctx context.Context, t CachedToken) error

	// DeleteToken removes the cached token. Deleting a missing key is not
	// an error.
	DeleteToken(ctx context.Context, key string) error
}

// TokenKey scopes cached tokens to one user on one API host.
func TokenKey(username, apiURL string) string {
	return username + "@" + apiURL
}
