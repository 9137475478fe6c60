package curbsdk

import (
	"context"
	"errors"
)

// State is the lifecycle state of a client session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// setState moves the session along; Closed is terminal.
func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state != StateClosed {
		c.state = s
	}
	c.mu.Unlock()
}

func (c *Client) checkOpen() error {
	if c.State() == StateClosed {
		return ErrSessionClosed
	}
	return nil
}

// Open starts the session. A client already holding a valid token is
// authenticated and nothing else happens. Otherwise it authenticates and
// fetches the entry point. If either step fails the network session is
// released before the error is returned, leaving the client closed.
func (c *Client) Open(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	if c.store.Current().IsValid() {
		c.setState(StateAuthenticated)
		return nil
	}

	if _, err := c.Authenticate(ctx); err != nil {
		return errors.Join(err, c.Close())
	}

	if _, err := c.EntryPoint(ctx); err != nil {
		return errors.Join(err, c.Close())
	}

	return nil
}

// Close releases the network session. It is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.entryPoint = nil
	c.mu.Unlock()

	c.httpClient.CloseIdleConnections()
	return nil
}

// WithSession opens the client, runs fn and closes the client on every
// path out.
func (c *Client) WithSession(ctx context.Context, fn func(context.Context, *Client) error) (err error) {
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, c.Close())
	}()

	return fn(ctx, c)
}
