package curbsdk

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Historical data granularities.
const (
	PerDay    = "1D"
	PerHour   = "1H"
	PerMinute = "1T"
)

// Historical data units.
const (
	Watt          = "w"
	DollarPerHour = "$/hr"
)

// HistoricalQuery selects a window of historical measurements. Zero
// values fall back to hourly dollars from the beginning of recording.
type HistoricalQuery struct {
	Granularity string
	Unit        string
	// Since is a unix timestamp, 0 means the beginning.
	Since int64
	// Until is a unix timestamp. Nil leaves the window open ended.
	Until *int64
}

func (q HistoricalQuery) values() url.Values {
	v := url.Values{
		"granularity": {q.Granularity},
		"unit":        {q.Unit},
		"since":       {strconv.FormatInt(q.Since, 10)},
	}
	if v.Get("granularity") == "" {
		v.Set("granularity", PerHour)
	}
	if v.Get("unit") == "" {
		v.Set("unit", DollarPerHour)
	}
	if q.Until != nil {
		v.Set("until", strconv.FormatInt(*q.Until, 10))
	}
	return v
}

// EntryPoint returns the API discovery document, fetching it on first use.
// A nil result with a nil error means the endpoint answered with
// something that was not JSON.
func (c *Client) EntryPoint(ctx context.Context) (*EntryPoint, error) {
	c.mu.Lock()
	ep := c.entryPoint
	c.mu.Unlock()
	if ep != nil {
		return ep, nil
	}

	ep, err := Fetch(ctx, c, "/api", nil, decodeEntryPoint)
	if err != nil || ep == nil {
		return nil, err
	}

	c.mu.Lock()
	if c.state != StateClosed {
		c.entryPoint = ep
	}
	c.mu.Unlock()

	return ep, nil
}

// Profiles lists the profiles of the authenticated user.
func (c *Client) Profiles(ctx context.Context) ([]Profile, error) {
	href, err := c.entryLink(ctx, "profiles", func(ep *EntryPoint) Link { return ep.Profiles })
	if err != nil {
		return nil, err
	}
	return Fetch(ctx, c, href, nil, decodeProfiles)
}

// Devices lists the monitored locations of the authenticated user.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	href, err := c.entryLink(ctx, "devices", func(ep *EntryPoint) Link { return ep.Devices })
	if err != nil {
		return nil, err
	}
	return Fetch(ctx, c, href, nil, decodeDevices)
}

// HistoricalData returns recorded measurements for a profile.
func (c *Client) HistoricalData(ctx context.Context, profileID int64, q HistoricalQuery) (*Measurement, error) {
	path := fmt.Sprintf("/api/profiles/%d/historical-data", profileID)
	return Fetch(ctx, c, path, q.values(), decodeMeasurement)
}

func (c *Client) entryLink(ctx context.Context, name string, pick func(*EntryPoint) Link) (string, error) {
	ep, err := c.EntryPoint(ctx)
	if err != nil {
		return "", err
	}
	if ep == nil {
		return "", ErrNoEntryPoint
	}

	link := pick(ep)
	if link.Href == "" {
		return "", fmt.Errorf("%w: no %s link", ErrNoEntryPoint, name)
	}
	return link.Href, nil
}
