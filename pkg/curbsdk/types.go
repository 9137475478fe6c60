package curbsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
// Public models
// ============================================================================

// Link is a HAL hyperlink.
type Link struct {
	Href    string
	Methods []string
}

// EntryPoint maps the API's top level resources to their locations.
type EntryPoint struct {
	Profiles Link
	Devices  Link
	Self     Link
}

// Profile describes how to interpret a location's data and where to read
// it in real time.
type Profile struct {
	ID             int64
	DisplayName    string
	RealTime       []RealTimeConfig
	Registers      []Register
	RegisterGroups RegisterGroups
}

// FindRegister looks a register up by id.
func (p *Profile) FindRegister(id string) (Register, bool) {
	for _, r := range p.Registers {
		if r.ID == id {
			return r, true
		}
	}
	return Register{}, false
}

// RealTimeConfig locates the real-time stream of a profile.
type RealTimeConfig struct {
	Topic  string
	Format string
	Prefix string
	URL    string
}

// Register is a single stream of power data, usually one circuit breaker.
type Register struct {
	ID         string
	Label      string
	FlipDomain bool
	Multiplier int
}

// RegisterGroups classifies a profile's registers.
type RegisterGroups struct {
	Grid    []Register
	Normals []Register
	Solar   []Register
	Use     []Register
}

// Device is a monitored location such as a house.
type Device struct {
	ID           int64
	Name         string
	BuildingType string
	Timezone     string
	SensorGroups []SensorGroup
}

// SensorGroup is a set of sensors measuring at a common location.
type SensorGroup struct {
	ID      int64
	Sensors []Sensor
}

// Sensor is a measuring device such as a Curb hub.
type Sensor struct {
	ID            int64
	Name          string
	ArbitraryName string
}

// Measurement is a window of historical data. Each row of Data lines up
// with Headers.
type Measurement struct {
	Granularity string
	Since       int64
	Until       int64
	Unit        string
	Headers     []string
	Data        [][]float64
}

// ============================================================================
// Wire shapes (HAL+JSON)
// ============================================================================

type halLink struct {
	Href    string   `json:"href"`
	Methods []string `json:"methods"`
}

type halLinks map[string]halLink

func (l halLink) link() Link {
	return Link{Href: l.Href, Methods: l.Methods}
}

// idFromSelf recovers a numeric id from the self link when the payload
// omits it, e.g. "/api/devices/42".
func idFromSelf(links halLinks, prefix string) (int64, error) {
	href := links["self"].Href
	if href == "" {
		return 0, errors.New("no id and no self link")
	}

	raw := strings.Trim(strings.TrimPrefix(href, prefix), "/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("self link %q does not end in an id: %w", href, err)
	}
	return id, nil
}

func resolveID(id *int64, links halLinks, prefix string) (int64, error) {
	if id != nil {
		return *id, nil
	}
	return idFromSelf(links, prefix)
}

type entryPointJSON struct {
	Links halLinks `json:"_links"`
}

type sensorJSON struct {
	ID            *int64   `json:"id"`
	Name          string   `json:"name"`
	ArbitraryName string   `json:"arbitrary_name"`
	Links         halLinks `json:"_links"`
}

type sensorGroupJSON struct {
	ID       *int64   `json:"id"`
	Links    halLinks `json:"_links"`
	Embedded struct {
		Sensors []sensorJSON `json:"sensors"`
	} `json:"_embedded"`
}

type deviceJSON struct {
	ID           *int64   `json:"id"`
	Name         string   `json:"name"`
	BuildingType string   `json:"building_type"`
	Timezone     string   `json:"timezone"`
	Links        halLinks `json:"_links"`
	Embedded     struct {
		SensorGroups []sensorGroupJSON `json:"sensor_groups"`
	} `json:"_embedded"`
}

type devicesJSON struct {
	Devices  []deviceJSON `json:"devices"`
	Embedded struct {
		Devices []deviceJSON `json:"devices"`
	} `json:"_embedded"`
}

type registerJSON struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	FlipDomain bool   `json:"flip_domain"`
	Multiplier *int   `json:"multiplier"`
}

type realTimeJSON struct {
	Topic  string   `json:"topic"`
	Format string   `json:"format"`
	Prefix string   `json:"prefix"`
	Links  halLinks `json:"_links"`
}

type registerGroupsJSON struct {
	Grid    []registerJSON `json:"grid"`
	Normals []registerJSON `json:"normals"`
	Solar   []registerJSON `json:"solar"`
	Use     []registerJSON `json:"use"`
}

type profileJSON struct {
	ID             *int64             `json:"id"`
	DisplayName    string             `json:"display_name"`
	RealTime       []realTimeJSON     `json:"real_time"`
	RegisterGroups registerGroupsJSON `json:"register_groups"`
	Links          halLinks           `json:"_links"`
	Embedded       struct {
		Registers struct {
			Registers []registerJSON `json:"registers"`
		} `json:"registers"`
	} `json:"_embedded"`
}

type profilesJSON struct {
	Embedded struct {
		Profiles []profileJSON `json:"profiles"`
	} `json:"_embedded"`
}

type measurementJSON struct {
	Granularity string      `json:"granularity"`
	Since       int64       `json:"since"`
	Until       int64       `json:"until"`
	Unit        string      `json:"unit"`
	Headers     []string    `json:"headers"`
	Data        [][]float64 `json:"data"`
}

type historicalJSON struct {
	Results []measurementJSON `json:"results"`
}

// ============================================================================
// Decoders
// ============================================================================

func decodeEntryPoint(body []byte) (*EntryPoint, error) {
	var wire entryPointJSON
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, err
	}

	return &EntryPoint{
		Profiles: wire.Links["profiles"].link(),
		Devices:  wire.Links["devices"].link(),
		Self:     wire.Links["self"].link(),
	}, nil
}

func decodeProfiles(body []byte) ([]Profile, error) {
	var wire profilesJSON
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, err
	}

	profiles := make([]Profile, 0, len(wire.Embedded.Profiles))
	for i, p := range wire.Embedded.Profiles {
		profile, err := mapProfile(p)
		if err != nil {
			return nil, fmt.Errorf("profile %d: %w", i, err)
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

func mapProfile(p profileJSON) (Profile, error) {
	id, err := resolveID(p.ID, p.Links, "/api/profiles/")
	if err != nil {
		return Profile{}, err
	}

	profile := Profile{
		ID:          id,
		DisplayName: p.DisplayName,
		Registers:   mapRegisters(p.Embedded.Registers.Registers),
	}
	for _, rt := range p.RealTime {
		profile.RealTime = append(profile.RealTime, RealTimeConfig{
			Topic:  rt.Topic,
			Format: rt.Format,
			Prefix: rt.Prefix,
			URL:    rt.Links["ws"].Href,
		})
	}

	// Groups only carry register ids and labels, the full definitions live
	// in the embedded register list.
	known := make(map[string]Register, len(profile.Registers))
	for _, r := range profile.Registers {
		known[r.ID] = r
	}
	resolve := func(in []registerJSON) []Register {
		out := mapRegisters(in)
		for i, r := range out {
			if full, ok := known[r.ID]; ok {
				out[i] = full
			}
		}
		return out
	}
	profile.RegisterGroups = RegisterGroups{
		Grid:    resolve(p.RegisterGroups.Grid),
		Normals: resolve(p.RegisterGroups.Normals),
		Solar:   resolve(p.RegisterGroups.Solar),
		Use:     resolve(p.RegisterGroups.Use),
	}

	return profile, nil
}

func mapRegisters(in []registerJSON) []Register {
	if len(in) == 0 {
		return nil
	}

	out := make([]Register, 0, len(in))
	for _, r := range in {
		multiplier := 1
		if r.Multiplier != nil {
			multiplier = *r.Multiplier
		}
		out = append(out, Register{
			ID:         r.ID,
			Label:      r.Label,
			FlipDomain: r.FlipDomain,
			Multiplier: multiplier,
		})
	}
	return out
}

func decodeDevices(body []byte) ([]Device, error) {
	var wire devicesJSON
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, err
	}

	raw := wire.Devices
	if len(raw) == 0 {
		raw = wire.Embedded.Devices
	}

	devices := make([]Device, 0, len(raw))
	for i, d := range raw {
		device, err := mapDevice(d)
		if err != nil {
			return nil, fmt.Errorf("device %d: %w", i, err)
		}
		devices = append(devices, device)
	}
	return devices, nil
}

func mapDevice(d deviceJSON) (Device, error) {
	id, err := resolveID(d.ID, d.Links, "/api/devices/")
	if err != nil {
		return Device{}, err
	}

	device := Device{
		ID:           id,
		Name:         d.Name,
		BuildingType: d.BuildingType,
		Timezone:     d.Timezone,
	}
	for _, g := range d.Embedded.SensorGroups {
		group, err := mapSensorGroup(g)
		if err != nil {
			return Device{}, fmt.Errorf("sensor group: %w", err)
		}
		device.SensorGroups = append(device.SensorGroups, group)
	}
	return device, nil
}

func mapSensorGroup(g sensorGroupJSON) (SensorGroup, error) {
	id, err := resolveID(g.ID, g.Links, "/api/sensor_groups/")
	if err != nil {
		return SensorGroup{}, err
	}

	group := SensorGroup{ID: id}
	for _, s := range g.Embedded.Sensors {
		sid, err := resolveID(s.ID, s.Links, "/api/sensors/")
		if err != nil {
			return SensorGroup{}, fmt.Errorf("sensor: %w", err)
		}
		group.Sensors = append(group.Sensors, Sensor{
			ID:            sid,
			Name:          s.Name,
			ArbitraryName: s.ArbitraryName,
		})
	}
	return group, nil
}

// decodeMeasurement reads the first result. An empty result set is not an
// error, it decodes to nil.
func decodeMeasurement(body []byte) (*Measurement, error) {
	var wire historicalJSON
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, err
	}
	if len(wire.Results) == 0 {
		return nil, nil
	}

	r := wire.Results[0]
	return &Measurement{
		Granularity: r.Granularity,
		Since:       r.Since,
		Until:       r.Until,
		Unit:        r.Unit,
		Headers:     r.Headers,
		Data:        r.Data,
	}, nil
}
