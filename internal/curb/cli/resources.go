package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/curb/internal/curb/app"
	"github.com/aussiebroadwan/curb/pkg/curbsdk"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// registerURNPrefix is trimmed from historical data headers for display.
const registerURNPrefix = "urn:energycurb:registers:curb:"

func newProfilesCmd(cfg *app.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List profiles and their real-time endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, cfg, func(ctx context.Context, c *curbsdk.Client) error {
				profiles, err := c.Profiles(ctx)
				if err != nil {
					return err
				}

				t := newTable(cmd)
				t.AppendHeader(table.Row{"ID", "Name", "Registers", "Real-time URL", "Topic"})
				for _, p := range profiles {
					url, topic := "-", "-"
					if len(p.RealTime) > 0 {
						url, topic = p.RealTime[0].URL, p.RealTime[0].Topic
					}
					t.AppendRow(table.Row{p.ID, p.DisplayName, len(p.Registers), url, topic})
				}
				t.Render()
				return nil
			})
		},
	}
}

func newDevicesCmd(cfg *app.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List monitored locations and their sensors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, cfg, func(ctx context.Context, c *curbsdk.Client) error {
				devices, err := c.Devices(ctx)
				if err != nil {
					return err
				}

				t := newTable(cmd)
				t.AppendHeader(table.Row{"Device", "Name", "Building", "Timezone", "Group", "Sensor", "Sensor name"})
				for _, d := range devices {
					if len(d.SensorGroups) == 0 {
						t.AppendRow(table.Row{d.ID, d.Name, d.BuildingType, d.Timezone, "-", "-", "-"})
						continue
					}
					for _, g := range d.SensorGroups {
						for _, s := range g.Sensors {
							name := s.ArbitraryName
							if name == "" {
								name = s.Name
							}
							t.AppendRow(table.Row{d.ID, d.Name, d.BuildingType, d.Timezone, g.ID, s.ID, name})
						}
					}
				}
				t.Render()
				return nil
			})
		},
	}
}

func newHistoricalCmd(cfg *app.Config) *cobra.Command {
	var (
		profileID int64
		query     curbsdk.HistoricalQuery
		until     int64
	)

	cmd := &cobra.Command{
		Use:   "historical",
		Short: "Show historical measurements",
		Long: `Show historical measurements for one profile, or for every profile when
--profile is not given.

Examples:
  curb historical --granularity 1D --unit w
  curb historical --profile 7 --since 1700000000 --until 1700086400`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateQuery(query); err != nil {
				return err
			}
			if cmd.Flags().Changed("until") {
				query.Until = &until
			}

			return runSession(cmd, cfg, func(ctx context.Context, c *curbsdk.Client) error {
				ids := []int64{profileID}
				if profileID == 0 {
					profiles, err := c.Profiles(ctx)
					if err != nil {
						return err
					}
					ids = ids[:0]
					for _, p := range profiles {
						ids = append(ids, p.ID)
					}
				}

				for _, id := range ids {
					m, err := c.HistoricalData(ctx, id, query)
					if err != nil {
						return err
					}
					renderMeasurement(cmd, id, m)
				}
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&profileID, "profile", 0, "profile id, 0 means every profile")
	flags.StringVar(&query.Granularity, "granularity", curbsdk.PerHour, "1T (minute), 1H (hour) or 1D (day)")
	flags.StringVar(&query.Unit, "unit", curbsdk.Watt, "w (watts) or $/hr (dollars per hour)")
	flags.Int64Var(&query.Since, "since", 0, "window start as a unix timestamp, 0 means the beginning")
	flags.Int64Var(&until, "until", 0, "window end as a unix timestamp, open ended when unset")

	return cmd
}

func validateQuery(q curbsdk.HistoricalQuery) error {
	switch q.Granularity {
	case curbsdk.PerMinute, curbsdk.PerHour, curbsdk.PerDay:
	default:
		return fmt.Errorf("invalid granularity %q", q.Granularity)
	}
	switch q.Unit {
	case curbsdk.Watt, curbsdk.DollarPerHour:
	default:
		return fmt.Errorf("invalid unit %q", q.Unit)
	}
	return nil
}

func renderMeasurement(cmd *cobra.Command, profileID int64, m *curbsdk.Measurement) {
	t := newTable(cmd)
	if m == nil {
		t.SetTitle("Profile %d: no data", profileID)
		t.Render()
		return
	}

	t.SetTitle("Profile %d (%s, %s)", profileID, m.Granularity, m.Unit)

	header := make(table.Row, 0, len(m.Headers))
	for i, h := range m.Headers {
		if i == 0 && h == "ts" {
			h = "time"
		}
		header = append(header, strings.TrimPrefix(h, registerURNPrefix))
	}
	t.AppendHeader(header)

	for _, values := range m.Data {
		row := make(table.Row, 0, len(values))
		for i, v := range values {
			if i == 0 && len(m.Headers) > 0 && m.Headers[0] == "ts" {
				row = append(row, time.Unix(int64(v), 0).UTC().Format(time.RFC3339))
				continue
			}
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		t.AppendRow(row)
	}
	t.Render()
}
