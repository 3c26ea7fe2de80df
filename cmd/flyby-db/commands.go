package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/flyby/internal/logging"
	"github.com/signalsfoundry/flyby/internal/predict"
	"github.com/signalsfoundry/flyby/model"
)

func newPathsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print the resolved database and TLE locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "primary: %s\n", a.paths.PrimaryDB())
			for _, p := range a.paths.SharedDBs() {
				fmt.Fprintf(out, "shared:  %s\n", p)
			}
			for _, d := range a.paths.TLEDirs() {
				fmt.Fprintf(out, "tles:    %s\n", d)
			}
			if a.configFile != "" {
				fmt.Fprintf(out, "config:  %s\n", a.configFile)
			}
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List satellites with transponder data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd.Context()); err != nil {
				return err
			}
			var rows [][]string
			for i := 0; i < a.db.Len(); i++ {
				e, _ := a.db.Entry(i)
				if e.Empty() && !all {
					continue
				}
				id, _ := a.db.Identity(i)
				rows = append(rows, listRow(id, e))
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderList(rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include satellites without transponder data")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <number>",
		Short: "Show the transponder entry of a satellite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := a.resolveArg(cmd, args[0])
			if err != nil {
				return err
			}
			id, _ := a.db.Identity(i)
			e, _ := a.db.Entry(i)
			def, _ := a.db.Default(i)
			fmt.Fprintln(cmd.OutOrStdout(), renderEntry(id, e, def))
			return nil
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	var (
		attitude     string
		noSquint     bool
		clearAll     bool
		transponders []string
	)
	cmd := &cobra.Command{
		Use:   "set <number>",
		Short: "Edit a satellite entry and save it to the user database",
		Long: `Edit a satellite entry. Transponders are given as comma separated
key=value pairs, for example:

  flyby-db set 7530 --transponder 'name=Mode B,uplink=432.125:432.175,downlink=145.975:145.925'

Recognized keys are name, uplink, downlink (start:end in MHz), day (day of
week bitmask) and phase (start:end).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if attitude != "" && noSquint {
				return fmt.Errorf("--attitude and --no-squint are mutually exclusive")
			}
			i, err := a.resolveArg(cmd, args[0])
			if err != nil {
				return err
			}
			e, _ := a.db.Entry(i)
			if clearAll {
				e.Transponders = nil
			}
			for _, raw := range transponders {
				t, err := parseTransponder(raw)
				if err != nil {
					return err
				}
				e.Transponders = append(e.Transponders, t)
			}
			switch {
			case noSquint:
				e.Squint = false
			case attitude != "":
				lat, lon, err := parsePair(attitude)
				if err != nil {
					return fmt.Errorf("--attitude: %w", err)
				}
				e.Squint, e.AttitudeLat, e.AttitudeLon = true, lat, lon
			}

			changed, err := a.db.Set(i, e)
			if err != nil {
				return err
			}
			if !changed {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("no changes"))
				return nil
			}
			logging.LoggerFromContext(cmd.Context()).Info(cmd.Context(), "entry edited",
				logging.Int64("number", e.SatelliteNumber),
				logging.Bool("squint", e.Squint),
				logging.Float64("attitude_lat", e.AttitudeLat),
				logging.Float64("attitude_lon", e.AttitudeLon),
				logging.Int("transponders", len(e.Transponders)),
			)
			return a.saveAndReport(cmd)
		},
	}
	cmd.Flags().StringVar(&attitude, "attitude", "", "enable squint with attitude `lat,lon` in degrees")
	cmd.Flags().BoolVar(&noSquint, "no-squint", false, "disable squint angle calculation")
	cmd.Flags().BoolVar(&clearAll, "clear-transponders", false, "remove existing transponders before adding")
	cmd.Flags().StringArrayVarP(&transponders, "transponder", "t", nil, "add a transponder (repeatable)")
	return cmd
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <number>",
		Short: "Restore the system default for a satellite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := a.resolveArg(cmd, args[0])
			if err != nil {
				return err
			}
			if err := a.db.RestoreDefault(i); err != nil {
				return err
			}
			if !a.db.Modified() {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("already at default"))
				return nil
			}
			id, _ := a.db.Identity(i)
			logging.LoggerFromContext(cmd.Context()).Info(cmd.Context(), "entry restored to default",
				logging.Int64("number", id.Number))
			return a.saveAndReport(cmd)
		},
	}
}

func newSaveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Rewrite the user database, dropping entries equal to system data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd.Context()); err != nil {
				return err
			}
			n, err := a.db.Save(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("wrote %d entries to %s", n, a.db.PrimaryPath())))
			return nil
		},
	}
}

func newSquintCmd(a *app) *cobra.Command {
	var (
		obs predict.Observer
		at  string
	)
	cmd := &cobra.Command{
		Use:   "squint <number>",
		Short: "Compute the squint angle of a satellite for an observer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, v := range []float64{obs.LatitudeDeg, obs.LongitudeDeg, obs.AltitudeKm} {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return fmt.Errorf("observer position must be finite")
				}
			}
			when := time.Now()
			if at != "" {
				var err error
				if when, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at: %w", err)
				}
			}
			i, err := a.resolveArg(cmd, args[0])
			if err != nil {
				return err
			}
			e, _ := a.db.Entry(i)
			s, err := predict.SquintAngle(a.tle.Element(i), e, obs, when)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "squint %.2f deg, range %.1f km, elevation %.1f deg at %s\n",
				s.AngleDeg, s.RangeKm, s.ElevationDeg, when.UTC().Format(time.RFC3339))
			if !s.Visible() {
				fmt.Fprintln(out, mutedStyle.Render("satellite is below the horizon"))
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&obs.LatitudeDeg, "lat", 0, "observer latitude in degrees (north positive)")
	cmd.Flags().Float64Var(&obs.LongitudeDeg, "lon", 0, "observer longitude in degrees (east positive)")
	cmd.Flags().Float64Var(&obs.AltitudeKm, "alt", 0, "observer altitude in km")
	cmd.Flags().StringVar(&at, "at", "", "time in RFC 3339 (default now)")
	return cmd
}

// resolveArg loads the databases and maps a catalog number argument to its
// index.
func (a *app) resolveArg(cmd *cobra.Command, arg string) (int, error) {
	number, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return -1, fmt.Errorf("invalid catalog number %q", arg)
	}
	if err := a.load(cmd.Context()); err != nil {
		return -1, err
	}
	return a.lookup(number)
}

func (a *app) saveAndReport(cmd *cobra.Command) error {
	n, err := a.save(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("saved %s (%d entries)", a.db.PrimaryPath(), n)))
	return nil
}

// parseTransponder reads name=...,uplink=a:b,downlink=a:b,day=n,phase=a:b.
func parseTransponder(raw string) (model.TransponderRecord, error) {
	var t model.TransponderRecord
	for _, part := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return t, fmt.Errorf("transponder %q: expected key=value, got %q", raw, part)
		}
		key, value = strings.ToLower(strings.TrimSpace(key)), strings.TrimSpace(value)
		var err error
		switch key {
		case "name":
			t.Name = value
		case "uplink":
			t.UplinkStart, t.UplinkEnd, err = parseRange(value)
		case "downlink":
			t.DownlinkStart, t.DownlinkEnd, err = parseRange(value)
		case "day":
			var v uint64
			v, err = strconv.ParseUint(value, 10, 8)
			t.DayOfWeek = uint8(v)
		case "phase":
			t.PhaseStart, t.PhaseEnd, err = parsePhase(value)
		default:
			err = fmt.Errorf("unknown key")
		}
		if err != nil {
			return t, fmt.Errorf("transponder %q: %s: %w", raw, key, err)
		}
	}
	if !t.Defined() {
		return t, fmt.Errorf("transponder %q: needs a non-zero uplink or downlink start", raw)
	}
	return t, nil
}

func parseRange(s string) (float64, float64, error) {
	lo, hi, found := strings.Cut(s, ":")
	a, err := parseNumber(lo)
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return a, a, nil
	}
	b, err := parseNumber(hi)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func parsePhase(s string) (int, int, error) {
	lo, hi, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, fmt.Errorf("expected start:end, got %q", s)
	}
	a, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, err
	}
	b, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func parsePair(s string) (float64, float64, error) {
	x, y, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, fmt.Errorf("expected two comma separated numbers, got %q", s)
	}
	a, err := parseNumber(x)
	if err != nil {
		return 0, 0, err
	}
	b, err := parseNumber(y)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// parseNumber parses a finite float.
func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return v, nil
}
