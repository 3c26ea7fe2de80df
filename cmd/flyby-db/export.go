package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/flyby/internal/transponderdb"
	"github.com/signalsfoundry/flyby/model"
)

type exportDoc struct {
	Primary    string        `yaml:"primary" json:"primary"`
	Satellites []exportEntry `yaml:"satellites" json:"satellites"`
}

type exportEntry struct {
	Number       int64               `yaml:"number" json:"number"`
	Name         string              `yaml:"name" json:"name"`
	Origin       string              `yaml:"origin" json:"origin"`
	Attitude     *exportAttitude     `yaml:"attitude,omitempty" json:"attitude,omitempty"`
	Transponders []exportTransponder `yaml:"transponders,omitempty" json:"transponders,omitempty"`
}

type exportAttitude struct {
	Lat float64 `yaml:"lat" json:"lat"`
	Lon float64 `yaml:"lon" json:"lon"`
}

type exportTransponder struct {
	Name          string  `yaml:"name,omitempty" json:"name,omitempty"`
	UplinkStart   float64 `yaml:"uplink_start" json:"uplink_start"`
	UplinkEnd     float64 `yaml:"uplink_end" json:"uplink_end"`
	DownlinkStart float64 `yaml:"downlink_start" json:"downlink_start"`
	DownlinkEnd   float64 `yaml:"downlink_end" json:"downlink_end"`
	DayOfWeek     uint8   `yaml:"day_of_week,omitempty" json:"day_of_week,omitempty"`
	PhaseStart    int     `yaml:"phase_start,omitempty" json:"phase_start,omitempty"`
	PhaseEnd      int     `yaml:"phase_end,omitempty" json:"phase_end,omitempty"`
}

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump the merged database as YAML or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd.Context()); err != nil {
				return err
			}
			return writeExport(cmd.OutOrStdout(), buildExport(a.db, all), format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")
	cmd.Flags().BoolVar(&all, "all", false, "include satellites without transponder data")
	return cmd
}

func buildExport(db *transponderdb.Database, all bool) exportDoc {
	doc := exportDoc{Primary: db.PrimaryPath(), Satellites: []exportEntry{}}
	for i := 0; i < db.Len(); i++ {
		e, _ := db.Entry(i)
		if e.Empty() && !all {
			continue
		}
		id, _ := db.Identity(i)
		doc.Satellites = append(doc.Satellites, toExport(id, e))
	}
	return doc
}

func toExport(id model.SatelliteIdentity, e model.SatDbEntry) exportEntry {
	out := exportEntry{
		Number: id.Number,
		Name:   id.Name,
		Origin: e.Provenance.String(),
	}
	if e.Squint {
		out.Attitude = &exportAttitude{Lat: e.AttitudeLat, Lon: e.AttitudeLon}
	}
	for _, t := range e.Transponders {
		out.Transponders = append(out.Transponders, exportTransponder(t))
	}
	return out
}

func writeExport(w io.Writer, doc exportDoc, format string) error {
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}
