package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/signalsfoundry/flyby/model"
)

const (
	colorPrimary = lipgloss.Color("#7C3AED")
	colorMuted   = lipgloss.Color("#6B7280")
	colorSuccess = lipgloss.Color("#10B981")
	colorError   = lipgloss.Color("#EF4444")
	colorWarning = lipgloss.Color("#F59E0B")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	labelStyle   = lipgloss.NewStyle().Foreground(colorMuted).Width(12)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorError)
	dirtyStyle   = lipgloss.NewStyle().Foreground(colorWarning)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary).
			Padding(0, 1)
)

var listHeaders = []string{"NUMBER", "NAME", "ORIGIN", "SQUINT", "TRANSPONDERS"}

func listRow(id model.SatelliteIdentity, e model.SatDbEntry) []string {
	squint := "-"
	if e.Squint {
		squint = formatAttitude(e)
	}
	return []string{
		strconv.FormatInt(id.Number, 10),
		id.Name,
		e.Provenance.String(),
		squint,
		strconv.Itoa(len(e.Transponders)),
	}
}

func renderList(rows [][]string) string {
	if len(rows) == 0 {
		return mutedStyle.Render("no satellites with transponder data")
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(listHeaders...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return titleStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		String()
}

// renderEntry draws one satellite card. def is the system data shown when the
// user entry overrides it.
func renderEntry(id model.SatelliteIdentity, e, def model.SatDbEntry) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s (%d)", id.Name, id.Number)))
	b.WriteString("\n")

	origin := e.Provenance.String()
	if e.Provenance.Dirty {
		origin = dirtyStyle.Render(origin)
	}
	writeField(&b, "origin", origin)
	if e.Squint {
		writeField(&b, "attitude", formatAttitude(e))
	} else {
		writeField(&b, "attitude", mutedStyle.Render("none"))
	}

	if len(e.Transponders) == 0 {
		writeField(&b, "transponders", mutedStyle.Render("none"))
	}
	for i, t := range e.Transponders {
		b.WriteString("\n")
		b.WriteString(renderTransponder(i+1, t))
	}

	if e.Provenance.Origin == model.OriginPrimary && def.Provenance.Origin == model.OriginShared && !def.Equal(e) {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(fmt.Sprintf("overrides system data (%d transponders)", len(def.Transponders))))
	}
	return cardStyle.Render(b.String())
}

func renderTransponder(n int, t model.TransponderRecord) string {
	var b strings.Builder
	name := t.Name
	if name == "" {
		name = mutedStyle.Render("unnamed")
	}
	b.WriteString(fmt.Sprintf("#%d %s\n", n, name))
	writeField(&b, "uplink", formatRange(t.UplinkStart, t.UplinkEnd))
	writeField(&b, "downlink", formatRange(t.DownlinkStart, t.DownlinkEnd))
	if t.DayOfWeek != 0 {
		writeField(&b, "days", strconv.Itoa(int(t.DayOfWeek)))
	}
	if t.PhaseStart != 0 || t.PhaseEnd != 0 {
		writeField(&b, "phase", fmt.Sprintf("%d-%d", t.PhaseStart, t.PhaseEnd))
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeField(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(label))
	b.WriteString(value)
	b.WriteString("\n")
}

func formatAttitude(e model.SatDbEntry) string {
	return fmt.Sprintf("%g, %g", e.AttitudeLat, e.AttitudeLon)
}

func formatRange(lo, hi float64) string {
	if lo == 0 && hi == 0 {
		return "-"
	}
	return fmt.Sprintf("%.3f - %.3f MHz", lo, hi)
}
