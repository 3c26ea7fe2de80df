package transponderdb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/signalsfoundry/flyby/model"
)

// Write serializes the entries selected by mask in the flyby.db format and
// returns how many blocks were written. Masked entries are written even when
// empty; undefined transponders are always skipped. A mask shorter than
// entries leaves the remaining entries out.
func Write(w io.Writer, identities []model.SatelliteIdentity, entries []model.SatDbEntry, mask []bool) (int, error) {
	if len(entries) != len(identities) {
		return 0, fmt.Errorf("%w: %d entries for %d identities", ErrIndexMismatch, len(entries), len(identities))
	}

	bw := bufio.NewWriter(w)
	written := 0
	for i := range entries {
		if i >= len(mask) || !mask[i] {
			continue
		}
		writeEntry(bw, identities[i], entries[i])
		written++
	}
	bw.WriteString(endToken + "\n")

	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return written, nil
}

func writeEntry(w *bufio.Writer, id model.SatelliteIdentity, e model.SatDbEntry) {
	name := singleLine(id.Name)
	if strings.TrimSpace(name) == "" || strings.TrimSpace(name) == endToken {
		name = strconv.FormatInt(id.Number, 10)
	}
	fmt.Fprintln(w, name)
	fmt.Fprintln(w, id.Number)

	if e.Squint {
		fmt.Fprintf(w, "%s, %s\n", formatFloat(e.AttitudeLat), formatFloat(e.AttitudeLon))
	} else {
		fmt.Fprintln(w, absentToken)
	}

	for _, t := range e.Transponders {
		if !t.Defined() {
			continue
		}
		tname := transponderName(t.Name)
		if tname == "" {
			tname = absentToken
		}
		fmt.Fprintln(w, tname)
		fmt.Fprintf(w, "%s, %s\n", formatFloat(t.UplinkStart), formatFloat(t.UplinkEnd))
		fmt.Fprintf(w, "%s, %s\n", formatFloat(t.DownlinkStart), formatFloat(t.DownlinkEnd))
		if t.DayOfWeek == 0 {
			fmt.Fprintln(w, absentToken)
		} else {
			fmt.Fprintln(w, t.DayOfWeek)
		}
		if t.PhaseStart == 0 && t.PhaseEnd == 0 {
			fmt.Fprintln(w, absentToken)
		} else {
			fmt.Fprintf(w, "%d, %d\n", t.PhaseStart, t.PhaseEnd)
		}
	}
	fmt.Fprintln(w, endToken)
}

// WriteFile writes the masked entries to path atomically: the content goes
// to a temporary file in the same directory which then replaces path. Any
// failure is wrapped in ErrWriteFailed and leaves path untouched.
func WriteFile(path string, identities []model.SatelliteIdentity, entries []model.SatDbEntry, mask []bool) (int, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: create directory %s: %w", ErrWriteFailed, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return 0, fmt.Errorf("%w: create temporary file in %s: %w", ErrWriteFailed, dir, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath) // best effort
	}

	n, err := Write(tmp, identities, entries, mask)
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("%w: %s: %w", ErrWriteFailed, path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("%w: sync %s: %w", ErrWriteFailed, tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: close %s: %w", ErrWriteFailed, tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: chmod %s: %w", ErrWriteFailed, tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: rename into %s: %w", ErrWriteFailed, path, err)
	}
	return n, nil
}

// formatFloat prints six decimals like the historical files do, falling back
// to the shortest exact form when six decimals would change the value.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', 6, 64)
	if back, err := strconv.ParseFloat(s, 64); err == nil && back == v {
		return s
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// transponderName returns the name as it is stored: one line, "" for the
// absent marker, and never the block terminator.
func transponderName(s string) string {
	name := singleLine(s)
	switch name {
	case absentToken:
		return ""
	case endToken:
		return renamedEnd
	}
	return name
}

func singleLine(s string) string {
	return strings.TrimSpace(strings.NewReplacer("\r", " ", "\n", " ").Replace(s))
}
