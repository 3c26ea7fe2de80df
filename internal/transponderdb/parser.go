package transponderdb

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/signalsfoundry/flyby/model"
)

const (
	absentToken = "No"
	endToken    = "end"

	// renamedEnd replaces a transponder called "end", which would otherwise
	// terminate its satellite block.
	renamedEnd = "End"
)

// ParseOptions tunes the parser.
type ParseOptions struct {
	// MaxTransponders bounds the transponders stored per satellite. Zero
	// means unlimited. Excess records are still consumed and reported in
	// ParseResult.Overflows.
	MaxTransponders int
}

// ParseWarning records a malformed field that was replaced by its default.
type ParseWarning struct {
	Line  int
	Field string
	Value string
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("line %d: malformed %s %q", w.Line, w.Field, w.Value)
}

// Overflow records transponders dropped for one satellite.
type Overflow struct {
	SatelliteNumber int64
	Dropped         int
}

// ParseResult is the sparse outcome of parsing one database file.
type ParseResult struct {
	Source string

	// Entries maps identity index to the parsed entry.
	Entries map[int]model.SatDbEntry

	// Unmatched lists catalog numbers with no identity, in file order.
	Unmatched []int64

	Warnings  []ParseWarning
	Overflows []Overflow
}

// Indices returns the matched identity indices in ascending order.
func (r *ParseResult) Indices() []int {
	out := make([]int, 0, len(r.Entries))
	for idx := range r.Entries {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// ParseFile opens path and parses it. A file that cannot be opened yields an
// error wrapping ErrSourceUnavailable.
func ParseFile(path string, identities []model.SatelliteIdentity, opts ParseOptions) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, path, err)
	}
	defer f.Close()

	res, err := Parse(f, identities, opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	res.Source = path
	return res, nil
}

// Parse reads satellite blocks from r until the end sentinel or end of input,
// keeping those whose catalog number matches an identity. Every block is read
// with the same line sequence whether it matches or not, so a discarded block
// never shifts the next one. Malformed numeric fields become zero and are
// reported as warnings. Only read errors are returned.
func Parse(r io.Reader, identities []model.SatelliteIdentity, opts ParseOptions) (*ParseResult, error) {
	p := &parser{
		sc:  bufio.NewScanner(r),
		res: &ParseResult{Entries: make(map[int]model.SatDbEntry)},
	}
	p.sc.Buffer(make([]byte, 0, 4096), 1<<20)

	line, ok := p.next()
	for ok && !isTerminator(line) {
		// line holds the satellite name, which the TLE database owns.
		numberLine, _ := p.next()
		number, valid := parseCatalogNumber(numberLine)
		idx := -1
		if valid {
			idx = model.IndexOf(identities, number)
		} else {
			p.res.Warnings = append(p.res.Warnings, ParseWarning{Line: p.lineNo, Field: "catalog", Value: numberLine})
		}
		p.recording = idx >= 0

		entry := model.SatDbEntry{SatelliteNumber: number}
		squintLine, _ := p.next()
		if !isAbsent(squintLine) {
			entry.Squint = true
			entry.AttitudeLat, entry.AttitudeLon = p.floatPair(squintLine, "squint")
		}

		dropped := 0
		line, ok = p.next()
		for ok && !isTerminator(line) {
			rec := p.transponder(line)
			if rec.Defined() {
				if opts.MaxTransponders > 0 && len(entry.Transponders) >= opts.MaxTransponders {
					dropped++
				} else {
					entry.Transponders = append(entry.Transponders, rec)
				}
			}
			line, ok = p.next()
		}

		if idx >= 0 {
			entry.Normalize()
			p.res.Entries[idx] = entry
			if dropped > 0 {
				p.res.Overflows = append(p.res.Overflows, Overflow{SatelliteNumber: number, Dropped: dropped})
			}
		} else if valid {
			p.res.Unmatched = append(p.res.Unmatched, number)
		}

		line, ok = p.next()
	}

	if err := p.sc.Err(); err != nil {
		return nil, err
	}
	return p.res, nil
}

type parser struct {
	sc        *bufio.Scanner
	lineNo    int
	res       *ParseResult
	recording bool
}

// next returns the following line without its line ending. At end of input
// it returns "" and false.
func (p *parser) next() (string, bool) {
	if !p.sc.Scan() {
		return "", false
	}
	p.lineNo++
	return strings.TrimRight(p.sc.Text(), "\r"), true
}

// transponder reads the sub-block whose name line has already been consumed.
func (p *parser) transponder(nameLine string) model.TransponderRecord {
	var rec model.TransponderRecord
	if name := strings.TrimSpace(nameLine); name != absentToken {
		rec.Name = name
	}

	line, _ := p.next()
	rec.UplinkStart, rec.UplinkEnd = p.floatPair(line, "uplink")

	line, _ = p.next()
	rec.DownlinkStart, rec.DownlinkEnd = p.floatPair(line, "downlink")

	line, _ = p.next()
	if !isAbsent(line) {
		v, err := strconv.ParseUint(strings.TrimSpace(line), 10, 8)
		if err != nil {
			p.warn("dayofweek", line)
			v = 0
		}
		rec.DayOfWeek = uint8(v)
	}

	line, _ = p.next()
	if !isAbsent(line) {
		rec.PhaseStart, rec.PhaseEnd = p.intPair(line, "phase")
	}
	return rec
}

func (p *parser) floatPair(line, field string) (float64, float64) {
	a, b, ok := splitPair(line)
	x, errX := parseFinite(a)
	y, errY := parseFinite(b)
	if !ok || errX != nil || errY != nil {
		p.warn(field, line)
	}
	if errX != nil {
		x = 0
	}
	if errY != nil {
		y = 0
	}
	return x, y
}

// parseFinite rejects NaN and infinities, which never compare equal to a
// stored value.
func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", errNotFinite, s)
	}
	return v, nil
}

func (p *parser) intPair(line, field string) (int, int) {
	a, b, ok := splitPair(line)
	x, errX := strconv.Atoi(a)
	y, errY := strconv.Atoi(b)
	if !ok || errX != nil || errY != nil {
		p.warn(field, line)
	}
	if errX != nil {
		x = 0
	}
	if errY != nil {
		y = 0
	}
	return x, y
}

func (p *parser) warn(field, value string) {
	if !p.recording {
		return
	}
	p.res.Warnings = append(p.res.Warnings, ParseWarning{Line: p.lineNo, Field: field, Value: value})
}

func splitPair(line string) (string, string, bool) {
	a, b, found := strings.Cut(line, ",")
	return strings.TrimSpace(a), strings.TrimSpace(b), found
}

func parseCatalogNumber(line string) (int64, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isTerminator(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" || trimmed == endToken
}

// isAbsent matches the "No" sentinel used for optional numeric lines.
func isAbsent(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), absentToken)
}
