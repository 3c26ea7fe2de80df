// Package tledb loads the satellite identity list from three-line TLE files.
//
// The order of the list is the index space of the transponder database:
// files are read in search path order (primary directory first) and the
// first occurrence of a catalog number wins.
package tledb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/signalsfoundry/flyby/internal/logging"
	"github.com/signalsfoundry/flyby/model"
)

// FilePattern selects TLE files inside a tles directory.
const FilePattern = "**/*.{tle,txt}"

const lineLength = 69

// ErrNoElements is returned when no valid element set was found.
var ErrNoElements = errors.New("no TLE element sets found")

// Element is one validated element set.
type Element struct {
	model.SatelliteIdentity
	Line1  string
	Line2  string
	Source string
}

// Problem describes an element set that was rejected.
type Problem struct {
	Source string
	Line   int
	Reason string
}

func (p Problem) String() string {
	return fmt.Sprintf("%s:%d: %s", p.Source, p.Line, p.Reason)
}

// Database is an ordered, de-duplicated element list.
type Database struct {
	elements []Element
	index    map[int64]int
	Problems []Problem
}

// Len is the number of satellites.
func (d *Database) Len() int { return len(d.elements) }

// Element returns the element set at index i.
func (d *Database) Element(i int) Element { return d.elements[i] }

// Lookup returns the element set for a catalog number.
func (d *Database) Lookup(number int64) (Element, bool) {
	i, ok := d.index[number]
	if !ok {
		return Element{}, false
	}
	return d.elements[i], true
}

// Identities returns the identity list the transponder database aligns with.
func (d *Database) Identities() []model.SatelliteIdentity {
	out := make([]model.SatelliteIdentity, len(d.elements))
	for i, e := range d.elements {
		out[i] = e.SatelliteIdentity
	}
	return out
}

func (d *Database) add(elems []Element) {
	for _, e := range elems {
		if _, dup := d.index[e.Number]; dup {
			continue
		}
		d.index[e.Number] = len(d.elements)
		d.elements = append(d.elements, e)
	}
}

// Discover lists the TLE files below each directory, keeping directory order
// and sorting names within a directory. Missing directories are skipped.
func Discover(dirs []string) ([]string, error) {
	var files []string
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		matches, err := doublestar.Glob(os.DirFS(dir), FilePattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", dir, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			files = append(files, filepath.Join(dir, filepath.FromSlash(m)))
		}
	}
	return files, nil
}

// Load reads file when set, otherwise every TLE file discovered under dirs.
func Load(ctx context.Context, dirs []string, file string, log logging.Logger) (*Database, error) {
	if log == nil {
		log = logging.Noop()
	}
	files := []string{file}
	if file == "" {
		var err error
		if files, err = Discover(dirs); err != nil {
			return nil, err
		}
	}

	db := &Database{index: make(map[int64]int)}
	for _, path := range files {
		elems, problems, err := ParseFile(path)
		if err != nil {
			if file != "" {
				return nil, err
			}
			log.Warn(ctx, "skipping unreadable TLE file", logging.String("path", path), logging.Err(err))
			continue
		}
		for _, p := range problems {
			log.Debug(ctx, "rejected TLE element set", logging.String("problem", p.String()))
		}
		db.Problems = append(db.Problems, problems...)
		db.add(elems)
	}
	if db.Len() == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoElements, strings.Join(files, ", "))
	}
	log.Info(ctx, "loaded TLE database",
		logging.Int("satellites", db.Len()),
		logging.Int("files", len(files)),
		logging.Int("rejected", len(db.Problems)),
	)
	return db, nil
}

// ParseFile reads the element sets in path.
func ParseFile(path string) ([]Element, []Problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Parse(f, path)
}

// Parse reads name, line 1, line 2 triples. Invalid triples are reported and
// skipped; blank lines between triples are ignored.
func Parse(r io.Reader, source string) ([]Element, []Problem, error) {
	sc := bufio.NewScanner(r)
	var (
		lines    []string
		starts   []int
		lineNo   int
		elems    []Element
		problems []Problem
	)
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r\n ")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		starts = append(starts, lineNo)
		if len(lines) < 3 {
			continue
		}
		e, err := parseElement(lines[0], lines[1], lines[2])
		if err != nil {
			problems = append(problems, Problem{Source: source, Line: starts[0], Reason: err.Error()})
			// Resynchronize on the next name line.
			lines, starts = lines[1:], starts[1:]
			continue
		}
		e.Source = source
		elems = append(elems, e)
		lines, starts = lines[:0], starts[:0]
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	if len(lines) > 0 {
		problems = append(problems, Problem{Source: source, Line: starts[0], Reason: "truncated element set"})
	}
	return elems, problems, nil
}

func parseElement(name, line1, line2 string) (Element, error) {
	if err := checkLine(line1, '1'); err != nil {
		return Element{}, fmt.Errorf("line 1: %w", err)
	}
	if err := checkLine(line2, '2'); err != nil {
		return Element{}, fmt.Errorf("line 2: %w", err)
	}
	n1, err := catalogNumber(line1)
	if err != nil {
		return Element{}, err
	}
	n2, err := catalogNumber(line2)
	if err != nil {
		return Element{}, err
	}
	if n1 != n2 {
		return Element{}, fmt.Errorf("catalog numbers differ: %d and %d", n1, n2)
	}
	name = strings.TrimSpace(strings.TrimPrefix(name, "0 "))
	if name == "" {
		name = strconv.FormatInt(n1, 10)
	}
	return Element{
		SatelliteIdentity: model.SatelliteIdentity{Number: n1, Name: name},
		Line1:             line1,
		Line2:             line2,
	}, nil
}

func checkLine(line string, kind byte) error {
	if len(line) < lineLength {
		return fmt.Errorf("too short (%d characters)", len(line))
	}
	if line[0] != kind || line[1] != ' ' {
		return fmt.Errorf("does not start with %q", string(kind)+" ")
	}
	want := line[lineLength-1]
	if want < '0' || want > '9' {
		return fmt.Errorf("checksum %q is not a digit", want)
	}
	if got := checksum(line[:lineLength-1]); got != int(want-'0') {
		return fmt.Errorf("checksum mismatch: computed %d, found %c", got, want)
	}
	return nil
}

// checksum is the modulo 10 sum of the digits, counting '-' as one.
func checksum(s string) int {
	sum := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

func catalogNumber(line string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(line[2:7]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed catalog number %q", line[2:7])
	}
	return n, nil
}
