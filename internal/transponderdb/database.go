// Package transponderdb loads, merges, edits and persists the flyby
// transponder database.
//
// The database is index-aligned with the TLE identity list: entry i always
// describes identity i. Entries are assembled from a writable primary file
// and any number of read-only shared files, each shadowing lower priority
// ones entry by entry. Every entry remembers where its content came from so
// that Save only persists what the user actually changed.
//
// A Database is meant to be owned by a single session and is not safe for
// concurrent mutation.
package transponderdb

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/flyby/internal/logging"
	"github.com/signalsfoundry/flyby/internal/observability"
	"github.com/signalsfoundry/flyby/model"
)

// MetricsRecorder receives load and save events.
type MetricsRecorder interface {
	SourceLoaded(tier string)
	SourceSkipped(tier string)
	ParseWarning(field string)
	TransponderOverflowed(n int)
	Unmatched(n int)
	SetEntryCounts(counts map[string]int)
	Saved(written int, elapsed time.Duration)
	SaveFailed()
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger used for load and save events.
func WithLogger(l logging.Logger) Option {
	return func(d *Database) {
		if l != nil {
			d.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(d *Database) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithParseOptions sets the options used when reading database files.
func WithParseOptions(opts ParseOptions) Option {
	return func(d *Database) {
		d.parseOpts = opts
	}
}

// Database is the in-memory transponder database.
type Database struct {
	identities  []model.SatelliteIdentity
	entries     []model.SatDbEntry
	baseline    []model.SatDbEntry
	loaded      bool
	modified    bool
	primaryPath string

	parseOpts ParseOptions
	log       logging.Logger
	metrics   MetricsRecorder
}

// New returns an empty database for identities that saves to primaryPath.
func New(identities []model.SatelliteIdentity, primaryPath string, opts ...Option) *Database {
	ids := append([]model.SatelliteIdentity(nil), identities...)
	d := &Database{
		identities:  ids,
		entries:     emptyEntries(ids),
		baseline:    emptyEntries(ids),
		primaryPath: primaryPath,
		log:         logging.Noop(),
		metrics:     noopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Database) apply(m *Merged) {
	d.entries = m.Entries
	d.baseline = m.Baseline
	d.loaded = m.Loaded
	d.modified = false
}

// Len is the number of satellites, always equal to the identity list length.
func (d *Database) Len() int { return len(d.entries) }

// Loaded reports whether any source contributed data.
func (d *Database) Loaded() bool { return d.loaded }

// Modified reports whether the session changed anything that Save has not
// persisted yet.
func (d *Database) Modified() bool { return d.modified }

// PrimaryPath is the file Save writes to.
func (d *Database) PrimaryPath() string { return d.primaryPath }

// Identities returns a copy of the identity list.
func (d *Database) Identities() []model.SatelliteIdentity {
	return append([]model.SatelliteIdentity(nil), d.identities...)
}

// Identity returns the identity at index i.
func (d *Database) Identity(i int) (model.SatelliteIdentity, error) {
	if err := d.check(i); err != nil {
		return model.SatelliteIdentity{}, err
	}
	return d.identities[i], nil
}

// IndexOf returns the index of the first identity with the catalog number, or
// -1.
func (d *Database) IndexOf(number int64) int {
	return model.IndexOf(d.identities, number)
}

// Entry returns a copy of the entry at index i. Unloaded satellites return an
// empty entry with OriginNone.
func (d *Database) Entry(i int) (model.SatDbEntry, error) {
	if err := d.check(i); err != nil {
		return model.SatDbEntry{}, err
	}
	return d.entries[i].Clone(), nil
}

// Default returns the shared (system) content for index i, or an empty entry
// with OriginNone when no shared file defines it.
func (d *Database) Default(i int) (model.SatDbEntry, error) {
	if err := d.check(i); err != nil {
		return model.SatDbEntry{}, err
	}
	return d.baseline[i].Clone(), nil
}

// Set replaces the content at index i and marks it dirty. Undefined
// transponders are dropped and the attitude is normalized. Setting content
// equal to the current one changes nothing and returns false.
func (d *Database) Set(i int, e model.SatDbEntry) (bool, error) {
	if err := d.check(i); err != nil {
		return false, err
	}
	next := compact(e)
	next.SatelliteNumber = d.identities[i].Number
	if !finiteEntry(next) {
		return false, fmt.Errorf("%w: satellite %d", ErrInvalidValue, next.SatelliteNumber)
	}

	cur := d.entries[i]
	if cur.Equal(next) {
		return false, nil
	}
	next.Provenance = model.Provenance{Origin: cur.Provenance.Origin, Dirty: true}
	d.entries[i] = next
	d.modified = true
	return true, nil
}

// RestoreDefault resets index i to its shared content, discarding user data.
// The entry is no longer a save candidate, so the next Save drops it from the
// primary file and the system data shows through again.
func (d *Database) RestoreDefault(i int) error {
	if err := d.check(i); err != nil {
		return err
	}
	cur := d.entries[i]
	def := d.baseline[i].Clone()
	if cur.Provenance == def.Provenance && cur.Equal(def) {
		return nil
	}
	d.entries[i] = def
	d.modified = true
	return nil
}

// WriteMask decides which entries belong in the primary file:
//
//   - only entries loaded from the primary file or edited this session are
//     candidates; shared data and restored defaults never are;
//   - a candidate identical to the shared default is left out, so reverting
//     to system data does not duplicate it;
//   - an empty candidate is kept only when it has to override shared data.
func (d *Database) WriteMask() []bool {
	mask := make([]bool, len(d.entries))
	for i, e := range d.entries {
		p := e.Provenance
		if p.Origin != model.OriginPrimary && !p.Dirty {
			continue
		}
		base := d.baseline[i]
		hasDefault := base.Provenance.Origin == model.OriginShared
		if hasDefault && e.Equal(base) {
			continue
		}
		if e.Empty() && !hasDefault {
			continue
		}
		mask[i] = true
	}
	return mask
}

// Save writes the primary file using WriteMask. On success written entries
// become clean primary entries and the remaining candidates fall back to the
// origin they will be re-read from. A failed save leaves the database
// untouched and returns an error wrapping ErrWriteFailed.
func (d *Database) Save(ctx context.Context) (int, error) {
	ctx, span := observability.StartSpan(ctx, "transponderdb.save", attribute.String("path", d.primaryPath))
	defer span.End()

	start := time.Now()
	mask := d.WriteMask()
	n, err := WriteFile(d.primaryPath, d.identities, d.entries, mask)
	if err != nil {
		d.metrics.SaveFailed()
		observability.FailSpan(span, err)
		d.log.Error(ctx, "failed to save transponder database", logging.String("path", d.primaryPath), logging.Err(err))
		return 0, err
	}

	for i := range d.entries {
		p := d.entries[i].Provenance
		switch {
		case mask[i]:
			d.entries[i].Provenance = model.Provenance{Origin: model.OriginPrimary}
		case p.Dirty || p.Origin == model.OriginPrimary:
			d.entries[i].Provenance = model.Provenance{Origin: d.baseline[i].Provenance.Origin}
		}
	}
	d.modified = false

	elapsed := time.Since(start)
	d.metrics.Saved(n, elapsed)
	d.metrics.SetEntryCounts(d.originCounts())
	span.SetAttributes(attribute.Int("written", n))
	d.log.Info(ctx, "saved transponder database",
		logging.String("path", d.primaryPath),
		logging.Int("written", n),
		logging.String("elapsed", elapsed.String()),
	)
	return n, nil
}

func (d *Database) check(i int) error {
	if i < 0 || i >= len(d.entries) {
		return fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, i, len(d.entries))
	}
	return nil
}

func (d *Database) originCounts() map[string]int {
	counts := map[string]int{}
	for _, e := range d.entries {
		if e.Provenance.Origin == model.OriginNone {
			continue
		}
		counts[e.Provenance.Origin.String()]++
	}
	return counts
}

// compact returns a normalized copy of e holding only defined transponders
// with single-line names, the shape the parser produces.
func compact(e model.SatDbEntry) model.SatDbEntry {
	out := e.Clone()
	out.Normalize()
	out.Transponders = nil
	for _, t := range e.Transponders {
		if !t.Defined() {
			continue
		}
		t.Name = transponderName(t.Name)
		out.Transponders = append(out.Transponders, t)
	}
	return out
}

func finiteEntry(e model.SatDbEntry) bool {
	vals := []float64{e.AttitudeLat, e.AttitudeLon}
	for _, t := range e.Transponders {
		vals = append(vals, t.UplinkStart, t.UplinkEnd, t.DownlinkStart, t.DownlinkEnd)
	}
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

type noopRecorder struct{}

func (noopRecorder) SourceLoaded(string)           {}
func (noopRecorder) SourceSkipped(string)          {}
func (noopRecorder) ParseWarning(string)           {}
func (noopRecorder) TransponderOverflowed(int)     {}
func (noopRecorder) Unmatched(int)                 {}
func (noopRecorder) SetEntryCounts(map[string]int) {}
func (noopRecorder) Saved(int, time.Duration)      {}
func (noopRecorder) SaveFailed()                   {}
