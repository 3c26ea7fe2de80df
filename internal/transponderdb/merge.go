package transponderdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/flyby/internal/logging"
	"github.com/signalsfoundry/flyby/internal/observability"
	"github.com/signalsfoundry/flyby/internal/searchpath"
	"github.com/signalsfoundry/flyby/model"
)

// Merged is the outcome of folding parse results together.
type Merged struct {
	// Entries is index-aligned with the identity list.
	Entries []model.SatDbEntry
	// Baseline holds what the shared sources alone define, used to decide
	// whether a user entry merely duplicates system data.
	Baseline []model.SatDbEntry
	// Loaded is set when any source matched at least one satellite.
	Loaded bool
}

// Merge builds the unified database. shared is ordered from highest to
// lowest priority, as returned by the search path resolver; nil results
// (unreadable sources) are ignored. Shared results are applied lowest
// priority first and the primary result last, each replacing whole entries.
func Merge(identities []model.SatelliteIdentity, shared []*ParseResult, primary *ParseResult) (*Merged, error) {
	m := &Merged{
		Entries:  emptyEntries(identities),
		Baseline: emptyEntries(identities),
	}

	for i := len(shared) - 1; i >= 0; i-- {
		if shared[i] == nil {
			continue
		}
		if err := m.apply(identities, shared[i], model.OriginShared); err != nil {
			return nil, err
		}
	}

	for i := range m.Baseline {
		m.Entries[i] = m.Baseline[i].Clone()
	}

	if primary != nil {
		if err := m.apply(identities, primary, model.OriginPrimary); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Merged) apply(identities []model.SatelliteIdentity, res *ParseResult, origin model.Origin) error {
	target := m.Entries
	if origin == model.OriginShared {
		target = m.Baseline
	}
	for _, idx := range res.Indices() {
		entry := res.Entries[idx]
		if idx < 0 || idx >= len(identities) {
			return fmt.Errorf("%w: index %d from %s", ErrIndexOutOfRange, idx, res.Source)
		}
		if identities[idx].Number != entry.SatelliteNumber {
			return fmt.Errorf("%w: index %d holds satellite %d, entry from %s is for %d",
				ErrIndexMismatch, idx, identities[idx].Number, res.Source, entry.SatelliteNumber)
		}
		entry = entry.Clone()
		entry.Provenance = model.Provenance{Origin: origin}
		target[idx] = entry
		m.Loaded = true
	}
	return nil
}

func emptyEntries(identities []model.SatelliteIdentity) []model.SatDbEntry {
	out := make([]model.SatDbEntry, len(identities))
	for i, id := range identities {
		out[i] = model.SatDbEntry{SatelliteNumber: id.Number}
	}
	return out
}

// Load sweeps the search paths, parses every readable database file against
// identities and merges them. Unreadable files are logged and skipped; the
// only error returned is an identity mismatch during merge.
func Load(ctx context.Context, paths searchpath.Paths, identities []model.SatelliteIdentity, opts ...Option) (*Database, error) {
	db := New(identities, paths.PrimaryDB(), opts...)

	ctx, span := observability.StartSpan(ctx, "transponderdb.load",
		attribute.Int("identities", len(identities)),
		attribute.Int("shared_sources", len(paths.Shared)),
	)
	defer span.End()

	sharedFiles := paths.SharedDBs()
	shared := make([]*ParseResult, len(sharedFiles))
	for i, path := range sharedFiles {
		shared[i] = db.parseSource(ctx, path, model.OriginShared)
	}
	primary := db.parseSource(ctx, paths.PrimaryDB(), model.OriginPrimary)

	merged, err := Merge(identities, shared, primary)
	if err != nil {
		observability.FailSpan(span, err)
		return nil, err
	}
	db.apply(merged)

	counts := db.originCounts()
	db.metrics.SetEntryCounts(counts)
	db.log.Info(ctx, "transponder database loaded",
		logging.Int("satellites", db.Len()),
		logging.Int("primary_entries", counts[model.OriginPrimary.String()]),
		logging.Int("shared_entries", counts[model.OriginShared.String()]),
		logging.Bool("loaded", db.Loaded()),
	)
	return db, nil
}

// parseSource parses one file, logging and counting the outcome. It returns
// nil when the file is unavailable.
func (d *Database) parseSource(ctx context.Context, path string, origin model.Origin) *ParseResult {
	tier := origin.String()
	_, span := observability.StartSpan(ctx, "transponderdb.parse",
		attribute.String("path", path),
		attribute.String("tier", tier),
	)
	defer span.End()

	res, err := ParseFile(path, d.identities, d.parseOpts)
	if err != nil {
		d.metrics.SourceSkipped(tier)
		if errors.Is(err, fs.ErrNotExist) {
			d.log.Debug(ctx, "no transponder database at location", logging.String("path", path), logging.String("tier", tier))
		} else {
			span.RecordError(err)
			d.log.Warn(ctx, "skipping transponder database", logging.String("path", path), logging.String("tier", tier), logging.Err(err))
		}
		return nil
	}

	d.metrics.SourceLoaded(tier)
	d.metrics.Unmatched(len(res.Unmatched))
	for _, w := range res.Warnings {
		d.metrics.ParseWarning(w.Field)
		d.log.Debug(ctx, "malformed field replaced by default",
			logging.String("path", path),
			logging.Int("line", w.Line),
			logging.String("field", w.Field),
			logging.String("value", w.Value),
		)
	}
	for _, o := range res.Overflows {
		d.metrics.TransponderOverflowed(o.Dropped)
		d.log.Warn(ctx, "transponder limit exceeded; extra transponders dropped",
			logging.String("path", path),
			logging.Int64("satellite", o.SatelliteNumber),
			logging.Int("dropped", o.Dropped),
			logging.Int("limit", d.parseOpts.MaxTransponders),
		)
	}
	span.SetAttributes(
		attribute.Int("entries", len(res.Entries)),
		attribute.Int("warnings", len(res.Warnings)),
	)
	d.log.Debug(ctx, "parsed transponder database",
		logging.String("path", path),
		logging.String("tier", tier),
		logging.Int("entries", len(res.Entries)),
		logging.Int("unmatched", len(res.Unmatched)),
	)
	return res
}
