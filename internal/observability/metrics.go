package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DBCollector bundles Prometheus metrics for transponder database loading and
// saving, and exposes them over HTTP when asked to.
type DBCollector struct {
	gatherer prometheus.Gatherer

	SourcesTotal        *prometheus.CounterVec
	ParseWarnings       *prometheus.CounterVec
	TransponderOverflow prometheus.Counter
	UnmatchedSatellites prometheus.Counter
	EntriesByOrigin     *prometheus.GaugeVec
	EntriesWritten      prometheus.Counter
	SaveFailures        prometheus.Counter
	SaveDurations       prometheus.Histogram
}

// NewDBCollector registers database metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewDBCollector(reg prometheus.Registerer) (*DBCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	sources, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transponderdb_sources_total",
		Help: "Database files considered during load, labeled by tier and result (loaded or skipped).",
	}, []string{"tier", "result"}), "transponderdb_sources_total")
	if err != nil {
		return nil, err
	}

	warnings, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transponderdb_parse_warnings_total",
		Help: "Malformed fields replaced by their default value, labeled by field.",
	}, []string{"field"}), "transponderdb_parse_warnings_total")
	if err != nil {
		return nil, err
	}

	overflow, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transponderdb_transponder_overflow_total",
		Help: "Transponder records dropped because a satellite exceeded the configured limit.",
	}), "transponderdb_transponder_overflow_total")
	if err != nil {
		return nil, err
	}

	unmatched, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transponderdb_unmatched_satellites_total",
		Help: "Satellite blocks whose catalog number has no TLE identity.",
	}), "transponderdb_unmatched_satellites_total")
	if err != nil {
		return nil, err
	}

	byOrigin, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "transponderdb_entries",
		Help: "Current number of database entries, labeled by origin.",
	}, []string{"origin"}), "transponderdb_entries")
	if err != nil {
		return nil, err
	}

	written, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transponderdb_entries_written_total",
		Help: "Entries serialized to the primary database file.",
	}), "transponderdb_entries_written_total")
	if err != nil {
		return nil, err
	}

	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transponderdb_save_failures_total",
		Help: "Failed attempts to write the primary database file.",
	}), "transponderdb_save_failures_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "transponderdb_save_duration_seconds",
		Help:    "Time spent writing the primary database file.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
	}), "transponderdb_save_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &DBCollector{
		gatherer:            gatherer,
		SourcesTotal:        sources,
		ParseWarnings:       warnings,
		TransponderOverflow: overflow,
		UnmatchedSatellites: unmatched,
		EntriesByOrigin:     byOrigin,
		EntriesWritten:      written,
		SaveFailures:        failures,
		SaveDurations:       durations,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *DBCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// The methods below satisfy transponderdb.MetricsRecorder. They tolerate a nil
// receiver so callers can pass an unset collector.

func (c *DBCollector) SourceLoaded(tier string) {
	if c == nil {
		return
	}
	c.SourcesTotal.WithLabelValues(tier, "loaded").Inc()
}

func (c *DBCollector) SourceSkipped(tier string) {
	if c == nil {
		return
	}
	c.SourcesTotal.WithLabelValues(tier, "skipped").Inc()
}

func (c *DBCollector) ParseWarning(field string) {
	if c == nil {
		return
	}
	c.ParseWarnings.WithLabelValues(field).Inc()
}

func (c *DBCollector) TransponderOverflowed(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.TransponderOverflow.Add(float64(n))
}

func (c *DBCollector) Unmatched(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.UnmatchedSatellites.Add(float64(n))
}

// SetEntryCounts replaces the per-origin entry gauges.
func (c *DBCollector) SetEntryCounts(counts map[string]int) {
	if c == nil {
		return
	}
	c.EntriesByOrigin.Reset()
	for origin, n := range counts {
		c.EntriesByOrigin.WithLabelValues(origin).Set(float64(n))
	}
}

func (c *DBCollector) Saved(written int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.EntriesWritten.Add(float64(written))
	c.SaveDurations.Observe(elapsed.Seconds())
}

func (c *DBCollector) SaveFailed() {
	if c == nil {
		return
	}
	c.SaveFailures.Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}
