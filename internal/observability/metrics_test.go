package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestDBCollectorRecordsLoadMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewDBCollector(reg)
	if err != nil {
		t.Fatalf("NewDBCollector: %v", err)
	}

	collector.SourceLoaded("shared")
	collector.SourceLoaded("shared")
	collector.SourceSkipped("primary")
	collector.ParseWarning("uplink")
	collector.TransponderOverflowed(3)
	collector.TransponderOverflowed(0)
	collector.Unmatched(2)

	if got := testutil.ToFloat64(collector.SourcesTotal.WithLabelValues("shared", "loaded")); got != 2 {
		t.Fatalf("sources loaded = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.SourcesTotal.WithLabelValues("primary", "skipped")); got != 1 {
		t.Fatalf("sources skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.ParseWarnings.WithLabelValues("uplink")); got != 1 {
		t.Fatalf("parse warnings = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.TransponderOverflow); got != 3 {
		t.Fatalf("overflow = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.UnmatchedSatellites); got != 2 {
		t.Fatalf("unmatched = %v, want 2", got)
	}
}

func TestDBCollectorRecordsSaves(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewDBCollector(reg)
	if err != nil {
		t.Fatalf("NewDBCollector: %v", err)
	}

	collector.Saved(4, 2*time.Millisecond)
	collector.SaveFailed()

	if got := testutil.ToFloat64(collector.EntriesWritten); got != 4 {
		t.Fatalf("entries written = %v, want 4", got)
	}
	if got := testutil.ToFloat64(collector.SaveFailures); got != 1 {
		t.Fatalf("save failures = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "transponderdb_save_duration_seconds", nil); count != 1 {
		t.Fatalf("save duration sample_count = %d, want 1", count)
	}
}

func TestSetEntryCountsReplacesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewDBCollector(reg)
	if err != nil {
		t.Fatalf("NewDBCollector: %v", err)
	}

	collector.SetEntryCounts(map[string]int{"shared": 5, "primary": 1})
	collector.SetEntryCounts(map[string]int{"primary": 2})

	if got := testutil.CollectAndCount(collector.EntriesByOrigin); got != 1 {
		t.Fatalf("gauge series = %d, want 1 after reset", got)
	}
	if got := testutil.ToFloat64(collector.EntriesByOrigin.WithLabelValues("primary")); got != 2 {
		t.Fatalf("primary entries = %v, want 2", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *DBCollector
	c.SourceLoaded("shared")
	c.ParseWarning("phase")
	c.SetEntryCounts(map[string]int{"shared": 1})
	c.Saved(1, time.Second)
	c.SaveFailed()
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewDBCollector(reg)
	if err != nil {
		t.Fatalf("first NewDBCollector: %v", err)
	}
	second, err := NewDBCollector(reg)
	if err != nil {
		t.Fatalf("second NewDBCollector: %v", err)
	}
	first.SaveFailed()
	if got := testutil.ToFloat64(second.SaveFailures); got != 1 {
		t.Fatalf("second collector does not share registered counter, got %v", got)
	}
}

func TestMetricsHandlerExposesDatabaseMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewDBCollector(reg)
	if err != nil {
		t.Fatalf("NewDBCollector: %v", err)
	}
	collector.SourceLoaded("primary")
	collector.ParseWarning("squint")
	collector.SetEntryCounts(map[string]int{"primary": 7})
	collector.Saved(1, time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"transponderdb_sources_total",
		"transponderdb_parse_warnings_total",
		"transponderdb_entries",
		"transponderdb_entries_written_total",
		"transponderdb_save_duration_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
	if !strings.Contains(body, `transponderdb_entries{origin="primary"} 7`) {
		t.Fatalf("/metrics output missing entry gauge value: %s", body)
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
