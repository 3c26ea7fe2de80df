package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/flyby/internal/config"
	"github.com/signalsfoundry/flyby/internal/logging"
	"github.com/signalsfoundry/flyby/internal/observability"
	"github.com/signalsfoundry/flyby/internal/searchpath"
	"github.com/signalsfoundry/flyby/internal/tledb"
	"github.com/signalsfoundry/flyby/internal/transponderdb"
)

// app holds what one flyby-db invocation sets up before running a command.
type app struct {
	stderr io.Writer

	cfg        *config.Config
	configFile string
	paths      searchpath.Paths
	log        logging.Logger
	collector  *observability.DBCollector

	tle *tledb.Database
	db  *transponderdb.Database

	shutdownTracing func(context.Context) error
	metricsSrv      *http.Server
}

// setup loads configuration and wires logging, metrics and tracing.
func (a *app) setup(ctx context.Context, opts config.LoadOptions) (context.Context, error) {
	cfg, used, err := config.Load(opts)
	if err != nil {
		return ctx, err
	}
	a.cfg = cfg
	a.configFile = used
	a.paths = searchpath.Resolve(cfg.SearchEnv())

	logCfg := cfg.Logging()
	logCfg.Output = a.stderr
	ctx, a.log = logging.WithSessionLogger(ctx, logging.New(logCfg))

	a.collector, err = observability.NewDBCollector(prometheus.NewRegistry())
	if err != nil {
		return ctx, fmt.Errorf("initialise metrics: %w", err)
	}
	if cfg.Metrics.Addr != "" {
		a.metricsSrv = serveMetrics(ctx, cfg.Metrics.Addr, a.collector, a.log)
	}

	tracing := cfg.TracingSettings()
	tracing.Output = a.stderr
	a.shutdownTracing, err = observability.InitTracing(ctx, tracing, a.log)
	if err != nil {
		return ctx, fmt.Errorf("initialise tracing: %w", err)
	}
	return ctx, nil
}

// load reads the TLE identity list and the transponder database.
func (a *app) load(ctx context.Context) error {
	if a.db != nil {
		return nil
	}
	tle, err := tledb.Load(ctx, a.paths.TLEDirs(), a.cfg.TLE.File, a.log)
	if err != nil {
		return fmt.Errorf("load TLE database: %w", err)
	}
	db, err := transponderdb.Load(ctx, a.paths, tle.Identities(),
		transponderdb.WithLogger(a.log),
		transponderdb.WithMetricsRecorder(a.collector),
		transponderdb.WithParseOptions(a.cfg.ParseOptions()),
	)
	if err != nil {
		return fmt.Errorf("load transponder database: %w", err)
	}
	a.tle, a.db = tle, db
	return nil
}

// lookup resolves a catalog number to its database index.
func (a *app) lookup(number int64) (int, error) {
	i := a.db.IndexOf(number)
	if i < 0 {
		return -1, fmt.Errorf("%w: %d", errUnknownSatellite, number)
	}
	return i, nil
}

// save persists the database when the session changed something.
func (a *app) save(ctx context.Context) (int, error) {
	if !a.db.Modified() {
		return 0, nil
	}
	return a.db.Save(ctx)
}

func (a *app) close(ctx context.Context) {
	if a.log == nil {
		return
	}
	observability.ShutdownWithTimeout(ctx, a.shutdownTracing, a.log)
	if a.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.metricsSrv.Shutdown(shutdownCtx)
	}
}

var errUnknownSatellite = errors.New("satellite not in TLE database")

func serveMetrics(ctx context.Context, addr string, collector *observability.DBCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(ctx, "metrics server exited", logging.Err(err))
		}
	}()

	log.Debug(ctx, "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, transponderdb.ErrWriteFailed) {
		return 3
	}
	return 1
}
