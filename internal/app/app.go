package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/genc-murat/weatherstation/internal/config"
	"github.com/genc-murat/weatherstation/internal/logger"
	"github.com/genc-murat/weatherstation/internal/metrics"
	"github.com/genc-murat/weatherstation/internal/rollup"
	"github.com/genc-murat/weatherstation/internal/sampler"
	"github.com/genc-murat/weatherstation/internal/server"
	"github.com/genc-murat/weatherstation/internal/storage"
)

const finalFlushTimeout = 5 * time.Second

// App wires the store, its persistence, the sampler and the query server
// into one node.
type App struct {
	cfg       *config.Config
	log       *logrus.Logger
	logCloser io.Closer

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	store   *rollup.Store
	storage *storage.FileStorage
	server  *server.Server
	sampler *sampler.Sampler

	metricsSrv  *http.Server
	metricsAddr net.Addr

	ready     chan struct{}
	readyOnce sync.Once
}

type Option func(*options)

type options struct {
	source sampler.Source
	log    *logrus.Logger
	clock  func() time.Time
}

// WithSource replaces the source named in the config.
func WithSource(src sampler.Source) Option {
	return func(o *options) { o.source = src }
}

// WithLogger replaces the logger built from the logging section.
func WithLogger(log *logrus.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:      cfg,
		log:      o.log,
		registry: prometheus.NewRegistry(),
		ready:    make(chan struct{}),
	}
	if a.log == nil {
		log, closer, err := logger.New(cfg.Logging)
		if err != nil {
			return nil, err
		}
		a.log, a.logCloser = log, closer
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.NewMetrics(a.registry)

	a.store = rollup.NewStore(rollup.WithClock(o.clock), rollup.WithMetrics(a.metrics))

	if cfg.Storage.Enabled {
		fs, err := storage.NewFileStorage(cfg.Storage.Path,
			storage.WithLogger(a.log),
			storage.WithMetrics(a.metrics),
			storage.WithClock(o.clock),
		)
		if err != nil {
			a.closeLog()
			return nil, err
		}
		a.storage = fs
	}

	a.server = server.NewServer(a.store, server.ServerConfig{
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxRequestSize: cfg.Limits.MaxRequestSize,
	}, a.log, a.metrics)

	src := o.source
	if src == nil && cfg.Sampler.Source == "simulated" {
		src = sampler.NewSimulatedSource(cfg.Sampler.Fields, cfg.Sampler.Seed)
	}
	if src != nil {
		sopts := []sampler.Option{
			sampler.WithClock(o.clock),
			sampler.WithLogger(a.log),
			sampler.WithMetrics(a.metrics),
		}
		if a.storage != nil {
			sopts = append(sopts, sampler.WithStorage(a.storage))
		}
		a.sampler = sampler.New(src, a.store, cfg.Sampler.Interval, sopts...)
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		a.metricsSrv = &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
		}
	}

	return a, nil
}

// Ready is closed once the listeners are bound and persisted state is
// loaded, or when Run returns early because either step failed.
func (a *App) Ready() <-chan struct{} { return a.ready }

// Addr is the query server's bound address.
func (a *App) Addr() net.Addr { return a.server.Addr() }

// MetricsAddr is the metrics endpoint's bound address, nil when disabled.
func (a *App) MetricsAddr() net.Addr { return a.metricsAddr }

func (a *App) Store() *rollup.Store { return a.store }

// Run restores persisted state, serves until ctx is done and then shuts
// down: the query server drains, the sampler stops and a last flush
// records the final state.
func (a *App) Run(ctx context.Context) error {
	defer a.markReady()
	defer a.closeLog()
	if a.storage != nil {
		defer a.storage.Close()
	}

	if err := a.restore(ctx); err != nil {
		return err
	}

	if err := a.server.Listen(a.cfg.Address()); err != nil {
		return fmt.Errorf("listen query server: %w", err)
	}

	var metricsLn net.Listener
	if a.metricsSrv != nil {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Metrics.Port))
		if err != nil {
			a.server.Shutdown(context.Background())
			return fmt.Errorf("listen metrics: %w", err)
		}
		metricsLn = ln
		a.metricsAddr = ln.Addr()
		a.log.WithFields(logrus.Fields{
			"address": ln.Addr().String(),
			"path":    a.cfg.Metrics.Path,
		}).Info("Metrics endpoint listening")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.Serve(); err != nil && !errors.Is(err, server.ErrServerClosed) {
			return fmt.Errorf("query server: %w", err)
		}
		return nil
	})

	if a.sampler != nil {
		g.Go(func() error { return a.sampler.Run(gctx) })
	} else {
		a.log.Info("No sample source configured, serving persisted state only")
	}

	if a.metricsSrv != nil {
		g.Go(func() error {
			if err := a.metricsSrv.Serve(metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics endpoint: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	a.markReady()
	a.log.WithField("environment", a.cfg.Environment).Info("Weather station node started")

	err := g.Wait()
	if ferr := a.finalFlush(); ferr != nil {
		err = errors.Join(err, ferr)
	}
	a.log.WithField("uptime", a.metrics.Uptime().Round(time.Second)).Info("Weather station node stopped")
	return err
}

func (a *App) restore(ctx context.Context) error {
	if a.storage == nil {
		return nil
	}
	snap, err := a.storage.Load(ctx)
	if err != nil {
		return fmt.Errorf("load persisted state: %w", err)
	}
	a.store.LoadSnapshot(snap)
	return nil
}

func (a *App) shutdown() error {
	a.log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("query server shutdown: %w", err))
	}
	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) finalFlush() error {
	if a.storage == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
	defer cancel()

	if err := a.storage.Flush(ctx, a.store.Snapshot()); err != nil {
		a.log.WithError(err).Error("Final flush failed")
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}

func (a *App) markReady() {
	a.readyOnce.Do(func() { close(a.ready) })
}

func (a *App) closeLog() {
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}
