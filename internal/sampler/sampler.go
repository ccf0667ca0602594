package sampler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/genc-murat/weatherstation/internal/core/models"
	"github.com/genc-murat/weatherstation/internal/core/ports"
	"github.com/genc-murat/weatherstation/internal/metrics"
)

// Sampler reads the source on a fixed period, records the reading and then
// flushes the store once per cycle. Cycles run one after another, so
// flushes never overlap.
type Sampler struct {
	source   Source
	store    ports.Store
	storage  ports.Storage
	interval time.Duration

	now     func() time.Time
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

type Option func(*Sampler)

// WithStorage enables the per-cycle flush.
func WithStorage(st ports.Storage) Option {
	return func(s *Sampler) { s.storage = st }
}

func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Sampler) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sampler) { s.metrics = m }
}

func New(source Source, store ports.Store, interval time.Duration, opts ...Option) *Sampler {
	s := &Sampler{
		source:   source,
		store:    store,
		interval: interval,
		now:      time.Now,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "sampler")
	return s
}

// Run samples until ctx is done. It returns nil on cancellation.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval).Info("Sampler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Sampler stopping")
			return nil
		case <-ticker.C:
			if err := s.Cycle(ctx); err != nil && ctx.Err() == nil {
				s.log.WithError(err).Warn("Sampling cycle failed")
			}
		}
	}
}

// Cycle takes one reading, adds it to the store and flushes. A failed read
// skips the cycle; a failed flush is reported but the sample stays recorded.
func (s *Sampler) Cycle(ctx context.Context) error {
	fields, err := s.source.Read(ctx)
	if err != nil {
		s.metrics.SensorError()
		return fmt.Errorf("read source: %w", err)
	}

	sample := models.NewSample(s.now(), fields)
	s.store.AddRecord(sample)

	if s.storage == nil {
		return nil
	}
	if err := s.storage.Flush(ctx, s.store.Snapshot()); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
