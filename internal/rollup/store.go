package rollup

import (
	"sync"
	"time"

	"github.com/genc-murat/weatherstation/internal/core/models"
	"github.com/genc-murat/weatherstation/internal/metrics"
)

const (
	// HourlyWindow bounds how far hourly history reaches back from its newest entry.
	HourlyWindow = 24 * time.Hour
	// DailyWindowMonths bounds daily history in calendar months.
	DailyWindowMonths = 1
)

// Store keeps the latest sample plus three resolutions derived from it.
//
// All four views are guarded by a single lock: AddRecord and LoadSnapshot
// hold it exclusively, Snapshot holds it shared and copies the views out.
type Store struct {
	mu sync.RWMutex

	current    *models.Sample
	hourBucket []models.Sample
	hourly     []models.Sample
	daily      []models.Sample

	// hourMarker is the timestamp of the last accepted sample and decides
	// which hour and day are currently being accumulated.
	hourMarker time.Time

	now     func() time.Time
	metrics *metrics.Metrics
}

type Option func(*Store)

// WithClock sets the clock used to seed the hour marker.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func NewStore(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.hourMarker = s.now()
	return s
}

// AddRecord makes sample the current one and rolls the hour and day buckets
// over when sample starts a new calendar hour or date relative to the marker.
// Rollovers are only detected here; a stalled sampler delays them.
func (s *Store) AddRecord(sample models.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := sample
	s.current = &cur

	ts := sample.Timestamp()
	if !sameHour(ts, s.hourMarker) {
		s.rollHour()
		if !sameDay(ts, s.hourMarker) {
			s.rollDay()
		}
	}

	s.hourBucket = append(s.hourBucket, sample)
	s.hourMarker = ts
	s.metrics.SampleAdded()
}

// rollHour averages the hour bucket into hourly history. An empty bucket
// produces nothing.
func (s *Store) rollHour() {
	if len(s.hourBucket) == 0 {
		s.metrics.RollupSkipped("hour")
		return
	}

	avg := Average(s.hourBucket, startOfHour(s.hourMarker))
	s.hourBucket = nil

	s.hourly = append(s.hourly, avg)
	s.hourly = pruneBefore(s.hourly, avg.Timestamp().Add(-HourlyWindow))
	s.metrics.Rollup("hour")
}

// rollDay averages the hourly entries that fall on the marker's calendar
// date into daily history.
func (s *Store) rollDay() {
	var day []models.Sample
	for _, h := range s.hourly {
		if sameDay(h.Timestamp(), s.hourMarker) {
			day = append(day, h)
		}
	}
	if len(day) == 0 {
		s.metrics.RollupSkipped("day")
		return
	}

	avg := Average(day, startOfDay(s.hourMarker))
	s.daily = append(s.daily, avg)
	// exclusive: a full month back from May 1 keeps Apr 2 through May 1
	s.daily = pruneThrough(s.daily, avg.Timestamp().AddDate(0, -DailyWindowMonths, 0))
	s.metrics.Rollup("day")
}

// Snapshot returns a copy of all four views that shares no slices with the
// store.
func (s *Store) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.Snapshot{
		HourBucket:    copySamples(s.hourBucket),
		HourlyHistory: copySamples(s.hourly),
		DailyHistory:  copySamples(s.daily),
	}
	if s.current != nil {
		cur := *s.current
		snap.Current = &cur
	}
	return snap
}

// LoadSnapshot replaces every view with the contents of snap, dropping
// entries whose timestamp was already seen in the same view. The hour
// marker moves to the current sample, or to now when there is none.
func (s *Store) LoadSnapshot(snap models.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	s.hourMarker = s.now()
	if snap.Current != nil {
		cur := *snap.Current
		s.current = &cur
		s.hourMarker = cur.Timestamp()
	}

	s.hourBucket = models.Dedupe(snap.HourBucket)
	s.hourly = models.Dedupe(snap.HourlyHistory)
	s.daily = models.Dedupe(snap.DailyHistory)
}

// HourMarker reports the instant that decides the hour being accumulated.
func (s *Store) HourMarker() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hourMarker
}

func copySamples(in []models.Sample) []models.Sample {
	out := make([]models.Sample, len(in))
	copy(out, in)
	return out
}
