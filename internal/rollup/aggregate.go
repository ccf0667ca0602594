package rollup

import (
	"time"

	"github.com/genc-murat/weatherstation/internal/core/models"
)

// Average builds a sample stamped ts whose fields are the arithmetic means
// of the input. A field is averaged over the samples that carry it.
func Average(samples []models.Sample, ts time.Time) models.Sample {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, s := range samples {
		for name, v := range s.Fields() {
			sums[name] += v
			counts[name]++
		}
	}

	means := make(map[string]float64, len(sums))
	for name, sum := range sums {
		means[name] = sum / float64(counts[name])
	}
	return models.NewSample(ts, means)
}

// pruneBefore drops leading samples stamped before cutoff. Histories are
// kept in arrival order, so only the front is ever trimmed.
func pruneBefore(samples []models.Sample, cutoff time.Time) []models.Sample {
	return dropFront(samples, func(ts time.Time) bool { return ts.Before(cutoff) })
}

// pruneThrough drops leading samples stamped at or before cutoff.
func pruneThrough(samples []models.Sample, cutoff time.Time) []models.Sample {
	return dropFront(samples, func(ts time.Time) bool { return !ts.After(cutoff) })
}

func dropFront(samples []models.Sample, expired func(time.Time) bool) []models.Sample {
	i := 0
	for i < len(samples) && expired(samples[i].Timestamp()) {
		i++
	}
	if i == 0 {
		return samples
	}
	return append([]models.Sample(nil), samples[i:]...)
}

// sameHour compares calendar date and hour-of-day in ref's location.
func sameHour(t, ref time.Time) bool {
	return sameDay(t, ref) && t.In(ref.Location()).Hour() == ref.Hour()
}

// sameDay compares year, month and day in ref's location.
func sameDay(t, ref time.Time) bool {
	y1, m1, d1 := t.In(ref.Location()).Date()
	y2, m2, d2 := ref.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func startOfHour(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), 0, 0, 0, t.Location())
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
