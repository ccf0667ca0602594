package models

// View names one of the four retained resolutions.
type View string

const (
	ViewCurrent View = "current"
	ViewHour    View = "hour"
	ViewDay     View = "day"
	ViewMonth   View = "month"
)

// Snapshot is a point-in-time copy of the rollup store.
//
// HourBucket holds the raw samples of the hour being accumulated,
// HourlyHistory the hourly averages of the last 24 hours and DailyHistory
// the daily averages of the last month. Current is nil before the first sample.
type Snapshot struct {
	Current       *Sample
	HourBucket    []Sample
	HourlyHistory []Sample
	DailyHistory  []Sample
}

// Clone returns a copy that shares no slices with s. Samples themselves are
// immutable and are shared.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		HourBucket:    cloneSamples(s.HourBucket),
		HourlyHistory: cloneSamples(s.HourlyHistory),
		DailyHistory:  cloneSamples(s.DailyHistory),
	}
	if s.Current != nil {
		c := *s.Current
		out.Current = &c
	}
	return out
}

// Equal compares two snapshots sample by sample.
func (s Snapshot) Equal(o Snapshot) bool {
	if (s.Current == nil) != (o.Current == nil) {
		return false
	}
	if s.Current != nil && !s.Current.Equal(*o.Current) {
		return false
	}
	return samplesEqual(s.HourBucket, o.HourBucket) &&
		samplesEqual(s.HourlyHistory, o.HourlyHistory) &&
		samplesEqual(s.DailyHistory, o.DailyHistory)
}

// Dedupe drops every sample whose timestamp was already seen, keeping the
// first occurrence and the original order.
func Dedupe(samples []Sample) []Sample {
	seen := make(map[int64]struct{}, len(samples))
	out := make([]Sample, 0, len(samples))
	for _, s := range samples {
		key := s.timestamp.UnixNano()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

func cloneSamples(in []Sample) []Sample {
	out := make([]Sample, len(in))
	copy(out, in)
	return out
}

func samplesEqual(a, b []Sample) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
