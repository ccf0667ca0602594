package sampler

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Source produces one reading per call. Sensor drivers implement it.
type Source interface {
	Read(ctx context.Context) (map[string]float64, error)
}

type SourceFunc func(ctx context.Context) (map[string]float64, error)

func (f SourceFunc) Read(ctx context.Context) (map[string]float64, error) { return f(ctx) }

type walkRange struct {
	min, max, step float64
}

var knownRanges = map[string]walkRange{
	"CelsiusTemperature": {min: -20, max: 40, step: 0.2},
	"Humidity":           {min: 0, max: 100, step: 0.5},
	"BarometricPressure": {min: 95000, max: 105000, step: 15},
	"Altitude":           {min: 0, max: 500, step: 0.3},
	"AmbientLight":       {min: 0, max: 3.3, step: 0.05},
}

var defaultRange = walkRange{min: 0, max: 100, step: 1}

// SimulatedSource is a bounded random walk per field, for running without
// a sensor attached.
type SimulatedSource struct {
	mu     sync.Mutex
	rng    *rand.Rand
	fields []string
	values map[string]float64
}

// NewSimulatedSource starts every field mid-range. A zero seed picks one
// from the clock.
func NewSimulatedSource(fields []string, seed int64) *SimulatedSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &SimulatedSource{
		rng:    rand.New(rand.NewSource(seed)),
		fields: append([]string(nil), fields...),
		values: make(map[string]float64, len(fields)),
	}
	for _, f := range s.fields {
		r := rangeFor(f)
		s.values[f] = (r.min + r.max) / 2
	}
	return s
}

func (s *SimulatedSource) Read(ctx context.Context) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]float64, len(s.fields))
	for _, f := range s.fields {
		r := rangeFor(f)
		v := s.values[f] + (s.rng.Float64()*2-1)*r.step
		v = math.Max(r.min, math.Min(r.max, v))
		s.values[f] = v
		out[f] = v
	}
	return out, nil
}

func rangeFor(field string) walkRange {
	if r, ok := knownRanges[field]; ok {
		return r
	}
	return defaultRange
}
