package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleIsImmutable(t *testing.T) {
	fields := map[string]float64{"CelsiusTemperature": 20}
	s := NewSample(time.Date(2026, 3, 1, 9, 10, 0, 0, time.UTC), fields)

	fields["CelsiusTemperature"] = 99
	v, ok := s.Field("CelsiusTemperature")
	require.True(t, ok)
	assert.Equal(t, 20.0, v, "constructor must copy the field map")

	out := s.Fields()
	out["CelsiusTemperature"] = 42
	v, _ = s.Field("CelsiusTemperature")
	assert.Equal(t, 20.0, v, "Fields must return a copy")
}

func TestSampleMarshalJSON(t *testing.T) {
	s := NewSample(time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC), map[string]float64{
		"Humidity":           41.5,
		"CelsiusTemperature": 25,
	})

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t,
		`{"TimeStampOffset":"2026-03-01T10:05:00Z","CelsiusTemperature":25,"Humidity":41.5}`,
		string(data))
}

func TestSampleMarshalNonFinite(t *testing.T) {
	s := NewSample(time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC), map[string]float64{
		"AmbientLight": math.NaN(),
		"Altitude":     math.Inf(1),
	})

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `{"TimeStampOffset":"2026-03-01T10:05:00Z","Altitude":null,"AmbientLight":null}`, string(data))
}

func TestSampleUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		check   func(t *testing.T, s Sample)
	}{
		{
			name:  "numeric fields",
			input: `{"TimeStampOffset":"2026-03-01T10:05:00+02:00","CelsiusTemperature":25,"Humidity":41.5}`,
			check: func(t *testing.T, s Sample) {
				assert.True(t, s.Timestamp().Equal(time.Date(2026, 3, 1, 8, 5, 0, 0, time.UTC)))
				assert.Equal(t, []string{"CelsiusTemperature", "Humidity"}, s.FieldNames())
			},
		},
		{
			name:  "non numeric members ignored",
			input: `{"TimeStampOffset":"2026-03-01T10:05:00Z","Station":"roof","Pressure":1013.2}`,
			check: func(t *testing.T, s Sample) {
				assert.Equal(t, []string{"Pressure"}, s.FieldNames())
			},
		},
		{
			name:  "null becomes NaN",
			input: `{"TimeStampOffset":"2026-03-01T10:05:00Z","AmbientLight":null}`,
			check: func(t *testing.T, s Sample) {
				v, ok := s.Field("AmbientLight")
				require.True(t, ok)
				assert.True(t, math.IsNaN(v))
			},
		},
		{name: "missing timestamp", input: `{"CelsiusTemperature":25}`, wantErr: ErrMissingTimestamp},
		{name: "bad timestamp", input: `{"TimeStampOffset":"yesterday"}`, wantErr: ErrInvalidSample},
		{name: "truncated", input: `{"TimeStampOffset":"2026-03-01T10:05:00Z","Celsius`, wantErr: ErrInvalidSample},
		{name: "not an object", input: `[1,2,3]`, wantErr: ErrInvalidSample},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Sample
			err := s.UnmarshalJSON([]byte(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, s)
		})
	}
}

func TestSampleJSONRoundTrip(t *testing.T) {
	in := NewSample(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), map[string]float64{
		"CelsiusTemperature": 21,
		"BarometricPressure": 1013.25,
	})
	data, err := json.Marshal([]Sample{in})
	require.NoError(t, err)

	var out []Sample
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 1)
	assert.True(t, in.Equal(out[0]), "got %s", out[0])
}

func TestDedupe(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := NewSample(base, map[string]float64{"t": 1})
	b := NewSample(base, map[string]float64{"t": 2})
	c := NewSample(base.Add(time.Hour), map[string]float64{"t": 3})
	// same instant in another zone is the same timestamp
	d := NewSample(base.In(time.FixedZone("CET", 3600)), map[string]float64{"t": 4})

	out := Dedupe([]Sample{a, b, c, d})
	require.Len(t, out, 2)
	assert.True(t, out[0].Equal(a), "first occurrence wins")
	assert.True(t, out[1].Equal(c))
}

func TestSnapshotCloneIsIndependent(t *testing.T) {
	cur := NewSample(time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC), map[string]float64{"t": 25})
	snap := Snapshot{Current: &cur, HourBucket: []Sample{cur}}

	clone := snap.Clone()
	clone.HourBucket[0] = NewSample(time.Time{}, nil)
	clone.Current = nil

	assert.True(t, snap.HourBucket[0].Equal(cur))
	assert.NotNil(t, snap.Current)
	assert.False(t, snap.Equal(clone))
}
