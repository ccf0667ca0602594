package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tidwall/gjson"
)

// TimestampField is the JSON member that carries a sample's timestamp.
const TimestampField = "TimeStampOffset"

var (
	ErrInvalidSample    = errors.New("invalid sample json")
	ErrMissingTimestamp = errors.New("sample has no " + TimestampField)
)

// Sample is one timestamped set of named measurements. A Sample is never
// modified after construction; rollups always build a new one.
type Sample struct {
	timestamp time.Time
	fields    map[string]float64
}

// NewSample copies fields, so later changes to the caller's map are not seen.
func NewSample(ts time.Time, fields map[string]float64) Sample {
	cp := make(map[string]float64, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return Sample{timestamp: ts, fields: cp}
}

func (s Sample) Timestamp() time.Time { return s.timestamp }

func (s Sample) Field(name string) (float64, bool) {
	v, ok := s.fields[name]
	return v, ok
}

// Fields returns a copy of the measurement map.
func (s Sample) Fields() map[string]float64 {
	cp := make(map[string]float64, len(s.fields))
	for k, v := range s.fields {
		cp[k] = v
	}
	return cp
}

// FieldNames returns the measurement names in sorted order.
func (s Sample) FieldNames() []string {
	names := make([]string, 0, len(s.fields))
	for k := range s.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (s Sample) Len() int { return len(s.fields) }

// Equal reports whether both samples have the same instant and identical fields.
// NaN fields compare equal to each other.
func (s Sample) Equal(o Sample) bool {
	if !s.timestamp.Equal(o.timestamp) || len(s.fields) != len(o.fields) {
		return false
	}
	for k, v := range s.fields {
		ov, ok := o.fields[k]
		if !ok {
			return false
		}
		if v != ov && !(math.IsNaN(v) && math.IsNaN(ov)) {
			return false
		}
	}
	return true
}

func (s Sample) String() string {
	return fmt.Sprintf("Sample(%s, %v)", s.timestamp.Format(time.RFC3339), s.fields)
}

// MarshalJSON writes the timestamp first and the fields in sorted order.
// Non-finite values are written as null.
func (s Sample) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 48+len(s.fields)*32)
	buf = append(buf, `{"`+TimestampField+`":`...)
	buf = append(buf, '"')
	buf = s.timestamp.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, '"')

	for _, name := range s.FieldNames() {
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf = append(buf, ',')
		buf = append(buf, key...)
		buf = append(buf, ':')

		v := s.fields[name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			buf = append(buf, "null"...)
			continue
		}
		num, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf = append(buf, num...)
	}

	buf = append(buf, '}')
	return buf, nil
}

// UnmarshalJSON accepts any object with a timestamp member. Numeric members
// become fields, null becomes NaN, anything else is ignored.
func (s *Sample) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return ErrInvalidSample
	}
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return fmt.Errorf("%w: expected object, got %s", ErrInvalidSample, res.Type)
	}

	var (
		ts       time.Time
		found    bool
		parseErr error
	)
	fields := make(map[string]float64)

	res.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if name == TimestampField {
			t, err := time.Parse(time.RFC3339Nano, value.String())
			if err != nil {
				parseErr = fmt.Errorf("%w: bad %s: %v", ErrInvalidSample, TimestampField, err)
				return false
			}
			ts, found = t, true
			return true
		}

		switch value.Type {
		case gjson.Number:
			fields[name] = value.Float()
		case gjson.Null:
			fields[name] = math.NaN()
		}
		return true
	})

	if parseErr != nil {
		return parseErr
	}
	if !found {
		return ErrMissingTimestamp
	}

	s.timestamp = ts
	s.fields = fields
	return nil
}
