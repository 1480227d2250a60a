/*
Package store
File: coerce.go
Description:
    Column coercion. Rows come back loosely typed (numbers as text, ints as
    floats, timestamps in several layouts), so every read goes through
    these helpers before it reaches a model.
*/

package store

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Number coerces a column value to a finite float64.
// ok is false for nil, unparsable strings, NaN and infinities.
func Number(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int64:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		return parseNumber(t)
	case []byte:
		return parseNumber(string(t))
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Float returns the coerced number or def when the value is absent.
func Float(v any, def float64) float64 {
	if f, ok := Number(v); ok {
		return f
	}
	return def
}

// FloatPtr returns nil when the value is absent.
func FloatPtr(v any) *float64 {
	if f, ok := Number(v); ok {
		return &f
	}
	return nil
}

// Int returns the coerced number truncated toward zero, or def when absent.
func Int(v any, def int64) int64 {
	if f, ok := Number(v); ok {
		return int64(f)
	}
	return def
}

// Text coerces a column value to a string. nil becomes "".
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Bool coerces 0/1, "true"/"false" and booleans.
func Bool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err == nil {
			return b
		}
	case []byte:
		return Bool(string(t))
	}
	f, ok := Number(v)
	return ok && f != 0
}

// Time parses timestamps stored as RFC 3339 text, unix milliseconds or native times.
// nil is returned for absent or unparsable values.
func Time(v any) *time.Time {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		if t.IsZero() {
			return nil
		}
		u := t.UTC()
		return &u
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	case int64:
		u := time.UnixMilli(t).UTC()
		return &u
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}

// Stamp formats a time the way the collaborator stores it.
func Stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
