// Package dates converts loosely typed timestamp values into time.Time.
//
// Documents written by different clients store dates as native timestamps,
// ISO strings, epoch numbers or {seconds, nanoseconds} maps.
package dates

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
)

// Epoch values at or above this are treated as milliseconds.
const millisThreshold = 1e11

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Coerce converts v to a UTC time. The boolean is false for nil, zero and
// unsupported values.
func Coerce(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return nonZero(t)
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return nonZero(*t)
	case *timestamppb.Timestamp:
		if t == nil || !t.IsValid() {
			return time.Time{}, false
		}
		return nonZero(t.AsTime())
	case string:
		return parseString(t)
	case json.Number:
		return parseString(t.String())
	case int:
		return fromEpoch(float64(t))
	case int64:
		return fromEpoch(float64(t))
	case int32:
		return fromEpoch(float64(t))
	case float64:
		return fromEpoch(t)
	case map[string]any:
		return fromMap(t)
	}
	return time.Time{}, false
}

// MustCoerce returns the coerced time or the zero value.
func MustCoerce(v any) time.Time {
	t, _ := Coerce(v)
	return t
}

func nonZero(t time.Time) (time.Time, bool) {
	if t.IsZero() {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return nonZero(t)
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	return time.Time{}, false
}

func fromEpoch(f float64) (time.Time, bool) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	if f >= millisThreshold {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

func fromMap(m map[string]any) (time.Time, bool) {
	secs, ok := number(m["seconds"])
	if !ok {
		secs, ok = number(m["_seconds"])
	}
	if !ok {
		return time.Time{}, false
	}
	nanos, found := number(m["nanoseconds"])
	if !found {
		nanos, _ = number(m["_nanoseconds"])
	}
	if secs <= 0 && nanos <= 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(secs), int64(nanos)).UTC(), true
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
