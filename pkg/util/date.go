package util

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// msThreshold separates epoch seconds from epoch milliseconds.
const msThreshold = 1e11

// ParseTime accepts RFC3339 (with or without fractional seconds) or a
// positive numeric epoch.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return epochOK(f)
	}
	return time.Time{}, false
}

// ParseEpochAny converts a decoded JSON value (number, numeric string, RFC3339
// string) into a time. Epoch values above 1e11 are treated as milliseconds.
func ParseEpochAny(v any) (time.Time, bool) {
	switch x := v.(type) {
	case float64:
		return epochOK(x)
	case int:
		return epochOK(float64(x))
	case int64:
		return epochOK(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return epochOK(f)
	case string:
		return ParseTime(x)
	case time.Time:
		return x, !x.IsZero()
	default:
		return time.Time{}, false
	}
}

// FromEpochSeconds converts fractional epoch seconds (or milliseconds) to time.
func FromEpochSeconds(f float64) time.Time {
	if f > msThreshold {
		f /= 1000
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

func epochOK(f float64) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return time.Time{}, false
	}
	return FromEpochSeconds(f), true
}
