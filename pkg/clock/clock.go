// Package clock provides the forecaster's single source of "now", so
// pipeline runs and tests can swap in a fixed time the same way the
// teacher's adapters.AlignTimestamp isolates truncation logic from the
// caller's choice of clock.
package clock

import "time"

// Clock returns the current wall-clock time. Production code uses
// RealClock; tests use a Fixed clock for deterministic cycle timestamps.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock, backed by time.Now.
type RealClock struct{}

// Now returns the current UTC time.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Fixed is a Clock that always returns the same instant. Useful for tests
// that assert on cycle identifiers derived from "now".
type Fixed time.Time

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return time.Time(f) }

// QuantizeHour truncates t to the top of its hour, in the same timezone
// as t. This is the cycle-identifier quantization spec.md requires for
// every WeatherForecast.FetchTime and PowerPrediction.CreatedAt.
func QuantizeHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// QuantizeQuarterHour truncates t to the nearest preceding 15-minute mark,
// the resolution weather samples and prediction timestamps are aligned to.
func QuantizeQuarterHour(t time.Time) time.Time {
	minute := (t.Minute() / 15) * 15
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), minute, 0, 0, t.Location())
}
