// Package features resolves named model features into a numeric matrix.
// The dispatch table shape is the same one the teacher uses for its own
// feature builder: a static map of name to resolver function, validated
// once up front, with a fixed substitution policy for anything that
// cannot be resolved cleanly.
package features

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sunwatt/forecaster/pkg/domain"
)

// weatherChannel returns a resolver that reads a single nullable channel
// off a WeatherPoint.
func weatherChannel(get func(domain.WeatherPoint) *float64) func(domain.WeatherPoint, domain.PlantContext) (float64, bool) {
	return func(p domain.WeatherPoint, _ domain.PlantContext) (float64, bool) {
		v := get(p)
		if v == nil {
			return 0, false
		}
		return *v, true
	}
}

func timeDerived(fn func(time.Time) float64) func(domain.WeatherPoint, domain.PlantContext) (float64, bool) {
	return func(p domain.WeatherPoint, _ domain.PlantContext) (float64, bool) {
		return fn(p.Time), true
	}
}

func plantField(fn func(domain.PlantContext) float64) func(domain.WeatherPoint, domain.PlantContext) (float64, bool) {
	return func(_ domain.WeatherPoint, ctx domain.PlantContext) (float64, bool) {
		return fn(ctx), true
	}
}

// resolvers is the static dispatch table covering every supported
// feature name: weather channels (1), time-derived fields (2), and
// plant-context fields (3) from the resolution rules.
var resolvers = map[string]func(domain.WeatherPoint, domain.PlantContext) (float64, bool){
	// weather channels
	"temperature_2m":              weatherChannel(func(p domain.WeatherPoint) *float64 { return p.Temperature2m }),
	"relative_humidity_2m":        weatherChannel(func(p domain.WeatherPoint) *float64 { return p.RelativeHumidity2m }),
	"cloud_cover_low":              weatherChannel(func(p domain.WeatherPoint) *float64 { return p.CloudCoverLow }),
	"cloud_cover_mid":              weatherChannel(func(p domain.WeatherPoint) *float64 { return p.CloudCoverMid }),
	"cloud_cover":                  weatherChannel(func(p domain.WeatherPoint) *float64 { return p.CloudCoverTotal }),
	"wind_speed_10m":               weatherChannel(func(p domain.WeatherPoint) *float64 { return p.WindSpeed10m }),
	"wind_direction_10m":           weatherChannel(func(p domain.WeatherPoint) *float64 { return p.WindDirection10m }),
	"shortwave_radiation":          weatherChannel(func(p domain.WeatherPoint) *float64 { return p.ShortwaveRadiation }),
	"diffuse_radiation":            weatherChannel(func(p domain.WeatherPoint) *float64 { return p.DiffuseRadiation }),
	"direct_radiation":             weatherChannel(func(p domain.WeatherPoint) *float64 { return p.DirectRadiation }),
	"shortwave_radiation_instant":  weatherChannel(func(p domain.WeatherPoint) *float64 { return p.ShortwaveRadiationInst }),
	"diffuse_radiation_instant":    weatherChannel(func(p domain.WeatherPoint) *float64 { return p.DiffuseRadiationInst }),
	"direct_radiation_instant":     weatherChannel(func(p domain.WeatherPoint) *float64 { return p.DirectRadiationInst }),
	"et0_fao_evapotranspiration":   weatherChannel(func(p domain.WeatherPoint) *float64 { return p.ET0FaoEvapotranspiration }),
	"vapour_pressure_deficit":      weatherChannel(func(p domain.WeatherPoint) *float64 { return p.VapourPressureDeficit }),
	"is_day":                       weatherChannel(func(p domain.WeatherPoint) *float64 { return p.IsDay }),
	"sunshine_duration":            weatherChannel(func(p domain.WeatherPoint) *float64 { return p.SunshineDuration }),

	// time-derived. hour_sin/hour_cos/month_sin/month_cos apply sin/cos to
	// the raw hour/month values, not to a normalized radian angle: models
	// were trained against that exact convention.
	"hour":         timeDerived(func(t time.Time) float64 { return float64(t.Hour()) }),
	"month":        timeDerived(func(t time.Time) float64 { return float64(t.Month()) }),
	"day":          timeDerived(func(t time.Time) float64 { return float64(t.Day()) }),
	"day_of_year":  timeDerived(func(t time.Time) float64 { return float64(t.YearDay()) }),
	"week_of_year": timeDerived(func(t time.Time) float64 { _, w := t.ISOWeek(); return float64(w) }),
	// Python's datetime.weekday() is Monday=0..Sunday=6; Go's
	// time.Weekday() is Sunday=0..Saturday=6. Models were trained on the
	// Python convention, so rotate Go's value to match.
	"day_of_week": timeDerived(func(t time.Time) float64 { return float64((int(t.Weekday()) + 6) % 7) }),
	"hour_sin":    timeDerived(func(t time.Time) float64 { return math.Sin(float64(t.Hour())) }),
	"hour_cos":    timeDerived(func(t time.Time) float64 { return math.Cos(float64(t.Hour())) }),
	"month_sin":   timeDerived(func(t time.Time) float64 { return math.Sin(float64(t.Month())) }),
	"month_cos":   timeDerived(func(t time.Time) float64 { return math.Cos(float64(t.Month())) }),

	// plant context
	"capacity":  plantField(func(c domain.PlantContext) float64 { return c.Capacity }),
	"latitude":  plantField(func(c domain.PlantContext) float64 { return c.Latitude }),
	"longitude": plantField(func(c domain.PlantContext) float64 { return c.Longitude }),
	"elevation": plantField(func(c domain.PlantContext) float64 { return c.Elevation }),
}

// nonNumericFeatures names features the resolver recognizes but which do
// not resolve to a plain float64 (datetime is a timestamp, not a
// measurement). Requesting one is always an UnsupportedFeature: see
// SPEC_FULL.md's open-question resolution.
var nonNumericFeatures = map[string]bool{
	"datetime": true,
}

// Resolver builds feature matrices for inference.
type Resolver struct {
	log *slog.Logger
}

// New creates a Resolver.
func New(log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{log: log}
}

// Validate checks that every name in features is supported, without
// touching any data. Call once per request before Prepare.
func (r *Resolver) Validate(featureNames []string) error {
	for _, name := range featureNames {
		if nonNumericFeatures[name] {
			return fmt.Errorf("%w: %q resolves to a non-numeric value", domain.ErrUnsupportedFeature, name)
		}
		if _, ok := resolvers[name]; !ok {
			return fmt.Errorf("%w: %q", domain.ErrUnsupportedFeature, name)
		}
	}
	return nil
}

// Prepare builds a row-major feature matrix: one row per weather point,
// one column per feature name in the given order. Per-cell resolution
// failures substitute 0.0 and log rather than dropping the row.
func (r *Resolver) Prepare(forecast domain.WeatherForecast, featureNames []string, ctx domain.PlantContext) ([][]float64, error) {
	if err := r.Validate(featureNames); err != nil {
		return nil, err
	}

	matrix := make([][]float64, len(forecast.Points))
	for i, point := range forecast.Points {
		row := make([]float64, len(featureNames))
		for j, name := range featureNames {
			fn := resolvers[name]
			value, ok := fn(point, ctx)
			if !ok {
				r.log.Debug("null feature value, substituting 0.0", "feature", name, "time", point.Time)
				value = 0.0
			}
			row[j] = value
		}
		matrix[i] = row
	}
	return matrix, nil
}
