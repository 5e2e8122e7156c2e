// Package domain holds the plain data types shared across the forecaster:
// plants and models owned by Model-Manager, weather forecasts, predictions,
// readings, and the metrics derived from them. None of these types carry
// behavior beyond simple validity checks — the teacher keeps its own
// cross-package type (storage.Snapshot) just as flat.
package domain

import "time"

// Plant is a photovoltaic installation as reported by Model-Manager.
type Plant struct {
	ID        int
	Latitude  *float64
	Longitude *float64
	Capacity  *float64
}

// HasCoordinates reports whether the plant carries both coordinates and is
// therefore eligible for weather retrieval and forecasting.
func (p Plant) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// FileType identifies how a model artifact's bytes are packaged.
type FileType string

const (
	FileTypeJoblib FileType = "joblib"
	FileTypePKL    FileType = "pkl"
	FileTypePickle FileType = "pickle"
	FileTypeZip    FileType = "zip"
)

// ModelMetadata describes one ML model bound to a plant.
//
// Features is order-significant: it defines the column order of the
// feature matrix handed to inference, and must never be re-sorted.
type ModelMetadata struct {
	ID        int
	PlantID   int
	Features  []string
	FileType  FileType
	Name      string
	Version   string
	PlantName string
	IsActive  bool
}

// WeatherPoint is one 15-minute-aligned weather sample. Every channel is
// nullable because the provider may omit any of them for a given point.
type WeatherPoint struct {
	Time time.Time

	Temperature2m           *float64
	RelativeHumidity2m      *float64
	CloudCoverLow           *float64
	CloudCoverMid           *float64
	CloudCoverTotal         *float64
	WindSpeed10m            *float64
	WindDirection10m        *float64
	ShortwaveRadiation      *float64
	DiffuseRadiation        *float64
	DirectRadiation         *float64
	ShortwaveRadiationInst  *float64
	DiffuseRadiationInst    *float64
	DirectRadiationInst     *float64
	ET0FaoEvapotranspiration *float64
	VapourPressureDeficit   *float64
	IsDay                   *float64
	SunshineDuration        *float64
}

// WeatherForecast is one fetched 72h/15-minute-resolution forecast for a
// plant. FetchTime is the hour-quantized cycle identifier shared by every
// prediction derived from this forecast.
type WeatherForecast struct {
	PlantID   int
	Lat       float64
	Lon       float64
	Timezone  string
	Elevation float64
	FetchTime time.Time
	Points    []WeatherPoint
}

// PlantContext is the subset of plant state the feature resolver can read
// directly, independent of any single weather point.
type PlantContext struct {
	PlantID   int
	Capacity  float64
	Latitude  float64
	Longitude float64
	Elevation float64
}

// PowerPrediction is one predicted point, horizon-tagged relative to the
// cycle (CreatedAt) that produced it.
type PowerPrediction struct {
	PredictionTime time.Time
	ModelID        int
	CreatedAt      time.Time
	PredictedPower float64
	Horizon        float64 // hours, fractional (0.25, 1, 6, 24, 48, 72)
}

// PowerReading is one ground-truth power measurement for a plant.
type PowerReading struct {
	PlantID   int
	Timestamp time.Time
	PowerW    float64
}

// MetricType enumerates the supported error-metric kinds.
type MetricType string

const (
	MetricMAE  MetricType = "MAE"
	MetricRMSE MetricType = "RMSE"
	MetricMBE  MetricType = "MBE"
)

// HorizonBuckets are the fixed horizon values (hours) metrics are grouped by.
var HorizonBuckets = []float64{0.25, 1, 6, 24, 48, 72}

// HorizonMetric is one (model, metric type, horizon) error value aggregated
// across all cycles.
type HorizonMetric struct {
	ModelID    int
	MetricType MetricType
	Horizon    float64
	Value      float64
}

// CycleMetric is one (model, cycle, metric type) error value aggregated
// across all horizons within that cycle.
type CycleMetric struct {
	ModelID        int
	TimeOfForecast time.Time
	MetricType     MetricType
	Value          float64
}
