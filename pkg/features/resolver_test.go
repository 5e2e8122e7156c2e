package features

import (
	"errors"
	"testing"
	"time"

	"github.com/sunwatt/forecaster/pkg/domain"
)

func ptr(v float64) *float64 { return &v }

func TestResolver_Validate(t *testing.T) {
	r := New(nil)

	if err := r.Validate([]string{"shortwave_radiation", "hour", "capacity"}); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	if err := r.Validate([]string{"made_up_feature"}); !errors.Is(err, domain.ErrUnsupportedFeature) {
		t.Fatalf("Validate() error = %v, want ErrUnsupportedFeature", err)
	}

	if err := r.Validate([]string{"datetime"}); !errors.Is(err, domain.ErrUnsupportedFeature) {
		t.Fatalf("Validate(datetime) error = %v, want ErrUnsupportedFeature", err)
	}
}

func TestResolver_Prepare(t *testing.T) {
	r := New(nil)

	forecast := domain.WeatherForecast{
		Points: []domain.WeatherPoint{
			{Time: time.Date(2024, 6, 1, 0, 15, 0, 0, time.UTC), ShortwaveRadiation: ptr(123.4)},
			{Time: time.Date(2024, 6, 1, 0, 30, 0, 0, time.UTC), ShortwaveRadiation: nil},
		},
	}
	ctx := domain.PlantContext{Capacity: 1000, PlantID: 1}

	matrix, err := r.Prepare(forecast, []string{"shortwave_radiation", "hour", "capacity"}, ctx)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	if len(matrix) != 2 {
		t.Fatalf("len(matrix) = %d, want 2", len(matrix))
	}

	if matrix[0][0] != 123.4 || matrix[0][1] != 0 || matrix[0][2] != 1000 {
		t.Errorf("row 0 = %v, want [123.4, 0, 1000]", matrix[0])
	}

	// Null channel substitutes 0.0 rather than dropping the row.
	if matrix[1][0] != 0.0 {
		t.Errorf("row 1 col 0 = %v, want 0.0 (null substitution)", matrix[1][0])
	}
}

func TestResolver_Prepare_UnsupportedFeature(t *testing.T) {
	r := New(nil)
	forecast := domain.WeatherForecast{Points: []domain.WeatherPoint{{Time: time.Now()}}}

	_, err := r.Prepare(forecast, []string{"made_up_feature"}, domain.PlantContext{})
	if !errors.Is(err, domain.ErrUnsupportedFeature) {
		t.Fatalf("Prepare() error = %v, want ErrUnsupportedFeature", err)
	}
}

func TestResolver_TrigFeaturesUseRawValues(t *testing.T) {
	r := New(nil)
	forecast := domain.WeatherForecast{
		Points: []domain.WeatherPoint{{Time: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)}},
	}

	matrix, err := r.Prepare(forecast, []string{"hour_sin", "hour"}, domain.PlantContext{})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	// sin(6), not sin(6 * pi / 12) or any other radian normalization.
	wantSin := -0.2794155
	if diff := matrix[0][0] - wantSin; diff > 1e-5 || diff < -1e-5 {
		t.Errorf("hour_sin = %v, want ~%v (sin of raw hour, not normalized radians)", matrix[0][0], wantSin)
	}
}
