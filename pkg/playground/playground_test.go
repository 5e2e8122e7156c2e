package playground

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sunwatt/forecaster/pkg/domain"
	"github.com/sunwatt/forecaster/pkg/storage"
)

type fakePredictor struct{}

func (fakePredictor) Predict(_ context.Context, features []float64) (float64, error) {
	var sum float64
	for _, f := range features {
		sum += f
	}
	return sum, nil
}

func TestValidateHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  []string
		feats   []string
		wantErr bool
	}{
		{"exact match", []string{"timestamp", "a", "b"}, []string{"a", "b"}, false},
		{"missing column", []string{"timestamp", "a"}, []string{"a", "b"}, true},
		{"extra column", []string{"timestamp", "a", "b", "c"}, []string{"a", "b"}, true},
		{"reordered", []string{"timestamp", "b", "a"}, []string{"a", "b"}, true},
		{"missing timestamp", []string{"a", "b"}, []string{"a", "b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateHeader(tt.header, tt.feats)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateHeader(%v, %v) error = %v, wantErr %v", tt.header, tt.feats, err, tt.wantErr)
			}
		})
	}
}

func TestRunner_Run(t *testing.T) {
	store := storage.NewMemStore()
	runner := New(nil, store)

	meta := domain.ModelMetadata{ID: 1, Features: []string{"a", "b"}}
	csv := "timestamp,a,b\n2024-06-01T00:00:00Z,1,2\n2024-06-01T00:15:00Z,3,4\n"

	result, err := runner.Run(context.Background(), fakePredictor{}, meta, 1, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Predicted) != 2 {
		t.Fatalf("len(result.Predicted) = %d, want 2", len(result.Predicted))
	}
	if result.Predicted[0] != 3 || result.Predicted[1] != 7 {
		t.Errorf("Predicted = %v, want [3 7]", result.Predicted)
	}
	if result.HasMetrics {
		t.Error("HasMetrics = true, want false with no stored readings")
	}
}

func TestRunner_Run_BadHeader(t *testing.T) {
	store := storage.NewMemStore()
	runner := New(nil, store)

	meta := domain.ModelMetadata{ID: 1, Features: []string{"a", "b"}}
	csv := "timestamp,a\n2024-06-01T00:00:00Z,1\n"

	_, err := runner.Run(context.Background(), fakePredictor{}, meta, 1, strings.NewReader(csv))
	if err == nil {
		t.Fatal("expected header validation error")
	}
}

func TestRunner_Run_WithMatchingReadings(t *testing.T) {
	store := storage.NewMemStore()
	t0 := mustParseTS("2024-06-01T00:00:00Z")
	if err := store.SaveReadings(context.Background(), []domain.PowerReading{{PlantID: 1, Timestamp: t0, PowerW: 5}}); err != nil {
		t.Fatalf("SaveReadings: %v", err)
	}

	runner := New(nil, store)
	meta := domain.ModelMetadata{ID: 1, Features: []string{"a"}}
	csv := "timestamp,a\n2024-06-01T00:00:00Z,3\n"

	result, err := runner.Run(context.Background(), fakePredictor{}, meta, 1, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.HasMetrics {
		t.Fatal("HasMetrics = false, want true with matching reading")
	}
	if result.Metrics[domain.MetricMAE] != 2 {
		t.Errorf("MAE = %v, want 2 (predicted 3, actual 5)", result.Metrics[domain.MetricMAE])
	}
}

func mustParseTS(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}
