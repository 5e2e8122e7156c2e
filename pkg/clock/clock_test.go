package clock

import (
	"testing"
	"time"
)

func TestQuantizeHour(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "already on the hour",
			in:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
			want: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "mid hour truncates down",
			in:   time.Date(2024, 6, 1, 12, 43, 17, 123, time.UTC),
			want: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuantizeHour(tt.in)
			if !got.Equal(tt.want) {
				t.Errorf("QuantizeHour(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestQuantizeQuarterHour(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"on the mark", time.Date(2024, 6, 1, 12, 15, 0, 0, time.UTC), time.Date(2024, 6, 1, 12, 15, 0, 0, time.UTC)},
		{"rounds down", time.Date(2024, 6, 1, 12, 29, 59, 0, time.UTC), time.Date(2024, 6, 1, 12, 15, 0, 0, time.UTC)},
		{"end of hour", time.Date(2024, 6, 1, 12, 59, 59, 0, time.UTC), time.Date(2024, 6, 1, 12, 45, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuantizeQuarterHour(tt.in)
			if !got.Equal(tt.want) {
				t.Errorf("QuantizeQuarterHour(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFixedClock(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	c := Fixed(now)
	if got := c.Now(); !got.Equal(now) {
		t.Errorf("Fixed.Now() = %v, want %v", got, now)
	}
}
