package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sunwatt/forecaster/pkg/clock"
	"github.com/sunwatt/forecaster/pkg/domain"
)

// weatherTimezone is the fixed provider timezone identifier spec.md §4.3
// requires; forecasts are always requested and interpreted in this zone.
const weatherTimezone = "Europe/Zagreb"

// weatherChannels are the minutely_15 channels requested from Open-Meteo,
// in a fixed order so the outgoing query string is deterministic (useful
// for tests and for request logs).
var weatherChannels = []string{
	"temperature_2m",
	"relative_humidity_2m",
	"cloud_cover_low",
	"cloud_cover_mid",
	"cloud_cover",
	"wind_speed_10m",
	"wind_direction_10m",
	"shortwave_radiation",
	"diffuse_radiation",
	"direct_radiation",
	"shortwave_radiation_instant",
	"diffuse_radiation_instant",
	"direct_radiation_instant",
	"et0_fao_evapotranspiration",
	"vapour_pressure_deficit",
	"is_day",
	"sunshine_duration",
}

// channelSetters assigns a parsed channel value onto the matching
// WeatherPoint field, mirroring the Feature Resolver's own dispatch-table
// shape (pkg/features/resolver.go) so the two stay in lockstep.
var channelSetters = map[string]func(*domain.WeatherPoint, float64){
	"temperature_2m":              func(p *domain.WeatherPoint, v float64) { p.Temperature2m = &v },
	"relative_humidity_2m":        func(p *domain.WeatherPoint, v float64) { p.RelativeHumidity2m = &v },
	"cloud_cover_low":             func(p *domain.WeatherPoint, v float64) { p.CloudCoverLow = &v },
	"cloud_cover_mid":             func(p *domain.WeatherPoint, v float64) { p.CloudCoverMid = &v },
	"cloud_cover":                 func(p *domain.WeatherPoint, v float64) { p.CloudCoverTotal = &v },
	"wind_speed_10m":              func(p *domain.WeatherPoint, v float64) { p.WindSpeed10m = &v },
	"wind_direction_10m":          func(p *domain.WeatherPoint, v float64) { p.WindDirection10m = &v },
	"shortwave_radiation":         func(p *domain.WeatherPoint, v float64) { p.ShortwaveRadiation = &v },
	"diffuse_radiation":           func(p *domain.WeatherPoint, v float64) { p.DiffuseRadiation = &v },
	"direct_radiation":            func(p *domain.WeatherPoint, v float64) { p.DirectRadiation = &v },
	"shortwave_radiation_instant": func(p *domain.WeatherPoint, v float64) { p.ShortwaveRadiationInst = &v },
	"diffuse_radiation_instant":   func(p *domain.WeatherPoint, v float64) { p.DiffuseRadiationInst = &v },
	"direct_radiation_instant":    func(p *domain.WeatherPoint, v float64) { p.DirectRadiationInst = &v },
	"et0_fao_evapotranspiration":  func(p *domain.WeatherPoint, v float64) { p.ET0FaoEvapotranspiration = &v },
	"vapour_pressure_deficit":     func(p *domain.WeatherPoint, v float64) { p.VapourPressureDeficit = &v },
	"is_day":                      func(p *domain.WeatherPoint, v float64) { p.IsDay = &v },
	"sunshine_duration":           func(p *domain.WeatherPoint, v float64) { p.SunshineDuration = &v },
}

// WeatherClient fetches 15-minute-resolution forecasts from Open-Meteo.
type WeatherClient struct {
	baseURL string
	http    *http.Client
	clock   clock.Clock
	loc     *time.Location
}

// NewWeatherClient creates a client against baseURL (e.g.
// "https://api.open-meteo.com/v1"). It loads the Europe/Zagreb location
// up front, the same way scheduler.New loads it for cron.WithLocation,
// since every timestamp this client sends or parses is Zagreb wall-clock.
func NewWeatherClient(baseURL string, timeout time.Duration, c clock.Clock) (*WeatherClient, error) {
	if c == nil {
		c = clock.RealClock{}
	}
	loc, err := time.LoadLocation(weatherTimezone)
	if err != nil {
		return nil, fmt.Errorf("load weather timezone %s: %w", weatherTimezone, err)
	}
	return &WeatherClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		clock:   c,
		loc:     loc,
	}, nil
}

// Fetch retrieves a 72h forecast for a plant with coordinates. start is the
// cycle identifier (hour-quantized "now"); the first provider sample is
// always dropped to avoid a zero horizon (spec.md §3 invariant).
func (c *WeatherClient) Fetch(ctx context.Context, plant domain.Plant) (time.Time, domain.WeatherForecast, error) {
	if !plant.HasCoordinates() {
		return time.Time{}, domain.WeatherForecast{}, fmt.Errorf("plant %d has no coordinates", plant.ID)
	}

	start := clock.QuantizeHour(c.clock.Now().In(c.loc))
	end := start.Add(72 * time.Hour)

	const layout = "2006-01-02T15:04"
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(*plant.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(*plant.Longitude, 'f', -1, 64))
	q.Set("minutely_15", strings.Join(weatherChannels, ","))
	q.Set("start_minutely_15", start.Format(layout))
	q.Set("end_minutely_15", end.Format(layout))
	q.Set("timezone", weatherTimezone)

	reqURL := c.baseURL + "/forecast?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return time.Time{}, domain.WeatherForecast{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return time.Time{}, domain.WeatherForecast{}, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return time.Time{}, domain.WeatherForecast{}, fmt.Errorf("weather http %d: %s", resp.StatusCode, string(body))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return time.Time{}, domain.WeatherForecast{}, fmt.Errorf("read weather body: %w", err)
	}

	forecast, err := parseForecast(raw, plant, c.loc)
	if err != nil {
		return time.Time{}, domain.WeatherForecast{}, fmt.Errorf("parse weather response: %w", err)
	}
	forecast.FetchTime = start

	return start, forecast, nil
}

// parseForecast walks the minutely_15 parallel-array response, the same
// gjson path-extraction idiom the teacher's HTTPAdapter uses for generic
// time-series APIs, specialized to Open-Meteo's fixed channel set. The
// response's bare timestamps carry no offset because the request set
// timezone=Europe/Zagreb, so they must be parsed in that same location —
// otherwise every horizon computed against FetchTime (also Zagreb-local)
// would be off by the zone's UTC offset.
func parseForecast(body []byte, plant domain.Plant, loc *time.Location) (domain.WeatherForecast, error) {
	timestamps := gjson.GetBytes(body, "minutely_15.time")
	if !timestamps.Exists() {
		return domain.WeatherForecast{}, fmt.Errorf("minutely_15.time not found in response")
	}

	tsArray := timestamps.Array()
	points := make([]domain.WeatherPoint, len(tsArray))

	for i, ts := range tsArray {
		t, err := time.ParseInLocation("2006-01-02T15:04", ts.String(), loc)
		if err != nil {
			return domain.WeatherForecast{}, fmt.Errorf("parse timestamp[%d] %q: %w", i, ts.String(), err)
		}
		points[i] = domain.WeatherPoint{Time: t}
	}

	for _, channel := range weatherChannels {
		values := gjson.GetBytes(body, "minutely_15."+channel)
		if !values.Exists() {
			continue // channel missing entirely: every point stays nil for it
		}

		setter := channelSetters[channel]
		valArray := values.Array()
		for i := range valArray {
			if i >= len(points) {
				break
			}
			if !valArray[i].Exists() || valArray[i].Type.String() == "Null" {
				continue // per-point null stays nil
			}
			setter(&points[i], valArray[i].Float())
		}
	}

	if len(points) == 0 {
		return domain.WeatherForecast{}, nil
	}

	// Drop the first sample: it would otherwise carry horizon=0.
	points = points[1:]

	return domain.WeatherForecast{
		PlantID:   plant.ID,
		Lat:       *plant.Latitude,
		Lon:       *plant.Longitude,
		Timezone:  gjson.GetBytes(body, "timezone").String(),
		Elevation: gjson.GetBytes(body, "elevation").Float(),
		Points:    points,
	}, nil
}
