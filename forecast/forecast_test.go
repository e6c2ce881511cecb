package forecast

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oskarb/kepler/config"
	"github.com/oskarb/kepler/smhi"
	"github.com/oskarb/kepler/types"
)

type fakeStore struct {
	slots []types.Slot
	err   error
}

func (f *fakeStore) GetActualSlots(ctx context.Context, from, to time.Time) ([]types.Slot, error) {
	return f.slots, f.err
}

func forecastTestConfig() *config.AppConfig {
	return &config.AppConfig{
		Solar:    config.AppConfigSolar{Kwp: 10},
		Location: config.AppConfigLocation{Latitude: 59.3, Longitude: 18.1},
		Planner: config.AppConfigPlanner{
			SlotMinutes:  60,
			HorizonHours: 24,
			HistoryDays:  7,
		},
	}
}

func newTestProvider(cfg *config.AppConfig, db Store, weather []smhi.PointForecast) *Provider {
	p := New(slog.New(slog.NewTextHandler(io.Discard, nil)), cfg, db)
	p.fetch = func(ctx context.Context, lon, lat float64) ([]smhi.PointForecast, error) {
		return weather, nil
	}
	return p
}

func TestSolarElevationFactorZeroAtNight(t *testing.T) {
	midnight := time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC)
	assert.Zero(t, solarElevationFactor(midnight, 59.3))
}

func TestSolarElevationFactorPeaksAroundNoon(t *testing.T) {
	day := time.Date(2026, 6, 21, 0, 0, 0, 0, time.UTC)
	noon := solarElevationFactor(day.Add(11*time.Hour+30*time.Minute), 59.3)
	morning := solarElevationFactor(day.Add(6*time.Hour), 59.3)

	assert.Greater(t, noon, morning)
	assert.Greater(t, morning, 0.0)
	assert.LessOrEqual(t, noon, 1.0)
}

func TestPvEstimateCloudDerating(t *testing.T) {
	cfg := forecastTestConfig()
	p := newTestProvider(cfg, &fakeStore{}, nil)

	noon := time.Date(2026, 6, 21, 11, 0, 0, 0, time.UTC)
	clear := p.pvEstimate(smhi.PointForecast{ValidTime: noon, CloudCoverOctas: 0})
	overcast := p.pvEstimate(smhi.PointForecast{ValidTime: noon, CloudCoverOctas: 8})

	require.Greater(t, clear, 0.0)
	assert.InDelta(t, clear*(1.0-cfg.Solar.GetCloudCoverImpact()), overcast, 0.02)
}

func TestPvEstimateZeroWithoutPanels(t *testing.T) {
	cfg := forecastTestConfig()
	cfg.Solar.Kwp = 0
	p := newTestProvider(cfg, &fakeStore{}, nil)

	noon := time.Date(2026, 6, 21, 11, 0, 0, 0, time.UTC)
	assert.Zero(t, p.pvEstimate(smhi.PointForecast{ValidTime: noon}))
}

func TestGetForecastsAveragesLoadByHour(t *testing.T) {
	start := time.Now().Truncate(time.Hour).Add(time.Hour)

	// Two past days with load 1.0 and 2.0 at the same hour of day.
	store := &fakeStore{slots: []types.Slot{
		{Start: start.AddDate(0, 0, -2), LoadForecastKWh: 1.0},
		{Start: start.AddDate(0, 0, -1), LoadForecastKWh: 2.0},
	}}
	weather := []smhi.PointForecast{
		{ValidTime: start, CloudCoverOctas: 8, TemperatureC: 5},
		{ValidTime: start.Add(time.Hour), CloudCoverOctas: 8, TemperatureC: 5},
	}

	p := newTestProvider(forecastTestConfig(), store, weather)
	out, err := p.GetForecasts(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, start, out[0].Start)
	assert.InDelta(t, 1.5, out[0].LoadKWh, 1e-9)
}

func TestGetForecastsScalesSubHourlySlots(t *testing.T) {
	cfg := forecastTestConfig()
	cfg.Planner.SlotMinutes = 15
	start := time.Now().Truncate(time.Hour).Add(time.Hour)

	// Four quarter-hour slots of 0.25 kWh make one full hour at 1 kWh.
	var slots []types.Slot
	for i := 0; i < 4; i++ {
		slots = append(slots, types.Slot{
			Start:           start.AddDate(0, 0, -1).Add(time.Duration(i) * 15 * time.Minute),
			LoadForecastKWh: 0.25,
		})
	}

	weather := []smhi.PointForecast{{ValidTime: start, CloudCoverOctas: 8}}
	p := newTestProvider(cfg, &fakeStore{slots: slots}, weather)

	out, err := p.GetForecasts(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, 1.0, out[0].LoadKWh, 1e-9)
}

func TestGetForecastsClipsToHorizon(t *testing.T) {
	cfg := forecastTestConfig()
	cfg.Planner.HorizonHours = 2
	start := time.Now().Truncate(time.Hour)

	weather := []smhi.PointForecast{
		{ValidTime: start.Add(-time.Hour)},
		{ValidTime: start},
		{ValidTime: start.Add(time.Hour)},
		{ValidTime: start.Add(2 * time.Hour)},
	}

	p := newTestProvider(cfg, &fakeStore{slots: []types.Slot{{Start: start.AddDate(0, 0, -1)}}}, weather)
	out, err := p.GetForecasts(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, start, out[0].Start)
	assert.Equal(t, start.Add(time.Hour), out[1].Start)
}

func TestGetForecastsEmptyWeatherIsAnError(t *testing.T) {
	p := newTestProvider(forecastTestConfig(), &fakeStore{}, nil)
	_, err := p.GetForecasts(context.Background())
	assert.Error(t, err)
}

func TestGetContextSignalsMeanTemperature(t *testing.T) {
	weather := []smhi.PointForecast{
		{TemperatureC: -2},
		{TemperatureC: 4},
	}
	p := newTestProvider(forecastTestConfig(), &fakeStore{}, weather)

	sig, err := p.GetContextSignals(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sig.MeanTemperatureC)
	assert.InDelta(t, 1.0, *sig.MeanTemperatureC, 1e-9)
}
