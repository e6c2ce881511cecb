package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/oskarb/kepler/config"
	"github.com/oskarb/kepler/convert"
	"github.com/oskarb/kepler/slice"
	"github.com/oskarb/kepler/smhi"
	"github.com/oskarb/kepler/types"
)

// Store is the slice of the database the forecaster reads history from.
type Store interface {
	GetActualSlots(ctx context.Context, from, to time.Time) ([]types.Slot, error)
}

// Provider builds per-hour PV and load forecasts for the planning
// horizon. PV comes from a clear-sky elevation model derated by the
// SMHI cloud cover forecast; load is the average consumption for the
// same hour of day over the recent executed slots. It also exposes the
// mean forecast temperature as a context signal for the strategy.
type Provider struct {
	cfg    *config.AppConfig
	db     Store
	logger *slog.Logger

	fetch func(ctx context.Context, lon, lat float64) ([]smhi.PointForecast, error)
}

func New(logger *slog.Logger, cfg *config.AppConfig, db Store) *Provider {
	return &Provider{
		cfg:    cfg,
		db:     db,
		logger: logger.With(slog.String("module", "forecast")),
		fetch:  smhi.Get,
	}
}

func (p *Provider) GetForecasts(ctx context.Context) ([]types.ForecastSlot, error) {
	now := time.Now()
	horizon := time.Duration(p.cfg.Planner.GetHorizonHours()) * time.Hour

	weather, err := p.fetch(ctx, p.cfg.Location.Longitude, p.cfg.Location.Latitude)
	if err != nil {
		return nil, fmt.Errorf("fetching weather forecast: %w", err)
	}

	loadByHour, err := p.historicalLoadByHour(ctx, now)
	if err != nil {
		p.logger.Warn("no usable load history, forecasting zero load", slog.Any("error", err))
	}

	start := now.Truncate(time.Hour)
	var out []types.ForecastSlot
	for _, w := range weather {
		if w.ValidTime.Before(start) || !w.ValidTime.Before(start.Add(horizon)) {
			continue
		}
		out = append(out, types.ForecastSlot{
			Start:   w.ValidTime,
			PvKWh:   p.pvEstimate(w),
			LoadKWh: loadByHour[w.ValidTime.Local().Hour()],
		})
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("weather forecast does not cover the planning horizon")
	}
	return out, nil
}

// GetContextSignals reports the mean forecast temperature over the
// horizon, feeding the strategy's cold-snap adjustment.
func (p *Provider) GetContextSignals(ctx context.Context) (types.ContextSignals, error) {
	weather, err := p.fetch(ctx, p.cfg.Location.Longitude, p.cfg.Location.Latitude)
	if err != nil {
		return types.ContextSignals{}, fmt.Errorf("fetching weather forecast: %w", err)
	}
	if len(weather) == 0 {
		return types.ContextSignals{}, nil
	}

	temps := slice.Map(weather, func(w smhi.PointForecast) float64 { return w.TemperatureC })
	mean := stat.Mean(temps, nil)
	return types.ContextSignals{MeanTemperatureC: &mean}, nil
}

// pvEstimate derates the clear-sky hourly yield by the forecast cloud
// cover, the way the original production estimate normalized history
// against cloudiness.
func (p *Provider) pvEstimate(w smhi.PointForecast) float64 {
	if p.cfg.Solar.Kwp <= 0 {
		return 0
	}
	clearSky := p.cfg.Solar.Kwp * solarElevationFactor(w.ValidTime, p.cfg.Location.Latitude)
	cloudFraction := convert.OctasToPercentage(float64(w.CloudCoverOctas)) / 100.0
	est := clearSky * (1.0 - p.cfg.Solar.GetCloudCoverImpact()*cloudFraction)
	return convert.TwoDecimals(math.Max(0, est))
}

// solarElevationFactor approximates the sine of the solar elevation at
// the middle of the given hour. Good enough for derating a nameplate
// rating, not for astronomy.
func solarElevationFactor(t time.Time, latitude float64) float64 {
	mid := t.Add(30 * time.Minute)
	day := float64(mid.YearDay())
	declination := 23.45 * math.Sin(2.0*math.Pi*(284.0+day)/365.0)

	solarHour := float64(mid.UTC().Hour()) + float64(mid.UTC().Minute())/60.0
	hourAngle := 15.0 * (solarHour - 12.0)

	lat := convert.DegToRad(latitude)
	decl := convert.DegToRad(declination)
	ha := convert.DegToRad(hourAngle)

	sinElev := math.Sin(lat)*math.Sin(decl) + math.Cos(lat)*math.Cos(decl)*math.Cos(ha)
	return math.Max(0, sinElev)
}

// historicalLoadByHour averages the recorded load per hour of day over
// the recent executed slots.
func (p *Provider) historicalLoadByHour(ctx context.Context, now time.Time) (map[int]float64, error) {
	from := now.AddDate(0, 0, -p.cfg.Planner.GetHistoryDays())
	slots, err := p.db.GetActualSlots(ctx, from, now)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("no executed slots in the last %d days", p.cfg.Planner.GetHistoryDays())
	}

	sums := make(map[int]float64, 24)
	counts := make(map[int]float64, 24)
	for _, s := range slots {
		hour := s.Start.Local().Hour()
		sums[hour] += s.LoadForecastKWh
		counts[hour]++
	}

	slotsPerHour := float64(time.Hour) / float64(p.cfg.Planner.SlotDuration())
	avg := make(map[int]float64, 24)
	for hour, sum := range sums {
		// Stored slots are sub-hourly, the forecast is per hour.
		avg[hour] = convert.TwoDecimals(sum / counts[hour] * slotsPerHour)
	}
	return avg, nil
}
