package planner

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oskarb/kepler/config"
	"github.com/oskarb/kepler/types"
)

func plannerTestConfig() *config.AppConfig {
	return &config.AppConfig{
		System: config.AppConfigSystem{
			HasBattery: true,
			HasSolar:   true,
		},
		BatterySpec: config.AppConfigBatterySpec{
			CapacityKWh:         10,
			MinSocPercent:       10,
			MaxSocPercent:       90,
			MaxChargePowerKw:    5,
			MaxDischargePowerKw: 5,
			ChargeEfficiency:    0.95,
			DischargeEfficiency: 0.95,
			WearCostSekPerKWh:   0.05,
		},
		Grid: config.AppConfigGrid{
			MaxImportPowerKw: 11,
			MaxExportPowerKw: 11,
		},
		Solar: config.AppConfigSolar{Kwp: 5},
		Planner: config.AppConfigPlanner{
			SlotMinutes:  60,
			HorizonHours: 48,
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func hourlyPrices(start time.Time, n int, price float64) []types.PriceSlot {
	out := make([]types.PriceSlot, n)
	for i := range out {
		out[i] = types.PriceSlot{
			Start:       start.Add(time.Duration(i) * time.Hour),
			End:         start.Add(time.Duration(i+1) * time.Hour),
			ImportPrice: price,
			ExportPrice: price / 2,
		}
	}
	return out
}

func TestMergeEmptyPricesIsMissingColumn(t *testing.T) {
	a := NewAdapter(testLogger(), plannerTestConfig())

	_, err := a.Merge(ProblemData{}, time.Now())

	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, types.IssueMissingColumn, dataErr.Code)
	assert.Equal(t, "import_price_sek_kwh", dataErr.Column)
}

func TestMergeStalePrices(t *testing.T) {
	a := NewAdapter(testLogger(), plannerTestConfig())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := a.Merge(ProblemData{
		Prices: hourlyPrices(now.Add(-6*time.Hour), 4, 1.0),
	}, now)

	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, types.IssueStalePrices, dataErr.Code)
}

func TestMergeRecoversMissingEndTime(t *testing.T) {
	a := NewAdapter(testLogger(), plannerTestConfig())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	prices := hourlyPrices(now, 3, 1.0)
	prices[1].End = time.Time{}
	prices[2].End = time.Time{}

	slots, err := a.Merge(ProblemData{Prices: prices}, now)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.True(t, slots[1].End.Equal(prices[2].Start))
	// The last slot has no successor, so its end comes from the
	// configured slot duration.
	assert.True(t, slots[2].End.Equal(slots[2].Start.Add(time.Hour)))
}

func TestMergeJoinsForecastsAndForwardFillsLoad(t *testing.T) {
	a := NewAdapter(testLogger(), plannerTestConfig())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	forecasts := []types.ForecastSlot{
		{Start: now, PvKWh: 2.5, LoadKWh: 1.2},
		{Start: now.Add(time.Hour), PvKWh: 1.0, LoadKWh: 0.8},
	}

	slots, err := a.Merge(ProblemData{
		Prices:    hourlyPrices(now, 4, 1.0),
		Forecasts: forecasts,
	}, now)
	require.NoError(t, err)
	require.Len(t, slots, 4)

	assert.Equal(t, 2.5, slots[0].PvForecastKWh)
	assert.Equal(t, 1.2, slots[0].LoadForecastKWh)
	assert.Equal(t, 0.8, slots[1].LoadForecastKWh)
	// No forecast beyond hour two: PV defaults to zero, load carries
	// the last known value forward.
	assert.Equal(t, 0.0, slots[2].PvForecastKWh)
	assert.Equal(t, 0.8, slots[2].LoadForecastKWh)
	assert.Equal(t, 0.8, slots[3].LoadForecastKWh)
}

func TestMergeClipsToHorizon(t *testing.T) {
	cfg := plannerTestConfig()
	cfg.Planner.HorizonHours = 2
	a := NewAdapter(testLogger(), cfg)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	slots, err := a.Merge(ProblemData{
		Prices: hourlyPrices(now.Add(-2*time.Hour), 8, 1.0),
	}, now)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].Start.Equal(now))
	assert.True(t, slots[1].End.Equal(now.Add(2*time.Hour)))
}

func TestMergeDisjointForecastsRejected(t *testing.T) {
	a := NewAdapter(testLogger(), plannerTestConfig())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, err := a.Merge(ProblemData{
		Prices: hourlyPrices(now, 4, 1.0),
		Forecasts: []types.ForecastSlot{
			{Start: now.Add(-24 * time.Hour), LoadKWh: 1.0},
		},
	}, now)

	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Equal(t, types.IssueColumnMismatch, dataErr.Code)
	assert.Equal(t, "load_forecast_kwh", dataErr.Column)
}

func TestMergeZeroesPvWithoutSolar(t *testing.T) {
	cfg := plannerTestConfig()
	cfg.System.HasSolar = false
	a := NewAdapter(testLogger(), cfg)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	slots, err := a.Merge(ProblemData{
		Prices: hourlyPrices(now, 2, 1.0),
		Forecasts: []types.ForecastSlot{
			{Start: now, PvKWh: 3.0, LoadKWh: 1.0},
			{Start: now.Add(time.Hour), PvKWh: 3.0, LoadKWh: 1.0},
		},
	}, now)
	require.NoError(t, err)
	for _, s := range slots {
		assert.Equal(t, 0.0, s.PvForecastKWh)
	}
}

func TestLowerAppliesMarginsAndLiveState(t *testing.T) {
	a := NewAdapter(testLogger(), plannerTestConfig())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	slots := []types.Slot{{
		Start:           now,
		End:             now.Add(time.Hour),
		ImportPrice:     1.0,
		ExportPrice:     0.5,
		PvForecastKWh:   2.0,
		LoadForecastKWh: 1.0,
	}}
	weights := types.StrategyWeights{
		PvConfidence:           0.9,
		LoadMargin:             1.2,
		WearCostSekPerKWh:      0.05,
		TerminalValueSekPerKWh: 1.1,
	}
	live := types.LiveState{BatterySocPercent: 50}

	p := a.Lower(slots, weights, live)

	assert.InDelta(t, 5.0, p.InitialSocKWh, 1e-9)
	assert.InDelta(t, 5.0, p.Input.InitialSocKWh, 1e-9)
	require.Len(t, p.Input.Slots, 1)
	assert.InDelta(t, 1.8, p.Input.Slots[0].PvKWh, 1e-9)
	assert.InDelta(t, 1.2, p.Input.Slots[0].LoadKWh, 1e-9)
	assert.InDelta(t, 1.8, p.Slots[0].PvForecastKWh, 1e-9)
	assert.Equal(t, 10.0, p.Config.CapacityKWh)
	assert.Equal(t, 0.95, p.Config.ChargeEfficiency)
	assert.Equal(t, 1.1, p.Config.TerminalValueSekPerKWh)
	// No water heater configured, so no water fields leak through.
	assert.Equal(t, 0.0, p.Config.WaterPowerKw)
	assert.Nil(t, p.Config.TargetSocKWh)
}

func TestLowerTargetSocAndWaterHeater(t *testing.T) {
	cfg := plannerTestConfig()
	cfg.System.HasWaterHeater = true
	cfg.WaterHeater = config.AppConfigWaterHeater{
		PowerKw:        3,
		MinKWhPerDay:   6,
		MaxGapHours:    8,
		GapPenaltySek:  2,
		DeferUpToHours: 6,
	}
	a := NewAdapter(testLogger(), cfg)

	weights := types.StrategyWeights{
		PvConfidence:        1,
		LoadMargin:          1,
		TargetSocKWh:        4.5,
		TargetSocPenaltySek: 8,
	}
	live := types.LiveState{BatterySocPercent: 30, WaterHeatedTodayKWh: 2.5}

	p := a.Lower(nil, weights, live)

	require.NotNil(t, p.Config.TargetSocKWh)
	assert.Equal(t, 4.5, *p.Config.TargetSocKWh)
	assert.Equal(t, 8.0, p.Config.TargetSocPenaltySek)
	assert.Equal(t, 3.0, p.Config.WaterPowerKw)
	assert.Equal(t, 6.0, p.Config.WaterMinKWhPerDay)
	assert.Equal(t, 2.5, p.Config.WaterHeatedTodayKWh)
}

func TestLowerDisabledBatteryZeroesPower(t *testing.T) {
	cfg := plannerTestConfig()
	cfg.System.HasBattery = false
	a := NewAdapter(testLogger(), cfg)

	p := a.Lower(nil, types.StrategyWeights{PvConfidence: 1, LoadMargin: 1}, types.LiveState{})

	assert.Equal(t, 0.0, p.Config.MaxChargePowerKw)
	assert.Equal(t, 0.0, p.Config.MaxDischargePowerKw)
}

func TestDataErrorUnwrapsThroughWrapping(t *testing.T) {
	inner := &DataError{Code: types.IssueStalePrices, Column: "import_price_sek_kwh", Reason: "stale"}
	wrapped := &TransientError{Op: "prices", Err: inner}

	var dataErr *DataError
	assert.True(t, errors.As(wrapped, &dataErr))
	assert.Equal(t, types.IssueStalePrices, dataErr.Code)
}
