package planner

import (
	"log/slog"
	"sort"
	"time"

	"github.com/oskarb/kepler/config"
	"github.com/oskarb/kepler/kepler"
	"github.com/oskarb/kepler/types"
)

// ProblemData is the raw material for one planning run, pulled from the
// external providers before the adapter touches it.
type ProblemData struct {
	Prices    []types.PriceSlot
	Forecasts []types.ForecastSlot
	Live      types.LiveState
}

// Problem is one validated, solver-ready instance. Slots carry the
// margin-adjusted forecasts for the formatter, Input and Config are
// what the solver consumes.
type Problem struct {
	Slots  []types.Slot
	Input  kepler.Input
	Config kepler.Config

	InitialSocKWh float64
}

// Adapter turns raw per-slot price/forecast series into a validated
// problem instance. It is a pure transform, all fetching happens in the
// pipeline.
type Adapter struct {
	cfg    *config.AppConfig
	logger *slog.Logger
}

func NewAdapter(logger *slog.Logger, cfg *config.AppConfig) *Adapter {
	return &Adapter{
		cfg:    cfg,
		logger: logger.With(slog.String("module", "adapter")),
	}
}

// Merge joins the price and forecast series on slot start time into a
// gap-free horizon from now to the configured boundary. The price series
// is the authoritative time index; a price slot without an end time is
// recovered from the next slot's start instead of failing the run.
// Missing PV values become zero, missing load values carry the last
// known one forward.
func (a *Adapter) Merge(data ProblemData, now time.Time) ([]types.Slot, error) {
	if len(data.Prices) == 0 {
		return nil, &DataError{
			Code:   types.IssueMissingColumn,
			Column: "import_price_sek_kwh",
			Reason: "price series is empty",
		}
	}

	prices := make([]types.PriceSlot, len(data.Prices))
	copy(prices, data.Prices)
	sort.Slice(prices, func(i, j int) bool { return prices[i].Start.Before(prices[j].Start) })

	slotDur := a.cfg.Planner.SlotDuration()
	for i := range prices {
		if prices[i].End.IsZero() {
			if i+1 < len(prices) {
				prices[i].End = prices[i+1].Start
			} else {
				prices[i].End = prices[i].Start.Add(slotDur)
			}
			a.logger.Debug("recovered missing slot end time",
				slog.Time("start", prices[i].Start))
		}
	}

	last := prices[len(prices)-1]
	if !last.End.After(now) {
		return nil, &DataError{
			Code:   types.IssueStalePrices,
			Column: "import_price_sek_kwh",
			Reason: "price series ends before now, prices are stale",
		}
	}

	boundary := now.Add(time.Duration(a.cfg.Planner.GetHorizonHours()) * time.Hour)

	pvByStart := make(map[time.Time]float64, len(data.Forecasts))
	loadByStart := make(map[time.Time]float64, len(data.Forecasts))
	for _, f := range data.Forecasts {
		pvByStart[f.Start.UTC()] = f.PvKWh
		loadByStart[f.Start.UTC()] = f.LoadKWh
	}

	var slots []types.Slot
	lastLoad := 0.0
	matched := 0
	for _, p := range prices {
		if p.Start.Before(now) || !p.Start.Before(boundary) {
			continue
		}
		s := types.Slot{
			Start:       p.Start,
			End:         p.End,
			ImportPrice: p.ImportPrice,
			ExportPrice: p.ExportPrice,
		}
		key := p.Start.UTC()
		if pv, ok := pvByStart[key]; ok {
			s.PvForecastKWh = pv
		}
		if load, ok := loadByStart[key]; ok {
			s.LoadForecastKWh = load
			lastLoad = load
			matched++
		} else {
			s.LoadForecastKWh = lastLoad
		}
		slots = append(slots, s)
	}

	if len(slots) == 0 {
		return nil, &DataError{
			Code:   types.IssueColumnMismatch,
			Column: "import_price_sek_kwh",
			Reason: "no price slots fall inside the planning horizon",
		}
	}
	if matched == 0 && len(data.Forecasts) > 0 {
		return nil, &DataError{
			Code:   types.IssueColumnMismatch,
			Column: "load_forecast_kwh",
			Reason: "forecast series does not overlap the price horizon",
		}
	}

	if !a.cfg.System.HasSolar {
		for i := range slots {
			slots[i].PvForecastKWh = 0
		}
	}

	h := types.Horizon{Slots: slots}
	if err := h.Validate(); err != nil {
		return nil, &DataError{
			Code:   types.IssueColumnMismatch,
			Column: "start_time",
			Reason: err.Error(),
		}
	}
	return slots, nil
}

// Lower applies the strategy weights as safety margins and produces the
// solver input and config. The current SoC comes straight from the live
// state, planning never recomputes it.
func (a *Adapter) Lower(slots []types.Slot, weights types.StrategyWeights, live types.LiveState) *Problem {
	battery := a.cfg.BatterySpec

	initialSoc := live.BatterySocPercent / 100.0 * battery.CapacityKWh

	in := kepler.Input{
		Slots:         make([]kepler.InputSlot, len(slots)),
		InitialSocKWh: initialSoc,
	}
	adjusted := make([]types.Slot, len(slots))
	for i, s := range slots {
		pv := s.PvForecastKWh * weights.PvConfidence
		load := s.LoadForecastKWh * weights.LoadMargin
		adjusted[i] = s
		adjusted[i].PvForecastKWh = pv
		adjusted[i].LoadForecastKWh = load
		in.Slots[i] = kepler.InputSlot{
			Start:       s.Start,
			End:         s.End,
			PvKWh:       pv,
			LoadKWh:     load,
			ImportPrice: s.ImportPrice,
			ExportPrice: s.ExportPrice,
		}
	}

	cfg := kepler.Config{
		CapacityKWh:         battery.CapacityKWh,
		MinSocPercent:       battery.MinSocPercent,
		MaxSocPercent:       battery.MaxSocPercent,
		MaxChargePowerKw:    battery.MaxChargePowerKw,
		MaxDischargePowerKw: battery.MaxDischargePowerKw,
		ChargeEfficiency:    battery.GetChargeEfficiency(),
		DischargeEfficiency: battery.GetDischargeEfficiency(),
		WearCostSekPerKWh:   weights.WearCostSekPerKWh,

		MaxExportPowerKw:  a.cfg.Grid.MaxExportPowerKw,
		MaxImportPowerKw:  a.cfg.Grid.MaxImportPowerKw,
		GridImportLimitKw: a.cfg.Grid.PeakShavingLimitKw,

		TerminalValueSekPerKWh:   weights.TerminalValueSekPerKWh,
		RampingCostSekPerKw:      weights.RampingCostSekPerKW,
		ExportThresholdSekPerKWh: weights.ExportProfitabilityThreshold,

		Timeout: a.cfg.Planner.SolveTimeout(),
	}

	if !a.cfg.System.HasBattery {
		cfg.MaxChargePowerKw = 0
		cfg.MaxDischargePowerKw = 0
	}

	if weights.TargetSocKWh > 0 {
		target := weights.TargetSocKWh
		cfg.TargetSocKWh = &target
		cfg.TargetSocPenaltySek = weights.TargetSocPenaltySek
	}

	water := a.cfg.WaterHeater
	if a.cfg.System.HasWaterHeater && water.PowerKw > 0 {
		cfg.WaterPowerKw = water.PowerKw
		cfg.WaterMinKWhPerDay = water.MinKWhPerDay
		cfg.WaterMaxGapHours = water.MaxGapHours
		cfg.WaterGapPenaltySek = water.GapPenaltySek
		cfg.WaterMinSpacingHours = water.GetMinSpacingHours()
		cfg.WaterSpacingPenaltySek = water.SpacingPenaltySek
		cfg.WaterBlockStartPenaltySek = water.BlockStartPenaltySek
		cfg.DeferUpToHours = water.DeferUpToHours
		cfg.WaterHeatedTodayKWh = live.WaterHeatedTodayKWh
	}

	return &Problem{
		Slots:         adjusted,
		Input:         in,
		Config:        cfg,
		InitialSocKWh: initialSoc,
	}
}
