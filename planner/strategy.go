package planner

import (
	"log/slog"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/oskarb/kepler/config"
	"github.com/oskarb/kepler/types"
)

// Buffer multiplier per risk appetite: how much of the computed risk
// buffer to actually apply. Gambler runs a negative buffer and bets on
// the next replan.
var bufferMultiplier = map[int]float64{
	1: 1.5,
	2: 1.2,
	3: 1.0,
	4: 0.5,
	5: -0.5,
}

// Fixed target SoC buffer in percentage points above min SoC, per risk
// appetite. Guarantees level 1 always ends up above level 2, and so on,
// regardless of weather.
var levelBuffer = map[int]float64{
	1: 35.0,
	2: 20.0,
	3: 10.0,
	4: 3.0,
	5: -7.0,
}

// Penalty for missing the terminal SoC target, per risk appetite.
// Safety mode makes the target nearly binding, gambler mode lets the
// economics trade it away.
var riskPenalty = map[int]float64{
	1: 20.0,
	2: 14.0,
	3: 8.0,
	4: 5.0,
	5: 2.0,
}

// Strategy computes the per-run weight overlay: a risk index derived
// from tomorrow's PV deficit and temperature extremity, scaled into a
// load safety margin, a terminal SoC target and a terminal value. It
// only ever touches cost coefficients, never hard constraints, and is
// deterministic for identical inputs.
type Strategy struct {
	cfg    *config.AppConfig
	logger *slog.Logger
}

func NewStrategy(logger *slog.Logger, cfg *config.AppConfig) *Strategy {
	return &Strategy{
		cfg:    cfg,
		logger: logger.With(slog.String("module", "strategy")),
	}
}

// ComputeWeights derives the StrategyWeights overlay for one run from
// the merged horizon and the contextual signals. Baseline weights from
// config are floors, the risk index only scales upward.
func (s *Strategy) ComputeWeights(slots []types.Slot, signals types.ContextSignals, now time.Time) types.StrategyWeights {
	sc := s.cfg.Strategy
	appetite := sc.GetRiskAppetite()

	deficit := s.weightedPvDeficit(slots, now)
	tempAdj := s.temperatureAdjustment(signals)

	// Raw risk factor before the appetite multiplier. Deficit and cold
	// only ever push it up from the baseline.
	rawFactor := sc.GetBaseFactor() + sc.PvDeficitWeight*deficit + sc.TempWeight*tempAdj

	buffer := (rawFactor - 1.0) * bufferMultiplier[appetite]
	riskFactor := clamp(1.0+buffer, sc.GetMinFactor(), sc.GetMaxFactor())

	// Load margin uses the unscaled factor: the safety margin on load is
	// a forecasting concern, the appetite only moves the SoC target.
	loadMargin := clamp(rawFactor, sc.GetBaseFactor(), sc.GetMaxFactor())

	w := types.StrategyWeights{
		RiskIndex:                    riskFactor,
		WearCostSekPerKWh:            s.cfg.BatterySpec.WearCostSekPerKWh,
		RampingCostSekPerKW:          sc.RampingCostSekPerKw,
		ExportProfitabilityThreshold: sc.ExportThresholdSekKWh,
		LoadMargin:                   loadMargin,
		PvConfidence:                 sc.GetPvConfidence(),
	}

	w.TerminalValueSekPerKWh = s.terminalValue(slots, riskFactor)

	if s.cfg.System.HasBattery {
		pct, kwh := s.targetSoc(rawFactor, appetite)
		w.TargetSocKWh = kwh
		w.TargetSocPenaltySek = riskPenalty[appetite]
		s.logger.Debug("strategy weights computed",
			slog.Float64("risk_index", riskFactor),
			slog.Float64("pv_deficit", deficit),
			slog.Float64("temp_adjustment", tempAdj),
			slog.Float64("load_margin", loadMargin),
			slog.Float64("target_soc_percent", pct),
			slog.Float64("terminal_value", w.TerminalValueSekPerKWh))
	}

	return w
}

// weightedPvDeficit sums tomorrow's and the day after's forecast
// deficit ratio (load - pv) / load, weighted 70/30 towards tomorrow.
func (s *Strategy) weightedPvDeficit(slots []types.Slot, now time.Time) float64 {
	type daySum struct{ load, pv float64 }
	byOffset := map[int]*daySum{1: {}, 2: {}}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, slot := range slots {
		local := slot.Start.In(now.Location())
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, now.Location())
		offset := int(day.Sub(today).Hours() / 24)
		if agg, ok := byOffset[offset]; ok {
			agg.load += slot.LoadForecastKWh
			agg.pv += slot.PvForecastKWh
		}
	}

	deficit := 0.0
	for _, dw := range []struct {
		offset int
		weight float64
	}{{1, 0.7}, {2, 0.3}} {
		agg := byOffset[dw.offset]
		if agg.load <= 0 {
			continue
		}
		ratio := clamp((agg.load-agg.pv)/agg.load, -1.0, 1.0)
		if ratio < 0 {
			ratio = 0
		}
		deficit += dw.weight * ratio
	}
	return deficit
}

// temperatureAdjustment maps the mean forecast temperature onto 0..1,
// 0 at the baseline and 1 at the configured cold extreme.
func (s *Strategy) temperatureAdjustment(signals types.ContextSignals) float64 {
	if s.cfg.Strategy.TempWeight <= 0 || signals.MeanTemperatureC == nil {
		return 0
	}
	span := s.cfg.Strategy.GetTempBaselineC() - s.cfg.Strategy.GetTempColdC()
	if span <= 0 {
		span = 1.0
	}
	return clamp((s.cfg.Strategy.GetTempBaselineC()-*signals.MeanTemperatureC)/span, 0, 1)
}

// terminalValue prices the energy left in the battery at the end of the
// horizon: the average import price over the remaining horizon times
// the risk factor. Strictly future prices, never acquisition cost.
func (s *Strategy) terminalValue(slots []types.Slot, riskFactor float64) float64 {
	if len(slots) == 0 {
		return 0
	}
	prices := make([]float64, len(slots))
	for i, slot := range slots {
		prices[i] = slot.ImportPrice
	}
	return stat.Mean(prices, nil) * riskFactor
}

// targetSoc is the terminal SoC target: min SoC plus a fixed buffer per
// appetite level, nudged by the weather factor capped at eight points
// either way, floored at five percent.
func (s *Strategy) targetSoc(rawFactor float64, appetite int) (pct, kwh float64) {
	weatherAdj := clamp((rawFactor-1.0)*40.0, -8.0, 8.0)
	pct = s.cfg.BatterySpec.MinSocPercent + levelBuffer[appetite] + weatherAdj
	pct = clamp(pct, 5.0, 100.0)
	kwh = pct / 100.0 * s.cfg.BatterySpec.CapacityKWh
	return pct, kwh
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
