package planner

import (
	"github.com/oskarb/kepler/calc"
	"github.com/oskarb/kepler/config"
	"github.com/oskarb/kepler/convert"
	"github.com/oskarb/kepler/kepler"
	"github.com/oskarb/kepler/types"
)

// Formatter maps solved variable values back onto slot records: action
// label by dominant flow, numeric reason and priority codes, and the
// planned grid cash flow per slot. All values are clamped to their
// physical bounds and rounded to two decimals so repeated runs with
// identical inputs diff clean.
type Formatter struct {
	cfg *config.AppConfig
}

func NewFormatter(cfg *config.AppConfig) *Formatter {
	return &Formatter{cfg: cfg}
}

func (f *Formatter) Format(p *Problem, res kepler.Result) []types.Slot {
	battery := f.cfg.BatterySpec
	out := make([]types.Slot, len(res.Slots))

	prevSoc := p.InitialSocKWh
	for i, rs := range res.Slots {
		s := p.Slots[i]
		h := s.DurationHours()

		charge := clampRange(rs.ChargeKWh, 0, battery.MaxChargePowerKw*h)
		discharge := clampRange(rs.DischargeKWh, 0, battery.MaxDischargePowerKw*h)
		imp := rs.ImportKWh
		if f.cfg.Grid.MaxImportPowerKw > 0 {
			imp = clampRange(imp, 0, f.cfg.Grid.MaxImportPowerKw*h)
		}
		exp := rs.ExportKWh
		if f.cfg.Grid.MaxExportPowerKw > 0 {
			exp = clampRange(exp, 0, f.cfg.Grid.MaxExportPowerKw*h)
		}

		socStart := socPercent(prevSoc, battery.CapacityKWh)
		socEnd := socPercent(rs.SocKWh, battery.CapacityKWh)
		socStart = clampRange(socStart, battery.MinSocPercent, battery.MaxSocPercent)
		socEnd = clampRange(socEnd, battery.MinSocPercent, battery.MaxSocPercent)
		prevSoc = rs.SocKWh

		s.ChargeKWh = convert.TwoDecimals(charge)
		s.DischargeKWh = convert.TwoDecimals(discharge)
		s.ImportKWh = convert.TwoDecimals(imp)
		s.ExportKWh = convert.TwoDecimals(exp)
		s.WaterKWh = convert.TwoDecimals(rs.WaterKWh)
		s.SocStartPercent = convert.TwoDecimals(socStart)
		s.SocEndPercent = convert.TwoDecimals(socEnd)

		s.Action = actionFor(s, h)
		s.Reason, s.Priority = reasonFor(s)
		s.PlannedCost = convert.TwoDecimals(
			calc.GridCashFlow(s.ImportKWh, s.ExportKWh, s.ImportPrice, s.ExportPrice))
		s.Historical = false

		out[i] = s
	}
	return out
}

const flowThresholdKw = 0.01

// actionFor picks the label from the dominant flow. A discharging slot
// that also exports is an export slot.
func actionFor(s types.Slot, h float64) types.Action {
	switch {
	case s.ChargeKWh/h > flowThresholdKw:
		return types.ActionCharge
	case s.DischargeKWh/h > flowThresholdKw:
		if s.ExportKWh/h > flowThresholdKw {
			return types.ActionExport
		}
		return types.ActionDischarge
	case s.ExportKWh/h > flowThresholdKw:
		return types.ActionExport
	case s.WaterKWh > 0:
		return types.ActionWater
	default:
		return types.ActionHold
	}
}

// reasonFor summarizes which cost term dominated the decision.
func reasonFor(s types.Slot) (types.Reason, types.Priority) {
	switch {
	case s.ExportKWh > 0:
		return types.ReasonProfitableExport, types.PriorityMedium
	case s.DischargeKWh > 0:
		return types.ReasonExpensiveGridPower, types.PriorityHigh
	case s.ChargeKWh > 0:
		if s.ImportKWh > 0 {
			return types.ReasonCheapGridPower, types.PriorityHigh
		}
		return types.ReasonExcessPv, types.PriorityHigh
	case s.WaterKWh > 0:
		return types.ReasonWaterHeating, types.PriorityMedium
	default:
		return types.ReasonNoActionNeeded, types.PriorityLow
	}
}

func socPercent(kwh, capacity float64) float64 {
	if capacity <= 0 {
		return 0
	}
	return kwh / capacity * 100.0
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
