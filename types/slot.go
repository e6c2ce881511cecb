package types

import (
	"fmt"
	"time"
)

// Action is the dominant flow in a slot, used for display and for the
// live executor's dispatch decision.
type Action string

const (
	ActionCharge    Action = "charge"
	ActionDischarge Action = "discharge"
	ActionExport    Action = "export"
	ActionWater     Action = "water"
	ActionHold      Action = "hold"
)

// Reason codes summarize which cost term dominated the slot decision.
type Reason int

const (
	ReasonNoActionNeeded Reason = iota
	ReasonCheapGridPower
	ReasonExcessPv
	ReasonExpensiveGridPower
	ReasonProfitableExport
	ReasonWaterHeating
)

func (r Reason) String() string {
	switch r {
	case ReasonNoActionNeeded:
		return "no_action_needed"
	case ReasonCheapGridPower:
		return "cheap_grid_power"
	case ReasonExcessPv:
		return "excess_pv"
	case ReasonExpensiveGridPower:
		return "expensive_grid_power"
	case ReasonProfitableExport:
		return "profitable_export"
	case ReasonWaterHeating:
		return "water_heating"
	default:
		return "unknown"
	}
}

type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Slot is one fixed-duration scheduling bucket. Forecast fields are inputs,
// the rest is filled in by the solver/formatter. Historical slots come from
// the persisted ground truth and are never touched by planning.
type Slot struct {
	Index int       `json:"slot_number"`
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`

	ImportPrice     float64 `json:"import_price_sek_kwh"`
	ExportPrice     float64 `json:"export_price_sek_kwh"`
	PvForecastKWh   float64 `json:"pv_forecast_kwh"`
	LoadForecastKWh float64 `json:"load_forecast_kwh"`

	ChargeKWh    float64 `json:"planned_charge_kwh"`
	DischargeKWh float64 `json:"planned_discharge_kwh"`
	ImportKWh    float64 `json:"planned_import_kwh"`
	ExportKWh    float64 `json:"planned_export_kwh"`
	WaterKWh     float64 `json:"planned_water_heating_kwh"`

	SocStartPercent float64 `json:"soc_start_percent"`
	SocEndPercent   float64 `json:"planned_soc_percent"`

	Action      Action   `json:"action"`
	Reason      Reason   `json:"reason"`
	Priority    Priority `json:"priority"`
	PlannedCost float64  `json:"planned_cost_sek"`

	Historical bool `json:"is_historical"`
}

// DurationHours returns the slot length in hours.
func (s Slot) DurationHours() float64 {
	return s.End.Sub(s.Start).Hours()
}

// Horizon is an ordered gap-free sequence of slots from "now" to the
// planning boundary.
type Horizon struct {
	Slots []Slot
}

// Validate checks that the slots are ordered, gap-free and of positive
// duration.
func (h Horizon) Validate() error {
	for i, s := range h.Slots {
		if !s.End.After(s.Start) {
			return fmt.Errorf("slot %d has non-positive duration (%s..%s)", i, s.Start, s.End)
		}
		if i > 0 && !h.Slots[i-1].End.Equal(s.Start) {
			return fmt.Errorf("gap between slot %d and %d (%s != %s)", i-1, i, h.Slots[i-1].End, s.Start)
		}
	}
	return nil
}

// FloorToSlot truncates t to a slot boundary.
func FloorToSlot(t time.Time, slotDuration time.Duration) time.Time {
	return t.Truncate(slotDuration)
}

// CeilToSlot rounds t up to the next slot boundary (identity if already
// on a boundary).
func CeilToSlot(t time.Time, slotDuration time.Duration) time.Time {
	floored := t.Truncate(slotDuration)
	if floored.Equal(t) {
		return t
	}
	return floored.Add(slotDuration)
}
