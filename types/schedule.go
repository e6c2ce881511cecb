package types

import "time"

// Schedule is the final output of one planning run: frozen historical
// slots for the current day followed by freshly solved future slots.
// It is created per run and fully replaces its predecessor on persist.
type Schedule struct {
	PlannedAt    time.Time
	HorizonStart time.Time
	HorizonEnd   time.Time
	Slots        []Slot

	ObjectiveValue float64
	SolveTimeMs    float64
	Suboptimal     bool

	// Weights the run was solved with, kept as metadata only.
	Weights StrategyWeights

	// EngineVersion tags the run with the strategy revision that
	// produced it, for comparing plans across upgrades.
	EngineVersion string
}

// FutureSlots returns the slots at or after the given time, the artifact
// consumed by the live executor.
func (s Schedule) FutureSlots(now time.Time) []Slot {
	for i, slot := range s.Slots {
		if !slot.Start.Before(now) {
			return s.Slots[i:]
		}
	}
	return nil
}

// StrategyWeights are the tunable cost coefficients for one solve. The
// strategy engine scales the configured baseline upward with the risk
// index; they never touch hard constraints.
type StrategyWeights struct {
	RiskIndex float64

	WearCostSekPerKWh            float64
	RampingCostSekPerKW          float64
	ExportProfitabilityThreshold float64

	// Terminal value of stored energy, derived from future price
	// statistics only.
	TerminalValueSekPerKWh float64

	TargetSocKWh        float64
	TargetSocPenaltySek float64

	LoadMargin   float64 // load forecast inflation factor
	PvConfidence float64 // PV forecast derating factor
}
