package kepler

import "time"

// Config holds the physical and economic parameters for one solve.
// Power limits of 0 mean unlimited, a water power of 0 disables the
// water heater entirely.
type Config struct {
	CapacityKWh         float64
	MinSocPercent       float64
	MaxSocPercent       float64
	MaxChargePowerKw    float64
	MaxDischargePowerKw float64
	ChargeEfficiency    float64
	DischargeEfficiency float64
	WearCostSekPerKWh   float64

	MaxExportPowerKw float64
	MaxImportPowerKw float64

	// Soft grid import limit, breaches are penalized rather than forbidden.
	GridImportLimitKw float64

	// Terminal SoC target, bidirectional soft constraint. Nil disables it.
	TargetSocKWh        *float64
	TargetSocPenaltySek float64

	TerminalValueSekPerKWh   float64
	RampingCostSekPerKw      float64
	ExportThresholdSekPerKWh float64

	WaterPowerKw              float64
	WaterMinKWhPerDay         float64
	WaterMaxGapHours          float64
	WaterHeatedTodayKWh       float64
	WaterGapPenaltySek        float64
	WaterMinSpacingHours      float64
	WaterSpacingPenaltySek    float64
	WaterBlockStartPenaltySek float64

	// Slots that start before this hour of the day count against the
	// previous day's water quota.
	DeferUpToHours float64

	// Wall clock cap for the branch and bound search. Zero means no cap.
	Timeout time.Duration
}

type InputSlot struct {
	Start       time.Time
	End         time.Time
	LoadKWh     float64
	PvKWh       float64
	ImportPrice float64
	ExportPrice float64
}

type Input struct {
	Slots         []InputSlot
	InitialSocKWh float64
}

type ResultSlot struct {
	Start        time.Time
	End          time.Time
	ChargeKWh    float64
	DischargeKWh float64
	ImportKWh    float64
	ExportKWh    float64
	WaterKWh     float64
	SocKWh       float64
	CostSek      float64
}

type Status string

const (
	StatusOptimal    Status = "optimal"
	StatusSuboptimal Status = "suboptimal"
	StatusInfeasible Status = "infeasible"
)

type Result struct {
	Slots        []ResultSlot
	TotalCostSek float64
	Objective    float64
	Status       Status
	// Names of soft constraints that had to be relaxed to find a
	// solution, in the order they were applied.
	Relaxed   []string
	Warnings  []string
	SolveTime time.Duration
	Nodes     int
}
