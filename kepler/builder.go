package kepler

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/oskarb/kepler/calc"
)

// rowKind is the sense of a linear constraint.
type rowKind int

const (
	rowLE rowKind = iota
	rowGE
	rowEQ
)

type term struct {
	v int
	c float64
}

type row struct {
	name  string
	kind  rowKind
	terms []term
	rhs   float64
}

// model is an explicit variable and constraint registry. Every variable
// has a name and bounds, every constraint is a named row, and the whole
// thing lowers to the gonum lp standard form in one place. That keeps
// each constraint enumerable and testable on its own.
type model struct {
	names []string
	lb    []float64
	ub    []float64
	obj   []float64
	rows  []row
}

func newModel() *model {
	return &model{}
}

// addVar registers a continuous variable and returns its index.
func (m *model) addVar(name string, lb, ub float64) int {
	m.names = append(m.names, name)
	m.lb = append(m.lb, lb)
	m.ub = append(m.ub, ub)
	m.obj = append(m.obj, 0)
	return len(m.names) - 1
}

// addObj accumulates an objective coefficient onto a variable.
func (m *model) addObj(v int, c float64) {
	m.obj[v] += c
}

func (m *model) addRow(name string, kind rowKind, rhs float64, terms ...term) {
	m.rows = append(m.rows, row{name: name, kind: kind, terms: terms, rhs: rhs})
}

// bounds is a branch-and-bound override of one variable's box.
type bounds struct {
	lb, ub float64
}

// simplexTol is the pivot tolerance for the simplex method. The big-M
// penalty coefficients make tighter tolerances misreport bounded models
// as unbounded.
const simplexTol = 1e-7

// solveLP lowers the model to the gonum standard form directly: every
// variable is shifted by its lower bound so no free-variable split is
// needed, and each finite upper bound and inequality row gets one slack
// column. overrides narrows variable boxes for branch-and-bound nodes.
// The returned vector is indexed by original variable index.
func (m *model) solveLP(overrides map[int]bounds) (float64, []float64, error) {
	n := len(m.names)
	if len(m.rows) == 0 {
		return 0, nil, fmt.Errorf("degenerate model: no constraint rows")
	}

	lo := slices.Clone(m.lb)
	hi := slices.Clone(m.ub)
	for v, b := range overrides {
		lo[v] = math.Max(lo[v], b.lb)
		hi[v] = math.Min(hi[v], b.ub)
		if lo[v] > hi[v] {
			return 0, nil, lp.ErrInfeasible
		}
	}

	nBound := 0
	for v := 0; v < n; v++ {
		if !math.IsInf(hi[v], 1) {
			nBound++
		}
	}
	cols := n + nBound
	for _, r := range m.rows {
		if r.kind != rowEQ {
			cols++
		}
	}
	rows := len(m.rows) + nBound

	a := mat.NewDense(rows, cols, nil)
	b := make([]float64, rows)
	c := make([]float64, cols)
	copy(c, m.obj)

	// Shifting x = lo + y moves a constant into the objective.
	shift := 0.0
	for v := 0; v < n; v++ {
		shift += m.obj[v] * lo[v]
	}

	slack := n
	ri := 0
	for _, r := range m.rows {
		rhs := r.rhs
		for _, t := range r.terms {
			a.Set(ri, t.v, a.At(ri, t.v)+t.c)
			rhs -= t.c * lo[t.v]
		}
		switch r.kind {
		case rowLE:
			a.Set(ri, slack, 1)
			slack++
		case rowGE:
			a.Set(ri, slack, -1)
			slack++
		}
		b[ri] = rhs
		ri++
	}
	for v := 0; v < n; v++ {
		if math.IsInf(hi[v], 1) {
			continue
		}
		a.Set(ri, v, 1)
		a.Set(ri, slack, 1)
		slack++
		b[ri] = hi[v] - lo[v]
		ri++
	}

	opt, sol, err := lp.Simplex(c, a, b, simplexTol, nil)
	if err != nil {
		return 0, nil, err
	}

	x := make([]float64, n)
	for v := 0; v < n; v++ {
		x[v] = sol[v] + lo[v]
	}
	return opt + shift, x, nil
}

// problem is one lowered scheduling instance: the model plus the index
// maps needed to read a solution back out per slot.
type problem struct {
	m     *model
	T     int
	hours []float64

	charge     []int
	discharge  []int
	gridImport []int
	gridExport []int
	soc        []int
	waterHeat  []int

	// Variables that must end up integral, in deterministic order.
	binaries []int

	warnings []string
}

// Penalty constants for the slack economics. The min SoC penalty is
// effectively a hard constraint, load shedding is priced so it only
// appears when the balance cannot close any other way.
const (
	minSocPenalty       = 1000.0
	curtailmentPenalty  = 0.1
	loadSheddingPenalty = 10000.0
	importBreachPenalty = 5000.0
)

// build lowers one horizon into a problem instance. relax switches off
// individual soft cost terms when the ladder in relax.go is climbing.
func build(in Input, cfg Config, relax relaxation) *problem {
	T := len(in.Slots)
	m := newModel()
	p := &problem{
		m:          m,
		T:          T,
		hours:      make([]float64, T),
		charge:     make([]int, T),
		discharge:  make([]int, T),
		gridImport: make([]int, T),
		gridExport: make([]int, T),
		soc:        make([]int, T+1),
	}

	for t, s := range in.Slots {
		p.hours[t] = s.End.Sub(s.Start).Hours()
	}
	avgHours := 0.25
	if T > 0 {
		sum := 0.0
		for _, h := range p.hours {
			sum += h
		}
		avgHours = sum / float64(T)
	}

	minSocKWh := cfg.CapacityKWh * cfg.MinSocPercent / 100.0
	maxSocKWh := cfg.CapacityKWh * cfg.MaxSocPercent / 100.0

	waterEnabled := cfg.WaterPowerKw > 0

	curtail := make([]int, T)
	shed := make([]int, T)
	socViol := make([]int, T+1)
	importBreach := make([]int, T)
	rampUp := make([]int, T)
	rampDown := make([]int, T)
	var waterStart, spacingViol []int
	if waterEnabled {
		p.waterHeat = make([]int, T)
		waterStart = make([]int, T)
		spacingViol = make([]int, T)
	}

	for t := 0; t < T; t++ {
		h := p.hours[t]
		s := in.Slots[t]
		p.charge[t] = m.addVar(fmt.Sprintf("charge[%d]", t), 0, cfg.MaxChargePowerKw*h)
		p.discharge[t] = m.addVar(fmt.Sprintf("discharge[%d]", t), 0, cfg.MaxDischargePowerKw*h)
		impUB := math.Inf(1)
		if cfg.MaxImportPowerKw > 0 {
			impUB = cfg.MaxImportPowerKw * h
		}
		p.gridImport[t] = m.addVar(fmt.Sprintf("import[%d]", t), 0, impUB)
		expUB := math.Inf(1)
		if cfg.MaxExportPowerKw > 0 {
			expUB = cfg.MaxExportPowerKw * h
		}
		p.gridExport[t] = m.addVar(fmt.Sprintf("export[%d]", t), 0, expUB)
		// Slack variables carry the largest value their balance row can
		// ever force, keeping every column bounded.
		maxDemand := s.LoadKWh
		if waterEnabled {
			maxDemand += cfg.WaterPowerKw * h
		}
		curtail[t] = m.addVar(fmt.Sprintf("curtail[%d]", t), 0, s.PvKWh+cfg.MaxDischargePowerKw*h)
		shed[t] = m.addVar(fmt.Sprintf("shed[%d]", t), 0, maxDemand)
		importBreach[t] = m.addVar(fmt.Sprintf("import_breach[%d]", t), 0, impUB)
		rampUB := (cfg.MaxChargePowerKw + cfg.MaxDischargePowerKw) * h
		rampUp[t] = m.addVar(fmt.Sprintf("ramp_up[%d]", t), 0, rampUB)
		rampDown[t] = m.addVar(fmt.Sprintf("ramp_down[%d]", t), 0, rampUB)
		if waterEnabled {
			p.waterHeat[t] = m.addVar(fmt.Sprintf("water_heat[%d]", t), 0, 1)
			waterStart[t] = m.addVar(fmt.Sprintf("water_start[%d]", t), 0, 1)
			spacingViol[t] = m.addVar(fmt.Sprintf("water_spacing_viol[%d]", t), 0, 1)
		}
	}
	for t := 0; t <= T; t++ {
		p.soc[t] = m.addVar(fmt.Sprintf("soc[%d]", t), 0, cfg.CapacityKWh)
		socViol[t] = m.addVar(fmt.Sprintf("soc_viol[%d]", t), 0, cfg.CapacityKWh)
	}
	if waterEnabled {
		p.binaries = slices.Clone(p.waterHeat)
	}

	// Initial SoC, clamped to the physical box.
	initial := math.Max(0, math.Min(cfg.CapacityKWh, in.InitialSocKWh))
	m.addRow("initial_soc", rowEQ, initial, term{p.soc[0], 1})

	dischargeEff := cfg.DischargeEfficiency
	if dischargeEff <= 0 {
		dischargeEff = 1.0
	}

	for t := 0; t < T; t++ {
		s := in.Slots[t]
		h := p.hours[t]

		// Energy balance: demand side equals supply side, with the
		// water load on demand and shedding on supply.
		balance := []term{
			{p.charge[t], 1}, {p.gridExport[t], 1}, {curtail[t], 1},
			{p.discharge[t], -1}, {p.gridImport[t], -1}, {shed[t], -1},
		}
		if waterEnabled {
			balance = append(balance, term{p.waterHeat[t], cfg.WaterPowerKw * h})
		}
		m.addRow(fmt.Sprintf("balance[%d]", t), rowEQ, s.PvKWh-s.LoadKWh, balance...)

		// SoC recurrence.
		m.addRow(fmt.Sprintf("soc_dyn[%d]", t), rowEQ, 0,
			term{p.soc[t+1], 1}, term{p.soc[t], -1},
			term{p.charge[t], -cfg.ChargeEfficiency},
			term{p.discharge[t], 1 / dischargeEff})

		// Soft grid import limit.
		if cfg.GridImportLimitKw > 0 {
			m.addRow(fmt.Sprintf("import_limit[%d]", t), rowLE, cfg.GridImportLimitKw*h,
				term{p.gridImport[t], 1}, term{importBreach[t], -1})
		}

		// Ramping split into up/down components of the net power delta.
		if t > 0 {
			m.addRow(fmt.Sprintf("ramp[%d]", t), rowEQ, 0,
				term{p.charge[t], 1}, term{p.discharge[t], -1},
				term{p.charge[t-1], -1}, term{p.discharge[t-1], 1},
				term{rampUp[t], -1}, term{rampDown[t], 1})
		} else {
			m.addRow("ramp_up[0]", rowEQ, 0, term{rampUp[0], 1})
			m.addRow("ramp_down[0]", rowEQ, 0, term{rampDown[0], 1})
		}

		if waterEnabled {
			if t == 0 {
				m.addRow("water_start[0]", rowEQ, 0,
					term{waterStart[0], 1}, term{p.waterHeat[0], -1})
			} else {
				m.addRow(fmt.Sprintf("water_start[%d]", t), rowGE, 0,
					term{waterStart[t], 1}, term{p.waterHeat[t], -1}, term{p.waterHeat[t-1], 1})
			}
		}

		// Soft min SoC, hard max SoC.
		m.addRow(fmt.Sprintf("soc_min[%d]", t), rowGE, minSocKWh,
			term{p.soc[t], 1}, term{socViol[t], 1})
		m.addRow(fmt.Sprintf("soc_max[%d]", t), rowLE, maxSocKWh, term{p.soc[t], 1})

		// Per-slot cost terms.
		m.addObj(p.gridImport[t], s.ImportPrice)
		m.addObj(p.gridExport[t], -calc.EffectiveExportPrice(s.ExportPrice, cfg.ExportThresholdSekPerKWh))
		m.addObj(p.charge[t], cfg.WearCostSekPerKWh)
		m.addObj(p.discharge[t], cfg.WearCostSekPerKWh)
		if !relax.dropRamping && cfg.RampingCostSekPerKw > 0 {
			m.addObj(rampUp[t], cfg.RampingCostSekPerKw/h)
			m.addObj(rampDown[t], cfg.RampingCostSekPerKw/h)
		}
		m.addObj(curtail[t], curtailmentPenalty)
		m.addObj(shed[t], loadSheddingPenalty)
		m.addObj(importBreach[t], importBreachPenalty)
		m.addObj(socViol[t], minSocPenalty)
	}

	m.addRow("soc_min[T]", rowGE, minSocKWh, term{p.soc[T], 1}, term{socViol[T], 1})
	m.addRow("soc_max[T]", rowLE, maxSocKWh, term{p.soc[T], 1})
	m.addObj(socViol[T], minSocPenalty)

	// Bidirectional terminal SoC target.
	if cfg.TargetSocKWh != nil {
		under := m.addVar("target_under", 0, cfg.CapacityKWh)
		over := m.addVar("target_over", 0, cfg.CapacityKWh)
		m.addRow("target_under", rowGE, *cfg.TargetSocKWh,
			term{p.soc[T], 1}, term{under, 1})
		m.addRow("target_over", rowLE, *cfg.TargetSocKWh,
			term{p.soc[T], 1}, term{over, -1})
		m.addObj(under, cfg.TargetSocPenaltySek)
		m.addObj(over, cfg.TargetSocPenaltySek)
	}

	// Terminal value of stored energy, based on future prices only.
	m.addObj(p.soc[T], -cfg.TerminalValueSekPerKWh)

	if waterEnabled {
		p.buildWater(in, cfg, relax, waterStart, spacingViol, avgHours)
	}

	return p
}

// buildWater adds the daily quota, gap penalty windows and spacing
// penalties for the water heater.
func (p *problem) buildWater(in Input, cfg Config, relax relaxation, waterStart, spacingViol []int, avgHours float64) {
	m := p.m
	T := p.T
	kwhPerSlot := cfg.WaterPowerKw * avgHours

	// Daily minimum quota, bucketed by local date. Early-morning slots
	// count against the previous day so heating can defer past midnight.
	if cfg.WaterMinKWhPerDay > 0 && !relax.dropWaterQuota {
		byDay := map[string][]int{}
		for t := 0; t < T; t++ {
			dt := in.Slots[t].Start
			if cfg.DeferUpToHours > 0 && float64(dt.Hour()) < cfg.DeferUpToHours {
				dt = dt.AddDate(0, 0, -1)
			}
			key := dt.Format("2006-01-02")
			byDay[key] = append(byDay[key], t)
		}
		days := make([]string, 0, len(byDay))
		for d := range byDay {
			days = append(days, d)
		}
		sort.Strings(days)

		for i, day := range days {
			quota := cfg.WaterMinKWhPerDay
			if i == 0 {
				quota = math.Max(0, quota-cfg.WaterHeatedTodayKWh)
			}
			if quota <= 0 {
				continue
			}
			available := kwhPerSlot * float64(len(byDay[day]))
			if quota > available {
				p.warnings = append(p.warnings,
					fmt.Sprintf("water quota %.1f kWh on %s exceeds available %.1f kWh, capped", quota, day, available))
				quota = available
			}
			terms := make([]term, len(byDay[day]))
			for j, t := range byDay[day] {
				terms[j] = term{p.waterHeat[t], kwhPerSlot}
			}
			m.addRow(fmt.Sprintf("water_quota[%s]", day), rowGE, quota, terms...)
		}
	}

	// Two-tier gap penalty: every rolling window of gapSlots must
	// contain a heating slot or pay, very long gaps pay again.
	if cfg.WaterMaxGapHours > 0 && cfg.WaterGapPenaltySek > 0 {
		addTier := func(tier int, gapHours, weight float64) {
			gapSlots := int(gapHours / avgHours)
			if gapSlots < 1 {
				gapSlots = 1
			}
			for start := 0; start+gapSlots <= T; start++ {
				viol := m.addVar(fmt.Sprintf("gap_viol_%d[%d]", tier, start), 0, 1)
				terms := make([]term, 0, gapSlots+1)
				for t := start; t < start+gapSlots; t++ {
					terms = append(terms, term{p.waterHeat[t], 1})
				}
				terms = append(terms, term{viol, 1})
				m.addRow(fmt.Sprintf("gap_%d[%d]", tier, start), rowGE, 1, terms...)
				m.addObj(viol, weight)
			}
		}
		addTier(1, cfg.WaterMaxGapHours, cfg.WaterGapPenaltySek)
		addTier(2, cfg.WaterMaxGapHours*1.5, cfg.WaterGapPenaltySek)
	}

	// Spacing: starting a block shortly after heating is penalized.
	// Linearized as viol >= start[t] + heat[j] - 1.
	if cfg.WaterMinSpacingHours > 0 && cfg.WaterSpacingPenaltySek > 0 && !relax.dropSpacing {
		spacingSlots := int(cfg.WaterMinSpacingHours / avgHours)
		if spacingSlots < 1 {
			spacingSlots = 1
		}
		for t := 0; t < T; t++ {
			for j := max(0, t-spacingSlots); j < t; j++ {
				m.addRow(fmt.Sprintf("spacing[%d,%d]", t, j), rowGE, -1,
					term{spacingViol[t], 1}, term{waterStart[t], -1}, term{p.waterHeat[j], -1})
			}
			m.addObj(spacingViol[t], cfg.WaterSpacingPenaltySek)
		}
	}

	if cfg.WaterBlockStartPenaltySek > 0 {
		for t := 0; t < T; t++ {
			m.addObj(waterStart[t], cfg.WaterBlockStartPenaltySek)
		}
	}
}
