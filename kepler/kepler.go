package kepler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/oskarb/kepler/calc"
)

// ErrInfeasible is returned when no feasible schedule exists even after
// every relaxation step has been tried.
var ErrInfeasible = errors.New("no feasible schedule")

const (
	intTol   = 1e-6
	flowTol  = 1e-6
	objTol   = 1e-9
	maxNodes = 20000
)

// Solver turns one horizon of forecasts into an optimal dispatch plan.
// The mixed-integer problem is solved as an LP relaxation with
// branch-and-bound over the water heater binaries and over slots where
// the relaxation charges and discharges at the same time.
type Solver struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Solver {
	return &Solver{logger: logger.With(slog.String("module", "kepler"))}
}

func (s *Solver) Solve(ctx context.Context, in Input, cfg Config) (Result, error) {
	start := time.Now()

	if len(in.Slots) == 0 {
		return Result{Status: StatusOptimal}, nil
	}

	deadline := time.Time{}
	if cfg.Timeout > 0 {
		deadline = start.Add(cfg.Timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}

	var lastErr error
	for i, step := range ladder(cfg) {
		if i > 0 && !deadline.IsZero() && time.Now().After(deadline) {
			lastErr = fmt.Errorf("time cap exceeded while relaxing: %w", lastErr)
			break
		}
		if len(step.applied) > 0 {
			s.logger.Warn("retrying with relaxed soft constraints",
				slog.Any("relaxed", step.applied))
		}

		p := build(in, cfg, step.relax)
		obj, x, nodes, capped, err := s.branchAndBound(ctx, p, deadline)
		if err != nil {
			if errors.Is(err, lp.ErrInfeasible) {
				lastErr = err
				continue
			}
			return Result{Status: StatusInfeasible}, fmt.Errorf("solve: %w", err)
		}

		res := buildResult(p, in, cfg, x, obj)
		res.Relaxed = step.applied
		res.Warnings = p.warnings
		res.SolveTime = time.Since(start)
		res.Nodes = nodes
		res.Status = StatusOptimal
		if capped {
			res.Status = StatusSuboptimal
		}

		s.logger.Debug("solve finished",
			slog.String("status", string(res.Status)),
			slog.Int("nodes", nodes),
			slog.Duration("elapsed", res.SolveTime),
			slog.Float64("objective", res.Objective))
		return res, nil
	}

	return Result{Status: StatusInfeasible}, fmt.Errorf("%w: %v", ErrInfeasible, lastErr)
}

type bbNode struct {
	overrides map[int]bounds
}

func (n bbNode) child(v int, b bounds) bbNode {
	o := make(map[int]bounds, len(n.overrides)+1)
	for k, val := range n.overrides {
		o[k] = val
	}
	o[v] = b
	return bbNode{overrides: o}
}

// branchAndBound searches for the best integral, complementarity-clean
// solution. Node order is deterministic so identical inputs always
// yield the identical schedule. capped reports that the wall clock ran
// out and the incumbent is the best found so far, not proven optimal.
func (s *Solver) branchAndBound(ctx context.Context, p *problem, deadline time.Time) (obj float64, x []float64, nodes int, capped bool, err error) {
	bestObj := math.Inf(1)
	var bestX []float64

	// The root relaxation solution, kept for the repair path so the
	// time cap never forces a redundant solve.
	var rootX []float64

	stack := []bbNode{{}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil && bestX == nil {
			return 0, nil, nodes, false, err
		}
		if nodes >= maxNodes || (!deadline.IsZero() && time.Now().After(deadline)) || ctx.Err() != nil {
			capped = true
			break
		}

		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		nodeObj, nodeX, err := p.m.solveLP(n.overrides)
		nodes++
		if err != nil {
			if errors.Is(err, lp.ErrInfeasible) {
				continue
			}
			return 0, nil, nodes, false, err
		}
		if len(n.overrides) == 0 {
			rootX = nodeX
		}
		if nodeObj >= bestObj-objTol {
			continue
		}

		v, alt, ok := p.selectBranch(nodeX)
		if !ok {
			bestObj = nodeObj
			bestX = nodeX
			continue
		}

		if alt < 0 {
			// Fractional binary: explore the off branch first.
			stack = append(stack,
				n.child(v, bounds{lb: 1, ub: 1}),
				n.child(v, bounds{lb: 0, ub: 0}))
		} else {
			// Simultaneous charge and discharge: explore charge-only
			// first by forcing discharge to zero.
			stack = append(stack,
				n.child(v, bounds{lb: 0, ub: 0}),
				n.child(alt, bounds{lb: 0, ub: 0}))
		}
	}

	if bestX == nil {
		if capped {
			// Out of budget with no incumbent: repair the root
			// relaxation into an integral schedule.
			obj, x, err := s.repair(p, rootX)
			if err != nil {
				return 0, nil, nodes, true, err
			}
			return obj, x, nodes, true, nil
		}
		return 0, nil, nodes, false, lp.ErrInfeasible
	}
	return bestObj, bestX, nodes, capped, nil
}

// selectBranch picks the next variable to branch on: the lowest
// fractional binary, otherwise the lowest slot with both charge and
// discharge active. alt is -1 for a binary branch, otherwise the
// discharge variable paired with the returned charge variable.
func (p *problem) selectBranch(x []float64) (v, alt int, ok bool) {
	for _, b := range p.binaries {
		if frac := math.Abs(x[b] - math.Round(x[b])); frac > intTol {
			return b, -1, true
		}
	}
	for t := 0; t < p.T; t++ {
		if x[p.charge[t]] > flowTol && x[p.discharge[t]] > flowTol {
			return p.charge[t], p.discharge[t], true
		}
	}
	return 0, 0, false
}

// repair turns the root relaxation into a usable schedule with a single
// further solve: every fractional binary is pinned up, which keeps the
// quota and gap rows satisfiable, and every slot keeps only its dominant
// battery direction, so the result is integral and never charges and
// discharges at once. Used only when the time cap fired before any
// incumbent was found.
func (s *Solver) repair(p *problem, rootX []float64) (float64, []float64, error) {
	if rootX == nil {
		var err error
		_, rootX, err = p.m.solveLP(nil)
		if err != nil {
			return 0, nil, err
		}
	}

	overrides := make(map[int]bounds, len(p.binaries)+p.T)
	for _, b := range p.binaries {
		r := math.Ceil(rootX[b] - intTol)
		overrides[b] = bounds{lb: r, ub: r}
	}
	for t := 0; t < p.T; t++ {
		if rootX[p.charge[t]] >= rootX[p.discharge[t]] {
			overrides[p.discharge[t]] = bounds{lb: 0, ub: 0}
		} else {
			overrides[p.charge[t]] = bounds{lb: 0, ub: 0}
		}
	}
	return p.m.solveLP(overrides)
}

func buildResult(p *problem, in Input, cfg Config, x []float64, obj float64) Result {
	res := Result{
		Slots:     make([]ResultSlot, p.T),
		Objective: obj,
	}
	for t := 0; t < p.T; t++ {
		s := in.Slots[t]
		h := p.hours[t]

		c := nonNeg(x[p.charge[t]])
		d := nonNeg(x[p.discharge[t]])
		imp := nonNeg(x[p.gridImport[t]])
		exp := nonNeg(x[p.gridExport[t]])

		water := 0.0
		if p.waterHeat != nil && x[p.waterHeat[t]] > 0.5 {
			water = cfg.WaterPowerKw * h
		}

		cost := calc.GridCashFlow(imp, exp, s.ImportPrice, s.ExportPrice) +
			calc.WearCost(c, d, cfg.WearCostSekPerKWh)
		res.TotalCostSek += cost

		res.Slots[t] = ResultSlot{
			Start:        s.Start,
			End:          s.End,
			ChargeKWh:    c,
			DischargeKWh: d,
			ImportKWh:    imp,
			ExportKWh:    exp,
			WaterKWh:     water,
			SocKWh:       x[p.soc[t+1]],
			CostSek:      cost,
		}
	}
	return res
}

func nonNeg(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
