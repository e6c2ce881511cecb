package kepler

// relaxation switches off individual soft cost terms or constraints
// when the plain problem turns out infeasible.
type relaxation struct {
	dropSpacing    bool
	dropRamping    bool
	dropWaterQuota bool
}

type ladderStep struct {
	relax   relaxation
	applied []string
}

// ladder returns the sequence of increasingly relaxed problem variants
// to try, in fixed priority order: spacing penalty first, then ramping
// cost, then the daily water quota. Each step keeps the relaxations of
// the previous one.
func ladder(cfg Config) []ladderStep {
	steps := []ladderStep{{}}

	waterEnabled := cfg.WaterPowerKw > 0
	if waterEnabled && cfg.WaterMinSpacingHours > 0 && cfg.WaterSpacingPenaltySek > 0 {
		steps = append(steps, ladderStep{
			relax:   relaxation{dropSpacing: true},
			applied: []string{"spacing_penalty"},
		})
	}
	if cfg.RampingCostSekPerKw > 0 {
		prev := steps[len(steps)-1]
		r := prev.relax
		r.dropRamping = true
		steps = append(steps, ladderStep{
			relax:   r,
			applied: append(append([]string{}, prev.applied...), "ramping_cost"),
		})
	}
	if waterEnabled && cfg.WaterMinKWhPerDay > 0 {
		prev := steps[len(steps)-1]
		r := prev.relax
		r.dropWaterQuota = true
		steps = append(steps, ladderStep{
			relax:   r,
			applied: append(append([]string{}, prev.applied...), "water_quota"),
		})
	}
	return steps
}
