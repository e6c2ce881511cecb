package kepler

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelSolveLPSmall(t *testing.T) {
	// min 2x + 3y  s.t.  x + y = 4, x <= 3, y <= 3, x,y >= 0
	m := newModel()
	x := m.addVar("x", 0, 3)
	y := m.addVar("y", 0, 3)
	m.addObj(x, 2)
	m.addObj(y, 3)
	m.addRow("sum", rowEQ, 4, term{x, 1}, term{y, 1})

	obj, sol, err := m.solveLP(nil)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, obj, 1e-6)
	assert.InDelta(t, 3.0, sol[x], 1e-6)
	assert.InDelta(t, 1.0, sol[y], 1e-6)
}

func TestModelSolveLPOverrides(t *testing.T) {
	m := newModel()
	x := m.addVar("x", 0, 3)
	y := m.addVar("y", 0, 3)
	m.addObj(x, 2)
	m.addObj(y, 3)
	m.addRow("sum", rowEQ, 4, term{x, 1}, term{y, 1})

	obj, sol, err := m.solveLP(map[int]bounds{x: {lb: 0, ub: 1}})
	require.NoError(t, err)
	assert.InDelta(t, 11.0, obj, 1e-6)
	assert.InDelta(t, 1.0, sol[x], 1e-6)
	assert.InDelta(t, 3.0, sol[y], 1e-6)
}

func TestModelSolveLPMixedRowsAndOpenBounds(t *testing.T) {
	// min x - 2y  s.t.  x >= 1, y <= 4, x unbounded above
	m := newModel()
	x := m.addVar("x", 0, math.Inf(1))
	y := m.addVar("y", 0, 3)
	m.addObj(x, 1)
	m.addObj(y, -2)
	m.addRow("floor", rowGE, 1, term{x, 1})
	m.addRow("cap", rowLE, 4, term{y, 1})

	obj, sol, err := m.solveLP(nil)
	require.NoError(t, err)
	assert.InDelta(t, -5.0, obj, 1e-6)
	assert.InDelta(t, 1.0, sol[x], 1e-6)
	assert.InDelta(t, 3.0, sol[y], 1e-6)
}

func TestModelSolveLPShiftedLowerBound(t *testing.T) {
	m := newModel()
	x := m.addVar("x", 0, 3)
	y := m.addVar("y", 0, 3)
	m.addObj(x, 2)
	m.addObj(y, 3)
	m.addRow("sum", rowEQ, 4, term{x, 1}, term{y, 1})

	// Forcing y >= 2 shifts cost off the cheap variable.
	obj, sol, err := m.solveLP(map[int]bounds{y: {lb: 2, ub: 3}})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, obj, 1e-6)
	assert.InDelta(t, 2.0, sol[x], 1e-6)
	assert.InDelta(t, 2.0, sol[y], 1e-6)
}

func TestModelInfeasibleOverride(t *testing.T) {
	m := newModel()
	x := m.addVar("x", 0, 3)
	m.addRow("fix", rowEQ, 2, term{x, 1})

	_, _, err := m.solveLP(map[int]bounds{x: {lb: 3, ub: 1}})
	assert.Error(t, err)
}

func TestBuildRegistersSlotVariables(t *testing.T) {
	in := testInput(4, time.Hour, func(t int) (imp, exp, pv, load float64) {
		return 1.0, 0.5, 0, 1.0
	})
	cfg := testConfig()
	cfg.WaterPowerKw = 2.0
	cfg.WaterMinKWhPerDay = 4.0

	p := build(in, cfg, relaxation{})

	require.Len(t, p.charge, 4)
	require.Len(t, p.soc, 5)
	require.Len(t, p.waterHeat, 4)
	assert.Equal(t, p.waterHeat, p.binaries)
}

func TestBuildNoWaterMeansNoBinaries(t *testing.T) {
	in := testInput(4, time.Hour, func(t int) (imp, exp, pv, load float64) {
		return 1.0, 0.5, 0, 1.0
	})
	cfg := testConfig()
	cfg.WaterPowerKw = 0

	p := build(in, cfg, relaxation{})

	assert.Nil(t, p.waterHeat)
	assert.Empty(t, p.binaries)
}

func TestBuildCapsImpossibleWaterQuota(t *testing.T) {
	// 2 slots of 1h at 2 kW can deliver at most 4 kWh, quota asks 10.
	in := testInput(2, time.Hour, func(t int) (imp, exp, pv, load float64) {
		return 1.0, 0, 0, 0.5
	})
	cfg := testConfig()
	cfg.WaterPowerKw = 2.0
	cfg.WaterMinKWhPerDay = 10.0

	p := build(in, cfg, relaxation{})

	require.NotEmpty(t, p.warnings)

	_, _, err := p.m.solveLP(nil)
	assert.NoError(t, err)
}

func TestLadderOrder(t *testing.T) {
	cfg := testConfig()
	cfg.WaterPowerKw = 2.0
	cfg.WaterMinKWhPerDay = 4.0
	cfg.WaterMinSpacingHours = 4.0
	cfg.WaterSpacingPenaltySek = 0.2
	cfg.RampingCostSekPerKw = 0.1

	steps := ladder(cfg)
	require.Len(t, steps, 4)
	assert.Empty(t, steps[0].applied)
	assert.Equal(t, []string{"spacing_penalty"}, steps[1].applied)
	assert.Equal(t, []string{"spacing_penalty", "ramping_cost"}, steps[2].applied)
	assert.Equal(t, []string{"spacing_penalty", "ramping_cost", "water_quota"}, steps[3].applied)
	assert.True(t, steps[3].relax.dropWaterQuota)
}

func testConfig() Config {
	return Config{
		CapacityKWh:         10,
		MinSocPercent:       0,
		MaxSocPercent:       100,
		MaxChargePowerKw:    5,
		MaxDischargePowerKw: 5,
		ChargeEfficiency:    1.0,
		DischargeEfficiency: 1.0,
	}
}

func testInput(n int, d time.Duration, f func(t int) (imp, exp, pv, load float64)) Input {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	slots := make([]InputSlot, n)
	for t := 0; t < n; t++ {
		imp, exp, pv, load := f(t)
		slots[t] = InputSlot{
			Start:       start.Add(time.Duration(t) * d),
			End:         start.Add(time.Duration(t+1) * d),
			ImportPrice: imp,
			ExportPrice: exp,
			PvKWh:       pv,
			LoadKWh:     load,
		}
	}
	return Input{Slots: slots}
}
