package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oskarb/kepler/types"
)

type fakeStore struct {
	actuals    []types.Slot
	actualsErr error

	saved     []types.Schedule
	savedRuns []types.RunResult
	saveErr   error

	priceCache    []types.PriceSlot
	forecastCache []types.ForecastSlot
}

func (s *fakeStore) GetActualSlots(ctx context.Context, from, to time.Time) ([]types.Slot, error) {
	return s.actuals, s.actualsErr
}

func (s *fakeStore) SaveSchedule(ctx context.Context, schedule types.Schedule, run types.RunResult) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, schedule)
	s.savedRuns = append(s.savedRuns, run)
	return nil
}

func (s *fakeStore) ReplacePriceCache(ctx context.Context, slots []types.PriceSlot) error {
	s.priceCache = slots
	return nil
}

func (s *fakeStore) GetCachedPrices(ctx context.Context, from time.Time) ([]types.PriceSlot, error) {
	return s.priceCache, nil
}

func (s *fakeStore) ReplaceForecastCache(ctx context.Context, slots []types.ForecastSlot) error {
	s.forecastCache = slots
	return nil
}

func (s *fakeStore) GetCachedForecasts(ctx context.Context, from time.Time) ([]types.ForecastSlot, error) {
	return s.forecastCache, nil
}

type fakePriceProvider struct {
	slots []types.PriceSlot
	errs  []error // one per call, nil-padded
	calls int
}

func (p *fakePriceProvider) GetPrices(ctx context.Context) ([]types.PriceSlot, error) {
	call := p.calls
	p.calls++
	if call < len(p.errs) && p.errs[call] != nil {
		return nil, p.errs[call]
	}
	return p.slots, nil
}

type fakeForecastProvider struct {
	slots []types.ForecastSlot
	err   error
	calls int
}

func (p *fakeForecastProvider) GetForecasts(ctx context.Context) ([]types.ForecastSlot, error) {
	p.calls++
	return p.slots, p.err
}

type fakeLiveProvider struct {
	state types.LiveState
	err   error
}

func (p *fakeLiveProvider) GetLiveState(ctx context.Context) (types.LiveState, error) {
	return p.state, p.err
}

type fakeNotifier struct {
	runs chan types.RunResult
}

func (n *fakeNotifier) ScheduleUpdated(run types.RunResult) {
	n.runs <- run
}

var pipelineNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type pipelineFixture struct {
	pipeline  *Pipeline
	store     *fakeStore
	prices    *fakePriceProvider
	forecasts *fakeForecastProvider
	live      *fakeLiveProvider
	notifier  *fakeNotifier
}

func newPipelineFixture(t *testing.T, mutate func(f *pipelineFixture)) *pipelineFixture {
	t.Helper()
	cfg := plannerTestConfig()
	cfg.Planner.FetchRetries = 1

	f := &pipelineFixture{
		store:     &fakeStore{},
		prices:    &fakePriceProvider{slots: hourlyPrices(pipelineNow, 4, 1.0)},
		forecasts: &fakeForecastProvider{slots: hourlyForecasts(pipelineNow, 4)},
		live:      &fakeLiveProvider{state: types.LiveState{BatterySocPercent: 50}},
		notifier:  &fakeNotifier{runs: make(chan types.RunResult, 1)},
	}
	f.pipeline = NewPipeline(testLogger(), cfg, f.store,
		f.prices, f.forecasts, f.live, nil, f.notifier)
	f.pipeline.now = func() time.Time { return pipelineNow }
	if mutate != nil {
		mutate(f)
	}
	return f
}

func hourlyForecasts(start time.Time, n int) []types.ForecastSlot {
	out := make([]types.ForecastSlot, n)
	for i := range out {
		out[i] = types.ForecastSlot{
			Start:   start.Add(time.Duration(i) * time.Hour),
			PvKWh:   0.5,
			LoadKWh: 1.0,
		}
	}
	return out
}

func TestRunHappyPath(t *testing.T) {
	f := newPipelineFixture(t, nil)

	res := f.pipeline.Run(context.Background())

	assert.Equal(t, types.RunStatusOk, res.Status)
	assert.Empty(t, res.Issues)
	assert.Equal(t, 4, res.SlotCount)

	require.Len(t, f.store.saved, 1)
	schedule := f.store.saved[0]
	require.Len(t, schedule.Slots, 4)
	assert.True(t, schedule.HorizonStart.Equal(pipelineNow))
	assert.True(t, schedule.HorizonEnd.Equal(pipelineNow.Add(4*time.Hour)))
	for i, s := range schedule.Slots {
		assert.Equal(t, i+1, s.Index)
		assert.False(t, s.Historical)
	}

	// Fresh provider data refreshes the caches.
	assert.Len(t, f.store.priceCache, 4)
	assert.Len(t, f.store.forecastCache, 4)

	select {
	case run := <-f.notifier.runs:
		assert.Equal(t, types.RunStatusOk, run.Status)
	case <-time.After(time.Second):
		t.Fatal("notifier was never told about the run")
	}
}

func TestRunFreezesHistoricalSlots(t *testing.T) {
	f := newPipelineFixture(t, func(f *pipelineFixture) {
		f.store.actuals = []types.Slot{
			{Index: 1, Start: pipelineNow.Add(-2 * time.Hour), End: pipelineNow.Add(-time.Hour), ImportKWh: 1.5, Historical: true},
			{Index: 2, Start: pipelineNow.Add(-time.Hour), End: pipelineNow, ImportKWh: 0.7, Historical: true},
		}
	})

	res := f.pipeline.Run(context.Background())

	assert.Equal(t, types.RunStatusOk, res.Status)
	require.Len(t, f.store.saved, 1)
	slots := f.store.saved[0].Slots
	require.Len(t, slots, 6)

	// Past slots come through untouched, future slots continue the
	// numbering after them.
	assert.Equal(t, 1.5, slots[0].ImportKWh)
	assert.True(t, slots[0].Historical)
	assert.Equal(t, 0.7, slots[1].ImportKWh)
	for i := 2; i < 6; i++ {
		assert.Equal(t, i+1, slots[i].Index)
		assert.False(t, slots[i].Historical)
	}
	assert.True(t, f.store.saved[0].HorizonStart.Equal(pipelineNow.Add(-2*time.Hour)))
}

func TestRunConfigHardErrorSkipsProviders(t *testing.T) {
	f := newPipelineFixture(t, func(f *pipelineFixture) {
		f.pipeline.cfg.BatterySpec.CapacityKWh = 0
	})

	res := f.pipeline.Run(context.Background())

	assert.Equal(t, types.RunStatusError, res.Status)
	require.NotEmpty(t, res.Issues)
	assert.Equal(t, types.IssueBatteryNoCapacity, res.Issues[0].Code)
	assert.Zero(t, f.prices.calls)
	assert.Empty(t, f.store.saved)
}

func TestRunPriceProviderDownFallsBackToCache(t *testing.T) {
	f := newPipelineFixture(t, func(f *pipelineFixture) {
		f.store.priceCache = hourlyPrices(pipelineNow, 4, 2.0)
		f.prices.errs = []error{errors.New("gateway timeout")}
		f.prices.slots = nil
	})

	res := f.pipeline.Run(context.Background())

	assert.Equal(t, types.RunStatusWarning, res.Status)
	require.Len(t, f.store.saved, 1)
	assert.Equal(t, 2.0, f.store.saved[0].Slots[0].ImportPrice)

	found := false
	for _, is := range res.Issues {
		if is.Code == types.IssueProviderUna && is.Severity == types.SeverityWarning {
			found = true
		}
	}
	assert.True(t, found, "expected a provider-unavailable warning")
}

func TestRunPriceProviderDownWithoutCacheFails(t *testing.T) {
	f := newPipelineFixture(t, func(f *pipelineFixture) {
		f.prices.errs = []error{errors.New("gateway timeout")}
		f.prices.slots = nil
	})

	res := f.pipeline.Run(context.Background())

	assert.Equal(t, types.RunStatusError, res.Status)
	assert.Empty(t, f.store.saved, "a failed run must not overwrite the stored schedule")
}

func TestRunRetriesTransientProviderFailure(t *testing.T) {
	f := newPipelineFixture(t, func(f *pipelineFixture) {
		f.pipeline.cfg.Planner.FetchRetries = 2
		f.prices.errs = []error{errors.New("connection reset")}
	})

	res := f.pipeline.Run(context.Background())

	assert.Equal(t, types.RunStatusOk, res.Status)
	assert.Equal(t, 2, f.prices.calls)
	assert.Len(t, f.store.saved, 1)
}

func TestRunLiveStateFallsBackToMinimumSoc(t *testing.T) {
	f := newPipelineFixture(t, func(f *pipelineFixture) {
		f.live.err = errors.New("inverter offline")
	})

	res := f.pipeline.Run(context.Background())

	assert.Equal(t, types.RunStatusWarning, res.Status)
	require.Len(t, f.store.saved, 1)
	// Battery assumed at the 10% floor: the first slot starts there.
	assert.Equal(t, 10.0, f.store.saved[0].Slots[0].SocStartPercent)
}

func TestRunLiveStateReusesLastKnown(t *testing.T) {
	f := newPipelineFixture(t, nil)
	res := f.pipeline.Run(context.Background())
	require.Equal(t, types.RunStatusOk, res.Status)

	f.live.err = errors.New("inverter offline")
	res = f.pipeline.Run(context.Background())

	assert.Equal(t, types.RunStatusWarning, res.Status)
	require.Len(t, f.store.saved, 2)
	assert.Equal(t, 50.0, f.store.saved[1].Slots[0].SocStartPercent)
}

func TestRunStaleDataKeepsPreviousSchedule(t *testing.T) {
	f := newPipelineFixture(t, func(f *pipelineFixture) {
		f.prices.slots = hourlyPrices(pipelineNow.Add(-8*time.Hour), 4, 1.0)
	})

	res := f.pipeline.Run(context.Background())

	assert.Equal(t, types.RunStatusError, res.Status)
	require.NotEmpty(t, res.Issues)
	assert.Equal(t, types.IssueStalePrices, res.Issues[0].Code)
	assert.Empty(t, f.store.saved)
}

func TestRunSolverFailureKeepsPreviousSchedule(t *testing.T) {
	f := newPipelineFixture(t, func(f *pipelineFixture) {
		// Export above import with unlimited grid power makes the
		// problem unbounded, which surfaces as a solver failure.
		f.pipeline.cfg.Grid.MaxImportPowerKw = 0
		f.pipeline.cfg.Grid.MaxExportPowerKw = 0
		for i := range f.prices.slots {
			f.prices.slots[i].ImportPrice = 0.1
			f.prices.slots[i].ExportPrice = 1.0
		}
	})

	res := f.pipeline.Run(context.Background())

	assert.Equal(t, types.RunStatusError, res.Status)
	require.NotEmpty(t, res.Issues)
	assert.Equal(t, types.IssueSolverFailure, res.Issues[0].Code)
	assert.Empty(t, f.store.saved)
}

func TestRunInfeasibleProblemIsReportedAsInfeasible(t *testing.T) {
	f := newPipelineFixture(t, func(f *pipelineFixture) {
		// Battery reported above the hard SoC ceiling: no relaxation
		// step can recover, which is genuine infeasibility.
		f.live.state = types.LiveState{BatterySocPercent: 95}
	})

	res := f.pipeline.Run(context.Background())

	assert.Equal(t, types.RunStatusError, res.Status)
	require.NotEmpty(t, res.Issues)
	assert.Equal(t, types.IssueInfeasible, res.Issues[0].Code)
	assert.Empty(t, f.store.saved)
}

func TestRunPersistFailureIsAnError(t *testing.T) {
	f := newPipelineFixture(t, func(f *pipelineFixture) {
		f.store.saveErr = errors.New("disk full")
	})

	res := f.pipeline.Run(context.Background())

	assert.Equal(t, types.RunStatusError, res.Status)
	require.NotEmpty(t, res.Issues)
	assert.Equal(t, types.IssuePersistFailed, res.Issues[0].Code)
}

func TestRunHistoryReadFailureOnlyWarns(t *testing.T) {
	f := newPipelineFixture(t, func(f *pipelineFixture) {
		f.store.actualsErr = errors.New("table locked")
	})

	res := f.pipeline.Run(context.Background())

	assert.Equal(t, types.RunStatusWarning, res.Status)
	require.Len(t, f.store.saved, 1)
	assert.Len(t, f.store.saved[0].Slots, 4)
}

func TestMergeSlotsRenumbering(t *testing.T) {
	historical := []types.Slot{{Index: 3, Historical: true}, {Index: 7, Historical: true}}
	future := []types.Slot{{Index: 1}, {Index: 2}}

	merged := mergeSlots(historical, future)

	require.Len(t, merged, 4)
	assert.Equal(t, 3, merged[0].Index)
	assert.Equal(t, 7, merged[1].Index)
	assert.Equal(t, 8, merged[2].Index)
	assert.Equal(t, 9, merged[3].Index)
}
