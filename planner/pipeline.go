package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/oskarb/kepler/config"
	"github.com/oskarb/kepler/kepler"
	"github.com/oskarb/kepler/types"
)

// Store is the slice of the database the pipeline depends on.
type Store interface {
	GetActualSlots(ctx context.Context, from, to time.Time) ([]types.Slot, error)
	SaveSchedule(ctx context.Context, schedule types.Schedule, run types.RunResult) error
	ReplacePriceCache(ctx context.Context, slots []types.PriceSlot) error
	GetCachedPrices(ctx context.Context, from time.Time) ([]types.PriceSlot, error)
	ReplaceForecastCache(ctx context.Context, slots []types.ForecastSlot) error
	GetCachedForecasts(ctx context.Context, from time.Time) ([]types.ForecastSlot, error)
}

// engineVersion is the strategy revision stamped on every persisted
// run, bumped whenever the weighting formulas change.
const engineVersion = "k16"

// Notifier is told about every completed run. Delivery failures must
// not affect the run outcome.
type Notifier interface {
	ScheduleUpdated(run types.RunResult)
}

// Pipeline runs one full planning cycle: gather inputs, weigh them,
// solve, format and persist. A failed run leaves the previously stored
// schedule untouched.
type Pipeline struct {
	cfg    *config.AppConfig
	logger *slog.Logger
	db     Store

	prices    types.PriceProvider
	forecasts types.ForecastProvider
	live      types.LiveStateProvider
	signals   types.ContextSignalsProvider // optional

	adapter   *Adapter
	strategy  *Strategy
	formatter *Formatter
	solver    *kepler.Solver
	notifier  Notifier

	now func() time.Time

	lastLive *types.LiveState
}

func NewPipeline(
	logger *slog.Logger,
	cfg *config.AppConfig,
	db Store,
	prices types.PriceProvider,
	forecasts types.ForecastProvider,
	live types.LiveStateProvider,
	signals types.ContextSignalsProvider,
	notifier Notifier,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		logger:    logger.With(slog.String("module", "pipeline")),
		db:        db,
		prices:    prices,
		forecasts: forecasts,
		live:      live,
		signals:   signals,
		adapter:   NewAdapter(logger, cfg),
		strategy:  NewStrategy(logger, cfg),
		formatter: NewFormatter(cfg),
		solver:    kepler.New(logger),
		notifier:  notifier,
		now:       time.Now,
	}
}

// Run executes one planning cycle and reports its outcome. It never
// panics and never returns a Go error; everything lands in the result.
func (p *Pipeline) Run(ctx context.Context) types.RunResult {
	started := p.now()
	res := types.RunResult{Status: types.RunStatusOk, PlannedAt: started}

	issues, err := p.cfg.Validate()
	for _, is := range issues {
		res.AddIssue(is.Code, is.Severity, is.Message)
	}
	if err != nil {
		res.AddIssue(types.IssueBatteryNoCapacity, types.SeverityError, err.Error())
		p.logger.Error("configuration rejected", slog.Any("error", err))
		return res
	}

	loc, err := time.LoadLocation(p.cfg.GetTimezone())
	if err != nil {
		p.logger.Warn("unknown timezone, using UTC", slog.String("timezone", p.cfg.GetTimezone()))
		loc = time.UTC
	}
	now := started.In(loc)
	slotDur := p.cfg.Planner.SlotDuration()
	nowSlot := types.FloorToSlot(now, slotDur)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	historical, err := p.db.GetActualSlots(ctx, dayStart, nowSlot)
	if err != nil {
		res.AddIssue(types.IssueHistoryUnavailable, types.SeverityWarning,
			fmt.Sprintf("reading today's actual slots: %v", err))
		historical = nil
	}

	data, ok := p.gather(ctx, &res, dayStart)
	if !ok {
		return res
	}

	slots, err := p.adapter.Merge(data, nowSlot)
	if err != nil {
		p.reportDataError(&res, err)
		return res
	}

	signals := p.gatherSignals(ctx)
	weights := p.strategy.ComputeWeights(slots, signals, nowSlot)
	prob := p.adapter.Lower(slots, weights, data.Live)

	solRes, err := p.solver.Solve(ctx, prob.Input, prob.Config)
	if err != nil {
		if errors.Is(err, kepler.ErrInfeasible) {
			infErr := &InfeasibleError{Err: err}
			res.AddIssue(types.IssueInfeasible, types.SeverityError, infErr.Error())
		} else {
			res.AddIssue(types.IssueSolverFailure, types.SeverityError,
				fmt.Sprintf("solver failed: %v", err))
		}
		p.logger.Error("solve failed, keeping previous schedule", slog.Any("error", err))
		return res
	}
	p.reportSolveQuality(&res, solRes)

	future := p.formatter.Format(prob, solRes)
	merged := mergeSlots(historical, future)

	schedule := types.Schedule{
		PlannedAt:      now,
		HorizonStart:   merged[0].Start,
		HorizonEnd:     merged[len(merged)-1].End,
		Slots:          merged,
		ObjectiveValue: solRes.Objective,
		SolveTimeMs:    float64(solRes.SolveTime.Microseconds()) / 1000.0,
		Suboptimal:     solRes.Status == kepler.StatusSuboptimal,
		Weights:        weights,
		EngineVersion:  engineVersion,
	}
	res.ObjectiveValue = solRes.Objective
	res.SolveTimeMs = schedule.SolveTimeMs
	res.SlotCount = len(merged)

	if err := p.db.SaveSchedule(ctx, schedule, res); err != nil {
		res.AddIssue(types.IssuePersistFailed, types.SeverityError,
			fmt.Sprintf("storing schedule: %v", err))
		return res
	}
	p.lastLive = &data.Live

	if p.notifier != nil {
		go p.notifier.ScheduleUpdated(res)
	}

	p.logger.Info("planning run finished",
		slog.String("status", string(res.Status)),
		slog.Int("slots", res.SlotCount),
		slog.Float64("objective", res.ObjectiveValue),
		slog.Duration("elapsed", p.now().Sub(started)))
	return res
}

// gather fetches prices, forecasts and live state, degrading to cached
// or last-known values where the sources allow it.
func (p *Pipeline) gather(ctx context.Context, res *types.RunResult, dayStart time.Time) (ProblemData, bool) {
	retries := p.cfg.Planner.GetFetchRetries()
	var data ProblemData

	prices, err := fetchWithRetry(ctx, p.logger, "prices", retries, p.prices.GetPrices)
	if err != nil {
		cached, cacheErr := p.db.GetCachedPrices(ctx, dayStart)
		if cacheErr != nil || len(cached) == 0 {
			res.AddIssue(types.IssueProviderUna, types.SeverityError,
				fmt.Sprintf("price provider down and no usable cache: %v", err))
			return data, false
		}
		res.AddIssue(types.IssueProviderUna, types.SeverityWarning,
			fmt.Sprintf("price provider down, planning on cached prices: %v", err))
		prices = cached
	} else if cacheErr := p.db.ReplacePriceCache(ctx, prices); cacheErr != nil {
		p.logger.Warn("price cache refresh failed", slog.Any("error", cacheErr))
	}
	data.Prices = prices

	forecasts, err := fetchWithRetry(ctx, p.logger, "forecasts", retries, p.forecasts.GetForecasts)
	if err != nil {
		cached, cacheErr := p.db.GetCachedForecasts(ctx, dayStart)
		if cacheErr != nil || len(cached) == 0 {
			res.AddIssue(types.IssueProviderUna, types.SeverityWarning,
				fmt.Sprintf("forecast provider down and no usable cache, planning without forecasts: %v", err))
			cached = nil
		} else {
			res.AddIssue(types.IssueProviderUna, types.SeverityWarning,
				fmt.Sprintf("forecast provider down, planning on cached forecasts: %v", err))
		}
		forecasts = cached
	} else if cacheErr := p.db.ReplaceForecastCache(ctx, forecasts); cacheErr != nil {
		p.logger.Warn("forecast cache refresh failed", slog.Any("error", cacheErr))
	}
	data.Forecasts = forecasts

	live, err := fetchWithRetry(ctx, p.logger, "live state", retries, p.live.GetLiveState)
	if err != nil {
		if p.lastLive != nil {
			res.AddIssue(types.IssueProviderUna, types.SeverityWarning,
				fmt.Sprintf("live state unavailable, reusing last known state: %v", err))
			live = *p.lastLive
		} else {
			res.AddIssue(types.IssueProviderUna, types.SeverityWarning,
				fmt.Sprintf("live state unavailable, assuming battery at minimum: %v", err))
			live = types.LiveState{BatterySocPercent: p.cfg.BatterySpec.MinSocPercent}
		}
	}
	data.Live = live

	return data, true
}

func (p *Pipeline) gatherSignals(ctx context.Context) types.ContextSignals {
	if p.signals == nil {
		return types.ContextSignals{}
	}
	signals, err := p.signals.GetContextSignals(ctx)
	if err != nil {
		p.logger.Debug("context signals unavailable", slog.Any("error", err))
		return types.ContextSignals{}
	}
	return signals
}

func (p *Pipeline) reportDataError(res *types.RunResult, err error) {
	var dataErr *DataError
	if errors.As(err, &dataErr) {
		res.AddIssue(dataErr.Code, types.SeverityError, dataErr.Error())
	} else {
		res.AddIssue(types.IssueColumnMismatch, types.SeverityError, err.Error())
	}
	p.logger.Error("input rejected, keeping previous schedule", slog.Any("error", err))
}

func (p *Pipeline) reportSolveQuality(res *types.RunResult, solRes kepler.Result) {
	if solRes.Status == kepler.StatusSuboptimal {
		res.AddIssue(types.IssueSuboptimal, types.SeverityWarning,
			"time cap hit, schedule is feasible but may be suboptimal")
	}
	for _, name := range solRes.Relaxed {
		code := types.IssueRelaxed
		if name == "water_quota" {
			code = types.IssueWaterQuotaRelaxed
		}
		res.AddIssue(code, types.SeverityWarning, fmt.Sprintf("soft constraint %q relaxed", name))
	}
	for _, w := range solRes.Warnings {
		res.AddIssue(types.IssueWaterQuotaRelaxed, types.SeverityWarning, w)
	}
}

// mergeSlots freezes the historical slots as-is and renumbers the
// future slots to continue after them.
func mergeSlots(historical, future []types.Slot) []types.Slot {
	maxIdx := 0
	for _, s := range historical {
		if s.Index > maxIdx {
			maxIdx = s.Index
		}
	}
	merged := slices.Clone(historical)
	for i, s := range future {
		s.Index = maxIdx + i + 1
		merged = append(merged, s)
	}
	return merged
}

// fetchWithRetry retries a provider call with doubling backoff before
// giving up. The context cancels the wait between attempts.
func fetchWithRetry[T any](ctx context.Context, logger *slog.Logger, op string, attempts int, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}
	delay := 500 * time.Millisecond
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, &TransientError{Op: op, Err: ctx.Err()}
			case <-timer.C:
			}
			delay *= 2
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		logger.Warn("fetch failed",
			slog.String("source", op),
			slog.Int("attempt", i+1),
			slog.Any("error", err))
	}
	return zero, &TransientError{Op: op, Err: lastErr}
}
