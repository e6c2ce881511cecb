package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oskarb/kepler/types"
)

// SaveSchedule replaces the persisted schedule with the given one and
// rewrites the future-only executor artifact, all in one transaction.
// A failed run therefore never leaves a partially overwritten schedule.
func (d *Database) SaveSchedule(ctx context.Context, schedule types.Schedule, result types.RunResult) error {
	d.logger.Debug("saving schedule",
		"slots", len(schedule.Slots),
		"plannedAt", schedule.PlannedAt,
		"objective", schedule.ObjectiveValue)

	issuesJSON, err := json.Marshal(result.Issues)
	if err != nil {
		return fmt.Errorf("marshalling run issues: %w", err)
	}
	weightsJSON, err := json.Marshal(schedule.Weights)
	if err != nil {
		return fmt.Errorf("marshalling strategy weights: %w", err)
	}

	tx, err := d.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting schedule transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schedule_run (
			planned_at, horizon_start, horizon_end, objective_value,
			solve_time_ms, suboptimal, status, issues, risk_index, weights,
			engine_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.PlannedAt.UTC().Format(time.RFC3339),
		schedule.HorizonStart.UTC().Format(time.RFC3339),
		schedule.HorizonEnd.UTC().Format(time.RFC3339),
		schedule.ObjectiveValue,
		schedule.SolveTimeMs,
		schedule.Suboptimal,
		string(result.Status),
		string(issuesJSON),
		schedule.Weights.RiskIndex,
		string(weightsJSON),
		schedule.EngineVersion)
	if err != nil {
		return fmt.Errorf("saving schedule run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM schedule_slot"); err != nil {
		return fmt.Errorf("clearing schedule slots: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM executor_slot"); err != nil {
		return fmt.Errorf("clearing executor slots: %w", err)
	}

	for _, s := range schedule.Slots {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_slot (
				slot_start, slot_end, slot_number,
				import_price, export_price, pv_forecast_kwh, load_forecast_kwh,
				planned_charge_kwh, planned_discharge_kwh, planned_import_kwh,
				planned_export_kwh, planned_water_heating_kwh,
				soc_start_percent, planned_soc_percent,
				action, reason, priority, planned_cost, is_historical)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.Start.UTC().Format(time.RFC3339),
			s.End.UTC().Format(time.RFC3339),
			s.Index,
			s.ImportPrice, s.ExportPrice, s.PvForecastKWh, s.LoadForecastKWh,
			s.ChargeKWh, s.DischargeKWh, s.ImportKWh,
			s.ExportKWh, s.WaterKWh,
			s.SocStartPercent, s.SocEndPercent,
			string(s.Action), int(s.Reason), int(s.Priority), s.PlannedCost, s.Historical)
		if err != nil {
			return fmt.Errorf("saving schedule slot %s: %w", s.Start, err)
		}

		if s.Historical {
			continue
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO executor_slot (
				slot_start, slot_end, slot_number,
				planned_charge_kwh, planned_discharge_kwh, planned_export_kwh,
				planned_water_heating_kwh, planned_soc_percent, planned_cost, action)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.Start.UTC().Format(time.RFC3339),
			s.End.UTC().Format(time.RFC3339),
			s.Index,
			s.ChargeKWh, s.DischargeKWh, s.ExportKWh,
			s.WaterKWh, s.SocEndPercent, s.PlannedCost, string(s.Action))
		if err != nil {
			return fmt.Errorf("saving executor slot %s: %w", s.Start, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schedule: %w", err)
	}
	return nil
}

// GetSchedule returns the currently persisted schedule slots in order.
func (d *Database) GetSchedule(ctx context.Context) ([]types.Slot, error) {
	rows, err := d.read.QueryContext(ctx, `
		SELECT slot_start, slot_end, slot_number,
			import_price, export_price, pv_forecast_kwh, load_forecast_kwh,
			planned_charge_kwh, planned_discharge_kwh, planned_import_kwh,
			planned_export_kwh, planned_water_heating_kwh,
			soc_start_percent, planned_soc_percent,
			action, reason, priority, planned_cost, is_historical
		FROM schedule_slot
		ORDER BY slot_start ASC`)
	if err != nil {
		return nil, fmt.Errorf("fetching schedule: %w", err)
	}
	defer rows.Close()

	return scanSlots(rows)
}

// GetExecutorSlots returns the future-only artifact for the live executor.
func (d *Database) GetExecutorSlots(ctx context.Context) ([]types.Slot, error) {
	rows, err := d.read.QueryContext(ctx, `
		SELECT slot_start, slot_end, slot_number,
			planned_charge_kwh, planned_discharge_kwh, planned_export_kwh,
			planned_water_heating_kwh, planned_soc_percent, planned_cost, action
		FROM executor_slot
		ORDER BY slot_start ASC`)
	if err != nil {
		return nil, fmt.Errorf("fetching executor slots: %w", err)
	}
	defer rows.Close()

	var res []types.Slot
	for rows.Next() {
		var s types.Slot
		var start, end, action string
		err := rows.Scan(&start, &end, &s.Index,
			&s.ChargeKWh, &s.DischargeKWh, &s.ExportKWh,
			&s.WaterKWh, &s.SocEndPercent, &s.PlannedCost, &action)
		if err != nil {
			return nil, err
		}
		if s.Start, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, fmt.Errorf("parsing executor slot start: %w", err)
		}
		if s.End, err = time.Parse(time.RFC3339, end); err != nil {
			return nil, fmt.Errorf("parsing executor slot end: %w", err)
		}
		s.Action = types.Action(action)
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading executor slot rows: %w", err)
	}

	return res, nil
}

// GetLastRun returns metadata for the most recent planning run.
func (d *Database) GetLastRun(ctx context.Context) (types.RunResult, error) {
	row := d.read.QueryRowContext(ctx, `
		SELECT planned_at, objective_value, solve_time_ms, status, issues
		FROM schedule_run
		ORDER BY id DESC
		LIMIT 1`)

	var res types.RunResult
	var plannedAt, status, issues string
	err := row.Scan(&plannedAt, &res.ObjectiveValue, &res.SolveTimeMs, &status, &issues)
	if err == sql.ErrNoRows {
		return types.RunResult{}, sql.ErrNoRows
	}
	if err != nil {
		return types.RunResult{}, fmt.Errorf("scanning schedule run: %w", err)
	}
	if res.PlannedAt, err = time.Parse(time.RFC3339, plannedAt); err != nil {
		return types.RunResult{}, fmt.Errorf("parsing planned_at: %w", err)
	}
	res.Status = types.RunStatus(status)
	if err := json.Unmarshal([]byte(issues), &res.Issues); err != nil {
		return types.RunResult{}, fmt.Errorf("unmarshalling run issues: %w", err)
	}

	return res, nil
}

func (d *Database) PurgeRuns(ctx context.Context, retentionDays int) error {
	return d.purgeTable(ctx, "schedule_run", "planned_at", retentionDays)
}

func scanSlots(rows *sql.Rows) ([]types.Slot, error) {
	var res []types.Slot
	for rows.Next() {
		var s types.Slot
		var start, end, action string
		var reason, priority int
		err := rows.Scan(&start, &end, &s.Index,
			&s.ImportPrice, &s.ExportPrice, &s.PvForecastKWh, &s.LoadForecastKWh,
			&s.ChargeKWh, &s.DischargeKWh, &s.ImportKWh,
			&s.ExportKWh, &s.WaterKWh,
			&s.SocStartPercent, &s.SocEndPercent,
			&action, &reason, &priority, &s.PlannedCost, &s.Historical)
		if err != nil {
			return nil, err
		}
		if s.Start, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, fmt.Errorf("parsing slot start: %w", err)
		}
		if s.End, err = time.Parse(time.RFC3339, end); err != nil {
			return nil, fmt.Errorf("parsing slot end: %w", err)
		}
		s.Action = types.Action(action)
		s.Reason = types.Reason(reason)
		s.Priority = types.Priority(priority)
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading slot rows: %w", err)
	}

	return res, nil
}
