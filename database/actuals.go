package database

import (
	"context"
	"fmt"
	"time"

	"github.com/oskarb/kepler/types"
)

// SaveActualSlot records one executed slot into the ground truth. The
// executor calls this once per elapsed slot; planning only ever reads.
func (d *Database) SaveActualSlot(ctx context.Context, s types.Slot) error {
	d.logger.Debug("saving actual slot",
		"start", s.Start,
		"action", s.Action)

	_, err := d.write.ExecContext(ctx, `
		INSERT INTO actual_slot (
			slot_start, slot_end, slot_number,
			import_price, export_price, pv_forecast_kwh, load_forecast_kwh,
			planned_charge_kwh, planned_discharge_kwh, planned_import_kwh,
			planned_export_kwh, planned_water_heating_kwh,
			soc_start_percent, planned_soc_percent,
			action, reason, priority, planned_cost)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot_start) DO UPDATE SET
			slot_end = excluded.slot_end,
			slot_number = excluded.slot_number,
			planned_charge_kwh = excluded.planned_charge_kwh,
			planned_discharge_kwh = excluded.planned_discharge_kwh,
			planned_import_kwh = excluded.planned_import_kwh,
			planned_export_kwh = excluded.planned_export_kwh,
			planned_water_heating_kwh = excluded.planned_water_heating_kwh,
			soc_start_percent = excluded.soc_start_percent,
			planned_soc_percent = excluded.planned_soc_percent,
			action = excluded.action,
			reason = excluded.reason,
			priority = excluded.priority,
			planned_cost = excluded.planned_cost;`,
		s.Start.UTC().Format(time.RFC3339),
		s.End.UTC().Format(time.RFC3339),
		s.Index,
		s.ImportPrice, s.ExportPrice, s.PvForecastKWh, s.LoadForecastKWh,
		s.ChargeKWh, s.DischargeKWh, s.ImportKWh,
		s.ExportKWh, s.WaterKWh,
		s.SocStartPercent, s.SocEndPercent,
		string(s.Action), int(s.Reason), int(s.Priority), s.PlannedCost)
	if err != nil {
		return fmt.Errorf("saving actual slot: %w", err)
	}
	return nil
}

// GetActualSlots returns executed slots with start in [from, to), ordered,
// each tagged historical.
func (d *Database) GetActualSlots(ctx context.Context, from, to time.Time) ([]types.Slot, error) {
	rows, err := d.read.QueryContext(ctx, `
		SELECT slot_start, slot_end, slot_number,
			import_price, export_price, pv_forecast_kwh, load_forecast_kwh,
			planned_charge_kwh, planned_discharge_kwh, planned_import_kwh,
			planned_export_kwh, planned_water_heating_kwh,
			soc_start_percent, planned_soc_percent,
			action, reason, priority, planned_cost, 1
		FROM actual_slot
		WHERE slot_start >= ? AND slot_start < ?
		ORDER BY slot_start ASC`,
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("fetching actual slots: %w", err)
	}
	defer rows.Close()

	return scanSlots(rows)
}

func (d *Database) PurgeActualSlots(ctx context.Context, retentionDays int) error {
	return d.purgeTable(ctx, "actual_slot", "slot_start", retentionDays)
}
