package database

import (
	"context"
	"fmt"
	"time"

	"github.com/oskarb/kepler/types"
)

// ReplacePriceCache stores the latest successfully fetched prices as the
// fallback for provider outages.
func (d *Database) ReplacePriceCache(ctx context.Context, prices []types.PriceSlot) error {
	d.logger.Debug("replacing price cache", "slots", len(prices))

	tx, err := d.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting price cache transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, p := range prices {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO price_cache (slot_start, slot_end, import_price, export_price, fetched_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(slot_start) DO UPDATE SET
				slot_end = excluded.slot_end,
				import_price = excluded.import_price,
				export_price = excluded.export_price,
				fetched_at = excluded.fetched_at;`,
			p.Start.UTC().Format(time.RFC3339),
			p.End.UTC().Format(time.RFC3339),
			p.ImportPrice, p.ExportPrice, now)
		if err != nil {
			return fmt.Errorf("saving cached price %s: %w", p.Start, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing price cache: %w", err)
	}
	return nil
}

// GetCachedPrices returns cached prices with start at or after from.
func (d *Database) GetCachedPrices(ctx context.Context, from time.Time) ([]types.PriceSlot, error) {
	rows, err := d.read.QueryContext(ctx, `
		SELECT slot_start, slot_end, import_price, export_price
		FROM price_cache
		WHERE slot_start >= ?
		ORDER BY slot_start ASC`,
		from.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("fetching cached prices: %w", err)
	}
	defer rows.Close()

	var res []types.PriceSlot
	for rows.Next() {
		var p types.PriceSlot
		var start, end string
		if err := rows.Scan(&start, &end, &p.ImportPrice, &p.ExportPrice); err != nil {
			return nil, err
		}
		if p.Start, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, fmt.Errorf("parsing cached price start: %w", err)
		}
		if p.End, err = time.Parse(time.RFC3339, end); err != nil {
			return nil, fmt.Errorf("parsing cached price end: %w", err)
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading cached price rows: %w", err)
	}

	return res, nil
}

// ReplaceForecastCache stores the latest successfully fetched forecasts.
func (d *Database) ReplaceForecastCache(ctx context.Context, forecasts []types.ForecastSlot) error {
	d.logger.Debug("replacing forecast cache", "slots", len(forecasts))

	tx, err := d.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting forecast cache transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, f := range forecasts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO forecast_cache (slot_start, pv_kwh, load_kwh, fetched_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(slot_start) DO UPDATE SET
				pv_kwh = excluded.pv_kwh,
				load_kwh = excluded.load_kwh,
				fetched_at = excluded.fetched_at;`,
			f.Start.UTC().Format(time.RFC3339),
			f.PvKWh, f.LoadKWh, now)
		if err != nil {
			return fmt.Errorf("saving cached forecast %s: %w", f.Start, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing forecast cache: %w", err)
	}
	return nil
}

// GetCachedForecasts returns cached forecasts with start at or after from.
func (d *Database) GetCachedForecasts(ctx context.Context, from time.Time) ([]types.ForecastSlot, error) {
	rows, err := d.read.QueryContext(ctx, `
		SELECT slot_start, pv_kwh, load_kwh
		FROM forecast_cache
		WHERE slot_start >= ?
		ORDER BY slot_start ASC`,
		from.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("fetching cached forecasts: %w", err)
	}
	defer rows.Close()

	var res []types.ForecastSlot
	for rows.Next() {
		var f types.ForecastSlot
		var start string
		if err := rows.Scan(&start, &f.PvKWh, &f.LoadKWh); err != nil {
			return nil, err
		}
		if f.Start, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, fmt.Errorf("parsing cached forecast start: %w", err)
		}
		res = append(res, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading cached forecast rows: %w", err)
	}

	return res, nil
}

func (d *Database) PurgePriceCache(ctx context.Context, retentionDays int) error {
	return d.purgeTable(ctx, "price_cache", "slot_start", retentionDays)
}

func (d *Database) PurgeForecastCache(ctx context.Context, retentionDays int) error {
	return d.purgeTable(ctx, "forecast_cache", "slot_start", retentionDays)
}
