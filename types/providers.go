package types

import (
	"context"
	"time"
)

// PriceSlot is one raw per-slot price record from a price provider.
type PriceSlot struct {
	Start       time.Time
	End         time.Time
	ImportPrice float64 // SEK per kWh
	ExportPrice float64 // SEK per kWh
}

// ForecastSlot is one raw per-slot forecast record.
type ForecastSlot struct {
	Start   time.Time
	PvKWh   float64
	LoadKWh float64
}

// LiveState is the most recent observed plant state. It is an external
// input; planning never recomputes it.
type LiveState struct {
	BatterySocPercent   float64
	WaterHeatedTodayKWh float64
	ObservedAt          time.Time
}

// ContextSignals feed the strategy engine's risk index.
type ContextSignals struct {
	// Mean outdoor temperature forecast over the next days, if known.
	MeanTemperatureC *float64
}

type PriceProvider interface {
	GetPrices(ctx context.Context) ([]PriceSlot, error)
}

type ForecastProvider interface {
	GetForecasts(ctx context.Context) ([]ForecastSlot, error)
}

type LiveStateProvider interface {
	GetLiveState(ctx context.Context) (LiveState, error)
}

type ContextSignalsProvider interface {
	GetContextSignals(ctx context.Context) (ContextSignals, error)
}
