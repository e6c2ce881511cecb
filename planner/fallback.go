package planner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oskarb/kepler/types"
)

// PriceFallback tries a list of price providers in order and returns
// the first non-empty series. Spot price sources publish the same data,
// so any of them will do.
type PriceFallback struct {
	logger    *slog.Logger
	providers []types.PriceProvider
}

func NewPriceFallback(logger *slog.Logger, providers ...types.PriceProvider) *PriceFallback {
	return &PriceFallback{
		logger:    logger.With(slog.String("module", "prices")),
		providers: providers,
	}
}

func (f *PriceFallback) GetPrices(ctx context.Context) ([]types.PriceSlot, error) {
	var lastErr error
	for i, p := range f.providers {
		prices, err := p.GetPrices(ctx)
		if err != nil {
			f.logger.Warn("price provider failed, trying next",
				slog.Int("provider", i), slog.Any("error", err))
			lastErr = err
			continue
		}
		if len(prices) == 0 {
			f.logger.Warn("price provider returned no prices, trying next",
				slog.Int("provider", i))
			continue
		}
		return prices, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("all price providers failed: %w", lastErr)
	}
	return nil, fmt.Errorf("no price provider returned any prices")
}
