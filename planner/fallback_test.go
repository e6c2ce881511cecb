package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceFallbackUsesFirstWorkingProvider(t *testing.T) {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	primary := &fakePriceProvider{slots: hourlyPrices(start, 24, 1.0)}
	secondary := &fakePriceProvider{slots: hourlyPrices(start, 24, 2.0)}

	f := NewPriceFallback(testLogger(), primary, secondary)
	prices, err := f.GetPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, prices[0].ImportPrice)
	assert.Zero(t, secondary.calls)
}

func TestPriceFallbackSkipsFailingProvider(t *testing.T) {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	primary := &fakePriceProvider{errs: []error{errors.New("api down")}}
	secondary := &fakePriceProvider{slots: hourlyPrices(start, 24, 2.0)}

	f := NewPriceFallback(testLogger(), primary, secondary)
	prices, err := f.GetPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.0, prices[0].ImportPrice)
}

func TestPriceFallbackSkipsEmptyProvider(t *testing.T) {
	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	primary := &fakePriceProvider{} // publishes nothing yet
	secondary := &fakePriceProvider{slots: hourlyPrices(start, 24, 2.0)}

	f := NewPriceFallback(testLogger(), primary, secondary)
	prices, err := f.GetPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.0, prices[0].ImportPrice)
}

func TestPriceFallbackAllFailing(t *testing.T) {
	cause := errors.New("api down")
	f := NewPriceFallback(testLogger(),
		&fakePriceProvider{errs: []error{cause}},
		&fakePriceProvider{errs: []error{cause}})

	_, err := f.GetPrices(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
}
