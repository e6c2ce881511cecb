package nordpool

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/oskarb/kepler/types"
)

const apiURL = "https://dataportal-api.nordpoolgroup.com"

type multiAreaEntry struct {
	DeliveryStart time.Time          `json:"deliveryStart"`
	DeliveryEnd   time.Time          `json:"deliveryEnd"`
	EntryPerArea  map[string]float64 `json:"entryPerArea"`
}

type dayAheadResponse struct {
	DeliveryDateCET  string           `json:"deliveryDateCET"`
	Currency         string           `json:"currency"`
	MultiAreaEntries []multiAreaEntry `json:"multiAreaEntries"`
}

// Nordpool fetches day-ahead prices from the Nord Pool data portal.
// Prices come back in SEK per MWh and are normalized to SEK per kWh.
type Nordpool struct {
	area string
}

func New(area string) Nordpool {
	return Nordpool{area: area}
}

func (n Nordpool) GetPrices(ctx context.Context) ([]types.PriceSlot, error) {
	t := time.Now()
	today, err := n.getPrices(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices from nordpool for today: %w", err)
	}

	tomorrow, err := n.getPrices(ctx, t.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices from nordpool for tomorrow: %w", err)
	}

	return append(today, tomorrow...), nil
}

func (n Nordpool) getPrices(ctx context.Context, date time.Time) ([]types.PriceSlot, error) {
	url := fmt.Sprintf("%s/api/DayAheadPrices?date=%s&market=DayAhead&deliveryArea=%s&currency=SEK",
		apiURL,
		date.Format("2006-01-02"),
		n.area)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return []types.PriceSlot{}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var data dayAheadResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	prices := make([]types.PriceSlot, 0, len(data.MultiAreaEntries))
	for _, entry := range data.MultiAreaEntries {
		price, ok := entry.EntryPerArea[n.area]
		if !ok {
			continue
		}
		sekPerKWh := normalizePrice(price)
		prices = append(prices, types.PriceSlot{
			Start:       entry.DeliveryStart,
			End:         entry.DeliveryEnd,
			ImportPrice: sekPerKWh,
			ExportPrice: sekPerKWh,
		})
	}

	return prices, nil
}

func normalizePrice(sekPerMWh float64) float64 {
	precision := math.Pow(10, float64(4))
	return math.Round(sekPerMWh*precision/1e3) / precision
}
