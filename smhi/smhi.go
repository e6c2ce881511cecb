package smhi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Get fetches the SMHI point forecast for the given coordinates.
func Get(ctx context.Context, lon float64, lat float64) ([]PointForecast, error) {
	url := fmt.Sprintf(
		"%s/api/category/pmp3g/version/2/geotype/point/lon/%0.4f/lat/%0.4f/data.json",
		BASE_URL, lon, lat)

	slog.Default().Info("fetching forecast from SMHI...", "url", url)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating SMHI request: %w", err)
	}
	client := http.Client{Timeout: 10 * time.Second}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error getting SMHI forecast: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code from SMHI: %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading SMHI response body: %w", err)
	}

	var smhi smhi
	if err := json.Unmarshal(body, &smhi); err != nil {
		return nil, fmt.Errorf("error unmarshaling SMHI json: %w", err)
	}

	result := make([]PointForecast, 0, len(smhi.TimeSeries))
	for _, entry := range smhi.TimeSeries {
		result = append(result, PointForecast{
			ValidTime:        entry.ValidTime,
			CloudCoverOctas:  uint8(getParameter(entry.Parameters, "tcc_mean")),
			TemperatureC:     getParameter(entry.Parameters, "t"),
			PrecipitationMmH: getParameter(entry.Parameters, "pmean"),
		})
	}

	return result, nil
}

func getParameter(params []parameter, name string) float64 {
	for _, param := range params {
		if param.Name == name && len(param.Values) > 0 {
			return param.Values[0]
		}
	}

	return 0
}
