package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client is a thin pass-through to the OpenWeather forecast API.
type Client struct {
	ApiKey string
}

func (c Client) Forecast(ctx context.Context, lat, lon float64) (map[string]any, error) {
	// https://openweathermap.org/forecast5
	url := fmt.Sprintf("https://api.openweathermap.org/data/2.5/forecast?lat=%f&lon=%f&units=metric&appid=%s", lat, lon, c.ApiKey)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openweather status %d", resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
