package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// WeatherTool looks up current conditions via the Open-Meteo API,
// which needs no API key.
type WeatherTool struct {
	client *http.Client
}

type weatherInput struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type openMeteoResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
}

// NewWeatherTool creates a new weather tool
func NewWeatherTool() *WeatherTool {
	return &WeatherTool{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *WeatherTool) Name() string {
	return "weather"
}

func (t *WeatherTool) Description() string {
	return "Get current weather conditions for a location given latitude and longitude."
}

func (t *WeatherTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"latitude": {"type": "number", "description": "Latitude in decimal degrees"},
			"longitude": {"type": "number", "description": "Longitude in decimal degrees"}
		},
		"required": ["latitude", "longitude"]
	}`)
}

func (t *WeatherTool) Execute(ctx context.Context, input json.RawMessage) (*ToolResult, error) {
	var in weatherInput
	if err := json.Unmarshal(input, &in); err != nil {
		return &ToolResult{Content: fmt.Sprintf("invalid input: %v", err), IsError: true}, nil
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", in.Latitude))
	q.Set("longitude", fmt.Sprintf("%.4f", in.Longitude))
	q.Set("current", "temperature_2m,wind_speed_10m,weather_code")

	req, err := http.NewRequestWithContext(ctx, "GET",
		"https://api.open-meteo.com/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("weather lookup failed: %v", err), IsError: true}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ToolResult{Content: fmt.Sprintf("weather API returned %d", resp.StatusCode), IsError: true}, nil
	}

	var data openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return &ToolResult{Content: fmt.Sprintf("bad weather response: %v", err), IsError: true}, nil
	}

	return &ToolResult{
		Content: fmt.Sprintf("Temperature %.1f°C, wind %.1f km/h, weather code %d",
			data.Current.Temperature, data.Current.WindSpeed, data.Current.WeatherCode),
	}, nil
}
