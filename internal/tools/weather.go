package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/autumn-voice/gateway/internal/httpc"
)

// WeatherConfig points the weather tool at an Open-Meteo-compatible API.
// Both URLs default to the public Open-Meteo endpoints; tests override them.
type WeatherConfig struct {
	GeocodingURL string
	ForecastURL  string
	PoolSize     int
}

const (
	defaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
)

// NewWeatherTool builds the get_current_weather tool: geocode the location,
// then fetch current conditions. No API key required.
func NewWeatherTool(cfg WeatherConfig) Tool {
	if cfg.GeocodingURL == "" {
		cfg.GeocodingURL = defaultGeocodingURL
	}
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = defaultForecastURL
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	client := httpc.NewPooled(cfg.PoolSize, 10*time.Second)

	return Tool{
		Name:        "get_current_weather",
		Description: "Get the current weather for a given location",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "The city and country, e.g., 'Hanoi, Vietnam'",
				},
			},
			"required": []string{"location"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			location, _ := args["location"].(string)
			if location == "" {
				return "", fmt.Errorf("missing location argument")
			}
			return currentWeather(ctx, client, cfg, location)
		},
	}
}

func currentWeather(ctx context.Context, client *http.Client, cfg WeatherConfig, location string) (string, error) {
	lat, lon, name, err := geocode(ctx, client, cfg.GeocodingURL, location)
	if err != nil {
		return "", err
	}

	reqURL := fmt.Sprintf("%s?latitude=%.4f&longitude=%.4f&current_weather=true", cfg.ForecastURL, lat, lon)
	var wire struct {
		CurrentWeather struct {
			Temperature float64 `json:"temperature"`
			Windspeed   float64 `json:"windspeed"`
			Weathercode int     `json:"weathercode"`
		} `json:"current_weather"`
	}
	if err = getJSON(ctx, client, reqURL, &wire); err != nil {
		return "", fmt.Errorf("forecast lookup: %w", err)
	}

	result, err := json.Marshal(map[string]any{
		"location":      name,
		"temperature_c": wire.CurrentWeather.Temperature,
		"windspeed_kmh": wire.CurrentWeather.Windspeed,
		"weather_code":  wire.CurrentWeather.Weathercode,
	})
	if err != nil {
		return "", err
	}
	return string(result), nil
}

func geocode(ctx context.Context, client *http.Client, baseURL, location string) (lat, lon float64, name string, err error) {
	reqURL := baseURL + "?count=1&name=" + url.QueryEscape(location)
	var wire struct {
		Results []struct {
			Name      string  `json:"name"`
			Country   string  `json:"country"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
		} `json:"results"`
	}
	if err = getJSON(ctx, client, reqURL, &wire); err != nil {
		return 0, 0, "", fmt.Errorf("geocode %q: %w", location, err)
	}
	if len(wire.Results) == 0 {
		return 0, 0, "", fmt.Errorf("geocode %q: no match", location)
	}
	r := wire.Results[0]
	return r.Latitude, r.Longitude, r.Name + ", " + r.Country, nil
}

func getJSON(ctx context.Context, client *http.Client, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
