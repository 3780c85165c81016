package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weatherTool(t *testing.T) Tool {
	t.Helper()

	geo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") == "Nowhere" {
			w.Write([]byte(`{"results": []}`))
			return
		}
		assert.Equal(t, "1", r.URL.Query().Get("count"))
		w.Write([]byte(`{"results": [{"name": "Hanoi", "country": "Vietnam", "latitude": 21.0245, "longitude": 105.8412}]}`))
	}))
	t.Cleanup(geo.Close)

	forecast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("current_weather"))
		assert.Equal(t, "21.0245", r.URL.Query().Get("latitude"))
		w.Write([]byte(`{"current_weather": {"temperature": 31.4, "windspeed": 12.2, "weathercode": 3}}`))
	}))
	t.Cleanup(forecast.Close)

	return NewWeatherTool(WeatherConfig{GeocodingURL: geo.URL, ForecastURL: forecast.URL})
}

func TestWeatherToolSchema(t *testing.T) {
	tool := weatherTool(t)

	assert.Equal(t, "get_current_weather", tool.Name)
	props, ok := tool.Parameters["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "location")
	assert.Equal(t, []string{"location"}, tool.Parameters["required"])
}

func TestWeatherToolLookup(t *testing.T) {
	tool := weatherTool(t)

	result, err := tool.Handler(context.Background(), map[string]any{"location": "Hanoi, Vietnam"})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(result), &got))
	assert.Equal(t, "Hanoi, Vietnam", got["location"])
	assert.Equal(t, 31.4, got["temperature_c"])
	assert.Equal(t, 12.2, got["windspeed_kmh"])
	assert.Equal(t, 3.0, got["weather_code"])
}

func TestWeatherToolNoGeocodeMatch(t *testing.T) {
	tool := weatherTool(t)

	_, err := tool.Handler(context.Background(), map[string]any{"location": "Nowhere"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no match")
}

func TestWeatherToolMissingLocation(t *testing.T) {
	tool := weatherTool(t)

	_, err := tool.Handler(context.Background(), map[string]any{})
	require.Error(t, err)

	_, err = tool.Handler(context.Background(), map[string]any{"location": 42})
	require.Error(t, err)
}
