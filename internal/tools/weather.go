package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// GetWeatherName is the Genkit tool name for current weather lookups.
const GetWeatherName = "get_weather"

// DefaultWeatherBaseURL is the OpenWeatherMap current weather endpoint.
const DefaultWeatherBaseURL = "https://api.openweathermap.org/data/2.5/weather"

const weatherRequestTimeout = 10 * time.Second

// GetWeatherInput defines input for the get_weather tool.
type GetWeatherInput struct {
	City        string `json:"city" jsonschema_description:"City name, e.g. 'Prague' or 'New York'"`
	Measurement string `json:"measurement,omitempty" jsonschema_description:"Unit system: 'metric' (Celsius, default) or 'imperial' (Fahrenheit)"`
}

// weatherResponse is the subset of the OpenWeatherMap payload we render.
type weatherResponse struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Name string `json:"name"`
}

// Weather answers current-weather queries via OpenWeatherMap.
type Weather struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewWeather creates a Weather tool handler.
// baseURL may be empty for the public API; client may be nil for a default
// client with a request timeout.
func NewWeather(apiKey, baseURL string, client *http.Client, logger *slog.Logger) *Weather {
	if baseURL == "" {
		baseURL = DefaultWeatherBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: weatherRequestTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Weather{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}
}

// Current returns the current weather for a city.
// Every failure path returns a descriptive string, not a Go error: the
// model treats the string as the tool's answer and can tell the user.
func (w *Weather) Current(tc *ai.ToolContext, in GetWeatherInput) (string, error) {
	city := strings.TrimSpace(in.City)
	if city == "" {
		return "Error: no city provided. Tell me which city you want the weather for.", nil
	}
	if w.apiKey == "" {
		return "Error: weather service is not configured (missing API key).", nil
	}

	units := "metric"
	if strings.EqualFold(in.Measurement, "imperial") {
		units = "imperial"
	}

	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", w.apiKey)
	q.Set("units", units)
	reqURL := w.baseURL + "?" + q.Encode()

	ctx := context.Background()
	if tc != nil && tc.Context != nil {
		ctx = tc.Context
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Sprintf("Error: could not build weather request: %v", err), nil
	}

	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.Warn("weather request failed", "city", city, "error", err)
		return fmt.Sprintf("Error: could not reach the weather service: %v", err), nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Sprintf("Error: city %q not found.", city), nil
	case resp.StatusCode != http.StatusOK:
		return fmt.Sprintf("Error: weather service returned status %d.", resp.StatusCode), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Sprintf("Error: could not read weather response: %v", err), nil
	}

	var wr weatherResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return fmt.Sprintf("Error: could not parse weather response: %v", err), nil
	}

	description := "unknown conditions"
	if len(wr.Weather) > 0 {
		description = wr.Weather[0].Description
	}

	tempUnit, speedUnit := "°C", "m/s"
	if units == "imperial" {
		tempUnit, speedUnit = "°F", "mph"
	}

	name := wr.Name
	if name == "" {
		name = city
	}

	return fmt.Sprintf("Current weather in %s: %s, temperature %.1f%s (feels like %.1f%s), wind %.1f %s, humidity %d%%.",
		name, description,
		wr.Main.Temp, tempUnit,
		wr.Main.FeelsLike, tempUnit,
		wr.Wind.Speed, speedUnit,
		wr.Main.Humidity), nil
}

// RegisterWeather registers the get_weather tool with Genkit.
func RegisterWeather(g *genkit.Genkit, w *Weather) ai.Tool {
	return genkit.DefineTool(g, GetWeatherName,
		"Get the current weather for a city. "+
			"Input: the city name and optionally 'metric' (default) or 'imperial' units. "+
			"Returns temperature, feels-like temperature, conditions, wind speed, and humidity. "+
			"Use this when asked about current weather anywhere.",
		w.Current)
}
