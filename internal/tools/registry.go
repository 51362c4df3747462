package tools

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Config holds the dependencies for tool construction.
type Config struct {
	// WeatherAPIKey is the OpenWeatherMap key. Empty is allowed; the
	// weather tool then reports the missing key at call time.
	WeatherAPIKey string

	// WeatherBaseURL overrides the OpenWeatherMap endpoint. Tests point it
	// at a local server.
	WeatherBaseURL string

	// HTTPClient overrides the weather HTTP client.
	HTTPClient *http.Client

	// Now overrides the clock for the current_time tool.
	Now func() time.Time

	Logger *slog.Logger
}

// Registry owns the registered tools and hands references to the
// orchestration layer.
type Registry struct {
	genkit *genkit.Genkit
	tools  []ai.Tool
}

// NewRegistry constructs and registers all assistant tools with Genkit.
func NewRegistry(g *genkit.Genkit, cfg Config) (*Registry, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "tools")

	clock := NewClock(cfg.Now, logger)
	weather := NewWeather(cfg.WeatherAPIKey, cfg.WeatherBaseURL, cfg.HTTPClient, logger)

	return &Registry{
		genkit: g,
		tools: []ai.Tool{
			RegisterClock(g, clock),
			RegisterWeather(g, weather),
		},
	}, nil
}

// Refs returns tool references for genkit.Generate.
func (r *Registry) Refs() []ai.ToolRef {
	refs := make([]ai.ToolRef, len(r.tools))
	for i, t := range r.tools {
		refs[i] = t
	}
	return refs
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name()
	}
	return names
}

// Lookup resolves a tool by name. Returns nil when the name is unknown,
// which callers render as an error-marker tool result.
func (r *Registry) Lookup(name string) ai.Tool {
	return genkit.LookupTool(r.genkit, name)
}
