// Package tools provides the Genkit tools the assistant can call during a
// chat turn.
//
// Tool failures are reported as human-readable strings in the tool output,
// never as Go errors: the model reads the string and recovers, and the
// turn keeps going.
package tools

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// CurrentTimeName is the Genkit tool name for retrieving the current time.
const CurrentTimeName = "current_time"

// timeLayout renders DD-MM-YYYY HH-MM-SS with the zone abbreviation.
const timeLayout = "02-01-2006 15-04-05 MST"

// CurrentTimeInput defines input for the current_time tool.
type CurrentTimeInput struct {
	Timezone string `json:"timezone" jsonschema_description:"IANA timezone name, e.g. 'Europe/Prague' or 'America/New_York'. Defaults to UTC when empty."`
}

// Clock answers current-time queries.
// now is injectable so tests get deterministic output.
type Clock struct {
	now    func() time.Time
	logger *slog.Logger
}

// NewClock creates a Clock. now may be nil for time.Now.
func NewClock(now func() time.Time, logger *slog.Logger) *Clock {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Clock{now: now, logger: logger}
}

// CurrentTime returns the current time in the requested timezone.
// An unresolvable timezone yields an error string naming the bad zone,
// not a Go error, so the model can retry with a valid one.
func (c *Clock) CurrentTime(_ *ai.ToolContext, in CurrentTimeInput) (string, error) {
	zone := strings.TrimSpace(in.Timezone)
	if zone == "" {
		zone = "UTC"
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		c.logger.Debug("timezone lookup failed", "timezone", zone, "error", err)
		return fmt.Sprintf("Error: unknown timezone %q. Try an IANA name such as 'UTC' or 'America/New_York'.", zone), nil
	}

	return c.now().In(loc).Format(timeLayout), nil
}

// RegisterClock registers the current_time tool with Genkit.
func RegisterClock(g *genkit.Genkit, c *Clock) ai.Tool {
	return genkit.DefineTool(g, CurrentTimeName,
		"Get the current date and time in a given timezone. "+
			"Input: an IANA timezone name such as 'Europe/Prague'; defaults to UTC. "+
			"Returns the time formatted as DD-MM-YYYY HH-MM-SS with the zone abbreviation. "+
			"Use this for any question about the current date or time.",
		c.CurrentTime)
}
