// Package assistant implements the location-advice chatbot: a Claude
// conversation grounded in per-location metrics, weighted ranking of
// candidate locations, and extraction of structured weights and map
// search keywords from model replies.
package assistant

import (
	"fmt"
	"sort"
	"strings"
)

// Focus selects which default metric weights apply to a conversation.
type Focus string

const (
	FocusTenant        Focus = "tenant"
	FocusSmallBusiness Focus = "small_business"
)

// Valid reports whether f is a recognized focus.
func (f Focus) Valid() bool {
	return f == FocusTenant || f == FocusSmallBusiness
}

// MetricIDs is the closed set of metrics the assistant reasons about.
// Weights and rankings only ever use these keys.
var MetricIDs = []string{
	"population",
	"population_density",
	"income",
	"safety",
	"parking",
	"land_cost",
	"disaster_risk",
}

// DefaultWeights holds the per-focus priors used when the user has not
// expressed preferences. Each set sums to 1.
var DefaultWeights = map[Focus]map[string]float64{
	FocusTenant: {
		"safety":             0.3,
		"land_cost":          0.28,
		"parking":            0.15,
		"disaster_risk":      0.12,
		"income":             0.06,
		"population":         0.05,
		"population_density": 0.04,
	},
	FocusSmallBusiness: {
		"population":         0.2,
		"population_density": 0.18,
		"parking":            0.2,
		"income":             0.12,
		"land_cost":          0.12,
		"safety":             0.12,
		"disaster_risk":      0.06,
	},
}

const systemPromptBase = `You help people decide where to live or open a business. You only use these metrics: population, population_density, income, safety, parking, land_cost, disaster_risk. Do not invent data.

When asked what metrics you use, list them exactly: population, population_density, income, safety, parking, land_cost, disaster_risk. Keep the list concise.

When the user describes priorities (e.g. "safety and affordability"), reply briefly and include a JSON object "weights" with keys from the metric list and values that sum to 1.0. Use only those keys. Format the weights in a markdown code block, e.g.:
` + "```json" + `
{"weights": {"safety": 0.4, "land_cost": 0.3, ...}}
` + "```" + `

When the user mentions interests, hobbies, or preferences (e.g. "working out", "gym", "parks", "schools", "restaurants"), include in your reply a second JSON code block with map_query_keywords: an array of short strings suitable for a map/POI search. Generate 3-8 concrete search terms. Example:
` + "```json" + `
{"map_query_keywords": ["gym", "fitness center", "yoga studio", "running track"]}
` + "```" + `
If the message has no clear interest or preference for map search, omit this block.

When explaining a ranking or comparison, use only the metric values provided in the context. Keep replies to 2-4 sentences unless the user asks for more.`

// buildSystemInstruction assembles the full system prompt: base rules,
// the active focus and its default weights, and the metrics of any
// locations the user currently has on the map.
func buildSystemInstruction(focus Focus, locations []Location) string {
	focusLabel := "Tenant"
	if focus == FocusSmallBusiness {
		focusLabel = "Small Business"
	}

	var b strings.Builder
	b.WriteString(systemPromptBase)
	fmt.Fprintf(&b, "\n\nCurrent focus: %s.\n", focusLabel)
	fmt.Fprintf(&b, "Default weights for this focus: %s.", formatWeights(DefaultWeights[focus]))

	if len(locations) > 0 {
		b.WriteString("\n\nLocations with metrics (use only these values for compare/rank):\n")
		for i, loc := range locations {
			name := loc.Label
			if name == "" {
				name = fmt.Sprintf("Location %d", i+1)
			}
			fmt.Fprintf(&b, "- %s (id: %s): %s\n", name, loc.ID, formatWeights(loc.Metrics))
		}
		if len(locations) == 1 {
			name := locations[0].Label
			if name == "" {
				name = locations[0].ID
			}
			if name == "" {
				name = "this location"
			}
			fmt.Fprintf(&b, "\nThe user has currently selected this location on the map (%s). "+
				"When they ask where they are interested in living, which city they selected, "+
				"what location they are viewing, or similar, tell them this location and use the metrics above to describe it.\n", name)
		}
	}

	return b.String()
}

// formatWeights renders a metric map with deterministic key order so the
// system prompt is stable across requests with identical inputs.
func formatWeights(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %g", k, m[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// copyWeights returns a shallow copy so callers can mutate safely.
func copyWeights(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
