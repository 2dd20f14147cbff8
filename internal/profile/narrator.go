package profile

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/groundtruth/location-intel/pkg/censusapi"
)

// Comparison is one plain-language comparison of a tract metric against an
// ancestor geography.
type Comparison struct {
	GeoID           string   `json:"geoid"`
	Relation        string   `json:"relation"`
	PlaceName       string   `json:"place_name"`
	ComparisonValue *float64 `json:"comparison_value"`
	Ratio           *float64 `json:"ratio"`
	Phrase          string   `json:"phrase"`
	Line            string   `json:"line"`
}

// defaultComparisonRelations are the ancestor relations narrated for each
// metric, in priority order.
var defaultComparisonRelations = []string{"place", "county", "state", "nation"}

var comparisonPrinter = message.NewPrinter(language.English)

// ratioPhrase maps a tract/ancestor ratio onto a readable magnitude phrase.
// Thresholds are checked highest first.
func ratioPhrase(ratio float64) string {
	switch {
	case ratio >= 2.0:
		return "more than double"
	case ratio >= 1.5:
		return "about one-and-a-half times"
	case ratio >= 1.2:
		return "about 20 percent higher than"
	case ratio >= 0.9:
		return "about the same as"
	case ratio >= 0.75:
		return "about three-quarters of"
	case ratio >= 0.6:
		return "about two-thirds of"
	case ratio >= 0.45:
		return "about half"
	case ratio >= 0.3:
		return "about one-third of"
	case ratio >= 0.15:
		return "about one-fifth of"
	default:
		return "less than 20 percent of"
	}
}

// formatForComparison renders a metric value for embedding in a sentence.
func formatForComparison(value float64, format string) string {
	switch format {
	case FormatCurrency:
		return comparisonPrinter.Sprintf("$%.0f", math.Round(value))
	case FormatPercent:
		return fmt.Sprintf("%.1f%%", value)
	case FormatMinutes:
		return fmt.Sprintf("%.1f", value)
	default:
		if value == math.Trunc(value) {
			return comparisonPrinter.Sprintf("%d", int64(value))
		}
		return comparisonPrinter.Sprintf("%.1f", value)
	}
}

// extractor pulls a metric's value out of an ancestor geography's payload.
type extractor func(payload *censusapi.DataShowPayload, geoid string) *float64

// comparisonLines narrates a tract value against each allowed ancestor
// relation. Only the first geography seen per relation is used, and
// ancestors with a missing or zero value are skipped.
func comparisonLines(payload *censusapi.DataShowPayload, tractValue *float64, records []censusapi.GeographyRecord, extract extractor, format string, allowed []string) []Comparison {
	comparisons := []Comparison{}
	if tractValue == nil || extract == nil {
		return comparisons
	}
	if len(allowed) == 0 {
		allowed = defaultComparisonRelations
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, rel := range allowed {
		allowedSet[rel] = true
	}
	seen := map[string]bool{}
	for _, rec := range records {
		relation := strings.ToLower(strings.TrimSpace(rec.Relation))
		if !allowedSet[relation] || seen[relation] {
			continue
		}
		seen[relation] = true
		geoid := rec.EffectiveGeoID()
		ancestorValue := extract(payload, geoid)
		if ancestorValue == nil || *ancestorValue == 0 {
			continue
		}
		ratio := *tractValue / *ancestorValue
		phrase := ratioPhrase(ratio)
		name := payload.GeographyName(geoid)
		if name == "" {
			name = rec.DisplayName
		}
		if name == "" {
			name = geoid
		}
		line := fmt.Sprintf("%s the figure in %s: %s", phrase, name, formatForComparison(*ancestorValue, format))
		r := ratio
		comparisons = append(comparisons, Comparison{
			GeoID:           geoid,
			Relation:        relation,
			PlaceName:       name,
			ComparisonValue: ancestorValue,
			Ratio:           &r,
			Phrase:          phrase,
			Line:            line,
		})
	}
	return comparisons
}
