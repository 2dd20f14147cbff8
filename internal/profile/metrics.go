package profile

import (
	"math"

	"github.com/groundtruth/location-intel/pkg/censusapi"
)

// Metric format hints consumed by the frontend and the narrator.
const (
	FormatNumber   = "number"
	FormatCurrency = "currency"
	FormatPercent  = "percent"
	FormatMinutes  = "minutes"
)

// highMOEThreshold is the standard reliability cutoff for ACS-style
// estimates: a margin of error at or above 10% of the estimate flags the
// metric as high-uncertainty.
const highMOEThreshold = 0.10

// Metric is a derived, presentation-ready value for one geography.
// Constructed once per request and immutable except for the comparison
// lines attached after narration.
type Metric struct {
	ID          string       `json:"id"`
	Label       string       `json:"label"`
	TableID     string       `json:"table_id"`
	ColumnID    string       `json:"column_id"`
	Title       string       `json:"title,omitempty"`
	Estimate    *float64     `json:"estimate"`
	MOE         *float64     `json:"moe"`
	MOERatio    *float64     `json:"moe_ratio"`
	HighMOE     bool         `json:"high_moe"`
	Universe    string       `json:"universe,omitempty"`
	Format      string       `json:"format"`
	Comparisons []Comparison `json:"comparisons"`
}

// metricOpts configures deriveMetric. A nil valueOverride/moeOverride means
// "look the value up in the payload".
type metricOpts struct {
	id               string
	label            string
	tableID          string
	columnID         string
	format           string
	valueOverride    *float64
	moeOverride      *float64
	universeOverride string
	negativeIsNull   bool
}

// deriveMetric builds one Metric from the payload, applying sentinel
// normalization and MOE-ratio computation.
func deriveMetric(payload *censusapi.DataShowPayload, geoid string, opts metricOpts) *Metric {
	estimate := opts.valueOverride
	if estimate == nil {
		estimate = payload.Estimate(geoid, opts.tableID, opts.columnID)
	}
	moe := opts.moeOverride
	if moe == nil {
		moe = payload.MOE(geoid, opts.tableID, opts.columnID)
	}
	if opts.negativeIsNull {
		estimate = normalizeMedian(estimate)
	}

	var moeRatio *float64
	highMOE := false
	if estimate != nil && moe != nil && *estimate != 0 {
		ratio := math.Abs(*moe / *estimate)
		moeRatio = &ratio
		highMOE = ratio >= highMOEThreshold
	}

	table := payload.Tables[opts.tableID]
	universe := opts.universeOverride
	if universe == "" {
		universe = table.Universe
	}
	format := opts.format
	if format == "" {
		format = FormatNumber
	}

	return &Metric{
		ID:          opts.id,
		Label:       opts.label,
		TableID:     opts.tableID,
		ColumnID:    opts.columnID,
		Title:       table.Title(),
		Estimate:    estimate,
		MOE:         moe,
		MOERatio:    moeRatio,
		HighMOE:     highMOE,
		Universe:    universe,
		Format:      format,
		Comparisons: []Comparison{},
	}
}

// normalizeMedian replaces the upstream negative "not computable" sentinel
// with nil. Applied to every median-type metric.
func normalizeMedian(value *float64) *float64 {
	if value != nil && *value < 0 {
		return nil
	}
	return value
}

// pct computes 100 × part/whole, treating a missing part or a missing/zero
// whole as "unknown" rather than an error.
func pct(part, whole *float64) *float64 {
	if part == nil || whole == nil || *whole == 0 {
		return nil
	}
	v := (*part / *whole) * 100.0
	return &v
}

// sumEstimates sums the named columns' estimates, skipping absent columns.
// Returns nil only when no column contributed, distinguishing "all parts
// zero" from "no data".
func sumEstimates(payload *censusapi.DataShowPayload, geoid, tableID string, columnIDs []string) *float64 {
	total := 0.0
	hasAny := false
	for _, columnID := range columnIDs {
		value := payload.Estimate(geoid, tableID, columnID)
		if value == nil {
			continue
		}
		total += *value
		hasAny = true
	}
	if !hasAny {
		return nil
	}
	return &total
}

// sumMOERSS combines the named columns' margins of error via
// root-sum-of-squares, the standard convention for independent estimates.
// Returns nil when no component MOE is available.
func sumMOERSS(payload *censusapi.DataShowPayload, geoid, tableID string, columnIDs []string) *float64 {
	sumSquares := 0.0
	hasAny := false
	for _, columnID := range columnIDs {
		value := payload.MOE(geoid, tableID, columnID)
		if value == nil {
			continue
		}
		sumSquares += *value * *value
		hasAny = true
	}
	if !hasAny {
		return nil
	}
	v := math.Sqrt(sumSquares)
	return &v
}
