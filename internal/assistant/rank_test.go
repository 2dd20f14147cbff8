package assistant

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loc(id string, metrics map[string]float64) Location {
	return Location{ID: id, Label: id, Metrics: metrics}
}

func rankedIDs(locations []Location) []string {
	ids := make([]string, len(locations))
	for i, l := range locations {
		ids[i] = l.ID
	}
	return ids
}

func TestRankLocationsHigherIsBetter(t *testing.T) {
	locations := []Location{
		loc("a", map[string]float64{"income": 40000}),
		loc("b", map[string]float64{"income": 90000}),
		loc("c", map[string]float64{"income": 60000}),
	}
	ranked := RankLocations(locations, map[string]float64{"income": 1}, MetricIDs)
	assert.Equal(t, []string{"b", "c", "a"}, rankedIDs(ranked))
}

func TestRankLocationsLowerIsBetterInverted(t *testing.T) {
	locations := []Location{
		loc("cheap", map[string]float64{"land_cost": 0.2}),
		loc("pricey", map[string]float64{"land_cost": 0.9}),
	}
	ranked := RankLocations(locations, map[string]float64{"land_cost": 1}, MetricIDs)
	assert.Equal(t, []string{"cheap", "pricey"}, rankedIDs(ranked))
}

func TestRankLocationsWeightedMix(t *testing.T) {
	// a wins on safety, b wins on income; safety carries more weight.
	locations := []Location{
		loc("a", map[string]float64{"safety": 0.9, "income": 40000}),
		loc("b", map[string]float64{"safety": 0.3, "income": 90000}),
	}
	weights := map[string]float64{"safety": 0.7, "income": 0.3}
	ranked := RankLocations(locations, weights, MetricIDs)
	assert.Equal(t, []string{"a", "b"}, rankedIDs(ranked))
}

func TestRankLocationsMissingMetricCountsAsZero(t *testing.T) {
	locations := []Location{
		loc("present", map[string]float64{"population": 5000}),
		loc("missing", map[string]float64{}),
	}
	ranked := RankLocations(locations, map[string]float64{"population": 1}, MetricIDs)
	assert.Equal(t, "present", ranked[0].ID)
}

func TestRankLocationsTiesKeepInputOrder(t *testing.T) {
	locations := []Location{
		loc("first", map[string]float64{"income": 50000}),
		loc("second", map[string]float64{"income": 50000}),
	}
	ranked := RankLocations(locations, map[string]float64{"income": 1}, MetricIDs)
	assert.Equal(t, []string{"first", "second"}, rankedIDs(ranked))
}

func TestRankLocationsEmpty(t *testing.T) {
	assert.Nil(t, RankLocations(nil, map[string]float64{"income": 1}, MetricIDs))
}

func TestLocationJSONRoundTrip(t *testing.T) {
	raw := `{"id": "tract-1", "label": "Near West Side", "population": 12345, "safety": 0.8, "notes": "ignored"}`

	var l Location
	require.NoError(t, json.Unmarshal([]byte(raw), &l))
	assert.Equal(t, "tract-1", l.ID)
	assert.Equal(t, "Near West Side", l.Label)
	assert.Equal(t, map[string]float64{"population": 12345, "safety": 0.8}, l.Metrics)

	out, err := json.Marshal(l)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "tract-1", decoded["id"])
	assert.Equal(t, 12345.0, decoded["population"])
	assert.NotContains(t, decoded, "notes")
}
