package assistant

import (
	"encoding/json"
	"math"
	"sort"
)

// lowerIsBetter marks metrics where a smaller value should score higher.
var lowerIsBetter = map[string]bool{
	"land_cost":     true,
	"disaster_risk": true,
}

// Location is one candidate location with its metric values. On the wire
// it is a flat object: id, label, and one numeric field per metric.
type Location struct {
	ID      string
	Label   string
	Metrics map[string]float64
}

// UnmarshalJSON decodes the flat wire shape, collecting every numeric
// field other than id/label as a metric.
func (l *Location) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	l.Metrics = make(map[string]float64)
	for key, val := range raw {
		switch key {
		case "id":
			if err := json.Unmarshal(val, &l.ID); err != nil {
				return err
			}
		case "label":
			if err := json.Unmarshal(val, &l.Label); err != nil {
				return err
			}
		default:
			var num float64
			if err := json.Unmarshal(val, &num); err != nil {
				continue // non-numeric extras are ignored
			}
			l.Metrics[key] = num
		}
	}
	return nil
}

// MarshalJSON encodes back to the flat wire shape.
func (l Location) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(l.Metrics)+2)
	out["id"] = l.ID
	if l.Label != "" {
		out["label"] = l.Label
	}
	for k, v := range l.Metrics {
		out[k] = v
	}
	return json.Marshal(out)
}

func (l Location) metric(id string) float64 {
	v, ok := l.Metrics[id]
	if !ok || math.IsNaN(v) {
		return 0
	}
	return v
}

// RankLocations orders locations by weighted score, best first. Each
// metric is min-max normalized across the candidate set; lower-is-better
// metrics contribute 1 - normalized. Missing or NaN values count as 0.
// Ties keep their input order.
func RankLocations(locations []Location, weights map[string]float64, metricIDs []string) []Location {
	if len(locations) == 0 {
		return nil
	}

	type bounds struct{ min, max float64 }
	minMax := make(map[string]bounds, len(metricIDs))
	for _, mid := range metricIDs {
		mn := math.Inf(1)
		mx := math.Inf(-1)
		for _, loc := range locations {
			v := loc.metric(mid)
			mn = math.Min(mn, v)
			mx = math.Max(mx, v)
		}
		minMax[mid] = bounds{min: mn, max: mx}
	}

	scores := make([]float64, len(locations))
	for i, loc := range locations {
		var score float64
		for _, mid := range metricIDs {
			w := weights[mid]
			if w == 0 {
				continue
			}
			b := minMax[mid]
			var normalized float64
			if b.max > b.min {
				normalized = (loc.metric(mid) - b.min) / (b.max - b.min)
			}
			if lowerIsBetter[mid] {
				normalized = 1 - normalized
			}
			score += w * normalized
		}
		scores[i] = score
	}

	order := make([]int, len(locations))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	ranked := make([]Location, len(locations))
	for i, idx := range order {
		ranked[i] = locations[idx]
	}
	return ranked
}
