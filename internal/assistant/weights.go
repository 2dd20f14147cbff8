package assistant

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
)

var (
	codeBlockRe       = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")
	inlineWeightsRe   = regexp.MustCompile(`\{\s*["']weights["']\s*:\s*\{[^}]+\}\s*\}`)
	canonicalMetricID = func() map[string]bool {
		set := make(map[string]bool, len(MetricIDs))
		for _, id := range MetricIDs {
			set[id] = true
		}
		return set
	}()
)

// ParseWeightsFromReply extracts a "weights" object from a model reply,
// looking first inside a markdown code block and then in the raw text.
// Only canonical metric keys with finite numeric values are kept, and the
// result is normalized to sum to 1. Returns nil when nothing usable is
// found.
func ParseWeightsFromReply(reply string) map[string]float64 {
	toParse := reply
	if m := codeBlockRe.FindStringSubmatch(reply); m != nil {
		toParse = strings.TrimSpace(m[1])
	}

	start := strings.Index(toParse, `"weights"`)
	if start == -1 {
		m := inlineWeightsRe.FindString(toParse)
		if m == "" {
			return nil
		}
		return normalizeWeights(weightsFromJSON(m))
	}

	// Walk back to the opening brace of the object that contains
	// "weights", then forward to its matching close.
	open := strings.LastIndex(toParse[:start+1], "{")
	if open == -1 {
		return nil
	}
	depth := 1
	end := open + 1
	for end < len(toParse) && depth > 0 {
		switch toParse[end] {
		case '{':
			depth++
		case '}':
			depth--
		}
		end++
	}
	return normalizeWeights(weightsFromJSON(toParse[open:end]))
}

func weightsFromJSON(text string) map[string]float64 {
	var obj struct {
		Weights map[string]float64 `json:"weights"`
	}
	if err := json.Unmarshal([]byte(text), &obj); err != nil || len(obj.Weights) == 0 {
		return nil
	}
	out := make(map[string]float64)
	for key, v := range obj.Weights {
		if canonicalMetricID[key] && !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[key] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func normalizeWeights(weights map[string]float64) map[string]float64 {
	if len(weights) == 0 {
		return nil
	}
	var total float64
	for _, v := range weights {
		total += v
	}
	if total == 0 {
		return nil
	}
	out := make(map[string]float64, len(weights))
	for k, v := range weights {
		out[k] = v / total
	}
	return out
}
