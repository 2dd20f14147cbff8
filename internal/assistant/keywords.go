package assistant

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ParseMapKeywordsFromReply extracts map_query_keywords from any JSON
// code block in the reply. Returns nil when no block carries a non-empty
// keyword array.
func ParseMapKeywordsFromReply(reply string) []string {
	for _, m := range codeBlockRe.FindAllStringSubmatch(reply, -1) {
		var obj struct {
			MapQueryKeywords []string `json:"map_query_keywords"`
		}
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &obj); err != nil {
			continue
		}
		var keywords []string
		for _, k := range obj.MapQueryKeywords {
			if k = strings.TrimSpace(k); k != "" {
				keywords = append(keywords, k)
			}
		}
		if len(keywords) > 0 {
			return keywords
		}
	}
	return nil
}

type keywordsFile struct {
	MapQueryKeywords []string `json:"map_query_keywords"`
	Source           string   `json:"source,omitempty"`
	Timestamp        string   `json:"timestamp"`
}

// writeKeywordsToFile persists extracted keywords under dir as both a
// timestamped snapshot and latest.json, so the map frontend can poll a
// stable path. Failing to write latest.json is non-fatal.
func writeKeywordsToFile(dir string, keywords []string, source string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrap(err, "assistant: create keywords dir")
	}

	payload, err := json.MarshalIndent(keywordsFile{
		MapQueryKeywords: keywords,
		Source:           source,
		Timestamp:        now.UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "assistant: marshal keywords")
	}

	name := "keywords_" + now.UTC().Format("2006-01-02T15-04-05") + ".json"
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", eris.Wrap(err, "assistant: write keywords file")
	}

	_ = os.WriteFile(filepath.Join(dir, "latest.json"), payload, 0o644)

	return path, nil
}
