package assistant

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMapKeywords(t *testing.T) {
	reply := "Great interests!\n```json\n{\"map_query_keywords\": [\"gym\", \" yoga studio \", \"\"]}\n```"
	keywords := ParseMapKeywordsFromReply(reply)
	assert.Equal(t, []string{"gym", "yoga studio"}, keywords)
}

func TestParseMapKeywordsSecondBlock(t *testing.T) {
	reply := "```json\n{\"weights\": {\"safety\": 1}}\n```\nAlso:\n```json\n{\"map_query_keywords\": [\"park\", \"trail\"]}\n```"
	assert.Equal(t, []string{"park", "trail"}, ParseMapKeywordsFromReply(reply))
}

func TestParseMapKeywordsSkipsInvalidBlocks(t *testing.T) {
	reply := "```json\nnot json at all\n```\n```json\n{\"map_query_keywords\": [\"cafe\"]}\n```"
	assert.Equal(t, []string{"cafe"}, ParseMapKeywordsFromReply(reply))
}

func TestParseMapKeywordsNone(t *testing.T) {
	assert.Nil(t, ParseMapKeywordsFromReply("plain reply"))
	assert.Nil(t, ParseMapKeywordsFromReply("```json\n{\"map_query_keywords\": []}\n```"))
}

func TestWriteKeywordsToFile(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	path, err := writeKeywordsToFile(dir, []string{"gym", "park"}, "I like working out", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "keywords_2026-03-14T15-09-26.json"), path)

	var payload keywordsFile
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, []string{"gym", "park"}, payload.MapQueryKeywords)
	assert.Equal(t, "I like working out", payload.Source)
	assert.Equal(t, "2026-03-14T15:09:26Z", payload.Timestamp)

	latest, err := os.ReadFile(filepath.Join(dir, "latest.json"))
	require.NoError(t, err)
	assert.Equal(t, raw, latest)
}
