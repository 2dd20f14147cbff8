package censusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// FetchError records one non-fatal failure from a degraded data/show fetch.
type FetchError struct {
	Stage   string `json:"stage"`
	TableID string `json:"table_id,omitempty"`
	Message string `json:"message"`
}

// DataShow fetches the given tables for the given geographies in one bulk
// request against the named ACS release.
func (c *Client) DataShow(ctx context.Context, acs string, tableIDs, geoids []string, stage string) (*DataShowPayload, error) {
	reqURL := fmt.Sprintf("%s/1.0/data/show/%s", c.opts.ReporterBaseURL, acs)
	params := url.Values{
		"table_ids": {strings.Join(tableIDs, ",")},
		"geo_ids":   {strings.Join(geoids, ",")},
	}

	raw, err := c.RequestJSON(ctx, reqURL, params, stage)
	if err != nil {
		return nil, err
	}

	var payload DataShowPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, NewUpstreamError(stage, "Unexpected data/show response shape: %s", err)
	}
	return &payload, nil
}

// Parents fetches the ancestor geography candidates for a geoid.
func (c *Client) Parents(ctx context.Context, geoid string) ([]GeographyRecord, error) {
	reqURL := fmt.Sprintf("%s/1.0/geo/latest/%s/parents", c.opts.ReporterBaseURL, geoid)

	raw, err := c.RequestJSON(ctx, reqURL, nil, "parents")
	if err != nil {
		return nil, err
	}

	var payload struct {
		Parents []GeographyRecord `json:"parents"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, NewUpstreamError("parents", "Unexpected parents response shape: %s", err)
	}
	return payload.Parents, nil
}

// ResilientDataShow fetches a batch of tables, degrading to one request per
// table when the bulk request fails with the upstream "no matching release"
// condition. Partial failures in degraded mode are collected rather than
// propagated; the fetch only fails outright when every table fails, or when
// the bulk error is anything other than the degradation trigger.
func (c *Client) ResilientDataShow(ctx context.Context, acs string, tableIDs, geoids []string, stage string) (*DataShowPayload, []FetchError, error) {
	payload, err := c.DataShow(ctx, acs, tableIDs, geoids, stage)
	if err == nil {
		return payload, nil, nil
	}
	if !IsNoReleaseMatch(err) {
		return nil, nil, err
	}

	zap.L().Warn("bulk table request failed, degrading to per-table fetches",
		zap.String("stage", stage),
		zap.Int("tables", len(tableIDs)),
	)

	merged := NewEmptyPayload()
	var errors []FetchError
	successful := 0
	for _, tableID := range tableIDs {
		if ctx.Err() != nil {
			return nil, nil, NewUpstreamError(stage, "Canceled during per-table fallback: %s", ctx.Err())
		}
		tableStage := stage + ":" + tableID
		tablePayload, tableErr := c.DataShow(ctx, acs, []string{tableID}, geoids, tableStage)
		if tableErr != nil {
			errors = append(errors, FetchError{
				Stage:   stage,
				TableID: tableID,
				Message: tableErr.Error(),
			})
			continue
		}
		merged.Merge(tablePayload)
		successful++
	}

	if successful == 0 {
		first := "No fallback requests succeeded."
		if len(errors) > 0 {
			first = errors[0].Message
		}
		return nil, nil, NewUpstreamError(stage, "All per-table fallback requests failed. First error: %s", first)
	}

	if len(errors) > 0 {
		summary := FetchError{
			Stage: stage,
			Message: fmt.Sprintf(
				"Bulk table request failed; completed with per-table fallback (%d/%d tables succeeded).",
				successful, len(tableIDs),
			),
		}
		errors = append([]FetchError{summary}, errors...)
	}
	return merged, errors, nil
}
