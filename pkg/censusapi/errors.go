package censusapi

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoTractFound signals that geocoding produced no census tract for the
// input coordinates. The lookup cannot proceed without a tract.
var ErrNoTractFound = errors.New("no census tract found for the provided coordinates")

// UpstreamError is a tagged failure from one outbound call, raised after
// exhausting the retries appropriate to that call. Stage identifies which
// step failed (e.g. "geocoder", "parents", "tract_full", "tract_full:B01003").
type UpstreamError struct {
	Stage   string
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

// NewUpstreamError builds an UpstreamError for the given stage.
func NewUpstreamError(stage, format string, args ...any) *UpstreamError {
	return &UpstreamError{Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// AsUpstreamError unwraps err to an *UpstreamError if one is in the chain.
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// noReleaseMarker is the error text Census Reporter returns when the
// requested release has no data for the given geography/table combination.
const noReleaseMarker = "none of the releases had the requested geo_ids and table_ids"

// IsNoReleaseMatch reports whether err is the upstream "unsupported
// combination" condition that triggers per-table fallback. Matching is a
// case-insensitive substring check against the upstream error text; it is
// isolated here so the strategy can change without touching the
// degradation algorithm.
func IsNoReleaseMatch(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), noReleaseMarker)
}

// shortErrorText collapses whitespace and truncates upstream error bodies
// so they stay readable inside wrapped error messages.
func shortErrorText(text string, limit int) string {
	oneLine := strings.Join(strings.Fields(text), " ")
	if len(oneLine) <= limit {
		return oneLine
	}
	return oneLine[:limit] + "..."
}
