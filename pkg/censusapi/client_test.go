package censusapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient builds a client pointed at srv with backoff disabled.
func newTestClient(srv *httptest.Server, retries int) *Client {
	c := NewClient(Options{
		GeocoderURL:     srv.URL + "/geocoder",
		ReporterBaseURL: srv.URL,
		Retries:         retries,
		RatePerSec:      10000,
		Timeout:         5 * time.Second,
	})
	c.backoff = func(int) time.Duration { return 0 }
	return c
}

func TestRequestJSON_RetriesServerErrorsThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(srv, 3)
	raw, err := c.RequestJSON(context.Background(), srv.URL, nil, "test")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.Equal(t, 3, calls)
}

func TestRequestJSON_RetriesRateLimitStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv, 3)
	_, err := c.RequestJSON(context.Background(), srv.URL, nil, "test")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRequestJSON_ClientErrorFailsImmediately(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"no such geography"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv, 3)
	_, err := c.RequestJSON(context.Background(), srv.URL, nil, "parents")
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	ue, ok := AsUpstreamError(err)
	require.True(t, ok)
	assert.Equal(t, "parents", ue.Stage)
	assert.Contains(t, ue.Message, "HTTP 404")
	assert.Contains(t, ue.Message, "no such geography")
}

func TestRequestJSON_ExhaustsRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	c := newTestClient(srv, 2)
	_, err := c.RequestJSON(context.Background(), srv.URL, nil, "tract_full")
	require.Error(t, err)
	assert.Equal(t, 3, calls) // retries+1 total attempts

	ue, ok := AsUpstreamError(err)
	require.True(t, ok)
	assert.Equal(t, "tract_full", ue.Stage)
	assert.Contains(t, ue.Message, "HTTP 503")
}

func TestRequestJSON_NonJSONBodyIsFatal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := newTestClient(srv, 3)
	_, err := c.RequestJSON(context.Background(), srv.URL, nil, "test")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "Invalid JSON")
}

func TestRequestJSON_TransportErrorAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(srv, 1)
	srv.Close() // force connection failures

	_, err := c.RequestJSON(context.Background(), srv.URL, nil, "geocoder")
	require.Error(t, err)

	ue, ok := AsUpstreamError(err)
	require.True(t, ok)
	assert.Equal(t, "geocoder", ue.Stage)
	assert.Contains(t, ue.Message, "Network error after retries")
}

func TestRequestJSON_ContextCancelStopsRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(srv, 5)
	c.backoff = func(int) time.Duration {
		cancel()
		return time.Hour
	}

	_, err := c.RequestJSON(ctx, srv.URL, nil, "test")
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 2)
}

func TestRequestJSON_EncodesParams(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv, 0)
	params := url.Values{"table_ids": {"B01003,B19013"}, "geo_ids": {"14000US55025001704"}}
	_, err := c.RequestJSON(context.Background(), srv.URL, params, "test")
	require.NoError(t, err)
	assert.Equal(t, "B01003,B19013", gotQuery.Get("table_ids"))
	assert.Equal(t, "14000US55025001704", gotQuery.Get("geo_ids"))
}

func TestBackoffDelay_CappedExponential(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, backoffDelay(0))
	assert.Equal(t, time.Second, backoffDelay(1))
	assert.Equal(t, 2*time.Second, backoffDelay(2))
	assert.Equal(t, 4*time.Second, backoffDelay(3))
	assert.Equal(t, 8*time.Second, backoffDelay(4))
	assert.Equal(t, 8*time.Second, backoffDelay(10)) // capped
}

func TestShortErrorText(t *testing.T) {
	assert.Equal(t, "a b c", shortErrorText("a\n  b\t c", 240))

	long := strings.Repeat("x ", 300)
	short := shortErrorText(long, 240)
	assert.Len(t, short, 243) // 240 chars + "..."
	assert.True(t, strings.HasSuffix(short, "..."))
}

func TestIsNoReleaseMatch(t *testing.T) {
	err := NewUpstreamError("tract_full",
		"HTTP 400: {\"error\": \"None of the releases had the requested geo_ids and table_ids\"}")
	assert.True(t, IsNoReleaseMatch(err))

	assert.False(t, IsNoReleaseMatch(NewUpstreamError("tract_full", "HTTP 500: boom")))
	assert.False(t, IsNoReleaseMatch(nil))
}
