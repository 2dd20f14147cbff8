package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/groundtruth/location-intel/internal/assistant"
	"github.com/groundtruth/location-intel/internal/config"
	"github.com/groundtruth/location-intel/internal/crime"
	"github.com/groundtruth/location-intel/internal/profile"
	"github.com/groundtruth/location-intel/pkg/censusapi"
	"github.com/groundtruth/location-intel/pkg/google"
	"github.com/groundtruth/location-intel/pkg/overpass"
	"github.com/groundtruth/location-intel/pkg/tigerweb"
)

type fakeProfile struct {
	lastParams profile.Params
	result     *profile.Result
	err        error
}

func (f *fakeProfile) LookupByPoint(_ context.Context, params profile.Params) (*profile.Result, error) {
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeGeocoder struct {
	result *censusapi.GeocodeResult
	err    error
}

func (f *fakeGeocoder) GeocodeByPoint(context.Context, float64, float64) (*censusapi.GeocodeResult, error) {
	return f.result, f.err
}

type fakeTracts struct {
	lastFIPS string
	feature  *tigerweb.Feature
	err      error
}

func (f *fakeTracts) TractGeometry(_ context.Context, fips string) (*tigerweb.Feature, error) {
	f.lastFIPS = fips
	return f.feature, f.err
}

type fakePOIs struct {
	calls      int
	lastRadius int
	result     *overpass.Result
	err        error
}

func (f *fakePOIs) Lookup(_ context.Context, _, _ float64, radiusM int) (*overpass.Result, error) {
	f.calls++
	f.lastRadius = radiusM
	return f.result, f.err
}

type fakeCrime struct {
	calls        int
	lastRadius   int
	lastDaysBack int
	bundle       *crime.Bundle
	err          error
}

func (f *fakeCrime) Lookup(_ context.Context, _, _ float64, radiusM, daysBack int) (*crime.Bundle, error) {
	f.calls++
	f.lastRadius = radiusM
	f.lastDaysBack = daysBack
	if f.err != nil {
		return nil, f.err
	}
	return f.bundle, nil
}

type fakeAssistant struct {
	chatResp *assistant.ChatResponse
	chatErr  error
	rankResp *assistant.RankResponse
	rankErr  error
}

func (f *fakeAssistant) Chat(context.Context, assistant.ChatRequest) (*assistant.ChatResponse, error) {
	return f.chatResp, f.chatErr
}

func (f *fakeAssistant) Rank(assistant.RankRequest) (*assistant.RankResponse, error) {
	return f.rankResp, f.rankErr
}

type fakeTTS struct {
	result *google.SynthesisResult
	err    error
}

func (f *fakeTTS) Synthesize(context.Context, string) (*google.SynthesisResult, error) {
	return f.result, f.err
}

type fixture struct {
	server    *httptest.Server
	profile   *fakeProfile
	geocoder  *fakeGeocoder
	tracts    *fakeTracts
	pois      *fakePOIs
	crime     *fakeCrime
	assistant *fakeAssistant
	tts       *fakeTTS
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		profile: &fakeProfile{result: &profile.Result{}},
		geocoder: &fakeGeocoder{result: &censusapi.GeocodeResult{
			TractFIPS:  "55025001704",
			TractGeoID: "14000US55025001704",
		}},
		tracts: &fakeTracts{feature: &tigerweb.Feature{
			Type:       "Feature",
			Geometry:   json.RawMessage(`{"type":"Polygon","coordinates":[]}`),
			Properties: tigerweb.Properties{GeoID: "14000US55025001704", DisplayName: "Census Tract 17.04"},
		}},
		pois: &fakePOIs{result: &overpass.Result{
			Counts: map[string]int{"food": 2},
			Points: []overpass.Point{{Type: "food", Lat: 43.07, Lng: -89.38, Weight: 0.6}},
			Meta:   overpass.Meta{RadiusM: 1200, TotalElements: 2, ReturnedPoints: 1},
		}},
		crime: &fakeCrime{bundle: &crime.Bundle{
			Summary: crime.Summary{CrimeCount: 12, CrimeRateProxy: 0.053},
			Meta:    crime.Meta{DaysBack: 90, RadiusM: 1200},
		}},
		assistant: &fakeAssistant{
			chatResp: &assistant.ChatResponse{Reply: "hello"},
			rankResp: &assistant.RankResponse{RankedIDs: []string{"a", "b"}},
		},
		tts: &fakeTTS{result: &google.SynthesisResult{AudioBase64: "UklGRg==", Format: "wav"}},
	}

	cfg := &config.Config{
		Overpass: config.OverpassConfig{CacheTTLSecs: 60},
		Crime:    config.CrimeConfig{CacheTTLSecs: 60},
		Server: config.ServerConfig{
			Port:            0,
			CORSOrigins:     []string{"*"},
			RequestDeadline: 10,
		},
	}

	srv := New(cfg, Deps{
		Profile:   f.profile,
		Geocoder:  f.geocoder,
		Tracts:    f.tracts,
		POIs:      f.pois,
		Crime:     f.crime,
		Assistant: f.assistant,
		TTS:       f.tts,
	}, zap.NewNop())

	f.server = httptest.NewServer(srv.Handler())
	t.Cleanup(f.server.Close)
	return f
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	var body map[string]string
	status := getJSON(t, f.server.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestCensusByPointParams(t *testing.T) {
	f := newFixture(t)
	status := getJSON(t, f.server.URL+"/api/census/by-point?lat=43.074&lon=-89.384&acs=acs2023_5yr", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 43.074, f.profile.lastParams.Lat)
	assert.Equal(t, -89.384, f.profile.lastParams.Lon)
	assert.Equal(t, "acs2023_5yr", f.profile.lastParams.ACS)
	assert.True(t, f.profile.lastParams.IncludeParents)
	assert.False(t, f.profile.lastParams.Sections)
}

func TestProfileByPointEnablesSections(t *testing.T) {
	f := newFixture(t)
	status := getJSON(t, f.server.URL+"/api/census/profile/by-point?lat=43.074&lon=-89.384&include_parents=false", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, f.profile.lastParams.Sections)
	assert.False(t, f.profile.lastParams.IncludeParents)
}

func TestPointValidation(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, f.server.URL+"/api/census/by-point?lon=-89.384", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, f.server.URL+"/api/census/by-point?lat=200&lon=-89.384", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, f.server.URL+"/api/census/by-point?lat=43.074&lon=-200", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, f.server.URL+"/api/census/by-point?lat=abc&lon=-89.384", nil))

	// "lng" is accepted as an alias for "lon".
	assert.Equal(t, http.StatusOK, getJSON(t, f.server.URL+"/api/pois?lat=43.074&lng=-89.384", nil))
}

func TestCensusByPointNoTract(t *testing.T) {
	f := newFixture(t)
	f.profile.err = censusapi.ErrNoTractFound

	var body map[string]string
	status := getJSON(t, f.server.URL+"/api/census/by-point?lat=0&lon=0", &body)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body["error"], "no census tract")
}

func TestCensusByPointUpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.profile.err = censusapi.NewUpstreamError("geocoder", "boom")

	status := getJSON(t, f.server.URL+"/api/census/by-point?lat=43.074&lon=-89.384", nil)
	assert.Equal(t, http.StatusBadGateway, status)
}

func TestTractGeo(t *testing.T) {
	f := newFixture(t)

	var feature tigerweb.Feature
	status := getJSON(t, f.server.URL+"/api/census/tract-geo?lat=43.074&lon=-89.384", &feature)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "55025001704", f.tracts.lastFIPS)
	assert.Equal(t, "Feature", feature.Type)
	assert.Equal(t, "14000US55025001704", feature.Properties.GeoID)
}

func TestTractGeoNotFound(t *testing.T) {
	f := newFixture(t)
	f.tracts.err = tigerweb.ErrTractGeometryNotFound

	status := getJSON(t, f.server.URL+"/api/census/tract-geo?lat=43.074&lon=-89.384", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPOIsDefaultRadiusAndCaching(t *testing.T) {
	f := newFixture(t)

	var first overpass.Result
	status := getJSON(t, f.server.URL+"/api/pois?lat=43.074&lon=-89.384", &first)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1200, f.pois.lastRadius)
	assert.False(t, first.Meta.Cached)

	var second overpass.Result
	status = getJSON(t, f.server.URL+"/api/pois?lat=43.074&lon=-89.384", &second)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, second.Meta.Cached)
	assert.Equal(t, 1, f.pois.calls)
}

func TestPOIsRadiusValidation(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusBadRequest, getJSON(t, f.server.URL+"/api/pois?lat=43.074&lon=-89.384&radius_m=999999", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, f.server.URL+"/api/pois?lat=43.074&lon=-89.384&radius_m=0", nil))
}

func TestCrimeEndpoint(t *testing.T) {
	f := newFixture(t)

	var first crime.Bundle
	status := getJSON(t, f.server.URL+"/api/crime/chicago?lat=41.88&lon=-87.63&radius_m=800&days_back=30", &first)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 800, f.crime.lastRadius)
	assert.Equal(t, 30, f.crime.lastDaysBack)
	assert.Equal(t, 12, first.Summary.CrimeCount)
	assert.False(t, first.Meta.Cached)

	var second crime.Bundle
	_ = getJSON(t, f.server.URL+"/api/crime/chicago?lat=41.88&lon=-87.63&radius_m=800&days_back=30", &second)
	assert.True(t, second.Meta.Cached)
	assert.Equal(t, 1, f.crime.calls)
}

func TestCrimeDaysBackValidation(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusBadRequest, getJSON(t, f.server.URL+"/api/crime/chicago?lat=41.88&lon=-87.63&days_back=5000", nil))
}

func TestDisasterSimulateDeterministic(t *testing.T) {
	f := newFixture(t)

	var first, second crime.DisasterRisk
	status := getJSON(t, f.server.URL+"/api/disaster/simulate?lat=41.88&lon=-87.63", &first)
	assert.Equal(t, http.StatusOK, status)
	_ = getJSON(t, f.server.URL+"/api/disaster/simulate?lat=41.88&lon=-87.63", &second)

	assert.Equal(t, first, second)
	assert.Equal(t, "simulated", first.Source)
	assert.GreaterOrEqual(t, first.OverallRisk, first.Hazards.Flood)
}

func TestAssistantChat(t *testing.T) {
	f := newFixture(t)

	var resp assistant.ChatResponse
	status := postJSON(t, f.server.URL+"/api/assistant/chat", `{"message":"hi","focus":"tenant"}`, &resp)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hello", resp.Reply)
}

func TestAssistantChatBadBody(t *testing.T) {
	f := newFixture(t)
	status := postJSON(t, f.server.URL+"/api/assistant/chat", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAssistantChatValidationError(t *testing.T) {
	f := newFixture(t)
	f.assistant.chatErr = assistant.ErrBadRequest

	status := postJSON(t, f.server.URL+"/api/assistant/chat", `{"message":"hi","focus":"bogus"}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAssistantRank(t *testing.T) {
	f := newFixture(t)

	var resp assistant.RankResponse
	status := postJSON(t, f.server.URL+"/api/assistant/rank", `{"focus":"tenant","locationsWithMetrics":[]}`, &resp)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"a", "b"}, resp.RankedIDs)
}

func TestAssistantTTS(t *testing.T) {
	f := newFixture(t)

	var resp google.SynthesisResult
	status := postJSON(t, f.server.URL+"/api/assistant/tts", `{"text":"hello"}`, &resp)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "wav", resp.Format)

	assert.Equal(t, http.StatusBadRequest, postJSON(t, f.server.URL+"/api/assistant/tts", `{"text":""}`, nil))

	f.tts.err = assert.AnError
	assert.Equal(t, http.StatusBadGateway, postJSON(t, f.server.URL+"/api/assistant/tts", `{"text":"hello"}`, nil))
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "fixed-id", resp2.Header.Get("X-Request-ID"))
}
