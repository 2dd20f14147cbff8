package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/groundtruth/location-intel/pkg/censusapi"
)

type fakeAPI struct {
	geocode     *censusapi.GeocodeResult
	geocodeErr  error
	parents     []censusapi.GeographyRecord
	parentsErr  error
	payloads    map[string]*censusapi.DataShowPayload
	fetchErrors map[string][]censusapi.FetchError
	fetchCalls  []string
}

func (a *fakeAPI) GeocodeByPoint(ctx context.Context, lat, lon float64) (*censusapi.GeocodeResult, error) {
	return a.geocode, a.geocodeErr
}

func (a *fakeAPI) Parents(ctx context.Context, geoid string) ([]censusapi.GeographyRecord, error) {
	return a.parents, a.parentsErr
}

func (a *fakeAPI) ResilientDataShow(ctx context.Context, acs string, tableIDs, geoids []string, stage string) (*censusapi.DataShowPayload, []censusapi.FetchError, error) {
	a.fetchCalls = append(a.fetchCalls, stage)
	payload := a.payloads[stage]
	if payload == nil {
		payload = censusapi.NewEmptyPayload()
	}
	return payload, a.fetchErrors[stage], nil
}

func profileFixture() *fakeAPI {
	tractGeoID := "14000US55025001704"
	placeGeoID := "16000US5548000"
	countyGeoID := "05000US55025"

	tractPayload := &censusapi.DataShowPayload{
		Release: &censusapi.Release{ID: "acs2023_5yr", Name: "ACS 2023 5-year", Years: "2019-2023"},
		Tables: map[string]censusapi.TableMeta{
			"B01003": {SimpleTableTitle: "Total Population", Universe: "Total population"},
			"B19013": {SimpleTableTitle: "Median Household Income", Universe: "Households"},
		},
		Geography: map[string]censusapi.GeographyMeta{
			tractGeoID: {Name: "Census Tract 17.04, Dane, WI"},
		},
		Data: map[string]map[string]*censusapi.TableData{
			tractGeoID: {
				"B01003": {
					Estimate: map[string]*float64{"B01003001": f(4321)},
					Error:    map[string]*float64{"B01003001": f(210)},
				},
				"B19013": {
					Estimate: map[string]*float64{"B19013001": f(30683)},
					Error:    map[string]*float64{"B19013001": f(4100)},
				},
			},
		},
	}

	comparisonsPayload := &censusapi.DataShowPayload{
		Release: &censusapi.Release{ID: "acs2023_5yr", Name: "ACS 2023 5-year", Years: "2019-2023"},
		Geography: map[string]censusapi.GeographyMeta{
			placeGeoID:  {Name: "Madison city, WI"},
			countyGeoID: {Name: "Dane County, WI"},
		},
		Data: map[string]map[string]*censusapi.TableData{
			placeGeoID: {
				"B19013": {Estimate: map[string]*float64{"B19013001": f(78050)}},
			},
			countyGeoID: {
				"B19013": {Estimate: map[string]*float64{"B19013001": f(81000)}},
			},
		},
	}

	area := 1_600_000.0
	return &fakeAPI{
		geocode: &censusapi.GeocodeResult{
			Tract: censusapi.GeocoderRecord{
				"GEOID":    "55025001704",
				"NAME":     "Census Tract 17.04",
				"AREALAND": area,
			},
			County:      censusapi.GeocoderRecord{"GEOID": "55025", "NAME": "Dane County"},
			ZCTA:        censusapi.GeocoderRecord{"GEOID": "53703"},
			TractFIPS:   "55025001704",
			TractGeoID:  tractGeoID,
			CountyGeoID: countyGeoID,
			ZCTAGeoID:   "86000US53703",
		},
		parents: []censusapi.GeographyRecord{
			{Sumlevel: "160", GeoID: placeGeoID, Relation: "place", DisplayName: "Madison"},
			{Sumlevel: "050", GeoID: countyGeoID, Relation: "county", DisplayName: "Dane County"},
		},
		payloads: map[string]*censusapi.DataShowPayload{
			"tract_full":  tractPayload,
			"comparisons": comparisonsPayload,
		},
	}
}

func TestLookupByPoint(t *testing.T) {
	api := profileFixture()
	svc := NewService(api, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC) }

	result, err := svc.LookupByPoint(context.Background(), Params{
		Lat: 43.0731, Lon: -89.4012, IncludeParents: true, Sections: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"tract_full", "comparisons"}, api.fetchCalls)
	assert.Equal(t, "latest", result.Input.ACS)
	assert.Equal(t, "2026-03-14T15:09:26Z", result.Input.TimestampUTC)
	assert.Equal(t, "55025001704", result.Tract.TractFIPS)
	assert.Equal(t, "14000US55025001704", result.Tract.ReporterGeoID)

	// Tract first, then ZCTA and county overrides, then fetched ancestors.
	assert.Equal(t, []string{
		"14000US55025001704",
		"86000US53703",
		"05000US55025",
		"16000US5548000",
	}, result.Parents.ComparisonGeoids)

	require.NotNil(t, result.Release)
	assert.Equal(t, "acs2023_5yr", result.Release.ID)

	require.NotNil(t, result.Derived.TractHighlights.Population)
	assert.InDelta(t, 4321.0, *result.Derived.TractHighlights.Population, 1e-9)
	require.NotNil(t, result.Derived.TractHighlights.MedianHouseholdIncome)
	assert.InDelta(t, 30683.0, *result.Derived.TractHighlights.MedianHouseholdIncome, 1e-9)

	summary := result.Derived.ProfileSummary
	assert.Equal(t, "Census Tract 17.04, Dane, WI", summary.TractName)
	require.NotNil(t, summary.AreaSqMiles)
	assert.InDelta(t, 1_600_000.0/2_589_988.110336, *summary.AreaSqMiles, 1e-9)
	require.NotNil(t, summary.DensityPerSqMile)
	assert.InDelta(t, 4321.0 / *summary.AreaSqMiles, *summary.DensityPerSqMile, 1e-6)
	require.Len(t, summary.Hierarchy, 4)
	assert.Equal(t, "14000US55025001704", summary.Hierarchy[0].GeoID)

	// Comparison lines follow hierarchy resolution order, so the county
	// precedes the place.
	incomeLines := result.Derived.Comparisons["median_household_income"]
	require.Len(t, incomeLines, 2)
	assert.Equal(t, "county", incomeLines[0].Relation)
	assert.Equal(t, "about one-third of the figure in Dane County, WI: $81,000", incomeLines[0].Line)

	place := incomeLines[1]
	assert.Equal(t, "place", place.Relation)
	assert.Equal(t, "about one-third of", place.Phrase)
	assert.Equal(t, "about one-third of the figure in Madison city, WI: $78,050", place.Line)

	require.Len(t, result.Derived.Sections, 5)
	assert.Equal(t, "demographics", result.Derived.Sections[0].ID)
	assert.Equal(t, "social", result.Derived.Sections[4].ID)

	// Section metrics share the narrated comparisons.
	var incomeMetric *Metric
	for _, m := range result.Derived.Sections[1].Metrics {
		if m.ID == "median_household_income" {
			incomeMetric = m
		}
	}
	require.NotNil(t, incomeMetric)
	assert.Equal(t, incomeLines, incomeMetric.Comparisons)

	assert.Equal(t, []string{"B01003", "B19013"}, result.Tables.Available)
	assert.Len(t, result.Tables.Unavailable, len(FullTractTables)-2)
	assert.NotContains(t, result.Tables.Unavailable, "B01003")

	assert.NotNil(t, result.Errors)
	assert.Empty(t, result.Errors)
}

func TestLookupByPointSectionsDisabled(t *testing.T) {
	api := profileFixture()
	svc := NewService(api, zap.NewNop())

	result, err := svc.LookupByPoint(context.Background(), Params{
		Lat: 43.0731, Lon: -89.4012, IncludeParents: true, Sections: false,
	})
	require.NoError(t, err)

	assert.Empty(t, result.Derived.Sections)
	assert.Empty(t, result.Derived.Comparisons)
	require.NotNil(t, result.Derived.TractHighlights.Population)
	assert.Equal(t, "Census Tract 17.04, Dane, WI", result.Derived.ProfileSummary.TractName)
	require.NotNil(t, result.Derived.ProfileSummary.Population)
	assert.InDelta(t, 4321.0, *result.Derived.ProfileSummary.Population, 1e-9)
}

func TestLookupByPointWithoutParents(t *testing.T) {
	api := profileFixture()
	svc := NewService(api, zap.NewNop())

	result, err := svc.LookupByPoint(context.Background(), Params{
		Lat: 43.0731, Lon: -89.4012, IncludeParents: false,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"14000US55025001704"}, result.Parents.ComparisonGeoids)
	assert.Empty(t, result.Parents.Available)
	assert.Empty(t, result.Derived.Comparisons)
}

func TestLookupByPointPropagatesGeocodeError(t *testing.T) {
	api := profileFixture()
	api.geocodeErr = censusapi.ErrNoTractFound
	svc := NewService(api, zap.NewNop())

	_, err := svc.LookupByPoint(context.Background(), Params{Lat: 0, Lon: 0, IncludeParents: true})
	require.ErrorIs(t, err, censusapi.ErrNoTractFound)
}

func TestLookupByPointCollectsFetchErrors(t *testing.T) {
	api := profileFixture()
	api.fetchErrors = map[string][]censusapi.FetchError{
		"tract_full": {{Stage: "tract_full", Message: "Bulk table request failed; completed with per-table fallback (28/29 tables succeeded)."}},
		"comparisons": {
			{Stage: "comparisons:B16001", TableID: "B16001", Message: "HTTP 500: upstream error"},
		},
	}
	svc := NewService(api, zap.NewNop())

	result, err := svc.LookupByPoint(context.Background(), Params{Lat: 43.0731, Lon: -89.4012, IncludeParents: true, Sections: true})
	require.NoError(t, err)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "tract_full", result.Errors[0].Stage)
	assert.Equal(t, "B16001", result.Errors[1].TableID)
}
