package profile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/groundtruth/location-intel/pkg/censusapi"
)

// API is the slice of the census client the pipeline needs.
type API interface {
	GeocodeByPoint(ctx context.Context, lat, lon float64) (*censusapi.GeocodeResult, error)
	Parents(ctx context.Context, geoid string) ([]censusapi.GeographyRecord, error)
	ResilientDataShow(ctx context.Context, acs string, tableIDs, geoids []string, stage string) (*censusapi.DataShowPayload, []censusapi.FetchError, error)
}

// Service runs the point-to-profile pipeline.
type Service struct {
	api API
	log *zap.Logger
	now func() time.Time
}

func NewService(api API, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{api: api, log: log, now: time.Now}
}

// Params selects the profile variant: which lat/lon, which ACS release,
// whether ancestor comparisons are fetched alongside the tract data, and
// whether the section/narration layer is derived. Sections=false yields the
// lighter lookup: raw tables, highlights, and summary only.
type Params struct {
	Lat            float64
	Lon            float64
	ACS            string
	IncludeParents bool
	Sections       bool
}

// InputEcho records the request parameters alongside the response.
type InputEcho struct {
	Latitude     float64         `json:"latitude"`
	Longitude    float64         `json:"longitude"`
	ACS          string          `json:"acs"`
	TimestampUTC string          `json:"timestamp_utc"`
	Parameters   InputParameters `json:"parameters"`
}

type InputParameters struct {
	IncludeParents bool `json:"include_parents"`
	Sections       bool `json:"sections"`
}

// TractInfo identifies the resolved tract in both FIPS and reporter forms.
type TractInfo struct {
	TractFIPS           string                   `json:"tract_fips"`
	ReporterGeoID       string                   `json:"reporter_geoid"`
	GeocoderTractRecord censusapi.GeocoderRecord `json:"geocoder_tract_record"`
}

// GeographyLevel pairs a reporter geoid with the raw geocoder record for one
// resolved level. Either field may be empty when the level was not found.
type GeographyLevel struct {
	ReporterGeoID  string                   `json:"reporter_geoid,omitempty"`
	GeocoderRecord censusapi.GeocoderRecord `json:"geocoder_record,omitempty"`
}

// ParentsInfo reports the ancestor candidates and the comparison selection
// derived from them.
type ParentsInfo struct {
	Available        []censusapi.GeographyRecord `json:"available"`
	Selected         []censusapi.GeographyRecord `json:"selected"`
	ComparisonGeoids []string                    `json:"comparison_geoids"`
}

// TablesInfo lists the table sets requested for each fetch and which of
// the requested tables actually came back with estimates for the tract.
type TablesInfo struct {
	TractFull   []string `json:"tract_full"`
	Comparisons []string `json:"comparisons"`
	Available   []string `json:"available_table_ids"`
	Unavailable []string `json:"unavailable_table_ids"`
}

// DataInfo carries the raw fetched payloads.
type DataInfo struct {
	TractFull   *censusapi.DataShowPayload `json:"tract_full"`
	Comparisons *censusapi.DataShowPayload `json:"comparisons"`
}

// Derived is the computed layer on top of the raw payloads.
type Derived struct {
	ProfileSummary              ProfileSummary          `json:"profile_summary"`
	TractHighlights             Highlights              `json:"tract_highlights"`
	ComparisonHighlightsByGeoID map[string]Highlights   `json:"comparison_highlights_by_geoid"`
	Sections                    []Section               `json:"sections"`
	Comparisons                 map[string][]Comparison `json:"comparisons"`
}

// Result is the full profile response.
type Result struct {
	Input           InputEcho                 `json:"input"`
	Tract           TractInfo                 `json:"tract"`
	GeographyLevels map[string]GeographyLevel `json:"geography_levels"`
	Parents         ParentsInfo               `json:"parents"`
	Release         *censusapi.Release        `json:"release"`
	Tables          TablesInfo                `json:"tables"`
	Data            DataInfo                  `json:"data"`
	Derived         Derived                   `json:"derived"`
	Errors          []censusapi.FetchError    `json:"errors"`
}

// metricExtractors maps metric IDs to their per-geography value lookups,
// used to recompute each metric against comparison geographies.
var metricExtractors = map[string]extractor{
	"median_age": func(p *censusapi.DataShowPayload, g string) *float64 {
		return p.Estimate(g, "B01002", "B01002001")
	},
	"per_capita_income": func(p *censusapi.DataShowPayload, g string) *float64 {
		return normalizeMedian(p.Estimate(g, "B19301", "B19301001"))
	},
	"median_household_income": func(p *censusapi.DataShowPayload, g string) *float64 {
		return normalizeMedian(p.Estimate(g, "B19013", "B19013001"))
	},
	"poverty_rate": func(p *censusapi.DataShowPayload, g string) *float64 {
		return pct(p.Estimate(g, "B17001", "B17001002"), p.Estimate(g, "B17001", "B17001001"))
	},
	"mean_travel_time": func(p *censusapi.DataShowPayload, g string) *float64 {
		return p.Estimate(g, "B08303", "B08303001")
	},
	"households": func(p *censusapi.DataShowPayload, g string) *float64 {
		return p.Estimate(g, "B11001", "B11001001")
	},
	"persons_per_household": func(p *censusapi.DataShowPayload, g string) *float64 {
		return p.Estimate(g, "B25010", "B25010001")
	},
	"median_home_value": func(p *censusapi.DataShowPayload, g string) *float64 {
		return normalizeMedian(p.Estimate(g, "B25077", "B25077001"))
	},
	"hs_or_higher_pct": func(p *censusapi.DataShowPayload, g string) *float64 {
		return pct(sumEstimates(p, g, "B15003", b15003HighSchoolPlus), p.Estimate(g, "B15003", "B15003001"))
	},
	"bachelors_or_higher_pct": func(p *censusapi.DataShowPayload, g string) *float64 {
		return pct(sumEstimates(p, g, "B15003", b15003BachelorsPlus), p.Estimate(g, "B15003", "B15003001"))
	},
	"foreign_born_pct": func(p *censusapi.DataShowPayload, g string) *float64 {
		return pct(p.Estimate(g, "B05002", "B05002013"), p.Estimate(g, "B05002", "B05002001"))
	},
	"veteran_pct": func(p *censusapi.DataShowPayload, g string) *float64 {
		return pct(p.Estimate(g, "B21001", "B21001002"), p.Estimate(g, "B21001", "B21001001"))
	},
	"moved_last_year_pct": func(p *censusapi.DataShowPayload, g string) *float64 {
		return pct(
			sumEstimates(p, g, "B07003", []string{"B07003004", "B07003005", "B07003006", "B07003007"}),
			p.Estimate(g, "B07003", "B07003001"),
		)
	},
}

// LookupByPoint resolves a coordinate to a tract, selects comparison
// geographies, fetches all profile tables, and derives the full profile.
func (s *Service) LookupByPoint(ctx context.Context, params Params) (*Result, error) {
	if params.ACS == "" {
		params.ACS = "latest"
	}

	geo, err := s.api.GeocodeByPoint(ctx, params.Lat, params.Lon)
	if err != nil {
		return nil, err
	}
	s.log.Info("resolved point to tract",
		zap.Float64("lat", params.Lat),
		zap.Float64("lon", params.Lon),
		zap.String("tract_geoid", geo.TractGeoID),
	)

	required := map[censusapi.Sumlevel]string{}
	if geo.ZCTAGeoID != "" {
		required[censusapi.SumlevelZCTA] = geo.ZCTAGeoID
	}
	if geo.CountyGeoID != "" {
		required[censusapi.SumlevelCounty] = geo.CountyGeoID
	}

	var parentsAvailable []censusapi.GeographyRecord
	if params.IncludeParents {
		parentsAvailable, err = s.api.Parents(ctx, geo.TractGeoID)
		if err != nil {
			return nil, err
		}
	}
	comparisonGeoids, selectedParents := BuildComparisonGeoids(
		geo.TractGeoID, parentsAvailable, params.IncludeParents, required,
	)

	var errors []censusapi.FetchError

	tractPayload, tractErrs, err := s.api.ResilientDataShow(
		ctx, params.ACS, FullTractTables, []string{geo.TractGeoID}, "tract_full",
	)
	if err != nil {
		return nil, err
	}
	errors = append(errors, tractErrs...)

	comparisonsPayload, compErrs, err := s.api.ResilientDataShow(
		ctx, params.ACS, ComparisonTables, comparisonGeoids, "comparisons",
	)
	if err != nil {
		return nil, err
	}
	errors = append(errors, compErrs...)

	derived := buildDerived(tractPayload, comparisonsPayload, comparisonGeoids, geo.TractGeoID, selectedParents, geo.Tract, params.Sections)

	available := availableTables(tractPayload, geo.TractGeoID, FullTractTables)
	availableSet := make(map[string]bool, len(available))
	for _, id := range available {
		availableSet[id] = true
	}
	unavailable := make([]string, 0, len(FullTractTables)-len(available))
	for _, id := range FullTractTables {
		if !availableSet[id] {
			unavailable = append(unavailable, id)
		}
	}

	release := comparisonsPayload.Release
	if release == nil {
		release = tractPayload.Release
	}
	if errors == nil {
		errors = []censusapi.FetchError{}
	}

	return &Result{
		Input: InputEcho{
			Latitude:     params.Lat,
			Longitude:    params.Lon,
			ACS:          params.ACS,
			TimestampUTC: s.now().UTC().Format(time.RFC3339),
			Parameters: InputParameters{
				IncludeParents: params.IncludeParents,
				Sections:       params.Sections,
			},
		},
		Tract: TractInfo{
			TractFIPS:           geo.TractFIPS,
			ReporterGeoID:       geo.TractGeoID,
			GeocoderTractRecord: geo.Tract,
		},
		GeographyLevels: map[string]GeographyLevel{
			"census_tract": {
				ReporterGeoID:  geo.TractGeoID,
				GeocoderRecord: geo.Tract,
			},
			"zip_code_tabulation_area": {
				ReporterGeoID:  geo.ZCTAGeoID,
				GeocoderRecord: geo.ZCTA,
			},
			"county": {
				ReporterGeoID:  geo.CountyGeoID,
				GeocoderRecord: geo.County,
			},
		},
		Parents: ParentsInfo{
			Available:        parentsAvailable,
			Selected:         selectedParents,
			ComparisonGeoids: comparisonGeoids,
		},
		Release: release,
		Tables: TablesInfo{
			TractFull:   FullTractTables,
			Comparisons: ComparisonTables,
			Available:   available,
			Unavailable: unavailable,
		},
		Data: DataInfo{
			TractFull:   tractPayload,
			Comparisons: comparisonsPayload,
		},
		Derived: derived,
		Errors:  errors,
	}, nil
}

// availableTables filters requested down to tables that returned at least
// one estimate for the geography.
func availableTables(payload *censusapi.DataShowPayload, geoid string, requested []string) []string {
	available := []string{}
	tables := payload.Data[geoid]
	for _, tableID := range requested {
		data := tables[tableID]
		if data != nil && len(data.Estimate) > 0 {
			available = append(available, tableID)
		}
	}
	return available
}

// buildDerived computes highlights, sections, comparison narration, and the
// profile summary from the two fetched payloads. With sections disabled the
// derived block carries only the summary and highlights.
func buildDerived(
	tractPayload, comparisonsPayload *censusapi.DataShowPayload,
	comparisonGeoids []string,
	tractGeoID string,
	selectedParents []censusapi.GeographyRecord,
	tractRecord censusapi.GeocoderRecord,
	sections bool,
) Derived {
	lookupName := func(geoid string) string {
		if name := tractPayload.GeographyName(geoid); name != "" {
			return name
		}
		return comparisonsPayload.GeographyName(geoid)
	}

	tractHighlights := ComputeHighlights(tractPayload, tractGeoID, lookupName(tractGeoID))
	comparisonHighlights := make(map[string]Highlights, len(comparisonGeoids))
	for _, geoid := range comparisonGeoids {
		comparisonHighlights[geoid] = ComputeHighlights(comparisonsPayload, geoid, lookupName(geoid))
	}

	metricMap := map[string]*Metric{}
	metricMap["population"] = deriveMetric(tractPayload, tractGeoID, metricOpts{
		id:       "population",
		label:    "Population",
		tableID:  "B01003",
		columnID: "B01003001",
		format:   FormatNumber,
	})

	if !sections {
		summary := buildProfileSummary(tractRecord, tractGeoID, selectedParents, lookupName, metricMap["population"])
		return Derived{
			ProfileSummary:              summary,
			TractHighlights:             tractHighlights,
			ComparisonHighlightsByGeoID: comparisonHighlights,
			Sections:                    []Section{},
			Comparisons:                 map[string][]Comparison{},
		}
	}

	demographics, demographicsMetrics := buildDemographicsSection(tractPayload, tractGeoID)
	economics, economicsMetrics := buildEconomicsSection(tractPayload, tractGeoID)
	families, familiesMetrics := buildFamiliesSection(tractPayload, tractGeoID)
	housing, housingMetrics := buildHousingSection(tractPayload, tractGeoID)
	social, socialMetrics := buildSocialSection(tractPayload, tractGeoID)

	sectionList := []Section{demographics, economics, families, housing, social}
	for _, source := range []map[string]*Metric{demographicsMetrics, economicsMetrics, familiesMetrics, housingMetrics, socialMetrics} {
		for id, metric := range source {
			metricMap[id] = metric
		}
	}

	comparisons := map[string][]Comparison{}
	for metricID, metric := range metricMap {
		extract, ok := metricExtractors[metricID]
		if !ok {
			continue
		}
		lines := comparisonLines(comparisonsPayload, metric.Estimate, selectedParents, extract, metric.Format, nil)
		if len(lines) > 0 {
			comparisons[metricID] = lines
		}
		metric.Comparisons = lines
	}
	for _, metric := range metricMap {
		if metric.Comparisons == nil {
			metric.Comparisons = []Comparison{}
		}
	}

	summary := buildProfileSummary(tractRecord, tractGeoID, selectedParents, lookupName, metricMap["population"])

	return Derived{
		ProfileSummary:              summary,
		TractHighlights:             tractHighlights,
		ComparisonHighlightsByGeoID: comparisonHighlights,
		Sections:                    sectionList,
		Comparisons:                 comparisons,
	}
}
