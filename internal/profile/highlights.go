package profile

import "github.com/groundtruth/location-intel/pkg/censusapi"

const squareMetersPerSquareMile = 2_589_988.110336

// TransportMode is the count and share of workers using one commute mode.
type TransportMode struct {
	Count    *float64 `json:"count"`
	SharePct *float64 `json:"share_pct"`
}

// PovertyHighlight summarizes poverty status counts and rate.
type PovertyHighlight struct {
	BelowCount *float64 `json:"below_count"`
	TotalCount *float64 `json:"total_count"`
	RatePct    *float64 `json:"rate_pct"`
}

// HousingHighlight carries the headline housing cost medians.
type HousingHighlight struct {
	MedianRent      *float64 `json:"median_rent"`
	MedianHomeValue *float64 `json:"median_home_value"`
}

// TransportHighlight breaks down commute modes for workers 16 and over.
type TransportHighlight struct {
	TotalWorkers *float64                 `json:"total_workers"`
	Modes        map[string]TransportMode `json:"modes"`
}

// EducationHighlight summarizes attainment for the 25-and-over population.
type EducationHighlight struct {
	TotalPopulation25Plus *float64 `json:"total_population_25_plus"`
	HighSchoolOrHigher    *float64 `json:"high_school_or_higher_count"`
	HighSchoolOrHigherPct *float64 `json:"high_school_or_higher_pct"`
	BachelorsOrHigher     *float64 `json:"bachelors_or_higher_count"`
	BachelorsOrHigherPct  *float64 `json:"bachelors_or_higher_pct"`
}

// Highlights is the compact headline view of one geography, used for the
// focal tract and each comparison geography alike.
type Highlights struct {
	GeoID                 string             `json:"geoid"`
	Name                  string             `json:"name"`
	Population            *float64           `json:"population"`
	MedianAge             *float64           `json:"median_age"`
	MedianHouseholdIncome *float64           `json:"median_household_income"`
	PerCapitaIncome       *float64           `json:"per_capita_income"`
	Poverty               PovertyHighlight   `json:"poverty"`
	Housing               HousingHighlight   `json:"housing"`
	Transportation        TransportHighlight `json:"transportation"`
	Education             EducationHighlight `json:"education"`
}

// ComputeHighlights derives the headline figures for one geography from a
// fetched payload. Missing tables yield nil fields rather than errors.
func ComputeHighlights(payload *censusapi.DataShowPayload, geoid, name string) Highlights {
	povertyTotal := payload.Estimate(geoid, "B17001", "B17001001")
	povertyBelow := payload.Estimate(geoid, "B17001", "B17001002")

	transportTotal := payload.Estimate(geoid, "B08301", "B08301001")
	modes := make(map[string]TransportMode, len(transportColumns))
	for label, columnID := range transportColumns {
		count := payload.Estimate(geoid, "B08301", columnID)
		modes[label] = TransportMode{
			Count:    count,
			SharePct: pct(count, transportTotal),
		}
	}

	educationTotal := payload.Estimate(geoid, "B15003", "B15003001")
	hsPlus := sumEstimates(payload, geoid, "B15003", b15003HighSchoolPlus)
	bachelorsPlus := sumEstimates(payload, geoid, "B15003", b15003BachelorsPlus)

	return Highlights{
		GeoID:                 geoid,
		Name:                  name,
		Population:            payload.Estimate(geoid, "B01003", "B01003001"),
		MedianAge:             payload.Estimate(geoid, "B01002", "B01002001"),
		MedianHouseholdIncome: normalizeMedian(payload.Estimate(geoid, "B19013", "B19013001")),
		PerCapitaIncome:       normalizeMedian(payload.Estimate(geoid, "B19301", "B19301001")),
		Poverty: PovertyHighlight{
			BelowCount: povertyBelow,
			TotalCount: povertyTotal,
			RatePct:    pct(povertyBelow, povertyTotal),
		},
		Housing: HousingHighlight{
			MedianRent:      normalizeMedian(payload.Estimate(geoid, "B25064", "B25064001")),
			MedianHomeValue: normalizeMedian(payload.Estimate(geoid, "B25077", "B25077001")),
		},
		Transportation: TransportHighlight{
			TotalWorkers: transportTotal,
			Modes:        modes,
		},
		Education: EducationHighlight{
			TotalPopulation25Plus: educationTotal,
			HighSchoolOrHigher:    hsPlus,
			HighSchoolOrHigherPct: pct(hsPlus, educationTotal),
			BachelorsOrHigher:     bachelorsPlus,
			BachelorsOrHigherPct:  pct(bachelorsPlus, educationTotal),
		},
	}
}

// HierarchyEntry is one level of the tract's geography chain.
type HierarchyEntry struct {
	GeoID string `json:"geoid"`
	Name  string `json:"name"`
}

// ProfileSummary is the top-of-page summary: identity, hierarchy, and the
// land-area derived density figures.
type ProfileSummary struct {
	TractGeoID       string           `json:"tract_geoid"`
	TractName        string           `json:"tract_name"`
	Hierarchy        []HierarchyEntry `json:"hierarchy"`
	Population       *float64         `json:"population"`
	AreaSqM          *float64         `json:"area_sq_m"`
	AreaSqMiles      *float64         `json:"area_sq_miles"`
	DensityPerSqMile *float64         `json:"density_per_sq_mile"`
}

// buildProfileSummary assembles the summary from the geocoder tract record,
// the selected comparison hierarchy, and the already-derived tract metrics.
func buildProfileSummary(tractRecord censusapi.GeocoderRecord, tractGeoID string, selectedParents []censusapi.GeographyRecord, lookupName func(string) string, populationMetric *Metric) ProfileSummary {
	var areaSqMi, density *float64
	areaSqM := tractRecord.LandArea()
	if areaSqM != nil && *areaSqM > 0 {
		mi := *areaSqM / squareMetersPerSquareMile
		areaSqMi = &mi
		if populationMetric != nil && populationMetric.Estimate != nil && mi > 0 {
			d := *populationMetric.Estimate / mi
			density = &d
		}
	}

	hierarchyGeoids := []string{tractGeoID}
	seen := map[string]bool{tractGeoID: true}
	for _, parent := range selectedParents {
		geoid := parent.EffectiveGeoID()
		if geoid == "" || seen[geoid] {
			continue
		}
		seen[geoid] = true
		hierarchyGeoids = append(hierarchyGeoids, geoid)
	}
	hierarchy := make([]HierarchyEntry, 0, len(hierarchyGeoids))
	for _, geoid := range hierarchyGeoids {
		hierarchy = append(hierarchy, HierarchyEntry{GeoID: geoid, Name: lookupName(geoid)})
	}

	tractName := lookupName(tractGeoID)
	if tractName == "" {
		tractName = tractRecord.Name()
	}

	var population *float64
	if populationMetric != nil {
		population = populationMetric.Estimate
	}

	return ProfileSummary{
		TractGeoID:       tractGeoID,
		TractName:        tractName,
		Hierarchy:        hierarchy,
		Population:       population,
		AreaSqM:          areaSqM,
		AreaSqMiles:      areaSqMi,
		DensityPerSqMile: density,
	}
}
