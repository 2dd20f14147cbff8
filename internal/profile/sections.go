package profile

import (
	"fmt"

	"github.com/groundtruth/location-intel/pkg/censusapi"
)

// FullTractTables is the complete ACS table set fetched for the focal tract.
var FullTractTables = []string{
	"B01003", // total population
	"B01002", // median age
	"B01001", // sex by age
	"B03002", // hispanic or latino origin by race
	"B19013", // median household income
	"B19301", // per capita income
	"B19001", // household income distribution
	"B17001", // poverty status
	"B23025", // employment status
	"B25001", // housing units
	"B25002", // occupancy status
	"B25003", // tenure
	"B25024", // units in structure
	"B25064", // median gross rent
	"B25077", // median home value
	"B25075", // home value distribution
	"B08301", // means of transportation to work
	"B08303", // travel time to work
	"B08013", // aggregate travel time
	"B15003", // educational attainment
	"B05002", // place of birth / nativity
	"B05006", // place of birth for foreign-born
	"B07003", // geographical mobility
	"B11001", // household type
	"B25010", // average household size
	"B12001", // marital status
	"B13016", // women who gave birth by age
	"B21001", // veteran status
	"B16001", // language spoken at home
}

// ComparisonTables keeps ancestor comparisons as rich as the tract data so
// the frontend can render contextual lines for every metric.
var ComparisonTables = FullTractTables

// transportColumns maps commute modes to their B08301 columns.
var transportColumns = map[string]string{
	"drove_alone":      "B08301003",
	"carpooled":        "B08301004",
	"public_transit":   "B08301010",
	"walked":           "B08301016",
	"bicycle":          "B08301017",
	"other":            "B08301018",
	"worked_from_home": "B08301019",
}

// Educational attainment columns for "high school or higher" and
// "bachelor's or higher" aggregations.
var (
	b15003HighSchoolPlus = columnRange("B15003", 12, 21)
	b15003BachelorsPlus  = columnRange("B15003", 15, 21)
)

// col builds a zero-padded 3-digit column ID for a table.
func col(tableID string, n int) string {
	return fmt.Sprintf("%s%03d", tableID, n)
}

// columnRange builds column IDs [lo, hi).
func columnRange(tableID string, lo, hi int) []string {
	ids := make([]string, 0, hi-lo)
	for n := lo; n < hi; n++ {
		ids = append(ids, col(tableID, n))
	}
	return ids
}

func cols(tableID string, ns ...int) []string {
	ids := make([]string, 0, len(ns))
	for _, n := range ns {
		ids = append(ids, col(tableID, n))
	}
	return ids
}

// SeriesPoint is one bucket of a chart series.
type SeriesPoint struct {
	Label    string   `json:"label"`
	Count    *float64 `json:"count"`
	ValuePct *float64 `json:"value_pct"`
}

// Chart is a named category breakdown for visualization.
type Chart struct {
	ID       string        `json:"id"`
	Label    string        `json:"label"`
	Type     string        `json:"type"`
	Series   []SeriesPoint `json:"series"`
	Universe string        `json:"universe,omitempty"`
	Note     string        `json:"note,omitempty"`
}

// Section groups related metrics and charts for one profile area.
type Section struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Metrics []*Metric `json:"metrics"`
	Charts  []Chart   `json:"charts"`
}

// bucket pairs a display label with its constituent columns.
type bucket struct {
	label   string
	columns []string
}

// seriesFromColumns computes summed estimate and percent-of-total per bucket,
// preserving bucket order. The total comes from the designated denominator.
func seriesFromColumns(payload *censusapi.DataShowPayload, geoid, tableID, totalColumnID string, buckets []bucket) []SeriesPoint {
	total := payload.Estimate(geoid, tableID, totalColumnID)
	series := make([]SeriesPoint, 0, len(buckets))
	for _, b := range buckets {
		count := sumEstimates(payload, geoid, tableID, b.columns)
		series = append(series, SeriesPoint{
			Label:    b.label,
			Count:    count,
			ValuePct: pct(count, total),
		})
	}
	return series
}

func buildDemographicsSection(payload *censusapi.DataShowPayload, geoid string) (Section, map[string]*Metric) {
	metrics := map[string]*Metric{}

	metrics["median_age"] = deriveMetric(payload, geoid, metricOpts{
		id:       "median_age",
		label:    "Median age",
		tableID:  "B01002",
		columnID: "B01002001",
		format:   FormatNumber,
	})

	maleCount := payload.Estimate(geoid, "B01001", col("B01001", 2))
	femaleCount := payload.Estimate(geoid, "B01001", col("B01001", 26))
	totalPopulation := payload.Estimate(geoid, "B01001", col("B01001", 1))
	malePct := pct(maleCount, totalPopulation)
	femalePct := pct(femaleCount, totalPopulation)
	metrics["male_share"] = deriveMetric(payload, geoid, metricOpts{
		id:               "male_share",
		label:            "Male",
		tableID:          "B01001",
		columnID:         col("B01001", 2),
		format:           FormatPercent,
		valueOverride:    malePct,
		universeOverride: "Total population",
	})
	metrics["female_share"] = deriveMetric(payload, geoid, metricOpts{
		id:               "female_share",
		label:            "Female",
		tableID:          "B01001",
		columnID:         col("B01001", 26),
		format:           FormatPercent,
		valueOverride:    femalePct,
		universeOverride: "Total population",
	})

	ageRangeBuckets := []bucket{
		{"0-9", cols("B01001", 3, 4, 27, 28)},
		{"10-19", cols("B01001", 5, 6, 7, 29, 30, 31)},
		{"20-29", cols("B01001", 8, 9, 10, 11, 32, 33, 34, 35)},
		{"30-39", cols("B01001", 12, 13, 36, 37)},
		{"40-49", cols("B01001", 14, 15, 38, 39)},
		{"50-59", cols("B01001", 16, 17, 40, 41)},
		{"60-69", cols("B01001", 18, 19, 20, 21, 42, 43, 44, 45)},
		{"70-79", cols("B01001", 22, 23, 46, 47)},
		{"80+", cols("B01001", 24, 25, 48, 49)},
	}
	ageCategoryBuckets := []bucket{
		{"Under 18", cols("B01001", 3, 4, 5, 6, 7, 27, 28, 29, 30, 31)},
		{"18 to 64", cols("B01001", 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 42, 43, 32, 33, 34, 35, 36, 37, 38, 39, 40, 41)},
		{"65 and over", cols("B01001", 20, 21, 22, 23, 24, 25, 44, 45, 46, 47, 48, 49)},
	}

	raceBuckets := []bucket{
		{"White", []string{"B03002003"}},
		{"Black", []string{"B03002004"}},
		{"Native", []string{"B03002005"}},
		{"Asian", []string{"B03002006"}},
		{"Islander", []string{"B03002007"}},
		{"Other", []string{"B03002008"}},
		{"Two+", []string{"B03002009"}},
		{"Hispanic", []string{"B03002012"}},
	}

	charts := []Chart{
		{
			ID:       "age_ranges",
			Label:    "Population by age range",
			Type:     "bar",
			Series:   seriesFromColumns(payload, geoid, "B01001", "B01001001", ageRangeBuckets),
			Universe: "Total population",
		},
		{
			ID:       "age_category",
			Label:    "Population by age category",
			Type:     "donut",
			Series:   seriesFromColumns(payload, geoid, "B01001", "B01001001", ageCategoryBuckets),
			Universe: "Total population",
		},
		{
			ID:    "sex_split",
			Label: "Sex",
			Type:  "donut",
			Series: []SeriesPoint{
				{Label: "Male", Count: maleCount, ValuePct: malePct},
				{Label: "Female", Count: femaleCount, ValuePct: femalePct},
			},
			Universe: "Total population",
		},
		{
			ID:       "race_ethnicity",
			Label:    "Race & Ethnicity",
			Type:     "bar",
			Series:   seriesFromColumns(payload, geoid, "B03002", "B03002001", raceBuckets),
			Universe: "Total population",
			Note:     "Hispanic includes respondents of any race. Other categories are non-Hispanic.",
		},
	}

	section := Section{
		ID:      "demographics",
		Title:   "Demographics",
		Metrics: []*Metric{metrics["median_age"]},
		Charts:  charts,
	}
	return section, metrics
}

func buildEconomicsSection(payload *censusapi.DataShowPayload, geoid string) (Section, map[string]*Metric) {
	metrics := map[string]*Metric{}

	metrics["per_capita_income"] = deriveMetric(payload, geoid, metricOpts{
		id:             "per_capita_income",
		label:          "Per capita income",
		tableID:        "B19301",
		columnID:       "B19301001",
		format:         FormatCurrency,
		negativeIsNull: true,
	})
	metrics["median_household_income"] = deriveMetric(payload, geoid, metricOpts{
		id:             "median_household_income",
		label:          "Median household income",
		tableID:        "B19013",
		columnID:       "B19013001",
		format:         FormatCurrency,
		negativeIsNull: true,
	})

	povertyTotal := payload.Estimate(geoid, "B17001", "B17001001")
	povertyBelow := payload.Estimate(geoid, "B17001", "B17001002")
	metrics["poverty_rate"] = deriveMetric(payload, geoid, metricOpts{
		id:               "poverty_rate",
		label:            "Persons below poverty line",
		tableID:          "B17001",
		columnID:         "B17001002",
		format:           FormatPercent,
		valueOverride:    pct(povertyBelow, povertyTotal),
		universeOverride: "Population for whom poverty status is determined",
	})

	metrics["mean_travel_time"] = deriveMetric(payload, geoid, metricOpts{
		id:       "mean_travel_time",
		label:    "Mean travel time to work",
		tableID:  "B08303",
		columnID: "B08303001",
		format:   FormatMinutes,
	})

	incomeBuckets := []bucket{
		{"Under $50K", columnRange("B19001", 2, 11)},
		{"$50K - $100K", columnRange("B19001", 11, 14)},
		{"$100K - $200K", columnRange("B19001", 14, 17)},
		{"Over $200K", cols("B19001", 17)},
	}

	transportBuckets := []bucket{
		{"Drove alone", []string{transportColumns["drove_alone"]}},
		{"Carpooled", []string{transportColumns["carpooled"]}},
		{"Public transit", []string{transportColumns["public_transit"]}},
		{"Bicycle", []string{transportColumns["bicycle"]}},
		{"Walked", []string{transportColumns["walked"]}},
		{"Other", []string{transportColumns["other"]}},
		{"Worked at home", []string{transportColumns["worked_from_home"]}},
	}

	charts := []Chart{
		{
			ID:       "household_income_distribution",
			Label:    "Household income",
			Type:     "bar",
			Series:   seriesFromColumns(payload, geoid, "B19001", "B19001001", incomeBuckets),
			Universe: "Households",
		},
		{
			ID:       "transport_modes",
			Label:    "Means of transportation to work",
			Type:     "bar",
			Series:   seriesFromColumns(payload, geoid, "B08301", "B08301001", transportBuckets),
			Universe: "Workers 16 years and over",
		},
	}

	section := Section{
		ID:    "economics",
		Title: "Economics",
		Metrics: []*Metric{
			metrics["per_capita_income"],
			metrics["median_household_income"],
			metrics["poverty_rate"],
			metrics["mean_travel_time"],
		},
		Charts: charts,
	}
	return section, metrics
}

func buildFamiliesSection(payload *censusapi.DataShowPayload, geoid string) (Section, map[string]*Metric) {
	metrics := map[string]*Metric{}

	metrics["households"] = deriveMetric(payload, geoid, metricOpts{
		id:       "households",
		label:    "Number of households",
		tableID:  "B11001",
		columnID: "B11001001",
		format:   FormatNumber,
	})
	metrics["persons_per_household"] = deriveMetric(payload, geoid, metricOpts{
		id:       "persons_per_household",
		label:    "Persons per household",
		tableID:  "B25010",
		columnID: "B25010001",
		format:   FormatNumber,
	})

	maritalTotal := payload.Estimate(geoid, "B12001", "B12001001")
	marriedCount := sumEstimates(payload, geoid, "B12001", []string{"B12001004", "B12001010"})
	metrics["married_share"] = deriveMetric(payload, geoid, metricOpts{
		id:               "married_share",
		label:            "Married",
		tableID:          "B12001",
		columnID:         "B12001004",
		format:           FormatPercent,
		valueOverride:    pct(marriedCount, maritalTotal),
		universeOverride: "Population 15 years and over",
	})

	fertilityTotal := payload.Estimate(geoid, "B13016", "B13016001")
	fertilityBirth := payload.Estimate(geoid, "B13016", "B13016002")
	metrics["fertility_rate"] = deriveMetric(payload, geoid, metricOpts{
		id:               "fertility_rate",
		label:            "Women 15-50 who gave birth during past year",
		tableID:          "B13016",
		columnID:         "B13016002",
		format:           FormatPercent,
		valueOverride:    pct(fertilityBirth, fertilityTotal),
		universeOverride: "Women 15 to 50 years",
	})

	householdTypeBuckets := []bucket{
		{"Married couples", []string{"B11001003"}},
		{"Male householder", []string{"B11001004"}},
		{"Female householder", []string{"B11001005"}},
		{"Non-family", []string{"B11001006"}},
	}

	maritalBuckets := []bucket{
		{"Never married Male", []string{"B12001003"}},
		{"Never married Female", []string{"B12001009"}},
		{"Now married Male", []string{"B12001004"}},
		{"Now married Female", []string{"B12001010"}},
		{"Divorced Male", []string{"B12001007"}},
		{"Divorced Female", []string{"B12001013"}},
		{"Widowed Male", []string{"B12001006"}},
		{"Widowed Female", []string{"B12001012"}},
	}

	fertilityBuckets := []bucket{
		{"15-19", []string{"B13016004"}},
		{"20-24", []string{"B13016006"}},
		{"25-29", []string{"B13016008"}},
		{"30-35", []string{"B13016010"}},
		{"35-39", []string{"B13016012"}},
		{"40-44", []string{"B13016014"}},
		{"45-50", []string{"B13016016"}},
	}

	charts := []Chart{
		{
			ID:       "household_type",
			Label:    "Population by household type",
			Type:     "bar",
			Series:   seriesFromColumns(payload, geoid, "B11001", "B11001001", householdTypeBuckets),
			Universe: "Households",
		},
		{
			ID:       "marital_status_by_sex",
			Label:    "Marital status, by sex",
			Type:     "bar",
			Series:   seriesFromColumns(payload, geoid, "B12001", "B12001001", maritalBuckets),
			Universe: "Population 15 years and over",
		},
		{
			ID:       "fertility_by_age",
			Label:    "Women who gave birth during past year, by age group",
			Type:     "bar",
			Series:   seriesFromColumns(payload, geoid, "B13016", "B13016001", fertilityBuckets),
			Universe: "Women 15 to 50 years",
		},
	}

	section := Section{
		ID:    "families",
		Title: "Families",
		Metrics: []*Metric{
			metrics["households"],
			metrics["persons_per_household"],
			metrics["married_share"],
			metrics["fertility_rate"],
		},
		Charts: charts,
	}
	return section, metrics
}

func buildHousingSection(payload *censusapi.DataShowPayload, geoid string) (Section, map[string]*Metric) {
	metrics := map[string]*Metric{}

	metrics["housing_units"] = deriveMetric(payload, geoid, metricOpts{
		id:       "housing_units",
		label:    "Number of housing units",
		tableID:  "B25001",
		columnID: "B25001001",
		format:   FormatNumber,
	})
	metrics["median_home_value"] = deriveMetric(payload, geoid, metricOpts{
		id:             "median_home_value",
		label:          "Median value of owner-occupied housing units",
		tableID:        "B25077",
		columnID:       "B25077001",
		format:         FormatCurrency,
		negativeIsNull: true,
	})
	metrics["median_rent"] = deriveMetric(payload, geoid, metricOpts{
		id:             "median_rent",
		label:          "Median gross rent",
		tableID:        "B25064",
		columnID:       "B25064001",
		format:         FormatCurrency,
		negativeIsNull: true,
	})

	occupancyBuckets := []bucket{
		{"Occupied", []string{"B25002002"}},
		{"Vacant", []string{"B25002003"}},
	}
	tenureBuckets := []bucket{
		{"Owner occupied", []string{"B25003002"}},
		{"Renter occupied", []string{"B25003003"}},
	}
	structureBuckets := []bucket{
		{"Single unit", cols("B25024", 2, 3)},
		{"Multi-unit", cols("B25024", 4, 5, 6, 7, 8, 9)},
		{"Mobile home", cols("B25024", 10)},
		{"Boat, RV, van", cols("B25024", 11)},
	}

	valueBins := []bucket{
		{"Under $100K", columnRange("B25075", 2, 13)},
		{"$100K - $200K", columnRange("B25075", 13, 17)},
		{"$200K - $300K", columnRange("B25075", 17, 19)},
		{"$300K - $400K", cols("B25075", 19)},
		{"$400K - $500K", cols("B25075", 20)},
		{"$500K - $1M", cols("B25075", 21, 22)},
		{"Over $1M", cols("B25075", 23, 24, 25)},
	}

	charts := []Chart{
		{
			ID:       "occupied_vs_vacant",
			Label:    "Occupied vs. Vacant",
			Type:     "donut",
			Series:   seriesFromColumns(payload, geoid, "B25002", "B25002001", occupancyBuckets),
			Universe: "Housing units",
		},
		{
			ID:       "ownership",
			Label:    "Ownership of occupied units",
			Type:     "donut",
			Series:   seriesFromColumns(payload, geoid, "B25003", "B25003001", tenureBuckets),
			Universe: "Occupied housing units",
		},
		{
			ID:       "structure_types",
			Label:    "Types of structure",
			Type:     "bar",
			Series:   seriesFromColumns(payload, geoid, "B25024", "B25024001", structureBuckets),
			Universe: "Housing units",
		},
		{
			ID:       "home_value_bins",
			Label:    "Value of owner-occupied housing units",
			Type:     "bar",
			Series:   seriesFromColumns(payload, geoid, "B25075", "B25075001", valueBins),
			Universe: "Owner-occupied housing units",
		},
	}

	section := Section{
		ID:    "housing",
		Title: "Housing",
		Metrics: []*Metric{
			metrics["housing_units"],
			metrics["median_home_value"],
			metrics["median_rent"],
		},
		Charts: charts,
	}
	return section, metrics
}

func buildSocialSection(payload *censusapi.DataShowPayload, geoid string) (Section, map[string]*Metric) {
	metrics := map[string]*Metric{}

	educationTotal := payload.Estimate(geoid, "B15003", "B15003001")
	hsPlus := sumEstimates(payload, geoid, "B15003", b15003HighSchoolPlus)
	bachelorsPlus := sumEstimates(payload, geoid, "B15003", b15003BachelorsPlus)

	metrics["hs_or_higher_pct"] = deriveMetric(payload, geoid, metricOpts{
		id:               "hs_or_higher_pct",
		label:            "High school grad or higher",
		tableID:          "B15003",
		columnID:         "B15003001",
		format:           FormatPercent,
		valueOverride:    pct(hsPlus, educationTotal),
		universeOverride: "Population 25 years and over",
	})
	metrics["bachelors_or_higher_pct"] = deriveMetric(payload, geoid, metricOpts{
		id:               "bachelors_or_higher_pct",
		label:            "Bachelor's degree or higher",
		tableID:          "B15003",
		columnID:         "B15003001",
		format:           FormatPercent,
		valueOverride:    pct(bachelorsPlus, educationTotal),
		universeOverride: "Population 25 years and over",
	})

	foreignTotal := payload.Estimate(geoid, "B05002", "B05002001")
	foreignBorn := payload.Estimate(geoid, "B05002", "B05002013")
	metrics["foreign_born_pct"] = deriveMetric(payload, geoid, metricOpts{
		id:               "foreign_born_pct",
		label:            "Foreign-born population",
		tableID:          "B05002",
		columnID:         "B05002013",
		format:           FormatPercent,
		valueOverride:    pct(foreignBorn, foreignTotal),
		universeOverride: "Total population",
	})

	veteranTotal := payload.Estimate(geoid, "B21001", "B21001001")
	veteranCount := payload.Estimate(geoid, "B21001", "B21001002")
	metrics["veteran_pct"] = deriveMetric(payload, geoid, metricOpts{
		id:               "veteran_pct",
		label:            "Population with veteran status",
		tableID:          "B21001",
		columnID:         "B21001002",
		format:           FormatPercent,
		valueOverride:    pct(veteranCount, veteranTotal),
		universeOverride: "Civilian population 18 years and over",
	})

	languageTotal := payload.Estimate(geoid, "B16001", "B16001001")
	englishOnly := payload.Estimate(geoid, "B16001", "B16001002")
	var otherLanguage *float64
	if languageTotal != nil && englishOnly != nil {
		diff := *languageTotal - *englishOnly
		otherLanguage = &diff
	}
	metrics["language_other_than_english_pct"] = deriveMetric(payload, geoid, metricOpts{
		id:               "language_other_than_english_pct",
		label:            "Persons with language other than English spoken at home",
		tableID:          "B16001",
		columnID:         "B16001001",
		format:           FormatPercent,
		valueOverride:    pct(otherLanguage, languageTotal),
		universeOverride: "Population 5 years and over",
	})

	mobilityTotal := payload.Estimate(geoid, "B07003", "B07003001")
	moved := sumEstimates(payload, geoid, "B07003", []string{"B07003004", "B07003005", "B07003006", "B07003007"})
	metrics["moved_last_year_pct"] = deriveMetric(payload, geoid, metricOpts{
		id:               "moved_last_year_pct",
		label:            "Moved since previous year",
		tableID:          "B07003",
		columnID:         "B07003001",
		format:           FormatPercent,
		valueOverride:    pct(moved, mobilityTotal),
		universeOverride: "Population 1 year and over",
	})

	educationBuckets := []bucket{
		{"No degree", columnRange("B15003", 2, 17)},
		{"High school", cols("B15003", 17, 18)},
		{"Some college", cols("B15003", 19, 20, 21)},
		{"Bachelor's", cols("B15003", 22)},
		{"Post-grad", cols("B15003", 23, 24, 25)},
	}

	birthRegionBuckets := []bucket{
		{"Europe", []string{"B05006002"}},
		{"Asia", []string{"B05006020"}},
		{"Africa", []string{"B05006031"}},
		{"Oceania", []string{"B05006040"}},
		{"Latin America", []string{"B05006045"}},
		{"Northern America", []string{"B05006047"}},
	}

	migrationBuckets := []bucket{
		{"Same house year ago", []string{"B07003002"}},
		{"From same county", []string{"B07003004"}},
		{"From different county", []string{"B07003005"}},
		{"From different state", []string{"B07003006"}},
		{"From abroad", []string{"B07003007"}},
	}

	charts := []Chart{
		{
			ID:       "education_distribution",
			Label:    "Population by highest level of education",
			Type:     "bar",
			Series:   seriesFromColumns(payload, geoid, "B15003", "B15003001", educationBuckets),
			Universe: "Population 25 years and over",
		},
		{
			ID:       "birth_region",
			Label:    "Place of birth for foreign-born population",
			Type:     "bar",
			Series:   seriesFromColumns(payload, geoid, "B05006", "B05006001", birthRegionBuckets),
			Universe: "Foreign-born population",
		},
		{
			ID:       "migration",
			Label:    "Population migration since previous year",
			Type:     "bar",
			Series:   seriesFromColumns(payload, geoid, "B07003", "B07003001", migrationBuckets),
			Universe: "Population 1 year and over",
		},
	}

	section := Section{
		ID:    "social",
		Title: "Social",
		Metrics: []*Metric{
			metrics["hs_or_higher_pct"],
			metrics["bachelors_or_higher_pct"],
			metrics["foreign_born_pct"],
			metrics["veteran_pct"],
			metrics["language_other_than_english_pct"],
			metrics["moved_last_year_pct"],
		},
		Charts: charts,
	}
	return section, metrics
}
