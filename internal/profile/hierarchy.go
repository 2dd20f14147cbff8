package profile

import (
	"github.com/groundtruth/location-intel/pkg/censusapi"
)

// sumlevelOrder is the fixed emission priority for comparison geographies:
// tract, ZCTA, county, place, metro (CBSA), state, nation.
var sumlevelOrder = []censusapi.Sumlevel{
	censusapi.SumlevelTract,
	censusapi.SumlevelZCTA,
	censusapi.SumlevelCounty,
	censusapi.SumlevelPlace,
	censusapi.SumlevelCBSA,
	censusapi.SumlevelState,
	censusapi.SumlevelNation,
}

// defaultRelations backfills the relation for levels sourced from required
// overrides rather than the ancestor endpoint.
var defaultRelations = map[censusapi.Sumlevel]string{
	censusapi.SumlevelTract:  "this",
	censusapi.SumlevelZCTA:   "zcta",
	censusapi.SumlevelCounty: "county",
}

func tractOnlyRecord(tractGeoID string) censusapi.GeographyRecord {
	return censusapi.GeographyRecord{
		Sumlevel: censusapi.SumlevelTract,
		GeoID:    tractGeoID,
		Relation: "this",
	}
}

// BuildComparisonGeoids selects one geography per summary level from the
// ancestor candidates, applies required overrides (the tract itself, plus
// ZCTA and county geoids taken from the geocoder), and returns the ordered,
// de-duplicated comparison set. The tract is always present and first.
func BuildComparisonGeoids(
	tractGeoID string,
	parents []censusapi.GeographyRecord,
	includeParents bool,
	required map[censusapi.Sumlevel]string,
) ([]string, []censusapi.GeographyRecord) {
	if !includeParents {
		return []string{tractGeoID}, []censusapi.GeographyRecord{tractOnlyRecord(tractGeoID)}
	}

	// Group candidates by normalized level; first seen per level wins.
	bySumlevel := map[censusapi.Sumlevel]censusapi.GeographyRecord{}
	for _, parent := range parents {
		geoid := parent.EffectiveGeoID()
		if geoid == "" {
			continue
		}
		sumlevel := censusapi.NormalizeSumlevel(string(parent.Sumlevel))
		if sumlevel == "" {
			continue
		}
		if _, seen := bySumlevel[sumlevel]; seen {
			continue
		}
		normalized := parent
		normalized.Sumlevel = sumlevel
		normalized.GeoID = geoid
		bySumlevel[sumlevel] = normalized
	}

	// Required overrides take priority over ancestor data.
	effectiveRequired := map[censusapi.Sumlevel]string{}
	for sumlevel, geoid := range required {
		effectiveRequired[sumlevel] = geoid
	}
	effectiveRequired[censusapi.SumlevelTract] = tractGeoID
	for sumlevel, geoid := range effectiveRequired {
		if geoid == "" {
			continue
		}
		record := bySumlevel[sumlevel]
		record.Sumlevel = sumlevel
		record.GeoID = geoid
		if record.Relation == "" {
			if rel, ok := defaultRelations[sumlevel]; ok {
				record.Relation = rel
			} else {
				record.Relation = "related"
			}
		}
		bySumlevel[sumlevel] = record
	}

	var selectedGeoids []string
	var selectedRecords []censusapi.GeographyRecord
	seen := map[string]bool{}
	for _, sumlevel := range sumlevelOrder {
		record, ok := bySumlevel[sumlevel]
		if !ok {
			continue
		}
		if record.GeoID == "" || seen[record.GeoID] {
			continue
		}
		selectedGeoids = append(selectedGeoids, record.GeoID)
		selectedRecords = append(selectedRecords, record)
		seen[record.GeoID] = true
	}

	if !seen[tractGeoID] {
		selectedGeoids = append([]string{tractGeoID}, selectedGeoids...)
		selectedRecords = append([]censusapi.GeographyRecord{tractOnlyRecord(tractGeoID)}, selectedRecords...)
	}

	return selectedGeoids, selectedRecords
}
