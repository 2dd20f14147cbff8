package censusapi

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Summary level prefixes for Census Reporter geoids.
const (
	SumlevelTract  = "140"
	SumlevelZCTA   = "860"
	SumlevelCounty = "050"
	SumlevelPlace  = "160"
	SumlevelCBSA   = "310"
	SumlevelState  = "040"
	SumlevelNation = "010"
)

// GeocoderRecord is one raw geography entry from the Census Geocoder. The
// upstream schema varies by vintage, so it stays loosely typed and is echoed
// back to callers as-is; typed access goes through the helper methods.
type GeocoderRecord map[string]any

// GEOID returns the record's GEOID field, if any.
func (r GeocoderRecord) GEOID() string {
	return r.stringField("GEOID")
}

// Name returns the record's NAME field, if any.
func (r GeocoderRecord) Name() string {
	return r.stringField("NAME")
}

// LandArea returns the land area in square meters from whichever of the
// known area fields is present and numeric.
func (r GeocoderRecord) LandArea() *float64 {
	for _, key := range []string{"AREALAND", "ALAND", "aland"} {
		if v, ok := r[key]; ok {
			if f, ok := toFloat(v); ok {
				return &f
			}
		}
	}
	return nil
}

func (r GeocoderRecord) stringField(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// GeocodeResult carries the tract record the lookup requires plus optional
// county and ZCTA records, with their canonical Census Reporter geoids.
type GeocodeResult struct {
	Tract       GeocoderRecord
	County      GeocoderRecord
	ZCTA        GeocoderRecord
	TractFIPS   string
	TractGeoID  string
	CountyGeoID string
	ZCTAGeoID   string
}

type geocoderResponse struct {
	Result struct {
		Geographies map[string][]GeocoderRecord `json:"geographies"`
	} `json:"result"`
}

// GeocodeByPoint converts a latitude/longitude pair into a census tract
// record plus optional county and ZIP-tabulation-area records. Returns
// ErrNoTractFound when the geocoder has no tract for the point.
func (c *Client) GeocodeByPoint(ctx context.Context, lat, lon float64) (*GeocodeResult, error) {
	params := url.Values{
		"x":         {strconv.FormatFloat(lon, 'f', -1, 64)},
		"y":         {strconv.FormatFloat(lat, 'f', -1, 64)},
		"benchmark": {"Public_AR_Current"},
		"vintage":   {"Current_Current"},
		"layers":    {"all"},
		"format":    {"json"},
	}

	raw, err := c.RequestJSON(ctx, c.opts.GeocoderURL, params, "geocoder")
	if err != nil {
		return nil, err
	}

	var payload geocoderResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, NewUpstreamError("geocoder", "Unexpected geocoder response shape: %s", err)
	}

	geographies := payload.Result.Geographies
	tracts := geographies["Census Tracts"]
	if len(tracts) == 0 {
		return nil, ErrNoTractFound
	}

	result := &GeocodeResult{Tract: tracts[0]}
	result.TractFIPS = result.Tract.GEOID()
	tractGeoID, err := TractGeoID(result.TractFIPS)
	if err != nil {
		return nil, err
	}
	result.TractGeoID = tractGeoID

	if counties := geographies["Counties"]; len(counties) > 0 {
		result.County = counties[0]
		if fips := result.County.GEOID(); fips != "" {
			geoid, err := CountyGeoID(fips)
			if err != nil {
				return nil, err
			}
			result.CountyGeoID = geoid
		}
	}

	// The ZCTA layer name varies by geocoder vintage ("2020 Census ZIP Code
	// Tabulation Areas" etc.), so match on the stable substring.
	for layer, records := range geographies {
		if !strings.Contains(layer, "ZIP Code Tabulation Areas") || len(records) == 0 {
			continue
		}
		result.ZCTA = records[0]
		candidate := result.ZCTA.GEOID()
		if candidate == "" {
			candidate = result.ZCTA.stringField("ZCTA5")
		}
		if candidate != "" {
			geoid, err := ZCTAGeoID(candidate)
			if err != nil {
				return nil, err
			}
			result.ZCTAGeoID = geoid
		}
		break
	}

	return result, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// TractGeoID builds the canonical Census Reporter geoid for an 11-digit
// tract FIPS. A malformed FIPS indicates an upstream schema change and
// fails fast.
func TractGeoID(tractFIPS string) (string, error) {
	if len(tractFIPS) != 11 || !isDigits(tractFIPS) {
		return "", eris.Errorf("censusapi: unexpected tract GEOID format: %q", tractFIPS)
	}
	return "14000US" + tractFIPS, nil
}

// CountyGeoID builds the canonical Census Reporter geoid for a 5-digit
// county FIPS.
func CountyGeoID(countyFIPS string) (string, error) {
	if len(countyFIPS) != 5 || !isDigits(countyFIPS) {
		return "", eris.Errorf("censusapi: unexpected county GEOID format: %q", countyFIPS)
	}
	return "05000US" + countyFIPS, nil
}

// ZCTAGeoID builds the canonical Census Reporter geoid for a 5-digit ZCTA.
func ZCTAGeoID(zcta string) (string, error) {
	if len(zcta) != 5 || !isDigits(zcta) {
		return "", eris.Errorf("censusapi: unexpected ZIP/ZCTA format: %q", zcta)
	}
	return "86000US" + zcta, nil
}
