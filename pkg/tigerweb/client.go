// Package tigerweb fetches census tract boundary polygons from the
// TIGERweb ArcGIS REST API and exposes them as GeoJSON features.
package tigerweb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://tigerweb.geo.census.gov/arcgis/rest/services/TIGERweb/Tracts_Blocks/MapServer/0/query"

// ErrTractGeometryNotFound signals TIGERweb has no polygon for the
// requested tract FIPS.
var ErrTractGeometryNotFound = errors.New("no boundary found for the requested census tract")

// Properties identify the tract a geometry belongs to. GeoID carries the
// Census Reporter style prefix so the frontend can join it against the
// profile payload.
type Properties struct {
	GeoID       string `json:"geoid"`
	DisplayName string `json:"display_name"`
}

// Feature is a GeoJSON feature holding one tract boundary.
type Feature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties Properties      `json:"properties"`
	BBox       [4]float64      `json:"bbox"`
}

// Options configure the TIGERweb client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = defaultBaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	return o
}

// Client queries TIGERweb for tract geometries.
type Client struct {
	http *http.Client
	opts Options
	log  *zap.Logger
}

// NewClient creates a TIGERweb client.
func NewClient(opts Options, log *zap.Logger) *Client {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http: &http.Client{Timeout: opts.Timeout},
		opts: opts,
		log:  log,
	}
}

type featureCollection struct {
	Features []struct {
		Geometry   json.RawMessage `json:"geometry"`
		Properties struct {
			GeoID string `json:"GEOID"`
			Name  string `json:"NAME"`
		} `json:"properties"`
	} `json:"features"`
}

// TractGeometry fetches the boundary polygon for an 11-digit tract FIPS.
// The geometry is validated and its bounding box computed before the
// feature is returned.
func (c *Client) TractGeometry(ctx context.Context, tractFIPS string) (*Feature, error) {
	tractFIPS = strings.TrimSpace(tractFIPS)
	if len(tractFIPS) != 11 {
		return nil, eris.Errorf("tigerweb: tract FIPS must be 11 digits, got %q", tractFIPS)
	}

	params := url.Values{}
	params.Set("where", fmt.Sprintf("GEOID='%s'", tractFIPS))
	params.Set("outFields", "GEOID,NAME")
	params.Set("outSR", "4326")
	params.Set("f", "geojson")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "tigerweb: create request")
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "tigerweb: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "tigerweb: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("tigerweb: status %d: %s", resp.StatusCode, string(body))
	}

	var fc featureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, eris.Wrap(err, "tigerweb: unmarshal feature collection")
	}
	if len(fc.Features) == 0 {
		return nil, ErrTractGeometryNotFound
	}

	raw := fc.Features[0]
	var g geom.T
	if err := geojson.Unmarshal(raw.Geometry, &g); err != nil {
		return nil, eris.Wrap(err, "tigerweb: decode geometry")
	}
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
	default:
		return nil, eris.Errorf("tigerweb: unexpected geometry type %T for tract %s", g, tractFIPS)
	}

	bounds := g.Bounds()
	c.log.Debug("tract geometry fetched",
		zap.String("tract_fips", tractFIPS),
		zap.String("geometry_type", fmt.Sprintf("%T", g)))

	return &Feature{
		Type:     "Feature",
		Geometry: raw.Geometry,
		Properties: Properties{
			GeoID:       "14000US" + tractFIPS,
			DisplayName: raw.Properties.Name,
		},
		BBox: [4]float64{bounds.Min(0), bounds.Min(1), bounds.Max(0), bounds.Max(1)},
	}, nil
}
