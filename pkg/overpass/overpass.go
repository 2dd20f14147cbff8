// Package overpass fetches nearby OpenStreetMap points of interest via the
// Overpass API in a single query, categorizes them, and returns bucketed
// counts plus a deterministically downsampled list of points.
package overpass

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultEndpoints are public Overpass mirrors tried in order.
var DefaultEndpoints = []string{
	"https://overpass-api.de/api/interpreter",
	"https://overpass.kumi.systems/api/interpreter",
	"https://overpass.nchc.org.tw/api/interpreter",
}

// categoryOrder fixes the per-category downsampling order.
var categoryOrder = []string{
	"food", "retail", "grocery", "healthcare", "parking", "transit", "nightlife", "parks",
}

var categoryWeights = map[string]float64{
	"transit":    0.9,
	"parking":    0.85,
	"healthcare": 0.82,
	"grocery":    0.78,
	"parks":      0.70,
	"nightlife":  0.65,
	"food":       0.60,
	"retail":     0.55,
}

var categoryCaps = map[string]int{
	"food":       40,
	"retail":     40,
	"grocery":    25,
	"healthcare": 20,
	"parking":    25,
	"transit":    25,
	"nightlife":  20,
	"parks":      20,
}

const defaultPointCap = 150

// Point is one categorized POI.
type Point struct {
	Type   string  `json:"type"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Weight float64 `json:"weight"`
	Name   string  `json:"name,omitempty"`
}

// Meta describes how a result was produced.
type Meta struct {
	RadiusM        int   `json:"radius_m"`
	TotalElements  int   `json:"total_elements"`
	ReturnedPoints int   `json:"returned_points"`
	Cached         bool  `json:"cached"`
	TS             int64 `json:"ts"`
}

// Result is the categorized POI response for one location and radius.
type Result struct {
	Counts map[string]int `json:"counts"`
	Points []Point        `json:"points"`
	Meta   Meta           `json:"meta"`
}

// Options configures the Overpass client.
type Options struct {
	Endpoints  []string
	Timeout    time.Duration
	UserAgent  string
	RatePerSec float64
	PointCap   int
}

func (o Options) withDefaults() Options {
	if len(o.Endpoints) == 0 {
		o.Endpoints = DefaultEndpoints
	}
	if o.Timeout <= 0 {
		o.Timeout = 25 * time.Second
	}
	if o.RatePerSec <= 0 {
		o.RatePerSec = 1
	}
	if o.PointCap <= 0 {
		o.PointCap = defaultPointCap
	}
	return o
}

// Client queries Overpass mirrors with sequential failover.
type Client struct {
	http    *http.Client
	opts    Options
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewClient(opts Options, log *zap.Logger) *Client {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:    &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
		log:     log,
	}
}

// CacheKey returns the canonical cache key for a POI lookup: coordinates
// rounded to three decimals plus the radius.
func CacheKey(lat, lng float64, radiusM int) string {
	return fmt.Sprintf("%.3f|%.3f|%d", lat, lng, radiusM)
}

// seedFor derives a stable downsampling seed from the rounded coordinates
// and radius.
func seedFor(lat, lng float64, radiusM int) int64 {
	sum := md5.Sum([]byte(CacheKey(lat, lng, radiusM)))
	v, _ := strconv.ParseUint(hex.EncodeToString(sum[:])[:8], 16, 64)
	return int64(v)
}

// buildQuery constructs a single Overpass QL query covering all categories.
func buildQuery(lat, lng float64, radiusM int) string {
	amenityRegex := "^(cafe|restaurant|fast_food|bar|pub|nightclub|pharmacy|clinic|hospital|doctors|dentist|parking)$"
	around := fmt.Sprintf("(around:%d,%f,%f)", radiusM, lat, lng)

	var b strings.Builder
	b.WriteString("[out:json][timeout:25];\n(\n")
	selectors := []string{
		fmt.Sprintf(`["amenity"~"%s"]`, amenityRegex),
		`["shop"]`,
		`["highway"="bus_stop"]`,
		`["public_transport"="platform"]`,
		`["railway"="station"]`,
		`["leisure"="park"]`,
	}
	for _, sel := range selectors {
		for _, kind := range []string{"node", "way", "relation"} {
			fmt.Fprintf(&b, "%s%s%s;\n", kind, sel, around)
		}
	}
	b.WriteString(");\nout center tags;")
	return b.String()
}

type element struct {
	Lat    *float64          `json:"lat"`
	Lon    *float64          `json:"lon"`
	Center *struct {
		Lat *float64 `json:"lat"`
		Lon *float64 `json:"lon"`
	} `json:"center"`
	Tags map[string]string `json:"tags"`
}

func (e element) coords() (float64, float64, bool) {
	if e.Lat != nil && e.Lon != nil {
		return *e.Lat, *e.Lon, true
	}
	if e.Center != nil && e.Center.Lat != nil && e.Center.Lon != nil {
		return *e.Center.Lat, *e.Center.Lon, true
	}
	return 0, 0, false
}

// categorize maps OSM tags onto one of the POI categories. Transit tags win
// over amenity/shop tags so stations with attached shops stay transit.
func categorize(tags map[string]string) string {
	if tags["highway"] == "bus_stop" || tags["public_transport"] == "platform" || tags["railway"] == "station" {
		return "transit"
	}
	amenity := tags["amenity"]
	if amenity == "parking" {
		return "parking"
	}
	if tags["leisure"] == "park" {
		return "parks"
	}
	if shop := tags["shop"]; shop != "" {
		if shop == "supermarket" || shop == "convenience" {
			return "grocery"
		}
		return "retail"
	}
	switch amenity {
	case "pharmacy", "clinic", "hospital", "doctors", "dentist":
		return "healthcare"
	case "bar", "pub", "nightclub":
		return "nightlife"
	case "cafe", "restaurant", "fast_food":
		return "food"
	}
	return ""
}

// fetch posts the query to each endpoint in order until one succeeds.
func (c *Client) fetch(ctx context.Context, query string) ([]element, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for _, endpoint := range c.opts.Endpoints {
		body := url.Values{"data": {query}}.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
		if err != nil {
			return nil, eris.Wrap(err, "building overpass request")
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if c.opts.UserAgent != "" {
			req.Header.Set("User-Agent", c.opts.UserAgent)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.log.Warn("overpass endpoint failed", zap.String("endpoint", endpoint), zap.Error(err))
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("overpass %s returned HTTP %d", endpoint, resp.StatusCode)
			c.log.Warn("overpass endpoint failed", zap.String("endpoint", endpoint), zap.Int("status", resp.StatusCode))
			continue
		}

		var payload struct {
			Elements []element `json:"elements"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			lastErr = err
			continue
		}
		return payload.Elements, nil
	}
	if lastErr != nil {
		return nil, eris.Wrapf(lastErr, "overpass request failed for all endpoints")
	}
	return nil, eris.New("overpass request failed for all endpoints")
}

// downsample applies per-category caps with deterministic seeded selection,
// then enforces the global point cap.
func downsample(pointsByCat map[string][]Point, seed int64, pointCap int) []Point {
	rng := rand.New(rand.NewSource(seed))
	selected := []Point{}

	for idx, cat := range categoryOrder {
		pts := append([]Point(nil), pointsByCat[cat]...)
		if len(pts) == 0 {
			continue
		}
		limit := categoryCaps[cat]
		if len(pts) > limit {
			catRNG := rand.New(rand.NewSource(seed + int64(idx) + 1))
			catRNG.Shuffle(len(pts), func(i, j int) { pts[i], pts[j] = pts[j], pts[i] })
			pts = pts[:limit]
		} else {
			rng.Shuffle(len(pts), func(i, j int) { pts[i], pts[j] = pts[j], pts[i] })
		}
		selected = append(selected, pts...)
	}

	if len(selected) > pointCap {
		rng.Shuffle(len(selected), func(i, j int) { selected[i], selected[j] = selected[j], selected[i] })
		selected = selected[:pointCap]
	}
	return selected
}

// Lookup fetches POIs around a location and returns categorized counts and
// a capped, deterministically sampled point list.
func (c *Client) Lookup(ctx context.Context, lat, lng float64, radiusM int) (*Result, error) {
	elements, err := c.fetch(ctx, buildQuery(lat, lng, radiusM))
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(categoryOrder))
	pointsByCat := make(map[string][]Point, len(categoryOrder))
	for _, cat := range categoryOrder {
		counts[cat] = 0
	}

	for _, el := range elements {
		category := categorize(el.Tags)
		if category == "" {
			continue
		}
		elLat, elLng, ok := el.coords()
		if !ok {
			continue
		}
		counts[category]++
		pointsByCat[category] = append(pointsByCat[category], Point{
			Type:   category,
			Lat:    elLat,
			Lng:    elLng,
			Weight: categoryWeights[category],
			Name:   el.Tags["name"],
		})
	}

	points := downsample(pointsByCat, seedFor(lat, lng, radiusM), c.opts.PointCap)

	return &Result{
		Counts: counts,
		Points: points,
		Meta: Meta{
			RadiusM:        radiusM,
			TotalElements:  len(elements),
			ReturnedPoints: len(points),
			TS:             time.Now().Unix(),
		},
	}, nil
}
