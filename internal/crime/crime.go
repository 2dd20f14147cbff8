// Package crime fetches recent Chicago crime incidents from the Socrata
// open-data API and aggregates them into block-level hotspots.
package crime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	earthRadiusM = 6371000.0

	// Incidents per km² at which the proxy rate saturates.
	rateProxyScale = 50.0
)

// Incident is one crime record from the Socrata dataset.
type Incident struct {
	Date        string `json:"date"`
	PrimaryType string `json:"primary_type"`
	Description string `json:"description"`
	Block       string `json:"block"`
	Latitude    string `json:"latitude"`
	Longitude   string `json:"longitude"`
}

func (i Incident) coords() (float64, float64, bool) {
	lat, err1 := strconv.ParseFloat(i.Latitude, 64)
	lng, err2 := strconv.ParseFloat(i.Longitude, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lng, true
}

// TypeCount is one (primary_type, count) pair.
type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Hotspot is a cluster of incidents grouped by block.
type Hotspot struct {
	Type          string      `json:"type"`
	Lat           float64     `json:"lat"`
	Lng           float64     `json:"lng"`
	Count         int         `json:"count"`
	Block         string      `json:"block,omitempty"`
	TopCrimeTypes []TypeCount `json:"topCrimeTypes"`
	Weight        float64     `json:"weight"`
}

// Summary aggregates the fetched window.
type Summary struct {
	CrimeCount     int         `json:"crimeCount"`
	TopCrimeTypes  []TypeCount `json:"topCrimeTypes"`
	CrimeRateProxy float64     `json:"crimeRateProxy"`
}

// Meta describes the query window.
type Meta struct {
	DaysBack int  `json:"days_back"`
	RadiusM  int  `json:"radius_m"`
	Cached   bool `json:"cached"`
}

// Bundle is the full crime response for one location.
type Bundle struct {
	Summary  Summary   `json:"summary"`
	Hotspots []Hotspot `json:"hotspots"`
	Meta     Meta      `json:"meta"`
}

// Options configures the Socrata client.
type Options struct {
	DatasetURL  string
	Timeout     time.Duration
	Limit       int
	MaxHotspots int
}

func (o Options) withDefaults() Options {
	if o.DatasetURL == "" {
		o.DatasetURL = "https://data.cityofchicago.org/resource/ijzp-q8t2.json"
	}
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.Limit <= 0 {
		o.Limit = 1200
	}
	if o.MaxHotspots <= 0 {
		o.MaxHotspots = 80
	}
	return o
}

// Client fetches and aggregates Chicago crime data.
type Client struct {
	http *http.Client
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

func NewClient(opts Options, log *zap.Logger) *Client {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http: &http.Client{Timeout: opts.Timeout},
		opts: opts,
		log:  log,
		now:  time.Now,
	}
}

// CacheKey returns the canonical cache key for a crime lookup.
func CacheKey(lat, lng float64, radiusM, daysBack int) string {
	return fmt.Sprintf("%.4f|%.4f|%d|%d", lat, lng, radiusM, daysBack)
}

// haversineM is the great-circle distance in meters.
func haversineM(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dphi := phi2 - phi1
	dlambda := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dphi/2)*math.Sin(dphi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dlambda/2)*math.Sin(dlambda/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func (c *Client) dateCutoff(daysBack int) string {
	cutoff := c.now().UTC().AddDate(0, 0, -daysBack)
	return cutoff.Format("2006-01-02") + "T00:00:00"
}

func (c *Client) query(ctx context.Context, where string) ([]Incident, error) {
	params := url.Values{
		"$limit":  {strconv.Itoa(c.opts.Limit)},
		"$order":  {"date DESC"},
		"$select": {"date,primary_type,description,block,latitude,longitude,location"},
		"$where":  {where},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.DatasetURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "building socrata request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("socrata returned HTTP %d", resp.StatusCode)
	}
	var rows []Incident
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, eris.Wrap(err, "decoding socrata response")
	}
	return rows, nil
}

// FetchIncidents fetches recent crimes. It tries a server-side within_circle
// filter first and falls back to a date-only query with client-side
// haversine filtering when the spatial query fails.
func (c *Client) FetchIncidents(ctx context.Context, lat, lng float64, radiusM, daysBack int) ([]Incident, error) {
	cutoff := c.dateCutoff(daysBack)

	spatial := fmt.Sprintf("within_circle(location,%f,%f,%d) AND date >= '%s'", lat, lng, radiusM, cutoff)
	rows, err := c.query(ctx, spatial)
	if err == nil {
		return rows, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	c.log.Warn("socrata spatial query failed, falling back to client-side filter", zap.Error(err))

	rows, err = c.query(ctx, fmt.Sprintf("date >= '%s'", cutoff))
	if err != nil {
		return nil, err
	}
	filtered := rows[:0]
	for _, row := range rows {
		rowLat, rowLng, ok := row.coords()
		if !ok {
			continue
		}
		if haversineM(lat, lng, rowLat, rowLng) <= float64(radiusM) {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

// topCrimeTypes counts incidents by primary type, most common first. Ties
// break alphabetically to keep output stable.
func topCrimeTypes(rows []Incident, n int) []TypeCount {
	counts := map[string]int{}
	for _, row := range rows {
		name := row.PrimaryType
		if name == "" {
			name = "UNKNOWN"
		}
		counts[name]++
	}
	out := make([]TypeCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, TypeCount{Type: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Aggregate groups incidents into hotspots by block, falling back to
// rounded coordinates, and returns them by descending count with weights
// normalized against the densest hotspot.
func (c *Client) Aggregate(rows []Incident) (Summary, []Hotspot) {
	if len(rows) == 0 {
		return Summary{TopCrimeTypes: []TypeCount{}}, []Hotspot{}
	}

	groups := map[string][]Incident{}
	var order []string
	for _, row := range rows {
		key := strings.TrimSpace(row.Block)
		if key == "" {
			lat, lng, ok := row.coords()
			if !ok {
				continue
			}
			key = fmt.Sprintf("%.3f,%.3f", lat, lng)
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	hotspots := make([]Hotspot, 0, len(groups))
	for _, key := range order {
		items := groups[key]
		var latSum, lngSum float64
		var n int
		for _, item := range items {
			lat, lng, ok := item.coords()
			if !ok {
				continue
			}
			latSum += lat
			lngSum += lng
			n++
		}
		if n == 0 {
			continue
		}
		block := ""
		if strings.TrimSpace(items[0].Block) != "" {
			block = key
		}
		hotspots = append(hotspots, Hotspot{
			Type:          "crime_hotspot",
			Lat:           latSum / float64(n),
			Lng:           lngSum / float64(n),
			Count:         len(items),
			Block:         block,
			TopCrimeTypes: topCrimeTypes(items, 3),
		})
	}

	sort.SliceStable(hotspots, func(i, j int) bool { return hotspots[i].Count > hotspots[j].Count })
	if len(hotspots) > c.opts.MaxHotspots {
		hotspots = hotspots[:c.opts.MaxHotspots]
	}

	maxCount := 1
	if len(hotspots) > 0 {
		maxCount = hotspots[0].Count
	}
	for i := range hotspots {
		hotspots[i].Weight = math.Round(float64(hotspots[i].Count)/float64(maxCount)*1000) / 1000
	}

	return Summary{
		CrimeCount:    len(rows),
		TopCrimeTypes: topCrimeTypes(rows, 5),
	}, hotspots
}

// Lookup fetches and aggregates the crime bundle for one location.
func (c *Client) Lookup(ctx context.Context, lat, lng float64, radiusM, daysBack int) (*Bundle, error) {
	rows, err := c.FetchIncidents(ctx, lat, lng, radiusM, daysBack)
	if err != nil {
		return nil, err
	}
	summary, hotspots := c.Aggregate(rows)

	areaKm2 := math.Pi * math.Pow(float64(radiusM)/1000, 2)
	if areaKm2 > 0 {
		proxy := math.Min(1.0, float64(summary.CrimeCount)/areaKm2/rateProxyScale)
		summary.CrimeRateProxy = math.Round(proxy*1000) / 1000
	}

	return &Bundle{
		Summary:  summary,
		Hotspots: hotspots,
		Meta: Meta{
			DaysBack: daysBack,
			RadiusM:  radiusM,
		},
	}, nil
}
