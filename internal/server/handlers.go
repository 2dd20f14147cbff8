package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/groundtruth/location-intel/internal/assistant"
	"github.com/groundtruth/location-intel/internal/crime"
	"github.com/groundtruth/location-intel/internal/profile"
	"github.com/groundtruth/location-intel/pkg/censusapi"
	"github.com/groundtruth/location-intel/pkg/overpass"
	"github.com/groundtruth/location-intel/pkg/tigerweb"
)

const (
	defaultPOIRadiusM   = 1200
	defaultCrimeRadiusM = 1200
	defaultDaysBack     = 90
	maxRadiusM          = 10000
)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCensusByPoint(w http.ResponseWriter, r *http.Request) {
	s.lookupCensus(w, r, false)
}

func (s *Server) handleProfileByPoint(w http.ResponseWriter, r *http.Request) {
	s.lookupCensus(w, r, true)
}

func (s *Server) lookupCensus(w http.ResponseWriter, r *http.Request, sections bool) {
	lat, lon, ok := s.requirePoint(w, r)
	if !ok {
		return
	}

	params := profile.Params{
		Lat:            lat,
		Lon:            lon,
		ACS:            r.URL.Query().Get("acs"),
		IncludeParents: queryBool(r, "include_parents", true),
		Sections:       sections,
	}

	result, err := s.deps.Profile.LookupByPoint(r.Context(), params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTractGeo(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := s.requirePoint(w, r)
	if !ok {
		return
	}

	geocoded, err := s.deps.Geocoder.GeocodeByPoint(r.Context(), lat, lon)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	feature, err := s.deps.Tracts.TractGeometry(r.Context(), geocoded.TractFIPS)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feature)
}

func (s *Server) handlePOIs(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := s.requirePoint(w, r)
	if !ok {
		return
	}
	radiusM, ok := s.requireRadius(w, r, defaultPOIRadiusM)
	if !ok {
		return
	}

	key := overpass.CacheKey(lat, lon, radiusM)
	cached := true
	result, err := s.poiCache.GetOrFetch(r.Context(), key, func(ctx context.Context) (*overpass.Result, error) {
		cached = false
		return s.deps.POIs.Lookup(ctx, lat, lon, radiusM)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := *result
	out.Meta.Cached = cached
	writeJSON(w, http.StatusOK, &out)
}

func (s *Server) handleCrime(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := s.requirePoint(w, r)
	if !ok {
		return
	}
	radiusM, ok := s.requireRadius(w, r, defaultCrimeRadiusM)
	if !ok {
		return
	}
	daysBack, ok := s.requireIntInRange(w, r, "days_back", defaultDaysBack, 1, 365)
	if !ok {
		return
	}

	key := crime.CacheKey(lat, lon, radiusM, daysBack)
	cached := true
	bundle, err := s.crimeCache.GetOrFetch(r.Context(), key, func(ctx context.Context) (*crime.Bundle, error) {
		cached = false
		return s.deps.Crime.Lookup(ctx, lat, lon, radiusM, daysBack)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := *bundle
	out.Meta.Cached = cached
	writeJSON(w, http.StatusOK, &out)
}

func (s *Server) handleDisaster(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := s.requirePoint(w, r)
	if !ok {
		return
	}
	risk := crime.ComputeDisasterRisk(lat, lon, r.URL.Query().Get("seed_key"))
	writeJSON(w, http.StatusOK, risk)
}

func (s *Server) handleAssistantChat(w http.ResponseWriter, r *http.Request) {
	var req assistant.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.deps.Assistant.Chat(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAssistantRank(w http.ResponseWriter, r *http.Request) {
	var req assistant.RankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.deps.Assistant.Rank(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAssistantTTS(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeErrorMessage(w, http.StatusBadRequest, "text is required")
		return
	}

	result, err := s.deps.TTS.Synthesize(r.Context(), req.Text)
	if err != nil {
		s.log.Warn("tts synthesis failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Error(err))
		writeErrorMessage(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// requirePoint parses and validates lat/lon query params, writing a 400
// and returning ok=false on failure. The longitude may arrive as either
// "lon" or "lng".
func (s *Server) requirePoint(w http.ResponseWriter, r *http.Request) (lat, lon float64, ok bool) {
	lat, err := queryFloat(r, "lat")
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "lat is required and must be a number")
		return 0, 0, false
	}
	lon, err = queryFloat(r, "lon")
	if err != nil {
		lon, err = queryFloat(r, "lng")
	}
	if err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "lon is required and must be a number")
		return 0, 0, false
	}
	if lat < -90 || lat > 90 {
		writeErrorMessage(w, http.StatusBadRequest, "lat must be between -90 and 90")
		return 0, 0, false
	}
	if lon < -180 || lon > 180 {
		writeErrorMessage(w, http.StatusBadRequest, "lon must be between -180 and 180")
		return 0, 0, false
	}
	return lat, lon, true
}

func (s *Server) requireRadius(w http.ResponseWriter, r *http.Request, fallback int) (int, bool) {
	return s.requireIntInRange(w, r, "radius_m", fallback, 1, maxRadiusM)
}

func (s *Server) requireIntInRange(w http.ResponseWriter, r *http.Request, name string, fallback, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		writeErrorMessage(w, http.StatusBadRequest, name+" is out of range")
		return 0, false
	}
	return v, true
}

func queryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, errors.New("missing")
	}
	return strconv.ParseFloat(raw, 64)
}

func queryBool(r *http.Request, name string, fallback bool) bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, censusapi.ErrNoTractFound),
		errors.Is(err, tigerweb.ErrTractGeometryNotFound):
		status = http.StatusNotFound
	case errors.Is(err, assistant.ErrBadRequest):
		status = http.StatusBadRequest
	default:
		if _, ok := censusapi.AsUpstreamError(err); ok {
			status = http.StatusBadGateway
		}
	}

	if status >= 500 {
		s.log.Error("request failed",
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeErrorMessage(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
