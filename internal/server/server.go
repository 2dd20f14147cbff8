// Package server exposes the location-intelligence API over HTTP: census
// profiles, tract boundaries, nearby POIs, crime summaries, disaster risk
// simulation, and the chat assistant.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/groundtruth/location-intel/internal/assistant"
	"github.com/groundtruth/location-intel/internal/cache"
	"github.com/groundtruth/location-intel/internal/config"
	"github.com/groundtruth/location-intel/internal/crime"
	"github.com/groundtruth/location-intel/internal/profile"
	"github.com/groundtruth/location-intel/pkg/censusapi"
	"github.com/groundtruth/location-intel/pkg/google"
	"github.com/groundtruth/location-intel/pkg/overpass"
	"github.com/groundtruth/location-intel/pkg/tigerweb"
)

// ProfileService runs the census profile pipeline.
type ProfileService interface {
	LookupByPoint(ctx context.Context, params profile.Params) (*profile.Result, error)
}

// Geocoder resolves a point to census geographies.
type Geocoder interface {
	GeocodeByPoint(ctx context.Context, lat, lon float64) (*censusapi.GeocodeResult, error)
}

// TractGeometryFetcher fetches tract boundary polygons.
type TractGeometryFetcher interface {
	TractGeometry(ctx context.Context, tractFIPS string) (*tigerweb.Feature, error)
}

// POIFetcher looks up nearby points of interest.
type POIFetcher interface {
	Lookup(ctx context.Context, lat, lng float64, radiusM int) (*overpass.Result, error)
}

// CrimeFetcher looks up nearby crime summaries.
type CrimeFetcher interface {
	Lookup(ctx context.Context, lat, lng float64, radiusM, daysBack int) (*crime.Bundle, error)
}

// AssistantService handles chat and ranking turns.
type AssistantService interface {
	Chat(ctx context.Context, req assistant.ChatRequest) (*assistant.ChatResponse, error)
	Rank(req assistant.RankRequest) (*assistant.RankResponse, error)
}

// Deps are the backends the server routes requests to.
type Deps struct {
	Profile   ProfileService
	Geocoder  Geocoder
	Tracts    TractGeometryFetcher
	POIs      POIFetcher
	Crime     CrimeFetcher
	Assistant AssistantService
	TTS       google.TTSClient
}

// Server is the HTTP API server.
type Server struct {
	cfg        *config.Config
	deps       Deps
	log        *zap.Logger
	poiCache   *cache.Cache[*overpass.Result]
	crimeCache *cache.Cache[*crime.Bundle]
}

// New builds a Server with per-module response caches sized from config.
func New(cfg *config.Config, deps Deps, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:        cfg,
		deps:       deps,
		log:        log,
		poiCache:   cache.New[*overpass.Result](256, time.Duration(cfg.Overpass.CacheTTLSecs)*time.Second),
		crimeCache: cache.New[*crime.Bundle](256, time.Duration(cfg.Crime.CacheTTLSecs)*time.Second),
	}
}

// Handler assembles the chi router with middleware and all routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Duration(s.cfg.Server.RequestDeadline) * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Route("/api", func(r chi.Router) {
		r.Get("/census/by-point", s.handleCensusByPoint)
		r.Get("/census/profile/by-point", s.handleProfileByPoint)
		r.Get("/census/tract-geo", s.handleTractGeo)
		r.Get("/pois", s.handlePOIs)
		r.Get("/crime/chicago", s.handleCrime)
		r.Get("/disaster/simulate", s.handleDisaster)
		r.Post("/assistant/chat", s.handleAssistantChat)
		r.Post("/assistant/rank", s.handleAssistantRank)
		r.Post("/assistant/tts", s.handleAssistantTTS)
	})

	return r
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("starting server", zap.Int("port", s.cfg.Server.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
