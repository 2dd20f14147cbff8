package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/groundtruth/location-intel/internal/assistant"
	"github.com/groundtruth/location-intel/internal/crime"
	"github.com/groundtruth/location-intel/internal/profile"
	"github.com/groundtruth/location-intel/internal/server"
	"github.com/groundtruth/location-intel/pkg/anthropic"
	"github.com/groundtruth/location-intel/pkg/censusapi"
	"github.com/groundtruth/location-intel/pkg/google"
	"github.com/groundtruth/location-intel/pkg/overpass"
	"github.com/groundtruth/location-intel/pkg/tigerweb"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the location intelligence API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		census := newCensusClient()
		deps := server.Deps{
			Profile:  profile.NewService(census, zap.L()),
			Geocoder: census,
			Tracts: tigerweb.NewClient(tigerweb.Options{
				BaseURL:   cfg.Census.TigerwebURL,
				Timeout:   cfg.Census.Timeout(),
				UserAgent: cfg.Census.UserAgent,
			}, zap.L()),
			POIs: overpass.NewClient(overpass.Options{
				Endpoints: cfg.Overpass.Endpoints,
				Timeout:   time.Duration(cfg.Overpass.TimeoutSecs * float64(time.Second)),
				UserAgent: cfg.Census.UserAgent,
				PointCap:  cfg.Overpass.TotalPointCap,
			}, zap.L()),
			Crime: crime.NewClient(crime.Options{
				DatasetURL:  cfg.Crime.DatasetURL,
				Limit:       cfg.Crime.FetchLimit,
				MaxHotspots: cfg.Crime.MaxHotspots,
			}, zap.L()),
			Assistant: assistant.NewService(
				anthropic.NewClient(cfg.Assistant.AnthropicKey),
				zap.L(),
				assistant.Options{
					Model:           cfg.Assistant.Model,
					MaxHistoryTurns: cfg.Assistant.MaxHistoryTurns,
				},
			),
			TTS: google.NewTTSClient(cfg.Assistant.TTSKey, google.WithVoice(cfg.Assistant.TTSVoice)),
		}

		return server.New(cfg, deps, zap.L()).Run(ctx)
	},
}

func newCensusClient() *censusapi.Client {
	return censusapi.NewClient(censusapi.Options{
		GeocoderURL:     cfg.Census.GeocoderURL,
		ReporterBaseURL: cfg.Census.ReporterBaseURL,
		UserAgent:       cfg.Census.UserAgent,
		Timeout:         cfg.Census.Timeout(),
		Retries:         cfg.Census.Retries,
		RatePerSec:      cfg.Census.RatePerSec,
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
