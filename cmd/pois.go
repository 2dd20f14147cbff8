package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/groundtruth/location-intel/pkg/overpass"
)

var (
	poisLat    float64
	poisLon    float64
	poisRadius int
	poisOut    string
)

var poisCmd = &cobra.Command{
	Use:   "pois",
	Short: "Fetch nearby points of interest from OpenStreetMap",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := overpass.NewClient(overpass.Options{
			Endpoints: cfg.Overpass.Endpoints,
			Timeout:   time.Duration(cfg.Overpass.TimeoutSecs * float64(time.Second)),
			UserAgent: cfg.Census.UserAgent,
			PointCap:  cfg.Overpass.TotalPointCap,
		}, zap.L())

		result, err := client.Lookup(cmd.Context(), poisLat, poisLon, poisRadius)
		if err != nil {
			return eris.Wrap(err, "pois")
		}

		return printJSON(result, poisOut)
	},
}

func init() {
	poisCmd.Flags().Float64Var(&poisLat, "lat", 0, "latitude (required)")
	poisCmd.Flags().Float64Var(&poisLon, "lon", 0, "longitude (required)")
	poisCmd.Flags().IntVar(&poisRadius, "radius", 1200, "search radius in meters")
	poisCmd.Flags().StringVar(&poisOut, "out", "", "write JSON to file instead of stdout")
	_ = poisCmd.MarkFlagRequired("lat")
	_ = poisCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(poisCmd)
}
