package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/groundtruth/location-intel/internal/profile"
)

var (
	lookupLat      float64
	lookupLon      float64
	lookupACS      string
	lookupSections bool
	lookupParents  bool
	lookupOut      string
)

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Fetch the census profile for a point",
	Long:  "Geocodes a latitude/longitude to its census tract and prints the full profile payload: raw tables, derived metrics, and parent comparisons.",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := profile.NewService(newCensusClient(), zap.L())

		acs := lookupACS
		if acs == "" {
			acs = cfg.Census.ACS
		}

		result, err := svc.LookupByPoint(cmd.Context(), profile.Params{
			Lat:            lookupLat,
			Lon:            lookupLon,
			ACS:            acs,
			IncludeParents: lookupParents,
			Sections:       lookupSections,
		})
		if err != nil {
			return eris.Wrap(err, "lookup")
		}

		return printJSON(result, lookupOut)
	},
}

// printJSON writes v as indented JSON to path, or stdout when path is empty.
func printJSON(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "encode result")
	}

	if path == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return eris.Wrap(err, "write output file")
	}
	zap.L().Info("result written", zap.String("path", path))
	return nil
}

func init() {
	lookupCmd.Flags().Float64Var(&lookupLat, "lat", 0, "latitude (required)")
	lookupCmd.Flags().Float64Var(&lookupLon, "lon", 0, "longitude (required)")
	lookupCmd.Flags().StringVar(&lookupACS, "acs", "", "ACS release (default from config)")
	lookupCmd.Flags().BoolVar(&lookupSections, "sections", true, "include derived sections and comparisons")
	lookupCmd.Flags().BoolVar(&lookupParents, "parents", true, "include parent geographies")
	lookupCmd.Flags().StringVar(&lookupOut, "out", "", "write JSON to file instead of stdout")
	_ = lookupCmd.MarkFlagRequired("lat")
	_ = lookupCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(lookupCmd)
}
