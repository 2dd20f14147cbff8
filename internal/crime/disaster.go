package crime

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
)

// Hazards holds per-hazard simulated risk scores in [0, 1].
type Hazards struct {
	Flood float64 `json:"flood"`
	Heat  float64 `json:"heat"`
	Storm float64 `json:"storm"`
}

// DisasterRisk is a deterministic simulated risk profile for a location.
type DisasterRisk struct {
	OverallRisk float64 `json:"overallRisk"`
	Hazards     Hazards `json:"hazards"`
	Source      string  `json:"source"`
}

// disasterSeed derives a stable seed from the rounded coordinates and an
// optional extra key.
func disasterSeed(lat, lng float64, seedKey string) uint64 {
	if seedKey == "" {
		seedKey = "default"
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%.4f|%.4f|%s", lat, lng, seedKey)))
	v, _ := strconv.ParseUint(hex.EncodeToString(sum[:])[:8], 16, 64)
	return v
}

// scaledNoise maps (seed, salt) onto a stable value in [0, 1].
func scaledNoise(seed uint64, salt string) float64 {
	sum := md5.Sum([]byte(fmt.Sprintf("%d|%s", seed, salt)))
	v, _ := strconv.ParseUint(hex.EncodeToString(sum[:])[:6], 16, 64)
	return float64(v) / float64(0xFFFFFF)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// ComputeDisasterRisk returns deterministic simulated flood, heat, and storm
// risks for a location. Overall risk is the maximum hazard.
func ComputeDisasterRisk(lat, lng float64, seedKey string) DisasterRisk {
	seed := disasterSeed(lat, lng, seedKey)

	flood := round3(scaledNoise(seed, "flood"))
	heat := round3(scaledNoise(seed, "heat"))
	storm := round3(scaledNoise(seed, "storm"))

	return DisasterRisk{
		OverallRisk: round3(math.Max(flood, math.Max(heat, storm))),
		Hazards:     Hazards{Flood: flood, Heat: heat, Storm: storm},
		Source:      "simulated",
	}
}
