package domain

import (
	"strings"

	"github.com/WessleyAI/carfinder/pkg/vehiclenlp"
)

// Accepted value ranges.
const (
	MinModelYear  = 1900
	MaxModelYear  = 2030
	MaxBudget     = 1_000_000
	MaxMileage    = 500_000
	MinMPG        = 5
	MaxMPG        = 150
	MaxSafety     = 5.0
	MaxFeatures   = 20
	MaxFeatureLen = 100
	MaxTextLen    = 1000
)

// Canonical fuel types.
const (
	FuelGasoline = "Gasoline"
	FuelHybrid   = "Hybrid"
	FuelElectric = "Electric"
	FuelDiesel   = "Diesel"
	FuelCNG      = "CNG"
	FuelEthanol  = "Ethanol"
)

var fuelAliases = map[string]string{
	"gasoline": FuelGasoline, "gas": FuelGasoline, "petrol": FuelGasoline, "regular unleaded": FuelGasoline,
	"hybrid": FuelHybrid, "plug-in hybrid": FuelHybrid, "phev": FuelHybrid, "gas/electric hybrid": FuelHybrid,
	"electric": FuelElectric, "ev": FuelElectric, "bev": FuelElectric,
	"diesel":  FuelDiesel,
	"cng":     FuelCNG, "natural gas": FuelCNG,
	"ethanol": FuelEthanol, "e85": FuelEthanol, "flex fuel": FuelEthanol, "flex-fuel": FuelEthanol,
}

// CanonicalFuel maps a fuel spelling to its canonical name.
func CanonicalFuel(s string) (string, bool) {
	f, ok := fuelAliases[strings.ToLower(strings.TrimSpace(s))]
	return f, ok
}

// CanonicalBodyClass maps a body class spelling ("SUV", "pickup") to its canonical name.
func CanonicalBodyClass(s string) (string, bool) {
	return vehiclenlp.CanonicalBodyClass(s)
}

// CanonicalMake maps a make spelling ("chevy") to its canonical name.
func CanonicalMake(s string) (string, bool) {
	return vehiclenlp.CanonicalMake(s)
}
