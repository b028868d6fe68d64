package aggregate

import (
	"math"
	"slices"
	"strings"

	"github.com/WessleyAI/carfinder/engine/domain"
)

// Tolerances for treating two VIN-less listings as the same vehicle.
const (
	mileageTolerance = 500
	priceTolerance   = 500.0
)

var sourceRank = map[string]int{
	SourceCarGurus:   5,
	SourceAutoTrader: 4,
	SourceCarsCom:    3,
	SourceAutoDev:    2,
}

// Rank returns the merge priority of a source. Unknown sources rank lowest.
func Rank(source string) int {
	return sourceRank[source]
}

// SameVehicle reports whether a and b describe the same car.
func SameVehicle(a, b domain.Listing) bool {
	if a.VIN != "" && b.VIN != "" {
		return strings.EqualFold(a.VIN, b.VIN)
	}
	if !strings.EqualFold(a.Make, b.Make) || !strings.EqualFold(a.Model, b.Model) || a.Year != b.Year {
		return false
	}
	if a.Year == 0 || a.Price <= 0 || b.Price <= 0 {
		return false
	}
	return abs(a.Mileage-b.Mileage) <= mileageTolerance && math.Abs(a.Price-b.Price) <= priceTolerance
}

// Dedup collapses listings that describe the same vehicle. The kept record is
// the one from the higher-ranked source, with blank fields filled from the
// others, and Sources lists every contributor. Input order is preserved.
func Dedup(listings []domain.Listing) []domain.Listing {
	var out []domain.Listing
	byVIN := make(map[string]int)
	for _, l := range listings {
		l.Sources = withSource(slices.Clone(l.Sources), l.Source)
		idx := -1
		if l.VIN != "" {
			if i, ok := byVIN[strings.ToUpper(l.VIN)]; ok {
				idx = i
			}
		}
		if idx < 0 {
			idx = slices.IndexFunc(out, func(o domain.Listing) bool { return SameVehicle(o, l) })
		}
		if idx < 0 {
			out = append(out, l)
			if l.VIN != "" {
				byVIN[strings.ToUpper(l.VIN)] = len(out) - 1
			}
			continue
		}
		merged := merge(out[idx], l)
		out[idx] = merged
		if merged.VIN != "" {
			byVIN[strings.ToUpper(merged.VIN)] = idx
		}
	}
	return out
}

func merge(a, b domain.Listing) domain.Listing {
	primary, other := a, b
	if Rank(b.Source) > Rank(a.Source) {
		primary, other = b, a
	}
	sources := slices.Clone(a.Sources)
	for _, s := range b.Sources {
		sources = withSource(sources, s)
	}

	p := &primary.Vehicle
	o := other.Vehicle
	fillString(&p.VIN, o.VIN)
	fillString(&p.FuelType, o.FuelType)
	fillString(&p.Transmission, o.Transmission)
	fillString(&p.BodyClass, o.BodyClass)
	fillString(&p.Location, o.Location)
	fillString(&p.Description, o.Description)
	if p.Year == 0 {
		p.Year = o.Year
	}
	if p.Price <= 0 {
		p.Price = o.Price
	}
	if p.SafetyRating <= 0 {
		p.SafetyRating = o.SafetyRating
	}
	if p.MPGCity == 0 {
		p.MPGCity = o.MPGCity
	}
	if p.MPGHighway == 0 {
		p.MPGHighway = o.MPGHighway
	}
	if len(p.Features) == 0 {
		p.Features = slices.Clone(o.Features)
	}
	fillString(&primary.URL, other.URL)
	fillString(&primary.DealerName, other.DealerName)
	fillString(&primary.DealerPhone, other.DealerPhone)
	fillString(&primary.ListedAt, other.ListedAt)
	fillString(&primary.ExternalID, other.ExternalID)
	if len(primary.Images) == 0 {
		primary.Images = slices.Clone(other.Images)
	}
	primary.Sources = sources
	return primary
}

func fillString(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}

func withSource(list []string, s string) []string {
	if s == "" || slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
