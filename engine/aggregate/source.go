// Package aggregate queries external listing sources in parallel and merges
// their results into one deduplicated list.
package aggregate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/WessleyAI/carfinder/engine/domain"
)

// Source is one external listing provider.
type Source interface {
	Name() string
	Search(ctx context.Context, c Criteria) ([]domain.Listing, error)
}

// Criteria is what a source is asked for. Zero values mean "any".
type Criteria struct {
	Make       string  `json:"make,omitempty"`
	Model      string  `json:"model,omitempty"`
	YearMin    int     `json:"year_min,omitempty"`
	YearMax    int     `json:"year_max,omitempty"`
	PriceMin   float64 `json:"price_min,omitempty"`
	PriceMax   float64 `json:"price_max,omitempty"`
	MileageMax int     `json:"mileage_max,omitempty"`
	FuelType   string  `json:"fuel_type,omitempty"`
	BodyClass  string  `json:"body_class,omitempty"`
	Location   string  `json:"location,omitempty"`
	Radius     int     `json:"radius,omitempty"`
	Limit      int     `json:"limit,omitempty"`
}

var zipRe = regexp.MustCompile(`^\d{5}$`)

// CriteriaFor derives source criteria from a preference.
func CriteriaFor(p domain.Preference, radius, limit int) Criteria {
	return Criteria{
		Make:       p.Make,
		Model:      p.Model,
		YearMin:    p.YearMin,
		PriceMin:   p.BudgetMin,
		PriceMax:   p.BudgetMax,
		MileageMax: p.MileageMax,
		FuelType:   p.FuelType,
		BodyClass:  p.BodyClass,
		Location:   p.Location,
		Radius:     radius,
		Limit:      limit,
	}
}

// Zip returns the location when it is a five-digit postal code.
func (c Criteria) Zip() string {
	if zipRe.MatchString(c.Location) {
		return c.Location
	}
	return ""
}

// Hash is a stable short digest used in cache keys.
func (c Criteria) Hash() string {
	c.Make = strings.ToLower(c.Make)
	c.Model = strings.ToLower(c.Model)
	c.Location = strings.ToLower(c.Location)
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// Matches reports whether l satisfies every set criterion. Unknown listing
// attributes fail the filter they are checked against.
func (c Criteria) Matches(l domain.Listing) bool {
	v := l.Vehicle
	if c.Make != "" && !strings.EqualFold(v.Make, c.Make) {
		return false
	}
	if c.Model != "" && !strings.Contains(strings.ToLower(v.Model), strings.ToLower(c.Model)) {
		return false
	}
	if c.YearMin > 0 && v.Year < c.YearMin {
		return false
	}
	if c.YearMax > 0 && (v.Year == 0 || v.Year > c.YearMax) {
		return false
	}
	if c.PriceMin > 0 && (v.Price <= 0 || v.Price < c.PriceMin) {
		return false
	}
	if c.PriceMax > 0 && (v.Price <= 0 || v.Price > c.PriceMax) {
		return false
	}
	if c.MileageMax > 0 && v.Mileage > c.MileageMax {
		return false
	}
	if c.FuelType != "" && !strings.EqualFold(v.FuelType, c.FuelType) {
		return false
	}
	if c.BodyClass != "" && !strings.EqualFold(v.BodyClass, c.BodyClass) {
		return false
	}
	return true
}

func limitListings(ls []domain.Listing, n int) []domain.Listing {
	if n > 0 && len(ls) > n {
		return ls[:n]
	}
	return ls
}
