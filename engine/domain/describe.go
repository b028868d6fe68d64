package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// EmbeddingText renders the text a vehicle's embedding is derived from.
// Any change to these attributes must trigger a new embedding.
func EmbeddingText(v Vehicle) string {
	parts := []string{v.Title()}
	if v.BodyClass != "" {
		parts = append(parts, v.BodyClass)
	}
	if v.FuelType != "" {
		parts = append(parts, "fuel type "+v.FuelType)
	}
	if v.Transmission != "" {
		parts = append(parts, "transmission "+v.Transmission)
	}
	if len(v.Features) > 0 {
		parts = append(parts, "features: "+strings.Join(v.Features, ", "))
	}
	if v.Description != "" {
		parts = append(parts, v.Description)
	}
	if v.MPGCity > 0 && v.MPGHighway > 0 {
		parts = append(parts, fmt.Sprintf("fuel efficiency %d city %d highway mpg", v.MPGCity, v.MPGHighway))
	}
	return strings.ToLower(strings.Join(parts, ". "))
}

// QueryText renders the preference as free text for similarity search.
func (p Preference) QueryText() string {
	parts := []string{p.Description, p.Make, p.Model, p.BodyClass, p.FuelType}
	if len(p.Features) > 0 {
		parts = append(parts, "features: "+strings.Join(p.Features, ", "))
	}
	return strings.ToLower(joinNonEmpty(" ", parts...))
}

// Summary renders the hard filters of p for explanations, e.g. "budget ≤ $30,000, fuel Hybrid".
func (p Preference) Summary() string {
	var parts []string
	switch {
	case p.BudgetMin > 0 && p.BudgetMax > 0:
		parts = append(parts, fmt.Sprintf("budget %s-%s", Dollars(p.BudgetMin), Dollars(p.BudgetMax)))
	case p.BudgetMax > 0:
		parts = append(parts, "budget ≤ "+Dollars(p.BudgetMax))
	case p.BudgetMin > 0:
		parts = append(parts, "budget ≥ "+Dollars(p.BudgetMin))
	}
	if p.Make != "" || p.Model != "" {
		parts = append(parts, joinNonEmpty(" ", p.Make, p.Model))
	}
	if p.BodyClass != "" {
		parts = append(parts, p.BodyClass)
	}
	if p.FuelType != "" {
		parts = append(parts, "fuel "+p.FuelType)
	}
	if p.YearMin > 0 {
		parts = append(parts, fmt.Sprintf("%d or newer", p.YearMin))
	}
	if p.MileageMax > 0 {
		parts = append(parts, fmt.Sprintf("under %s miles", thousands(p.MileageMax)))
	}
	if p.Location != "" {
		parts = append(parts, "near "+p.Location)
	}
	return strings.Join(parts, ", ")
}

// Dollars formats 42500 as "$42,500".
func Dollars(v float64) string {
	return "$" + thousands(int(v+0.5))
}

func thousands(n int) string {
	if n < 0 {
		return "-" + thousands(-n)
	}
	s := strconv.Itoa(n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}

func yearString(y int) string {
	if y <= 0 {
		return ""
	}
	return strconv.Itoa(y)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
