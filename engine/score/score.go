// Package score ranks retrieved vehicles against a preference using a
// weighted multi-objective score.
package score

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/WessleyAI/carfinder/engine/domain"
)

// Floor is the sub-score given to an attribute that is unknown.
const Floor = 0.2

// A candidate's total blends its retrieval similarity with the weighted
// objective score.
const (
	RetrievalWeight = 0.4
	ObjectiveWeight = 0.6
)

const (
	neutral     = 0.5
	mpgLow      = 15.0
	mpgHigh     = 50.0
	popularStep = 0.05
)

var reliabilityByMake = map[string]float64{
	"toyota":        0.95,
	"honda":         0.92,
	"mazda":         0.88,
	"subaru":        0.85,
	"hyundai":       0.82,
	"kia":           0.80,
	"ford":          0.75,
	"chevrolet":     0.72,
	"bmw":           0.70,
	"mercedes-benz": 0.68,
	"audi":          0.66,
	"volkswagen":    0.64,
}

var popularFeatures = []string{"backup camera", "bluetooth", "navigation", "heated seats"}

// Each group lists names that refer to the same feature.
var featureSynonyms = [][]string{
	{"backup camera", "rear camera", "rearview camera", "reverse camera"},
	{"navigation", "nav", "gps"},
	{"heated seats", "seat warmers"},
	{"sunroof", "moonroof"},
	{"apple carplay", "carplay", "android auto"},
	{"awd", "all-wheel drive", "all wheel drive"},
	{"4wd", "4x4", "four-wheel drive"},
	{"third row seating", "third row", "3rd row"},
	{"adaptive cruise control", "adaptive cruise"},
	{"blind spot monitoring", "blind spot"},
	{"towing package", "tow package", "tow hitch"},
}

// Scorer computes sub-scores and weighted totals.
type Scorer struct {
	now func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithClock sets the clock used to compute vehicle age.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// WithCurrentYear pins the year used to compute vehicle age.
func WithCurrentYear(year int) Option {
	return WithClock(func() time.Time { return time.Date(year, time.June, 1, 0, 0, 0, 0, time.UTC) })
}

// New creates a Scorer.
func New(opts ...Option) *Scorer {
	s := &Scorer{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score returns the matches ordered by total, highest first. Ties go to the
// lower price, then the lower id.
func (s *Scorer) Score(p domain.Preference, matches []domain.Match) []domain.ScoredCandidate {
	if len(matches) == 0 {
		return nil
	}
	w := WeightsFor(p)
	out := make([]domain.ScoredCandidate, len(matches))
	for i, m := range matches {
		sub := s.SubScores(p, m.Vehicle)
		obj := Total(w, sub)
		out[i] = domain.ScoredCandidate{
			Match:       m,
			Scores:      sub,
			Objective:   obj,
			Total:       Blend(m.Similarity, obj),
			Explanation: explain(p, m.Vehicle, w, sub),
		}
	}
	slices.SortStableFunc(out, func(a, b domain.ScoredCandidate) int {
		return cmp.Or(cmp.Compare(b.Total, a.Total), domain.CompareByPrice(a.Vehicle, b.Vehicle))
	})
	return out
}

// SubScores computes every per-objective score of v, each in [0,1].
func (s *Scorer) SubScores(p domain.Preference, v domain.Vehicle) domain.SubScores {
	return domain.SubScores{
		Price:       PriceFit(p, v.Price),
		Reliability: Reliability(v, s.now().Year()),
		Efficiency:  Efficiency(v),
		Safety:      Safety(v.SafetyRating),
		Features:    FeatureMatch(p.Features, v.Features),
	}
}

// Blend combines a retrieval similarity and an objective score into the
// final ranking score in [0,1].
func Blend(similarity, objective float64) float64 {
	return clamp01(RetrievalWeight*clamp01(similarity) + ObjectiveWeight*objective)
}

// Total is the weighted sum of sub, clamped to [0,1]. w must be normalized.
func Total(w domain.Weights, sub domain.SubScores) float64 {
	var t float64
	for _, o := range domain.Objectives {
		t += w.Get(o) * sub.Get(o)
	}
	return clamp01(t)
}

// PriceFit scores how close price is to the budget target.
func PriceFit(p domain.Preference, price float64) float64 {
	if price <= 0 {
		return Floor
	}
	var target, span float64
	switch {
	case p.BudgetMin > 0 && p.BudgetMax > 0:
		target, span = (p.BudgetMin+p.BudgetMax)/2, 0.5*p.BudgetMax
	case p.BudgetMax > 0:
		target, span = 0.7*p.BudgetMax, 0.5*p.BudgetMax
	case p.BudgetMin > 0:
		target, span = p.BudgetMin, 0.5*p.BudgetMin
	default:
		return neutral
	}
	return 1 - math.Min(1, math.Abs(price-target)/span)
}

// MakeReliability returns the base reliability of a make, 0.5 when unknown.
func MakeReliability(name string) float64 {
	if canon, ok := domain.CanonicalMake(name); ok {
		name = canon
	}
	if r, ok := reliabilityByMake[strings.ToLower(name)]; ok {
		return r
	}
	return neutral
}

// Reliability is the make reliability discounted by age and mileage.
func Reliability(v domain.Vehicle, currentYear int) float64 {
	return MakeReliability(v.Make) * ageFactor(v.Year, currentYear) * mileageFactor(v.Mileage)
}

func ageFactor(year, currentYear int) float64 {
	if year <= 0 {
		return 0.7
	}
	switch age := currentYear - year; {
	case age <= 2:
		return 1.0
	case age <= 5:
		return 0.95
	case age <= 8:
		return 0.85
	default:
		return 0.7
	}
}

func mileageFactor(miles int) float64 {
	switch {
	case miles < 0:
		return 0.7
	case miles <= 30000:
		return 1.0
	case miles <= 60000:
		return 0.95
	case miles <= 100000:
		return 0.85
	default:
		return 0.7
	}
}

// Efficiency normalizes average mpg between 15 and 50.
func Efficiency(v domain.Vehicle) float64 {
	mpg := v.AverageMPG()
	if mpg <= 0 {
		if fuel, _ := domain.CanonicalFuel(v.FuelType); fuel == domain.FuelElectric {
			return 1
		}
		return Floor
	}
	return clamp01((mpg - mpgLow) / (mpgHigh - mpgLow))
}

// Safety is rating/5, never below Floor.
func Safety(rating float64) float64 {
	return math.Max(Floor, clamp01(rating/5))
}

// FeatureMatch is the fraction of requested features the vehicle has. With
// nothing requested it is 0.5 plus a small bonus per popular feature.
func FeatureMatch(requested, have []string) float64 {
	if len(requested) == 0 {
		score := neutral
		for _, f := range popularFeatures {
			if hasFeature(have, f) {
				score += popularStep
			}
		}
		return clamp01(score)
	}
	if len(have) == 0 {
		return Floor
	}
	n := 0
	for _, f := range requested {
		if hasFeature(have, f) {
			n++
		}
	}
	return float64(n) / float64(len(requested))
}

func hasFeature(have []string, want string) bool {
	names := synonymsOf(strings.ToLower(strings.TrimSpace(want)))
	for _, h := range have {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		for _, n := range names {
			if strings.Contains(h, n) || strings.Contains(n, h) {
				return true
			}
		}
	}
	return false
}

func synonymsOf(f string) []string {
	for _, group := range featureSynonyms {
		if slices.Contains(group, f) {
			return group
		}
	}
	return []string{f}
}

// WeightsFor returns the normalized weights for p. Explicit weights win over
// priorities; priorities receive the default weights in descending order.
func WeightsFor(p domain.Preference) domain.Weights {
	if !p.Weights.IsZero() {
		return p.Weights.Normalized()
	}
	if len(p.Priorities) == 0 {
		return domain.DefaultWeights.Normalized()
	}

	values := make([]float64, len(domain.Objectives))
	for i, o := range domain.Objectives {
		values[i] = domain.DefaultWeights.Get(o)
	}
	slices.SortFunc(values, func(a, b float64) int { return cmp.Compare(b, a) })

	var w domain.Weights
	assigned := make(map[domain.Objective]bool, len(domain.Objectives))
	next := 0
	for _, o := range p.Priorities {
		if assigned[o] || !slices.Contains(domain.Objectives, o) {
			continue
		}
		w.Set(o, values[next])
		assigned[o] = true
		next++
	}
	for _, o := range domain.Objectives {
		if !assigned[o] {
			w.Set(o, values[next])
			next++
		}
	}
	return w.Normalized()
}

func explain(p domain.Preference, v domain.Vehicle, w domain.Weights, sub domain.SubScores) string {
	objs := slices.Clone(domain.Objectives)
	slices.SortStableFunc(objs, func(a, b domain.Objective) int {
		return cmp.Compare(w.Get(b)*sub.Get(b), w.Get(a)*sub.Get(a))
	})
	reasons := make([]string, 0, 2)
	for _, o := range objs[:2] {
		reasons = append(reasons, reason(o, p, v, sub))
	}
	return "Top factors: " + strings.Join(reasons, "; ")
}

func reason(o domain.Objective, p domain.Preference, v domain.Vehicle, sub domain.SubScores) string {
	switch o {
	case domain.ObjectivePrice:
		switch {
		case v.Price <= 0:
			return "price not listed"
		case p.BudgetMax > 0 && v.Price <= p.BudgetMax:
			return fmt.Sprintf("price %s within your %s budget", domain.Dollars(v.Price), domain.Dollars(p.BudgetMax))
		default:
			return "price " + domain.Dollars(v.Price)
		}
	case domain.ObjectiveReliability:
		return fmt.Sprintf("%s reliability %.2f", v.Make, sub.Reliability)
	case domain.ObjectiveEfficiency:
		if mpg := v.AverageMPG(); mpg > 0 {
			return fmt.Sprintf("%.0f mpg average", mpg)
		}
		if sub.Efficiency == 1 {
			return "electric drivetrain"
		}
		return "fuel economy unknown"
	case domain.ObjectiveSafety:
		if v.SafetyRating > 0 {
			return fmt.Sprintf("safety rating %.1f/5", v.SafetyRating)
		}
		return "safety rating unknown"
	case domain.ObjectiveFeatures:
		if len(p.Features) > 0 {
			n := int(math.Round(sub.Features * float64(len(p.Features))))
			return fmt.Sprintf("%d of %d requested features", n, len(p.Features))
		}
		return fmt.Sprintf("%d listed features", len(v.Features))
	}
	return string(o)
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
