// Package domain defines the core CarFinder types, constants, and validation.
// It is the validation gate at every entry point: ingest, search, and chat.
package domain

import (
	"cmp"
	"time"
)

// SourceLocal marks vehicles that come from the local catalog.
const SourceLocal = "local"

// Vehicle is a single car in the catalog or a live listing.
// Numeric zero means unknown for Price, SafetyRating, MPGCity and MPGHighway.
type Vehicle struct {
	ID             int64     `json:"id"`
	VIN            string    `json:"vin,omitempty" validate:"omitempty,vin"`
	Make           string    `json:"make" validate:"required,max=50"`
	Model          string    `json:"model" validate:"required,max=80"`
	Year           int       `json:"year" validate:"gte=1900,lte=2030"`
	Price          float64   `json:"price,omitempty" validate:"gte=0,lte=1000000"`
	Mileage        int       `json:"mileage,omitempty" validate:"gte=0,lte=500000"`
	FuelType       string    `json:"fuel_type,omitempty" validate:"omitempty,fueltype"`
	Transmission   string    `json:"transmission,omitempty"`
	BodyClass      string    `json:"body_class,omitempty" validate:"omitempty,bodyclass"`
	Location       string    `json:"location,omitempty"`
	SafetyRating   float64   `json:"safety_rating,omitempty" validate:"gte=0,lte=5"`
	MPGCity        int       `json:"mpg_city,omitempty" validate:"omitempty,gte=5,lte=150"`
	MPGHighway     int       `json:"mpg_highway,omitempty" validate:"omitempty,gte=5,lte=150"`
	Description    string    `json:"description,omitempty" validate:"max=4000"`
	Features       []string  `json:"features,omitempty" validate:"max=20,dive,max=100"`
	Source         string    `json:"source,omitempty"`
	Embedding      []float32 `json:"-"`
	EmbeddingModel string    `json:"-"`
	CreatedAt      time.Time `json:"created_at,omitzero"`
	UpdatedAt      time.Time `json:"updated_at,omitzero"`
}

// Title returns "2021 Ford F-150".
func (v Vehicle) Title() string {
	return joinNonEmpty(" ", yearString(v.Year), v.Make, v.Model)
}

// AverageMPG returns the mean of city and highway mpg, or the one that is known.
func (v Vehicle) AverageMPG() float64 {
	switch {
	case v.MPGCity > 0 && v.MPGHighway > 0:
		return float64(v.MPGCity+v.MPGHighway) / 2
	case v.MPGCity > 0:
		return float64(v.MPGCity)
	default:
		return float64(v.MPGHighway)
	}
}

// CompareByPrice orders known prices ascending before unknown ones, then by id.
func CompareByPrice(a, b Vehicle) int {
	switch {
	case a.Price > 0 && b.Price <= 0:
		return -1
	case a.Price <= 0 && b.Price > 0:
		return 1
	}
	return cmp.Or(cmp.Compare(a.Price, b.Price), cmp.Compare(a.ID, b.ID), cmp.Compare(a.VIN, b.VIN))
}

// Listing is a vehicle returned by an external listing source.
type Listing struct {
	Vehicle
	ExternalID  string   `json:"external_id,omitempty"`
	URL         string   `json:"listing_url,omitempty"`
	DealerName  string   `json:"dealer_name,omitempty"`
	DealerPhone string   `json:"dealer_phone,omitempty"`
	Images      []string `json:"images,omitempty"`
	ListedAt    string   `json:"listing_date,omitempty"`
	// Sources lists every source a merged listing was seen on.
	Sources []string `json:"sources,omitempty"`
}

// Objective is one axis of the multi-objective score.
type Objective string

const (
	ObjectivePrice       Objective = "price"
	ObjectiveReliability Objective = "reliability"
	ObjectiveEfficiency  Objective = "efficiency"
	ObjectiveSafety      Objective = "safety"
	ObjectiveFeatures    Objective = "features"
)

// Objectives in default weight order.
var Objectives = []Objective{
	ObjectivePrice, ObjectiveReliability, ObjectiveEfficiency, ObjectiveSafety, ObjectiveFeatures,
}

// Weights holds per-objective weights. All-zero means "use defaults".
type Weights struct {
	Price       float64 `json:"price" validate:"gte=0"`
	Reliability float64 `json:"reliability" validate:"gte=0"`
	Efficiency  float64 `json:"efficiency" validate:"gte=0"`
	Safety      float64 `json:"safety" validate:"gte=0"`
	Features    float64 `json:"features" validate:"gte=0"`
}

// DefaultWeights is the fixed weighting used when the user gives none.
var DefaultWeights = Weights{Price: 0.30, Reliability: 0.25, Efficiency: 0.20, Safety: 0.15, Features: 0.10}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Price + w.Reliability + w.Efficiency + w.Safety + w.Features
}

// IsZero reports whether no weight was set.
func (w Weights) IsZero() bool { return w == Weights{} }

// Get returns the weight for o.
func (w Weights) Get(o Objective) float64 {
	switch o {
	case ObjectivePrice:
		return w.Price
	case ObjectiveReliability:
		return w.Reliability
	case ObjectiveEfficiency:
		return w.Efficiency
	case ObjectiveSafety:
		return w.Safety
	case ObjectiveFeatures:
		return w.Features
	}
	return 0
}

// Set assigns the weight for o.
func (w *Weights) Set(o Objective, v float64) {
	switch o {
	case ObjectivePrice:
		w.Price = v
	case ObjectiveReliability:
		w.Reliability = v
	case ObjectiveEfficiency:
		w.Efficiency = v
	case ObjectiveSafety:
		w.Safety = v
	case ObjectiveFeatures:
		w.Features = v
	}
}

// Normalized scales w so the weights sum to 1. Zero weights yield DefaultWeights.
func (w Weights) Normalized() Weights {
	sum := w.Sum()
	if sum <= 0 {
		return DefaultWeights
	}
	return Weights{
		Price:       w.Price / sum,
		Reliability: w.Reliability / sum,
		Efficiency:  w.Efficiency / sum,
		Safety:      w.Safety / sum,
		Features:    w.Features / sum,
	}
}

// Preference is the structured form of what the user is looking for.
// Zero values mean "not specified".
type Preference struct {
	BudgetMin   float64     `json:"budget_min,omitempty" validate:"gte=0,lte=1000000"`
	BudgetMax   float64     `json:"budget_max,omitempty" validate:"gte=0,lte=1000000"`
	MileageMax  int         `json:"mileage_max,omitempty" validate:"gte=0,lte=500000"`
	YearMin     int         `json:"year_min,omitempty" validate:"omitempty,gte=1900,lte=2030"`
	Make        string      `json:"make,omitempty" validate:"omitempty,make"`
	Model       string      `json:"model,omitempty"`
	FuelType    string      `json:"fuel_type,omitempty" validate:"omitempty,fueltype"`
	BodyClass   string      `json:"body_class,omitempty" validate:"omitempty,bodyclass"`
	Location    string      `json:"location,omitempty"`
	Features    []string    `json:"features,omitempty" validate:"max=20,dive,max=100"`
	Description string      `json:"description,omitempty" validate:"max=1000"`
	Priorities  []Objective `json:"priorities,omitempty" validate:"dive,oneof=price reliability efficiency safety features"`
	Weights     Weights     `json:"weights,omitzero"`
}

// HasHardFilters reports whether any attribute filter is set.
func (p Preference) HasHardFilters() bool {
	return p.BudgetMin > 0 || p.BudgetMax > 0 || p.MileageMax > 0 || p.YearMin > 0 ||
		p.Make != "" || p.Model != "" || p.FuelType != "" || p.BodyClass != ""
}

// IsEmpty reports whether nothing at all has been specified.
func (p Preference) IsEmpty() bool {
	return !p.HasHardFilters() && p.Location == "" && len(p.Features) == 0 &&
		p.Description == "" && len(p.Priorities) == 0 && p.Weights.IsZero()
}

// SubScores are the per-objective scores of a candidate, each in [0,1].
type SubScores struct {
	Price       float64 `json:"price"`
	Reliability float64 `json:"reliability"`
	Efficiency  float64 `json:"efficiency"`
	Safety      float64 `json:"safety"`
	Features    float64 `json:"features"`
}

// Get returns the sub-score for o.
func (s SubScores) Get(o Objective) float64 {
	switch o {
	case ObjectivePrice:
		return s.Price
	case ObjectiveReliability:
		return s.Reliability
	case ObjectiveEfficiency:
		return s.Efficiency
	case ObjectiveSafety:
		return s.Safety
	case ObjectiveFeatures:
		return s.Features
	}
	return 0
}

// Match is a retrieved vehicle with its similarity to the query.
type Match struct {
	Vehicle    Vehicle  `json:"vehicle"`
	Similarity float64  `json:"similarity"`
	Sources    []string `json:"sources,omitempty"`
	Listing    *Listing `json:"listing,omitempty"`
}

// ScoredCandidate is a ranked vehicle. Objective is the weighted sub-score
// sum; Total also folds in the match similarity. It is recomputed per query.
type ScoredCandidate struct {
	Match
	Scores      SubScores `json:"scores"`
	Objective   float64   `json:"objective"`
	Total       float64   `json:"total"`
	Explanation string    `json:"explanation"`
}
