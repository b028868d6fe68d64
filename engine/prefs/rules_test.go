package prefs

import (
	"slices"
	"testing"

	"github.com/WessleyAI/carfinder/engine/domain"
)

func TestRules(t *testing.T) {
	tests := []struct {
		text  string
		check func(t *testing.T, p domain.Preference)
	}{
		{"Ford F-150 under $40k near Seattle", func(t *testing.T, p domain.Preference) {
			if p.Make != "Ford" || p.Model != "F-150" || p.BudgetMax != 40000 || p.Location != "Seattle" {
				t.Errorf("got %+v", p)
			}
			if p.BudgetMin != 0 || p.BodyClass != "Truck" {
				t.Errorf("min=%v body=%q", p.BudgetMin, p.BodyClass)
			}
		}},
		{"between $20,000 and $30,000", budget(20000, 30000)},
		{"something $20k-$30k", budget(20000, 30000)},
		{"20k to 30k please", budget(20000, 30000)},
		{"at least 15k", budget(15000, 0)},
		{"about 40 thousand dollars", budget(0, 40000)},
		{"my budget is $35,500", budget(0, 35500)},
		{"under 50k miles", func(t *testing.T, p domain.Preference) {
			if p.MileageMax != 50000 || p.BudgetMax != 0 {
				t.Errorf("mileage=%d budget=%v", p.MileageMax, p.BudgetMax)
			}
		}},
		{"2018 or newer SUV", func(t *testing.T, p domain.Preference) {
			if p.YearMin != 2018 || p.BodyClass != "SUV" || p.BudgetMax != 0 {
				t.Errorf("got %+v", p)
			}
		}},
		{"anything after 2015", func(t *testing.T, p domain.Preference) {
			if p.YearMin != 2016 {
				t.Errorf("year_min = %d", p.YearMin)
			}
		}},
		{"a hybrid with a backup camera and heated seats", func(t *testing.T, p domain.Preference) {
			if p.FuelType != "Hybrid" || !slices.Equal(p.Features, []string{"Backup Camera", "Heated Seats"}) {
				t.Errorf("got %+v", p)
			}
		}},
		{"safety matters most, then fuel economy", func(t *testing.T, p domain.Preference) {
			want := []domain.Objective{domain.ObjectiveSafety, domain.ObjectiveEfficiency}
			if !slices.Equal(p.Priorities, want) {
				t.Errorf("priorities = %v", p.Priorities)
			}
		}},
		{"used cars near 98101", func(t *testing.T, p domain.Preference) {
			if p.Location != "98101" || p.BudgetMax != 0 {
				t.Errorf("location=%q budget=%v", p.Location, p.BudgetMax)
			}
		}},
		{"Ram 1500 in Portland, OR", func(t *testing.T, p domain.Preference) {
			if p.Make != "Ram" || p.Model != "1500" || p.Location != "Portland, OR" || p.BudgetMax != 0 {
				t.Errorf("got %+v", p)
			}
		}},
		{"looking for a 2500 truck", func(t *testing.T, p domain.Preference) {
			if p.Make != "" || p.Model != "" || p.BodyClass != "Truck" {
				t.Errorf("got %+v", p)
			}
		}},
		{"I'm interested in Hybrid models", func(t *testing.T, p domain.Preference) {
			if p.Location != "" || p.FuelType != "Hybrid" {
				t.Errorf("location=%q fuel=%q", p.Location, p.FuelType)
			}
		}},
		{"something fun for weekend mountain trips", func(t *testing.T, p domain.Preference) {
			if p.HasHardFilters() || p.Description == "" {
				t.Errorf("got %+v", p)
			}
		}},
		{"", func(t *testing.T, p domain.Preference) {
			if !p.IsEmpty() {
				t.Errorf("got %+v", p)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			tt.check(t, Rules(tt.text))
		})
	}
}

func budget(lo, hi float64) func(*testing.T, domain.Preference) {
	return func(t *testing.T, p domain.Preference) {
		t.Helper()
		if p.BudgetMin != lo || p.BudgetMax != hi {
			t.Errorf("budget = [%v, %v], want [%v, %v]", p.BudgetMin, p.BudgetMax, lo, hi)
		}
	}
}

func TestWantsSearch(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"show me what you've got", true},
		{"ok, search now", true},
		{"I'm ready", true},
		{"I drive a lot on the highway", false},
	}
	for _, tt := range tests {
		if got := WantsSearch(tt.text); got != tt.want {
			t.Errorf("WantsSearch(%q) = %v", tt.text, got)
		}
	}
}
