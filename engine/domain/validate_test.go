package domain

import (
	"errors"
	"strings"
	"testing"
)

func validVehicle() Vehicle {
	return Vehicle{
		VIN:        "1HGCM82633A004352",
		Make:       "Honda",
		Model:      "Civic",
		Year:       2019,
		Price:      18500,
		Mileage:    42000,
		FuelType:   FuelGasoline,
		BodyClass:  "Sedan",
		MPGCity:    30,
		MPGHighway: 38,
	}
}

func TestValidVIN(t *testing.T) {
	tests := []struct {
		vin  string
		want bool
	}{
		{"1HGCM82633A004352", true},
		{"1hgcm82633a004352", true},
		{"1HGCM82633A00435", false},
		{"1HGCM82633A0043520", false},
		{"1HGCM82633A00435O", false},
		{"IHGCM82633A004352", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidVIN(tt.vin); got != tt.want {
			t.Errorf("ValidVIN(%q) = %v, want %v", tt.vin, got, tt.want)
		}
	}
}

func TestValidateVehicle(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Vehicle)
		want   error
	}{
		{"valid", func(*Vehicle) {}, nil},
		{"no vin is fine", func(v *Vehicle) { v.VIN = "" }, nil},
		{"bad vin", func(v *Vehicle) { v.VIN = "NOTAVIN" }, ErrInvalidVIN},
		{"missing make", func(v *Vehicle) { v.Make = "" }, ErrInvalidVehicle},
		{"year too old", func(v *Vehicle) { v.Year = 1850 }, ErrYearOutOfRange},
		{"year too new", func(v *Vehicle) { v.Year = 2031 }, ErrYearOutOfRange},
		{"negative price", func(v *Vehicle) { v.Price = -1 }, ErrBudgetOutOfRange},
		{"price too high", func(v *Vehicle) { v.Price = 2_000_000 }, ErrBudgetOutOfRange},
		{"mileage too high", func(v *Vehicle) { v.Mileage = 600_000 }, ErrMileageOutOfRange},
		{"mpg too low", func(v *Vehicle) { v.MPGCity = 2 }, ErrMPGOutOfRange},
		{"unknown mpg is fine", func(v *Vehicle) { v.MPGCity, v.MPGHighway = 0, 0 }, nil},
		{"safety too high", func(v *Vehicle) { v.SafetyRating = 6 }, ErrSafetyOutOfRange},
		{"unknown fuel", func(v *Vehicle) { v.FuelType = "steam" }, ErrUnknownFuelType},
		{"unknown body", func(v *Vehicle) { v.BodyClass = "hovercraft" }, ErrUnknownBodyClass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := validVehicle()
			tt.mutate(&v)
			err := ValidateVehicle(v)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
		})
	}
}

func TestValidatePreference(t *testing.T) {
	tests := []struct {
		name string
		pref Preference
		want error
	}{
		{"empty", Preference{}, nil},
		{"budget", Preference{BudgetMax: 30000}, nil},
		{"range", Preference{BudgetMin: 20000, BudgetMax: 30000}, nil},
		{"inverted", Preference{BudgetMin: 40000, BudgetMax: 30000}, ErrBudgetInverted},
		{"budget too high", Preference{BudgetMax: 5_000_000}, ErrBudgetOutOfRange},
		{"negative budget", Preference{BudgetMin: -5}, ErrBudgetOutOfRange},
		{"year", Preference{YearMin: 1800}, ErrYearOutOfRange},
		{"mileage", Preference{MileageMax: 900_000}, ErrMileageOutOfRange},
		{"make", Preference{Make: "Toyota"}, nil},
		{"unknown make", Preference{Make: "Zorblax"}, ErrUnknownMake},
		{"fuel", Preference{FuelType: FuelHybrid}, nil},
		{"unknown fuel", Preference{FuelType: "plutonium"}, ErrUnknownFuelType},
		{"priority", Preference{Priorities: []Objective{ObjectiveSafety}}, nil},
		{"bad priority", Preference{Priorities: []Objective{"speed"}}, ErrInvalidPreference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePreference(tt.pref)
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNormalizeVehicle(t *testing.T) {
	v := NormalizeVehicle(Vehicle{
		VIN:      " 1hgcm82633a004352 ",
		Make:     "chevy",
		Model:    " Silverado ",
		FuelType: "gas",
		Features: []string{"Bluetooth", " bluetooth ", "", "Backup Camera"},
	})
	if v.VIN != "1HGCM82633A004352" {
		t.Errorf("VIN = %q", v.VIN)
	}
	if v.Make != "Chevrolet" {
		t.Errorf("Make = %q, want Chevrolet", v.Make)
	}
	if v.Model != "Silverado" {
		t.Errorf("Model = %q", v.Model)
	}
	if v.FuelType != FuelGasoline {
		t.Errorf("FuelType = %q", v.FuelType)
	}
	if v.BodyClass != "Truck" {
		t.Errorf("BodyClass = %q, want Truck inferred from model", v.BodyClass)
	}
	if len(v.Features) != 2 {
		t.Errorf("Features = %v, want 2 deduplicated", v.Features)
	}
	if v.Source != SourceLocal {
		t.Errorf("Source = %q", v.Source)
	}
}

func TestNormalizeFeaturesCaps(t *testing.T) {
	var in []string
	for i := range 30 {
		in = append(in, strings.Repeat("x", i+1))
	}
	in = append(in, strings.Repeat("y", 500))
	out := NormalizeFeatures(in)
	if len(out) != MaxFeatures {
		t.Fatalf("len = %d, want %d", len(out), MaxFeatures)
	}
	for _, f := range NormalizeFeatures([]string{strings.Repeat("y", 500)}) {
		if len(f) > MaxFeatureLen {
			t.Errorf("feature length %d exceeds %d", len(f), MaxFeatureLen)
		}
	}
}

func TestSanitizeText(t *testing.T) {
	got := SanitizeText("  reliable\x00 family\n\tcar  ")
	if got != "reliable family car" {
		t.Errorf("SanitizeText = %q", got)
	}
	long := SanitizeText(strings.Repeat("a", 5000))
	if len(long) != MaxTextLen {
		t.Errorf("len = %d, want %d", len(long), MaxTextLen)
	}
}

func TestUserMessage(t *testing.T) {
	err := ValidatePreference(Preference{BudgetMax: 5_000_000})
	msg := UserMessage(err)
	if msg == "" || strings.Contains(msg, "validation:") {
		t.Errorf("UserMessage should be friendly, got %q", msg)
	}
	if UserMessage(nil) != "" {
		t.Error("UserMessage(nil) should be empty")
	}
}
