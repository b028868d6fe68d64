package aggregate

import (
	"testing"

	"github.com/WessleyAI/carfinder/engine/domain"
)

func TestSameVehicle(t *testing.T) {
	base := listing("", "Toyota", "Camry", 2022, 28500)
	base.Mileage = 15000

	tests := []struct {
		name string
		edit func(*domain.Listing)
		want bool
	}{
		{"identical", func(*domain.Listing) {}, true},
		{"within tolerance", func(l *domain.Listing) { l.Mileage += 500; l.Price -= 500 }, true},
		{"mileage too far", func(l *domain.Listing) { l.Mileage += 501 }, false},
		{"price too far", func(l *domain.Listing) { l.Price += 501 }, false},
		{"different year", func(l *domain.Listing) { l.Year = 2021 }, false},
		{"make case", func(l *domain.Listing) { l.Make = "TOYOTA" }, true},
		{"unknown price", func(l *domain.Listing) { l.Price = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base
			tt.edit(&other)
			if got := SameVehicle(base, other); got != tt.want {
				t.Errorf("SameVehicle = %v, want %v", got, tt.want)
			}
		})
	}

	a := listing("4T1C11AK5NU123456", "Toyota", "Camry", 2022, 28500)
	b := listing("4T1C11AK5NU999999", "Toyota", "Camry", 2022, 28500)
	if SameVehicle(a, b) {
		t.Error("different VINs matched on attributes")
	}
}

func TestDedupRanksAndFills(t *testing.T) {
	autodev := listing("", "Subaru", "Outback", 2021, 31400)
	autodev.Source = SourceAutoDev
	autodev.Mileage = 25200
	autodev.MPGCity = 26
	autodev.URL = "https://auto.dev/listing/1"

	gurus := listing("", "Subaru", "Outback", 2021, 31500)
	gurus.Source = SourceCarGurus
	gurus.Mileage = 25000
	gurus.DealerName = "Subaru of Seattle"

	other := listing("", "Subaru", "Forester", 2021, 31500)
	other.Source = SourceCarsCom

	out := Dedup([]domain.Listing{autodev, other, gurus})
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	m := out[0]
	if m.Source != SourceCarGurus || m.Price != 31500 || m.Mileage != 25000 {
		t.Errorf("merged record from %s: price=%v mileage=%d", m.Source, m.Price, m.Mileage)
	}
	if m.MPGCity != 26 || m.URL != autodev.URL || m.DealerName != gurus.DealerName {
		t.Errorf("fields not filled: %+v", m)
	}
	if len(m.Sources) != 2 {
		t.Errorf("sources = %v", m.Sources)
	}
	if out[1].Model != "Forester" {
		t.Errorf("order changed: %v", out[1].Title())
	}
}

func TestDedupThreeWayVIN(t *testing.T) {
	vin := "1FTFW1E50MFA12345"
	var in []domain.Listing
	for _, src := range []string{SourceAutoDev, SourceCarsCom, SourceAutoTrader} {
		l := listing(vin, "Ford", "F-150", 2021, 42500)
		l.Source = src
		in = append(in, l)
	}
	out := Dedup(in)
	if len(out) != 1 || out[0].Source != SourceAutoTrader || len(out[0].Sources) != 3 {
		t.Fatalf("got %+v", out)
	}
}
