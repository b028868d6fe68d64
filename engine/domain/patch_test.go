package domain

import (
	"slices"
	"testing"
)

func TestVehiclePatchApply(t *testing.T) {
	price, desc := 24500.0, "new tires"
	feats := []string{"Sunroof"}
	p := VehiclePatch{Price: &price, Description: &desc, Features: &feats}
	if p.IsEmpty() || !(VehiclePatch{}).IsEmpty() {
		t.Fatal("IsEmpty")
	}

	v := validVehicle()
	got := p.Apply(v)
	if got.Price != 24500 || got.Description != "new tires" || !slices.Equal(got.Features, feats) {
		t.Errorf("patched = %+v", got)
	}
	if got.Mileage != v.Mileage || got.Make != v.Make || got.VIN != v.VIN {
		t.Errorf("untouched fields changed: %+v", got)
	}
	feats[0] = "Moonroof"
	if got.Features[0] != "Sunroof" {
		t.Error("features alias the patch")
	}
}
