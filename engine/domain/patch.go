package domain

// VehiclePatch is a partial edit of a catalog vehicle. Nil fields are left
// unchanged.
type VehiclePatch struct {
	Price        *float64  `json:"price,omitempty"`
	Mileage      *int      `json:"mileage,omitempty"`
	FuelType     *string   `json:"fuel_type,omitempty"`
	Transmission *string   `json:"transmission,omitempty"`
	BodyClass    *string   `json:"body_class,omitempty"`
	Location     *string   `json:"location,omitempty"`
	SafetyRating *float64  `json:"safety_rating,omitempty"`
	MPGCity      *int      `json:"mpg_city,omitempty"`
	MPGHighway   *int      `json:"mpg_highway,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Features     *[]string `json:"features,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p VehiclePatch) IsEmpty() bool {
	return p == (VehiclePatch{})
}

// Apply returns v with the patch's fields set.
func (p VehiclePatch) Apply(v Vehicle) Vehicle {
	set(&v.Price, p.Price)
	set(&v.Mileage, p.Mileage)
	set(&v.FuelType, p.FuelType)
	set(&v.Transmission, p.Transmission)
	set(&v.BodyClass, p.BodyClass)
	set(&v.Location, p.Location)
	set(&v.SafetyRating, p.SafetyRating)
	set(&v.MPGCity, p.MPGCity)
	set(&v.MPGHighway, p.MPGHighway)
	set(&v.Description, p.Description)
	if p.Features != nil {
		v.Features = append([]string(nil), (*p.Features)...)
	}
	return v
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
