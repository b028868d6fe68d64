package aggregate

import (
	"context"
	"slices"

	"github.com/WessleyAI/carfinder/engine/domain"
)

// Source names.
const (
	SourceCarGurus   = "cargurus"
	SourceAutoTrader = "autotrader"
	SourceCarsCom    = "cars.com"
	SourceAutoDev    = "auto.dev"
)

// Static is a source backed by a fixed inventory. The cargurus, autotrader and
// cars.com providers have no public API, so they serve demonstration stock.
type Static struct {
	name     string
	listings []domain.Listing
}

// NewStatic creates a source named name serving listings.
func NewStatic(name string, listings []domain.Listing) *Static {
	for i := range listings {
		listings[i].Source = name
		listings[i].Sources = []string{name}
	}
	return &Static{name: name, listings: listings}
}

func (s *Static) Name() string { return s.name }

// Search filters the inventory by c.
func (s *Static) Search(ctx context.Context, c Criteria) ([]domain.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Listing
	for _, l := range s.listings {
		if c.Matches(l) {
			l.Features = slices.Clone(l.Features)
			l.Images = slices.Clone(l.Images)
			l.Sources = slices.Clone(l.Sources)
			out = append(out, l)
		}
	}
	return limitListings(out, c.Limit), nil
}

// CarGurus returns the cargurus demonstration source.
func CarGurus() *Static {
	return NewStatic(SourceCarGurus, []domain.Listing{
		{
			Vehicle: domain.Vehicle{
				VIN: "5YJ3E1EA8NF123456", Make: "Tesla", Model: "Model 3", Year: 2022,
				Price: 39900, Mileage: 12000, FuelType: domain.FuelElectric, Transmission: "Single-Speed",
				BodyClass: "Sedan", Location: "San Francisco, CA", SafetyRating: 5,
				Description: "Tesla Model 3 Long Range with Autopilot",
				Features:    []string{"Autopilot", "Premium Interior", "Glass Roof", "Mobile Connector", "Supercharging"},
			},
			ExternalID: "cg_001", DealerName: "Tesla San Francisco", DealerPhone: "(555) 567-8901",
			URL:      "https://www.cargurus.com/Cars/inventorylisting/viewDetails.action?listing=123456",
			Images:   []string{"https://example.com/tesla_1.jpg"},
			ListedAt: "2024-10-02",
		},
		{
			Vehicle: domain.Vehicle{
				VIN: "4S4BTAFC5M3123456", Make: "Subaru", Model: "Outback", Year: 2021,
				Price: 31500, Mileage: 25000, FuelType: domain.FuelGasoline, Transmission: "CVT",
				BodyClass: "Wagon", Location: "Seattle, WA", SafetyRating: 5, MPGCity: 26, MPGHighway: 33,
				Description: "Subaru Outback Premium with EyeSight driver assist",
				Features:    []string{"EyeSight", "All-Wheel Drive", "Roof Rails", "Power Liftgate", "Heated Seats"},
			},
			ExternalID: "cg_002", DealerName: "Subaru of Seattle", DealerPhone: "(555) 678-9012",
			URL:      "https://www.cargurus.com/Cars/inventorylisting/viewDetails.action?listing=234567",
			Images:   []string{"https://example.com/subaru_1.jpg"},
			ListedAt: "2024-09-30",
		},
		{
			Vehicle: domain.Vehicle{
				VIN: "1C4HJXAG2LW123456", Make: "Jeep", Model: "Wrangler", Year: 2020,
				Price: 38750, Mileage: 40000, FuelType: domain.FuelGasoline, Transmission: "Manual",
				BodyClass: "SUV", Location: "Phoenix, AZ", SafetyRating: 3, MPGCity: 17, MPGHighway: 25,
				Description: "Jeep Wrangler Unlimited Sport with removable doors and roof",
				Features:    []string{"4WD", "Removable Doors", "Fold-Down Windshield", "Rock Rails", "Tow Hooks"},
			},
			ExternalID: "cg_003", DealerName: "Desert Jeep", DealerPhone: "(555) 789-0123",
			URL:      "https://www.cargurus.com/Cars/inventorylisting/viewDetails.action?listing=345678",
			Images:   []string{"https://example.com/jeep_1.jpg"},
			ListedAt: "2024-09-27",
		},
	})
}

// AutoTrader returns the autotrader demonstration source.
func AutoTrader() *Static {
	return NewStatic(SourceAutoTrader, []domain.Listing{
		{
			Vehicle: domain.Vehicle{
				VIN: "1FTFW1E50MFA12345", Make: "Ford", Model: "F-150", Year: 2021,
				Price: 42500, Mileage: 35000, FuelType: domain.FuelGasoline, Transmission: "Automatic",
				BodyClass: "Truck", Location: "Dallas, TX", SafetyRating: 4, MPGCity: 20, MPGHighway: 26,
				Description: "Ford F-150 XLT SuperCrew with tow package",
				Features:    []string{"4WD", "Tow Package", "Bed Liner", "Remote Start", "Sync 3"},
			},
			ExternalID: "at_001", DealerName: "Ford Country", DealerPhone: "(555) 345-6789",
			URL:      "https://www.autotrader.com/cars-for-sale/vehicledetails.xhtml?listingId=345678",
			Images:   []string{"https://example.com/f150_1.jpg"},
			ListedAt: "2024-09-29",
		},
		{
			Vehicle: domain.Vehicle{
				VIN: "WBA5R1C50LA123456", Make: "BMW", Model: "3 Series", Year: 2020,
				Price: 32900, Mileage: 28000, FuelType: domain.FuelGasoline, Transmission: "Automatic",
				BodyClass: "Sedan", Location: "Miami, FL", SafetyRating: 5, MPGCity: 26, MPGHighway: 36,
				Description: "BMW 330i with premium and sport packages",
				Features:    []string{"Navigation", "Leather Seats", "Sunroof", "Premium Audio", "Heated Seats", "Sport Package"},
			},
			ExternalID: "at_002", DealerName: "BMW of Miami", DealerPhone: "(555) 456-7890",
			URL:      "https://www.autotrader.com/cars-for-sale/vehicledetails.xhtml?listingId=456789",
			Images:   []string{"https://example.com/bmw_1.jpg"},
			ListedAt: "2024-10-03",
		},
	})
}

// CarsCom returns the cars.com demonstration source.
func CarsCom() *Static {
	return NewStatic(SourceCarsCom, []domain.Listing{
		{
			Vehicle: domain.Vehicle{
				VIN: "4T1C11AK5NU123456", Make: "Toyota", Model: "Camry", Year: 2022,
				Price: 28500, Mileage: 15000, FuelType: domain.FuelGasoline, Transmission: "Automatic",
				BodyClass: "Sedan", Location: "Los Angeles, CA", SafetyRating: 5, MPGCity: 28, MPGHighway: 39,
				Description: "Certified Pre-Owned Toyota Camry in excellent condition",
				Features:    []string{"Backup Camera", "Bluetooth", "Lane Keeping Assist", "Adaptive Cruise Control"},
			},
			ExternalID: "cars_001", DealerName: "Toyota of Downtown LA", DealerPhone: "(555) 123-4567",
			URL:      "https://www.cars.com/vehicledetail/123456",
			Images:   []string{"https://example.com/image1.jpg"},
			ListedAt: "2024-10-01",
		},
		{
			Vehicle: domain.Vehicle{
				VIN: "1HGCV1F13MA123456", Make: "Honda", Model: "Accord", Year: 2021,
				Price: 26800, Mileage: 22000, FuelType: domain.FuelGasoline, Transmission: "CVT",
				BodyClass: "Sedan", Location: "Los Angeles, CA", SafetyRating: 5, MPGCity: 32, MPGHighway: 42,
				Description: "Clean Honda Accord with Honda Sensing suite",
				Features:    []string{"Honda Sensing", "Apple CarPlay", "Android Auto", "Heated Seats"},
			},
			ExternalID: "cars_002", DealerName: "Honda World", DealerPhone: "(555) 234-5678",
			URL:      "https://www.cars.com/vehicledetail/234567",
			Images:   []string{"https://example.com/image2.jpg"},
			ListedAt: "2024-09-28",
		},
	})
}
