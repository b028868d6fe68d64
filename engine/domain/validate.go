package domain

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/WessleyAI/carfinder/pkg/vehiclenlp"
)

// VIN format: 17 alphanumeric characters, excluding I, O, Q.
var vinRegex = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	must := func(tag string, fn func(string) bool) {
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return fn(fl.Field().String())
		}); err != nil {
			panic(err)
		}
	}
	must("vin", ValidVIN)
	must("fueltype", func(s string) bool { _, ok := CanonicalFuel(s); return ok })
	must("bodyclass", func(s string) bool { _, ok := CanonicalBodyClass(s); return ok })
	must("make", func(s string) bool { _, ok := CanonicalMake(s); return ok })
	return v
}

// sentinelFor maps a struct field to the sentinel reported for it.
var sentinelFor = map[string]error{
	"BudgetMin":    ErrBudgetOutOfRange,
	"BudgetMax":    ErrBudgetOutOfRange,
	"Price":        ErrBudgetOutOfRange,
	"Year":         ErrYearOutOfRange,
	"YearMin":      ErrYearOutOfRange,
	"Mileage":      ErrMileageOutOfRange,
	"MileageMax":   ErrMileageOutOfRange,
	"MPGCity":      ErrMPGOutOfRange,
	"MPGHighway":   ErrMPGOutOfRange,
	"SafetyRating": ErrSafetyOutOfRange,
	"VIN":          ErrInvalidVIN,
	"Make":         ErrUnknownMake,
	"FuelType":     ErrUnknownFuelType,
	"BodyClass":    ErrUnknownBodyClass,
	"Features":     ErrTooManyFeatures,
}

// toValidationError converts the first validator failure into a ValidationError.
func toValidationError(err error, fallback error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", fallback, err)
	}
	fe := verrs[0]
	field, _, _ := strings.Cut(fe.StructField(), "[")
	sentinel, ok := sentinelFor[field]
	if !ok || fe.Tag() == "required" {
		sentinel = fallback
	}
	return NewValidationError(fe.Field(), fmt.Sprint(fe.Value()), sentinel)
}

// ValidVIN reports whether s is a well-formed 17-character VIN.
func ValidVIN(s string) bool {
	return vinRegex.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

// ValidateVehicle validates a catalog record before it is stored.
func ValidateVehicle(v Vehicle) error {
	if err := validate.Struct(v); err != nil {
		return toValidationError(err, ErrInvalidVehicle)
	}
	return nil
}

// ValidatePreference validates field ranges and vocabulary of a Preference.
func ValidatePreference(p Preference) error {
	if err := validate.Struct(p); err != nil {
		return toValidationError(err, ErrInvalidPreference)
	}
	if p.BudgetMin > 0 && p.BudgetMax > 0 && p.BudgetMin > p.BudgetMax {
		return NewValidationError("budget_min", fmt.Sprintf("%.0f", p.BudgetMin), ErrBudgetInverted)
	}
	return nil
}

// NormalizeVehicle canonicalizes spellings and fills derivable attributes.
func NormalizeVehicle(v Vehicle) Vehicle {
	v.VIN = strings.ToUpper(strings.TrimSpace(v.VIN))
	v.Make = strings.TrimSpace(v.Make)
	if m, ok := CanonicalMake(v.Make); ok {
		v.Make = m
	}
	v.Model = strings.TrimSpace(v.Model)
	if f, ok := CanonicalFuel(v.FuelType); ok {
		v.FuelType = f
	}
	if b, ok := CanonicalBodyClass(v.BodyClass); ok {
		v.BodyClass = b
	} else if v.BodyClass == "" {
		v.BodyClass = vehiclenlp.BodyClassOf(v.Make, v.Model)
	}
	v.Transmission = strings.TrimSpace(v.Transmission)
	v.Location = SanitizeText(v.Location)
	v.Description = SanitizeText(v.Description)
	v.Features = NormalizeFeatures(v.Features)
	if v.Source == "" {
		v.Source = SourceLocal
	}
	return v
}

// NormalizePreference canonicalizes spellings in p. Unknown spellings are kept
// so validation can report them.
func NormalizePreference(p Preference) Preference {
	if m, ok := CanonicalMake(p.Make); ok {
		p.Make = m
	}
	p.Model = strings.TrimSpace(p.Model)
	if f, ok := CanonicalFuel(p.FuelType); ok {
		p.FuelType = f
	}
	if b, ok := CanonicalBodyClass(p.BodyClass); ok {
		p.BodyClass = b
	}
	p.Location = SanitizeText(p.Location)
	p.Description = SanitizeText(p.Description)
	p.Features = NormalizeFeatures(p.Features)
	return p
}

// NormalizeFeatures trims, drops blanks and duplicates, and caps the list.
func NormalizeFeatures(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, f := range in {
		f = truncateRunes(SanitizeText(f), MaxFeatureLen)
		key := strings.ToLower(f)
		if f == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
		if len(out) == MaxFeatures {
			break
		}
	}
	return out
}

// SanitizeText strips control characters, collapses whitespace, and bounds the length.
func SanitizeText(s string) string {
	if s == "" {
		return ""
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || (unicode.IsControl(r) && !unicode.IsSpace(r)) {
			return -1
		}
		return r
	}, s)
	return truncateRunes(strings.Join(strings.Fields(cleaned), " "), MaxTextLen)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
