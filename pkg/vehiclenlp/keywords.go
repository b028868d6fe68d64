package vehiclenlp

import (
	"regexp"
	"strings"
)

type keyword struct {
	re    *regexp.Regexp
	value string
}

func kw(pattern, value string) keyword {
	return keyword{re: regexp.MustCompile(`(?i)\b(?:` + pattern + `)\b`), value: value}
}

// Ordered so that the more specific phrase wins ("minivan" before "van").
var bodyKeywords = []keyword{
	kw(`mini-?vans?|mpvs?`, Minivan),
	kw(`pick-?ups?|trucks?|1500|2500|3500`, Truck),
	kw(`suvs?|crossovers?|cuvs?`, SUV),
	kw(`sedans?|saloons?`, Sedan),
	kw(`coupes?`, Coupe),
	kw(`hatch(?:back)?s?`, Hatchback),
	kw(`wagons?|estates?`, Wagon),
	kw(`convertibles?|cabriolets?|roadsters?`, Convertible),
	kw(`vans?`, Van),
}

// Fuel names match the canonical fuel types used by the catalog.
var fuelKeywords = []keyword{
	kw(`plug-?in hybrid|hybrids?|phev`, "Hybrid"),
	kw(`electric|evs?|bev|battery[- ]powered`, "Electric"),
	kw(`diesels?|tdi`, "Diesel"),
	kw(`gas(?:oline)?|petrol`, "Gasoline"),
}

var featureKeywords = []keyword{
	kw(`backup cam(?:era)?|rear(?:view)? cam(?:era)?|reverse cam(?:era)?`, "Backup Camera"),
	kw(`navigation|nav|gps`, "Navigation"),
	kw(`heated seats?`, "Heated Seats"),
	kw(`sun ?roof|moon ?roof`, "Sunroof"),
	kw(`bluetooth`, "Bluetooth"),
	kw(`apple carplay|carplay|android auto`, "Apple CarPlay"),
	kw(`awd|all[- ]wheel[- ]drive`, "AWD"),
	kw(`4wd|4x4|four[- ]wheel[- ]drive`, "4WD"),
	kw(`third[- ]row|3rd row|7[- ]seater`, "Third Row Seating"),
	kw(`leather(?: seats)?`, "Leather Seats"),
	kw(`adaptive cruise(?: control)?`, "Adaptive Cruise Control"),
	kw(`blind[- ]spot(?: monitor(?:ing)?)?`, "Blind Spot Monitoring"),
	kw(`tow(?:ing)? package|tow hitch`, "Towing Package"),
}

// BodyClass returns the first body class keyword found in text, or "".
func BodyClass(text string) string {
	return first(bodyKeywords, text)
}

// FuelType returns the fuel type named in text, or "". "gas mileage" is not a fuel mention.
func FuelType(text string) string {
	return first(fuelKeywords, strings.NewReplacer("gas mileage", "", "Gas mileage", "").Replace(text))
}

// Features returns every known feature named in text, in table order.
func Features(text string) []string {
	var out []string
	for _, k := range featureKeywords {
		if k.re.MatchString(text) {
			out = append(out, k.value)
		}
	}
	return out
}

func first(table []keyword, text string) string {
	for _, k := range table {
		if k.re.MatchString(text) {
			return k.value
		}
	}
	return ""
}
