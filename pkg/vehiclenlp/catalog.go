// Package vehiclenlp recognises vehicle makes, models, years, body classes,
// fuel types and features in free text using keyword tables and regexes.
package vehiclenlp

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
)

// Canonical body classes.
const (
	Sedan       = "Sedan"
	SUV         = "SUV"
	Truck       = "Truck"
	Coupe       = "Coupe"
	Hatchback   = "Hatchback"
	Wagon       = "Wagon"
	Van         = "Van"
	Minivan     = "Minivan"
	Convertible = "Convertible"
)

// makeAliases maps lowercase spellings and nicknames to canonical makes.
var makeAliases = map[string]string{
	"chevy": "Chevrolet", "chevrolet": "Chevrolet",
	"merc": "Mercedes-Benz", "benz": "Mercedes-Benz", "mercedes": "Mercedes-Benz", "mercedes-benz": "Mercedes-Benz",
	"vw": "Volkswagen", "volkswagen": "Volkswagen",
	"toyota": "Toyota", "honda": "Honda", "ford": "Ford", "bmw": "BMW", "audi": "Audi",
	"nissan": "Nissan", "hyundai": "Hyundai", "kia": "Kia", "subaru": "Subaru", "mazda": "Mazda",
	"jeep": "Jeep", "ram": "Ram", "gmc": "GMC", "dodge": "Dodge", "lexus": "Lexus", "acura": "Acura",
	"tesla": "Tesla", "porsche": "Porsche", "volvo": "Volvo", "buick": "Buick", "cadillac": "Cadillac",
	"lincoln": "Lincoln", "infiniti": "Infiniti", "genesis": "Genesis", "mitsubishi": "Mitsubishi",
	"chrysler": "Chrysler", "land rover": "Land Rover", "jaguar": "Jaguar", "alfa romeo": "Alfa Romeo",
	"fiat": "Fiat", "mini": "Mini", "rivian": "Rivian", "lucid": "Lucid", "polestar": "Polestar",
}

// catalog lists known models per make, grouped by body class.
var catalog = map[string]map[string][]string{
	"Toyota": {
		Sedan: {"Camry", "Corolla", "Prius", "Avalon"}, SUV: {"RAV4", "Highlander", "4Runner", "Venza", "C-HR", "Sequoia", "Land Cruiser"},
		Truck: {"Tacoma", "Tundra"}, Minivan: {"Sienna"}, Coupe: {"Supra", "GR86"},
	},
	"Honda": {
		Sedan: {"Civic", "Accord", "Insight"}, SUV: {"CR-V", "Pilot", "HR-V", "Passport"},
		Truck: {"Ridgeline"}, Minivan: {"Odyssey"}, Hatchback: {"Fit"},
	},
	"Ford": {
		Truck: {"F-150", "F-250", "F-350", "Ranger", "Maverick"}, Coupe: {"Mustang"},
		SUV: {"Explorer", "Escape", "Bronco", "Edge", "Expedition"}, Sedan: {"Fusion", "Focus"},
		Hatchback: {"Fiesta"}, Van: {"Transit"},
	},
	"Chevrolet": {
		Truck: {"Silverado", "Colorado"}, SUV: {"Equinox", "Tahoe", "Suburban", "Traverse", "Blazer", "Trax"},
		Sedan: {"Malibu", "Impala", "Cruze"}, Coupe: {"Camaro", "Corvette"}, Hatchback: {"Bolt", "Spark"},
	},
	"BMW": {
		Sedan: {"3 Series", "5 Series", "7 Series", "M3", "M5", "i4"}, Coupe: {"4 Series", "2 Series"},
		SUV: {"X1", "X3", "X5", "X6", "X7", "iX"},
	},
	"Mercedes-Benz": {
		Sedan: {"C-Class", "E-Class", "S-Class", "A-Class", "CLA", "EQS", "EQE"},
		SUV: {"GLC", "GLE", "GLA", "GLB", "GLS"}, Coupe: {"AMG GT"},
	},
	"Audi": {
		Sedan: {"A3", "A4", "A6", "A8", "S4"}, Coupe: {"A5", "RS5", "TT"}, Hatchback: {"RS7"},
		SUV: {"Q3", "Q5", "Q7", "Q8", "e-tron"},
	},
	"Nissan": {
		Sedan: {"Altima", "Sentra", "Maxima", "Versa"}, SUV: {"Rogue", "Pathfinder", "Murano", "Kicks", "Armada"},
		Truck: {"Frontier", "Titan"}, Coupe: {"Z"}, Hatchback: {"Leaf"},
	},
	"Hyundai": {
		Sedan: {"Elantra", "Sonata", "Accent", "Ioniq 6"}, SUV: {"Tucson", "Santa Fe", "Kona", "Palisade", "Ioniq 5", "Venue"},
		Truck: {"Santa Cruz"},
	},
	"Kia": {
		Sedan: {"Forte", "K5", "Stinger", "Rio"}, SUV: {"Sportage", "Telluride", "Sorento", "Seltos", "EV6", "EV9", "Niro"},
		Minivan: {"Carnival"}, Hatchback: {"Soul"},
	},
	"Volkswagen": {
		Hatchback: {"Golf", "GTI", "Beetle"}, Sedan: {"Jetta", "Passat", "Arteon"}, SUV: {"Tiguan", "Atlas", "Taos", "ID.4"},
	},
	"Subaru": {
		Wagon: {"Outback"}, SUV: {"Forester", "Crosstrek", "Ascent", "Solterra"}, Sedan: {"Impreza", "WRX", "Legacy"},
		Coupe: {"BRZ"},
	},
	"Mazda": {
		Sedan: {"Mazda3", "Mazda6"}, SUV: {"CX-5", "CX-9", "CX-30", "CX-50", "CX-90"}, Convertible: {"MX-5", "Miata"},
	},
	"Jeep": {
		SUV: {"Wrangler", "Grand Cherokee", "Cherokee", "Compass", "Renegade", "Grand Wagoneer", "Wagoneer"}, Truck: {"Gladiator"},
	},
	"Ram":        {Truck: {"1500", "2500", "3500"}, Van: {"ProMaster"}},
	"GMC":        {Truck: {"Sierra", "Canyon", "Hummer EV"}, SUV: {"Terrain", "Acadia", "Yukon"}},
	"Dodge":      {Sedan: {"Charger"}, Coupe: {"Challenger"}, SUV: {"Durango", "Hornet"}},
	"Lexus":      {SUV: {"RX", "NX", "GX", "LX", "UX"}, Sedan: {"ES", "IS", "LS"}, Coupe: {"LC", "RC"}},
	"Acura":      {Sedan: {"TLX", "ILX", "Integra"}, SUV: {"MDX", "RDX"}, Coupe: {"NSX"}},
	"Tesla":      {Sedan: {"Model 3", "Model S"}, SUV: {"Model Y", "Model X"}, Truck: {"Cybertruck"}},
	"Porsche":    {Coupe: {"911", "Cayman"}, Convertible: {"Boxster"}, SUV: {"Cayenne", "Macan"}, Sedan: {"Taycan", "Panamera"}},
	"Volvo":      {SUV: {"XC90", "XC60", "XC40", "C40"}, Sedan: {"S60", "S90"}, Wagon: {"V60", "V90"}},
	"Buick":      {SUV: {"Enclave", "Encore", "Envision"}, Sedan: {"Regal", "LaCrosse"}},
	"Cadillac":   {SUV: {"Escalade", "XT4", "XT5", "XT6", "Lyriq"}, Sedan: {"CT4", "CT5"}},
	"Lincoln":    {SUV: {"Navigator", "Aviator", "Corsair", "Nautilus"}},
	"Infiniti":   {Sedan: {"Q50"}, Coupe: {"Q60"}, SUV: {"QX50", "QX60", "QX80"}},
	"Genesis":    {Sedan: {"G70", "G80", "G90"}, SUV: {"GV60", "GV70", "GV80"}},
	"Mitsubishi": {SUV: {"Outlander", "Outlander Sport", "Eclipse Cross"}, Hatchback: {"Mirage"}},
	"Chrysler":   {Minivan: {"Pacifica"}, Sedan: {"300"}},
	"Land Rover": {SUV: {"Range Rover", "Range Rover Sport", "Defender", "Discovery", "Evoque"}},
	"Jaguar":     {SUV: {"F-Pace", "E-Pace", "I-Pace"}, Sedan: {"XF", "XE"}, Convertible: {"F-Type"}},
	"Alfa Romeo": {Sedan: {"Giulia"}, SUV: {"Stelvio", "Tonale"}},
	"Fiat":       {Hatchback: {"500"}, SUV: {"500X"}},
	"Mini":       {Hatchback: {"Cooper", "Clubman"}, SUV: {"Countryman"}},
	"Rivian":     {Truck: {"R1T"}, SUV: {"R1S"}},
	"Lucid":      {Sedan: {"Air"}},
	"Polestar":   {Sedan: {"Polestar 2"}, SUV: {"Polestar 3"}},
}

// bodyAliases maps lowercase body class spellings to canonical names.
var bodyAliases = map[string]string{
	"sedan": Sedan, "saloon": Sedan,
	"suv": SUV, "crossover": SUV, "cuv": SUV, "sport utility": SUV, "sport utility vehicle": SUV,
	"sport utility vehicle (suv)/multi-purpose vehicle (mpv)": SUV,
	"truck": Truck, "pickup": Truck, "pickup truck": Truck, "pick-up": Truck,
	"coupe": Coupe, "hatchback": Hatchback, "wagon": Wagon, "estate": Wagon, "van": Van, "cargo van": Van,
	"minivan": Minivan, "mpv": Minivan, "convertible": Convertible, "cabriolet": Convertible, "roadster": Convertible,
}

type modelInfo struct {
	make_, name, body string
}

var (
	// models maps make_lower -> model_lower -> info.
	models map[string]map[string]modelInfo
	// uniqueModels maps models that identify their make on their own.
	uniqueModels map[string]modelInfo
	// modelsByLength holds every make's models, longest name first.
	modelsByLength map[string][]modelInfo
	makeRe         *regexp.Regexp
)

func init() {
	models = make(map[string]map[string]modelInfo)
	modelsByLength = make(map[string][]modelInfo)
	uniqueModels = make(map[string]modelInfo)
	count := make(map[string]int)
	for mk, bodies := range catalog {
		ml := strings.ToLower(mk)
		models[ml] = make(map[string]modelInfo)
		for body, names := range bodies {
			for _, name := range names {
				info := modelInfo{make_: mk, name: name, body: body}
				models[ml][strings.ToLower(name)] = info
				modelsByLength[ml] = append(modelsByLength[ml], info)
				count[strings.ToLower(name)]++
			}
		}
		slices.SortFunc(modelsByLength[ml], func(a, b modelInfo) int {
			return cmp.Or(cmp.Compare(len(b.name), len(a.name)), cmp.Compare(a.name, b.name))
		})
	}
	for _, byModel := range models {
		for key, info := range byModel {
			if count[key] == 1 {
				uniqueModels[key] = info
			}
		}
	}

	aliases := make([]string, 0, len(makeAliases))
	for alias := range makeAliases {
		aliases = append(aliases, regexp.QuoteMeta(alias))
	}
	slices.SortFunc(aliases, func(a, b string) int {
		return cmp.Or(cmp.Compare(len(b), len(a)), cmp.Compare(a, b))
	})
	makeRe = regexp.MustCompile(`(?i)\b(` + strings.Join(aliases, "|") + `)(?:'s)?\b`)
}

// CanonicalMake maps a make spelling ("chevy", "VW") to its canonical name.
func CanonicalMake(s string) (string, bool) {
	m, ok := makeAliases[strings.ToLower(strings.TrimSpace(s))]
	return m, ok
}

// CanonicalBodyClass maps a body class spelling ("pickup", "crossover") to its canonical name.
func CanonicalBodyClass(s string) (string, bool) {
	b, ok := bodyAliases[strings.ToLower(strings.TrimSpace(s))]
	return b, ok
}

// BodyClassOf returns the body class of a known make and model, or "".
func BodyClassOf(make_, model string) string {
	mk, ok := CanonicalMake(make_)
	if !ok {
		return ""
	}
	info, ok := models[strings.ToLower(mk)][strings.ToLower(strings.TrimSpace(model))]
	if !ok {
		return ""
	}
	return info.body
}

// Makes returns every canonical make, sorted.
func Makes() []string {
	out := make([]string, 0, len(catalog))
	for mk := range catalog {
		out = append(out, mk)
	}
	slices.Sort(out)
	return out
}

// ModelsOf returns the known models of a make, sorted.
func ModelsOf(make_ string) []string {
	mk, ok := CanonicalMake(make_)
	if !ok {
		return nil
	}
	var out []string
	for _, info := range models[strings.ToLower(mk)] {
		out = append(out, info.name)
	}
	slices.Sort(out)
	return out
}
