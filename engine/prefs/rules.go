package prefs

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/pkg/vehiclenlp"
)

var (
	amountRe = regexp.MustCompile(`(?i)(\$\s?)?(\d{1,3}(?:,\d{3})+|\d+(?:\.\d+)?)(?:\s*(k|thousand|grand|mil|million)\b)?`)

	dollarsAfterRe = regexp.MustCompile(`(?i)^\s*(?:dollars|bucks|usd)\b`)
	milesAfterRe   = regexp.MustCompile(`(?i)^\s*(?:miles?|mi)\b`)
	rangeGapRe     = regexp.MustCompile(`(?i)^\s*(?:-|–|to|and)\s*$`)
	minCueRe       = regexp.MustCompile(`(?i)\b(?:over|above|at least|more than|minimum|min|from|starting at)\s*$`)
	betweenCueRe   = regexp.MustCompile(`(?i)\bbetween\s*$`)

	yearOrNewerRe = regexp.MustCompile(`(?i)\b((?:19|20)\d{2})\s*(?:\+|or\s+(?:newer|later|above)|and\s+(?:newer|up|later|above))`)
	yearAfterRe   = regexp.MustCompile(`(?i)\b(?:newer than|after)\s+((?:19|20)\d{2})\b`)
	yearSinceRe   = regexp.MustCompile(`(?i)\b(?:since|from|at least|no older than)\s+((?:19|20)\d{2})\b`)

	locationRe = regexp.MustCompile(`(?:^|[\s,])(?i:near|in|around|close to|outside(?: of)?)\s+([A-Z][A-Za-z.'-]+(?:\s+[A-Z][A-Za-z.'-]+){0,2}(?:,\s*[A-Z]{2})?)`)
	zipRe      = regexp.MustCompile(`(?i)\b(?:near|in|around|zip(?:\s*code)?:?)\s+(\d{5})\b`)

	priorityCueRe = regexp.MustCompile(`(?i)\b(?:matters?|important|priorit\w*|care (?:most )?about|focus(?:ed)? on|top concern|most of all)`)
	searchCueRe   = regexp.MustCompile(`(?i)\b(?:search|find|show me|look(?:ing)? up|results|recommend\w*|ready|go ahead|let'?s see)\b`)
)

var priorityKeywords = []struct {
	re  *regexp.Regexp
	obj domain.Objective
}{
	{regexp.MustCompile(`(?i)\bsafe(?:ty|st)?\b`), domain.ObjectiveSafety},
	{regexp.MustCompile(`(?i)\b(?:reliab\w*|dependab\w*)`), domain.ObjectiveReliability},
	{regexp.MustCompile(`(?i)\b(?:fuel econom\w*|efficien\w*|mpg|gas mileage)`), domain.ObjectiveEfficiency},
	{regexp.MustCompile(`(?i)\b(?:price|cost|cheap\w*|afford\w*|value)\b`), domain.ObjectivePrice},
	{regexp.MustCompile(`(?i)\b(?:features?|tech(?:nology)?)\b`), domain.ObjectiveFeatures},
}

type amount struct {
	value      float64
	start, end int
	miles      bool
}

// Rules extracts a preference update from text with keyword and pattern
// matching only. Fields not mentioned are left zero.
func Rules(text string) domain.Preference {
	var p domain.Preference
	if strings.TrimSpace(text) == "" {
		return p
	}

	extractAmounts(text, &p)
	p.YearMin = extractYear(text)

	if m := vehiclenlp.ExtractBest(text); m != nil {
		// "a 2500" is a truck class, not a Ram.
		if !m.Ambiguous() {
			p.Make, p.Model = m.Make, m.Model
		}
		if m.BodyClass != "" {
			p.BodyClass = m.BodyClass
		}
		if p.YearMin == 0 {
			p.YearMin = m.Year
		}
	}
	if body := vehiclenlp.BodyClass(text); body != "" {
		p.BodyClass = body
	}
	p.FuelType = vehiclenlp.FuelType(text)
	p.Features = vehiclenlp.Features(text)
	p.Location = extractLocation(text)
	p.Priorities = extractPriorities(text)

	if !p.HasHardFilters() && !WantsSearch(text) && len(strings.Fields(text)) >= 3 {
		p.Description = text
	}
	return p
}

// WantsSearch reports whether text asks to run a search.
func WantsSearch(text string) bool {
	return searchCueRe.MatchString(text)
}

func extractAmounts(text string, p *domain.Preference) {
	var money []amount
	for _, loc := range amountRe.FindAllStringSubmatchIndex(text, -1) {
		a, ok := parseAmount(text, loc)
		if !ok {
			continue
		}
		if a.miles {
			p.MileageMax = int(a.value)
			continue
		}
		money = append(money, a)
	}

	for i := 0; i < len(money); i++ {
		a := money[i]
		if i+1 < len(money) && rangeGapRe.MatchString(text[a.end:money[i+1].start]) {
			lo, hi := a.value, money[i+1].value
			if lo > hi {
				lo, hi = hi, lo
			}
			p.BudgetMin, p.BudgetMax = lo, hi
			i++
			continue
		}
		prefix := text[max(0, a.start-20):a.start]
		switch {
		case betweenCueRe.MatchString(prefix):
			p.BudgetMin = a.value
		case minCueRe.MatchString(prefix):
			p.BudgetMin = a.value
		default:
			p.BudgetMax = a.value
		}
	}
}

// parseAmount decides whether a numeric match is money, mileage or neither.
// Bare integers such as years or model numbers are neither.
func parseAmount(text string, loc []int) (amount, bool) {
	hasDollar := loc[2] >= 0
	digits := text[loc[4]:loc[5]]
	unit := ""
	if loc[6] >= 0 {
		unit = strings.ToLower(text[loc[6]:loc[7]])
	}
	// Skip digits that are part of a name, as in "F-150" or "X5".
	if i := loc[0]; i > 0 && !hasDollar {
		if isAlnum(text[i-1]) || text[i-1] == '-' && isModelPrefix(text[:i-1]) {
			return amount{}, false
		}
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(digits, ",", ""), 64)
	if err != nil {
		return amount{}, false
	}
	switch unit {
	case "k", "thousand", "grand":
		v *= 1_000
	case "mil", "million":
		v *= 1_000_000
	}

	rest := text[loc[1]:]
	a := amount{value: v, start: loc[0], end: loc[1]}
	switch {
	case milesAfterRe.MatchString(rest):
		a.miles = true
		return a, unit != "" || strings.Contains(digits, ",") || v >= 1000
	case hasDollar, unit != "", strings.Contains(digits, ","), dollarsAfterRe.MatchString(rest):
		return a, true
	}
	return amount{}, false
}

// isModelPrefix reports whether s ends in a letters-only word, like "F" in
// "F-150", as opposed to "20k" in "20k-30k".
func isModelPrefix(s string) bool {
	i := len(s)
	for i > 0 && isLetter(s[i-1]) {
		i--
	}
	return i < len(s) && (i == 0 || !isAlnum(s[i-1]))
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func isAlnum(b byte) bool {
	return b >= '0' && b <= '9' || isLetter(b)
}

func extractYear(text string) int {
	if m := yearOrNewerRe.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[1])
		return y
	}
	if m := yearAfterRe.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[1])
		return y + 1
	}
	if m := yearSinceRe.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[1])
		return y
	}
	return 0
}

func extractLocation(text string) string {
	for _, m := range locationRe.FindAllStringSubmatch(text, -1) {
		place := strings.TrimRight(m[1], ".'-")
		first, _, _ := strings.Cut(place, " ")
		if isVehicleWord(first) {
			continue
		}
		return place
	}
	if m := zipRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// isVehicleWord rejects "in Hybrid" or "in Toyota" as a place.
func isVehicleWord(w string) bool {
	if _, ok := vehiclenlp.CanonicalMake(w); ok {
		return true
	}
	return vehiclenlp.BodyClass(w) != "" || vehiclenlp.FuelType(w) != "" ||
		slices.Contains([]string{"I", "My", "The", "A", "An"}, w)
}

// extractPriorities orders the objectives named in text by first mention,
// but only when the text says something matters.
func extractPriorities(text string) []domain.Objective {
	if !priorityCueRe.MatchString(text) {
		return nil
	}
	type hit struct {
		at  int
		obj domain.Objective
	}
	var hits []hit
	for _, k := range priorityKeywords {
		if loc := k.re.FindStringIndex(text); loc != nil {
			hits = append(hits, hit{loc[0], k.obj})
		}
	}
	slices.SortFunc(hits, func(a, b hit) int { return a.at - b.at })
	out := make([]domain.Objective, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.obj)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
