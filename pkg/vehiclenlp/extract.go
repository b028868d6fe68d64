package vehiclenlp

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"
)

// Mention is a vehicle named in free text.
type Mention struct {
	Make       string  // e.g. "Honda"
	Model      string  // e.g. "Civic", empty when only the make was named
	Year       int     // 0 if not found
	BodyClass  string  // body class of the model, if known
	Confidence float64 // 0.0-1.0
	Inferred   bool    // make implied by a model named without it
}

// Ambiguous reports whether the mention is a bare numeric model such as
// "2500", which names a series rather than a particular make.
func (m Mention) Ambiguous() bool {
	if !m.Inferred || m.Model == "" {
		return false
	}
	return strings.IndexFunc(m.Model, func(r rune) bool { return !unicode.IsDigit(r) }) < 0
}

var (
	yearFullRe = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	yearAbbrRe = regexp.MustCompile(`'(\d{2})\b`)
)

// Extract finds every vehicle mention in text, highest confidence first.
func Extract(text string) []Mention {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []Mention
	seen := make(map[string]bool)
	add := func(m Mention) {
		key := m.Make + "|" + m.Model + "|" + strconv.Itoa(m.Year)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, m)
	}

	for _, loc := range makeRe.FindAllStringSubmatchIndex(text, -1) {
		mk := makeAliases[strings.ToLower(text[loc[2]:loc[3]])]
		if mk == "" {
			continue
		}
		after := text[loc[1]:min(loc[1]+40, len(text))]
		info, span := modelAfter(mk, after)

		before := text[max(0, loc[0]-10):loc[0]]
		year := fullYear(before)
		if year == 0 {
			year = fullYear(after[span:])
		}
		if year == 0 {
			year = abbrYear(before)
		}

		m := Mention{Make: mk, Model: info.name, Year: year, BodyClass: info.body}
		switch {
		case year > 0 && m.Model != "":
			m.Confidence = 0.95
		case m.Model != "":
			m.Confidence = 0.80
		case year > 0:
			m.Confidence = 0.70
		default:
			m.Confidence = 0.60
		}
		add(m)
		// A bare make followed later by a model should not also surface the model alone.
		if m.Model != "" {
			seen[mk+"|"+m.Model+"|0"] = true
		}
	}

	for _, m := range standaloneModels(text) {
		add(m)
	}

	slices.SortStableFunc(out, func(a, b Mention) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
	return out
}

// ExtractBest returns the highest-confidence mention, or nil.
func ExtractBest(text string) *Mention {
	ms := Extract(text)
	if len(ms) == 0 {
		return nil
	}
	return &ms[0]
}

// modelAfter matches a model of mk at the start of after. span is the byte
// offset just past the model, or 0 when no model matched.
func modelAfter(mk, after string) (modelInfo, int) {
	trimmed := strings.TrimLeftFunc(after, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\'' || r == '’'
	})
	offset := len(after) - len(trimmed)
	lower := strings.ToLower(trimmed)
	for _, info := range modelsByLength[strings.ToLower(mk)] {
		name := strings.ToLower(info.name)
		if !strings.HasPrefix(lower, name) || !boundaryAt(lower, len(name)) {
			continue
		}
		return info, offset + len(name)
	}
	return modelInfo{}, 0
}

// standaloneModels finds distinctive models mentioned without their make.
func standaloneModels(text string) []Mention {
	lower := strings.ToLower(text)
	var out []Mention
	for key, info := range uniqueModels {
		// Very short names like "Z" or "ES" collide with ordinary words.
		if len(key) <= 2 {
			continue
		}
		idx := wordIndex(lower, key)
		if idx < 0 {
			continue
		}
		end := idx + len(key)
		near := text[max(0, idx-12):min(end+12, len(text))]
		year := fullYear(near)
		if year == 0 {
			year = abbrYear(text[max(0, idx-12):idx])
		}
		conf := 0.50
		if year > 0 {
			conf = 0.75
		}
		out = append(out, Mention{Make: info.make_, Model: info.name, Year: year, BodyClass: info.body, Confidence: conf, Inferred: true})
	}
	// Map order is random; keep results stable.
	slices.SortFunc(out, func(a, b Mention) int {
		return cmp.Or(cmp.Compare(a.Make, b.Make), cmp.Compare(a.Model, b.Model))
	})
	return out
}

// wordIndex returns the first index of word in s that sits on word boundaries.
func wordIndex(s, word string) int {
	from := 0
	for {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return -1
		}
		i += from
		if boundaryBefore(s, i) && boundaryAt(s, i+len(word)) {
			return i
		}
		from = i + 1
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r := rune(s[i-1])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAt(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r := rune(s[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func fullYear(s string) int {
	m := yearFullRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	y, _ := strconv.Atoi(m[1])
	if y < 1980 || y > 2030 {
		return 0
	}
	return y
}

func abbrYear(s string) int {
	m := yearAbbrRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	yy, _ := strconv.Atoi(m[1])
	switch {
	case yy <= 30:
		return 2000 + yy
	case yy >= 80:
		return 1900 + yy
	}
	return 0
}
