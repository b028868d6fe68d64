package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/WessleyAI/carfinder/engine/domain"
)

// ErrBadHeader is returned when the CSV lacks a required column.
var ErrBadHeader = errors.New("ingest: bad csv header")

var requiredColumns = []string{"make", "model", "year"}

// Row is one CSV record. Err is set when a field could not be parsed.
type Row struct {
	Line    int
	Vehicle domain.Vehicle
	Err     error
}

// ParseCSV reads a vehicle catalog. Column names are case-insensitive and
// may appear in any order; unknown columns are ignored. Empty cells mean
// unknown.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrBadHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[name] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrBadHeader, c)
		}
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				rows = append(rows, Row{Line: perr.StartLine, Err: err})
				continue
			}
			return nil, fmt.Errorf("ingest: read csv: %w", err)
		}
		if blank(rec) {
			continue
		}
		line, _ := cr.FieldPos(0)
		v, err := rowVehicle(func(name string) string {
			if i, ok := cols[name]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		})
		rows = append(rows, Row{Line: line, Vehicle: v, Err: err})
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func rowVehicle(get func(string) string) (domain.Vehicle, error) {
	v := domain.Vehicle{
		VIN:          get("vin"),
		Make:         get("make"),
		Model:        get("model"),
		FuelType:     get("fuel_type"),
		Transmission: get("transmission"),
		BodyClass:    get("body_class"),
		Location:     get("location"),
		Description:  get("description"),
		Features:     ParseFeatures(get("features")),
	}
	var errs []error
	num := func(field string, dst *float64) {
		f, err := parseNumber(get(field))
		if err != nil {
			errs = append(errs, domain.NewValidationError(field, get(field), domain.ErrInvalidVehicle))
			return
		}
		*dst = f
	}
	var year, mileage, mpgCity, mpgHwy float64
	num("year", &year)
	num("price", &v.Price)
	num("mileage", &mileage)
	num("safety_rating", &v.SafetyRating)
	num("mpg_city", &mpgCity)
	num("mpg_highway", &mpgHwy)
	v.Year, v.Mileage, v.MPGCity, v.MPGHighway = int(year), int(mileage), int(mpgCity), int(mpgHwy)
	return v, errors.Join(errs...)
}

// parseNumber accepts "28,500", "$28500" and "" (zero).
func parseNumber(s string) (float64, error) {
	s = strings.NewReplacer("$", "", ",", "", "_", "").Replace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// ParseFeatures reads a feature cell. A JSON list is preferred and single-quoted
// lists are tolerated; anything else is split on ';', '|' or ','.
func ParseFeatures(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var out []string
		if json.Unmarshal([]byte(s), &out) == nil {
			return out
		}
		if json.Unmarshal([]byte(strings.ReplaceAll(s, "'", `"`)), &out) == nil {
			return out
		}
		s = strings.Trim(s, "[]")
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '|' || r == ',' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(strings.TrimSpace(p), `"'`); p != "" {
			out = append(out, p)
		}
	}
	return out
}
