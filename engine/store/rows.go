package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"math"
	"time"

	"github.com/WessleyAI/carfinder/engine/domain"
)

const vehicleColumns = `id, vin, make, model, year, price, mileage, fuel_type, transmission, body_class,
	location, safety_rating, mpg_city, mpg_highway, description, features, source,
	embedding, embedding_model, created_at, updated_at`

type vehicleRow struct {
	ID             int64           `db:"id"`
	VIN            sql.NullString  `db:"vin"`
	Make           string          `db:"make"`
	Model          string          `db:"model"`
	Year           int             `db:"year"`
	Price          sql.NullFloat64 `db:"price"`
	Mileage        sql.NullInt64   `db:"mileage"`
	FuelType       sql.NullString  `db:"fuel_type"`
	Transmission   sql.NullString  `db:"transmission"`
	BodyClass      sql.NullString  `db:"body_class"`
	Location       sql.NullString  `db:"location"`
	SafetyRating   sql.NullFloat64 `db:"safety_rating"`
	MPGCity        sql.NullInt64   `db:"mpg_city"`
	MPGHighway     sql.NullInt64   `db:"mpg_highway"`
	Description    string          `db:"description"`
	Features       string          `db:"features"`
	Source         string          `db:"source"`
	Embedding      []byte          `db:"embedding"`
	EmbeddingModel sql.NullString  `db:"embedding_model"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func toRow(v domain.Vehicle) vehicleRow {
	features, _ := json.Marshal(nonNil(v.Features))
	r := vehicleRow{
		ID:             v.ID,
		VIN:            nullString(v.VIN),
		Make:           v.Make,
		Model:          v.Model,
		Year:           v.Year,
		Price:          nullFloat(v.Price),
		Mileage:        sql.NullInt64{Int64: int64(v.Mileage), Valid: true},
		FuelType:       nullString(v.FuelType),
		Transmission:   nullString(v.Transmission),
		BodyClass:      nullString(v.BodyClass),
		Location:       nullString(v.Location),
		SafetyRating:   nullFloat(v.SafetyRating),
		MPGCity:        nullInt(v.MPGCity),
		MPGHighway:     nullInt(v.MPGHighway),
		Description:    v.Description,
		Features:       string(features),
		Source:         v.Source,
		EmbeddingModel: nullString(v.EmbeddingModel),
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
	if len(v.Embedding) > 0 {
		r.Embedding = EncodeVector(v.Embedding)
	}
	if r.Source == "" {
		r.Source = domain.SourceLocal
	}
	return r
}

func (r vehicleRow) vehicle() domain.Vehicle {
	v := domain.Vehicle{
		ID:             r.ID,
		VIN:            r.VIN.String,
		Make:           r.Make,
		Model:          r.Model,
		Year:           r.Year,
		Price:          r.Price.Float64,
		Mileage:        int(r.Mileage.Int64),
		FuelType:       r.FuelType.String,
		Transmission:   r.Transmission.String,
		BodyClass:      r.BodyClass.String,
		Location:       r.Location.String,
		SafetyRating:   r.SafetyRating.Float64,
		MPGCity:        int(r.MPGCity.Int64),
		MPGHighway:     int(r.MPGHighway.Int64),
		Description:    r.Description,
		Source:         r.Source,
		EmbeddingModel: r.EmbeddingModel.String,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.Features != "" {
		_ = json.Unmarshal([]byte(r.Features), &v.Features)
	}
	if len(r.Embedding) > 0 {
		v.Embedding = DecodeVector(r.Embedding)
	}
	return v
}

// EncodeVector packs v as little-endian float32s.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks a blob written by EncodeVector.
func DecodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Zero is unknown for these columns and is stored as NULL.
func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f > 0}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n > 0}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
