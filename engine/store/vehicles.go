package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/WessleyAI/carfinder/engine/domain"
)

// Filter holds hard attribute filters. Zero fields are ignored. A row whose
// filtered column is NULL never matches.
type Filter struct {
	BudgetMin  float64
	BudgetMax  float64
	Make       string
	Model      string
	FuelType   string
	BodyClass  string
	MileageMax int
	YearMin    int
	// Source restricts rows to one origin, e.g. domain.SourceLocal.
	Source string
	Limit  int
}

// FilterFor derives the hard filters of p.
func FilterFor(p domain.Preference) Filter {
	return Filter{
		BudgetMin:  p.BudgetMin,
		BudgetMax:  p.BudgetMax,
		Make:       p.Make,
		Model:      p.Model,
		FuelType:   p.FuelType,
		BodyClass:  p.BodyClass,
		MileageMax: p.MileageMax,
		YearMin:    p.YearMin,
	}
}

func (f Filter) where() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}
	if f.BudgetMin > 0 {
		add("price >= ?", f.BudgetMin)
	}
	if f.BudgetMax > 0 {
		add("price <= ?", f.BudgetMax)
	}
	if f.Make != "" {
		add("make = ? COLLATE NOCASE", f.Make)
	}
	if f.Model != "" {
		add("model = ? COLLATE NOCASE", f.Model)
	}
	if f.FuelType != "" {
		add("fuel_type = ? COLLATE NOCASE", f.FuelType)
	}
	if f.BodyClass != "" {
		add("body_class = ? COLLATE NOCASE", f.BodyClass)
	}
	if f.MileageMax > 0 {
		add("mileage <= ?", f.MileageMax)
	}
	if f.YearMin > 0 {
		add("year >= ?", f.YearMin)
	}
	if f.Source != "" {
		add("source = ?", f.Source)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const insertVehicle = `
	INSERT INTO vehicles (vin, make, model, year, price, mileage, fuel_type, transmission, body_class,
		location, safety_rating, mpg_city, mpg_highway, description, features, source,
		embedding, embedding_model, created_at, updated_at)
	VALUES (:vin, :make, :model, :year, :price, :mileage, :fuel_type, :transmission, :body_class,
		:location, :safety_rating, :mpg_city, :mpg_highway, :description, :features, :source,
		:embedding, :embedding_model, :created_at, :updated_at)`

const updateVehicle = `
	UPDATE vehicles SET vin = :vin, make = :make, model = :model, year = :year, price = :price,
		mileage = :mileage, fuel_type = :fuel_type, transmission = :transmission, body_class = :body_class,
		location = :location, safety_rating = :safety_rating, mpg_city = :mpg_city, mpg_highway = :mpg_highway,
		description = :description, features = :features, source = :source, embedding = :embedding,
		embedding_model = :embedding_model, updated_at = :updated_at
	WHERE id = :id`

// Insert adds v and sets its ID and timestamps. A VIN already in the
// catalog yields ErrDuplicateVIN; a cached live listing with the VIN is
// replaced by a local v.
func (s *Store) Insert(ctx context.Context, v *domain.Vehicle) error {
	return s.write(ctx, func(e sqlx.ExtContext) error { return insert(ctx, e, v) })
}

// Insert adds v inside the transaction.
func (t *Tx) Insert(ctx context.Context, v *domain.Vehicle) error {
	return insert(ctx, t.tx, v)
}

// insert adds v. A local vehicle whose VIN is held by a cached live row
// replaces that row; any other VIN collision is ErrDuplicateVIN.
func insert(ctx context.Context, e sqlx.ExtContext, v *domain.Vehicle) error {
	if v.VIN != "" {
		var held struct {
			ID     int64  `db:"id"`
			Source string `db:"source"`
		}
		err := sqlx.GetContext(ctx, e, &held, `SELECT id, source FROM vehicles WHERE vin = ?`, v.VIN)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("store: check vin: %w", err)
		case held.Source == domain.SourceLocal || !isLocal(*v):
			return fmt.Errorf("%w: %s", ErrDuplicateVIN, v.VIN)
		default:
			if _, err := deleteWhere(ctx, e, `id = ?`, held.ID); err != nil {
				return err
			}
		}
	}
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now
	res, err := sqlx.NamedExecContext(ctx, e, insertVehicle, toRow(*v))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateVIN, v.VIN)
		}
		return fmt.Errorf("store: insert %s: %w", v.Title(), err)
	}
	if v.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("store: insert id: %w", err)
	}
	return nil
}

func isLocal(v domain.Vehicle) bool {
	return v.Source == "" || v.Source == domain.SourceLocal
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Update overwrites every column of the row with v.ID. When the update
// changes the vehicle's embedding text, the stored embedding is cleared and
// v comes back without one so reindex picks the row up; otherwise a v without
// an embedding keeps the stored one.
func (s *Store) Update(ctx context.Context, v *domain.Vehicle) error {
	return s.write(ctx, func(e sqlx.ExtContext) error {
		var cur vehicleRow
		err := sqlx.GetContext(ctx, e, &cur, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = ?`, v.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: id %d", ErrNotFound, v.ID)
		}
		if err != nil {
			return fmt.Errorf("store: update %d: %w", v.ID, err)
		}
		switch old := cur.vehicle(); {
		case domain.EmbeddingText(old) != domain.EmbeddingText(*v):
			v.Embedding, v.EmbeddingModel = nil, ""
		case len(v.Embedding) == 0:
			v.Embedding, v.EmbeddingModel = old.Embedding, old.EmbeddingModel
		}
		v.CreatedAt, v.UpdatedAt = cur.CreatedAt, time.Now().UTC()
		res, err := sqlx.NamedExecContext(ctx, e, updateVehicle, toRow(*v))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateVIN, v.VIN)
			}
			return fmt.Errorf("store: update %d: %w", v.ID, err)
		}
		return expectOne(res, v.ID)
	})
}

// UpdateEmbedding stores a recomputed embedding for one vehicle.
func (s *Store) UpdateEmbedding(ctx context.Context, id int64, vec []float32, model string) error {
	return s.write(ctx, func(e sqlx.ExtContext) error {
		res, err := e.ExecContext(ctx,
			`UPDATE vehicles SET embedding = ?, embedding_model = ?, updated_at = ? WHERE id = ?`,
			EncodeVector(vec), model, time.Now().UTC(), id)
		if err != nil {
			return fmt.Errorf("store: update embedding %d: %w", id, err)
		}
		return expectOne(res, id)
	})
}

func expectOne(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// Get returns the vehicle with id.
func (s *Store) Get(ctx context.Context, id int64) (domain.Vehicle, error) {
	return s.getOne(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = ?`, id)
}

// GetByVIN returns the vehicle with the given VIN.
func (s *Store) GetByVIN(ctx context.Context, vin string) (domain.Vehicle, error) {
	return s.getOne(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE vin = ?`, strings.ToUpper(vin))
}

func (s *Store) getOne(ctx context.Context, query string, arg any) (domain.Vehicle, error) {
	var r vehicleRow
	if err := s.db.GetContext(ctx, &r, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Vehicle{}, fmt.Errorf("%w: %v", ErrNotFound, arg)
		}
		return domain.Vehicle{}, fmt.Errorf("store: get: %w", err)
	}
	return r.vehicle(), nil
}

// GetMany loads the vehicles with the given ids. Missing ids are absent from the map.
func (s *Store) GetMany(ctx context.Context, ids []int64) (map[int64]domain.Vehicle, error) {
	out := make(map[int64]domain.Vehicle, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT `+vehicleColumns+` FROM vehicles WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("store: get many: %w", err)
	}
	var rows []vehicleRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("store: get many: %w", err)
	}
	for _, r := range rows {
		out[r.ID] = r.vehicle()
	}
	return out, nil
}

// List returns vehicles passing f, ordered by id.
func (s *Store) List(ctx context.Context, f Filter) ([]domain.Vehicle, error) {
	where, args := f.where()
	query := `SELECT ` + vehicleColumns + ` FROM vehicles` + where + ` ORDER BY id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	var rows []vehicleRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	out := make([]domain.Vehicle, len(rows))
	for i, r := range rows {
		out[i] = r.vehicle()
	}
	return out, nil
}

// Count returns the number of vehicles passing f.
func (s *Store) Count(ctx context.Context, f Filter) (int, error) {
	where, args := f.where()
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM vehicles`+where, args...); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Embedding is a stored vector keyed by vehicle id.
type Embedding struct {
	ID     int64     `db:"id"`
	Vector []float32 `db:"-"`
	Model  string    `db:"-"`
}

// Embeddings returns every stored embedding produced by model.
func (s *Store) Embeddings(ctx context.Context, model string) ([]Embedding, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, embedding FROM vehicles WHERE embedding IS NOT NULL AND embedding_model = ? ORDER BY id`, model)
	if err != nil {
		return nil, fmt.Errorf("store: embeddings: %w", err)
	}
	defer rows.Close()
	var out []Embedding
	for rows.Next() {
		var (
			id   int64
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("store: scan embedding: %w", err)
		}
		out = append(out, Embedding{ID: id, Vector: DecodeVector(blob), Model: model})
	}
	return out, rows.Err()
}

// Stale returns vehicles with no embedding or one produced by a different model.
func (s *Store) Stale(ctx context.Context, model string) ([]domain.Vehicle, error) {
	var rows []vehicleRow
	err := s.db.SelectContext(ctx, &rows, `SELECT `+vehicleColumns+` FROM vehicles
		WHERE embedding IS NULL OR embedding_model IS NULL OR embedding_model != ? ORDER BY id`, model)
	if err != nil {
		return nil, fmt.Errorf("store: stale: %w", err)
	}
	out := make([]domain.Vehicle, len(rows))
	for i, r := range rows {
		out[i] = r.vehicle()
	}
	return out, nil
}

// Delete removes one vehicle.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.write(ctx, func(e sqlx.ExtContext) error {
		res, err := e.ExecContext(ctx, `DELETE FROM vehicles WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("store: delete %d: %w", id, err)
		}
		return expectOne(res, id)
	})
}

// DeleteAll removes every local catalog row and returns how many were removed.
func (t *Tx) DeleteAll(ctx context.Context) (int64, error) {
	return deleteWhere(ctx, t.tx, `source = ?`, domain.SourceLocal)
}

// DeleteLive removes cached live listings.
func (s *Store) DeleteLive(ctx context.Context) (int64, error) {
	var n int64
	err := s.write(ctx, func(e sqlx.ExtContext) error {
		var err error
		n, err = deleteWhere(ctx, e, `source != ?`, domain.SourceLocal)
		return err
	})
	return n, err
}

func deleteWhere(ctx context.Context, e sqlx.ExtContext, cond string, args ...any) (int64, error) {
	res, err := e.ExecContext(ctx, `DELETE FROM vehicles WHERE `+cond, args...)
	if err != nil {
		return 0, fmt.Errorf("store: delete: %w", err)
	}
	return res.RowsAffected()
}

// SaveLive caches a live listing. A VIN already present as a local row is
// left alone and reported as false; a cached live row with the same VIN is refreshed.
func (s *Store) SaveLive(ctx context.Context, v *domain.Vehicle) (bool, error) {
	if v.Source == "" || v.Source == domain.SourceLocal {
		return false, fmt.Errorf("store: save live: source %q is not a live source", v.Source)
	}
	saved := false
	err := s.write(ctx, func(e sqlx.ExtContext) error {
		if v.VIN != "" {
			var r vehicleRow
			err := sqlx.GetContext(ctx, e, &r, `SELECT `+vehicleColumns+` FROM vehicles WHERE vin = ?`, v.VIN)
			switch {
			case err == nil && r.Source == domain.SourceLocal:
				return nil
			case err == nil:
				v.ID, v.CreatedAt, v.UpdatedAt = r.ID, r.CreatedAt, time.Now().UTC()
				if _, err := sqlx.NamedExecContext(ctx, e, updateVehicle, toRow(*v)); err != nil {
					return fmt.Errorf("store: refresh live %s: %w", v.VIN, err)
				}
				saved = true
				return nil
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("store: lookup vin: %w", err)
			}
		}
		if err := insert(ctx, e, v); err != nil {
			return err
		}
		saved = true
		return nil
	})
	return saved, err
}

// Stats summarizes the catalog.
type Stats struct {
	Total       int     `json:"total_vehicles" db:"total"`
	Local       int     `json:"local_vehicles" db:"local"`
	Live        int     `json:"cached_live_listings" db:"live"`
	Embedded    int     `json:"embedded" db:"embedded"`
	UniqueMakes int     `json:"unique_makes" db:"unique_makes"`
	MinPrice    float64 `json:"min_price" db:"min_price"`
	MaxPrice    float64 `json:"max_price" db:"max_price"`
}

// Stats returns catalog totals and the price range.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.GetContext(ctx, &st, `
		SELECT COUNT(*) AS total,
			COALESCE(SUM(source = 'local'), 0) AS local,
			COALESCE(SUM(source != 'local'), 0) AS live,
			COALESCE(SUM(embedding IS NOT NULL), 0) AS embedded,
			COUNT(DISTINCT lower(make)) AS unique_makes,
			COALESCE(MIN(price), 0) AS min_price,
			COALESCE(MAX(price), 0) AS max_price
		FROM vehicles`)
	if err != nil {
		return Stats{}, fmt.Errorf("store: stats: %w", err)
	}
	return st, nil
}
