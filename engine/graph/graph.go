// Package graph mirrors the vehicle catalog into Neo4j as
// Make -[:HAS_MODEL]-> VehicleModel -[:HAS_VEHICLE]-> Vehicle.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/pkg/repo"
)

// Mirror is what ingest and the API need from the graph.
type Mirror interface {
	SaveVehicles(ctx context.Context, vs []domain.Vehicle) error
	ModelsOf(ctx context.Context, make string) ([]string, error)
}

// GraphStore writes catalog nodes through a session opener.
type GraphStore struct {
	opener repo.Opener
	logger *slog.Logger
}

var _ Mirror = (*GraphStore)(nil)

// New creates a GraphStore. A nil logger uses slog.Default.
func New(opener repo.Opener, logger *slog.Logger) *GraphStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphStore{opener: opener, logger: logger.With("component", "graph")}
}

// MakeID is the node id of a make.
func MakeID(make string) string {
	return strings.ToLower(strings.TrimSpace(make))
}

// ModelID is the node id of a model, scoped to its make.
func ModelID(make, model string) string {
	m := strings.ToLower(strings.Join(strings.Fields(model), "-"))
	return fmt.Sprintf("%s-%s", MakeID(make), m)
}

// VehicleID is the node id of a catalog row: its VIN when present,
// otherwise the store id.
func VehicleID(v domain.Vehicle) string {
	if v.VIN != "" {
		return "vin-" + strings.ToUpper(v.VIN)
	}
	return fmt.Sprintf("row-%d", v.ID)
}

const (
	mergeMake = `MERGE (mk:Make {id: $id}) SET mk.name = $name`

	mergeModel = `MERGE (m:VehicleModel {id: $id}) SET m.name = $name, m.make_id = $makeID
	              WITH m
	              MATCH (mk:Make {id: $makeID})
	              MERGE (mk)-[:HAS_MODEL]->(m)`

	mergeVehicle = `MERGE (v:Vehicle {id: $id})
	                SET v.year = $year, v.price = $price, v.fuel_type = $fuel,
	                    v.body_class = $body, v.source = $source, v.store_id = $storeID
	                WITH v
	                MATCH (m:VehicleModel {id: $modelID})
	                MERGE (m)-[:HAS_VEHICLE]->(v)`

	modelsOfMake = `MATCH (:Make {id: $id})-[:HAS_MODEL]->(m:VehicleModel)
	                RETURN m.name AS name ORDER BY name`
)

// SaveVehicles merges every vehicle and its make and model in one write
// transaction. Vehicles without a make or model are skipped.
func (g *GraphStore) SaveVehicles(ctx context.Context, vs []domain.Vehicle) error {
	if len(vs) == 0 {
		return nil
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	err := sess.ExecuteWrite(ctx, func(tx repo.Runner) error {
		seenMake := map[string]bool{}
		seenModel := map[string]bool{}
		for _, v := range vs {
			if v.Make == "" || v.Model == "" {
				continue
			}
			makeID, modelID := MakeID(v.Make), ModelID(v.Make, v.Model)
			if !seenMake[makeID] {
				if _, err := tx.Run(ctx, mergeMake, map[string]any{"id": makeID, "name": v.Make}); err != nil {
					return err
				}
				seenMake[makeID] = true
			}
			if !seenModel[modelID] {
				params := map[string]any{"id": modelID, "name": v.Model, "makeID": makeID}
				if _, err := tx.Run(ctx, mergeModel, params); err != nil {
					return err
				}
				seenModel[modelID] = true
			}
			if _, err := tx.Run(ctx, mergeVehicle, vehicleParams(v, modelID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("graph: save vehicles: %w", err)
	}
	g.logger.Debug("mirrored vehicles", "count", len(vs))
	return nil
}

func vehicleParams(v domain.Vehicle, modelID string) map[string]any {
	return map[string]any{
		"id":      VehicleID(v),
		"year":    int64(v.Year),
		"price":   v.Price,
		"fuel":    v.FuelType,
		"body":    v.BodyClass,
		"source":  v.Source,
		"storeID": v.ID,
		"modelID": modelID,
	}
}

// ModelsOf returns the model names recorded for a make, sorted.
func (g *GraphStore) ModelsOf(ctx context.Context, make string) ([]string, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, modelsOfMake, map[string]any{"id": MakeID(make)})
	if err != nil {
		return nil, fmt.Errorf("graph: models of %s: %w", make, err)
	}
	names, err := repo.Collect[string](ctx, res, "name")
	if err != nil {
		return nil, fmt.Errorf("graph: models of %s: %w", make, err)
	}
	return names, nil
}
