package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// MakeStats holds the model and vehicle counts of a make.
type MakeStats struct {
	Name     string `json:"name"`
	Models   int64  `json:"models"`
	Vehicles int64  `json:"vehicles"`
}

// TopMakes returns makes ordered by vehicle count.
func (g *GraphStore) TopMakes(ctx context.Context, limit int) ([]MakeStats, error) {
	if limit <= 0 {
		limit = 10
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	const cypher = `MATCH (mk:Make)
		OPTIONAL MATCH (mk)-[:HAS_MODEL]->(m:VehicleModel)
		OPTIONAL MATCH (m)-[:HAS_VEHICLE]->(v:Vehicle)
		RETURN mk.name AS name, count(DISTINCT m) AS models, count(DISTINCT v) AS vehicles
		ORDER BY vehicles DESC, name LIMIT $limit`
	result, err := sess.Run(ctx, cypher, map[string]any{"limit": int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("graph: top makes: %w", err)
	}
	var stats []MakeStats
	for result.Next(ctx) {
		rec := result.Record()
		name, _, _ := neo4j.GetRecordValue[string](rec, "name")
		models, _, _ := neo4j.GetRecordValue[int64](rec, "models")
		vehicles, _, _ := neo4j.GetRecordValue[int64](rec, "vehicles")
		stats = append(stats, MakeStats{Name: name, Models: models, Vehicles: vehicles})
	}
	return stats, result.Err()
}
