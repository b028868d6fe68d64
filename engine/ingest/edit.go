package ingest

import (
	"context"
	"fmt"

	"github.com/WessleyAI/carfinder/engine/domain"
)

// Update validates and stores an edited vehicle. If the edit changed the
// embedding text the vehicle is re-embedded; a failed embedding leaves it
// stale for the next reindex. The index is rebuilt either way.
func (p *Pipeline) Update(ctx context.Context, v domain.Vehicle) (domain.Vehicle, error) {
	v = domain.NormalizeVehicle(v)
	if v.Source == "" {
		v.Source = domain.SourceLocal
	}
	if err := domain.ValidateVehicle(v); err != nil {
		return v, err
	}
	if err := p.deps.Store.Update(ctx, &v); err != nil {
		return v, fmt.Errorf("ingest: update: %w", err)
	}
	if len(v.Embedding) == 0 {
		vec, err := p.embed(ctx, v).Unwrap()
		if err != nil {
			p.logger.Warn("embedding failed, vehicle left stale", "id", v.ID, "vehicle", v.Title(), "err", err)
		} else {
			if err := p.deps.Store.UpdateEmbedding(ctx, v.ID, vec, p.deps.Embedder.Model()); err != nil {
				return v, fmt.Errorf("ingest: update: %w", err)
			}
			v.Embedding, v.EmbeddingModel = vec, p.deps.Embedder.Model()
		}
	}
	p.mirror(ctx, []domain.Vehicle{v})
	if _, err := p.BuildIndex(ctx); err != nil {
		p.logger.Warn("index rebuild failed", "err", err)
	}
	p.logger.Info("vehicle updated", "id", v.ID, "vehicle", v.Title())
	return v, nil
}

// Remove deletes a vehicle and rebuilds the index without it.
func (p *Pipeline) Remove(ctx context.Context, id int64) error {
	if err := p.deps.Store.Delete(ctx, id); err != nil {
		return fmt.Errorf("ingest: remove: %w", err)
	}
	if _, err := p.BuildIndex(ctx); err != nil {
		p.logger.Warn("index rebuild failed", "err", err)
	}
	p.logger.Info("vehicle removed", "id", id)
	return nil
}
