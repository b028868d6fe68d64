package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/engine/semantic"
	"github.com/WessleyAI/carfinder/engine/store"
	"github.com/WessleyAI/carfinder/pkg/fn"
	"github.com/WessleyAI/carfinder/pkg/natsutil"
)

// ReindexReport summarizes a reindex run.
type ReindexReport struct {
	Candidates int           `json:"candidates"`
	Embedded   int           `json:"embedded"`
	Failed     int           `json:"failed"`
	Indexed    int           `json:"indexed"`
	Model      string        `json:"model"`
	Duration   time.Duration `json:"duration"`
}

// Reindex recomputes embeddings that are missing or from another model, or
// every embedding when force is set, then rebuilds the index.
func (p *Pipeline) Reindex(ctx context.Context, force bool, progress func(n int)) (ReindexReport, error) {
	start := time.Now()
	model := p.deps.Embedder.Model()
	var (
		vs  []domain.Vehicle
		err error
	)
	if force {
		vs, err = p.deps.Store.List(ctx, store.Filter{})
	} else {
		vs, err = p.deps.Store.Stale(ctx, model)
	}
	if err != nil {
		return ReindexReport{}, fmt.Errorf("ingest: reindex: %w", err)
	}
	rep := ReindexReport{Candidates: len(vs), Model: model}

	vectors := fn.ParMap(ctx, vs, p.opts.Workers, func(ctx context.Context, v domain.Vehicle) fn.Result[[]float32] {
		r := p.embed(ctx, v)
		if progress != nil {
			progress(1)
		}
		return r
	})
	for i, r := range vectors {
		vec, err := r.Unwrap()
		if err != nil {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			rep.Failed++
			p.logger.Warn("embedding failed", "id", vs[i].ID, "vehicle", vs[i].Title(), "err", err)
			continue
		}
		if err := p.deps.Store.UpdateEmbedding(ctx, vs[i].ID, vec, model); err != nil {
			return rep, fmt.Errorf("ingest: reindex: %w", err)
		}
		rep.Embedded++
	}

	if rep.Indexed, err = p.BuildIndex(ctx); err != nil {
		return rep, err
	}
	rep.Duration = time.Since(start)
	p.logger.Info("reindex completed",
		"candidates", rep.Candidates, "embedded", rep.Embedded, "failed", rep.Failed,
		"indexed", rep.Indexed, "model", model)
	return rep, nil
}

// BuildIndex loads every stored embedding of the current model into the
// index and announces the new generation.
func (p *Pipeline) BuildIndex(ctx context.Context) (int, error) {
	model := p.deps.Embedder.Model()
	embs, err := p.deps.Store.Embeddings(ctx, model)
	if err != nil {
		return 0, fmt.Errorf("ingest: build index: %w", err)
	}
	items := make([]semantic.Item, len(embs))
	for i, e := range embs {
		items[i] = semantic.Item{ID: e.ID, Vector: e.Vector}
	}
	if err := p.deps.Index.Rebuild(ctx, model, items); err != nil {
		return 0, fmt.Errorf("ingest: build index: %w", err)
	}
	p.publish(ctx, natsutil.SubjectIndexRebuilt, p.deps.Index.Info())
	return len(items), nil
}
