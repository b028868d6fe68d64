// Package retrieve combines hard attribute filters with semantic similarity
// to produce the candidate set for a preference.
package retrieve

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/engine/semantic"
	"github.com/WessleyAI/carfinder/engine/store"
)

// VehicleStore is the subset of the store the retriever reads.
type VehicleStore interface {
	List(ctx context.Context, f store.Filter) ([]domain.Vehicle, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]domain.Vehicle, error)
}

// Options configures retrieval.
type Options struct {
	// Threshold drops semantic-only matches below this similarity.
	Threshold float64
	// TopK is the minimum number of neighbours fetched for semantic-only queries.
	TopK int
	// Limit bounds the result size when the caller passes 0.
	Limit         int
	SearchTimeout time.Duration
}

// DefaultOptions returns the stock retrieval settings.
func DefaultOptions() Options {
	return Options{
		Threshold:     0.7,
		TopK:          10,
		Limit:         20,
		SearchTimeout: 5 * time.Second,
	}
}

// Retriever produces candidate vehicles for a preference.
type Retriever struct {
	store    VehicleStore
	index    semantic.Index
	embedder semantic.Embedder
	opts     Options
	logger   *slog.Logger
}

// New creates a Retriever.
func New(st VehicleStore, index semantic.Index, embedder semantic.Embedder, opts Options, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		store:    st,
		index:    index,
		embedder: embedder,
		opts:     opts,
		logger:   logger.With("component", "retrieve"),
	}
}

// Retrieve returns up to limit matches for p, most relevant first, without
// duplicates. Vehicles failing a hard filter are never returned. With no
// hard filters only semantic matches at or above the threshold survive. An
// empty result is not an error.
func (r *Retriever) Retrieve(ctx context.Context, p domain.Preference, limit int) ([]domain.Match, error) {
	if limit <= 0 {
		limit = r.opts.Limit
	}
	query := p.QueryText()

	if p.HasHardFilters() {
		vehicles, err := r.store.List(ctx, store.FilterFor(p))
		if err != nil {
			return nil, fmt.Errorf("retrieve: filter: %w", err)
		}
		if len(vehicles) == 0 {
			return nil, nil
		}
		k := 0
		if r.index != nil {
			k = r.index.Len()
		}
		sims := r.similarities(ctx, query, k)
		matches := make([]domain.Match, len(vehicles))
		for i, v := range vehicles {
			matches[i] = domain.Match{Vehicle: v, Similarity: sims[v.ID], Sources: []string{v.Source}}
		}
		return rank(matches, limit), nil
	}

	if query == "" {
		return nil, nil
	}
	sims := r.similarities(ctx, query, max(r.opts.TopK, limit))
	ids := make([]int64, 0, len(sims))
	for id, s := range sims {
		if s >= r.opts.Threshold {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := r.store.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("retrieve: load matches: %w", err)
	}
	matches := make([]domain.Match, 0, len(found))
	for _, id := range ids {
		if v, ok := found[id]; ok {
			matches = append(matches, domain.Match{Vehicle: v, Similarity: sims[id], Sources: []string{v.Source}})
		}
	}
	return rank(matches, limit), nil
}

// QueryVector embeds the preference's query text. It returns nil when there is
// nothing to embed or the embedder fails.
func (r *Retriever) QueryVector(ctx context.Context, p domain.Preference) []float32 {
	return r.embed(ctx, p.QueryText())
}

func (r *Retriever) embed(ctx context.Context, query string) []float32 {
	if query == "" || r.embedder == nil {
		return nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.WarnContext(ctx, "embed query failed, ranking without similarity", "err", err)
		return nil
	}
	return vec
}

// similarities maps vehicle id to similarity for the k nearest neighbours of
// query. Failures degrade to an empty map.
func (r *Retriever) similarities(ctx context.Context, query string, k int) map[int64]float64 {
	out := make(map[int64]float64)
	if query == "" || k <= 0 || r.index == nil {
		return out
	}
	vec := r.embed(ctx, query)
	if vec == nil {
		return out
	}
	searchCtx, cancel := context.WithTimeout(ctx, r.opts.SearchTimeout)
	defer cancel()
	hits, err := r.index.Search(searchCtx, vec, k)
	if errors.Is(err, semantic.ErrEmptyIndex) {
		return out
	}
	if err != nil {
		r.logger.WarnContext(ctx, "semantic search failed, ranking without similarity", "err", err)
		return out
	}
	for _, h := range hits {
		out[h.ID] = h.Score
	}
	return out
}

// rank orders by similarity, then lower price (unknown last), then lower id,
// and truncates to limit.
func rank(matches []domain.Match, limit int) []domain.Match {
	slices.SortFunc(matches, func(a, b domain.Match) int {
		return cmp.Or(cmp.Compare(b.Similarity, a.Similarity), domain.CompareByPrice(a.Vehicle, b.Vehicle))
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
