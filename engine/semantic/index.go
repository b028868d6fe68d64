package semantic

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"
)

// Item is one vector keyed by vehicle id.
type Item struct {
	ID     int64
	Vector []float32
}

// Hit is a search result.
type Hit struct {
	ID    int64
	Score float64
}

// Index answers nearest-neighbour queries over vehicle embeddings. It is
// rebuilt wholesale; a query always sees one complete generation.
type Index interface {
	Rebuild(ctx context.Context, model string, items []Item) error
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Len() int
	Info() IndexInfo
}

// IndexInfo describes the current generation.
type IndexInfo struct {
	Backend    string    `json:"backend"`
	Model      string    `json:"model"`
	Dim        int       `json:"dim"`
	Size       int       `json:"size"`
	BuiltAt    time.Time `json:"built_at,omitzero"`
	Collection string    `json:"collection,omitempty"`
}

type snapshot struct {
	model   string
	dim     int
	ids     []int64
	vectors [][]float32
	builtAt time.Time
}

// MemoryIndex is an exact cosine index held in memory.
type MemoryIndex struct {
	snap atomic.Pointer[snapshot]
}

// NewMemoryIndex returns an empty index.
func NewMemoryIndex() *MemoryIndex {
	m := &MemoryIndex{}
	m.snap.Store(&snapshot{})
	return m
}

// Rebuild replaces the index contents. Every vector must share one dimension.
func (m *MemoryIndex) Rebuild(_ context.Context, model string, items []Item) error {
	s := &snapshot{
		model:   model,
		ids:     make([]int64, len(items)),
		vectors: make([][]float32, len(items)),
		builtAt: time.Now().UTC(),
	}
	for i, it := range items {
		if i == 0 {
			s.dim = len(it.Vector)
		} else if len(it.Vector) != s.dim {
			return fmt.Errorf("%w: vehicle %d has %d, want %d", ErrDimensionMismatch, it.ID, len(it.Vector), s.dim)
		}
		s.ids[i] = it.ID
		s.vectors[i] = slices.Clone(it.Vector)
	}
	m.snap.Store(s)
	return nil
}

// Search returns the k most similar vehicles, best first. Ties go to the lower id.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	s := m.snap.Load()
	if k <= 0 {
		return nil, nil
	}
	if len(s.ids) == 0 {
		return nil, ErrEmptyIndex
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), s.dim)
	}
	hits := make([]Hit, len(s.ids))
	for i, vec := range s.vectors {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		score, _ := Cosine(query, vec)
		hits[i] = Hit{ID: s.ids[i], Score: score}
	}
	slices.SortFunc(hits, func(a, b Hit) int {
		return cmp.Or(cmp.Compare(b.Score, a.Score), cmp.Compare(a.ID, b.ID))
	})
	return hits[:min(k, len(hits))], nil
}

// Len returns the number of indexed vehicles.
func (m *MemoryIndex) Len() int { return len(m.snap.Load().ids) }

// Info describes the current generation.
func (m *MemoryIndex) Info() IndexInfo {
	s := m.snap.Load()
	return IndexInfo{Backend: "memory", Model: s.model, Dim: s.dim, Size: len(s.ids), BuiltAt: s.builtAt}
}
