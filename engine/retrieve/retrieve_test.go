package retrieve

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/engine/semantic"
	"github.com/WessleyAI/carfinder/engine/store"
)

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("ollama down")
}
func (failingEmbedder) Model() string { return "broken" }

type fixture struct {
	store    *store.Store
	index    *semantic.MemoryIndex
	embedder *semantic.HashEmbedder
	vehicles []domain.Vehicle
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "r.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	f := &fixture{store: st, index: semantic.NewMemoryIndex(), embedder: semantic.NewHashEmbedder(128)}
	f.vehicles = []domain.Vehicle{
		{Make: "Toyota", Model: "Prius", Year: 2021, Price: 28000, FuelType: "Hybrid", BodyClass: "Sedan", Description: "efficient commuter"},
		{Make: "Toyota", Model: "Camry", Year: 2022, Price: 32000, FuelType: "Hybrid", BodyClass: "Sedan", Description: "comfortable family sedan"},
		{Make: "Ford", Model: "F-150", Year: 2019, Price: 35000, FuelType: "Gasoline", BodyClass: "Truck", Description: "work truck with tow package"},
		{Make: "Honda", Model: "Insight", Year: 2020, FuelType: "Hybrid", BodyClass: "Sedan"},
		{Make: "Hyundai", Model: "Ioniq", Year: 2020, Price: 24000, FuelType: "Hybrid", BodyClass: "Hatchback"},
	}
	var items []semantic.Item
	for i := range f.vehicles {
		v := &f.vehicles[i]
		vec, _ := f.embedder.Embed(ctx, domain.EmbeddingText(*v))
		v.Embedding, v.EmbeddingModel = vec, f.embedder.Model()
		if err := st.Insert(ctx, v); err != nil {
			t.Fatal(err)
		}
		items = append(items, semantic.Item{ID: v.ID, Vector: vec})
	}
	if err := f.index.Rebuild(ctx, f.embedder.Model(), items); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) retriever(e semantic.Embedder) *Retriever {
	return New(f.store, f.index, e, DefaultOptions(), nil)
}

func models(ms []domain.Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Vehicle.Model
	}
	return out
}

func TestBudgetAndFuelFilter(t *testing.T) {
	f := newFixture(t)
	r := f.retriever(f.embedder)

	got, err := r.Retrieve(context.Background(), domain.Preference{BudgetMax: 30000, FuelType: "Hybrid"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	// The Camry is over budget, the Insight has no known price.
	names := models(got)
	slices.Sort(names)
	if !slices.Equal(names, []string{"Ioniq", "Prius"}) {
		t.Errorf("got %v, want Ioniq and Prius", names)
	}
}

func TestBudgetMaxHolds(t *testing.T) {
	f := newFixture(t)
	r := f.retriever(f.embedder)
	for _, budget := range []float64{20000, 25000, 30000, 34000, 50000} {
		got, err := r.Retrieve(context.Background(), domain.Preference{BudgetMax: budget, Description: "reliable car"}, 10)
		if err != nil {
			t.Fatal(err)
		}
		for _, m := range got {
			if m.Vehicle.Price > budget || m.Vehicle.Price <= 0 {
				t.Errorf("budget %v returned %s at %v", budget, m.Vehicle.Model, m.Vehicle.Price)
			}
		}
	}
}

func TestFilteredOrderingUsesSimilarity(t *testing.T) {
	f := newFixture(t)
	r := f.retriever(f.embedder)

	got, err := r.Retrieve(context.Background(), domain.Preference{
		BudgetMax:   40000,
		Description: domain.EmbeddingText(f.vehicles[2]),
	}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 || got[0].Vehicle.Model != "F-150" {
		t.Fatalf("got %v, want F-150 first", models(got))
	}
	if got[0].Similarity < 0.99 {
		t.Errorf("similarity = %v", got[0].Similarity)
	}
}

func TestEmbedderFailureKeepsFilteredSet(t *testing.T) {
	f := newFixture(t)
	r := f.retriever(failingEmbedder{})

	got, err := r.Retrieve(context.Background(), domain.Preference{Make: "Toyota", Description: "family"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %v", models(got))
	}
	for _, m := range got {
		if m.Similarity != 0 {
			t.Errorf("similarity = %v, want 0", m.Similarity)
		}
	}
	// Equal similarity falls back to lower price first.
	if got[0].Vehicle.Model != "Prius" {
		t.Errorf("got %v, want Prius first", models(got))
	}
}

func TestWithoutIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, tt := range []struct {
		name  string
		index semantic.Index
	}{
		{"nil", nil},
		{"empty", semantic.NewMemoryIndex()},
	} {
		t.Run(tt.name, func(t *testing.T) {
			r := New(f.store, tt.index, f.embedder, DefaultOptions(), nil)

			got, err := r.Retrieve(ctx, domain.Preference{Make: "Toyota", Description: "family"}, 10)
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(models(got), []string{"Prius", "Camry"}) {
				t.Errorf("filtered = %v, want Prius then Camry", models(got))
			}
			for _, m := range got {
				if m.Similarity != 0 {
					t.Errorf("%s similarity = %v", m.Vehicle.Model, m.Similarity)
				}
			}

			got, err = r.Retrieve(ctx, domain.Preference{Description: "comfortable family sedan"}, 10)
			if err != nil || len(got) != 0 {
				t.Errorf("semantic only = %v, %v; want empty", models(got), err)
			}
		})
	}
}

func TestSemanticOnlyThreshold(t *testing.T) {
	f := newFixture(t)
	r := f.retriever(f.embedder)
	ctx := context.Background()

	got, err := r.Retrieve(ctx, domain.Preference{Description: domain.EmbeddingText(f.vehicles[1])}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 || got[0].Vehicle.Model != "Camry" {
		t.Fatalf("got %v, want Camry first", models(got))
	}
	for _, m := range got {
		if m.Similarity < DefaultOptions().Threshold {
			t.Errorf("%s similarity %v below threshold", m.Vehicle.Model, m.Similarity)
		}
	}

	got, err = r.Retrieve(ctx, domain.Preference{Description: "zzz qqq xxx"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("unrelated text returned %v", models(got))
	}
}

func TestEmptyPreference(t *testing.T) {
	f := newFixture(t)
	got, err := f.retriever(f.embedder).Retrieve(context.Background(), domain.Preference{}, 10)
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v; want empty", models(got), err)
	}
}

func TestNoMatchesIsNotAnError(t *testing.T) {
	f := newFixture(t)
	got, err := f.retriever(f.embedder).Retrieve(context.Background(), domain.Preference{Make: "Porsche"}, 10)
	if err != nil || len(got) != 0 {
		t.Errorf("got %v, %v", models(got), err)
	}
}

func TestLimit(t *testing.T) {
	f := newFixture(t)
	got, err := f.retriever(f.embedder).Retrieve(context.Background(), domain.Preference{BudgetMax: 100000}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d, want 2", len(got))
	}
	seen := map[int64]bool{}
	for _, m := range got {
		if seen[m.Vehicle.ID] {
			t.Errorf("duplicate %d", m.Vehicle.ID)
		}
		seen[m.Vehicle.ID] = true
	}
}
