package finder

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/WessleyAI/carfinder/engine/aggregate"
	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/engine/prefs"
	"github.com/WessleyAI/carfinder/engine/retrieve"
	"github.com/WessleyAI/carfinder/engine/score"
	"github.com/WessleyAI/carfinder/engine/semantic"
	"github.com/WessleyAI/carfinder/engine/store"
	"github.com/WessleyAI/carfinder/pkg/natsutil"
)

const camryVIN = "4T1C11AK5NU123456"

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type env struct {
	store  *store.Store
	events *natsutil.Recorder
	deps   Deps
}

func newEnv(t *testing.T, agg *aggregate.Aggregator) *env {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "finder.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	emb := semantic.NewHashEmbedder(128)
	idx := semantic.NewMemoryIndex()
	vehicles := []domain.Vehicle{
		{Make: "Toyota", Model: "Prius", Year: 2021, Price: 28000, FuelType: "Hybrid", BodyClass: "Sedan", SafetyRating: 5},
		{Make: "Toyota", Model: "Avalon", Year: 2022, Price: 32000, FuelType: "Hybrid", BodyClass: "Sedan"},
		{VIN: camryVIN, Make: "Toyota", Model: "Camry", Year: 2022, Price: 27000, FuelType: "Gasoline", BodyClass: "Sedan"},
		{Make: "Ford", Model: "F-150", Year: 2019, Price: 35000, FuelType: "Gasoline", BodyClass: "Truck"},
	}
	var items []semantic.Item
	for i := range vehicles {
		v := &vehicles[i]
		v.Embedding, _ = emb.Embed(ctx, domain.EmbeddingText(*v))
		v.EmbeddingModel = emb.Model()
		if err := st.Insert(ctx, v); err != nil {
			t.Fatal(err)
		}
		items = append(items, semantic.Item{ID: v.ID, Vector: v.Embedding})
	}
	if err := idx.Rebuild(ctx, emb.Model(), items); err != nil {
		t.Fatal(err)
	}

	e := &env{store: st, events: &natsutil.Recorder{}}
	e.deps = Deps{
		Store:      st,
		Retriever:  retrieve.New(st, idx, emb, retrieve.DefaultOptions(), nil),
		Scorer:     score.New(score.WithCurrentYear(2024)),
		Extractor:  prefs.New(nil, "", nil),
		Aggregator: agg,
		Embedder:   emb,
		Index:      idx,
		Model:      pinger{},
		Events:     e.events,
	}
	return e
}

func (e *env) finder(opts Options) *Finder {
	return New(e.deps, opts)
}

func liveOpts(cache bool) Options {
	o := DefaultOptions()
	o.Live = true
	o.CacheLive = cache
	return o
}

func TestSearchBudgetAndFuel(t *testing.T) {
	f := newEnv(t, nil).finder(DefaultOptions())
	res, err := f.Search(context.Background(), domain.Preference{BudgetMax: 30000, FuelType: "Hybrid"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || res.Candidates[0].Vehicle.Model != "Prius" {
		t.Fatalf("candidates = %+v", res.Candidates)
	}
	if res.Live || res.Explanation != "" {
		t.Errorf("live=%v explanation=%q", res.Live, res.Explanation)
	}
}

func TestSearchHybridLocalWinsOnVIN(t *testing.T) {
	e := newEnv(t, aggregate.New(aggregate.Options{}, aggregate.CarsCom(), aggregate.CarGurus()))
	f := e.finder(liveOpts(false))

	res, err := f.Search(context.Background(), domain.Preference{Make: "toyota", BudgetMax: 30000}, 0)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, c := range res.Candidates {
		names = append(names, c.Vehicle.Model)
		if c.Vehicle.Price > 30000 {
			t.Errorf("%s over budget: %v", c.Vehicle.Title(), c.Vehicle.Price)
		}
	}
	slices.Sort(names)
	if !slices.Equal(names, []string{"Camry", "Prius"}) {
		t.Fatalf("models = %v", names)
	}
	for _, c := range res.Candidates {
		if c.Vehicle.Model != "Camry" {
			continue
		}
		if c.Vehicle.Price != 27000 || c.Vehicle.Source != domain.SourceLocal {
			t.Errorf("live record replaced local one: %+v", c.Vehicle)
		}
		if !slices.Contains(c.Sources, aggregate.SourceCarsCom) {
			t.Errorf("sources = %v", c.Sources)
		}
	}
	if !res.Live || len(res.Sources) != 2 {
		t.Errorf("live=%v sources=%v", res.Live, res.Sources)
	}
	if got := e.events.Subjects(); !slices.Equal(got, []string{natsutil.SubjectSourcesStatus}) {
		t.Errorf("events = %v", got)
	}
}

func TestSearchCachesLiveListings(t *testing.T) {
	e := newEnv(t, aggregate.New(aggregate.Options{}, aggregate.CarsCom()))
	f := e.finder(liveOpts(true))
	ctx := context.Background()

	res, err := f.Search(ctx, domain.Preference{Make: "Honda"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 {
		t.Fatalf("total = %d", res.Total)
	}
	c := res.Candidates[0]
	if c.Listing == nil || c.Listing.DealerName != "Honda World" || c.Vehicle.ID == 0 {
		t.Errorf("candidate = %+v", c)
	}

	stats, err := e.store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Live != 1 || stats.Local != 4 {
		t.Errorf("stats = %+v", stats)
	}
	cached, err := e.store.GetByVIN(ctx, "1HGCV1F13MA123456")
	if err != nil {
		t.Fatal(err)
	}
	if cached.Source != aggregate.SourceCarsCom || len(cached.Embedding) == 0 {
		t.Errorf("cached row = %+v", cached)
	}
}

type rawSource struct{ listings []domain.Listing }

func (rawSource) Name() string { return "dealer-feed" }
func (s rawSource) Search(context.Context, aggregate.Criteria) ([]domain.Listing, error) {
	return s.listings, nil
}

func TestSearchMatchesLiveSpellings(t *testing.T) {
	src := rawSource{listings: []domain.Listing{{
		Vehicle:    domain.Vehicle{VIN: "1G1ZD5ST0LF123456", Make: "chevy", Model: "Malibu", Year: 2020, Price: 19500, FuelType: "gas", Source: "dealer-feed"},
		DealerName: "Bowtie Motors",
		Sources:    []string{"dealer-feed"},
	}}}
	f := newEnv(t, aggregate.New(aggregate.Options{}, src)).finder(liveOpts(false))

	res, err := f.Search(context.Background(), domain.Preference{Make: "Chevrolet", FuelType: "Gasoline"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 {
		t.Fatalf("candidates = %+v", res.Candidates)
	}
	v := res.Candidates[0].Vehicle
	if v.Make != "Chevrolet" || v.FuelType != domain.FuelGasoline {
		t.Errorf("vehicle = %+v", v)
	}
}

func TestSearchEmptyExplains(t *testing.T) {
	f := newEnv(t, nil).finder(DefaultOptions())
	res, err := f.Search(context.Background(), domain.Preference{Make: "Ford", BudgetMax: 5000}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 0 || !strings.HasPrefix(res.Explanation, "No vehicles match") || !strings.Contains(res.Explanation, "raising your budget") {
		t.Errorf("result = %+v", res)
	}
}

func TestSearchRejectsInvalidPreference(t *testing.T) {
	f := newEnv(t, nil).finder(DefaultOptions())
	_, err := f.Search(context.Background(), domain.Preference{YearMin: 2099}, 0)
	if !errors.Is(err, domain.ErrYearOutOfRange) {
		t.Fatalf("err = %v", err)
	}
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("not a validation error: %T", err)
	}
}

func TestChatRunsSearchWhenReady(t *testing.T) {
	f := newEnv(t, nil).finder(DefaultOptions())
	st := domain.NewConversation()
	ctx := context.Background()

	first := f.Chat(ctx, st, "I'd like a hybrid")
	if first.Search != nil || st.Phase != domain.PhaseGathering {
		t.Fatalf("searched too early: phase=%s", st.Phase)
	}

	res := f.Chat(ctx, st, "sedan under $30k")
	if res.Search == nil {
		t.Fatal("no search on ready preferences")
	}
	if res.Search.Total != 1 || res.Search.Candidates[0].Vehicle.Model != "Prius" {
		t.Errorf("candidates = %+v", res.Search.Candidates)
	}
	if st.Phase != domain.PhaseResults || res.Phase != domain.PhaseResults {
		t.Errorf("phase = %s / %s", st.Phase, res.Phase)
	}
}

func TestStatus(t *testing.T) {
	e := newEnv(t, aggregate.New(aggregate.Options{}, aggregate.CarsCom()))
	e.deps.Model = pinger{err: errors.New("connection refused")}
	f := e.finder(liveOpts(false))

	st, err := f.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Catalog.Total != 4 || st.Index.Size != 4 || st.EmbeddingModel != semantic.HashModel {
		t.Errorf("status = %+v", st)
	}
	if st.LLMAvailable || !st.LiveEnabled || len(st.Sources) != 1 || st.Sources[0].Name != aggregate.SourceCarsCom {
		t.Errorf("status = %+v", st)
	}
}

func TestRefreshLive(t *testing.T) {
	e := newEnv(t, aggregate.New(aggregate.Options{}, aggregate.CarsCom(), aggregate.CarGurus()))
	f := e.finder(liveOpts(true))
	ctx := context.Background()

	res, err := f.RefreshLive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// The cars.com Camry shares its VIN with a local row and is not cached.
	if res.Fetched != 5 || res.Cached != 4 || res.Dropped != 0 {
		t.Errorf("refresh = %+v", res)
	}

	again, err := f.RefreshLive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again.Dropped != 4 || again.Cached != 4 {
		t.Errorf("second refresh = %+v", again)
	}
	if n := len(e.events.Subjects()); n != 2 {
		t.Errorf("published %d events", n)
	}

	none := newEnv(t, nil).finder(DefaultOptions())
	if _, err := none.RefreshLive(ctx); !errors.Is(err, ErrLiveDisabled) {
		t.Errorf("err = %v", err)
	}
}
