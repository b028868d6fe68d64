package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/engine/semantic"
	"github.com/WessleyAI/carfinder/engine/store"
	"github.com/WessleyAI/carfinder/pkg/fn"
	"github.com/WessleyAI/carfinder/pkg/natsutil"
)

type brokenEmbedder struct{}

func (brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("ollama: connection refused")
}

func (brokenEmbedder) Model() string { return "nomic-embed-text" }

type fakeMirror struct {
	mu    sync.Mutex
	saved []domain.Vehicle
}

func (m *fakeMirror) SaveVehicles(_ context.Context, vs []domain.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, vs...)
	return nil
}

func (m *fakeMirror) ModelsOf(context.Context, string) ([]string, error) { return nil, nil }

type fixture struct {
	store  *store.Store
	index  *semantic.MemoryIndex
	events *natsutil.Recorder
	graph  *fakeMirror
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "ingest.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return &fixture{store: st, index: semantic.NewMemoryIndex(), events: &natsutil.Recorder{}, graph: &fakeMirror{}}
}

func (f *fixture) pipeline(emb semantic.Embedder) *Pipeline {
	opts := DefaultOptions()
	opts.Retry = fn.RetryOpts{MaxAttempts: 1}
	return New(Deps{
		Store:    f.store,
		Embedder: emb,
		Index:    f.index,
		Graph:    f.graph,
		Events:   f.events,
	}, opts)
}

func TestIngest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var progressed atomic.Int32

	rep, err := f.pipeline(semantic.NewHashEmbedder(64)).Ingest(ctx, strings.NewReader(catalogCSV), IngestOptions{
		Progress: func(n int) { progressed.Add(int32(n)) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Rows != 6 || rep.Inserted != 3 || rep.Duplicates != 1 || rep.Invalid != 2 {
		t.Errorf("report = %+v", rep)
	}
	if rep.Embedded != 3 || rep.Indexed != 3 || f.index.Len() != 3 {
		t.Errorf("embedded=%d indexed=%d index=%d", rep.Embedded, rep.Indexed, f.index.Len())
	}
	if len(rep.Errors) != 2 || rep.Errors[0].Line != 6 || rep.Errors[1].Line != 8 {
		t.Errorf("errors = %+v", rep.Errors)
	}
	if progressed.Load() != 6 {
		t.Errorf("progress = %d", progressed.Load())
	}

	ford, err := f.store.GetByVIN(ctx, "1FTFW1E50MFA12345")
	if err != nil {
		t.Fatal(err)
	}
	if ford.BodyClass != "Truck" || ford.Source != domain.SourceLocal || ford.EmbeddingModel != semantic.HashModel {
		t.Errorf("ford = %+v", ford)
	}
	civics, err := f.store.List(ctx, store.Filter{Make: "Honda"})
	if err != nil || len(civics) != 1 || civics[0].FuelType != domain.FuelGasoline {
		t.Errorf("civics = %+v, err %v", civics, err)
	}

	if len(f.graph.saved) != 3 {
		t.Errorf("mirrored %d vehicles", len(f.graph.saved))
	}
	want := []string{natsutil.SubjectIndexRebuilt, natsutil.SubjectIngestCompleted}
	if got := f.events.Subjects(); !slices.Equal(got, want) {
		t.Errorf("events = %v", got)
	}
}

func TestIngestReplaceKeepsLiveRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.pipeline(semantic.NewHashEmbedder(64))

	if _, err := p.Ingest(ctx, strings.NewReader(catalogCSV), IngestOptions{NoIndex: true}); err != nil {
		t.Fatal(err)
	}
	live := &domain.Vehicle{Make: "Subaru", Model: "Outback", Year: 2021, Source: "cargurus", VIN: "4S4BTAFC5M3123456"}
	if ok, err := f.store.SaveLive(ctx, live); err != nil || !ok {
		t.Fatalf("save live: %v %v", ok, err)
	}

	rep, err := p.Ingest(ctx, strings.NewReader(catalogCSV), IngestOptions{Replace: true, NoIndex: true})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Replaced != 3 || rep.Inserted != 3 || rep.Indexed != 0 {
		t.Errorf("report = %+v", rep)
	}
	stats, err := f.store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Local != 3 || stats.Live != 1 {
		t.Errorf("stats = %+v", stats)
	}

	again, err := p.Ingest(ctx, strings.NewReader(catalogCSV), IngestOptions{NoIndex: true})
	if err != nil {
		t.Fatal(err)
	}
	if again.Inserted != 1 || again.Duplicates != 3 {
		t.Errorf("append over existing catalog = %+v", again)
	}
}

func TestIngestDisplacesCachedLiveListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const vin = "1HGCV1F13MA123456"

	live := &domain.Vehicle{Make: "Honda", Model: "Accord", Year: 2021, Price: 99999, Source: "cargurus", VIN: vin}
	if ok, err := f.store.SaveLive(ctx, live); err != nil || !ok {
		t.Fatalf("save live: %v %v", ok, err)
	}

	csv := "make,model,year,price,vin\nHonda,Accord,2021,25000," + vin + "\n"
	rep, err := f.pipeline(semantic.NewHashEmbedder(64)).Ingest(ctx, strings.NewReader(csv), IngestOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Inserted != 1 || rep.Duplicates != 0 {
		t.Fatalf("report = %+v", rep)
	}
	got, err := f.store.GetByVIN(ctx, vin)
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != domain.SourceLocal || got.Price != 25000 {
		t.Errorf("stored row = %+v", got)
	}

	if _, err := f.store.DeleteLive(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.GetByVIN(ctx, vin); err != nil {
		t.Errorf("catalog row lost after live purge: %v", err)
	}

	rep, err = f.pipeline(semantic.NewHashEmbedder(64)).Ingest(ctx, strings.NewReader(csv), IngestOptions{NoIndex: true})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Inserted != 0 || rep.Duplicates != 1 {
		t.Errorf("re-ingest = %+v", rep)
	}
}

func TestIngestEmbedFailureThenReindex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rep, err := f.pipeline(brokenEmbedder{}).Ingest(ctx, strings.NewReader(catalogCSV), IngestOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Inserted != 3 || rep.Embedded != 0 || rep.Indexed != 0 {
		t.Errorf("report = %+v", rep)
	}

	p := f.pipeline(semantic.NewHashEmbedder(64))
	var progressed atomic.Int32
	rr, err := p.Reindex(ctx, false, func(n int) { progressed.Add(int32(n)) })
	if err != nil {
		t.Fatal(err)
	}
	if rr.Candidates != 3 || rr.Embedded != 3 || rr.Failed != 0 || rr.Indexed != 3 || progressed.Load() != 3 {
		t.Errorf("reindex = %+v progress=%d", rr, progressed.Load())
	}

	rr, err = p.Reindex(ctx, false, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rr.Candidates != 0 || rr.Indexed != 3 {
		t.Errorf("second reindex = %+v", rr)
	}

	rr, err = p.Reindex(ctx, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rr.Candidates != 3 || rr.Embedded != 3 {
		t.Errorf("forced reindex = %+v", rr)
	}
}

func TestValidateStage(t *testing.T) {
	tests := []struct {
		name string
		v    domain.Vehicle
		want error
	}{
		{"ok", domain.Vehicle{Make: "toyota", Model: "Camry", Year: 2020}, nil},
		{"bad vin", domain.Vehicle{Make: "Toyota", Model: "Camry", Year: 2020, VIN: "123"}, domain.ErrInvalidVIN},
		{"bad mpg", domain.Vehicle{Make: "Toyota", Model: "Camry", Year: 2020, MPGCity: 400}, domain.ErrMPGOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Validate(context.Background(), tt.v).Unwrap()
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if err == nil && (v.Make != "Toyota" || v.Source != domain.SourceLocal) {
				t.Errorf("not normalized: %+v", v)
			}
		})
	}
}
