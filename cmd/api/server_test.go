package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/WessleyAI/carfinder/engine/app"
	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/engine/finder"
	"github.com/WessleyAI/carfinder/engine/graph"
	"github.com/WessleyAI/carfinder/engine/ingest"
	"github.com/WessleyAI/carfinder/engine/semantic"
	"github.com/WessleyAI/carfinder/engine/store"
	"github.com/WessleyAI/carfinder/pkg/config"
)

const catalogCSV = `make,model,year,price,mileage,fuel_type,body_class,vin
Toyota,Prius,2021,28000,21000,Hybrid,Sedan,
Toyota,Camry,2022,27000,15000,Gasoline,Sedan,4T1C11AK5NU123456
Ford,F-150,2019,35000,52000,Gasoline,Truck,
`

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestServer(t *testing.T) (*server, *app.App) {
	t.Helper()
	t.Setenv("DATABASE_PATH", filepath.Join(t.TempDir(), "api.db"))
	t.Setenv("EMBEDDING_MODEL", "hash")
	t.Setenv("EMBEDDING_DIM", "64")
	t.Setenv("LLM_ENABLED", "false")
	t.Setenv("OLLAMA_HOST", "http://127.0.0.1:1")
	for _, k := range []string{"REDIS_ADDR", "QDRANT_URL", "NEO4J_URL", "NATS_URL", "AUTO_DEV_API_KEY", "ENABLE_LIVE_DATA"} {
		t.Setenv(k, "")
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	a, err := app.New(context.Background(), cfg, quiet)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })

	if _, err := a.Pipeline.Ingest(context.Background(), strings.NewReader(catalogCSV), ingest.IngestOptions{}); err != nil {
		t.Fatal(err)
	}
	return newServer(a, quiet), a
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestHealthEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	handleHealth(rec, httptest.NewRequest("GET", "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decodeBody[map[string]string](t, rec); resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %s", resp["status"])
	}
}

func TestSearchEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	rec := do(t, h, "POST", "/api/search", `{"query":"a hybrid under $30k"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	res := decodeBody[finder.SearchResult](t, rec)
	if res.Total != 1 || res.Candidates[0].Vehicle.Model != "Prius" {
		t.Errorf("result = %+v", res)
	}

	rec = do(t, h, "POST", "/api/search", `{"query":"toyota","preferences":{"budget_max":27500}}`)
	res = decodeBody[finder.SearchResult](t, rec)
	if res.Total != 1 || res.Candidates[0].Vehicle.Model != "Camry" {
		t.Errorf("flags did not combine with query: %+v", res)
	}
}

func TestSearchEndpointErrors(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"malformed", `{"preferences":`, ""},
		{"empty", `{}`, ""},
		{"year out of range", `{"preferences":{"year_min":2099}}`, "year_min"},
		{"inverted budget", `{"preferences":{"budget_min":40000,"budget_max":20000}}`, "budget_min"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "POST", "/api/search", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body)
			}
			resp := decodeBody[map[string]string](t, rec)
			if resp["error"] == "" {
				t.Error("no error message")
			}
			if tt.field != "" && !strings.EqualFold(resp["field"], tt.field) {
				t.Errorf("field = %q, want %q", resp["field"], tt.field)
			}
		})
	}
}

func TestChatEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	rec := do(t, h, "POST", "/api/chat", `{"message":"I'd like a hybrid"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	first := decodeBody[ChatResponse](t, rec)
	if first.SessionID == "" || first.Reply == "" || first.Search != nil {
		t.Fatalf("first turn = %+v", first)
	}

	body, _ := json.Marshal(ChatRequest{SessionID: first.SessionID, Message: "sedan under $30k"})
	rec = do(t, h, "POST", "/api/chat", string(body))
	second := decodeBody[ChatResponse](t, rec)
	if second.SessionID != first.SessionID {
		t.Errorf("session changed: %s -> %s", first.SessionID, second.SessionID)
	}
	if second.Search == nil || second.Search.Total != 1 || second.Phase != "results" {
		t.Errorf("second turn = %+v", second)
	}
	if s.sessions.Len() != 1 {
		t.Errorf("sessions = %d", s.sessions.Len())
	}
}

func TestChatEndpointRejects(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	if rec := do(t, h, "POST", "/api/chat", `{"message":"  "}`); rec.Code != http.StatusBadRequest {
		t.Errorf("blank message: %d", rec.Code)
	}

	rec := do(t, h, "POST", "/api/chat", `{"message":"make it a $2 million budget"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	resp := decodeBody[ChatResponse](t, rec)
	if resp.Error == "" || resp.Reply == "" || resp.Preference.BudgetMax != 0 {
		t.Errorf("response = %+v", resp)
	}
}

func TestSourcesEndpoints(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()

	rec := do(t, h, "GET", "/api/sources", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	st := decodeBody[finder.Status](t, rec)
	if len(st.Sources) != 3 || st.LiveEnabled || st.Catalog.Total != 3 || st.Index.Size != 3 {
		t.Errorf("status = %+v", st)
	}

	if rec := do(t, h, "POST", "/api/sources/refresh", ""); rec.Code != http.StatusConflict {
		t.Errorf("refresh with live data off: %d", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.routes(), "GET", "/api/stats", "")
	resp := decodeBody[StatsResponse](t, rec)
	if resp.Total != 3 || resp.UniqueMakes != 2 || resp.MinPrice != 27000 || resp.MaxPrice != 35000 {
		t.Errorf("stats = %+v", resp)
	}
	if resp.Index.Backend != "memory" || resp.Index.Size != 3 {
		t.Errorf("index = %+v", resp.Index)
	}
}

type fakeGraph struct {
	models []string
	err    error
}

func (g fakeGraph) ModelsOf(context.Context, string) ([]string, error) { return g.models, g.err }

func (g fakeGraph) TopMakes(context.Context, int) ([]graph.MakeStats, error) {
	return []graph.MakeStats{{Name: "Toyota", Models: 2, Vehicles: 2}}, g.err
}

func TestModelsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name  string
		graph modelLister
		path  string
		code  int
		want  ModelsResponse
	}{
		{"catalog", nil, "/api/makes/toyota/models", 200, ModelsResponse{Make: "Toyota", Models: []string{"Camry", "Prius"}, From: "catalog"}},
		{"graph", fakeGraph{models: []string{"Corolla"}}, "/api/makes/Toyota/models", 200, ModelsResponse{Make: "Toyota", Models: []string{"Corolla"}, From: "graph"}},
		{"graph down", fakeGraph{err: errors.New("unreachable")}, "/api/makes/ford/models", 200, ModelsResponse{Make: "Ford", Models: []string{"F-150"}, From: "catalog"}},
		{"empty catalog", nil, "/api/makes/honda/models", 200, ModelsResponse{Make: "Honda", Models: []string{}, From: "catalog"}},
		{"unknown make", nil, "/api/makes/zzyzx/models", 400, ModelsResponse{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.graph = tt.graph
			rec := do(t, s.routes(), "GET", tt.path, "")
			if rec.Code != tt.code {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body)
			}
			if tt.code != 200 {
				return
			}
			got := decodeBody[ModelsResponse](t, rec)
			if got.Make != tt.want.Make || got.From != tt.want.From || !slices.Equal(got.Models, tt.want.Models) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.routes()
	do(t, h, "POST", "/api/chat", `{"message":"hello"}`)

	rec := do(t, h, "GET", "/metrics", "")
	body := rec.Body.String()
	for _, want := range []string{"carfinder_catalog_vehicles 3", "carfinder_index_vectors 3", "carfinder_chat_sessions 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}
}

func TestSessionStore(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := newSessionStore(time.Hour, 2)
	s.now = func() time.Time { return now }

	a := s.get("")
	if again := s.get(a.state.ID); again != a {
		t.Fatal("session not reused")
	}
	if other := s.get("not-a-session"); other == a || other.state.ID == "not-a-session" {
		t.Error("unknown id reused or adopted")
	}

	now = now.Add(time.Minute)
	s.get(a.state.ID)
	c := s.get("")
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2 after eviction", s.Len())
	}
	if s.get(a.state.ID) != a {
		t.Error("recently used session evicted")
	}

	now = now.Add(2 * time.Hour)
	if s.get(c.state.ID) == c {
		t.Error("expired session returned")
	}
	if s.Len() != 1 {
		t.Errorf("len = %d after expiry", s.Len())
	}
}

type countingBuilder struct {
	calls atomic.Int32
	index *semantic.MemoryIndex
}

func (b *countingBuilder) BuildIndex(ctx context.Context) (int, error) {
	b.calls.Add(1)
	return 0, b.index.Rebuild(ctx, "hash", []semantic.Item{{ID: 1, Vector: []float32{1, 0}}})
}

func TestIndexReloader(t *testing.T) {
	idx := semantic.NewMemoryIndex()
	b := &countingBuilder{index: idx}
	r := &indexReloader{builder: b, index: idx, logger: quiet}
	ctx := context.Background()

	r.handle(ctx, semantic.IndexInfo{BuiltAt: time.Now().Add(-time.Hour)})
	if b.calls.Load() != 1 {
		t.Fatalf("calls = %d after announcement newer than empty index", b.calls.Load())
	}
	r.handle(ctx, idx.Info())
	if b.calls.Load() != 1 {
		t.Errorf("reloaded for own generation")
	}
	r.handle(ctx, semantic.IndexInfo{BuiltAt: time.Now().Add(time.Minute)})
	if b.calls.Load() != 2 {
		t.Errorf("calls = %d after newer announcement", b.calls.Load())
	}
}

func TestVehicleEndpoints(t *testing.T) {
	s, a := newTestServer(t)
	h := s.routes()
	ctx := context.Background()

	fords, err := a.Store.List(ctx, store.Filter{Make: "Ford"})
	if err != nil || len(fords) != 1 {
		t.Fatalf("fords = %v, err %v", fords, err)
	}
	path := "/api/vehicles/" + strconv.FormatInt(fords[0].ID, 10)

	rec := do(t, h, "GET", path, "")
	if rec.Code != http.StatusOK || decodeBody[domain.Vehicle](t, rec).Model != "F-150" {
		t.Fatalf("get: %d %s", rec.Code, rec.Body)
	}

	rec = do(t, h, "PATCH", path, `{"price":31000,"description":"crew cab with tow package"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", rec.Code, rec.Body)
	}
	if v := decodeBody[domain.Vehicle](t, rec); v.Price != 31000 || v.Mileage != 52000 {
		t.Errorf("patched = %+v", v)
	}
	stale, err := a.Store.Stale(ctx, a.Embedder.Model())
	if err != nil || len(stale) != 0 {
		t.Errorf("stale after patch = %d, err %v", len(stale), err)
	}

	tests := []struct {
		method, path, body string
		code               int
	}{
		{"PATCH", path, `{"safety_rating":9}`, http.StatusBadRequest},
		{"PATCH", path, `{}`, http.StatusBadRequest},
		{"GET", "/api/vehicles/abc", "", http.StatusBadRequest},
		{"GET", "/api/vehicles/9999", "", http.StatusNotFound},
		{"DELETE", path, "", http.StatusNoContent},
		{"GET", path, "", http.StatusNotFound},
		{"DELETE", path, "", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := do(t, h, tt.method, tt.path, tt.body); rec.Code != tt.code {
			t.Errorf("%s %s %s: %d, want %d (%s)", tt.method, tt.path, tt.body, rec.Code, tt.code, rec.Body)
		}
	}
	if a.Index.Len() != 2 {
		t.Errorf("index = %d after delete", a.Index.Len())
	}
}
