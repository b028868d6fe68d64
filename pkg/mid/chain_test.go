package mid

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/WessleyAI/carfinder/pkg/metrics"
)

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { order = append(order, "handler") }),
		tag("a"), tag("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, ",") != "a,b,handler" {
		t.Errorf("order = %v", order)
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if len(seen) != 36 || rec.Header().Get(RequestIDHeader) != seen {
		t.Errorf("generated id %q, header %q", seen, rec.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc-123" {
		t.Errorf("incoming id not reused: %q", seen)
	}
}

func TestLoggerAndRecover(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		Logger(log), Recover(log))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", nil))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "internal server error") {
		t.Errorf("response = %d %q", rec.Code, rec.Body.String())
	}
	out := buf.String()
	if !strings.Contains(out, `"msg":"panic recovered"`) || !strings.Contains(out, `"status":500`) {
		t.Errorf("log = %s", out)
	}
}

func TestCORS(t *testing.T) {
	called := false
	h := CORS("https://cars.example")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/chat", nil))
	if rec.Code != http.StatusNoContent || called {
		t.Errorf("preflight = %d, handler called %v", rec.Code, called)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://cars.example" {
		t.Errorf("headers = %v", rec.Header())
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(8)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	if readErr == nil {
		t.Error("oversized body accepted")
	}
}

func TestMetrics(t *testing.T) {
	reg := metrics.New()
	h := Metrics(reg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	out := reg.Render()
	for _, want := range []string{
		`carfinder_http_requests_total{code="200"} 1`,
		`carfinder_http_requests_total{code="404"} 1`,
		`carfinder_http_request_duration_seconds_count{method="GET"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
