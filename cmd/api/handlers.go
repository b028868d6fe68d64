package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/engine/finder"
	"github.com/WessleyAI/carfinder/engine/graph"
	"github.com/WessleyAI/carfinder/engine/prefs"
	"github.com/WessleyAI/carfinder/engine/semantic"
	"github.com/WessleyAI/carfinder/engine/store"
)

// maxSearchLimit caps the limit a client may ask for.
const maxSearchLimit = 100

// modelLister answers models-by-make from the catalog graph.
type modelLister interface {
	ModelsOf(ctx context.Context, make string) ([]string, error)
	TopMakes(ctx context.Context, limit int) ([]graph.MakeStats, error)
}

// catalog is the store surface the handlers read.
type catalog interface {
	Get(ctx context.Context, id int64) (domain.Vehicle, error)
	Stats(ctx context.Context) (store.Stats, error)
	List(ctx context.Context, f store.Filter) ([]domain.Vehicle, error)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps err to a status: validation errors are the client's
// fault, everything else is logged and hidden.
func writeFailure(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": domain.UserMessage(err), "field": ve.Field})
		return
	}
	logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SearchRequest is the JSON body for POST /api/search. Query is read like a
// chat message; fields in Preferences override it.
type SearchRequest struct {
	Preferences domain.Preference `json:"preferences"`
	Query       string            `json:"query,omitempty"`
	Limit       int               `json:"limit,omitempty"`
}

func handleSearch(f *finder.Finder, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if !decode(w, r, &req) {
			return
		}
		p := req.Preferences
		if q := domain.SanitizeText(req.Query); q != "" {
			p = prefs.Rules(q).Merge(p)
		}
		if p.IsEmpty() {
			writeError(w, http.StatusBadRequest, "preferences or query is required")
			return
		}
		res, err := f.Search(r.Context(), p, min(req.Limit, maxSearchLimit))
		if err != nil {
			writeFailure(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// ChatRequest is the JSON body for POST /api/chat. An empty or unknown
// SessionID starts a new conversation.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is one assistant turn.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	finder.ChatResult
	Error string `json:"error,omitempty"`
}

func handleChat(f *finder.Finder, sessions *sessionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if !decode(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}

		sess := sessions.get(req.SessionID)
		sess.mu.Lock()
		res := f.Chat(r.Context(), sess.state, req.Message)
		sess.mu.Unlock()

		resp := ChatResponse{SessionID: sess.state.ID, ChatResult: res}
		status := http.StatusOK
		if res.Err != nil {
			resp.Error = res.Err.Error()
			status = http.StatusBadRequest
		}
		writeJSON(w, status, resp)
	}
}

func handleSources(f *finder.Finder, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := f.Status(r.Context())
		if err != nil {
			writeFailure(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleRefresh(f *finder.Finder, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := f.RefreshLive(r.Context())
		switch {
		case errors.Is(err, finder.ErrLiveDisabled):
			writeError(w, http.StatusConflict, "live data is disabled")
		case err != nil:
			writeFailure(w, r, logger, err)
		default:
			writeJSON(w, http.StatusOK, res)
		}
	}
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	store.Stats
	Index    semantic.IndexInfo `json:"index"`
	TopMakes []graph.MakeStats  `json:"top_makes,omitempty"`
}

func handleStats(st catalog, idx semantic.Index, g modelLister, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := st.Stats(r.Context())
		if err != nil {
			writeFailure(w, r, logger, err)
			return
		}
		resp := StatsResponse{Stats: stats, Index: idx.Info()}
		if g != nil {
			top, err := g.TopMakes(r.Context(), 10)
			if err != nil {
				logger.WarnContext(r.Context(), "graph top makes failed", "err", err)
			}
			resp.TopMakes = top
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ModelsResponse is the body of GET /api/makes/{make}/models.
type ModelsResponse struct {
	Make   string   `json:"make"`
	Models []string `json:"models"`
	From   string   `json:"from"`
}

func handleModels(st catalog, g modelLister, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.PathValue("make")
		make_, ok := domain.CanonicalMake(raw)
		if !ok {
			writeFailure(w, r, logger, domain.NewValidationError("make", raw, domain.ErrUnknownMake))
			return
		}
		ctx := r.Context()
		if g != nil {
			models, err := g.ModelsOf(ctx, make_)
			if err != nil {
				logger.WarnContext(ctx, "graph lookup failed, reading catalog", "make", make_, "err", err)
			} else if len(models) > 0 {
				writeJSON(w, http.StatusOK, ModelsResponse{Make: make_, Models: models, From: "graph"})
				return
			}
		}

		vs, err := st.List(ctx, store.Filter{Make: make_})
		if err != nil {
			writeFailure(w, r, logger, err)
			return
		}
		models := []string{}
		for _, v := range vs {
			if !slices.Contains(models, v.Model) {
				models = append(models, v.Model)
			}
		}
		slices.Sort(models)
		writeJSON(w, http.StatusOK, ModelsResponse{Make: make_, Models: models, From: "catalog"})
	}
}
