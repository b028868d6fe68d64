// Package finder is the application facade: hybrid search over the local
// catalog and live listings, conversational turns, and data-source status.
package finder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/WessleyAI/carfinder/engine/aggregate"
	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/engine/prefs"
	"github.com/WessleyAI/carfinder/engine/retrieve"
	"github.com/WessleyAI/carfinder/engine/score"
	"github.com/WessleyAI/carfinder/engine/semantic"
	"github.com/WessleyAI/carfinder/engine/store"
	"github.com/WessleyAI/carfinder/pkg/natsutil"
)

// Store is the subset of the vehicle store the finder uses.
type Store interface {
	SaveLive(ctx context.Context, v *domain.Vehicle) (bool, error)
	DeleteLive(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// ModelChecker reports whether the language model endpoint answers.
type ModelChecker interface {
	Ping(ctx context.Context) error
}

// Options tunes the finder.
type Options struct {
	MaxResults int
	// Threshold applies to live listings when the preference has no hard filters.
	Threshold float64
	// Live enables querying external sources on every search.
	Live bool
	// CacheLive stores live listings that carry a VIN in the catalog.
	CacheLive       bool
	Radius          int
	PerSourceLimit  int
	StatusCheckTime time.Duration
}

// DefaultOptions returns the stock finder settings.
func DefaultOptions() Options {
	return Options{
		MaxResults:      20,
		Threshold:       0.7,
		Radius:          50,
		PerSourceLimit:  20,
		StatusCheckTime: 2 * time.Second,
	}
}

// Deps are the collaborators of a Finder. Aggregator, Model and Events may be nil.
type Deps struct {
	Store      Store
	Retriever  *retrieve.Retriever
	Scorer     *score.Scorer
	Extractor  *prefs.Extractor
	Aggregator *aggregate.Aggregator
	Embedder   semantic.Embedder
	Index      semantic.Index
	Model      ModelChecker
	Events     natsutil.Publisher
	Logger     *slog.Logger
}

// Finder answers searches and conversation turns.
type Finder struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New creates a Finder.
func New(deps Deps, opts Options) *Finder {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Events == nil {
		deps.Events = natsutil.Nop{}
	}
	if deps.Scorer == nil {
		deps.Scorer = score.New()
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultOptions().MaxResults
	}
	return &Finder{deps: deps, opts: opts, logger: deps.Logger.With("component", "finder")}
}

// LiveEnabled reports whether searches include external sources.
func (f *Finder) LiveEnabled() bool {
	return f.opts.Live && f.deps.Aggregator != nil
}

// SearchResult is the ranked answer to a preference. Explanation is set when
// nothing matched.
type SearchResult struct {
	Preference  domain.Preference        `json:"preferences"`
	Candidates  []domain.ScoredCandidate `json:"candidates"`
	Total       int                      `json:"total"`
	Explanation string                   `json:"explanation,omitempty"`
	Live        bool                     `json:"live"`
	Sources     []aggregate.SourceStatus `json:"sources,omitempty"`
}

// Search runs a hybrid search. An invalid preference yields a
// *domain.ValidationError; an empty result is not an error.
func (f *Finder) Search(ctx context.Context, p domain.Preference, limit int) (SearchResult, error) {
	p = domain.NormalizePreference(p)
	if err := domain.ValidatePreference(p); err != nil {
		return SearchResult{}, err
	}
	if limit <= 0 || limit > f.opts.MaxResults {
		limit = f.opts.MaxResults
	}

	matches, err := f.deps.Retriever.Retrieve(ctx, p, limit)
	if err != nil {
		return SearchResult{}, fmt.Errorf("finder: search: %w", err)
	}

	res := SearchResult{Preference: p}
	if f.LiveEnabled() {
		live := f.deps.Aggregator.Search(ctx, aggregate.CriteriaFor(p, f.opts.Radius, f.opts.PerSourceLimit))
		res.Live = true
		res.Sources = live.Sources
		matches = f.mergeLive(ctx, p, matches, live.Listings)
		f.publishStatus(ctx, live.Sources)
	}

	scored := f.deps.Scorer.Score(p, matches)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	res.Candidates = scored
	res.Total = len(scored)
	if res.Total == 0 {
		res.Explanation = explainEmpty(p)
	}
	f.logger.InfoContext(ctx, "search", "filters", p.Summary(), "results", res.Total, "live", res.Live)
	return res, nil
}

// mergeLive adds live listings that pass p's hard filters. A listing whose VIN
// is already among the local matches only adds its source to that match.
func (f *Finder) mergeLive(ctx context.Context, p domain.Preference, matches []domain.Match, listings []domain.Listing) []domain.Match {
	byVIN := make(map[string]int, len(matches))
	for i, m := range matches {
		if m.Vehicle.VIN != "" {
			byVIN[strings.ToUpper(m.Vehicle.VIN)] = i
		}
	}

	crit := aggregate.CriteriaFor(p, 0, 0)
	query := f.deps.Retriever.QueryVector(ctx, p)
	for _, l := range listings {
		v := domain.NormalizeVehicle(l.Vehicle)
		l.Vehicle = v
		if !crit.Matches(l) {
			continue
		}
		if i, ok := byVIN[strings.ToUpper(l.VIN)]; ok && l.VIN != "" {
			for _, s := range l.Sources {
				if !containsFold(matches[i].Sources, s) {
					matches[i].Sources = append(matches[i].Sources, s)
				}
			}
			continue
		}

		sim := f.similarity(ctx, query, &v)
		if !p.HasHardFilters() && sim < f.opts.Threshold {
			continue
		}
		if f.opts.CacheLive && f.deps.Store != nil && v.VIN != "" {
			saved, err := f.deps.Store.SaveLive(ctx, &v)
			switch {
			case err != nil:
				f.logger.WarnContext(ctx, "cache live listing failed", "vin", v.VIN, "source", v.Source, "err", err)
			case !saved:
				// A local record with this VIN exists outside the retrieved set.
				continue
			}
		}
		listing := l
		listing.Vehicle = v
		matches = append(matches, domain.Match{Vehicle: v, Similarity: sim, Sources: l.Sources, Listing: &listing})
		if v.VIN != "" {
			byVIN[strings.ToUpper(v.VIN)] = len(matches) - 1
		}
	}
	return matches
}

// similarity embeds v, storing the vector on it, and scores it against query.
func (f *Finder) similarity(ctx context.Context, query []float32, v *domain.Vehicle) float64 {
	if f.deps.Embedder == nil {
		return 0
	}
	vec, err := f.deps.Embedder.Embed(ctx, domain.EmbeddingText(*v))
	if err != nil {
		f.logger.WarnContext(ctx, "embed live listing failed", "err", err)
		return 0
	}
	v.Embedding, v.EmbeddingModel = vec, f.deps.Embedder.Model()
	if query == nil {
		return 0
	}
	sim, err := semantic.Cosine(query, vec)
	if err != nil {
		return 0
	}
	return sim
}

func (f *Finder) publishStatus(ctx context.Context, sources []aggregate.SourceStatus) {
	if err := f.deps.Events.Publish(ctx, natsutil.SubjectSourcesStatus, sources); err != nil {
		f.logger.WarnContext(ctx, "publish source status failed", "err", err)
	}
}

func explainEmpty(p domain.Preference) string {
	s := p.Summary()
	if s == "" {
		if p.QueryText() == "" {
			return "Tell me what you're looking for and I'll search the catalog."
		}
		return "Nothing in the catalog is close enough to that description. Try naming a make, a body style or a budget."
	}
	var hints []string
	if p.BudgetMax > 0 {
		hints = append(hints, "raising your budget")
	}
	if p.Model != "" {
		hints = append(hints, "dropping the model")
	}
	if p.YearMin > 0 || p.MileageMax > 0 {
		hints = append(hints, "relaxing the year or mileage limit")
	}
	msg := "No vehicles match " + s + "."
	if len(hints) > 0 {
		msg += " Try " + strings.Join(hints, " or ") + "."
	}
	return msg
}

func containsFold(list []string, s string) bool {
	for _, x := range list {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}

// ChatResult is one conversation turn, plus search results when the turn
// triggered a search.
type ChatResult struct {
	prefs.Result
	Search *SearchResult `json:"search,omitempty"`
}

// Chat processes one user message against st and searches when the turn calls for it.
func (f *Finder) Chat(ctx context.Context, st *domain.ConversationState, text string) ChatResult {
	res := f.deps.Extractor.Process(ctx, st, text)
	out := ChatResult{Result: res}
	if !res.TriggerSearch {
		return out
	}

	sr, err := f.Search(ctx, st.Preference, 0)
	if err != nil {
		f.logger.WarnContext(ctx, "chat search failed", "session", st.ID, "err", err)
		return out
	}
	st.MarkSearched()
	out.Phase = st.Phase
	out.Search = &sr
	return out
}

// Status describes the health of every data source.
type Status struct {
	Sources        []aggregate.SourceStatus `json:"sources"`
	LiveEnabled    bool                     `json:"live_enabled"`
	Catalog        store.Stats              `json:"catalog"`
	Index          semantic.IndexInfo       `json:"index"`
	EmbeddingModel string                   `json:"embedding_model"`
	LLMAvailable   bool                     `json:"llm_available"`
}

// Status reports source, catalog, index and model health.
func (f *Finder) Status(ctx context.Context) (Status, error) {
	st := Status{LiveEnabled: f.LiveEnabled()}
	if f.deps.Aggregator != nil {
		st.Sources = f.deps.Aggregator.Status()
	}
	if f.deps.Store != nil {
		stats, err := f.deps.Store.Stats(ctx)
		if err != nil {
			return Status{}, fmt.Errorf("finder: status: %w", err)
		}
		st.Catalog = stats
	}
	if f.deps.Index != nil {
		st.Index = f.deps.Index.Info()
	}
	if f.deps.Embedder != nil {
		st.EmbeddingModel = f.deps.Embedder.Model()
	}
	if f.deps.Model != nil {
		pingCtx, cancel := context.WithTimeout(ctx, f.opts.StatusCheckTime)
		defer cancel()
		st.LLMAvailable = f.deps.Model.Ping(pingCtx) == nil
	}
	return st, nil
}

// RefreshResult summarizes a live-data refresh.
type RefreshResult struct {
	Dropped  int64                    `json:"dropped"`
	Fetched  int                      `json:"fetched"`
	Cached   int                      `json:"cached"`
	Sources  []aggregate.SourceStatus `json:"sources"`
	Duration time.Duration            `json:"duration_ns"`
}

// ErrLiveDisabled is returned by RefreshLive when live data is off or no
// sources are configured.
var ErrLiveDisabled = errors.New("finder: live data disabled")

// RefreshLive drops cached live listings and re-queries every source with
// broad criteria.
func (f *Finder) RefreshLive(ctx context.Context) (RefreshResult, error) {
	if !f.LiveEnabled() {
		return RefreshResult{}, ErrLiveDisabled
	}
	start := time.Now()
	var out RefreshResult
	if f.opts.CacheLive && f.deps.Store != nil {
		n, err := f.deps.Store.DeleteLive(ctx)
		if err != nil {
			return RefreshResult{}, fmt.Errorf("finder: refresh: %w", err)
		}
		out.Dropped = n
	}

	live := f.deps.Aggregator.Refresh(ctx, aggregate.Criteria{Radius: f.opts.Radius, Limit: f.opts.PerSourceLimit})
	out.Sources = live.Sources
	out.Fetched = len(live.Listings)
	if f.opts.CacheLive && f.deps.Store != nil {
		for _, l := range live.Listings {
			if l.VIN == "" {
				continue
			}
			v := domain.NormalizeVehicle(l.Vehicle)
			f.similarity(ctx, nil, &v)
			saved, err := f.deps.Store.SaveLive(ctx, &v)
			if err != nil {
				f.logger.WarnContext(ctx, "cache live listing failed", "vin", v.VIN, "err", err)
				continue
			}
			if saved {
				out.Cached++
			}
		}
	}
	out.Duration = time.Since(start)
	f.publishStatus(ctx, live.Sources)
	f.logger.InfoContext(ctx, "live data refreshed",
		"dropped", out.Dropped, "fetched", out.Fetched, "cached", out.Cached, "failed", len(live.Failed()))
	return out, nil
}
