// Package app assembles a CarFinder process from its configuration. Optional
// infrastructure (Redis, Qdrant, Neo4j, NATS, Ollama) degrades to local
// fallbacks when it is not configured or does not answer.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/carfinder/engine/aggregate"
	"github.com/WessleyAI/carfinder/engine/finder"
	"github.com/WessleyAI/carfinder/engine/graph"
	"github.com/WessleyAI/carfinder/engine/ingest"
	"github.com/WessleyAI/carfinder/engine/prefs"
	"github.com/WessleyAI/carfinder/engine/retrieve"
	"github.com/WessleyAI/carfinder/engine/score"
	"github.com/WessleyAI/carfinder/engine/semantic"
	"github.com/WessleyAI/carfinder/engine/store"
	"github.com/WessleyAI/carfinder/pkg/cache"
	"github.com/WessleyAI/carfinder/pkg/config"
	"github.com/WessleyAI/carfinder/pkg/metrics"
	"github.com/WessleyAI/carfinder/pkg/natsutil"
	"github.com/WessleyAI/carfinder/pkg/ollama"
	"github.com/WessleyAI/carfinder/pkg/repo"
)

// memoryCacheSize bounds the in-process listing cache.
const memoryCacheSize = 1000

// App holds the wired components. Graph and NATS are nil when not configured.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      *store.Store
	Ollama     *ollama.Client
	Embedder   semantic.Embedder
	Index      semantic.Index
	Cache      cache.Client
	Aggregator *aggregate.Aggregator
	Graph      *graph.GraphStore
	Events     natsutil.Publisher
	NATS       *nats.Conn
	Metrics    *metrics.Registry
	Pipeline   *ingest.Pipeline
	Finder     *finder.Finder

	closers []func(context.Context) error
}

// New opens the store and connects the optional services. Only a store
// failure is returned as an error.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	st, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.Store = st
	a.onClose(func(context.Context) error { return st.Close() })

	a.Ollama = ollama.New(cfg.OllamaHost, cfg.OllamaTimeout)
	a.Embedder = a.selectEmbedder(ctx)
	a.Index = a.openIndex()
	a.Cache = a.openCache(ctx)
	a.Aggregator = aggregate.New(aggregate.Options{
		MaxConcurrent: cfg.MaxConcurrentSources,
		Timeout:       cfg.SourceTimeout,
		CacheTTL:      cfg.CacheTTL(),
		Breaker:       aggregate.DefaultOptions().Breaker,
		Limiter:       aggregate.DefaultOptions().Limiter,
		Cache:         a.Cache,
		Metrics:       a.Metrics,
		Logger:        logger,
	}, Sources(cfg, logger)...)
	a.Graph = a.openGraph(ctx)

	a.Events, a.NATS = natsutil.Connect(cfg.NATSURL, "carfinder", logger)
	if a.NATS != nil {
		nc := a.NATS
		a.onClose(func(context.Context) error { return nc.Drain() })
	}

	deps := ingest.Deps{Store: st, Embedder: a.Embedder, Index: a.Index, Events: a.Events, Logger: logger}
	if a.Graph != nil {
		deps.Graph = a.Graph
	}
	a.Pipeline = ingest.New(deps, ingest.DefaultOptions())

	var gen prefs.Generator
	if cfg.LLMEnabled {
		gen = a.Ollama
	}
	a.Finder = finder.New(finder.Deps{
		Store: st,
		Retriever: retrieve.New(st, a.Index, a.Embedder, retrieve.Options{
			Threshold:     cfg.SimilarityThreshold,
			TopK:          cfg.RerankTopK,
			Limit:         cfg.MaxResults,
			SearchTimeout: retrieve.DefaultOptions().SearchTimeout,
		}, logger),
		Scorer:     score.New(),
		Extractor:  prefs.New(gen, cfg.OllamaModel, logger),
		Aggregator: a.Aggregator,
		Embedder:   a.Embedder,
		Index:      a.Index,
		Model:      a.Ollama,
		Events:     a.Events,
		Logger:     logger,
	}, finder.Options{
		MaxResults:      cfg.MaxResults,
		Threshold:       cfg.SimilarityThreshold,
		Live:            cfg.EnableLiveData,
		CacheLive:       cfg.EnableLiveData && cfg.CacheDurationHours > 0,
		Radius:          cfg.DefaultSearchRadius,
		PerSourceLimit:  cfg.MaxResultsPerSource,
		StatusCheckTime: finder.DefaultOptions().StatusCheckTime,
	})
	return a, nil
}

func (a *App) onClose(f func(context.Context) error) {
	a.closers = append(a.closers, f)
}

// Close releases every connection in reverse order of opening.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadIndex builds the embedding index from the stored vectors. Processes
// call it once at startup; a failure leaves the index empty and search falls
// back to attribute filters.
func (a *App) LoadIndex(ctx context.Context) int {
	n, err := a.Pipeline.BuildIndex(ctx)
	if err != nil {
		a.Logger.Warn("index build failed", "err", err)
		return 0
	}
	return n
}

func (a *App) selectEmbedder(ctx context.Context) semantic.Embedder {
	if a.Config.HashEmbeddings() {
		return semantic.NewHashEmbedder(a.Config.EmbeddingDim)
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return semantic.SelectEmbedder(checkCtx, a.Ollama, a.Config.EmbeddingModel, a.Config.EmbeddingDim, a.Logger)
}

func (a *App) openIndex() semantic.Index {
	if a.Config.QdrantURL == "" {
		return semantic.NewMemoryIndex()
	}
	q, err := semantic.NewQdrantIndex(a.Config.QdrantURL, a.Config.QdrantCollection, a.Logger)
	if err != nil {
		a.Logger.Warn("qdrant unavailable, using in-memory index", "url", a.Config.QdrantURL, "err", err)
		return semantic.NewMemoryIndex()
	}
	a.onClose(func(context.Context) error { return q.Close() })
	return q
}

func (a *App) openCache(ctx context.Context) cache.Client {
	if a.Config.RedisAddr != "" {
		rc, err := cache.NewRedisClient(ctx, cache.RedisConfig{Addr: a.Config.RedisAddr})
		if err == nil {
			a.onClose(func(context.Context) error { return rc.Close() })
			return rc
		}
		a.Logger.Warn("redis unavailable, using in-memory cache", "addr", a.Config.RedisAddr, "err", err)
	}
	mc := cache.NewMemoryClient(memoryCacheSize)
	a.onClose(func(context.Context) error { return mc.Close() })
	return mc
}

func (a *App) openGraph(ctx context.Context) *graph.GraphStore {
	if a.Config.Neo4jURL == "" {
		return nil
	}
	d, err := repo.Connect(ctx, a.Config.Neo4jURL, a.Config.Neo4jUser, a.Config.Neo4jPass)
	if err != nil {
		a.Logger.Warn("neo4j unavailable, graph mirror disabled", "url", a.Config.Neo4jURL, "err", err)
		return nil
	}
	a.onClose(d.Close)
	return graph.New(d, a.Logger)
}

// Sources returns the listing sources for cfg: auto.dev when its key is set,
// otherwise the built-in sample sources.
func Sources(cfg *config.Config, logger *slog.Logger) []aggregate.Source {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AutoDevAPIKey != "" {
		logger.Info("listing source registered", "source", aggregate.SourceAutoDev)
		return []aggregate.Source{aggregate.NewAutoDev(aggregate.DefaultAutoDevURL, cfg.AutoDevAPIKey, cfg.SourceTimeout)}
	}
	sources := []aggregate.Source{aggregate.CarsCom(), aggregate.AutoTrader(), aggregate.CarGurus()}
	keyed := map[string]bool{
		aggregate.SourceAutoTrader: cfg.AutoTraderAPIKey != "",
		aggregate.SourceCarGurus:   cfg.CarGurusAPIKey != "",
	}
	for _, s := range sources {
		logger.Info("listing source registered", "source", s.Name(), "sample", true, "keyed", keyed[s.Name()])
	}
	return sources
}
