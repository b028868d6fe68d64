// Package ingest loads catalog CSVs into the vehicle store through a staged
// pipeline: parse, validate, embed, store, mirror. It also recomputes stale
// embeddings and rebuilds the embedding index.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/engine/graph"
	"github.com/WessleyAI/carfinder/engine/semantic"
	"github.com/WessleyAI/carfinder/engine/store"
	"github.com/WessleyAI/carfinder/pkg/fn"
	"github.com/WessleyAI/carfinder/pkg/natsutil"
	"github.com/WessleyAI/carfinder/pkg/resilience"
)

// Deps holds the external dependencies of the pipeline. Graph and Events
// are optional.
type Deps struct {
	Store    *store.Store
	Embedder semantic.Embedder
	Index    semantic.Index
	Graph    graph.Mirror
	Events   natsutil.Publisher
	Logger   *slog.Logger
}

// Options tunes the pipeline.
type Options struct {
	Workers   int
	Retry     fn.RetryOpts
	EmbedRate resilience.LimiterOpts
}

// DefaultOptions embeds with four workers and no rate limit.
func DefaultOptions() Options {
	return Options{Workers: 4, Retry: fn.DefaultRetry}
}

// Pipeline ingests CSV catalogs and maintains embeddings.
type Pipeline struct {
	deps    Deps
	opts    Options
	limiter *resilience.Limiter
	logger  *slog.Logger
	prepare fn.Stage[Row, domain.Vehicle]
	embed   fn.Stage[domain.Vehicle, []float32]
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Events == nil {
		deps.Events = natsutil.Nop{}
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	p := &Pipeline{
		deps:    deps,
		opts:    opts,
		limiter: resilience.NewLimiter(opts.EmbedRate),
		logger:  deps.Logger.With("component", "ingest"),
	}
	p.embed = fn.Traced("ingest.embed", fn.RetryStage(opts.Retry,
		resilience.Stage(p.limiter, fn.Lift(func(ctx context.Context, v domain.Vehicle) ([]float32, error) {
			return deps.Embedder.Embed(ctx, domain.EmbeddingText(v))
		}))))
	p.prepare = fn.Then(
		fn.Then(fn.Traced("ingest.parse", Parse), fn.Traced("ingest.validate", Validate)),
		fn.Traced("ingest.attach_embedding", fn.Stage[domain.Vehicle, domain.Vehicle](p.attachEmbedding)),
	)
	return p
}

// Parse surfaces a row's parse error or yields its vehicle.
var Parse fn.Stage[Row, domain.Vehicle] = func(_ context.Context, r Row) fn.Result[domain.Vehicle] {
	if r.Err != nil {
		return fn.Err[domain.Vehicle](r.Err)
	}
	return fn.Ok(r.Vehicle)
}

// Validate normalizes a vehicle and checks it against the catalog rules.
var Validate fn.Stage[domain.Vehicle, domain.Vehicle] = func(_ context.Context, v domain.Vehicle) fn.Result[domain.Vehicle] {
	v = domain.NormalizeVehicle(v)
	v.Source = domain.SourceLocal
	if err := domain.ValidateVehicle(v); err != nil {
		return fn.Err[domain.Vehicle](err)
	}
	return fn.Ok(v)
}

// attachEmbedding never fails the row: a vehicle whose embedding cannot be
// computed is stored without one and picked up by the next reindex.
func (p *Pipeline) attachEmbedding(ctx context.Context, v domain.Vehicle) fn.Result[domain.Vehicle] {
	vec, err := p.embed(ctx, v).Unwrap()
	if err != nil {
		p.logger.Warn("embedding failed, vehicle left stale", "vehicle", v.Title(), "err", err)
		return fn.Ok(v)
	}
	v.Embedding, v.EmbeddingModel = vec, p.deps.Embedder.Model()
	return fn.Ok(v)
}

// IngestOptions selects the ingest mode.
type IngestOptions struct {
	// Replace deletes the local catalog before loading, in one transaction.
	Replace bool
	// NoIndex skips the index rebuild.
	NoIndex bool
	// Progress is called once per processed row. It must be safe for
	// concurrent use.
	Progress func(n int)
}

// RowError reports a skipped row.
type RowError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// Report summarizes an ingest run.
type Report struct {
	Rows       int           `json:"rows"`
	Inserted   int           `json:"inserted"`
	Duplicates int           `json:"duplicates"`
	Invalid    int           `json:"invalid"`
	Embedded   int           `json:"embedded"`
	Replaced   int64         `json:"replaced"`
	Indexed    int           `json:"indexed"`
	Errors     []RowError    `json:"errors,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Ingest loads a catalog CSV. Malformed and invalid rows are skipped and
// counted; duplicate VINs are skipped and logged. Only a store failure aborts
// the run.
func (p *Pipeline) Ingest(ctx context.Context, r io.Reader, opts IngestOptions) (Report, error) {
	start := time.Now()
	rows, err := ParseCSV(r)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Rows: len(rows)}

	results := fn.ParMap(ctx, rows, p.opts.Workers, func(ctx context.Context, row Row) fn.Result[domain.Vehicle] {
		res := p.prepare(ctx, row)
		if opts.Progress != nil {
			opts.Progress(1)
		}
		return res
	})

	var ready []domain.Vehicle
	for i, res := range results {
		v, err := res.Unwrap()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return rep, ctxErr
			}
			rep.Invalid++
			rep.Errors = append(rep.Errors, RowError{Line: rows[i].Line, Err: err.Error()})
			p.logger.Warn("skipping invalid row", "line", rows[i].Line, "err", err)
			continue
		}
		ready = append(ready, v)
	}

	var inserted []domain.Vehicle
	insertAll := func(insert func(context.Context, *domain.Vehicle) error) error {
		for i := range ready {
			v := &ready[i]
			if err := insert(ctx, v); err != nil {
				if errors.Is(err, store.ErrDuplicateVIN) {
					rep.Duplicates++
					p.logger.Warn("skipping duplicate vin", "vin", v.VIN, "vehicle", v.Title())
					continue
				}
				return err
			}
			rep.Inserted++
			if len(v.Embedding) > 0 {
				rep.Embedded++
			}
			inserted = append(inserted, *v)
		}
		return nil
	}

	if opts.Replace {
		err = p.deps.Store.WithTx(ctx, func(tx *store.Tx) error {
			n, err := tx.DeleteAll(ctx)
			if err != nil {
				return err
			}
			rep.Replaced = n
			return insertAll(tx.Insert)
		})
	} else {
		err = insertAll(p.deps.Store.Insert)
	}
	if err != nil {
		return rep, fmt.Errorf("ingest: store: %w", err)
	}

	p.mirror(ctx, inserted)

	if !opts.NoIndex {
		n, err := p.BuildIndex(ctx)
		if err != nil {
			p.logger.Warn("index rebuild failed", "err", err)
		}
		rep.Indexed = n
	}

	rep.Duration = time.Since(start)
	p.logger.Info("ingest completed",
		"rows", rep.Rows, "inserted", rep.Inserted, "duplicates", rep.Duplicates,
		"invalid", rep.Invalid, "embedded", rep.Embedded, "duration", rep.Duration)
	p.publish(ctx, natsutil.SubjectIngestCompleted, rep)
	return rep, nil
}

func (p *Pipeline) mirror(ctx context.Context, vs []domain.Vehicle) {
	if p.deps.Graph == nil || len(vs) == 0 {
		return
	}
	if err := p.deps.Graph.SaveVehicles(ctx, vs); err != nil {
		p.logger.Warn("graph mirror failed", "count", len(vs), "err", err)
	}
}

func (p *Pipeline) publish(ctx context.Context, subject string, v any) {
	if err := p.deps.Events.Publish(ctx, subject, v); err != nil {
		p.logger.Warn("publish failed", "subject", subject, "err", err)
	}
}
