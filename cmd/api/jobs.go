package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/singleflight"

	"github.com/WessleyAI/carfinder/engine/finder"
	"github.com/WessleyAI/carfinder/engine/semantic"
)

// refreshTimeout bounds one scheduled live-data refresh.
const refreshTimeout = 2 * time.Minute

// startRefresh schedules f.RefreshLive every interval.
//
//nolint:ireturn // gocron exposes its scheduler as an interface
func startRefresh(f *finder.Finder, every time.Duration, logger *slog.Logger) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(logger.With("component", "scheduler")),
	)
	if err != nil {
		return nil, err
	}
	_, err = s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			if _, err := f.RefreshLive(ctx); err != nil {
				logger.Warn("scheduled refresh failed", "err", err)
			}
		}),
		gocron.WithName("refresh-live-data"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}
	s.Start()
	logger.Info("live data refresh scheduled", "every", every)
	return s, nil
}

// indexBuilder rebuilds the embedding index from the store.
type indexBuilder interface {
	BuildIndex(ctx context.Context) (int, error)
}

// indexReloader rebuilds the local index when another process announces a
// newer one. Events for a generation no newer than the current index are
// ignored, which includes the event this process publishes for its own reload.
type indexReloader struct {
	builder indexBuilder
	index   semantic.Index
	group   singleflight.Group
	logger  *slog.Logger
}

func (r *indexReloader) handle(ctx context.Context, info semantic.IndexInfo) {
	if !info.BuiltAt.After(r.index.Info().BuiltAt) {
		return
	}
	v, err, _ := r.group.Do("reload", func() (any, error) {
		return r.builder.BuildIndex(ctx)
	})
	if err != nil {
		r.logger.WarnContext(ctx, "index reload failed", "err", err)
		return
	}
	r.logger.InfoContext(ctx, "index reloaded", "vectors", v, "announced_model", info.Model)
}
