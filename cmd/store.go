package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ipro-analytics/ipro-cli/internal/pipeline"
	"github.com/ipro-analytics/ipro-cli/internal/segment"
	"github.com/ipro-analytics/ipro-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "ipro.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// newRunner wires a pipeline Runner from the loaded config. referenceDate
// may be zero for "now".
func newRunner(st store.Store, referenceDate time.Time) *pipeline.Runner {
	return pipeline.NewRunner(st, pipeline.Options{
		ReferenceDate:        referenceDate,
		LogisticsDelayDays:   cfg.Analytics.LogisticsDelayDays,
		RepurchaseWindowDays: cfg.Analytics.RepurchaseWindowDays,
		ZThreshold:           cfg.Analytics.ZThreshold,
		HeroPercentile:       cfg.Analytics.HeroPercentile,
		SegmentWeights: segment.Weights{
			Mix:       cfg.Segmentation.MixWeight,
			Volume:    cfg.Segmentation.VolumeWeight,
			Frequency: cfg.Segmentation.FrequencyWeight,
		},
		AliasFile:   cfg.Ingest.AliasFile,
		Concurrency: cfg.Ingest.Concurrency,
	})
}

// parseReferenceDate accepts an optional YYYY-MM-DD anchor for the
// recency clock.
func parseReferenceDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "invalid reference date %q (want YYYY-MM-DD)", s)
	}
	return t.UTC(), nil
}
