package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Checker periodically samples pipeline health and logs when the
// dataset failure rate is elevated.
type Checker struct {
	collector     *Collector
	interval      time.Duration
	lookbackHours int
	failRateWarn  float64
}

// NewChecker builds a background health checker. Zero values fall back
// to a 5 minute interval, 24h lookback, and a 0.25 warn threshold.
func NewChecker(collector *Collector, interval time.Duration, lookbackHours int, failRateWarn float64) *Checker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if lookbackHours <= 0 {
		lookbackHours = 24
	}
	if failRateWarn <= 0 {
		failRateWarn = 0.25
	}
	return &Checker{
		collector:     collector,
		interval:      interval,
		lookbackHours: lookbackHours,
		failRateWarn:  failRateWarn,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting health checker",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookbackHours),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx, c.lookbackHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return
	}

	if snap.FailRate >= c.failRateWarn && snap.DatasetsFailed > 0 {
		log.Warn("monitoring: elevated dataset failure rate",
			zap.Float64("fail_rate", snap.FailRate),
			zap.Int("failed", snap.DatasetsFailed),
			zap.Int("total", snap.DatasetsTotal),
		)
		return
	}

	log.Debug("monitoring: health check complete",
		zap.Int("datasets", snap.DatasetsTotal),
		zap.Float64("fail_rate", snap.FailRate),
	)
}
