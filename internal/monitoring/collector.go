// Package monitoring gathers operational health snapshots of the
// dataset pipeline for the status command and the serve loop.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/ipro-analytics/ipro-cli/internal/model"
	"github.com/ipro-analytics/ipro-cli/internal/store"
)

// Snapshot holds a point-in-time view of pipeline health.
type Snapshot struct {
	// Dataset metrics (within lookback window).
	DatasetsTotal      int     `json:"datasets_total"`
	DatasetsCompleted  int     `json:"datasets_completed"`
	DatasetsFailed     int     `json:"datasets_failed"`
	DatasetsProcessing int     `json:"datasets_processing"`
	FailRate           float64 `json:"fail_rate"`
	RowsIngested       int     `json:"rows_ingested"`

	// Registry size.
	RegistryRecords int `json:"registry_records"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// statsPageSize bounds one stats query; datasets past it are ignored,
// matching the listing default elsewhere.
const statsPageSize = 10000

// Collect gathers a snapshot over the given lookback window. A
// non-positive lookback includes all datasets.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	var cutoff time.Time
	if lookbackHours > 0 {
		cutoff = time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)
	}

	datasets, err := c.store.ListDatasets(ctx, statsPageSize, 0)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list datasets")
	}

	for _, d := range datasets {
		if !cutoff.IsZero() && d.CreatedAt.Before(cutoff) {
			continue
		}
		snap.DatasetsTotal++
		snap.RowsIngested += d.Rows
		switch d.Status {
		case model.DatasetCompleted:
			snap.DatasetsCompleted++
		case model.DatasetFailed:
			snap.DatasetsFailed++
		case model.DatasetProcessing:
			snap.DatasetsProcessing++
		}
	}

	finished := snap.DatasetsCompleted + snap.DatasetsFailed
	if finished > 0 {
		snap.FailRate = float64(snap.DatasetsFailed) / float64(finished)
	}

	records, err := c.store.ListRegistry(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list registry")
	}
	snap.RegistryRecords = len(records)

	return snap, nil
}
