package store

import (
	"context"

	"github.com/ipro-analytics/ipro-cli/internal/model"
)

// AlertFilter specifies criteria for listing alerts.
type AlertFilter struct {
	Type        model.AlertType   `json:"type,omitempty"`
	Reliability model.Reliability `json:"reliability,omitempty"`
	Client      string            `json:"client,omitempty"`
	Limit       int               `json:"limit,omitempty"`
}

// Store defines the persistence interface for the analytics pipeline.
// Derived rows (analytics, alerts, KPIs) are replaced wholesale per
// dataset on every recomputation.
type Store interface {
	// Datasets
	CreateDataset(ctx context.Context, filename, hash string, rows int) (*model.Dataset, error)
	GetDataset(ctx context.Context, id string) (*model.Dataset, error)
	GetDatasetByHash(ctx context.Context, hash string) (*model.Dataset, error)
	ListDatasets(ctx context.Context, limit, offset int) ([]model.Dataset, error)
	SetDatasetStatus(ctx context.Context, id string, status model.DatasetStatus) error

	// Transactions
	InsertTransactions(ctx context.Context, txs []model.Transaction) (int, error)
	ListTransactions(ctx context.Context, datasetID string) ([]model.Transaction, error)

	// Derived analytics
	ReplaceCustomerAnalytics(ctx context.Context, datasetID string, rows []model.CustomerAnalytics) error
	ReplaceProductAnalytics(ctx context.Context, datasetID string, rows []model.ProductAnalytics) error
	ReplaceAlerts(ctx context.Context, datasetID string, alerts []model.Alert) error
	SaveKPIs(ctx context.Context, datasetID string, kpis model.GeneralKPIs) error
	ListCustomerAnalytics(ctx context.Context, datasetID string) ([]model.CustomerAnalytics, error)
	ListProductAnalytics(ctx context.Context, datasetID string) ([]model.ProductAnalytics, error)
	ListAlerts(ctx context.Context, datasetID string, filter AlertFilter) ([]model.Alert, error)
	GetKPIs(ctx context.Context, datasetID string) (*model.GeneralKPIs, error)

	// Customer registry
	UpsertRegistry(ctx context.Context, records []model.CustomerRecord) (int, error)
	ListRegistry(ctx context.Context) ([]model.CustomerRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
