// Package pipeline orchestrates the ingest -> analyze -> persist flow
// for sales datasets.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ipro-analytics/ipro-cli/internal/ingest"
	"github.com/ipro-analytics/ipro-cli/internal/insights"
	"github.com/ipro-analytics/ipro-cli/internal/metrics"
	"github.com/ipro-analytics/ipro-cli/internal/model"
	"github.com/ipro-analytics/ipro-cli/internal/report"
	"github.com/ipro-analytics/ipro-cli/internal/segment"
	"github.com/ipro-analytics/ipro-cli/internal/store"
)

// Options tunes the analytics pass. Zero values fall back to the
// documented defaults.
type Options struct {
	ReferenceDate        time.Time // zero = time.Now().UTC()
	LogisticsDelayDays   int
	RepurchaseWindowDays int
	ZThreshold           float64
	HeroPercentile       float64
	SegmentWeights       segment.Weights
	AliasFile            string
	Concurrency          int // parallel file ingests in ProcessAll
}

// Runner drives dataset processing end to end against a Store.
type Runner struct {
	store store.Store
	opts  Options

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRunner builds a Runner.
func NewRunner(st store.Store, opts Options) *Runner {
	if opts.LogisticsDelayDays <= 0 {
		opts.LogisticsDelayDays = insights.DefaultLogisticsDelayDays
	}
	if opts.RepurchaseWindowDays <= 0 {
		opts.RepurchaseWindowDays = insights.DefaultRepurchaseWindowDays
	}
	if opts.ZThreshold <= 0 {
		opts.ZThreshold = insights.DefaultZThreshold
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	return &Runner{
		store: st,
		opts:  opts,
		locks: make(map[string]*sync.Mutex),
	}
}

// datasetLock serializes analysis runs per dataset. Concurrent runs on
// different datasets proceed independently.
func (r *Runner) datasetLock(datasetID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[datasetID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[datasetID] = l
	}
	return l
}

// Process ingests one report file: extract, dedupe against previously
// seen files by content hash, persist, and analyze. Returns the dataset
// either way; ErrDuplicate distinguishes a replayed file.
func (r *Runner) Process(ctx context.Context, path string) (*model.Dataset, error) {
	log := zap.L().With(zap.String("file", filepath.Base(path)))

	hash, err := fileHash(path)
	if err != nil {
		return nil, err
	}

	if existing, err := r.store.GetDatasetByHash(ctx, hash); err != nil {
		return nil, eris.Wrap(err, "pipeline: hash lookup")
	} else if existing != nil {
		log.Info("pipeline: file already processed", zap.String("dataset_id", existing.ID))
		return existing, ErrDuplicate
	}

	registry, err := r.loadRegistry(ctx)
	if err != nil {
		return nil, err
	}
	aliases, err := ingest.LoadAliases(r.opts.AliasFile)
	if err != nil {
		return nil, err
	}

	txs, err := ingest.NewExtractor(aliases, registry).ExtractFile(path)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, eris.Errorf("pipeline: no transactions found in %s", filepath.Base(path))
	}

	dataset, err := r.store.CreateDataset(ctx, filepath.Base(path), hash, len(txs))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create dataset")
	}
	for i := range txs {
		txs[i].DatasetID = dataset.ID
	}

	inserted, err := r.store.InsertTransactions(ctx, txs)
	if err != nil {
		r.markFailed(ctx, dataset.ID)
		return dataset, eris.Wrap(err, "pipeline: insert transactions")
	}
	log.Info("pipeline: transactions ingested",
		zap.String("dataset_id", dataset.ID),
		zap.Int("extracted", len(txs)),
		zap.Int("inserted", inserted),
	)

	if err := r.Analyze(ctx, dataset.ID); err != nil {
		return dataset, err
	}
	return dataset, nil
}

// ErrDuplicate marks a file whose content hash was already ingested.
var ErrDuplicate = eris.New("pipeline: duplicate dataset")

// ProcessAll ingests several report files concurrently. Duplicates are
// skipped, not treated as failures.
func (r *Runner) ProcessAll(ctx context.Context, paths []string) ([]model.Dataset, error) {
	var mu sync.Mutex
	var out []model.Dataset

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for _, path := range paths {
		g.Go(func() error {
			d, err := r.Process(gCtx, path)
			if err != nil && !eris.Is(err, ErrDuplicate) {
				return err
			}
			if d != nil {
				mu.Lock()
				out = append(out, *d)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// Analyze recomputes all derived analytics for a dataset and replaces
// them in the store. Safe to re-run; results are idempotent for a fixed
// reference date.
func (r *Runner) Analyze(ctx context.Context, datasetID string) error {
	lock := r.datasetLock(datasetID)
	lock.Lock()
	defer lock.Unlock()

	log := zap.L().With(zap.String("dataset_id", datasetID))
	start := time.Now()

	txs, err := r.store.ListTransactions(ctx, datasetID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load transactions")
	}

	ref := r.opts.ReferenceDate
	if ref.IsZero() {
		ref = time.Now().UTC()
	}

	calc := metrics.NewCalculator(ref, r.opts.LogisticsDelayDays)
	if r.opts.HeroPercentile > 0 {
		calc.HeroPercentile = r.opts.HeroPercentile
	}
	customers := calc.CustomerRFM(txs, datasetID)
	products := calc.ProductAnalytics(txs, datasetID)
	kpis := calc.GeneralKPIs(txs)

	gen := insights.NewGenerator(ref, r.opts.LogisticsDelayDays, r.opts.RepurchaseWindowDays, r.opts.ZThreshold)
	gen.SetSegmentWeights(r.opts.SegmentWeights)
	alerts := gen.Generate(txs, datasetID)

	if err := r.store.ReplaceCustomerAnalytics(ctx, datasetID, customers); err != nil {
		r.markFailed(ctx, datasetID)
		return eris.Wrap(err, "pipeline: replace customer analytics")
	}
	if err := r.store.ReplaceProductAnalytics(ctx, datasetID, products); err != nil {
		r.markFailed(ctx, datasetID)
		return eris.Wrap(err, "pipeline: replace product analytics")
	}
	if err := r.store.ReplaceAlerts(ctx, datasetID, alerts); err != nil {
		r.markFailed(ctx, datasetID)
		return eris.Wrap(err, "pipeline: replace alerts")
	}
	if err := r.store.SaveKPIs(ctx, datasetID, kpis); err != nil {
		r.markFailed(ctx, datasetID)
		return eris.Wrap(err, "pipeline: save kpis")
	}
	if err := r.store.SetDatasetStatus(ctx, datasetID, model.DatasetCompleted); err != nil {
		return eris.Wrap(err, "pipeline: mark completed")
	}

	log.Info("pipeline: analysis complete",
		zap.Int("customers", len(customers)),
		zap.Int("products", len(products)),
		zap.Int("alerts", len(alerts)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Export assembles the full workbook for a dataset at the given path.
func (r *Runner) Export(ctx context.Context, datasetID, path string) error {
	customers, err := r.store.ListCustomerAnalytics(ctx, datasetID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load customer analytics")
	}
	products, err := r.store.ListProductAnalytics(ctx, datasetID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load product analytics")
	}
	kpisPtr, err := r.store.GetKPIs(ctx, datasetID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load kpis")
	}
	var kpis model.GeneralKPIs
	if kpisPtr != nil {
		kpis = *kpisPtr
	}
	alerts, err := r.store.ListAlerts(ctx, datasetID, store.AlertFilter{})
	if err != nil {
		return eris.Wrap(err, "pipeline: load alerts")
	}
	txs, err := r.store.ListTransactions(ctx, datasetID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load transactions")
	}

	tables := report.Build(customers, products, kpis, txs, r.opts.LogisticsDelayDays)
	alertSheets := []report.Table{report.InsightTable(alerts), report.AlertTable(alerts)}
	return report.WriteWorkbook(path, tables, alertSheets)
}

// ImportRegistry loads a customer master spreadsheet into the registry.
// Expected columns: cliente, segmento, cidade, uf.
func (r *Runner) ImportRegistry(ctx context.Context, path string) (int, error) {
	records, err := ingest.ReadRegistryFile(path)
	if err != nil {
		return 0, err
	}
	n, err := r.store.UpsertRegistry(ctx, records)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: upsert registry")
	}
	zap.L().Info("pipeline: registry imported", zap.Int("records", n))
	return n, nil
}

func (r *Runner) loadRegistry(ctx context.Context) (*ingest.Registry, error) {
	records, err := r.store.ListRegistry(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load registry")
	}
	if len(records) == 0 {
		return nil, nil
	}
	reg := &ingest.Registry{
		Segment: make(map[string]string, len(records)),
		City:    make(map[string]string, len(records)),
		UF:      make(map[string]string, len(records)),
	}
	for _, rec := range records {
		reg.Segment[rec.Client] = rec.Segment
		reg.City[rec.Client] = rec.City
		reg.UF[rec.Client] = rec.UF
	}
	return reg, nil
}

func (r *Runner) markFailed(ctx context.Context, datasetID string) {
	if err := r.store.SetDatasetStatus(ctx, datasetID, model.DatasetFailed); err != nil {
		zap.L().Warn("pipeline: failed to mark dataset failed",
			zap.String("dataset_id", datasetID), zap.Error(err))
	}
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: open %s", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", eris.Wrapf(err, "pipeline: hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
