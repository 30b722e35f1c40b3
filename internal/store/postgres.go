package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ipro-analytics/ipro-cli/internal/db"
	"github.com/ipro-analytics/ipro-cli/internal/model"
	"github.com/ipro-analytics/ipro-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	// The server may still be starting up; retry the initial ping on
	// transient failures.
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("postgres ping")
	err = resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS datasets (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	filename   TEXT NOT NULL,
	hash       TEXT NOT NULL UNIQUE,
	rows       INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'processing',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transactions (
	id         BIGSERIAL PRIMARY KEY,
	dataset_id TEXT NOT NULL REFERENCES datasets(id),
	date       TIMESTAMPTZ NOT NULL,
	order_id   TEXT NOT NULL DEFAULT '',
	client     TEXT NOT NULL,
	seller     TEXT NOT NULL DEFAULT '',
	sku        TEXT NOT NULL,
	product    TEXT NOT NULL,
	price      DOUBLE PRECISION NOT NULL DEFAULT 0,
	qty        INTEGER NOT NULL DEFAULT 1,
	subtotal   DOUBLE PRECISION NOT NULL DEFAULT 0,
	category   TEXT NOT NULL DEFAULT '',
	segment    TEXT NOT NULL DEFAULT '',
	city       TEXT NOT NULL DEFAULT '',
	uf         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS customer_analytics (
	dataset_id     TEXT NOT NULL REFERENCES datasets(id),
	client         TEXT NOT NULL,
	recency        INTEGER NOT NULL,
	frequency      INTEGER NOT NULL,
	monetary       DOUBLE PRECISION NOT NULL,
	avg_ticket     DOUBLE PRECISION NOT NULL,
	gm_cliente     DOUBLE PRECISION NOT NULL,
	tier           TEXT NOT NULL,
	segment        TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	uf             TEXT NOT NULL DEFAULT '',
	last_order     TIMESTAMPTZ NOT NULL,
	rfm_score      DOUBLE PRECISION NOT NULL,
	segment_weight DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (dataset_id, client)
);

CREATE TABLE IF NOT EXISTS product_analytics (
	dataset_id      TEXT NOT NULL REFERENCES datasets(id),
	sku             TEXT NOT NULL,
	product         TEXT NOT NULL,
	orders          INTEGER NOT NULL,
	qty             INTEGER NOT NULL,
	revenue         DOUBLE PRECISION NOT NULL,
	avg_ticket      DOUBLE PRECISION NOT NULL,
	turnover_median DOUBLE PRECISION NOT NULL,
	hero_mix        BOOLEAN NOT NULL DEFAULT false,
	growth_zscore   DOUBLE PRECISION NOT NULL,
	growth_yoy      DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (dataset_id, sku)
);

CREATE TABLE IF NOT EXISTS alerts (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	dataset_id         TEXT NOT NULL REFERENCES datasets(id),
	client             TEXT NOT NULL,
	sku                TEXT NOT NULL DEFAULT '',
	type               TEXT NOT NULL,
	insight            TEXT NOT NULL,
	action             TEXT NOT NULL,
	reliability        TEXT NOT NULL,
	suggested_deadline TEXT NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dataset_kpis (
	dataset_id TEXT PRIMARY KEY REFERENCES datasets(id),
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS customer_registry (
	client  TEXT PRIMARY KEY,
	segment TEXT NOT NULL DEFAULT '',
	city    TEXT NOT NULL DEFAULT '',
	uf      TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tx_dedupe
	ON transactions(dataset_id, date, order_id, sku, client, qty, price);
CREATE INDEX IF NOT EXISTS idx_tx_dataset ON transactions(dataset_id);
CREATE INDEX IF NOT EXISTS idx_tx_client ON transactions(dataset_id, client);
CREATE INDEX IF NOT EXISTS idx_tx_sku ON transactions(dataset_id, sku);
CREATE INDEX IF NOT EXISTS idx_alerts_dataset ON alerts(dataset_id);
CREATE INDEX IF NOT EXISTS idx_alerts_type ON alerts(dataset_id, type);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateDataset(ctx context.Context, filename, hash string, rows int) (*model.Dataset, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO datasets (id, filename, hash, rows, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, filename, hash, rows, string(model.DatasetProcessing), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert dataset %s", filename)
	}

	return &model.Dataset{
		ID:        id,
		Filename:  filename,
		Hash:      hash,
		Rows:      rows,
		Status:    model.DatasetProcessing,
		CreatedAt: now,
	}, nil
}

func (s *PostgresStore) GetDataset(ctx context.Context, id string) (*model.Dataset, error) {
	var d model.Dataset
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, hash, rows, status, created_at FROM datasets WHERE id = $1`, id,
	).Scan(&d.ID, &d.Filename, &d.Hash, &d.Rows, &status, &d.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get dataset %s", id)
	}
	d.Status = model.DatasetStatus(status)
	return &d, nil
}

func (s *PostgresStore) GetDatasetByHash(ctx context.Context, hash string) (*model.Dataset, error) {
	var d model.Dataset
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, filename, hash, rows, status, created_at FROM datasets WHERE hash = $1`, hash,
	).Scan(&d.ID, &d.Filename, &d.Hash, &d.Rows, &status, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get dataset by hash")
	}
	d.Status = model.DatasetStatus(status)
	return &d, nil
}

func (s *PostgresStore) ListDatasets(ctx context.Context, limit, offset int) ([]model.Dataset, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, filename, hash, rows, status, created_at FROM datasets
		 ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list datasets")
	}
	defer rows.Close()

	var out []model.Dataset
	for rows.Next() {
		var d model.Dataset
		var status string
		if err := rows.Scan(&d.ID, &d.Filename, &d.Hash, &d.Rows, &status, &d.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dataset")
		}
		d.Status = model.DatasetStatus(status)
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list datasets iterate")
}

func (s *PostgresStore) SetDatasetStatus(ctx context.Context, id string, status model.DatasetStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE datasets SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update dataset status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dataset not found: %s", id)
	}
	return nil
}

var txColumns = []string{
	"dataset_id", "date", "order_id", "client", "seller", "sku", "product",
	"price", "qty", "subtotal", "category", "segment", "city", "uf",
}

// InsertTransactions bulk-loads normalized rows via COPY. Callers dedupe
// before insert; dataset-level hash dedupe prevents whole-file replays.
func (s *PostgresStore) InsertTransactions(ctx context.Context, txs []model.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}
	rows := make([][]any, len(txs))
	for i, tx := range txs {
		rows[i] = []any{
			tx.DatasetID, tx.Date.UTC(), tx.OrderID, tx.Client, tx.Seller, tx.SKU, tx.Product,
			tx.Price, tx.Qty, tx.Subtotal, tx.Category, tx.Segment, tx.City, tx.UF,
		}
	}
	n, err := db.CopyFrom(ctx, s.pool, "transactions", txColumns, rows)
	return int(n), err
}

func (s *PostgresStore) ListTransactions(ctx context.Context, datasetID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT dataset_id, date, order_id, client, seller, sku, product, price, qty, subtotal, category, segment, city, uf
		 FROM transactions WHERE dataset_id = $1 ORDER BY date, order_id, sku`, datasetID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list transactions")
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var tx model.Transaction
		if err := rows.Scan(&tx.DatasetID, &tx.Date, &tx.OrderID, &tx.Client, &tx.Seller,
			&tx.SKU, &tx.Product, &tx.Price, &tx.Qty, &tx.Subtotal,
			&tx.Category, &tx.Segment, &tx.City, &tx.UF); err != nil {
			return nil, eris.Wrap(err, "postgres: scan transaction")
		}
		tx.Date = tx.Date.UTC()
		out = append(out, tx)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list transactions iterate")
}

func (s *PostgresStore) ReplaceCustomerAnalytics(ctx context.Context, datasetID string, rows []model.CustomerAnalytics) error {
	data := make([][]any, len(rows))
	for i, c := range rows {
		data[i] = []any{
			datasetID, c.Client, c.Recency, c.Frequency, c.Monetary, c.AvgTicket, c.GMCliente,
			string(c.Tier), c.Segment, c.City, c.UF, c.LastOrder.UTC(), c.RFMScore, c.SegmentWeight,
		}
	}
	return s.replace(ctx, datasetID, "customer_analytics",
		[]string{"dataset_id", "client", "recency", "frequency", "monetary", "avg_ticket", "gm_cliente",
			"tier", "segment", "city", "uf", "last_order", "rfm_score", "segment_weight"},
		data)
}

func (s *PostgresStore) ReplaceProductAnalytics(ctx context.Context, datasetID string, rows []model.ProductAnalytics) error {
	data := make([][]any, len(rows))
	for i, p := range rows {
		data[i] = []any{
			datasetID, p.SKU, p.Product, p.Orders, p.Qty, p.Revenue, p.AvgTicket,
			p.TurnoverMedian, p.HeroMix, p.GrowthZScore, p.GrowthYoY,
		}
	}
	return s.replace(ctx, datasetID, "product_analytics",
		[]string{"dataset_id", "sku", "product", "orders", "qty", "revenue", "avg_ticket",
			"turnover_median", "hero_mix", "growth_zscore", "growth_yoy"},
		data)
}

func (s *PostgresStore) ReplaceAlerts(ctx context.Context, datasetID string, alerts []model.Alert) error {
	now := time.Now().UTC()
	data := make([][]any, len(alerts))
	for i, a := range alerts {
		data[i] = []any{
			uuid.New().String(), datasetID, a.Client, a.SKU, string(a.Type),
			a.Insight, a.Action, string(a.Reliability), a.SuggestedDeadline, now,
		}
	}
	return s.replace(ctx, datasetID, "alerts",
		[]string{"id", "dataset_id", "client", "sku", "type", "insight", "action",
			"reliability", "suggested_deadline", "created_at"},
		data)
}

// replace deletes a dataset's derived rows and COPYs the new set in one
// transaction.
func (s *PostgresStore) replace(ctx context.Context, datasetID, table string, columns []string, rows [][]any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "postgres: begin replace %s", table)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE dataset_id = $1`, table), datasetID); err != nil {
		return eris.Wrapf(err, "postgres: delete %s for dataset %s", table, datasetID)
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrapf(err, "postgres: COPY %s for dataset %s", table, datasetID)
		}
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: commit replace %s", table)
}

func (s *PostgresStore) SaveKPIs(ctx context.Context, datasetID string, kpis model.GeneralKPIs) error {
	data, err := json.Marshal(kpis)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal kpis")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO dataset_kpis (dataset_id, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (dataset_id) DO UPDATE SET data = $2, updated_at = $3`,
		datasetID, data, time.Now().UTC())
	return eris.Wrap(err, "postgres: save kpis")
}

func (s *PostgresStore) GetKPIs(ctx context.Context, datasetID string) (*model.GeneralKPIs, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM dataset_kpis WHERE dataset_id = $1`, datasetID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get kpis")
	}
	var kpis model.GeneralKPIs
	if err := json.Unmarshal(data, &kpis); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal kpis")
	}
	return &kpis, nil
}

func (s *PostgresStore) ListCustomerAnalytics(ctx context.Context, datasetID string) ([]model.CustomerAnalytics, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT dataset_id, client, recency, frequency, monetary, avg_ticket, gm_cliente, tier, segment, city, uf, last_order, rfm_score, segment_weight
		 FROM customer_analytics WHERE dataset_id = $1 ORDER BY rfm_score DESC, client`, datasetID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list customer analytics")
	}
	defer rows.Close()

	var out []model.CustomerAnalytics
	for rows.Next() {
		var c model.CustomerAnalytics
		var tier string
		if err := rows.Scan(&c.DatasetID, &c.Client, &c.Recency, &c.Frequency, &c.Monetary,
			&c.AvgTicket, &c.GMCliente, &tier, &c.Segment, &c.City, &c.UF,
			&c.LastOrder, &c.RFMScore, &c.SegmentWeight); err != nil {
			return nil, eris.Wrap(err, "postgres: scan customer analytics")
		}
		c.Tier = model.Tier(tier)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list customer analytics iterate")
}

func (s *PostgresStore) ListProductAnalytics(ctx context.Context, datasetID string) ([]model.ProductAnalytics, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT dataset_id, sku, product, orders, qty, revenue, avg_ticket, turnover_median, hero_mix, growth_zscore, growth_yoy
		 FROM product_analytics WHERE dataset_id = $1 ORDER BY revenue DESC, sku`, datasetID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list product analytics")
	}
	defer rows.Close()

	var out []model.ProductAnalytics
	for rows.Next() {
		var p model.ProductAnalytics
		if err := rows.Scan(&p.DatasetID, &p.SKU, &p.Product, &p.Orders, &p.Qty, &p.Revenue,
			&p.AvgTicket, &p.TurnoverMedian, &p.HeroMix, &p.GrowthZScore, &p.GrowthYoY); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product analytics")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list product analytics iterate")
}

func (s *PostgresStore) ListAlerts(ctx context.Context, datasetID string, filter AlertFilter) ([]model.Alert, error) {
	query := `SELECT dataset_id, client, sku, type, insight, action, reliability, suggested_deadline
	          FROM alerts WHERE dataset_id = $1`
	args := []any{datasetID}
	argIdx := 2

	if filter.Type != "" {
		query += fmt.Sprintf(` AND type = $%d`, argIdx)
		args = append(args, string(filter.Type))
		argIdx++
	}
	if filter.Reliability != "" {
		query += fmt.Sprintf(` AND reliability = $%d`, argIdx)
		args = append(args, string(filter.Reliability))
		argIdx++
	}
	if filter.Client != "" {
		query += fmt.Sprintf(` AND client = $%d`, argIdx)
		args = append(args, filter.Client)
		argIdx++
	}
	query += ` ORDER BY type, client, sku`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alerts")
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		var typ, rel string
		if err := rows.Scan(&a.DatasetID, &a.Client, &a.SKU, &typ, &a.Insight,
			&a.Action, &rel, &a.SuggestedDeadline); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		a.Type = model.AlertType(typ)
		a.Reliability = model.Reliability(rel)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list alerts iterate")
}

// UpsertRegistry merges customer master rows; re-imports refresh
// existing clients in place.
func (s *PostgresStore) UpsertRegistry(ctx context.Context, records []model.CustomerRecord) (int, error) {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{r.Client, r.Segment, r.City, r.UF}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "customer_registry",
		Columns:      []string{"client", "segment", "city", "uf"},
		ConflictKeys: []string{"client"},
	}, rows)
	return int(n), err
}

func (s *PostgresStore) ListRegistry(ctx context.Context) ([]model.CustomerRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT client, segment, city, uf FROM customer_registry ORDER BY client`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list registry")
	}
	defer rows.Close()

	var out []model.CustomerRecord
	for rows.Next() {
		var r model.CustomerRecord
		if err := rows.Scan(&r.Client, &r.Segment, &r.City, &r.UF); err != nil {
			return nil, eris.Wrap(err, "postgres: scan registry")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list registry iterate")
}
