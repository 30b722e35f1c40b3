package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ipro-analytics/ipro-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS datasets (
	id         TEXT PRIMARY KEY,
	filename   TEXT NOT NULL,
	hash       TEXT NOT NULL UNIQUE,
	rows       INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'processing',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS transactions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	dataset_id TEXT NOT NULL REFERENCES datasets(id),
	date       DATETIME NOT NULL,
	order_id   TEXT NOT NULL DEFAULT '',
	client     TEXT NOT NULL,
	seller     TEXT NOT NULL DEFAULT '',
	sku        TEXT NOT NULL,
	product    TEXT NOT NULL,
	price      REAL NOT NULL DEFAULT 0,
	qty        INTEGER NOT NULL DEFAULT 1,
	subtotal   REAL NOT NULL DEFAULT 0,
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
	monetary       REAL NOT NULL,
	avg_ticket     REAL NOT NULL,
	gm_cliente     REAL NOT NULL,
	tier           TEXT NOT NULL,
	segment        TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	uf             TEXT NOT NULL DEFAULT '',
	last_order     DATETIME NOT NULL,
	rfm_score      REAL NOT NULL,
	segment_weight REAL NOT NULL,
	PRIMARY KEY (dataset_id, client)
);

CREATE TABLE IF NOT EXISTS product_analytics (
	dataset_id      TEXT NOT NULL REFERENCES datasets(id),
	sku             TEXT NOT NULL,
	product         TEXT NOT NULL,
	orders          INTEGER NOT NULL,
	qty             INTEGER NOT NULL,
	revenue         REAL NOT NULL,
	avg_ticket      REAL NOT NULL,
	turnover_median REAL NOT NULL,
	hero_mix        INTEGER NOT NULL DEFAULT 0,
	growth_zscore   REAL NOT NULL,
	growth_yoy      REAL NOT NULL,
	PRIMARY KEY (dataset_id, sku)
);

CREATE TABLE IF NOT EXISTS alerts (
	id                 TEXT PRIMARY KEY,
	dataset_id         TEXT NOT NULL REFERENCES datasets(id),
	client             TEXT NOT NULL,
	sku                TEXT NOT NULL DEFAULT '',
	type               TEXT NOT NULL,
	insight            TEXT NOT NULL,
	action             TEXT NOT NULL,
	reliability        TEXT NOT NULL,
	suggested_deadline TEXT NOT NULL,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS dataset_kpis (
	dataset_id TEXT PRIMARY KEY REFERENCES datasets(id),
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateDataset(ctx context.Context, filename, hash string, rows int) (*model.Dataset, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO datasets (id, filename, hash, rows, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, filename, hash, rows, string(model.DatasetProcessing), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert dataset %s", filename)
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

func (s *SQLiteStore) GetDataset(ctx context.Context, id string) (*model.Dataset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, hash, rows, status, created_at FROM datasets WHERE id = ?`, id)
	return scanDataset(row)
}

func (s *SQLiteStore) GetDatasetByHash(ctx context.Context, hash string) (*model.Dataset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, filename, hash, rows, status, created_at FROM datasets WHERE hash = ?`, hash)
	d, err := scanDataset(row)
	if err != nil && eris.Is(err, errNotFound) {
		return nil, nil
	}
	return d, err
}

func (s *SQLiteStore) ListDatasets(ctx context.Context, limit, offset int) ([]model.Dataset, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, hash, rows, status, created_at FROM datasets
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list datasets")
	}
	defer rows.Close()

	var out []model.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list datasets iterate")
}

func (s *SQLiteStore) SetDatasetStatus(ctx context.Context, id string, status model.DatasetStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update dataset status %s", id)
	}
	return checkRowsAffected(res, "dataset", id)
}

// InsertTransactions bulk-inserts normalized rows; exact repeats of the
// same line item are ignored via the dedupe index. Returns the number of
// rows actually inserted.
func (s *SQLiteStore) InsertTransactions(ctx context.Context, txs []model.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert transactions")
	}
	defer dbTx.Rollback() //nolint:errcheck

	stmt, err := dbTx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO transactions
		 (dataset_id, date, order_id, client, seller, sku, product, price, qty, subtotal, category, segment, city, uf)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert transactions")
	}
	defer stmt.Close()

	inserted := 0
	for _, tx := range txs {
		res, err := stmt.ExecContext(ctx,
			tx.DatasetID, tx.Date.UTC(), tx.OrderID, tx.Client, tx.Seller, tx.SKU, tx.Product,
			tx.Price, tx.Qty, tx.Subtotal, tx.Category, tx.Segment, tx.City, tx.UF)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert transaction for %s", tx.Client)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += int(n)
	}

	if err := dbTx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert transactions")
	}
	return inserted, nil
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, datasetID string) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dataset_id, date, order_id, client, seller, sku, product, price, qty, subtotal, category, segment, city, uf
		 FROM transactions WHERE dataset_id = ? ORDER BY date, order_id, sku`, datasetID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list transactions")
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var tx model.Transaction
		if err := rows.Scan(&tx.DatasetID, &tx.Date, &tx.OrderID, &tx.Client, &tx.Seller,
			&tx.SKU, &tx.Product, &tx.Price, &tx.Qty, &tx.Subtotal,
			&tx.Category, &tx.Segment, &tx.City, &tx.UF); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan transaction")
		}
		tx.Date = tx.Date.UTC()
		out = append(out, tx)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list transactions iterate")
}

// ReplaceCustomerAnalytics swaps the derived customer rows for a dataset
// in one transaction, so readers never observe a half-replaced set.
func (s *SQLiteStore) ReplaceCustomerAnalytics(ctx context.Context, datasetID string, rows []model.CustomerAnalytics) error {
	return s.replace(ctx, datasetID,
		`DELETE FROM customer_analytics WHERE dataset_id = ?`,
		func(dbTx *sql.Tx) error {
			stmt, err := dbTx.PrepareContext(ctx,
				`INSERT INTO customer_analytics
				 (dataset_id, client, recency, frequency, monetary, avg_ticket, gm_cliente, tier, segment, city, uf, last_order, rfm_score, segment_weight)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
			if err != nil {
				return eris.Wrap(err, "sqlite: prepare customer analytics")
			}
			defer stmt.Close()
			for _, c := range rows {
				if _, err := stmt.ExecContext(ctx,
					datasetID, c.Client, c.Recency, c.Frequency, c.Monetary, c.AvgTicket, c.GMCliente,
					string(c.Tier), c.Segment, c.City, c.UF, c.LastOrder.UTC(), c.RFMScore, c.SegmentWeight); err != nil {
					return eris.Wrapf(err, "sqlite: insert customer analytics %s", c.Client)
				}
			}
			return nil
		})
}

func (s *SQLiteStore) ReplaceProductAnalytics(ctx context.Context, datasetID string, rows []model.ProductAnalytics) error {
	return s.replace(ctx, datasetID,
		`DELETE FROM product_analytics WHERE dataset_id = ?`,
		func(dbTx *sql.Tx) error {
			stmt, err := dbTx.PrepareContext(ctx,
				`INSERT INTO product_analytics
				 (dataset_id, sku, product, orders, qty, revenue, avg_ticket, turnover_median, hero_mix, growth_zscore, growth_yoy)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
			if err != nil {
				return eris.Wrap(err, "sqlite: prepare product analytics")
			}
			defer stmt.Close()
			for _, p := range rows {
				if _, err := stmt.ExecContext(ctx,
					datasetID, p.SKU, p.Product, p.Orders, p.Qty, p.Revenue, p.AvgTicket,
					p.TurnoverMedian, p.HeroMix, p.GrowthZScore, p.GrowthYoY); err != nil {
					return eris.Wrapf(err, "sqlite: insert product analytics %s", p.SKU)
				}
			}
			return nil
		})
}

func (s *SQLiteStore) ReplaceAlerts(ctx context.Context, datasetID string, alerts []model.Alert) error {
	now := time.Now().UTC()
	return s.replace(ctx, datasetID,
		`DELETE FROM alerts WHERE dataset_id = ?`,
		func(dbTx *sql.Tx) error {
			stmt, err := dbTx.PrepareContext(ctx,
				`INSERT INTO alerts
				 (id, dataset_id, client, sku, type, insight, action, reliability, suggested_deadline, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
			if err != nil {
				return eris.Wrap(err, "sqlite: prepare alerts")
			}
			defer stmt.Close()
			for _, a := range alerts {
				if _, err := stmt.ExecContext(ctx,
					uuid.New().String(), datasetID, a.Client, a.SKU, string(a.Type),
					a.Insight, a.Action, string(a.Reliability), a.SuggestedDeadline, now); err != nil {
					return eris.Wrapf(err, "sqlite: insert alert for %s", a.Client)
				}
			}
			return nil
		})
}

func (s *SQLiteStore) SaveKPIs(ctx context.Context, datasetID string, kpis model.GeneralKPIs) error {
	data, err := json.Marshal(kpis)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal kpis")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dataset_kpis (dataset_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(dataset_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		datasetID, string(data), time.Now().UTC())
	return eris.Wrap(err, "sqlite: save kpis")
}

func (s *SQLiteStore) GetKPIs(ctx context.Context, datasetID string) (*model.GeneralKPIs, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM dataset_kpis WHERE dataset_id = ?`, datasetID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get kpis")
	}
	var kpis model.GeneralKPIs
	if err := json.Unmarshal([]byte(data), &kpis); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal kpis")
	}
	return &kpis, nil
}

func (s *SQLiteStore) ListCustomerAnalytics(ctx context.Context, datasetID string) ([]model.CustomerAnalytics, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dataset_id, client, recency, frequency, monetary, avg_ticket, gm_cliente, tier, segment, city, uf, last_order, rfm_score, segment_weight
		 FROM customer_analytics WHERE dataset_id = ? ORDER BY rfm_score DESC, client`, datasetID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list customer analytics")
	}
	defer rows.Close()

	var out []model.CustomerAnalytics
	for rows.Next() {
		var c model.CustomerAnalytics
		var tier string
		if err := rows.Scan(&c.DatasetID, &c.Client, &c.Recency, &c.Frequency, &c.Monetary,
			&c.AvgTicket, &c.GMCliente, &tier, &c.Segment, &c.City, &c.UF,
			&c.LastOrder, &c.RFMScore, &c.SegmentWeight); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan customer analytics")
		}
		c.Tier = model.Tier(tier)
		c.LastOrder = c.LastOrder.UTC()
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list customer analytics iterate")
}

func (s *SQLiteStore) ListProductAnalytics(ctx context.Context, datasetID string) ([]model.ProductAnalytics, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dataset_id, sku, product, orders, qty, revenue, avg_ticket, turnover_median, hero_mix, growth_zscore, growth_yoy
		 FROM product_analytics WHERE dataset_id = ? ORDER BY revenue DESC, sku`, datasetID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list product analytics")
	}
	defer rows.Close()

	var out []model.ProductAnalytics
	for rows.Next() {
		var p model.ProductAnalytics
		if err := rows.Scan(&p.DatasetID, &p.SKU, &p.Product, &p.Orders, &p.Qty, &p.Revenue,
			&p.AvgTicket, &p.TurnoverMedian, &p.HeroMix, &p.GrowthZScore, &p.GrowthYoY); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product analytics")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list product analytics iterate")
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, datasetID string, filter AlertFilter) ([]model.Alert, error) {
	query := `SELECT dataset_id, client, sku, type, insight, action, reliability, suggested_deadline
	          FROM alerts WHERE dataset_id = ?`
	args := []any{datasetID}

	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.Reliability != "" {
		query += ` AND reliability = ?`
		args = append(args, string(filter.Reliability))
	}
	if filter.Client != "" {
		query += ` AND client = ?`
		args = append(args, filter.Client)
	}
	query += ` ORDER BY type, client, sku`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		var a model.Alert
		var typ, rel string
		if err := rows.Scan(&a.DatasetID, &a.Client, &a.SKU, &typ, &a.Insight,
			&a.Action, &rel, &a.SuggestedDeadline); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		a.Type = model.AlertType(typ)
		a.Reliability = model.Reliability(rel)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list alerts iterate")
}

func (s *SQLiteStore) UpsertRegistry(ctx context.Context, records []model.CustomerRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin registry upsert")
	}
	defer dbTx.Rollback() //nolint:errcheck

	stmt, err := dbTx.PrepareContext(ctx,
		`INSERT INTO customer_registry (client, segment, city, uf) VALUES (?, ?, ?, ?)
		 ON CONFLICT(client) DO UPDATE SET segment = excluded.segment, city = excluded.city, uf = excluded.uf`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare registry upsert")
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Client, r.Segment, r.City, r.UF); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert registry %s", r.Client)
		}
	}
	if err := dbTx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit registry upsert")
	}
	return len(records), nil
}

func (s *SQLiteStore) ListRegistry(ctx context.Context) ([]model.CustomerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client, segment, city, uf FROM customer_registry ORDER BY client`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list registry")
	}
	defer rows.Close()

	var out []model.CustomerRecord
	for rows.Next() {
		var r model.CustomerRecord
		if err := rows.Scan(&r.Client, &r.Segment, &r.City, &r.UF); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan registry")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list registry iterate")
}

// helpers

var errNotFound = eris.New("not found")

func (s *SQLiteStore) replace(ctx context.Context, datasetID, deleteSQL string, insert func(*sql.Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace")
	}
	defer dbTx.Rollback() //nolint:errcheck

	if _, err := dbTx.ExecContext(ctx, deleteSQL, datasetID); err != nil {
		return eris.Wrapf(err, "sqlite: delete for dataset %s", datasetID)
	}
	if err := insert(dbTx); err != nil {
		return err
	}
	return eris.Wrap(dbTx.Commit(), "sqlite: commit replace")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanDataset(row scannable) (*model.Dataset, error) {
	var d model.Dataset
	var status string
	err := row.Scan(&d.ID, &d.Filename, &d.Hash, &d.Rows, &status, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(errNotFound, "dataset")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan dataset")
	}
	d.Status = model.DatasetStatus(status)
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}
