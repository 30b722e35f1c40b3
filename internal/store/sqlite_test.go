package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipro-analytics/ipro-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedDataset(t *testing.T, st *SQLiteStore) *model.Dataset {
	t.Helper()
	d, err := st.CreateDataset(context.Background(), "vendas.xlsx", "hash-"+t.Name(), 0)
	require.NoError(t, err)
	return d
}

func testTx(datasetID, client, sku, orderID string, day int, qty int, subtotal float64) model.Transaction {
	return model.Transaction{
		DatasetID: datasetID,
		Date:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day),
		OrderID:   orderID,
		Client:    client,
		SKU:       sku,
		Product:   sku,
		Price:     subtotal / float64(qty),
		Qty:       qty,
		Subtotal:  subtotal,
	}
}

// --- Datasets ---

func TestSQLite_Dataset_CreateAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := seedDataset(t, st)
	assert.Equal(t, model.DatasetProcessing, d.Status)

	got, err := st.GetDataset(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "vendas.xlsx", got.Filename)
	assert.Equal(t, d.Hash, got.Hash)
}

func TestSQLite_Dataset_HashLookup(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := seedDataset(t, st)

	got, err := st.GetDatasetByHash(ctx, d.Hash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, d.ID, got.ID)

	missing, err := st.GetDatasetByHash(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_Dataset_DuplicateHashRejected(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.CreateDataset(ctx, "a.xlsx", "same-hash", 0)
	require.NoError(t, err)
	_, err = st.CreateDataset(ctx, "b.xlsx", "same-hash", 0)
	assert.Error(t, err)
}

func TestSQLite_Dataset_SetStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := seedDataset(t, st)
	require.NoError(t, st.SetDatasetStatus(ctx, d.ID, model.DatasetCompleted))

	got, err := st.GetDataset(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DatasetCompleted, got.Status)

	err = st.SetDatasetStatus(ctx, "missing", model.DatasetFailed)
	assert.Error(t, err)
}

// --- Transactions ---

func TestSQLite_Transactions_InsertAndList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := seedDataset(t, st)
	n, err := st.InsertTransactions(ctx, []model.Transaction{
		testTx(d.ID, "cliente 1", "SKU-A", "1", 0, 10, 100),
		testTx(d.ID, "cliente 1", "SKU-A", "2", 15, 8, 90),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	txs, err := st.ListTransactions(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "SKU-A", txs[0].SKU)
	assert.True(t, txs[0].Date.Before(txs[1].Date))
}

func TestSQLite_Transactions_DedupeOnInsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := seedDataset(t, st)
	row := testTx(d.ID, "cliente 1", "SKU-A", "1", 0, 10, 100)

	n, err := st.InsertTransactions(ctx, []model.Transaction{row, row})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	txs, err := st.ListTransactions(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

// --- Derived analytics ---

func TestSQLite_CustomerAnalytics_ReplaceIsWholesale(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := seedDataset(t, st)
	first := []model.CustomerAnalytics{
		{DatasetID: d.ID, Client: "cliente 1", Recency: 10, Frequency: 2, Monetary: 190,
			AvgTicket: 95, GMCliente: 15, Tier: model.TierGrowth,
			LastOrder: time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), RFMScore: 0.42, SegmentWeight: 0.8},
		{DatasetID: d.ID, Client: "cliente 2", Recency: 30, Frequency: 1, Monetary: 60,
			AvgTicket: 60, Tier: model.TierRisco,
			LastOrder: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), RFMScore: 0.3, SegmentWeight: 1},
	}
	require.NoError(t, st.ReplaceCustomerAnalytics(ctx, d.ID, first))

	// Second run drops cliente 2.
	require.NoError(t, st.ReplaceCustomerAnalytics(ctx, d.ID, first[:1]))

	got, err := st.ListCustomerAnalytics(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cliente 1", got[0].Client)
	assert.Equal(t, model.TierGrowth, got[0].Tier)
	assert.InDelta(t, 0.42, got[0].RFMScore, 1e-9)
}

func TestSQLite_ProductAnalytics_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := seedDataset(t, st)
	rows := []model.ProductAnalytics{
		{DatasetID: d.ID, SKU: "SKU-A", Product: "Produto A", Orders: 2, Qty: 18,
			Revenue: 190, AvgTicket: 95, TurnoverMedian: 15, HeroMix: true, GrowthZScore: 1.2},
		{DatasetID: d.ID, SKU: "SKU-B", Product: "Produto B", Orders: 1, Qty: 5,
			Revenue: 60, AvgTicket: 60},
	}
	require.NoError(t, st.ReplaceProductAnalytics(ctx, d.ID, rows))

	got, err := st.ListProductAnalytics(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Listed by revenue descending.
	assert.Equal(t, "SKU-A", got[0].SKU)
	assert.True(t, got[0].HeroMix)
	assert.False(t, got[1].HeroMix)
}

func TestSQLite_Alerts_FilterByTypeAndReliability(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := seedDataset(t, st)
	alerts := []model.Alert{
		{DatasetID: d.ID, Client: "cliente 1", SKU: "SKU-A", Type: model.AlertRuptura,
			Insight: "i1", Action: "a1", Reliability: model.ReliabilityHigh, SuggestedDeadline: "3 dias"},
		{DatasetID: d.ID, Client: "cliente 2", SKU: "SKU-B", Type: model.AlertRuptura,
			Insight: "i2", Action: "a2", Reliability: model.ReliabilityLow, SuggestedDeadline: "3 dias"},
		{DatasetID: d.ID, Client: "cliente 1", Type: model.AlertQuedaBrusca,
			Insight: "i3", Action: "a3", Reliability: model.ReliabilityHigh, SuggestedDeadline: "1 semana"},
	}
	require.NoError(t, st.ReplaceAlerts(ctx, d.ID, alerts))

	rupturas, err := st.ListAlerts(ctx, d.ID, AlertFilter{Type: model.AlertRuptura})
	require.NoError(t, err)
	assert.Len(t, rupturas, 2)

	high, err := st.ListAlerts(ctx, d.ID, AlertFilter{Reliability: model.ReliabilityHigh})
	require.NoError(t, err)
	assert.Len(t, high, 2)

	c1, err := st.ListAlerts(ctx, d.ID, AlertFilter{Client: "cliente 1", Type: model.AlertQuedaBrusca})
	require.NoError(t, err)
	require.Len(t, c1, 1)
	assert.Equal(t, "i3", c1[0].Insight)
}

func TestSQLite_KPIs_SaveAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	d := seedDataset(t, st)
	kpis := model.GeneralKPIs{TotalRevenue: 320, TotalCustomers: 2, TotalOrders: 4, AvgTicket: 80}
	require.NoError(t, st.SaveKPIs(ctx, d.ID, kpis))

	// Re-save overwrites.
	kpis.TotalRevenue = 400
	require.NoError(t, st.SaveKPIs(ctx, d.ID, kpis))

	got, err := st.GetKPIs(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 400, got.TotalRevenue, 1e-9)

	missing, err := st.GetKPIs(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// --- Registry ---

func TestSQLite_Registry_UpsertRefreshesInPlace(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertRegistry(ctx, []model.CustomerRecord{
		{Client: "mercado azul", Segment: "Mid", City: "Recife", UF: "PE"},
	})
	require.NoError(t, err)

	_, err = st.UpsertRegistry(ctx, []model.CustomerRecord{
		{Client: "mercado azul", Segment: "Premium", City: "Recife", UF: "PE"},
	})
	require.NoError(t, err)

	got, err := st.ListRegistry(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Premium", got[0].Segment)
}
