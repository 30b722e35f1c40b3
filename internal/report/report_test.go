package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/ipro-analytics/ipro-cli/internal/model"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func sampleCustomers() []model.CustomerAnalytics {
	return []model.CustomerAnalytics{
		{
			DatasetID: "d1", Client: "Cliente 1", Recency: 75, Frequency: 2,
			Monetary: 190, AvgTicket: 95, GMCliente: 15, Tier: model.TierGrowth,
			Segment: "Premium", City: "São Paulo", UF: "SP",
			LastOrder: base.AddDate(0, 0, 15), RFMScore: 0.42, SegmentWeight: 0.8,
		},
		{
			DatasetID: "d1", Client: "Cliente 2", Recency: 30, Frequency: 2,
			Monetary: 130, AvgTicket: 65, GMCliente: 30, Tier: model.TierRisco,
			Segment: "Mid", LastOrder: base.AddDate(0, 0, 60), RFMScore: 0.40, SegmentWeight: 0.7,
		},
	}
}

func sampleTransactions() []model.Transaction {
	return []model.Transaction{
		{DatasetID: "d1", Client: "Cliente 1", SKU: "SKU-A", Product: "Produto A", OrderID: "1", Date: base, Qty: 10, Subtotal: 100},
		{DatasetID: "d1", Client: "Cliente 1", SKU: "SKU-A", Product: "Produto A", OrderID: "2", Date: base.AddDate(0, 0, 15), Qty: 8, Subtotal: 90},
		{DatasetID: "d1", Client: "Cliente 2", SKU: "SKU-B", Product: "Produto B", OrderID: "3", Date: base.AddDate(0, 1, 0), Qty: 5, Subtotal: 60},
	}
}

func TestBuild_SheetContract(t *testing.T) {
	tables := Build(sampleCustomers(), nil, model.GeneralKPIs{}, sampleTransactions(), 20)
	require.Len(t, tables, 5)

	names := make([]string, len(tables))
	for i, tbl := range tables {
		names[i] = tbl.Name
	}
	assert.Equal(t, []string{
		SheetClients, SheetHistory, SheetMix, SheetRelationship, SheetBehavior,
	}, names)
}

func TestClientTable_SortedByScore(t *testing.T) {
	tables := Build(sampleCustomers(), nil, model.GeneralKPIs{}, nil, 20)
	clients := tables[0]
	require.Len(t, clients.Rows, 2)
	assert.Equal(t, "Cliente 1", clients.Rows[0][0])
	assert.Equal(t, "Cliente 2", clients.Rows[1][0])
}

func TestHistoryTable_MonthlyBuckets(t *testing.T) {
	tables := Build(nil, nil, model.GeneralKPIs{}, sampleTransactions(), 20)
	history := tables[1]
	require.Len(t, history.Rows, 2)

	jan := history.Rows[0]
	assert.Equal(t, "2024-01", jan[0])
	assert.Equal(t, "190.00", jan[1]) // revenue
	assert.Equal(t, "2", jan[2])      // orders
	assert.Equal(t, "1", jan[3])      // clients
	assert.Equal(t, "18", jan[4])     // volume
	assert.Equal(t, "95.00", jan[5])  // avg ticket

	feb := history.Rows[1]
	assert.Equal(t, "2024-02", feb[0])
	assert.Equal(t, "60.00", feb[1])
}

func TestRelationshipTable_ProjectsNextWindow(t *testing.T) {
	tables := Build(sampleCustomers(), nil, model.GeneralKPIs{}, nil, 20)
	rel := tables[3]
	require.Len(t, rel.Rows, 2)

	// Cliente 1: last order Jan 16 + (15 + 20) days.
	assert.Equal(t, "35", rel.Rows[0][8])
	assert.Equal(t, "20/02/2024", rel.Rows[0][9])
}

func TestBehaviorTable_TierCounts(t *testing.T) {
	kpis := model.GeneralKPIs{TotalCustomers: 2, TotalProducts: 2, TotalOrders: 4, AvgTicket: 80}
	tables := Build(sampleCustomers(), nil, kpis, nil, 20)
	behavior := tables[4]

	rows := make(map[string]string)
	for _, r := range behavior.Rows {
		rows[r[0]] = r[1]
	}
	assert.Equal(t, "2", rows["Total de clientes"])
	assert.Equal(t, "80.00", rows["Ticket médio"])
	assert.Equal(t, "1", rows["Clientes growth"])
	assert.Equal(t, "1", rows["Clientes risco"])
}

func TestAlertTable_UsesMarkers(t *testing.T) {
	alerts := []model.Alert{
		{Client: "Cliente 1", SKU: "SKU-A", Type: model.AlertRuptura, Reliability: model.ReliabilityHigh},
	}
	table := AlertTable(alerts)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, model.ReliabilityHigh.Marker(), table.Rows[0][5])
}

func TestInsightTable_KeepsOrdinalReliability(t *testing.T) {
	alerts := []model.Alert{
		{Client: "Cliente 1", Type: model.AlertQuedaBrusca, Reliability: model.ReliabilityMedium},
	}
	table := InsightTable(alerts)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "medium", table.Rows[0][4])
}

func TestWriteWorkbook_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	tables := Build(sampleCustomers(), nil, model.GeneralKPIs{}, sampleTransactions(), 20)
	alertSheets := []Table{
		InsightTable(nil),
		AlertTable([]model.Alert{{Client: "Cliente 1", Type: model.AlertRuptura, Reliability: model.ReliabilityLow}}),
	}

	require.NoError(t, WriteWorkbook(path, tables, alertSheets))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 7)

	// Sheet names are truncated to the XLSX 31-char limit.
	for _, sheet := range f.Sheets {
		assert.LessOrEqual(t, len([]rune(sheet.Name)), 31)
	}
}
