package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/ipro-analytics/ipro-cli/internal/model"
	"github.com/ipro-analytics/ipro-cli/internal/store"
)

func newTestRunner(t *testing.T) (*Runner, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	r := NewRunner(st, Options{
		ReferenceDate:      time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		LogisticsDelayDays: 20,
	})
	return r, st
}

// writeReport produces a minimal structured sales report with enough
// history to exercise the full analytics pass.
func writeReport(t *testing.T, name string, extraRows ...[]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Vendas")
	require.NoError(t, err)

	rows := [][]string{
		{"data", "pedido", "cliente", "produto", "qtd", "preco", "total"},
		{"01/01/2024", "1", "Cliente Um", "Produto A", "10", "10,00", "100,00"},
		{"16/01/2024", "2", "Cliente Um", "Produto A", "8", "11,25", "90,00"},
		{"01/02/2024", "3", "Cliente Dois", "Produto B", "5", "12,00", "60,00"},
		{"02/03/2024", "4", "Cliente Dois", "Produto B", "5", "14,00", "70,00"},
	}
	rows = append(rows, extraRows...)
	for _, row := range rows {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().SetString(v)
		}
	}

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.Save(path))
	return path
}

func TestProcess_EndToEnd(t *testing.T) {
	r, st := newTestRunner(t)
	ctx := context.Background()

	d, err := r.Process(ctx, writeReport(t, "vendas.xlsx"))
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "vendas.xlsx", d.Filename)
	assert.Equal(t, 4, d.Rows)

	got, err := st.GetDataset(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DatasetCompleted, got.Status)

	customers, err := st.ListCustomerAnalytics(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, customers, 2)

	products, err := st.ListProductAnalytics(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, products, 2)

	kpis, err := st.GetKPIs(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, kpis)
	assert.InDelta(t, 320, kpis.TotalRevenue, 1e-9)
	assert.Equal(t, 4, kpis.TotalOrders)

	// Both clients exceeded their expected repurchase window well before
	// the reference date, so ruptura alerts must exist.
	alerts, err := st.ListAlerts(ctx, d.ID, store.AlertFilter{Type: model.AlertRuptura})
	require.NoError(t, err)
	assert.NotEmpty(t, alerts)
}

func TestProcess_DuplicateFileSkipped(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx := context.Background()

	path := writeReport(t, "vendas.xlsx")
	first, err := r.Process(ctx, path)
	require.NoError(t, err)

	second, err := r.Process(ctx, path)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrDuplicate))
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
}

func TestAnalyze_Rerunnable(t *testing.T) {
	r, st := newTestRunner(t)
	ctx := context.Background()

	d, err := r.Process(ctx, writeReport(t, "vendas.xlsx"))
	require.NoError(t, err)

	firstCustomers, err := st.ListCustomerAnalytics(ctx, d.ID)
	require.NoError(t, err)

	require.NoError(t, r.Analyze(ctx, d.ID))

	secondCustomers, err := st.ListCustomerAnalytics(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, firstCustomers, secondCustomers)
}

func TestExport_WritesWorkbook(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx := context.Background()

	d, err := r.Process(ctx, writeReport(t, "vendas.xlsx"))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "relatorio.xlsx")
	require.NoError(t, r.Export(ctx, d.ID, out))

	f, err := xlsx.OpenFile(out)
	require.NoError(t, err)
	assert.Len(t, f.Sheets, 7)
}

func TestProcessAll_MixedDuplicates(t *testing.T) {
	r, _ := newTestRunner(t)
	ctx := context.Background()

	pathA := writeReport(t, "a.xlsx")
	pathB := writeReport(t, "b.xlsx",
		[]string{"05/03/2024", "5", "Cliente Tres", "Produto C", "2", "30,00", "60,00"})

	_, err := r.Process(ctx, pathA)
	require.NoError(t, err)

	// Replay of A plus a fresh B: no error, both datasets reported.
	datasets, err := r.ProcessAll(ctx, []string{pathA, pathB})
	require.NoError(t, err)
	assert.Len(t, datasets, 2)
}

func TestImportRegistry_EnrichesSubsequentIngest(t *testing.T) {
	r, st := newTestRunner(t)
	ctx := context.Background()

	regFile := xlsx.NewFile()
	sheet, err := regFile.AddSheet("Clientes")
	require.NoError(t, err)
	for _, row := range [][]string{
		{"Cliente", "Segmento", "Cidade", "UF"},
		{"Cliente Um", "Premium", "Recife", "PE"},
	} {
		xr := sheet.AddRow()
		for _, v := range row {
			xr.AddCell().SetString(v)
		}
	}
	regPath := filepath.Join(t.TempDir(), "clientes.xlsx")
	require.NoError(t, regFile.Save(regPath))

	n, err := r.ImportRegistry(ctx, regPath)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	d, err := r.Process(ctx, writeReport(t, "vendas.xlsx"))
	require.NoError(t, err)

	customers, err := st.ListCustomerAnalytics(ctx, d.ID)
	require.NoError(t, err)

	var umSegment string
	for _, c := range customers {
		if c.Client == "cliente um" {
			umSegment = c.Segment
		}
	}
	assert.Equal(t, "Premium", umSegment)
}
