package monitoring

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipro-analytics/ipro-cli/internal/model"
	"github.com/ipro-analytics/ipro-cli/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "monitoring.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestCollect_Empty(t *testing.T) {
	st := newTestStore(t)

	snap, err := NewCollector(st).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.DatasetsTotal)
	assert.Equal(t, 0.0, snap.FailRate)
	assert.Equal(t, 0, snap.RegistryRecords)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollect_CountsByStatus(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	ok, err := st.CreateDataset(ctx, "jan.xlsx", "h1", 100)
	require.NoError(t, err)
	require.NoError(t, st.SetDatasetStatus(ctx, ok.ID, model.DatasetCompleted))

	bad, err := st.CreateDataset(ctx, "fev.xlsx", "h2", 40)
	require.NoError(t, err)
	require.NoError(t, st.SetDatasetStatus(ctx, bad.ID, model.DatasetFailed))

	_, err = st.CreateDataset(ctx, "mar.xlsx", "h3", 10)
	require.NoError(t, err)

	snap, err := NewCollector(st).Collect(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.DatasetsTotal)
	assert.Equal(t, 1, snap.DatasetsCompleted)
	assert.Equal(t, 1, snap.DatasetsFailed)
	assert.Equal(t, 1, snap.DatasetsProcessing)
	assert.Equal(t, 150, snap.RowsIngested)
	assert.InDelta(t, 0.5, snap.FailRate, 1e-9)
}

func TestCollect_RegistrySize(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.UpsertRegistry(ctx, []model.CustomerRecord{
		{Client: "padaria central", Segment: "Padaria"},
		{Client: "mercado bom preco", Segment: "Mercado"},
	})
	require.NoError(t, err)

	snap, err := NewCollector(st).Collect(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.RegistryRecords)
}
