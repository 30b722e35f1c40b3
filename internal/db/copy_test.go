package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "transactions", []string{"client", "sku"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"transactions"}, []string{"client", "sku"}).WillReturnResult(3)

	rows := [][]any{{"cliente 1", "SKU-A"}, {"cliente 1", "SKU-B"}, {"cliente 2", "SKU-A"}}
	n, err := CopyFrom(context.Background(), mock, "transactions", []string{"client", "sku"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"transactions"}, []string{"client"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"cliente 1"}}
	_, err = CopyFrom(context.Background(), mock, "transactions", []string{"client"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO transactions")
	assert.NoError(t, mock.ExpectationsWereMet())
}
