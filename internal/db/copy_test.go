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

func TestCopyBatches_EmptyRows(t *testing.T) {
	n, err := CopyBatches(context.TODO(), nil, "atlas", "lengths", []string{"a", "b"}, nil, 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyBatches_Batches(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"atlas", "layers"}, []string{"a", "b"}).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"atlas", "layers"}, []string{"a", "b"}).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"atlas", "layers"}, []string{"a", "b"}).WillReturnResult(1)

	rows := [][]any{{1, "x"}, {2, "y"}, {3, "z"}, {4, "w"}, {5, "v"}}
	n, err := CopyBatches(context.Background(), mock, "atlas", "layers", []string{"a", "b"}, rows, 2)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyBatches_ErrorKeepsPartialCount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"atlas", "network"}, []string{"a"}).WillReturnResult(1)
	mock.ExpectCopyFrom(pgx.Identifier{"atlas", "network"}, []string{"a"}).WillReturnError(fmt.Errorf("permission denied"))

	n, err := CopyBatches(context.Background(), mock, "atlas", "network", []string{"a"}, [][]any{{1}, {2}}, 1)
	require.Error(t, err)
	assert.Equal(t, int64(1), n)
	assert.Contains(t, err.Error(), "COPY INTO atlas.network (rows 1-2)")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTruncate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`TRUNCATE "atlas"."layers"`).WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	require.NoError(t, Truncate(context.Background(), mock, "atlas", "layers"))

	mock.ExpectExec(`TRUNCATE "atlas"."network"`).WillReturnError(fmt.Errorf("no such table"))
	err = Truncate(context.Background(), mock, "atlas", "network")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncate atlas.network")
	assert.NoError(t, mock.ExpectationsWereMet())
}
