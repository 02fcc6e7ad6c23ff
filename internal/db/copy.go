package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const defaultBatchSize = 5000

// CopyBatches bulk-inserts rows into schema.table with the COPY protocol,
// batchSize rows at a time (0 = 5,000). It returns the number of rows
// copied before any error.
func CopyBatches(ctx context.Context, pool Pool, schema, table string, columns []string, rows [][]any, batchSize int) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	log := zap.L().With(
		zap.String("component", "db.copy"),
		zap.String("table", schema+"."+table),
		zap.Int("total_rows", len(rows)),
	)

	var total int64
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		n, err := pool.CopyFrom(ctx, pgx.Identifier{schema, table}, columns, pgx.CopyFromRows(rows[i:end]))
		if err != nil {
			return total, eris.Wrapf(err, "db: COPY INTO %s.%s (rows %d-%d)", schema, table, i, end)
		}
		total += n
		log.Debug("batch copied", zap.Int("batch_start", i), zap.Int("batch_end", end), zap.Int64("rows", n))
	}
	return total, nil
}

// Truncate empties schema.table before a reload.
func Truncate(ctx context.Context, pool Pool, schema, table string) error {
	sql := fmt.Sprintf("TRUNCATE %s", pgx.Identifier{schema, table}.Sanitize())
	if _, err := pool.Exec(ctx, sql); err != nil {
		return eris.Wrapf(err, "db: truncate %s.%s", schema, table)
	}
	return nil
}
