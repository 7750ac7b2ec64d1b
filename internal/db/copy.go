package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CopyBatchSize bounds how many rows go into a single COPY.
const CopyBatchSize = 5000

// CopyFrom appends items to an append-only table with the COPY protocol,
// CopyBatchSize rows at a time. Rows already copied stay when a later batch
// fails; the returned count says how many.
func CopyFrom[T any](ctx context.Context, pool Pool, t Table, items []T, encode func(*T) ([]any, error)) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if err := t.validate(); err != nil {
		return 0, err
	}
	rows, err := encodeRows(t, items, encode)
	if err != nil {
		return 0, err
	}

	var total int64
	for start := 0; start < len(rows); start += CopyBatchSize {
		end := min(start+CopyBatchSize, len(rows))
		n, err := pool.CopyFrom(ctx, t.ident(), t.Columns, pgx.CopyFromRows(rows[start:end]))
		total += n
		if err != nil {
			return total, eris.Wrapf(err, "db: COPY INTO %s", t.Name)
		}
	}

	zap.L().Debug("db: copy complete", zap.String("table", t.Name), zap.Int64("rows", total))
	return total, nil
}
