package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// UpsertConfig says how imported rows collide with stored ones.
type UpsertConfig struct {
	// ConflictKeys form the unique constraint imports are matched on.
	ConflictKeys []string
	// UpdateCols are overwritten on conflict. Nil means every column except
	// the conflict keys, id and created_at.
	UpdateCols []string
}

func (c UpsertConfig) updateCols(t Table) []string {
	if c.UpdateCols != nil {
		return c.UpdateCols
	}
	skip := make(map[string]bool, len(c.ConflictKeys))
	for _, k := range c.ConflictKeys {
		skip[k] = true
	}
	var cols []string
	for _, col := range t.Columns {
		if !skip[col] && !immutableColumns[col] {
			cols = append(cols, col)
		}
	}
	return cols
}

// Upsert loads items into t inside one transaction: rows are copied into a
// temp table shaped like t, then merged with INSERT ... ON CONFLICT. Either
// every item lands or none does.
func Upsert[T any](ctx context.Context, pool Pool, t Table, cfg UpsertConfig, items []T, encode func(*T) ([]any, error)) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if err := t.validate(); err != nil {
		return 0, err
	}
	if len(cfg.ConflictKeys) == 0 {
		return 0, eris.Errorf("db: upsert %s: no conflict keys", t.Name)
	}
	rows, err := encodeRows(t, items, encode)
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	staging := pgx.Identifier{"_import_" + strings.ReplaceAll(t.Name, ".", "_")}
	createSQL := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		staging.Sanitize(), t.ident().Sanitize())
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create staging table for %s", t.Name)
	}

	if _, err := tx.CopyFrom(ctx, staging, t.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into staging table for %s", t.Name)
	}

	action := "DO NOTHING"
	if cols := cfg.updateCols(t); len(cols) > 0 {
		sets := make([]string, len(cols))
		for i, col := range cols {
			id := pgx.Identifier{col}.Sanitize()
			sets[i] = id + " = EXCLUDED." + id
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	colList := quoteAndJoin(t.Columns)
	mergeSQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		t.ident().Sanitize(), colList, colList, staging.Sanitize(), quoteAndJoin(cfg.ConflictKeys), action)
	tag, err := tx.Exec(ctx, mergeSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", t.Name)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}

	zap.L().Debug("db: upsert complete",
		zap.String("table", t.Name),
		zap.Int("rows", len(rows)),
		zap.Int64("affected", tag.RowsAffected()),
	)
	return tag.RowsAffected(), nil
}
