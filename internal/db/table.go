package db

import (
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// immutableColumns are never overwritten when an imported row replaces an
// existing one.
var immutableColumns = map[string]bool{"id": true, "created_at": true}

// Table names a bulk-load target and the columns each encoded row fills,
// in order.
type Table struct {
	Name    string
	Columns []string
}

func (t Table) validate() error {
	if t.Name == "" {
		return eris.New("db: table has no name")
	}
	if len(t.Columns) == 0 {
		return eris.Errorf("db: table %s has no columns", t.Name)
	}
	return nil
}

// ident quotes the table name, splitting an optional schema prefix.
func (t Table) ident() pgx.Identifier {
	if schema, name, ok := strings.Cut(t.Name, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{t.Name}
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

// encodeRows turns items into COPY rows, checking every row's width.
func encodeRows[T any](t Table, items []T, encode func(*T) ([]any, error)) ([][]any, error) {
	rows := make([][]any, 0, len(items))
	for i := range items {
		row, err := encode(&items[i])
		if err != nil {
			return nil, eris.Wrapf(err, "db: encode %s row %d", t.Name, i)
		}
		if len(row) != len(t.Columns) {
			return nil, eris.Errorf("db: %s row %d has %d values, want %d", t.Name, i, len(row), len(t.Columns))
		}
		rows = append(rows, row)
	}
	return rows, nil
}
