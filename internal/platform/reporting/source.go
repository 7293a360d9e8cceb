package reporting

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ehr/claims/internal/platform/db"
)

// Table is a query result with its column order preserved.
type Table struct {
	Columns []string
	Rows    [][]interface{}
}

// Source runs measure SQL.
type Source interface {
	Query(ctx context.Context, sql string, args ...interface{}) (*Table, error)
}

type pgSource struct{ pool *pgxpool.Pool }

// NewPGSource queries the tenant connection in ctx, falling back to the pool.
func NewPGSource(pool *pgxpool.Pool) Source { return &pgSource{pool: pool} }

func (s *pgSource) Query(ctx context.Context, sql string, args ...interface{}) (*Table, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if tx := db.TxFromContext(ctx); tx != nil {
		rows, err = tx.Query(ctx, sql, args...)
	} else if c := db.ConnFromContext(ctx); c != nil {
		rows, err = c.Query(ctx, sql, args...)
	} else {
		rows, err = s.pool.Query(ctx, sql, args...)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t := &Table{}
	for _, fd := range rows.FieldDescriptions() {
		t.Columns = append(t.Columns, fd.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalize(v)
		}
		t.Rows = append(t.Rows, values)
	}
	return t, rows.Err()
}

// normalize converts driver values into types that encode cleanly as JSON
// and spreadsheet cells.
func normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid || x.NaN || x.InfinityModifier != pgtype.Finite || x.Int == nil {
			return nil
		}
		return decimal.NewFromBigInt(x.Int, x.Exp)
	case [16]byte:
		return uuid.UUID(x).String()
	default:
		return v
	}
}
