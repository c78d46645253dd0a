package dataset

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pitabwire/gridview/model"
)

// Querier is the subset of *pgxpool.Pool used by PgSource.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgSource runs a read-only query and turns each row into a record keyed by
// column name.
type PgSource struct {
	db    Querier
	query string
	args  []any
}

// NewPgSource creates a PostgreSQL-backed source.
func NewPgSource(db Querier, query string, args []any) *PgSource {
	return &PgSource{db: db, query: query, args: args}
}

// Load executes the query and collects all rows.
func (s *PgSource) Load(ctx context.Context) ([]model.Record, error) {
	rows, err := s.db.Query(ctx, s.query, s.args...)
	if err != nil {
		return nil, fmt.Errorf("query dataset: %w", err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collect dataset rows: %w", err)
	}

	records := make([]model.Record, len(maps))
	for i, m := range maps {
		rec := make(model.Record, len(m))
		for k, v := range m {
			rec[k] = model.FromAny(normalizePgValue(v))
		}
		records[i] = rec
	}
	return records, nil
}

// normalizePgValue converts pgx driver values that FromAny does not know
// into plain Go values.
func normalizePgValue(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case []byte:
		return string(t)
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalizePgValue(item)
		}
		return out
	default:
		return v
	}
}

// PoolPinger is the subset of *pgxpool.Pool used for readiness checks.
type PoolPinger interface {
	Ping(ctx context.Context) error
}

// PgHealth adapts a pool to observability.HealthChecker.
type PgHealth struct {
	Pool PoolPinger
}

// HealthCheck pings the database.
func (h PgHealth) HealthCheck(ctx context.Context) error {
	return h.Pool.Ping(ctx)
}
