package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is a Store backed directly by PostgreSQL.
//
// All collections share one table; each row is stored as a JSONB document
// keyed by (collection table, conflict key value). The id of a stored row never
// changes after its first insert.
type PGStore struct {
	pool *pgxpool.Pool
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS sync_rows (
    tbl        TEXT        NOT NULL,
    row_key    TEXT        NOT NULL,
    data       JSONB       NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (tbl, row_key)
);
CREATE INDEX IF NOT EXISTS sync_rows_user_idx ON sync_rows (tbl, (data->>'user_id'));
`

// OpenPG connects to dsn and ensures the schema exists.
func OpenPG(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("remote: connect postgres: %w", err)
	}
	s := &PGStore{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPGStore wraps an existing pool. The caller owns the pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// EnsureSchema creates the row table if it does not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return &StoreError{Operation: "ensure_schema", Err: err}
	}
	return nil
}

// Close closes the underlying pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

// Ping implements Pinger.
func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return &StoreError{Operation: "ping", Err: err}
	}
	return nil
}

// Select implements Store.
func (s *PGStore) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	filter, err := json.Marshal(q.Filter)
	if err != nil {
		return nil, &StoreError{Operation: "select", Table: table, Err: err}
	}

	args := []any{table, string(filter)}
	var sb strings.Builder
	sb.WriteString(`SELECT data FROM sync_rows WHERE tbl = $1 AND data @> $2::jsonb`)
	if len(q.Order) > 0 {
		parts := make([]string, len(q.Order))
		for i, o := range q.Order {
			args = append(args, o.Column)
			dir := "ASC"
			if o.Descending {
				dir = "DESC"
			}
			parts[i] = fmt.Sprintf("data->>($%d::text) %s NULLS LAST", len(args), dir)
		}
		sb.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, &StoreError{Operation: "select", Table: table, Err: err}
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, &StoreError{Operation: "select", Table: table, Err: err}
		}
		var r Row
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, &StoreError{Operation: "select", Table: table, Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Operation: "select", Table: table, Err: err}
	}
	return out, nil
}

// Upsert implements Store. The batch is applied in one transaction.
func (s *PGStore) Upsert(ctx context.Context, table string, rows []Row, conflictKey string) ([]Row, error) {
	cols := ConflictColumns(conflictKey)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, &StoreError{Operation: "upsert", Table: table, Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stored := make([]Row, 0, len(rows))
	for _, in := range rows {
		row := in.Clone()
		if row.ID() == "" {
			row["id"] = uuid.NewString()
		}
		key := rowKey(row, cols)
		if key == "" {
			return nil, &StoreError{Operation: "upsert", Table: table, StatusCode: 400,
				Err: fmt.Errorf("row lacks conflict columns %v", cols)}
		}
		doc, err := json.Marshal(row)
		if err != nil {
			return nil, &StoreError{Operation: "upsert", Table: table, Err: err}
		}

		var raw []byte
		err = tx.QueryRow(ctx, `
			INSERT INTO sync_rows (tbl, row_key, data) VALUES ($1, $2, $3::jsonb)
			ON CONFLICT (tbl, row_key) DO UPDATE
			SET data = sync_rows.data || (excluded.data - 'id'), updated_at = now()
			WHERE excluded.data->>'user_id' IS NULL
			   OR sync_rows.data->>'user_id' IS NOT DISTINCT FROM excluded.data->>'user_id'
			RETURNING data
		`, table, key, string(doc)).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			// The conflicting row is owned by another identity.
			return nil, &StoreError{Operation: "upsert", Table: table, StatusCode: 403, Err: ErrForbidden}
		}
		if err != nil {
			return nil, &StoreError{Operation: "upsert", Table: table, Err: err}
		}
		var out Row
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, &StoreError{Operation: "upsert", Table: table, Err: err}
		}
		stored = append(stored, out)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &StoreError{Operation: "upsert", Table: table, Err: err}
	}
	return stored, nil
}

// Delete implements Store.
func (s *PGStore) Delete(ctx context.Context, table string, filter Filter) error {
	if len(filter) == 0 {
		return &StoreError{Operation: "delete", Table: table, Err: fmt.Errorf("refusing unfiltered delete")}
	}
	doc, err := json.Marshal(filter)
	if err != nil {
		return &StoreError{Operation: "delete", Table: table, Err: err}
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM sync_rows WHERE tbl = $1 AND data @> $2::jsonb`, table, string(doc)); err != nil {
		return &StoreError{Operation: "delete", Table: table, Err: err}
	}
	return nil
}

// CountRows returns the number of stored rows for table. Used by diagnostics.
func (s *PGStore) CountRows(ctx context.Context, table string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sync_rows WHERE tbl = $1`, table).Scan(&n)
	if err != nil && err != pgx.ErrNoRows {
		return 0, &StoreError{Operation: "count", Table: table, Err: err}
	}
	return n, nil
}

// rowKey joins the conflict column values; "" when any is missing.
func rowKey(row Row, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		v := stringValue(row[c])
		if v == "" {
			return ""
		}
		parts[i] = v
	}
	return strings.Join(parts, "\x1f")
}
