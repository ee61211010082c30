// Package remote defines the row-oriented remote store contract used by the
// sync layer and ships three implementations: a PostgREST-style HTTP client,
// a PostgreSQL store over pgx, and an in-process MemoryStore.
//
// Every call is scoped by the caller through an equality Filter. The sync
// layer always includes the owning identity (IdentityColumn) in that filter,
// even where the server enforces row-level policies on its own.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// IdentityColumn is the column every identity-scoped row carries.
const IdentityColumn = "user_id"

// DefaultConflictKey is the upsert conflict target when none is configured.
const DefaultConflictKey = "id"

// ErrForbidden is returned when an upsert conflicts with a row owned by
// another identity. The existing row is left untouched.
var ErrForbidden = errors.New("row belongs to another identity")

// sameOwner reports whether an upsert of in may update existing. Rows that
// carry no identity are unowned.
func sameOwner(existing, in Row) bool {
	owner := stringValue(in[IdentityColumn])
	return owner == "" || stringValue(existing[IdentityColumn]) == owner
}

// Row is one record in its remote representation.
type Row map[string]any

// ID returns the row's id as a string, or "" when absent.
func (r Row) ID() string {
	return stringValue(r["id"])
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Filter is a conjunction of column equality predicates.
type Filter map[string]any

// Order sorts results by one column.
type Order struct {
	Column     string
	Descending bool
}

// Query describes a Select call.
type Query struct {
	Filter Filter
	Order  []Order
	// Limit caps the number of rows returned. Zero means unlimited.
	Limit int
}

// Store is the remote store client contract.
// Implementations must be safe for concurrent use.
type Store interface {
	// Select returns rows of table matching q.
	Select(ctx context.Context, table string, q Query) ([]Row, error)

	// Upsert inserts or updates rows, resolving conflicts on conflictKey
	// (a comma-separated column list). Rows without an id are issued one by
	// the store. The stored rows are returned in input order.
	Upsert(ctx context.Context, table string, rows []Row, conflictKey string) ([]Row, error)

	// Delete removes every row of table matching filter.
	Delete(ctx context.Context, table string, filter Filter) error
}

// Pinger is implemented by stores that can cheaply check reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreError is returned when a remote operation fails.
// Extractable via errors.As(). Supports Unwrap().
type StoreError struct {
	Operation  string
	Table      string
	StatusCode int
	Err        error
}

func (e *StoreError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote: %s %s failed (status %d): %v", e.Operation, e.Table, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote: %s %s failed: %v", e.Operation, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ConflictColumns splits a conflict key into its columns.
func ConflictColumns(conflictKey string) []string {
	if strings.TrimSpace(conflictKey) == "" {
		return []string{DefaultConflictKey}
	}
	parts := strings.Split(conflictKey, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cols = append(cols, p)
		}
	}
	return cols
}

// stringValue renders scalar JSON-ish values as strings for keys and filters.
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
