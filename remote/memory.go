package remote

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrUnreachable is returned by a MemoryStore that has been taken offline.
var ErrUnreachable = errors.New("remote store unreachable")

// MemoryStore is an in-process authoritative Store.
//
// It behaves like a single-table-per-collection row store with remote-issued
// UUID ids. Tests use its hooks to inject failures and row validation.
type MemoryStore struct {
	mu      sync.Mutex
	tables  map[string][]Row
	offline bool

	// Validate, when set, is called for every row of an Upsert before any row
	// is written. A non-nil error rejects the whole batch.
	Validate func(table string, row Row) error

	// Fail, when set, is consulted before every operation ("select",
	// "upsert", "delete"). A non-nil error fails the call.
	Fail func(op, table string) error

	calls map[string]int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string][]Row),
		calls:  make(map[string]int),
	}
}

// SetOffline toggles simulated unreachability.
func (m *MemoryStore) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// Calls returns how many times op was invoked.
func (m *MemoryStore) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Rows returns a copy of every row in table, in insertion order.
func (m *MemoryStore) Rows(table string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Row, len(m.tables[table]))
	for i, r := range m.tables[table] {
		out[i] = r.Clone()
	}
	return out
}

// Seed appends rows to table as-is, bypassing validation.
func (m *MemoryStore) Seed(table string, rows ...Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.tables[table] = append(m.tables[table], r.Clone())
	}
}

// Ping implements Pinger.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offline {
		return &StoreError{Operation: "ping", Err: ErrUnreachable}
	}
	return ctx.Err()
}

func (m *MemoryStore) enter(ctx context.Context, op, table string) error {
	m.calls[op]++
	if m.offline {
		return &StoreError{Operation: op, Table: table, Err: ErrUnreachable}
	}
	if m.Fail != nil {
		if err := m.Fail(op, table); err != nil {
			return &StoreError{Operation: op, Table: table, Err: err}
		}
	}
	return ctx.Err()
}

// Select implements Store.
func (m *MemoryStore) Select(ctx context.Context, table string, q Query) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(ctx, "select", table); err != nil {
		return nil, err
	}

	var out []Row
	for _, r := range m.tables[table] {
		if matches(r, q.Filter) {
			out = append(out, r.Clone())
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.Order {
				a, b := out[i][o.Column], out[j][o.Column]
				c := compareValues(a, b)
				if c == 0 {
					continue
				}
				// Missing values sort last in both directions (NULLS LAST).
				if a == nil || b == nil {
					return b == nil
				}
				if o.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Upsert implements Store.
func (m *MemoryStore) Upsert(ctx context.Context, table string, rows []Row, conflictKey string) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(ctx, "upsert", table); err != nil {
		return nil, err
	}
	if m.Validate != nil {
		for _, r := range rows {
			if err := m.Validate(table, r); err != nil {
				return nil, &StoreError{Operation: "upsert", Table: table, StatusCode: 400, Err: err}
			}
		}
	}

	cols := ConflictColumns(conflictKey)
	for _, r := range rows {
		if !hasAll(r, cols) {
			continue
		}
		if idx := m.indexOf(table, r, cols); idx >= 0 && !sameOwner(m.tables[table][idx], r) {
			return nil, &StoreError{Operation: "upsert", Table: table, StatusCode: 403, Err: ErrForbidden}
		}
	}

	stored := make([]Row, 0, len(rows))
	for _, in := range rows {
		row := in.Clone()
		idx := -1
		if hasAll(row, cols) {
			idx = m.indexOf(table, row, cols)
		}
		if idx >= 0 {
			existing := m.tables[table][idx]
			if row.ID() == "" {
				row["id"] = existing["id"]
			}
			merged := existing.Clone()
			for k, v := range row {
				merged[k] = v
			}
			m.tables[table][idx] = merged
			stored = append(stored, merged.Clone())
			continue
		}
		if row.ID() == "" {
			row["id"] = uuid.NewString()
		}
		m.tables[table] = append(m.tables[table], row)
		stored = append(stored, row.Clone())
	}
	return stored, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, table string, filter Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter(ctx, "delete", table); err != nil {
		return err
	}

	kept := m.tables[table][:0]
	for _, r := range m.tables[table] {
		if !matches(r, filter) {
			kept = append(kept, r)
		}
	}
	m.tables[table] = kept
	return nil
}

func (m *MemoryStore) indexOf(table string, row Row, cols []string) int {
	for i, existing := range m.tables[table] {
		same := true
		for _, c := range cols {
			if stringValue(existing[c]) != stringValue(row[c]) {
				same = false
				break
			}
		}
		if same {
			return i
		}
	}
	return -1
}

func hasAll(row Row, cols []string) bool {
	for _, c := range cols {
		if stringValue(row[c]) == "" {
			return false
		}
	}
	return true
}

func matches(r Row, f Filter) bool {
	for k, v := range f {
		if stringValue(r[k]) != stringValue(v) {
			return false
		}
	}
	return true
}

// compareValues orders nil last, numbers numerically and everything else as
// strings.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(stringValue(a), stringValue(b))
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}
