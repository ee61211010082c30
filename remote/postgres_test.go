package remote_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/hyperengineering/studysync/remote"
)

// openTestPG connects to STUDYSYNC_TEST_PG_DSN or skips.
func openTestPG(t *testing.T) *remote.PGStore {
	t.Helper()

	dsn := os.Getenv("STUDYSYNC_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("STUDYSYNC_TEST_PG_DSN not set")
	}
	store, err := remote.OpenPG(context.Background(), dsn)
	if err != nil {
		t.Fatalf("OpenPG failed: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestPGStore_RoundTrip(t *testing.T) {
	store := openTestPG(t)
	ctx := context.Background()
	table := "tasks_" + uuid.NewString()[:8]
	user := "user-" + uuid.NewString()[:8]

	stored, err := store.Upsert(ctx, table, []remote.Row{
		{"user_id": user, "title": "b", "created_at": "2026-01-02T00:00:00Z"},
		{"user_id": user, "title": "a", "created_at": "2026-01-01T00:00:00Z"},
	}, "id")
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if stored[0].ID() == "" || stored[1].ID() == "" {
		t.Fatal("rows were not issued ids")
	}

	rows, err := store.Select(ctx, table, remote.Query{
		Filter: remote.Filter{"user_id": user},
		Order:  []remote.Order{{Column: "created_at"}},
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 2 || rows[0]["title"] != "a" {
		t.Errorf("rows = %v, want ordered [a b]", rows)
	}

	if err := store.Delete(ctx, table, remote.Filter{"user_id": user, "id": stored[0].ID()}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	n, err := store.CountRows(ctx, table)
	if err != nil || n != 1 {
		t.Errorf("CountRows = %d err=%v, want 1", n, err)
	}
}

func TestPGStore_ConflictKeepsID(t *testing.T) {
	store := openTestPG(t)
	ctx := context.Background()
	table := "settings_" + uuid.NewString()[:8]

	first, err := store.Upsert(ctx, table, []remote.Row{{"user_id": "u1", "theme": "light"}}, "user_id")
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	second, err := store.Upsert(ctx, table, []remote.Row{{"user_id": "u1", "theme": "dark"}}, "user_id")
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if first[0].ID() != second[0].ID() {
		t.Errorf("id changed on conflict: %s -> %s", first[0].ID(), second[0].ID())
	}
	if second[0]["theme"] != "dark" {
		t.Errorf("theme = %v, want dark", second[0]["theme"])
	}
}

func TestPGStore_UpsertScopedByIdentity(t *testing.T) {
	store := openTestPG(t)
	ctx := context.Background()
	table := "tasks_" + uuid.NewString()[:8]

	first, err := store.Upsert(ctx, table, []remote.Row{{"user_id": "u1", "title": "u1's task"}}, "id")
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	id := first[0].ID()

	_, err = store.Upsert(ctx, table, []remote.Row{{"id": id, "user_id": "u2", "title": "taken over"}}, "id")
	if !errors.Is(err, remote.ErrForbidden) {
		t.Fatalf("Upsert = %v, want ErrForbidden", err)
	}

	rows, err := store.Select(ctx, table, remote.Query{Filter: remote.Filter{"id": id}})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 1 || rows[0]["user_id"] != "u1" || rows[0]["title"] != "u1's task" {
		t.Errorf("rows = %v, want u1's row unchanged", rows)
	}
}
