package studysync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/studysync/remote"
)

// Migrator uploads pre-existing local records on first login.
//
// Migration only runs when the remote table holds no rows for the identity.
// Items are uploaded in chunks; a failed chunk falls back to one upsert per
// item so a single malformed record cannot block the rest. Failed items stay
// local-only and are picked up by the next merge. There is no automatic retry.
type Migrator struct {
	Store     remote.Store
	ChunkSize int
	Logger    *slog.Logger
}

// MigrationInput describes one collection's migration.
type MigrationInput struct {
	Table       string
	Identity    string
	ConflictKey string
	Items       []Record
	ToRemote    func(Record) (remote.Row, error)
}

// MigrationReport summarizes a migration run.
type MigrationReport struct {
	// Skipped is set when the remote already held rows for the identity.
	Skipped   bool
	Attempted int
	Uploaded  int
	Failed    int
	Chunks    int
	// Promoted maps local ids to the ids the remote store issued for them.
	Promoted map[string]string
}

type pendingRow struct {
	localID string
	row     remote.Row
}

// Migrate runs the migration. The returned error is non-nil only when the
// existence probe fails; upload failures are counted in the report.
func (m *Migrator) Migrate(ctx context.Context, in MigrationInput) (MigrationReport, error) {
	report := MigrationReport{Promoted: make(map[string]string)}
	logger := m.logger().With("table", in.Table)

	if in.Identity == "" {
		return report, ErrNoIdentity
	}

	existing, err := m.Store.Select(ctx, in.Table, remote.Query{
		Filter: remote.Filter{remote.IdentityColumn: in.Identity},
		Limit:  1,
	})
	if err != nil {
		return report, fmt.Errorf("migrate: check %s: %w", in.Table, err)
	}
	if len(existing) > 0 {
		report.Skipped = true
		return report, nil
	}
	if len(in.Items) == 0 {
		return report, nil
	}

	pending := make([]pendingRow, 0, len(in.Items))
	for _, rec := range in.Items {
		report.Attempted++
		row, err := uploadRow(rec, in.Identity, in.ToRemote)
		if err != nil {
			report.Failed++
			logger.Warn("migration item rejected", "id", rec.ID(), "error", err)
			continue
		}
		pending = append(pending, pendingRow{localID: rec.ID(), row: row})
	}

	size := m.ChunkSize
	if size <= 0 {
		size = MigrationChunkSize
	}
	for start := 0; start < len(pending); start += size {
		end := min(start+size, len(pending))
		chunk := pending[start:end]
		report.Chunks++

		ok, failed := m.uploadChunk(ctx, in, chunk, report.Promoted)
		report.Uploaded += ok
		report.Failed += failed
		logger.Info("migration chunk uploaded",
			"chunk", report.Chunks, "uploaded", ok, "failed", failed)
	}

	logger.Info("migration finished",
		"attempted", report.Attempted, "uploaded", report.Uploaded,
		"failed", report.Failed, "chunks", report.Chunks)
	return report, nil
}

func (m *Migrator) uploadChunk(ctx context.Context, in MigrationInput, chunk []pendingRow, promoted map[string]string) (ok, failed int) {
	rows := make([]remote.Row, len(chunk))
	for i, p := range chunk {
		rows[i] = p.row
	}

	stored, err := m.Store.Upsert(ctx, in.Table, rows, in.ConflictKey)
	if err == nil {
		if len(stored) == len(chunk) {
			for i, p := range chunk {
				recordPromotion(promoted, p.localID, stored[i].ID())
			}
		}
		return len(chunk), 0
	}

	m.logger().Warn("migration batch failed, uploading items individually",
		"table", in.Table, "items", len(chunk), "error", err)

	for _, p := range chunk {
		stored, err := m.Store.Upsert(ctx, in.Table, []remote.Row{p.row}, in.ConflictKey)
		if err != nil {
			failed++
			m.logger().Warn("migration item failed", "table", in.Table, "id", p.localID, "error", err)
			continue
		}
		ok++
		if len(stored) == 1 {
			recordPromotion(promoted, p.localID, stored[0].ID())
		}
	}
	return ok, failed
}

func (m *Migrator) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func recordPromotion(promoted map[string]string, localID, remoteID string) {
	if localID == "" || remoteID == "" || localID == remoteID {
		return
	}
	promoted[localID] = remoteID
}

// uploadRow converts rec for upload: it is stamped with the identity, and a
// locally-minted id is stripped so the remote store issues one.
func uploadRow(rec Record, identity string, toRemote func(Record) (remote.Row, error)) (remote.Row, error) {
	row, err := toRemote(rec)
	if err != nil {
		return nil, err
	}
	row[remote.IdentityColumn] = identity
	if IsLocalID(row.ID()) {
		delete(row, FieldID)
	}
	return row, nil
}
