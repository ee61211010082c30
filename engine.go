package studysync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hyperengineering/studysync/remote"
)

// Shape converts a collection's local value to and from a flat record list.
type Shape[T any] struct {
	ToList   func(T) []Record
	FromList func([]Record) T
}

// ListShape is the shape of collections stored as a plain record array.
func ListShape() Shape[[]Record] {
	return Shape[[]Record]{
		ToList: func(v []Record) []Record {
			out := make([]Record, len(v))
			copy(out, v)
			return out
		},
		FromList: func(list []Record) []Record {
			if list == nil {
				return []Record{}
			}
			return list
		},
	}
}

// GroupedShape is the shape of collections stored grouped by dateField.
func GroupedShape(dateField string) Shape[DateGroups] {
	return Shape[DateGroups]{
		ToList:   func(g DateGroups) []Record { return Flatten(g, dateField) },
		FromList: func(list []Record) DateGroups { return Group(list, dateField) },
	}
}

// ObjectShape is the shape of collections stored as a single object.
func ObjectShape() Shape[Record] {
	return Shape[Record]{
		ToList: func(r Record) []Record {
			if len(r) == 0 {
				return nil
			}
			return []Record{r}
		},
		FromList: func(list []Record) Record {
			if len(list) == 0 {
				return Record{}
			}
			return list[len(list)-1]
		},
	}
}

// CollectionSpec parameterizes an Engine for one collection.
type CollectionSpec[T any] struct {
	// Name is the logical collection name.
	Name string
	// LocalKey is the local-store key. Defaults to Name.
	LocalKey string
	// Default returns the empty collection value.
	Default func() T
	// Table is the remote table. Defaults to Name.
	Table string
	Shape Shape[T]

	ToRemote   func(Record) (remote.Row, error)
	FromRemote func(remote.Row) (Record, error)

	// ConflictKey is the upsert conflict target. Defaults to "id".
	ConflictKey string
	Order       []remote.Order
	// Limit caps fetched rows. Zero means unlimited.
	Limit int
	// History marks the collection as an append-only log subject to
	// truncation when the local store runs out of quota.
	History bool
	// LocalOnly collections never touch the remote store.
	LocalOnly bool
	// Singleton collections hold one object per identity. On initial sync an
	// existing remote object wins over the local one.
	Singleton bool
}

func (s *CollectionSpec[T]) applyDefaults() {
	if s.LocalKey == "" {
		s.LocalKey = s.Name
	}
	if s.Table == "" {
		s.Table = s.Name
	}
	if s.ConflictKey == "" {
		s.ConflictKey = remote.DefaultConflictKey
	}
	if s.ToRemote == nil {
		s.ToRemote = func(r Record) (remote.Row, error) { return remote.Row(r.Clone()), nil }
	}
	if s.FromRemote == nil {
		s.FromRemote = func(r remote.Row) (Record, error) { return Record(r.Clone()), nil }
	}
}

// Engine keeps one collection available locally and, when remote-capable,
// in the remote store.
//
// Every operation writes the local store before touching the remote store
// and returns a Result instead of an error. Operations on the same engine
// are expected to be issued sequentially by the caller.
type Engine[T any] struct {
	spec     CollectionSpec[T]
	session  *Session
	store    remote.Store
	migrator *Migrator
	logger   *slog.Logger

	// uploadMu serializes writes that may upload locally-minted ids.
	uploadMu sync.Mutex

	mu       sync.Mutex
	data     T
	loaded   bool
	loading  bool
	synced   bool
	result   Result
	lastSync time.Time
}

// NewEngine creates an engine and registers it with the session for
// identity boundary resets. A nil store makes the engine local-only.
func NewEngine[T any](spec CollectionSpec[T], session *Session, store remote.Store) *Engine[T] {
	spec.applyDefaults()
	logger := session.Logger().With("collection", spec.Name)
	e := &Engine[T]{
		spec:    spec,
		session: session,
		store:   store,
		logger:  logger,
		data:    spec.Default(),
	}
	if store != nil {
		e.migrator = &Migrator{Store: store, ChunkSize: MigrationChunkSize, Logger: logger}
	}
	if spec.History {
		session.Local().MarkHistory(spec.LocalKey)
	}
	session.register(e)
	return e
}

// Name returns the collection name.
func (e *Engine[T]) Name() string { return e.spec.Name }

// Table returns the remote table name.
func (e *Engine[T]) Table() string { return e.spec.Table }

func (e *Engine[T]) collectionName() string { return e.spec.Name }
func (e *Engine[T]) storageKey() string     { return e.spec.LocalKey }

func (e *Engine[T]) resetBoundary() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.synced = false
	e.data = e.spec.Default()
	e.loaded = false
	e.result = Result{}
}

// Reset clears the synced latch and the in-memory value.
func (e *Engine[T]) Reset() { e.resetBoundary() }

// Load reads the collection from the local store, without touching the
// network, and makes it the in-memory value.
func (e *Engine[T]) Load() T {
	e.session.Observe()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.data = e.readLocal()
	e.loaded = true
	return e.data
}

func (e *Engine[T]) loadLocal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.data = e.readLocal()
	e.loaded = true
}

// ensureLoadedLocked reads the local value on first use so that a write
// never replaces data it has not seen. Caller holds e.mu.
func (e *Engine[T]) ensureLoadedLocked() {
	if !e.loaded {
		e.data = e.readLocal()
		e.loaded = true
	}
}

func (e *Engine[T]) readLocal() T {
	v := e.spec.Default()
	if !e.session.Local().ReadInto(e.spec.LocalKey, &v) {
		return e.spec.Default()
	}
	return v
}

// Data returns the in-memory value. Callers must not mutate it.
func (e *Engine[T]) Data() T {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureLoadedLocked()
	return e.data
}

// Records returns the in-memory value as a flat record list.
func (e *Engine[T]) Records() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureLoadedLocked()
	return e.spec.Shape.ToList(e.data)
}

// Loading reports whether a remote fetch is in flight.
func (e *Engine[T]) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// Synced reports whether InitialSync completed for the bound identity.
func (e *Engine[T]) Synced() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.synced
}

// LastSync returns when the collection last reconciled with the remote store.
func (e *Engine[T]) LastSync() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// Pending counts records with locally-minted ids.
func (e *Engine[T]) Pending() int {
	n := 0
	for _, r := range e.Records() {
		if IsLocalID(r.ID()) {
			n++
		}
	}
	return n
}

// remoteCapable reports whether remote calls may be attempted.
func (e *Engine[T]) remoteCapable(ctx context.Context) bool {
	if e.spec.LocalOnly || e.store == nil {
		return false
	}
	return e.session.Provider().IsRemoteCapable(ctx)
}

// offlineResult is the Result of an operation that stopped at the local store.
func (e *Engine[T]) offlineResult() Result {
	if e.spec.LocalOnly {
		return Result{OK: true, Source: SourceLocal}
	}
	return localResult(ErrOffline)
}

// setLocked replaces the in-memory value and persists it. Caller holds e.mu.
func (e *Engine[T]) setLocked(list []Record) {
	e.data = e.spec.Shape.FromList(list)
	e.loaded = true
	e.session.Local().Write(e.spec.LocalKey, e.data)
}

func (e *Engine[T]) setLoading(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loading = v
}

// finishSync sets the latch and stores the outcome.
func (e *Engine[T]) finishSync(res Result) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.synced = true
	e.loading = false
	e.result = res
	if res.Source == SourceRemote {
		e.lastSync = time.Now()
	}
	return res
}

// InitialSync reconciles the collection with the remote store once per
// identity: it migrates pre-existing local data, fetches the remote rows and
// merges local-only records into them. Remote failures degrade to the local
// value. The latch is set on completion, degraded or not.
func (e *Engine[T]) InitialSync(ctx context.Context) Result {
	e.session.Observe()

	e.mu.Lock()
	if e.synced {
		res := e.result
		e.mu.Unlock()
		return res
	}
	e.mu.Unlock()

	if !e.remoteCapable(ctx) {
		e.loadLocal()
		return e.offlineResult()
	}

	identity := e.session.Bound()
	if identity == "" {
		e.loadLocal()
		return localResult(ErrNoIdentity)
	}

	e.setLoading(true)
	e.session.CheckCollection(e.spec.Name, e.spec.LocalKey)

	e.mu.Lock()
	e.data = e.readLocal()
	local := e.spec.Shape.ToList(e.data)
	e.mu.Unlock()

	report, err := e.migrator.Migrate(ctx, MigrationInput{
		Table:       e.spec.Table,
		Identity:    identity,
		ConflictKey: e.spec.ConflictKey,
		Items:       local,
		ToRemote:    e.spec.ToRemote,
	})
	if err != nil {
		return e.degradeSync(identity, "migrate", localResult(err))
	}
	local = PromoteIDs(local, report.Promoted)
	if len(report.Promoted) > 0 && !e.commitLocal(identity, local) {
		return e.abandonSync(report.Promoted)
	}
	promoted := report.Promoted

	remoteRecs, err := e.fetch(ctx, identity)
	if err != nil {
		res := localResult(err)
		res.Promoted = nonEmpty(promoted)
		return e.degradeSync(identity, "fetch", res)
	}

	var merged []Record
	var pendingErr error
	switch {
	case e.spec.Singleton && len(remoteRecs) > 0:
		merged, pendingErr = e.mergeObject(ctx, identity, remoteRecs, local)
	default:
		merged = Merge(remoteRecs, local)
		if report.Skipped {
			more, err := e.uploadPending(ctx, identity, merged)
			merged = PromoteIDs(merged, more)
			for k, v := range more {
				promoted[k] = v
			}
			pendingErr = err
		}
	}

	res := Result{OK: true, Source: SourceRemote, Err: pendingErr, Promoted: nonEmpty(promoted)}
	if !e.commitSync(identity, merged, &res) {
		return e.abandonSync(promoted)
	}
	return res
}

// commitLocal writes list as the collection value while identity is still
// bound.
func (e *Engine[T]) commitLocal(identity string, list []Record) bool {
	return e.session.commitFor(identity, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.setLocked(list)
	})
}

// commitSync is commitLocal for fetched data: it also stamps the collection
// as synced for identity and, when latch is set, closes the synced latch with
// that result.
func (e *Engine[T]) commitSync(identity string, list []Record, latch *Result) bool {
	return e.session.commitFor(identity, func() {
		e.mu.Lock()
		e.setLocked(list)
		e.loading = false
		e.lastSync = time.Now()
		if latch != nil {
			e.synced = true
			e.result = *latch
		}
		e.mu.Unlock()
		e.session.markSyncedLocked(e.spec.Name)
	})
}

// degradeSync closes the latch with a local result, unless identity was
// replaced meanwhile.
func (e *Engine[T]) degradeSync(identity, step string, res Result) Result {
	if !e.session.commitFor(identity, func() { e.finishSync(res) }) {
		return e.abandonSync(res.Promoted)
	}
	e.logger.Warn("initial sync degraded to local", "step", step, "error", res.Err)
	return res
}

// abandonSync drops a sync whose identity was replaced mid-flight. The latch
// stays open for the new identity.
func (e *Engine[T]) abandonSync(promoted map[string]string) Result {
	e.setLoading(false)
	e.logger.Warn("sync response dropped", "reason", "identity changed")
	res := localResult(ErrIdentityChanged)
	res.Promoted = nonEmpty(promoted)
	return res
}

// fetch selects the identity's rows and converts them. Rows that do not
// convert are skipped.
func (e *Engine[T]) fetch(ctx context.Context, identity string) ([]Record, error) {
	rows, err := e.store.Select(ctx, e.spec.Table, remote.Query{
		Filter: remote.Filter{remote.IdentityColumn: identity},
		Order:  e.spec.Order,
		Limit:  e.spec.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := e.spec.FromRemote(row)
		if err != nil {
			e.logger.Warn("remote row skipped", "id", row.ID(), "error", err)
			continue
		}
		delete(rec, remote.IdentityColumn)
		out = append(out, rec)
	}
	return out, nil
}

// mergeObject keeps the remote object of a singleton collection and fills
// its gaps from the local value. The result is pushed when anything was
// filled.
func (e *Engine[T]) mergeObject(ctx context.Context, identity string, remoteRecs, local []Record) ([]Record, error) {
	obj := remoteRecs[len(remoteRecs)-1]
	filled := false
	for _, l := range local {
		var f bool
		obj, f = MergeObject(obj, l)
		filled = filled || f
	}
	merged := []Record{obj}
	if !filled {
		return merged, nil
	}
	row, err := uploadRow(obj, identity, e.spec.ToRemote)
	if err != nil {
		return merged, err
	}
	if _, err := e.store.Upsert(ctx, e.spec.Table, []remote.Row{row}, e.spec.ConflictKey); err != nil {
		e.logger.Warn("merged object kept local only", "error", err)
		return merged, err
	}
	return merged, nil
}

// uploadPending pushes merged records that still carry locally-minted ids,
// i.e. those left over from an earlier offline period or failed migration.
func (e *Engine[T]) uploadPending(ctx context.Context, identity string, merged []Record) (map[string]string, error) {
	var pending []pendingRow
	var errs []error
	for _, rec := range merged {
		if !IsLocalID(rec.ID()) {
			continue
		}
		row, err := uploadRow(rec, identity, e.spec.ToRemote)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pending = append(pending, pendingRow{localID: rec.ID(), row: row})
	}
	promoted := make(map[string]string)
	if len(pending) == 0 {
		return promoted, errors.Join(errs...)
	}
	in := MigrationInput{Table: e.spec.Table, Identity: identity, ConflictKey: e.spec.ConflictKey}
	_, failed := e.migrator.uploadChunk(ctx, in, pending, promoted)
	if failed > 0 {
		errs = append(errs, fmt.Errorf("%s: %d pending records not uploaded", e.spec.Name, failed))
	}
	return promoted, errors.Join(errs...)
}

// Save replaces the whole collection. The local store is written first; when
// remote-capable the records are batch upserted.
func (e *Engine[T]) Save(ctx context.Context, all T) Result {
	e.uploadMu.Lock()
	defer e.uploadMu.Unlock()
	e.session.Observe()
	list := e.spec.Shape.ToList(all)
	for i, rec := range list {
		list[i] = stamp(rec)
	}

	e.mu.Lock()
	e.setLocked(list)
	e.mu.Unlock()
	e.session.MarkInteracted()

	if !e.remoteCapable(ctx) {
		return e.offlineResult()
	}
	identity := e.session.Bound()
	if identity == "" {
		return localResult(ErrNoIdentity)
	}

	var pending []pendingRow
	var invalid []error
	for _, rec := range list {
		row, err := uploadRow(rec, identity, e.spec.ToRemote)
		if err != nil {
			invalid = append(invalid, err)
			continue
		}
		pending = append(pending, pendingRow{localID: rec.ID(), row: row})
	}
	if len(pending) == 0 {
		return localResult(errors.Join(invalid...))
	}

	rows := make([]remote.Row, len(pending))
	for i, p := range pending {
		rows[i] = p.row
	}
	stored, err := e.store.Upsert(ctx, e.spec.Table, rows, e.spec.ConflictKey)
	if err != nil {
		e.logger.Warn("save kept local only", "error", err)
		return localResult(err)
	}

	promoted := make(map[string]string)
	if len(stored) == len(pending) {
		for i, p := range pending {
			recordPromotion(promoted, p.localID, stored[i].ID())
		}
	}
	if !e.promote(identity, promoted) {
		return Result{OK: true, Source: SourceRemote, Err: ErrIdentityChanged}
	}

	if len(invalid) > 0 {
		res := localResult(errors.Join(invalid...))
		res.Promoted = nonEmpty(promoted)
		return res
	}
	return Result{OK: true, Source: SourceRemote, Promoted: nonEmpty(promoted)}
}

// SaveItem upserts one record. A record without an id is given a
// locally-minted one, which is promoted to the remote-issued id once the
// remote store acknowledges the write.
func (e *Engine[T]) SaveItem(ctx context.Context, rec Record) Result {
	e.uploadMu.Lock()
	defer e.uploadMu.Unlock()
	e.session.Observe()
	rec = stamp(rec.Clone())
	id := rec.ID()

	e.mu.Lock()
	e.ensureLoadedLocked()
	list := e.spec.Shape.ToList(e.data)
	replaced := false
	for i, existing := range list {
		if existing.ID() == id {
			list[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, rec)
	}
	e.setLocked(list)
	kept := containsID(e.spec.Shape.ToList(e.data), id)
	e.mu.Unlock()

	if !kept {
		return Result{OK: false, Source: SourceLocal, ID: id,
			Err: invalidRecord(e.spec.Name, "record does not fit the collection shape")}
	}
	e.session.MarkInteracted()

	if !e.remoteCapable(ctx) {
		res := e.offlineResult()
		res.ID = id
		return res
	}
	identity := e.session.Bound()
	if identity == "" {
		return Result{OK: true, Source: SourceLocal, Err: ErrNoIdentity, ID: id}
	}

	row, err := uploadRow(rec, identity, e.spec.ToRemote)
	if err != nil {
		return Result{OK: true, Source: SourceLocal, Err: err, ID: id}
	}
	stored, err := e.store.Upsert(ctx, e.spec.Table, []remote.Row{row}, e.spec.ConflictKey)
	if err != nil {
		e.logger.Warn("save item kept local only", "id", id, "error", err)
		return Result{OK: true, Source: SourceLocal, Err: err, ID: id}
	}

	promoted := make(map[string]string)
	if len(stored) == 1 {
		recordPromotion(promoted, id, stored[0].ID())
	}
	if !e.promote(identity, promoted) {
		return Result{OK: true, Source: SourceRemote, Err: ErrIdentityChanged, ID: id}
	}
	if next, ok := promoted[id]; ok {
		id = next
	}
	return Result{OK: true, Source: SourceRemote, ID: id, Promoted: nonEmpty(promoted)}
}

// RemoveItem removes a record locally and, when remote-capable, deletes it
// remotely scoped by identity. Records with locally-minted ids never reached
// the remote store, so no delete is issued for them.
func (e *Engine[T]) RemoveItem(ctx context.Context, id string) Result {
	e.uploadMu.Lock()
	defer e.uploadMu.Unlock()
	e.session.Observe()
	e.mu.Lock()
	e.ensureLoadedLocked()
	list := e.spec.Shape.ToList(e.data)
	kept := list[:0]
	found := false
	for _, rec := range list {
		if rec.ID() == id {
			found = true
			continue
		}
		kept = append(kept, rec)
	}
	if !found {
		e.mu.Unlock()
		return Result{OK: false, Source: SourceLocal, ID: id, Err: fmt.Errorf("%s %s: %w", e.spec.Name, id, ErrNotFound)}
	}
	e.setLocked(kept)
	e.mu.Unlock()
	e.session.MarkInteracted()

	if IsLocalID(id) {
		return Result{OK: true, Source: SourceLocal, ID: id}
	}
	if !e.remoteCapable(ctx) {
		res := e.offlineResult()
		res.ID = id
		return res
	}
	identity := e.session.Bound()
	if identity == "" {
		return Result{OK: true, Source: SourceLocal, Err: ErrNoIdentity, ID: id}
	}

	err := e.store.Delete(ctx, e.spec.Table, remote.Filter{
		remote.IdentityColumn: identity,
		FieldID:               id,
	})
	if err != nil {
		e.logger.Warn("remove kept local only", "id", id, "error", err)
		return Result{OK: true, Source: SourceLocal, Err: err, ID: id}
	}
	return Result{OK: true, Source: SourceRemote, ID: id}
}

// Refresh re-fetches the collection and overwrites local state.
func (e *Engine[T]) Refresh(ctx context.Context) Result {
	e.session.Observe()
	if !e.remoteCapable(ctx) {
		return e.offlineResult()
	}
	identity := e.session.Bound()
	if identity == "" {
		return localResult(ErrNoIdentity)
	}

	e.setLoading(true)
	recs, err := e.fetch(ctx, identity)
	if err != nil {
		e.setLoading(false)
		e.logger.Warn("refresh failed", "error", err)
		return localResult(err)
	}

	if !e.commitSync(identity, recs, nil) {
		return e.abandonSync(nil)
	}
	return Result{OK: true, Source: SourceRemote}
}

// SyncPending retries what earlier syncs left undone. An initial sync that
// has not run, or that degraded to local, is run again. Otherwise records
// still carrying locally-minted ids are uploaded and promoted.
func (e *Engine[T]) SyncPending(ctx context.Context) Result {
	e.session.Observe()
	if !e.remoteCapable(ctx) {
		return e.offlineResult()
	}

	e.mu.Lock()
	synced, last := e.synced, e.result
	e.mu.Unlock()
	if synced && last.Source != SourceRemote {
		e.mu.Lock()
		e.synced = false
		e.mu.Unlock()
		synced = false
	}
	if !synced {
		return e.InitialSync(ctx)
	}

	e.uploadMu.Lock()
	defer e.uploadMu.Unlock()
	identity := e.session.Bound()
	if identity == "" {
		return localResult(ErrNoIdentity)
	}

	e.mu.Lock()
	e.ensureLoadedLocked()
	list := e.spec.Shape.ToList(e.data)
	e.mu.Unlock()

	promoted, err := e.uploadPending(ctx, identity, list)
	if len(promoted) == 0 && err == nil {
		return last
	}
	if !e.promote(identity, promoted) {
		return Result{OK: true, Source: SourceRemote, Err: ErrIdentityChanged}
	}
	if len(promoted) == 0 {
		e.logger.Warn("pending upload failed", "error", err)
		return localResult(err)
	}
	e.mu.Lock()
	e.lastSync = time.Now()
	e.mu.Unlock()
	return Result{OK: true, Source: SourceRemote, Err: err, Promoted: nonEmpty(promoted)}
}

// SaveRecords is Save for callers holding a flat record list.
func (e *Engine[T]) SaveRecords(ctx context.Context, list []Record) Result {
	return e.Save(ctx, e.spec.Shape.FromList(list))
}

// LoadRecords is Load as a flat record list.
func (e *Engine[T]) LoadRecords() []Record {
	return e.spec.Shape.ToList(e.Load())
}

// promote re-keys promoted records in memory and in the local store. Nothing
// is written, and false is returned, once identity is no longer bound.
func (e *Engine[T]) promote(identity string, promoted map[string]string) bool {
	if len(promoted) == 0 {
		return true
	}
	return e.session.commitFor(identity, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.ensureLoadedLocked()
		list := PromoteIDs(e.spec.Shape.ToList(e.data), promoted)
		e.setLocked(list)
	})
}

// stamp gives rec an id and a creation time when missing.
func stamp(rec Record) Record {
	if rec.ID() == "" {
		rec = rec.Clone()
		rec[FieldID] = NewLocalID()
	}
	if _, ok := rec[FieldCreatedAt]; !ok {
		rec = rec.Clone()
		rec[FieldCreatedAt] = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return rec
}

func containsID(list []Record, id string) bool {
	for _, r := range list {
		if r.ID() == id {
			return true
		}
	}
	return false
}

func nonEmpty(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return m
}
