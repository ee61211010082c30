package studysync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperengineering/studysync/remote"
)

// Collection names. Each maps 1:1 to a local-store key and a remote table.
const (
	CollectionTasks         = "tasks"
	CollectionTemplates     = "task_templates"
	CollectionStudySessions = "study_sessions"
	CollectionExams         = "exams"
	CollectionTimerHistory  = "timer_history"
	CollectionSettings      = "user_settings"
	CollectionTimerSnapshot = "timer_state"
)

// CollectionNames lists every collection in registry order.
func CollectionNames() []string {
	return []string{
		CollectionTasks, CollectionTemplates, CollectionStudySessions, CollectionExams,
		CollectionTimerHistory, CollectionSettings, CollectionTimerSnapshot,
	}
}

// SessionDateField is the grouping field of study sessions.
const SessionDateField = "date"

// Collection is the type-erased view of an Engine used by the client, the
// CLI and the tool server.
type Collection interface {
	Name() string
	Table() string
	LoadRecords() []Record
	Records() []Record
	Pending() int
	Synced() bool
	Loading() bool
	LastSync() time.Time
	InitialSync(ctx context.Context) Result
	SyncPending(ctx context.Context) Result
	SaveRecords(ctx context.Context, list []Record) Result
	SaveItem(ctx context.Context, rec Record) Result
	RemoveItem(ctx context.Context, id string) Result
	Refresh(ctx context.Context) Result
	Reset()
}

// column pairs a local field with its remote column.
type column struct {
	local  string
	remote string
}

// columns is a collection's field mapping. Fields not listed are neither
// uploaded nor read back.
type columns []column

func (cs columns) toRemote(rec Record) remote.Row {
	row := make(remote.Row, len(cs))
	for _, c := range cs {
		if v, ok := rec[c.local]; ok {
			row[c.remote] = v
		}
	}
	return row
}

func (cs columns) fromRemote(row remote.Row) Record {
	rec := make(Record, len(cs))
	for _, c := range cs {
		if v, ok := row[c.remote]; ok && v != nil {
			rec[c.local] = v
		}
	}
	return rec
}

var baseColumns = columns{
	{FieldID, "id"},
	{FieldCreatedAt, "created_at"},
}

func withBase(cs ...column) columns {
	return append(append(columns{}, baseColumns...), cs...)
}

func require(rec Record, fields ...string) error {
	for _, f := range fields {
		if strings.TrimSpace(rec.String(f)) == "" {
			return invalidRecord(f, "required")
		}
	}
	return nil
}

// =============================================================================
// Tasks
// =============================================================================

var taskColumns = withBase(
	column{"title", "title"},
	column{"description", "description"},
	column{"priority", "priority"},
	column{"completed", "completed"},
	column{"dueDate", "due_date"},
	column{"subject", "subject"},
	column{FieldImportedFrom, "imported_from"},
)

// TasksSpec describes the tasks collection. Priorities are stored locally as
// low|medium|high and remotely in the schema's own vocabulary.
func TasksSpec() CollectionSpec[[]Record] {
	return CollectionSpec[[]Record]{
		Name:    CollectionTasks,
		Default: func() []Record { return []Record{} },
		Shape:   ListShape(),
		ToRemote: func(rec Record) (remote.Row, error) {
			if err := require(rec, "title"); err != nil {
				return nil, err
			}
			row := taskColumns.toRemote(rec)
			row["priority"] = PriorityToRemote(rec["priority"])
			return row, nil
		},
		FromRemote: func(row remote.Row) (Record, error) {
			rec := taskColumns.fromRemote(row)
			rec["priority"] = PriorityFromRemote(row["priority"])
			return rec, nil
		},
		Order: []remote.Order{{Column: "created_at"}},
	}
}

// =============================================================================
// Templates
// =============================================================================

var templateColumns = withBase(
	column{"name", "name"},
	column{"description", "description"},
	column{"tasks", "tasks"},
	column{FieldImportedFrom, "imported_from"},
)

// TemplatesSpec describes task templates. Templates cloned from a shared
// source carry its lineage key, so at most one clone per source survives.
func TemplatesSpec() CollectionSpec[[]Record] {
	return CollectionSpec[[]Record]{
		Name:    CollectionTemplates,
		Default: func() []Record { return []Record{} },
		Shape:   ListShape(),
		ToRemote: func(rec Record) (remote.Row, error) {
			if err := require(rec, "name"); err != nil {
				return nil, err
			}
			return templateColumns.toRemote(rec), nil
		},
		FromRemote: func(row remote.Row) (Record, error) {
			return templateColumns.fromRemote(row), nil
		},
		Order: []remote.Order{{Column: "created_at"}},
	}
}

// =============================================================================
// Study sessions
// =============================================================================

var studySessionColumns = withBase(
	column{SessionDateField, "date"},
	column{"subject", "subject"},
	column{"startTime", "start_time"},
	column{"endTime", "end_time"},
	column{"notes", "notes"},
	column{"completed", "completed"},
)

// StudySessionsSpec describes calendar study sessions, grouped locally by
// date. A session without both boundary times is dropped in either
// direction.
func StudySessionsSpec() CollectionSpec[DateGroups] {
	return CollectionSpec[DateGroups]{
		Name:    CollectionStudySessions,
		Default: func() DateGroups { return DateGroups{} },
		Shape:   GroupedShape(SessionDateField),
		ToRemote: func(rec Record) (remote.Row, error) {
			if err := require(rec, SessionDateField, "startTime", "endTime"); err != nil {
				return nil, err
			}
			return studySessionColumns.toRemote(rec), nil
		},
		FromRemote: func(row remote.Row) (Record, error) {
			rec := studySessionColumns.fromRemote(row)
			if err := require(rec, SessionDateField, "startTime", "endTime"); err != nil {
				return nil, err
			}
			return rec, nil
		},
		Order: []remote.Order{{Column: "date"}, {Column: "start_time"}},
	}
}

// =============================================================================
// Exams
// =============================================================================

var examColumns = withBase(
	column{"subject", "subject"},
	column{"examDate", "exam_date"},
	column{"title", "title"},
	column{"location", "location"},
	column{"grade", "grade"},
	column{"notes", "notes"},
)

// ExamsSpec describes exam records, ordered by exam date.
func ExamsSpec() CollectionSpec[[]Record] {
	return CollectionSpec[[]Record]{
		Name:    CollectionExams,
		Default: func() []Record { return []Record{} },
		Shape:   ListShape(),
		ToRemote: func(rec Record) (remote.Row, error) {
			if err := require(rec, "subject", "examDate"); err != nil {
				return nil, err
			}
			return examColumns.toRemote(rec), nil
		},
		FromRemote: func(row remote.Row) (Record, error) {
			rec := examColumns.fromRemote(row)
			if err := require(rec, "subject", "examDate"); err != nil {
				return nil, err
			}
			return rec, nil
		},
		Order: []remote.Order{{Column: "exam_date"}},
	}
}

// =============================================================================
// Timer history
// =============================================================================

var timerHistoryColumns = withBase(
	column{"subject", "subject"},
	column{"mode", "mode"},
	column{"duration", "duration_seconds"},
	column{"completed", "completed"},
)

// TimerHistorySpec describes the append-only timer log. Locally it is kept
// in append order; remotely the most recent HistoryCap entries are fetched.
func TimerHistorySpec() CollectionSpec[[]Record] {
	shape := ListShape()
	fromList := shape.FromList
	shape.FromList = func(list []Record) []Record {
		out := fromList(list)
		sortByCreated(out)
		return out
	}
	return CollectionSpec[[]Record]{
		Name:    CollectionTimerHistory,
		Default: func() []Record { return []Record{} },
		Shape:   shape,
		ToRemote: func(rec Record) (remote.Row, error) {
			if _, ok := toSeconds(rec["duration"]); !ok {
				return nil, invalidRecord("duration", "must be a number of seconds")
			}
			return timerHistoryColumns.toRemote(rec), nil
		},
		FromRemote: func(row remote.Row) (Record, error) {
			return timerHistoryColumns.fromRemote(row), nil
		},
		Order:   []remote.Order{{Column: "created_at", Descending: true}},
		Limit:   HistoryCap,
		History: true,
	}
}

// TimerHistory is the timer log engine with an append operation.
type TimerHistory struct {
	*Engine[[]Record]
}

// Append adds a completed timer run to the log.
func (h *TimerHistory) Append(ctx context.Context, entry Record) Result {
	entry = entry.Clone()
	delete(entry, FieldID)
	return h.SaveItem(ctx, entry)
}

func toSeconds(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, t >= 0
	case int:
		return float64(t), t >= 0
	case int64:
		return float64(t), t >= 0
	}
	return 0, false
}

// =============================================================================
// Settings
// =============================================================================

var settingsColumns = withBase(
	column{"theme", "theme"},
	column{"language", "language"},
	column{"dailyGoalMinutes", "daily_goal_minutes"},
	column{"pomodoroMinutes", "pomodoro_minutes"},
	column{"breakMinutes", "break_minutes"},
	column{"notifications", "notifications"},
)

// SettingsSpec describes the per-user settings object. There is one row per
// identity, so upserts resolve on the identity column.
func SettingsSpec() CollectionSpec[Record] {
	return CollectionSpec[Record]{
		Name:    CollectionSettings,
		Default: func() Record { return Record{} },
		Shape:   ObjectShape(),
		ToRemote: func(rec Record) (remote.Row, error) {
			return settingsColumns.toRemote(rec), nil
		},
		FromRemote: func(row remote.Row) (Record, error) {
			return settingsColumns.fromRemote(row), nil
		},
		ConflictKey: remote.IdentityColumn,
		Limit:       1,
		Singleton:   true,
	}
}

// =============================================================================
// Timer snapshot
// =============================================================================

// TimerSnapshotSpec describes the running timer's state. It is local-only:
// it lets a restarted process resume a timer, nothing more.
func TimerSnapshotSpec() CollectionSpec[Record] {
	return CollectionSpec[Record]{
		Name:      CollectionTimerSnapshot,
		Default:   func() Record { return Record{} },
		Shape:     ObjectShape(),
		LocalOnly: true,
	}
}

// TimerSnapshot is the timer state engine with a periodic persister.
type TimerSnapshot struct {
	*Engine[Record]
}

// Persist saves the snapshot produced by capture every interval until the
// returned task is stopped or ctx is cancelled. A nil snapshot is skipped.
func (s *TimerSnapshot) Persist(ctx context.Context, interval time.Duration, capture func() Record) *ScheduledTask {
	return Schedule(ctx, interval, func(ctx context.Context) {
		snap := capture()
		if snap == nil {
			return
		}
		snap = snap.Clone()
		snap["savedAt"] = time.Now().UTC().Format(time.RFC3339Nano)
		s.Save(ctx, snap)
	})
}

// =============================================================================
// Collections
// =============================================================================

// Collections bundles the engines of every domain collection.
type Collections struct {
	Tasks         *Engine[[]Record]
	Templates     *Engine[[]Record]
	StudySessions *Engine[DateGroups]
	Exams         *Engine[[]Record]
	TimerHistory  *TimerHistory
	Settings      *Engine[Record]
	TimerSnapshot *TimerSnapshot
}

// NewCollections builds every engine against session and store.
func NewCollections(session *Session, store remote.Store) *Collections {
	return &Collections{
		Tasks:         NewEngine(TasksSpec(), session, store),
		Templates:     NewEngine(TemplatesSpec(), session, store),
		StudySessions: NewEngine(StudySessionsSpec(), session, store),
		Exams:         NewEngine(ExamsSpec(), session, store),
		TimerHistory:  &TimerHistory{NewEngine(TimerHistorySpec(), session, store)},
		Settings:      NewEngine(SettingsSpec(), session, store),
		TimerSnapshot: &TimerSnapshot{NewEngine(TimerSnapshotSpec(), session, store)},
	}
}

// All returns every collection in a stable order.
func (c *Collections) All() []Collection {
	return []Collection{
		c.Tasks, c.Templates, c.StudySessions, c.Exams,
		c.TimerHistory, c.Settings, c.TimerSnapshot,
	}
}

// Get returns the named collection.
func (c *Collections) Get(name string) (Collection, error) {
	for _, col := range c.All() {
		if col.Name() == name {
			return col, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", name, ErrUnknownCollection)
}

// Names lists every collection name.
func (c *Collections) Names() []string {
	all := c.All()
	names := make([]string, len(all))
	for i, col := range all {
		names[i] = col.Name()
	}
	return names
}
