package studysync_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperengineering/studysync"
	"github.com/hyperengineering/studysync/remote"
)

// =============================================================================
// Priority mapping
// =============================================================================

func TestPriorityMapping(t *testing.T) {
	tests := []struct {
		in         any
		wantRemote string
		wantLocal  string
	}{
		{"low", "niedrig", "low"},
		{"medium", "mittel", "medium"},
		{"high", "hoch", "high"},
		{" HIGH ", "hoch", "high"},
		{"niedrig", "niedrig", "low"},
		{"mittel", "mittel", "medium"},
		{"hoch", "hoch", "high"},
		{"urgent", "niedrig", "low"},
		{"", "niedrig", "low"},
		{nil, "niedrig", "low"},
		{42, "niedrig", "low"},
	}

	for _, tt := range tests {
		if got := studysync.PriorityToRemote(tt.in); got != tt.wantRemote {
			t.Errorf("PriorityToRemote(%v) = %q, want %q", tt.in, got, tt.wantRemote)
		}
		if got := studysync.PriorityFromRemote(tt.in); got != tt.wantLocal {
			t.Errorf("PriorityFromRemote(%v) = %q, want %q", tt.in, got, tt.wantLocal)
		}
	}
}

// =============================================================================
// Column mapping
// =============================================================================

func TestTasksSpec_Mapping(t *testing.T) {
	spec := studysync.TasksSpec()

	row, err := spec.ToRemote(studysync.Record{
		"id":        "r1",
		"title":     "Read chapter 4",
		"priority":  "high",
		"dueDate":   "2026-11-01",
		"createdAt": "2026-10-01T08:00:00Z",
		"uiOnly":    true,
	})
	if err != nil {
		t.Fatalf("ToRemote failed: %v", err)
	}
	if row["priority"] != "hoch" || row["due_date"] != "2026-11-01" || row["created_at"] != "2026-10-01T08:00:00Z" {
		t.Errorf("row = %v", row)
	}
	if _, ok := row["uiOnly"]; ok {
		t.Error("unmapped field was uploaded")
	}

	rec, err := spec.FromRemote(remote.Row{
		"id": "r1", "title": "Read chapter 4", "priority": "mittel",
		"due_date": nil, "user_id": "user-1",
	})
	if err != nil {
		t.Fatalf("FromRemote failed: %v", err)
	}
	if rec["priority"] != "medium" {
		t.Errorf("priority = %v, want medium", rec["priority"])
	}
	if _, ok := rec["dueDate"]; ok {
		t.Error("null column should be omitted")
	}
	if _, ok := rec["user_id"]; ok {
		t.Error("identity column leaked into the record")
	}
}

func TestSpecs_RequiredFields(t *testing.T) {
	tests := []struct {
		name string
		fn   func(studysync.Record) (remote.Row, error)
		rec  studysync.Record
	}{
		{"task without title", studysync.TasksSpec().ToRemote, studysync.Record{"id": "a"}},
		{"template without name", studysync.TemplatesSpec().ToRemote, studysync.Record{"id": "a"}},
		{"session without end", studysync.StudySessionsSpec().ToRemote, studysync.Record{"date": "2026-03-01", "startTime": "09:00"}},
		{"exam without date", studysync.ExamsSpec().ToRemote, studysync.Record{"subject": "Law"}},
		{"history with negative duration", studysync.TimerHistorySpec().ToRemote, studysync.Record{"duration": float64(-1)}},
		{"history without duration", studysync.TimerHistorySpec().ToRemote, studysync.Record{"mode": "focus"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.fn(tt.rec)
			if !errors.Is(err, studysync.ErrInvalidRecord) {
				t.Errorf("err = %v, want ErrInvalidRecord", err)
			}
			var ve *studysync.ValidationError
			if !errors.As(err, &ve) || ve.Field == "" {
				t.Errorf("err = %v, want ValidationError naming the field", err)
			}
		})
	}
}

// =============================================================================
// Study sessions
// =============================================================================

func TestStudySessions_SaveItem(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "user-1", true)
	sessions := studysync.NewEngine(studysync.StudySessionsSpec(), h.session, h.store)

	res := sessions.SaveItem(ctx, studysync.Record{"subject": "Law", "startTime": "09:00"})
	if res.OK {
		t.Error("session without a date cannot be stored in the grouped shape")
	}

	res = sessions.SaveItem(ctx, studysync.Record{"date": "2026-03-01", "subject": "Law", "startTime": "09:00"})
	if !res.OK || res.Source != studysync.SourceLocal || !errors.Is(res.Err, studysync.ErrInvalidRecord) {
		t.Errorf("incomplete session result = %+v, want local with validation error", res)
	}

	res = sessions.SaveItem(ctx, studysync.Record{
		"date": "2026-03-02", "subject": "Math", "startTime": "10:00", "endTime": "11:30",
	})
	if !res.Synced() {
		t.Fatalf("complete session result = %+v, want synced", res)
	}

	groups := sessions.Data()
	if len(groups["2026-03-01"]) != 1 || len(groups["2026-03-02"]) != 1 {
		t.Errorf("groups = %v", groups)
	}
	if groups["2026-03-02"][0].ID() != res.ID {
		t.Errorf("grouped id = %q, want promoted %q", groups["2026-03-02"][0].ID(), res.ID)
	}
	if rows := h.store.Rows("study_sessions"); len(rows) != 1 || rows[0]["end_time"] != "11:30" {
		t.Errorf("remote rows = %v", rows)
	}
}

func TestStudySessions_FetchSkipsIncompleteRows(t *testing.T) {
	h := newHarness(t, "user-1", true)
	h.store.Seed("study_sessions",
		remote.Row{"id": "s1", "user_id": "user-1", "date": "2026-03-01", "start_time": "09:00", "end_time": "10:00"},
		remote.Row{"id": "s2", "user_id": "user-1", "date": "2026-03-01", "start_time": "11:00"},
	)
	sessions := studysync.NewEngine(studysync.StudySessionsSpec(), h.session, h.store)

	res := sessions.InitialSync(context.Background())
	if !res.Synced() {
		t.Fatalf("InitialSync = %+v", res)
	}
	got := sessions.Data()["2026-03-01"]
	if len(got) != 1 || got[0].ID() != "s1" {
		t.Errorf("sessions = %v, want only s1", got)
	}
}

// =============================================================================
// Settings
// =============================================================================

func TestSettings_OneRowPerIdentity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "user-1", true)
	settings := studysync.NewEngine(studysync.SettingsSpec(), h.session, h.store)

	first := settings.Save(ctx, studysync.Record{"theme": "dark"})
	if !first.Synced() {
		t.Fatalf("first save = %+v", first)
	}
	second := settings.Save(ctx, studysync.Record{"theme": "light", "pomodoroMinutes": float64(50)})
	if !second.Synced() {
		t.Fatalf("second save = %+v", second)
	}

	rows := h.store.Rows("user_settings")
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0]["theme"] != "light" || rows[0]["pomodoro_minutes"] != float64(50) {
		t.Errorf("row = %v", rows[0])
	}
	if got := settings.Data(); got.ID() != rows[0].ID() {
		t.Errorf("local id = %q, want %q", got.ID(), rows[0].ID())
	}
}

func TestSettings_LoginKeepsRemoteObject(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", true)
	h.store.Seed("user_settings", remote.Row{"id": "s1", "user_id": "user-1", "theme": "dark", "language": "de"})
	settings := studysync.NewEngine(studysync.SettingsSpec(), h.session, h.store)

	// Picked before signing in on this device.
	settings.Save(ctx, studysync.Record{"theme": "light", "pomodoroMinutes": float64(50)})

	h.identity.Set("user-1")
	res := settings.InitialSync(ctx)
	if !res.Synced() {
		t.Fatalf("InitialSync = %+v", res)
	}

	got := settings.Data()
	if got.ID() != "s1" || got["theme"] != "dark" || got["language"] != "de" {
		t.Errorf("local settings = %v, want remote object s1 with dark/de", got)
	}
	if got["pomodoroMinutes"] != float64(50) {
		t.Errorf("pomodoroMinutes = %v, want the local-only value 50", got["pomodoroMinutes"])
	}

	rows := h.store.Rows("user_settings")
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0]["theme"] != "dark" || rows[0]["language"] != "de" || rows[0]["pomodoro_minutes"] != float64(50) {
		t.Errorf("remote row = %v, want dark/de plus filled pomodoro_minutes", rows[0])
	}
}

// =============================================================================
// Timer history and snapshot
// =============================================================================

func TestTimerHistory_Append(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "user-1", true)
	history := &studysync.TimerHistory{Engine: studysync.NewEngine(studysync.TimerHistorySpec(), h.session, h.store)}

	res := history.Append(ctx, studysync.Record{"id": "reused", "mode": "focus", "duration": float64(1500)})
	if !res.Synced() {
		t.Fatalf("Append = %+v", res)
	}
	if res.ID == "reused" {
		t.Error("Append should not reuse a caller-supplied id")
	}

	res = history.Append(ctx, studysync.Record{"mode": "focus", "duration": float64(-5)})
	if !res.OK || res.Source != studysync.SourceLocal || !errors.Is(res.Err, studysync.ErrInvalidRecord) {
		t.Errorf("invalid entry result = %+v", res)
	}

	if got := len(history.Records()); got != 2 {
		t.Errorf("local entries = %d, want 2", got)
	}
	if got := len(h.store.Rows("timer_history")); got != 1 {
		t.Errorf("remote rows = %d, want 1", got)
	}
}

func TestTimerHistory_OrderedByCreation(t *testing.T) {
	h := newHarness(t, "", false)
	history := studysync.NewEngine(studysync.TimerHistorySpec(), h.session, h.store)

	history.Save(context.Background(), []studysync.Record{
		{"id": "b", "duration": float64(1), "createdAt": "2026-03-02T00:00:00Z"},
		{"id": "a", "duration": float64(1), "createdAt": "2026-03-01T00:00:00Z"},
	})
	if got := ids(history.Records()); got[0] != "a" || got[1] != "b" {
		t.Errorf("order = %v, want [a b]", got)
	}
}

// =============================================================================
// Collections
// =============================================================================

func TestCollections_Registry(t *testing.T) {
	h := newHarness(t, "", false)
	colls := studysync.NewCollections(h.session, h.store)

	want := []string{"tasks", "task_templates", "study_sessions", "exams", "timer_history", "user_settings", "timer_state"}
	got := colls.Names()
	if len(got) != len(want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	c, err := colls.Get("exams")
	if err != nil || c.Table() != "exams" {
		t.Errorf("Get(exams) = %v, %v", c, err)
	}
	if _, err := colls.Get("grades"); !errors.Is(err, studysync.ErrUnknownCollection) {
		t.Errorf("Get(grades) err = %v, want ErrUnknownCollection", err)
	}
}

func TestCollections_SyncAllAfterLogin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "", true)
	colls := studysync.NewCollections(h.session, h.store)

	colls.Tasks.SaveItem(ctx, studysync.Record{"title": "offline"})
	colls.Exams.SaveItem(ctx, studysync.Record{"subject": "Law", "examDate": "2026-12-01"})

	h.identity.Set("user-1")
	for _, c := range colls.All() {
		res := c.InitialSync(ctx)
		if c.Name() == studysync.CollectionTimerSnapshot {
			if !res.OK || res.Source != studysync.SourceLocal {
				t.Errorf("%s = %+v, want clean local result", c.Name(), res)
			}
			continue
		}
		if !res.Synced() {
			t.Errorf("%s = %+v, want synced", c.Name(), res)
		}
	}

	if got := len(h.store.Rows("tasks")); got != 1 {
		t.Errorf("remote tasks = %d, want 1", got)
	}
	if got := len(h.store.Rows("exams")); got != 1 {
		t.Errorf("remote exams = %d, want 1", got)
	}
	if colls.Tasks.Pending() != 0 || colls.Exams.Pending() != 0 {
		t.Error("migrated records should carry remote ids")
	}
}
