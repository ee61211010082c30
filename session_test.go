package studysync_test

import (
	"context"
	"testing"

	"github.com/hyperengineering/studysync"
)

func TestSession_Transitions(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want studysync.TransitionKind
	}{
		{"unchanged", "user-a", "user-a", studysync.TransitionNone},
		{"login", "", "user-a", studysync.TransitionLogin},
		{"logout", "user-a", "", studysync.TransitionLogout},
		{"switch", "user-a", "user-b", studysync.TransitionSwitch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.from, false)
			h.session.Observe()

			h.identity.Set(tt.to)
			got := h.session.Observe()
			if got.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", got.Kind, tt.want)
			}
			if got.From != tt.from || got.To != tt.to {
				t.Errorf("From/To = %q/%q, want %q/%q", got.From, got.To, tt.from, tt.to)
			}
			if h.session.Bound() != tt.to {
				t.Errorf("Bound = %q, want %q", h.session.Bound(), tt.to)
			}
		})
	}
}

func TestSession_LoginKeepsLocalData(t *testing.T) {
	h := newHarness(t, "", false)
	tasks := h.tasks()
	tasks.SaveItem(context.Background(), studysync.Record{"title": "anonymous work"})

	h.identity.Set("user-a")
	h.session.Observe()

	if got := tasks.Load(); len(got) != 1 {
		t.Errorf("Load after login = %v, want anonymous data kept for migration", got)
	}
}

func TestSession_LogoutClearsRegisteredKeysOnly(t *testing.T) {
	h := newHarness(t, "user-a", false)
	tasks := h.tasks()
	tasks.SaveItem(context.Background(), studysync.Record{"title": "private"})
	h.local.Write("unrelated", "keep me")

	h.identity.Set("")
	h.session.Observe()

	if got := tasks.Load(); len(got) != 0 {
		t.Errorf("Load after logout = %v, want empty", got)
	}
	if got := h.local.Read("unrelated", nil); got != "keep me" {
		t.Errorf("unregistered key = %v, want untouched", got)
	}
}

func TestSession_MarkerPersistsAcrossRestart(t *testing.T) {
	h := newHarness(t, "user-a", false)
	h.session.Observe()
	h.session.MarkSynced("tasks")

	restarted := h.restart(t)
	if got := restarted.session.Bound(); got != "user-a" {
		t.Errorf("Bound after restart = %q, want user-a", got)
	}
	if got := restarted.session.LastSynced("tasks"); got != "user-a" {
		t.Errorf("LastSynced after restart = %q, want user-a", got)
	}
	if tr := restarted.session.Observe(); tr.Kind != studysync.TransitionNone {
		t.Errorf("Observe after restart = %s, want none", tr.Kind)
	}
}

func TestSession_SwitchWhileStoppedIsDetected(t *testing.T) {
	h := newHarness(t, "user-a", false)
	tasks := h.tasks()
	tasks.SaveItem(context.Background(), studysync.Record{"title": "a's"})

	h.identity.Set("user-b")
	restarted := h.restart(t)
	restartedTasks := restarted.tasks()

	if got := restartedTasks.Load(); len(got) != 0 {
		t.Errorf("Load for user-b = %v, want user-a's data cleared", got)
	}
}

func TestSession_CheckCollection(t *testing.T) {
	h := newHarness(t, "user-a", false)
	h.session.Observe()

	if !h.session.CheckCollection("tasks", "tasks") {
		t.Error("never-synced collection should pass")
	}
	h.session.MarkSynced("tasks")
	if !h.session.CheckCollection("tasks", "tasks") {
		t.Error("collection synced for the bound identity should pass")
	}

	h.local.Write(studysync.IdentityMarkerKey, map[string]any{
		"identity":    "user-a",
		"collections": map[string]string{"tasks": "user-z"},
	})
	h.local.Write("tasks", []studysync.Record{{"id": "z1"}})
	restarted := h.restart(t)

	if restarted.session.CheckCollection("tasks", "tasks") {
		t.Error("collection synced for another identity should fail")
	}
	if got := restarted.local.Read("tasks", nil); got != nil {
		t.Errorf("stale collection = %v, want discarded", got)
	}
	if got := restarted.session.LastSynced("tasks"); got != "" {
		t.Errorf("LastSynced = %q, want cleared", got)
	}
}

func TestSession_Interacted(t *testing.T) {
	h := newHarness(t, "user-a", false)
	tasks := h.tasks()
	if h.session.Interacted() {
		t.Fatal("fresh session should not be interacted")
	}

	tasks.SaveItem(context.Background(), studysync.Record{"title": "x"})
	if !h.session.Interacted() {
		t.Error("save should mark the session interacted")
	}

	h.identity.Set("user-b")
	h.session.Observe()
	if h.session.Interacted() {
		t.Error("identity transition should reset the interacted flag")
	}
}
