package mcp_test

import (
	"testing"

	"github.com/hyperengineering/studysync/mcp"
)

// =============================================================================
// RecordSession Unit Tests
// =============================================================================

func TestRecordSession_Track_GlobalCounter(t *testing.T) {
	session := mcp.NewRecordSession()

	refs := []string{
		session.Track("tasks", "a"),
		session.Track("tasks", "b"),
		session.Track("exams", "a"),
	}
	want := []string{"R1", "R2", "R3"}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("ref %d = %q, want %q", i, refs[i], want[i])
		}
	}
}

func TestRecordSession_Track_ReturnsSameRefForDuplicate(t *testing.T) {
	session := mcp.NewRecordSession()

	first := session.Track("tasks", "a")
	again := session.Track("tasks", "a")
	if first != again {
		t.Errorf("duplicate Track = %q, want %q", again, first)
	}
	if session.Len() != 1 {
		t.Errorf("Len = %d, want 1", session.Len())
	}
}

func TestRecordSession_Resolve(t *testing.T) {
	session := mcp.NewRecordSession()
	ref := session.Track("exams", "e1")

	got, ok := session.Resolve(ref)
	if !ok || got.Collection != "exams" || got.RecordID != "e1" {
		t.Errorf("Resolve(%q) = %+v, %v", ref, got, ok)
	}
	if _, ok := session.Resolve("R99"); ok {
		t.Error("unknown ref should not resolve")
	}
}

func TestRecordSession_Rebind(t *testing.T) {
	session := mcp.NewRecordSession()
	ref := session.Track("tasks", "local-1")
	other := session.Track("exams", "local-1")

	session.Rebind("tasks", map[string]string{"local-1": "r1"})

	got, _ := session.Resolve(ref)
	if got.RecordID != "r1" {
		t.Errorf("rebound ref = %+v, want r1", got)
	}
	if session.Track("tasks", "r1") != ref {
		t.Error("promoted id should keep its ref")
	}
	if got, _ := session.Resolve(other); got.RecordID != "local-1" {
		t.Error("Rebind touched another collection")
	}
}

func TestRecordSession_ForgetAndClear(t *testing.T) {
	session := mcp.NewRecordSession()
	ref := session.Track("tasks", "a")
	session.Track("tasks", "b")

	session.Forget("tasks", "a")
	if _, ok := session.Resolve(ref); ok {
		t.Error("forgotten ref still resolves")
	}

	session.Clear()
	if session.Len() != 0 {
		t.Errorf("Len after Clear = %d", session.Len())
	}
	if got := session.Track("tasks", "c"); got != "R1" {
		t.Errorf("Track after Clear = %q, want R1", got)
	}
}
