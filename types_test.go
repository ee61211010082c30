package studysync_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hyperengineering/studysync"
)

func TestLocalIDs(t *testing.T) {
	id := studysync.NewLocalID()
	if !strings.HasPrefix(id, studysync.LocalIDPrefix) {
		t.Errorf("NewLocalID = %q, want %q prefix", id, studysync.LocalIDPrefix)
	}
	if id == studysync.NewLocalID() {
		t.Error("NewLocalID should be unique")
	}

	tests := []struct {
		id   string
		want bool
	}{
		{id, true},
		{"local-anything", true},
		{"1718000000000", true},
		{"550e8400-e29b-41d4-a716-446655440000", false},
		{"42", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := studysync.IsLocalID(tt.id); got != tt.want {
			t.Errorf("IsLocalID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestRecord_CreatedAt(t *testing.T) {
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		v    any
		ok   bool
	}{
		{"rfc3339", "2026-03-01T00:00:00Z", true},
		{"date only", "2026-03-01", true},
		{"unix millis float", float64(want.UnixMilli()), true},
		{"unix millis string", "1772323200000", true},
		{"garbage", "yesterday", false},
		{"missing", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := studysync.Record{}
			if tt.v != nil {
				rec["createdAt"] = tt.v
			}
			got, ok := rec.CreatedAt()
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(want) {
				t.Errorf("CreatedAt = %v, want %v", got, want)
			}
		})
	}
}

func TestRecord_Accessors(t *testing.T) {
	rec := studysync.Record{"id": float64(7), "importedFrom": "tpl", "n": 3}
	if rec.ID() != "7" {
		t.Errorf("ID = %q, want 7", rec.ID())
	}
	if rec.Lineage() != "tpl" {
		t.Errorf("Lineage = %q", rec.Lineage())
	}

	clone := rec.Clone()
	clone["n"] = 4
	if rec["n"] != 3 {
		t.Error("Clone shares storage with the original")
	}
}

func TestResult_Synced(t *testing.T) {
	if !(studysync.Result{OK: true, Source: studysync.SourceRemote}).Synced() {
		t.Error("remote result should be synced")
	}
	if (studysync.Result{OK: true, Source: studysync.SourceLocal}).Synced() {
		t.Error("local result should not be synced")
	}
}

func TestValidationError(t *testing.T) {
	cfgErr := &studysync.ValidationError{Field: "LocalPath", Message: "required"}
	if !strings.Contains(cfgErr.Error(), "LocalPath") {
		t.Errorf("Error = %q", cfgErr.Error())
	}
	if errors.Is(cfgErr, studysync.ErrInvalidRecord) {
		t.Error("config error should not match ErrInvalidRecord")
	}

	recErr := &studysync.ValidationError{Field: "title", Message: "required", Err: studysync.ErrInvalidRecord}
	if !errors.Is(recErr, studysync.ErrInvalidRecord) {
		t.Error("record error should unwrap to ErrInvalidRecord")
	}
}
