package studysync_test

import (
	"reflect"
	"testing"

	"github.com/hyperengineering/studysync"
)

func TestGroupFlatten_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		groups studysync.DateGroups
	}{
		{"empty", studysync.DateGroups{}},
		{"single day", studysync.DateGroups{
			"2026-03-01": {{"id": "a", "subject": "Law"}},
		}},
		{"several days", studysync.DateGroups{
			"2026-03-02": {{"id": "b", "startTime": "09:00"}, {"id": "c", "startTime": "14:00"}},
			"2026-03-01": {{"id": "a", "startTime": "08:00"}},
			"2026-04-10": {{"id": "d"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flat := studysync.Flatten(tt.groups, "date")
			got := studysync.Group(flat, "date")
			if !reflect.DeepEqual(got, tt.groups) {
				t.Errorf("Group(Flatten(m)) = %v, want %v", got, tt.groups)
			}
		})
	}
}

func TestFlatten_SkipsEmptyGroupsAndOrdersByDate(t *testing.T) {
	flat := studysync.Flatten(studysync.DateGroups{
		"2026-03-02": {{"id": "b"}},
		"2026-03-01": {{"id": "a"}},
		"2026-03-03": {},
	}, "date")

	if len(flat) != 2 {
		t.Fatalf("len = %d, want 2", len(flat))
	}
	if flat[0]["date"] != "2026-03-01" || flat[1]["date"] != "2026-03-02" {
		t.Errorf("dates = %v, %v; want sorted", flat[0]["date"], flat[1]["date"])
	}
}

func TestFlatten_DoesNotMutateInput(t *testing.T) {
	groups := studysync.DateGroups{"2026-03-01": {{"id": "a"}}}
	studysync.Flatten(groups, "date")
	if _, ok := groups["2026-03-01"][0]["date"]; ok {
		t.Error("Flatten wrote the date into the grouped record")
	}
}

func TestGroup_DropsRowsWithoutDate(t *testing.T) {
	got := studysync.Group([]studysync.Record{
		{"id": "a", "date": "2026-03-01"},
		{"id": "b"},
		{"id": "c", "date": ""},
	}, "date")

	if len(got) != 1 || len(got["2026-03-01"]) != 1 {
		t.Errorf("Group = %v, want only the dated row", got)
	}
	if _, ok := got["2026-03-01"][0]["date"]; ok {
		t.Error("grouped record should not repeat its date")
	}
}

func TestPrune(t *testing.T) {
	got := studysync.Prune(studysync.DateGroups{
		"2026-03-01": {{"id": "a"}},
		"2026-03-02": {},
		"2026-03-03": nil,
	})
	if len(got) != 1 {
		t.Errorf("Prune = %v, want one key", got)
	}
}
