package studysync_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hyperengineering/studysync"
	"github.com/hyperengineering/studysync/remote"
)

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestClient(t, nil, nil)
	src.Collections().Tasks.SaveItem(ctx, studysync.Record{"title": "Read", "priority": "high"})
	src.Collections().StudySessions.SaveItem(ctx, studysync.Record{
		"date": "2026-03-01", "startTime": "09:00", "endTime": "10:00",
	})
	src.Collections().Settings.Save(ctx, studysync.Record{"theme": "dark"})

	var buf bytes.Buffer
	if err := src.ExportJSON(ctx, &buf); err != nil {
		t.Fatalf("ExportJSON failed: %v", err)
	}

	var exported studysync.ExportFormat
	if err := json.Unmarshal(buf.Bytes(), &exported); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if exported.Version != studysync.ExportVersion || exported.Profile != "test" {
		t.Errorf("header = %+v", exported)
	}
	if len(exported.Collections) != 7 {
		t.Errorf("collections = %d, want 7", len(exported.Collections))
	}

	dst := newTestClient(t, nil, nil)
	result, err := dst.ImportJSON(ctx, bytes.NewReader(buf.Bytes()), studysync.MergeStrategyMerge, false)
	if err != nil {
		t.Fatalf("ImportJSON failed: %v", err)
	}
	if result.Total != 3 || result.Created != 3 {
		t.Errorf("result = %+v, want 3 created", result)
	}
	if len(result.Errors) != 0 {
		t.Errorf("errors = %v", result.Errors)
	}

	sessions := dst.Collections().StudySessions.Load()
	if len(sessions["2026-03-01"]) != 1 {
		t.Errorf("study sessions = %v", sessions)
	}
	if got := dst.Collections().Settings.Load(); got["theme"] != "dark" {
		t.Errorf("settings = %v", got)
	}
}

func TestImport_Strategies(t *testing.T) {
	ctx := context.Background()
	payload := `{"version":"1.0","collections":{"tasks":[
		{"id":"t1","title":"imported"},
		{"id":"t2","title":"new"}
	]}}`

	tests := []struct {
		strategy    studysync.MergeStrategy
		wantTitles  []string
		wantCreated int
		wantMerged  int
		wantSkipped int
	}{
		{studysync.MergeStrategyMerge, []string{"imported", "keep", "new"}, 1, 1, 0},
		{studysync.MergeStrategySkip, []string{"existing", "keep", "new"}, 1, 0, 1},
		{studysync.MergeStrategyReplace, []string{"imported", "new"}, 1, 1, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			c := newTestClient(t, nil, nil)
			c.Collections().Tasks.Save(ctx, []studysync.Record{
				{"id": "t1", "title": "existing"},
				{"id": "t0", "title": "keep"},
			})

			result, err := c.ImportJSON(ctx, strings.NewReader(payload), tt.strategy, false)
			if err != nil {
				t.Fatal(err)
			}
			if result.Created != tt.wantCreated || result.Merged != tt.wantMerged || result.Skipped != tt.wantSkipped {
				t.Errorf("result = %+v", result)
			}

			got := map[string]bool{}
			for _, r := range c.Collections().Tasks.Load() {
				got[r.String("title")] = true
			}
			if len(got) != len(tt.wantTitles) {
				t.Errorf("titles = %v, want %v", got, tt.wantTitles)
			}
			for _, title := range tt.wantTitles {
				if !got[title] {
					t.Errorf("missing title %q in %v", title, got)
				}
			}
		})
	}
}

func TestImport_DryRun(t *testing.T) {
	c := newTestClient(t, nil, nil)
	payload := `{"version":"1.0","collections":{"exams":[{"subject":"Law","examDate":"2026-12-01"}]}}`

	result, err := c.ImportJSON(context.Background(), strings.NewReader(payload), "", true)
	if err != nil {
		t.Fatal(err)
	}
	if result.Created != 1 {
		t.Errorf("Created = %d, want 1", result.Created)
	}
	if got := c.Collections().Exams.Load(); len(got) != 0 {
		t.Errorf("dry run wrote %v", got)
	}
}

func TestImport_UnknownCollectionAndVersion(t *testing.T) {
	c := newTestClient(t, nil, nil)
	ctx := context.Background()

	result, err := c.ImportJSON(ctx, strings.NewReader(`{"version":"1.0","collections":{"grades":[{"id":"g"}]}}`), "", false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Skipped != 1 || len(result.Errors) != 1 {
		t.Errorf("result = %+v, want one skipped with an error", result)
	}

	if _, err := c.ImportJSON(ctx, strings.NewReader(`{"version":"9"}`), "", false); err == nil {
		t.Error("unsupported version should fail")
	}
	if _, err := c.ImportJSON(ctx, strings.NewReader(`not json`), "", false); err == nil {
		t.Error("malformed input should fail")
	}
}

func TestImport_ReachesRemote(t *testing.T) {
	store := remote.NewMemoryStore()
	c := newTestClient(t, store, studysync.NewStaticIdentity("user-1", true))
	payload := `{"version":"1.0","collections":{"tasks":[{"title":"from backup"}]}}`

	result, err := c.ImportJSON(context.Background(), strings.NewReader(payload), "", false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Sources[studysync.CollectionTasks] != studysync.SourceRemote {
		t.Errorf("source = %q, want remote", result.Sources[studysync.CollectionTasks])
	}
	if rows := store.Rows("tasks"); len(rows) != 1 || rows[0]["user_id"] != "user-1" {
		t.Errorf("remote rows = %v", rows)
	}
}

func TestParseMergeStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    studysync.MergeStrategy
		wantErr bool
	}{
		{"", studysync.MergeStrategyMerge, false},
		{"skip", studysync.MergeStrategySkip, false},
		{"replace", studysync.MergeStrategyReplace, false},
		{"merge", studysync.MergeStrategyMerge, false},
		{"overwrite", "", true},
	}

	for _, tt := range tests {
		got, err := studysync.ParseMergeStrategy(tt.in)
		if tt.wantErr {
			var ve *studysync.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("ParseMergeStrategy(%q) err = %v, want ValidationError", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseMergeStrategy(%q) = %q, %v", tt.in, got, err)
		}
	}
}
