package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hyperengineering/studysync"
	studysyncmcp "github.com/hyperengineering/studysync/mcp"
)

type mapRegistry map[string]studysyncmcp.Tool

func (r mapRegistry) Register(tool studysyncmcp.Tool) { r[tool.Name] = tool }

func TestRegisterTools(t *testing.T) {
	f := newFixture(t, "", false)
	reg := mapRegistry{}
	studysyncmcp.RegisterTools(reg, f.client)

	for _, name := range []string{"studysync_list", "studysync_save", "studysync_remove", "studysync_sync"} {
		if _, ok := reg[name]; !ok {
			t.Errorf("tool %q not registered", name)
		}
	}
	if enum := reg["studysync_list"].Parameters["collection"].Enum; len(enum) != 7 {
		t.Errorf("collection enum = %v, want every collection", enum)
	}
}

func TestRegisterTools_Handlers(t *testing.T) {
	f := newFixture(t, "", false)
	reg := mapRegistry{}
	studysyncmcp.RegisterTools(reg, f.client)
	ctx := context.Background()

	out, err := reg["studysync_save"].Handler(ctx, json.RawMessage(`{"collection":"tasks","record":{"title":"x"}}`))
	if err != nil {
		t.Fatalf("save handler: %v", err)
	}
	res, ok := out.(studysync.Result)
	if !ok || !res.OK || res.ID == "" {
		t.Fatalf("save result = %#v", out)
	}

	out, err = reg["studysync_list"].Handler(ctx, json.RawMessage(`{"collection":"tasks"}`))
	if err != nil {
		t.Fatalf("list handler: %v", err)
	}
	if recs, ok := out.([]studysync.Record); !ok || len(recs) != 1 {
		t.Errorf("list result = %#v", out)
	}

	if _, err := reg["studysync_remove"].Handler(ctx, json.RawMessage(`{"collection":"tasks","id":"missing"}`)); !errors.Is(err, studysync.ErrNotFound) {
		t.Errorf("remove missing err = %v, want ErrNotFound", err)
	}
	if _, err := reg["studysync_list"].Handler(ctx, json.RawMessage(`{"collection":"grades"}`)); !errors.Is(err, studysync.ErrUnknownCollection) {
		t.Errorf("unknown collection err = %v", err)
	}
	if _, err := reg["studysync_save"].Handler(ctx, json.RawMessage(`{"collection":"tasks"}`)); err == nil {
		t.Error("save without record should fail")
	}

	out, err = reg["studysync_sync"].Handler(ctx, nil)
	if err != nil {
		t.Fatalf("sync handler: %v", err)
	}
	if results, ok := out.(map[string]studysync.Result); !ok || len(results) != 7 {
		t.Errorf("sync result = %#v", out)
	}
}
