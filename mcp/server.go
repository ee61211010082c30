package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hyperengineering/studysync"
)

// Server wraps the MCP server with studysync tools.
type Server struct {
	client    *studysync.Client
	mcpServer *server.MCPServer
	refs      *RecordSession

	mu       sync.Mutex
	identity string
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server with studysync tools registered.
func NewServer(client *studysync.Client) *Server {
	s := &Server{
		client:   client,
		refs:     NewRecordSession(),
		identity: client.Identity().CurrentIdentity(),
	}

	s.mcpServer = server.NewMCPServer(
		"studysync",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
// This is primarily for testing the MCP protocol layer.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{Name: "studysync_list", Description: "List the records of a collection with session references (R1, R2, ...)"},
		{Name: "studysync_save", Description: "Create or update one record in a collection"},
		{Name: "studysync_remove", Description: "Remove one record from a collection"},
		{Name: "studysync_sync", Description: "Reconcile local collections with the remote store"},
		{Name: "studysync_status", Description: "Show identity, connectivity and per-collection sync state"},
	}
}

// CallTool executes a tool by name with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	s.checkIdentity()
	switch name {
	case "studysync_list":
		return s.handleList(ctx, args)
	case "studysync_save":
		return s.handleSave(ctx, args)
	case "studysync_remove":
		return s.handleRemove(ctx, args)
	case "studysync_sync":
		return s.handleSync(ctx, args)
	case "studysync_status":
		return s.handleStatus(ctx, args)
	default:
		return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
}

func (s *Server) registerTools() {
	collections := strings.Join(s.client.Collections().Names(), ", ")

	s.mcpServer.AddTool(mcp.NewTool("studysync_list",
		mcp.WithDescription("List the records of a collection. Returns session references (R1, R2, ...) usable with studysync_save and studysync_remove."),
		mcp.WithString("collection",
			mcp.Description("Collection name: "+collections),
			mcp.Required(),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of records to return (default: all)"),
		),
	), s.mcpHandler(s.handleList))

	s.mcpServer.AddTool(mcp.NewTool("studysync_save",
		mcp.WithDescription("Create or update one record. The record is stored locally first and uploaded when the session is online. A record without an id is created."),
		mcp.WithString("collection",
			mcp.Description("Collection name: "+collections),
			mcp.Required(),
		),
		mcp.WithObject("record",
			mcp.Description("The record's fields"),
			mcp.Required(),
		),
		mcp.WithString("ref",
			mcp.Description("Session ref (R1, R2) of the record to update"),
		),
	), s.mcpHandler(s.handleSave))

	s.mcpServer.AddTool(mcp.NewTool("studysync_remove",
		mcp.WithDescription("Remove one record by session ref or id."),
		mcp.WithString("collection",
			mcp.Description("Collection name: "+collections),
			mcp.Required(),
		),
		mcp.WithString("id",
			mcp.Description("Session ref (R1, R2) or record id"),
			mcp.Required(),
		),
	), s.mcpHandler(s.handleRemove))

	s.mcpServer.AddTool(mcp.NewTool("studysync_sync",
		mcp.WithDescription("Reconcile every collection with the remote store. Requires a signed-in, online session."),
		mcp.WithBoolean("refresh",
			mcp.Description("Overwrite local data with the remote copy instead of merging"),
		),
		mcp.WithBoolean("force",
			mcp.Description("Run the reconciliation again even if it already completed this session"),
		),
	), s.mcpHandler(s.handleSync))

	s.mcpServer.AddTool(mcp.NewTool("studysync_status",
		mcp.WithDescription("Show identity, connectivity and per-collection record counts. Read-only."),
	), s.mcpHandler(s.handleStatus))
}

type handlerFunc func(ctx context.Context, args map[string]any) (*ToolResult, error)

// mcpHandler adapts an internal handler to the mcp-go signature.
func (s *Server) mcpHandler(h handlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.checkIdentity()
		result, err := h(ctx, req.GetArguments())
		if err != nil {
			return nil, err
		}
		return toMCPResult(result), nil
	}
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
	}
	if r.IsError {
		result.IsError = true
	}
	return result
}

// checkIdentity drops session refs when the signed-in identity changed:
// they point at another user's records.
func (s *Server) checkIdentity() {
	current := s.client.Identity().CurrentIdentity()
	s.mu.Lock()
	defer s.mu.Unlock()
	if current != s.identity {
		s.refs.Clear()
		s.identity = current
	}
}

// Internal handlers

func (s *Server) collection(args map[string]any) (studysync.Collection, *ToolResult) {
	name, _ := args["collection"].(string)
	if name == "" {
		return nil, &ToolResult{Content: "collection is required", IsError: true}
	}
	col, err := s.client.Collection(name)
	if err != nil {
		return nil, &ToolResult{
			Content: fmt.Sprintf("unknown collection %q. Available: %s", name, strings.Join(s.client.Collections().Names(), ", ")),
			IsError: true,
		}
	}
	return col, nil
}

// resolveID accepts a session ref or a raw id.
func (s *Server) resolveID(collection, v string) string {
	if ref, ok := s.refs.Resolve(v); ok && ref.Collection == collection {
		return ref.RecordID
	}
	return v
}

func (s *Server) handleList(ctx context.Context, args map[string]any) (*ToolResult, error) {
	col, errResult := s.collection(args)
	if errResult != nil {
		return errResult, nil
	}

	recs := col.LoadRecords()
	if limit, ok := args["limit"].(float64); ok && limit > 0 && int(limit) < len(recs) {
		recs = recs[:int(limit)]
	}
	if len(recs) == 0 {
		return &ToolResult{Content: fmt.Sprintf("No records in %s.", col.Name())}, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%d):\n\n", col.Name(), len(recs)))
	for _, rec := range recs {
		ref := s.refs.Track(col.Name(), rec.ID())
		sb.WriteString(fmt.Sprintf("[%s] %s", ref, rec.ID()))
		if studysync.IsLocalID(rec.ID()) {
			sb.WriteString(" (pending upload)")
		}
		sb.WriteString("\n")
		sb.WriteString("    " + formatFields(rec) + "\n")
	}
	return &ToolResult{Content: sb.String()}, nil
}

func (s *Server) handleSave(ctx context.Context, args map[string]any) (*ToolResult, error) {
	col, errResult := s.collection(args)
	if errResult != nil {
		return errResult, nil
	}
	fields, ok := args["record"].(map[string]any)
	if !ok || len(fields) == 0 {
		return &ToolResult{Content: "record is required", IsError: true}, nil
	}

	rec := studysync.Record(fields).Clone()
	if ref, ok := args["ref"].(string); ok && ref != "" {
		r, found := s.refs.Resolve(ref)
		if !found || r.Collection != col.Name() {
			return &ToolResult{Content: fmt.Sprintf("unknown session ref %q for %s", ref, col.Name()), IsError: true}, nil
		}
		rec[studysync.FieldID] = r.RecordID
	}

	res := col.SaveItem(ctx, rec)
	s.refs.Rebind(col.Name(), res.Promoted)
	if !res.OK {
		return &ToolResult{Content: fmt.Sprintf("save failed: %v", res.Err), IsError: true}, nil
	}

	ref := s.refs.Track(col.Name(), res.ID)
	return &ToolResult{Content: fmt.Sprintf("Saved [%s] %s\n%s", ref, res.ID, formatResult(res))}, nil
}

func (s *Server) handleRemove(ctx context.Context, args map[string]any) (*ToolResult, error) {
	col, errResult := s.collection(args)
	if errResult != nil {
		return errResult, nil
	}
	raw, _ := args["id"].(string)
	if raw == "" {
		return &ToolResult{Content: "id is required", IsError: true}, nil
	}

	id := s.resolveID(col.Name(), raw)
	res := col.RemoveItem(ctx, id)
	if !res.OK {
		if errors.Is(res.Err, studysync.ErrNotFound) {
			return &ToolResult{Content: fmt.Sprintf("record %q not found in %s", raw, col.Name()), IsError: true}, nil
		}
		return &ToolResult{Content: fmt.Sprintf("remove failed: %v", res.Err), IsError: true}, nil
	}
	s.refs.Forget(col.Name(), id)
	return &ToolResult{Content: fmt.Sprintf("Removed %s\n%s", id, formatResult(res))}, nil
}

func (s *Server) handleSync(ctx context.Context, args map[string]any) (*ToolResult, error) {
	refresh, _ := args["refresh"].(bool)
	force, _ := args["force"].(bool)

	var results map[string]studysync.Result
	var err error
	switch {
	case refresh:
		results, err = s.client.Refresh(ctx)
	case force:
		results, err = s.client.Resync(ctx)
	default:
		results, err = s.client.SyncAll(ctx)
	}
	if err != nil {
		return &ToolResult{Content: fmt.Sprintf("sync failed: %v", err), IsError: true}, nil
	}

	for name, res := range results {
		s.refs.Rebind(name, res.Promoted)
	}
	return &ToolResult{Content: formatSyncResults(results)}, nil
}

// Formatting functions

func formatResult(res studysync.Result) string {
	var sb strings.Builder
	if res.Synced() {
		sb.WriteString("  Stored: local and remote")
	} else {
		sb.WriteString("  Stored: local only")
	}
	if res.Err != nil {
		sb.WriteString(fmt.Sprintf(" (%v)", res.Err))
	}
	return sb.String()
}

func formatSyncResults(results map[string]studysync.Result) string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	synced := 0
	var sb strings.Builder
	for _, name := range names {
		res := results[name]
		status := "synced"
		switch {
		case !res.OK:
			status = "failed"
		case !res.Synced():
			status = "local only"
		default:
			synced++
		}
		line := fmt.Sprintf("  %-16s %s", name, status)
		if n := len(res.Promoted); n > 0 {
			line += fmt.Sprintf(", %d uploaded", n)
		}
		if res.Err != nil && !errors.Is(res.Err, studysync.ErrOffline) {
			line += fmt.Sprintf(" (%v)", res.Err)
		}
		sb.WriteString(line + "\n")
	}
	return fmt.Sprintf("Sync finished: %d of %d collections synced\n", synced, len(results)) + sb.String()
}

// formatFields renders a record's fields, id excluded, in key order.
func formatFields(rec studysync.Record) string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		if k == studysync.FieldID {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := json.Marshal(rec[k])
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", k, truncate(string(v), 80)))
	}
	return strings.Join(parts, " ")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
