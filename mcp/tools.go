// Package mcp exposes studysync collections as MCP (Model Context Protocol)
// tools.
//
// Two approaches are offered:
//
//  1. Full MCP server (server.go). Use NewServer() for a complete mcp-go
//     server with stdio transport.
//
//  2. Registry pattern (tools.go). Use RegisterTools() when the host agent
//     framework already has its own MCP registry.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hyperengineering/studysync"
)

// Registry is an interface for MCP tool registration.
type Registry interface {
	Register(tool Tool)
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string
	Description string
	Parameters  Schema
	Handler     Handler
}

// Schema defines the JSON schema for tool parameters.
type Schema map[string]ParameterDef

// ParameterDef defines a single parameter.
type ParameterDef struct {
	Type        string            `json:"type"`
	Description string            `json:"description,omitempty"`
	Required    bool              `json:"required,omitempty"`
	Default     any               `json:"default,omitempty"`
	Items       map[string]string `json:"items,omitempty"`
	Enum        []string          `json:"enum,omitempty"`
}

// Handler is a function that handles tool invocations.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// RegisterTools registers the collection tools with an MCP registry.
// Handlers return structured values instead of formatted text.
func RegisterTools(registry Registry, client *studysync.Client) {
	names := client.Collections().Names()

	registry.Register(Tool{
		Name:        "studysync_list",
		Description: "List the records of a collection",
		Parameters: Schema{
			"collection": {
				Type:        "string",
				Description: "Collection name",
				Required:    true,
				Enum:        names,
			},
		},
		Handler: makeListHandler(client),
	})

	registry.Register(Tool{
		Name:        "studysync_save",
		Description: "Create or update one record in a collection",
		Parameters: Schema{
			"collection": {
				Type:        "string",
				Description: "Collection name",
				Required:    true,
				Enum:        names,
			},
			"record": {
				Type:        "object",
				Description: "The record's fields; omit id to create",
				Required:    true,
			},
		},
		Handler: makeSaveHandler(client),
	})

	registry.Register(Tool{
		Name:        "studysync_remove",
		Description: "Remove one record from a collection",
		Parameters: Schema{
			"collection": {
				Type:        "string",
				Description: "Collection name",
				Required:    true,
				Enum:        names,
			},
			"id": {
				Type:        "string",
				Description: "Record id",
				Required:    true,
			},
		},
		Handler: makeRemoveHandler(client),
	})

	registry.Register(Tool{
		Name:        "studysync_sync",
		Description: "Reconcile local collections with the remote store",
		Handler:     makeSyncHandler(client),
	})
}

type collectionParams struct {
	Collection string           `json:"collection"`
	Record     studysync.Record `json:"record"`
	ID         string           `json:"id"`
}

func parseCollectionParams(client *studysync.Client, raw json.RawMessage) (studysync.Collection, collectionParams, error) {
	var params collectionParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, params, fmt.Errorf("parse params: %w", err)
	}
	if params.Collection == "" {
		return nil, params, fmt.Errorf("collection is required")
	}
	col, err := client.Collection(params.Collection)
	if err != nil {
		return nil, params, err
	}
	return col, params, nil
}

func makeListHandler(client *studysync.Client) Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		col, _, err := parseCollectionParams(client, raw)
		if err != nil {
			return nil, err
		}
		return col.LoadRecords(), nil
	}
}

func makeSaveHandler(client *studysync.Client) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		col, params, err := parseCollectionParams(client, raw)
		if err != nil {
			return nil, err
		}
		if len(params.Record) == 0 {
			return nil, fmt.Errorf("record is required")
		}
		return resultOrError(col.SaveItem(ctx, params.Record))
	}
}

func makeRemoveHandler(client *studysync.Client) Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		col, params, err := parseCollectionParams(client, raw)
		if err != nil {
			return nil, err
		}
		if params.ID == "" {
			return nil, fmt.Errorf("id is required")
		}
		return resultOrError(col.RemoveItem(ctx, params.ID))
	}
}

func makeSyncHandler(client *studysync.Client) Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		return client.SyncAll(ctx)
	}
}

// resultOrError turns a failed Result into an error. Degraded results are
// returned as-is: the change is stored locally.
func resultOrError(res studysync.Result) (any, error) {
	if !res.OK {
		return nil, res.Err
	}
	return res, nil
}
