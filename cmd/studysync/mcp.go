package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/studysync"
	studysyncmcp "github.com/hyperengineering/studysync/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing the planner collections",
	Long: `Start a Model Context Protocol (MCP) server over stdio so an assistant
can list, save and remove planner records and trigger syncs.

Example client configuration:

  {
    "mcpServers": {
      "studysync": {
        "command": "studysync",
        "args": ["mcp"],
        "env": {
          "STUDYSYNC_PROFILE": "default",
          "STUDYSYNC_REMOTE_URL": "https://project.example.com",
          "STUDYSYNC_API_KEY": "...",
          "STUDYSYNC_ACCESS_TOKEN": "..."
        }
      }
    }
  }

Background sync runs every sync_interval while the server is up.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	cfg.AutoSync = true
	if v.IsSet("auto_sync") {
		cfg.AutoSync = v.GetBool("auto_sync")
	}

	// The client lives as long as the server.
	client, err := studysync.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	return studysyncmcp.NewServer(client).Run()
}
