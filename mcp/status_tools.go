package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperengineering/studysync"
)

// handleStatus handles the studysync_status tool call.
func (s *Server) handleStatus(ctx context.Context, args map[string]any) (*ToolResult, error) {
	st, err := s.client.Status(ctx)
	if err != nil {
		return &ToolResult{
			Content: fmt.Sprintf("status failed: %v", err),
			IsError: true,
		}, nil
	}
	health := s.client.HealthCheck(ctx)
	return &ToolResult{Content: formatStatus(st, health)}, nil
}

// formatStatus formats the status response for display.
func formatStatus(st *studysync.Status, health studysync.HealthStatus) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Profile: %s\n", st.Profile))
	if st.Identity != "" {
		sb.WriteString(fmt.Sprintf("Signed in as: %s\n", st.Identity))
	} else {
		sb.WriteString("Signed in as: (anonymous)\n")
	}

	switch {
	case !st.RemoteEnabled:
		sb.WriteString("Remote: not configured (local only)\n")
	case !health.RemoteReachable:
		sb.WriteString("Remote: unreachable\n")
	case st.RemoteCapable:
		sb.WriteString("Remote: online\n")
	default:
		sb.WriteString("Remote: reachable, sign in to sync\n")
	}
	if st.LastSync != "" {
		sb.WriteString(fmt.Sprintf("Last sync: %s\n", formatRelativeTime(st.LastSync)))
	}
	sb.WriteString("\n")

	sb.WriteString("Collections:\n")
	for _, c := range st.Collections {
		line := fmt.Sprintf("  %-16s %4d records", c.Name, c.Records)
		if c.Pending > 0 {
			line += fmt.Sprintf(", %d pending upload", c.Pending)
		}
		if c.Synced {
			line += ", synced"
		}
		sb.WriteString(line + "\n")
	}

	return sb.String()
}

// formatRelativeTime formats a timestamp as relative time (e.g., "2h ago").
func formatRelativeTime(timestamp string) string {
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return timestamp
	}

	duration := time.Since(t)
	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		return fmt.Sprintf("%dm ago", int(duration.Minutes()))
	case duration < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(duration.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(duration.Hours()/24))
	}
}
