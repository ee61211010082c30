package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/studysync/internal/profile"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show identity, remote reachability and per-collection counts",
	RunE:  runStatus,
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List local profiles",
	Long: `List the profiles that have a local database under the studysync
data directory. Select one with --profile or STUDYSYNC_PROFILE.`,
	RunE: runProfiles,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(profilesCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	st, err := client.Status(cmd.Context())
	if err != nil {
		return err
	}
	return outputStatus(cmd, st, client.HealthCheck(cmd.Context()))
}

// ProfileOutput is one entry of the profiles command.
type ProfileOutput struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Current bool   `json:"current"`
}

func runProfiles(cmd *cobra.Command, args []string) error {
	root := profile.Root()
	names, err := profile.List(root)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}

	current := loadConfig().WithDefaults().Profile
	entries := make([]ProfileOutput, 0, len(names))
	for _, name := range names {
		entries = append(entries, ProfileOutput{
			Name:    name,
			Path:    profile.DBPath(name),
			Current: name == current,
		})
	}

	if outputJSON {
		return outputAsJSON(cmd, entries)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		printMuted(out, "No profiles under %s.", root)
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		mark := ""
		if e.Current {
			mark = iconInfo
		}
		rows = append(rows, []string{mark, e.Name, e.Path})
	}
	fmt.Fprintln(out, renderTable([]string{"", "PROFILE", "PATH"}, rows))
	return nil
}
