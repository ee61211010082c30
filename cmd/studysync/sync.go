package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/studysync"
)

var (
	syncForce   bool
	syncPending bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize every collection with the remote store",
	Long: `Run the initial sync of every collection: remote rows are merged with
local records, records created offline are uploaded and receive their
remote ids.

Use --force to sync again even if this session already synced. Use
--pending to only retry collections whose sync degraded and upload records
still holding local ids.`,
	RunE: runSync,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-read every collection from the remote store",
	Long: `Replace local records with the remote store's rows. Records still
pending upload are dropped, so run "studysync sync --pending" first. Without
a signed-in user or a reachable remote, the local records are left as they
are.`,
	RunE: runRefresh,
}

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "Sync even if already synced")
	syncCmd.Flags().BoolVar(&syncPending, "pending", false, "Only retry degraded syncs and upload pending records")
	syncCmd.MarkFlagsMutuallyExclusive("force", "pending")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(refreshCmd)
}

type syncFunc func(context.Context) (map[string]studysync.Result, error)

func runSync(cmd *cobra.Command, args []string) error {
	return runSyncOp(cmd, "Sync", "Syncing collections", func(c *studysync.Client) syncFunc {
		switch {
		case syncForce:
			return c.Resync
		case syncPending:
			return c.SyncPending
		}
		return c.SyncAll
	})
}

func runRefresh(cmd *cobra.Command, args []string) error {
	return runSyncOp(cmd, "Refresh", "Refreshing from remote", func(c *studysync.Client) syncFunc {
		return c.Refresh
	})
}

func runSyncOp(cmd *cobra.Command, title, message string, pick func(*studysync.Client) syncFunc) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	var results map[string]studysync.Result
	start := time.Now()
	err = runWithSpinner(cmd.ErrOrStderr(), message, func() error {
		var opErr error
		results, opErr = pick(client)(cmd.Context())
		return opErr
	})
	if err != nil {
		return err
	}
	return outputSyncResults(cmd, title, results, time.Since(start))
}
