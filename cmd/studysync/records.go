package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/studysync"
)

var (
	showID    string
	showLimit int

	saveSets []string
	saveData string
	saveID   string
)

var showCmd = &cobra.Command{
	Use:   "show <collection>",
	Short: "List the records of a collection",
	Long: `List a collection's records from the local store.

Records whose id starts with "local-" have not been uploaded yet.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

var saveItemCmd = &cobra.Command{
	Use:   "save-item <collection>",
	Short: "Create or update a record",
	Long: `Create or update one record. Fields come from --data (a JSON object)
and --set key=value pairs, applied in that order. Values given to --set
are parsed as JSON when possible, so --set done=true stores a boolean.

Without --id (and without an "id" field) a new record is created.`,
	Example: `  studysync save-item tasks --set title="Revise contracts" --set priority=high
  studysync save-item exams --data '{"subject":"Law","examDate":"2026-12-01"}'
  studysync save-item tasks --id local-01J... --set done=true`,
	Args: cobra.ExactArgs(1),
	RunE: runSaveItem,
}

var removeCmd = &cobra.Command{
	Use:   "remove <collection> <id>",
	Short: "Remove a record",
	Args:  cobra.ExactArgs(2),
	RunE:  runRemove,
}

func init() {
	showCmd.Flags().StringVar(&showID, "id", "", "Show a single record")
	showCmd.Flags().IntVarP(&showLimit, "limit", "n", 0, "Show at most n records (0 = all)")

	saveItemCmd.Flags().StringArrayVar(&saveSets, "set", nil, "Field assignment key=value (repeatable)")
	saveItemCmd.Flags().StringVar(&saveData, "data", "", "Record fields as a JSON object")
	saveItemCmd.Flags().StringVar(&saveID, "id", "", "Id of the record to update")

	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(saveItemCmd)
	rootCmd.AddCommand(removeCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	col, err := client.Collection(args[0])
	if err != nil {
		return err
	}

	recs := col.LoadRecords()
	if showID != "" {
		var match []studysync.Record
		for _, r := range recs {
			if r.ID() == showID {
				match = append(match, r)
			}
		}
		if len(match) == 0 {
			return fmt.Errorf("%s %s: %w", args[0], showID, studysync.ErrNotFound)
		}
		recs = match
	}
	if showLimit > 0 && len(recs) > showLimit {
		recs = recs[:showLimit]
	}
	return outputRecords(cmd, col.Name(), recs)
}

func runSaveItem(cmd *cobra.Command, args []string) error {
	rec, err := buildRecord(saveData, saveSets, saveID)
	if err != nil {
		return err
	}
	if len(rec) == 0 {
		return fmt.Errorf("no fields given: use --set or --data")
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	col, err := client.Collection(args[0])
	if err != nil {
		return err
	}

	res := col.SaveItem(cmd.Context(), rec)
	if !res.OK {
		if res.Err != nil {
			return fmt.Errorf("save %s: %w", args[0], res.Err)
		}
		return fmt.Errorf("save %s: rejected", args[0])
	}
	return outputResult(cmd, "Saved", res)
}

func runRemove(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	col, err := client.Collection(args[0])
	if err != nil {
		return err
	}

	res := col.RemoveItem(cmd.Context(), args[1])
	if !res.OK {
		if res.Err != nil {
			return res.Err
		}
		return fmt.Errorf("remove %s %s: %w", args[0], args[1], studysync.ErrNotFound)
	}
	if res.ID == "" {
		res.ID = args[1]
	}
	return outputResult(cmd, "Removed", res)
}

// buildRecord merges --data, --set pairs and --id into one record.
func buildRecord(data string, sets []string, id string) (studysync.Record, error) {
	rec := studysync.Record{}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("parse --data: %w", err)
		}
	}
	for _, kv := range sets {
		key, raw, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: want key=value", kv)
		}
		rec[key] = parseValue(raw)
	}
	if id != "" {
		rec["id"] = id
	}
	return rec, nil
}

// parseValue decodes JSON scalars, arrays and objects; anything else is a string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}
