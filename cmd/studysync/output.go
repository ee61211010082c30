package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/studysync"
)

// outputAsJSON writes any value as formatted JSON to the command's stdout.
func outputAsJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError prints an error to stderr, ensuring no credentials are leaked.
func outputError(w io.Writer, err error) {
	msg := scrubSensitiveData(err.Error())
	if isTTY() {
		printError(w, "%s", msg)
		return
	}
	fmt.Fprintf(w, "Error: %s\n", msg)
}

// scrubSensitiveData redacts the configured API key and access token.
func scrubSensitiveData(msg string) string {
	for _, key := range []string{"api_key", "access_token"} {
		if secret := v.GetString(key); secret != "" {
			msg = strings.ReplaceAll(msg, secret, "[REDACTED]")
		}
	}
	return msg
}

// titleFields are tried in order to label a record.
var titleFields = []string{"title", "name", "subject", "date", "startedAt"}

func recordTitle(rec studysync.Record) string {
	for _, f := range titleFields {
		if s := fmt.Sprint(rec[f]); rec[f] != nil && s != "" {
			return s
		}
	}
	return "(untitled)"
}

// longTextFields are rendered as markdown.
var longTextFields = map[string]bool{"notes": true, "description": true}

func outputRecords(cmd *cobra.Command, collection string, recs []studysync.Record) error {
	if outputJSON {
		if recs == nil {
			recs = []studysync.Record{}
		}
		return outputAsJSON(cmd, recs)
	}

	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		printMuted(out, "No records in %s.", collection)
		return nil
	}

	fmt.Fprintf(out, "%s (%d records)\n\n", collection, len(recs))
	for i, rec := range recs {
		marker := ""
		if studysync.IsLocalID(rec.ID()) {
			marker = " " + iconPending + " pending upload"
		}
		fmt.Fprintf(out, "%s%s\n", recordTitle(rec), marker)
		printField(out, 2, "id", rec.ID())

		keys := make([]string, 0, len(rec))
		for k := range rec {
			if k != "id" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			printField(out, 2, k, formatValue(k, rec[k]))
		}
		if i < len(recs)-1 {
			fmt.Fprintln(out)
		}
	}
	return nil
}

func formatValue(key string, val any) string {
	switch v := val.(type) {
	case nil:
		return "-"
	case string:
		if longTextFields[key] {
			return renderMarkdown(v)
		}
		return v
	case float64, bool, int, int64:
		return fmt.Sprint(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// resultView is the JSON form of a studysync.Result.
type resultView struct {
	OK       bool              `json:"ok"`
	Source   studysync.Source  `json:"source"`
	ID       string            `json:"id,omitempty"`
	Promoted map[string]string `json:"promoted,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func viewResult(res studysync.Result) resultView {
	rv := resultView{OK: res.OK, Source: res.Source, ID: res.ID, Promoted: res.Promoted}
	if res.Err != nil {
		rv.Error = scrubSensitiveData(res.Err.Error())
	}
	return rv
}

func outputResult(cmd *cobra.Command, verb string, res studysync.Result) error {
	if outputJSON {
		return outputAsJSON(cmd, viewResult(res))
	}

	out := cmd.OutOrStdout()
	switch {
	case res.Synced():
		printSuccess(out, "%s %s (local and remote)", verb, res.ID)
	case res.OK:
		printSuccess(out, "%s %s (local only)", verb, res.ID)
	default:
		printError(out, "%s failed", verb)
	}
	if res.Err != nil {
		printMuted(out, "  %s", scrubSensitiveData(res.Err.Error()))
	}
	return nil
}

// SyncOutput is the JSON form of a sync run.
type SyncOutput struct {
	Synced      int                   `json:"synced"`
	Total       int                   `json:"total"`
	DurationMs  int64                 `json:"duration_ms"`
	Collections map[string]resultView `json:"collections"`
}

func outputSyncResults(cmd *cobra.Command, title string, results map[string]studysync.Result, duration time.Duration) error {
	names := make([]string, 0, len(results))
	synced := 0
	for name, res := range results {
		names = append(names, name)
		if res.Synced() {
			synced++
		}
	}
	sort.Strings(names)

	if outputJSON {
		views := make(map[string]resultView, len(results))
		for name, res := range results {
			views[name] = viewResult(res)
		}
		return outputAsJSON(cmd, SyncOutput{
			Synced:      synced,
			Total:       len(results),
			DurationMs:  duration.Milliseconds(),
			Collections: views,
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (took %s): %d of %d collections synced\n\n",
		title, duration.Round(time.Millisecond), synced, len(results))

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		res := results[name]
		state := string(res.Source)
		if !res.OK {
			state = "failed"
		}
		note := ""
		if n := len(res.Promoted); n > 0 {
			note = fmt.Sprintf("%d uploaded", n)
		}
		if res.Err != nil {
			note = strings.TrimSpace(note + " " + scrubSensitiveData(res.Err.Error()))
		}
		rows = append(rows, []string{name, state, note})
	}
	fmt.Fprintln(out, renderTable([]string{"COLLECTION", "SOURCE", "NOTE"}, rows))
	return nil
}

// StatusOutput is the JSON form of the status command.
type StatusOutput struct {
	*studysync.Status
	Health studysync.HealthStatus `json:"health"`
}

func outputStatus(cmd *cobra.Command, st *studysync.Status, health studysync.HealthStatus) error {
	if outputJSON {
		return outputAsJSON(cmd, StatusOutput{Status: st, Health: health})
	}

	out := cmd.OutOrStdout()
	printField(out, 0, "Profile", st.Profile)
	printField(out, 0, "Database", st.LocalPath)
	if st.Identity != "" {
		printField(out, 0, "Signed in as", st.Identity)
	} else {
		printField(out, 0, "Signed in as", "(anonymous)")
	}

	switch {
	case !health.RemoteEnabled:
		printField(out, 0, "Remote", "not configured")
	case health.RemoteReachable:
		printField(out, 0, "Remote", "online")
	default:
		printField(out, 0, "Remote", "unreachable")
	}
	if st.LastSync != "" {
		printField(out, 0, "Last sync", st.LastSync)
	}
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(st.Collections))
	for _, c := range st.Collections {
		synced := "no"
		if c.Synced {
			synced = "yes"
		}
		rows = append(rows, []string{c.Name, fmt.Sprint(c.Records), fmt.Sprint(c.Pending), synced})
	}
	fmt.Fprintln(out, renderTable([]string{"COLLECTION", "RECORDS", "PENDING", "SYNCED"}, rows))

	if !health.Healthy && health.Error != "" {
		fmt.Fprintln(out)
		printWarning(out, "%s", scrubSensitiveData(health.Error))
	}
	return nil
}
