package studysync

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Well-known record fields.
const (
	FieldID           = "id"
	FieldImportedFrom = "importedFrom"
	FieldCreatedAt    = "createdAt"
)

// LocalIDPrefix marks ids minted locally that have not been acknowledged by
// the remote store yet.
const LocalIDPrefix = "local-"

// Tunables shared by the engine, the uploader and the local store adapter.
const (
	// MigrationChunkSize is the number of rows uploaded per batch during
	// first-login migration.
	MigrationChunkSize = 100

	// HistoryCap is the number of most recent entries a history log keeps
	// when the local store runs out of quota.
	HistoryCap = 1000
)

// Record is one entity in its local representation. It always carries an id
// once it has been stored.
type Record map[string]any

// ID returns the record id or "".
func (r Record) ID() string {
	return scalarString(r[FieldID])
}

// Lineage returns the importedFrom lineage key or "".
func (r Record) Lineage() string {
	return scalarString(r[FieldImportedFrom])
}

// CreatedAt parses the creation timestamp. RFC3339 strings, plain dates and
// unix-millisecond numbers are accepted.
func (r Record) CreatedAt() (time.Time, bool) {
	return parseTime(r[FieldCreatedAt])
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the value of field as a string, or "".
func (r Record) String(field string) string {
	return scalarString(r[field])
}

// Source tells callers which floor persisted an operation.
type Source string

const (
	// SourceLocal means only the local store holds the change.
	SourceLocal Source = "local"
	// SourceRemote means the remote store acknowledged the change.
	SourceRemote Source = "remote"
)

// Result is returned by every engine operation. Operations never fail with a
// bare error: a remote failure yields OK=true, Source=local and Err set.
type Result struct {
	// OK reports whether the operation's local effect was applied.
	OK bool `json:"ok"`
	// Source is where the change is known to be durable.
	Source Source `json:"source"`
	// Err carries the degraded-mode cause, if any.
	Err error `json:"-"`
	// Promoted maps locally-minted ids to their remote-issued replacements.
	Promoted map[string]string `json:"promoted,omitempty"`
	// ID is the id of the record an item operation touched.
	ID string `json:"id,omitempty"`
}

// Synced reports whether the remote store confirmed the operation.
func (r Result) Synced() bool {
	return r.OK && r.Source == SourceRemote
}

func localResult(err error) Result {
	return Result{OK: true, Source: SourceLocal, Err: err}
}

// NewLocalID mints a locally-unique id for a record not yet acknowledged by
// the remote store.
func NewLocalID() string {
	return LocalIDPrefix + strings.ToLower(ulid.Make().String())
}

// IsLocalID reports whether id was minted locally. Besides the local- prefix,
// legacy clients minted millisecond timestamps as ids.
func IsLocalID(id string) bool {
	if strings.HasPrefix(id, LocalIDPrefix) {
		return true
	}
	if len(id) < 12 || len(id) > 14 {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, true
			}
		}
		if ms, err := strconv.ParseInt(t, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
	case float64:
		return time.UnixMilli(int64(t)).UTC(), true
	case int64:
		return time.UnixMilli(t).UTC(), true
	case int:
		return time.UnixMilli(int64(t)).UTC(), true
	case time.Time:
		return t, !t.IsZero()
	}
	return time.Time{}, false
}
