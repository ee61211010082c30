package studysync

import "sort"

// Merge combines the authoritative remote list with local records not yet
// represented remotely, then deduplicates by lineage.
//
// A local record is kept only if its id is absent remotely and its lineage
// key, if any, is absent remotely too. The second condition stops a local
// clone of a template that already exists remotely under another id from
// being re-uploaded as a duplicate.
func Merge(remote, local []Record) []Record {
	ids := make(map[string]bool, len(remote))
	lineages := make(map[string]bool)
	for _, r := range remote {
		ids[r.ID()] = true
		if l := r.Lineage(); l != "" {
			lineages[l] = true
		}
	}

	out := make([]Record, 0, len(remote)+len(local))
	out = append(out, remote...)
	for _, l := range local {
		if ids[l.ID()] {
			continue
		}
		if lin := l.Lineage(); lin != "" && lineages[lin] {
			continue
		}
		out = append(out, l)
	}
	return DedupeByLineage(out)
}

// MergeObject merges a local single-object value into the remote one. Remote
// fields win; local fields only fill what the remote object lacks. It reports
// whether any field was filled.
func MergeObject(remote, local Record) (Record, bool) {
	out := remote.Clone()
	filled := false
	for k, v := range local {
		if k == FieldID || k == FieldCreatedAt || v == nil {
			continue
		}
		if cur, ok := out[k]; ok && cur != nil {
			continue
		}
		out[k] = v
		filled = true
	}
	return out, filled
}

// DedupeByLineage keeps, for every lineage key, only the earliest-created
// record. Records missing a creation time count as newest; ties keep the
// first seen. Records without a lineage key are always kept. Relative order
// of surviving records is preserved.
func DedupeByLineage(records []Record) []Record {
	winner := make(map[string]int)
	for i, r := range records {
		lin := r.Lineage()
		if lin == "" {
			continue
		}
		j, seen := winner[lin]
		if !seen || createdBefore(r, records[j]) {
			winner[lin] = i
		}
	}

	out := make([]Record, 0, len(records))
	for i, r := range records {
		if lin := r.Lineage(); lin != "" && winner[lin] != i {
			continue
		}
		out = append(out, r)
	}
	return out
}

// createdBefore reports whether a was strictly created before b.
func createdBefore(a, b Record) bool {
	ta, oka := a.CreatedAt()
	tb, okb := b.CreatedAt()
	switch {
	case oka && okb:
		return ta.Before(tb)
	case oka:
		return true
	default:
		return false
	}
}

// PromoteIDs re-keys records whose id appears in promoted, in place.
func PromoteIDs(records []Record, promoted map[string]string) []Record {
	if len(promoted) == 0 {
		return records
	}
	for i, r := range records {
		if next, ok := promoted[r.ID()]; ok {
			rec := r.Clone()
			rec[FieldID] = next
			records[i] = rec
		}
	}
	return records
}

// sortByCreated orders records chronologically. Records without a creation
// time keep their relative position after the dated ones.
func sortByCreated(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return createdBefore(records[i], records[j])
	})
}
