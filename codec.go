package studysync

import "sort"

// DateGroups is the local shape of date-keyed collections: records bucketed
// by calendar date. An empty bucket is equivalent to an absent key.
type DateGroups map[string][]Record

// Flatten emits one row per grouped record, carrying its date in dateField.
// Empty groups are skipped. Dates are visited in sorted order.
func Flatten(groups DateGroups, dateField string) []Record {
	dates := make([]string, 0, len(groups))
	for d, recs := range groups {
		if len(recs) > 0 {
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)

	var out []Record
	for _, d := range dates {
		for _, rec := range groups[d] {
			row := rec.Clone()
			row[dateField] = d
			out = append(out, row)
		}
	}
	return out
}

// Group buckets flat rows by dateField. Rows without a date are dropped. The
// date field is removed from grouped records since the key implies it.
func Group(rows []Record, dateField string) DateGroups {
	groups := make(DateGroups)
	for _, row := range rows {
		d := row.String(dateField)
		if d == "" {
			continue
		}
		rec := row.Clone()
		delete(rec, dateField)
		groups[d] = append(groups[d], rec)
	}
	return groups
}

// Prune removes empty buckets in place and returns groups.
func Prune(groups DateGroups) DateGroups {
	for d, recs := range groups {
		if len(recs) == 0 {
			delete(groups, d)
		}
	}
	return groups
}
