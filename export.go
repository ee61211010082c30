package studysync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"
)

// ExportVersion is the current version of the export format.
const ExportVersion = "1.0"

// ExportFormat is the top-level structure for JSON exports. Collections hold
// each collection's local value as a flat record list.
type ExportFormat struct {
	Version     string              `json:"version"`
	ExportedAt  time.Time           `json:"exported_at"`
	Profile     string              `json:"profile"`
	Identity    string              `json:"identity,omitempty"`
	Collections map[string][]Record `json:"collections"`
}

// MergeStrategy defines how to handle conflicts during import.
type MergeStrategy string

const (
	// MergeStrategySkip skips records that already exist (by id).
	MergeStrategySkip MergeStrategy = "skip"
	// MergeStrategyReplace replaces each imported collection wholesale.
	MergeStrategyReplace MergeStrategy = "replace"
	// MergeStrategyMerge overlays imported fields onto existing records by id
	// and appends new ones (default).
	MergeStrategyMerge MergeStrategy = "merge"
)

// ParseMergeStrategy validates a strategy name. "" selects merge.
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	switch MergeStrategy(s) {
	case "":
		return MergeStrategyMerge, nil
	case MergeStrategySkip, MergeStrategyReplace, MergeStrategyMerge:
		return MergeStrategy(s), nil
	}
	return "", &ValidationError{Field: "strategy", Message: fmt.Sprintf("unknown merge strategy %q", s)}
}

// ImportResult summarizes an import operation.
type ImportResult struct {
	Total   int               `json:"total"`
	Created int               `json:"created"`
	Merged  int               `json:"merged"`
	Skipped int               `json:"skipped"`
	Sources map[string]Source `json:"sources,omitempty"`
	Errors  []string          `json:"errors,omitempty"`
}

// ExportJSON writes every collection's local value to w.
func (c *Client) ExportJSON(ctx context.Context, w io.Writer) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	out := ExportFormat{
		Version:     ExportVersion,
		ExportedAt:  time.Now().UTC(),
		Profile:     c.config.Profile,
		Identity:    c.session.Bound(),
		Collections: make(map[string][]Record),
	}
	for _, col := range c.colls.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		recs := col.LoadRecords()
		if recs == nil {
			recs = []Record{}
		}
		out.Collections[col.Name()] = recs
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

// ImportJSON reads an export and applies it through the collection engines,
// so imported records reach the remote store when remote-capable. With
// dryRun nothing is written.
func (c *Client) ImportJSON(ctx context.Context, r io.Reader, strategy MergeStrategy, dryRun bool) (*ImportResult, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if strategy == "" {
		strategy = MergeStrategyMerge
	}

	var in ExportFormat
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("import: decode: %w", err)
	}
	if in.Version != ExportVersion {
		return nil, fmt.Errorf("import: unsupported export version %q", in.Version)
	}

	result := &ImportResult{Sources: make(map[string]Source)}

	names := make([]string, 0, len(in.Collections))
	for name := range in.Collections {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		imported := in.Collections[name]
		result.Total += len(imported)

		col, err := c.colls.Get(name)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			result.Skipped += len(imported)
			continue
		}

		next, stats := applyStrategy(col.LoadRecords(), imported, strategy)
		result.Created += stats.Created
		result.Merged += stats.Merged
		result.Skipped += stats.Skipped
		if dryRun || stats.Created+stats.Merged == 0 {
			continue
		}

		res := col.SaveRecords(ctx, next)
		result.Sources[name] = res.Source
		if res.Err != nil && !errors.Is(res.Err, ErrOffline) {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", name, res.Err))
		}
	}
	return result, nil
}

// applyStrategy computes a collection's value after importing records.
func applyStrategy(existing, imported []Record, strategy MergeStrategy) ([]Record, ImportResult) {
	var stats ImportResult

	index := make(map[string]int, len(existing))
	for i, r := range existing {
		index[r.ID()] = i
	}

	if strategy == MergeStrategyReplace {
		for _, r := range imported {
			if _, ok := index[r.ID()]; ok && r.ID() != "" {
				stats.Merged++
			} else {
				stats.Created++
			}
		}
		out := make([]Record, len(imported))
		copy(out, imported)
		return out, stats
	}

	out := make([]Record, len(existing))
	copy(out, existing)
	for _, r := range imported {
		i, exists := index[r.ID()]
		if !exists || r.ID() == "" {
			out = append(out, r)
			if r.ID() != "" {
				index[r.ID()] = len(out) - 1
			}
			stats.Created++
			continue
		}
		if strategy == MergeStrategySkip {
			stats.Skipped++
			continue
		}
		merged := out[i].Clone()
		for k, v := range r {
			merged[k] = v
		}
		out[i] = merged
		stats.Merged++
	}
	return out, stats
}
