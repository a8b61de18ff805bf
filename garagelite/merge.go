// Copyright 2025 Superior Networks
// SPDX-License-Identifier: Apache-2.0

package garagelite

// Record is a flat client-side record: field name to primitive value.
type Record map[string]any

// ID returns the record's value for the given id field, or "" when absent.
func (r Record) ID(field string) string {
	s, _ := r[field].(string)
	return s
}

func (r Record) clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge reconciles a local collection with a pulled remote collection.
//
// Policy (last-remote-write-wins, field level): for every remote record
// whose id exists locally, remote values overwrite the local values for
// exactly the fields the remote record states; fields only the local copy
// knows are retained. Remote records with unseen ids are appended after
// the local survivors, and local-only records are kept untouched. Remote
// records missing the id field are skipped.
//
// Merge is pure (inputs are not mutated), deterministic, idempotent and
// convergent: merging the same remote set twice yields the same result
// as merging it once.
func Merge(local, remote []Record, idField string) []Record {
	merged := make([]Record, 0, len(local)+len(remote))
	index := make(map[string]int, len(local))

	for _, rec := range local {
		out := rec.clone()
		if id := out.ID(idField); id != "" {
			index[id] = len(merged)
		}
		merged = append(merged, out)
	}

	for _, rec := range remote {
		id := rec.ID(idField)
		if id == "" {
			continue
		}
		if i, ok := index[id]; ok {
			for k, v := range rec {
				merged[i][k] = v
			}
			continue
		}
		index[id] = len(merged)
		merged = append(merged, rec.clone())
	}

	return merged
}
