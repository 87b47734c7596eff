package metrics

import "sort"

// flattenErrors converts a window's error map into rows sorted by descending
// count, then by code and message for stability.
func flattenErrors(tally map[ErrorKey]int64) []ErrorCount {
	if len(tally) == 0 {
		return nil
	}
	rows := make([]ErrorCount, 0, len(tally))
	for key, count := range tally {
		rows = append(rows, ErrorCount{Code: key.Code, Message: key.Message, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Code == rows[j].Code {
				return rows[i].Message < rows[j].Message
			}
			return rows[i].Code < rows[j].Code
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

// MergeErrors sums several tallies into one sorted slice.
func MergeErrors(sets ...[]ErrorCount) []ErrorCount {
	merged := make(map[ErrorKey]int64)
	for _, rows := range sets {
		for _, row := range rows {
			merged[ErrorKey{Code: row.Code, Message: row.Message}] += row.Count
		}
	}
	return flattenErrors(merged)
}
