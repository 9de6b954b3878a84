package metrics

import "sort"

// Row is one labelled count in a report table.
type Row struct {
	Label string
	Count int64
}

// SortedRows flattens a count map into rows ordered by descending count,
// then by label for stability.
func SortedRows(counts map[string]int64) []Row {
	if len(counts) == 0 {
		return nil
	}
	rows := make([]Row, 0, len(counts))
	for label, n := range counts {
		rows = append(rows, Row{Label: label, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Label < rows[j].Label
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
