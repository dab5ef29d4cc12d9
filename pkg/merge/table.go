package merge

import "time"

// Table is the finished output of one term and granularity: one column per
// geography, one row per timestamp in increasing order.
type Table struct {
	Columns []string
	Rows    []Row
}

// Row is one timestamp of a Table. Values align with Table.Columns.
type Row struct {
	Time   time.Time
	Values []Value
}

// Column returns the index of the named column, or -1.
func (t *Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
