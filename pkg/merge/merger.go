package merge

import (
	"fmt"
	"strings"
	"time"

	"github.com/tlcaputi/gtrends/pkg/geo"
)

// JoinMode selects how a new geography is combined with the running table.
type JoinMode string

const (
	// JoinInner keeps only timestamps present in every geography merged so
	// far. Geographies with disjoint dates therefore empty the table.
	JoinInner JoinMode = "inner"

	// JoinOuter keeps the union of timestamps and fills absent cells with
	// missing values.
	JoinOuter JoinMode = "outer"
)

// ParseJoinMode converts a case-insensitive name into a JoinMode. The empty
// string selects JoinInner.
func ParseJoinMode(s string) (JoinMode, error) {
	switch JoinMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", JoinInner:
		return JoinInner, nil
	case JoinOuter:
		return JoinOuter, nil
	default:
		return "", fmt.Errorf("unknown join mode %q", s)
	}
}

// DefaultStatePrefix is stripped from US state columns ("US_CA" -> "CA").
const DefaultStatePrefix = "US_"

// Options controls how geographies are combined and named.
type Options struct {
	Join JoinMode

	// StripStatePrefix removes StatePrefix from region columns when every
	// column name stays unique afterwards.
	StripStatePrefix bool
	StatePrefix      string
}

// DefaultOptions returns inner join with state prefix stripping.
func DefaultOptions() Options {
	return Options{
		Join:             JoinInner,
		StripStatePrefix: true,
		StatePrefix:      DefaultStatePrefix,
	}
}

// Merger accumulates the per-geography series of one term into a wide
// table. A Merger is owned by a single term and must not be shared.
type Merger struct {
	opts    Options
	geos    []geo.Geography
	times   []time.Time
	rows    [][]cell
	dropped int
}

// NewMerger creates an empty accumulator.
func NewMerger(opts Options) *Merger {
	if opts.Join == "" {
		opts.Join = JoinInner
	}
	return &Merger{opts: opts}
}

// Dropped returns the number of timestamps discarded by inner joins so far.
func (m *Merger) Dropped() int {
	return m.dropped
}

// Add joins s into the running table as a new column.
func (m *Merger) Add(s Series) {
	if len(m.geos) == 0 {
		m.geos = []geo.Geography{s.Geography}
		m.times = append([]time.Time(nil), s.times...)
		m.rows = make([][]cell, len(s.cells))
		for i, c := range s.cells {
			m.rows[i] = []cell{c}
		}
		return
	}

	width := len(m.geos)
	var times []time.Time
	var rows [][]cell

	i, j := 0, 0
	for i < len(m.times) || j < len(s.times) {
		switch {
		case j >= len(s.times) || (i < len(m.times) && m.times[i].Before(s.times[j])):
			if m.opts.Join == JoinOuter {
				times = append(times, m.times[i])
				rows = append(rows, append(m.rows[i], cell{}))
			} else {
				m.dropped++
			}
			i++
		case i >= len(m.times) || s.times[j].Before(m.times[i]):
			if m.opts.Join == JoinOuter {
				row := make([]cell, width, width+1)
				times = append(times, s.times[j])
				rows = append(rows, append(row, s.cells[j]))
			} else {
				m.dropped++
			}
			j++
		default:
			times = append(times, m.times[i])
			rows = append(rows, append(m.rows[i], s.cells[j]))
			i++
			j++
		}
	}

	m.geos = append(m.geos, s.Geography)
	m.times = times
	m.rows = rows
}

// Table finalizes the accumulated columns: no-data markers become missing
// values and geography codes become column names.
func (m *Merger) Table() *Table {
	t := &Table{
		Columns: ColumnNames(m.geos, m.opts.StripStatePrefix, m.opts.StatePrefix),
		Rows:    make([]Row, len(m.times)),
	}
	for i, ts := range m.times {
		values := make([]Value, len(m.rows[i]))
		for k, c := range m.rows[i] {
			values[k] = c.final()
		}
		t.Rows[i] = Row{Time: ts, Values: values}
	}
	return t
}

// ColumnNames derives output column names: "Worldwide" for the unrestricted
// geography, hyphens replaced with underscores, and prefix removed from
// region columns when strip is set and no two columns would collide.
func ColumnNames(geos []geo.Geography, strip bool, prefix string) []string {
	names := make([]string, len(geos))
	for i, g := range geos {
		if g.IsWorldwide() {
			names[i] = geo.WorldwideLabel
			continue
		}
		names[i] = strings.ReplaceAll(g.Code, "-", "_")
	}
	if !strip || prefix == "" {
		return names
	}

	stripped := make([]string, len(names))
	seen := make(map[string]struct{}, len(names))
	for i, name := range names {
		s := name
		if geos[i].Kind == geo.KindRegion && !geos[i].IsWorldwide() {
			s = strings.TrimPrefix(name, prefix)
		}
		if _, dup := seen[s]; dup || s == "" {
			return names
		}
		seen[s] = struct{}{}
		stripped[i] = s
	}
	return stripped
}
