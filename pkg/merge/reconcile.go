// Package merge consolidates fragmented timeline responses: windows of one
// geography into a single series, then geographies of one term into a
// single wide table.
package merge

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/tlcaputi/gtrends/pkg/geo"
	"github.com/tlcaputi/gtrends/pkg/series"
)

type state uint8

const (
	// stateMissing is a cell with no row in its geography (outer join fill).
	stateMissing state = iota

	// stateNoData marks a timestamp whose every observation was zero or
	// missing. It survives merging and is rewritten to missing in Table.
	stateNoData

	stateObserved
)

type cell struct {
	value float64
	state state
}

// Value is one cell of a finished table.
type Value struct {
	V     float64
	Valid bool
}

func (c cell) final() Value {
	if c.state != stateObserved {
		return Value{}
	}
	return Value{V: c.value, Valid: true}
}

// Series is the reconciled series of one term in one geography: one cell
// per distinct timestamp, strictly increasing in time.
type Series struct {
	Geography geo.Geography
	times     []time.Time
	cells     []cell
}

// Len returns the number of timestamps.
func (s Series) Len() int {
	return len(s.times)
}

// At returns the i-th timestamp and its value. All-missing timestamps are
// reported as invalid values.
func (s Series) At(i int) (time.Time, Value) {
	return s.times[i], s.cells[i].final()
}

// Reconcile collapses duplicate timestamps of points. Zeros count as no
// observation; a timestamp takes the unweighted mean of its non-zero
// observations, or the no-data marker when none remain.
func Reconcile(g geo.Geography, points []series.Point) Series {
	sorted := slices.Clone(points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	out := Series{Geography: g}
	for i := 0; i < len(sorted); {
		j := i
		var sum float64
		var n int
		for ; j < len(sorted) && sorted[j].Time.Equal(sorted[i].Time); j++ {
			if v := sorted[j].Value; v != 0 {
				sum += v
				n++
			}
		}

		c := cell{state: stateNoData}
		if n > 0 {
			c = cell{value: sum / float64(n), state: stateObserved}
		}
		out.times = append(out.times, sorted[i].Time)
		out.cells = append(out.cells, c)
		i = j
	}
	return out
}

// MergePeriods concatenates the window fragments of one (name, geography)
// pair in period order and reconciles overlapping boundary timestamps.
func MergePeriods(frags []series.Fragment) (Series, error) {
	if len(frags) == 0 {
		return Series{}, fmt.Errorf("merge periods: no fragments")
	}

	ordered := slices.Clone(frags)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Period < ordered[j].Period
	})

	first := ordered[0]
	var points []series.Point
	for _, f := range ordered {
		if f.Name != first.Name || f.Geography != first.Geography {
			return Series{}, fmt.Errorf("merge periods: fragment %q/%s mixed with %q/%s",
				f.Name, f.Geography, first.Name, first.Geography)
		}
		points = append(points, f.Points...)
	}
	return Reconcile(first.Geography, points), nil
}
