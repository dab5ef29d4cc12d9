// Package series converts raw timeline responses into per-term,
// per-geography fragments indexed by calendar time.
package series

import (
	"errors"
	"fmt"
	"time"

	"github.com/tlcaputi/gtrends/pkg/geo"
	"github.com/tlcaputi/gtrends/pkg/plan"
	"github.com/tlcaputi/gtrends/pkg/trends"
)

// ErrTimestamp is matched by every ParseError.
var ErrTimestamp = errors.New("malformed timestamp")

// ParseError reports a date label that does not match its resolution.
type ParseError struct {
	Label       string
	Granularity plan.Granularity
	Err         error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %q is not a %s label: %v", ErrTimestamp, e.Label, e.Granularity, e.Err)
}

// Is reports whether target is ErrTimestamp.
func (e *ParseError) Is(target error) bool {
	return target == ErrTimestamp
}

// Unwrap returns the underlying time parse error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Layout returns the label layout the API uses for g.
func Layout(g plan.Granularity) string {
	switch g {
	case plan.Year:
		return "2006"
	case plan.Month:
		return "Jan 2006"
	default:
		return "Jan 2 2006"
	}
}

// ParseTimestamp parses a raw date label for granularity g. Labels are
// interpreted as UTC calendar dates.
func ParseTimestamp(g plan.Granularity, label string) (time.Time, error) {
	if !g.Valid() {
		return time.Time{}, &ParseError{Label: label, Granularity: g, Err: fmt.Errorf("unknown granularity")}
	}
	t, err := time.Parse(Layout(g), label)
	if err != nil {
		return time.Time{}, &ParseError{Label: label, Granularity: g, Err: err}
	}
	return t, nil
}

// Point is one observation of a fragment. A zero Value means the API had no
// data for that timestamp.
type Point struct {
	Time  time.Time
	Value float64
}

// Fragment is the series of one term for one window and one geography.
type Fragment struct {
	Name      string
	Geography geo.Geography
	Period    int
	Points    []Point
}

// Reshape turns the response of call into one fragment per batch term,
// in batch order. Any malformed label fails the whole call.
func Reshape(call plan.Call, resp *trends.Response) ([]Fragment, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", trends.ErrShape)
	}
	names := call.Batch.Names()
	if len(resp.Lines) != len(names) {
		return nil, fmt.Errorf("%w: %d lines for %d terms", trends.ErrShape, len(resp.Lines), len(names))
	}

	out := make([]Fragment, 0, len(names))
	for i, line := range resp.Lines {
		frag := Fragment{
			Name:      names[i],
			Geography: call.Geography,
			Period:    call.Window.Index,
			Points:    make([]Point, 0, len(line.Points)),
		}
		for _, p := range line.Points {
			ts, err := ParseTimestamp(call.Granularity, p.Date)
			if err != nil {
				return nil, fmt.Errorf("term %q window %d: %w", names[i], call.Window.Index, err)
			}
			frag.Points = append(frag.Points, Point{Time: ts, Value: p.Value})
		}
		out = append(out, frag)
	}
	return out, nil
}
