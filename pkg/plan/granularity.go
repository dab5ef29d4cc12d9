package plan

import (
	"fmt"
	"strings"
	"time"
)

// Granularity is the time-bucket resolution of a requested series.
type Granularity string

const (
	Year  Granularity = "year"
	Month Granularity = "month"
	Week  Granularity = "week"
	Day   Granularity = "day"
)

// Granularities lists every legal value in coarse-to-fine order.
var Granularities = []Granularity{Year, Month, Week, Day}

// Valid reports whether g is one of the four legal values.
func (g Granularity) Valid() bool {
	switch g {
	case Year, Month, Week, Day:
		return true
	default:
		return false
	}
}

// ParseGranularity converts a case-insensitive name into a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(strings.ToLower(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", precondition("granularity", "unrecognized value %q", s)
	}
	return g, nil
}

// ParseGranularities parses each entry of list.
func ParseGranularities(list []string) ([]Granularity, error) {
	out := make([]Granularity, 0, len(list))
	for _, s := range list {
		g, err := ParseGranularity(s)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (g Granularity) String() string {
	return string(g)
}

// Step is a calendar interval between consecutive window starts.
type Step struct {
	Years  int `yaml:"years"`
	Months int `yaml:"months"`
	Days   int `yaml:"days"`
}

// Years returns a step of n calendar years.
func Years(n int) Step {
	return Step{Years: n}
}

// AddTo returns t advanced by the step. Years and months are applied first
// and clamp to the last day of the target month (2020-02-29 + 1y is
// 2021-02-28); days are added afterwards.
func (s Step) AddTo(t time.Time) time.Time {
	y, m, d := t.Date()
	first := time.Date(y+s.Years, m+time.Month(s.Months), 1, 0, 0, 0, 0, t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	hh, mm, ss := t.Clock()
	moved := time.Date(first.Year(), first.Month(), d, hh, mm, ss, t.Nanosecond(), t.Location())
	return moved.AddDate(0, 0, s.Days)
}

func (s Step) validate() error {
	if s.Years < 0 || s.Months < 0 || s.Days < 0 {
		return precondition("step", "components must not be negative (got %s)", s)
	}
	if s.Years == 0 && s.Months == 0 && s.Days == 0 {
		return precondition("step", "must be a positive interval")
	}
	return nil
}

func (s Step) String() string {
	return fmt.Sprintf("%dy%dm%dd", s.Years, s.Months, s.Days)
}
