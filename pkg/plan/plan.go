// Package plan enumerates the remote calls needed to cover a terms ×
// geographies × date-range request matrix within the API's per-call limits.
package plan

import (
	"iter"
	"runtime"
	"time"

	"github.com/tlcaputi/gtrends/pkg/geo"
)

// MaxTermsPerCall is the remote API's hard cap on terms in one call.
// Batch sizes must stay strictly below it.
const MaxTermsPerCall = 30

// DefaultBatchSize is the largest legal batch size.
const DefaultBatchSize = MaxTermsPerCall - 1

// DateLayout is the wire and configuration format of dates.
const DateLayout = "2006-01-02"

// Term pairs a query sent to the API with the display name its output is
// filed under. Distinct terms may share a display name on purpose.
type Term struct {
	Query string
	Name  string
}

// Batch is a contiguous slice of the term list sent in one call.
type Batch struct {
	Index int
	Terms []Term
}

// Queries returns the query strings of the batch in order.
func (b Batch) Queries() []string {
	out := make([]string, len(b.Terms))
	for i, t := range b.Terms {
		out[i] = t.Query
	}
	return out
}

// Names returns the display names of the batch in order.
func (b Batch) Names() []string {
	out := make([]string, len(b.Terms))
	for i, t := range b.Terms {
		out[i] = t.Name
	}
	return out
}

// Window is one date sub-range. Index starts at 1.
type Window struct {
	Index int
	Start time.Time
	End   time.Time
}

// Call describes a single remote call.
type Call struct {
	Granularity Granularity
	Batch       Batch
	Window      Window
	Geography   geo.Geography
}

// Config is the full request matrix of a run.
type Config struct {
	Terms         []string
	Names         []string
	Start         time.Time
	End           time.Time
	Granularities []Granularity
	Step          Step
	BatchSize     int
	Geographies   []geo.Geography
}

// Plan is a validated request matrix. It is immutable once built.
type Plan struct {
	granularities []Granularity
	batches       []Batch
	windows       []Window
	geographies   []geo.Geography
}

// New validates cfg and derives batches and windows. All preconditions are
// checked here so that no failure can surface mid-run.
func New(cfg Config) (*Plan, error) {
	if err := checkPlatform(runtime.GOOS); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &Plan{
		granularities: append([]Granularity(nil), cfg.Granularities...),
		batches:       MakeBatches(cfg.Terms, cfg.Names, cfg.BatchSize),
		windows:       MakeWindows(cfg.Start, cfg.End, cfg.Step),
		geographies:   append([]geo.Geography(nil), cfg.Geographies...),
	}, nil
}

func validate(cfg Config) error {
	if len(cfg.Terms) != len(cfg.Names) {
		return precondition("names", "got %d names for %d terms", len(cfg.Names), len(cfg.Terms))
	}
	if len(cfg.Terms) == 0 {
		return precondition("terms", "at least one term is required")
	}
	if cfg.Start.IsZero() || cfg.End.IsZero() || !cfg.Start.Before(cfg.End) {
		return precondition("start", "start %s must be before end %s",
			cfg.Start.Format(DateLayout), cfg.End.Format(DateLayout))
	}
	if cfg.BatchSize < 1 || cfg.BatchSize >= MaxTermsPerCall {
		return precondition("batch_size", "must be between 1 and %d (got %d)", MaxTermsPerCall-1, cfg.BatchSize)
	}
	if len(cfg.Granularities) == 0 {
		return precondition("granularity", "at least one granularity is required")
	}
	for _, g := range cfg.Granularities {
		if !g.Valid() {
			return precondition("granularity", "unrecognized value %q", g)
		}
	}
	if len(cfg.Geographies) == 0 {
		return precondition("geography", "at least one geography is required")
	}
	return cfg.Step.validate()
}

func checkPlatform(goos string) error {
	switch goos {
	case "linux", "darwin", "windows":
		return nil
	default:
		return precondition("platform", "unsupported operating system %q", goos)
	}
}

// MakeBatches slices terms and names into contiguous batches of at most size
// entries, preserving order. The last batch may be shorter.
func MakeBatches(terms, names []string, size int) []Batch {
	var out []Batch
	for start := 0; start < len(terms); start += size {
		end := min(start+size, len(terms))
		b := Batch{Index: len(out) + 1, Terms: make([]Term, 0, end-start)}
		for i := start; i < end; i++ {
			b.Terms = append(b.Terms, Term{Query: terms[i], Name: names[i]})
		}
		out = append(out, b)
	}
	return out
}

// MakeWindows covers [start, end] with contiguous windows of at most one step
// each. The first window is always produced; the last is clipped to end.
func MakeWindows(start, end time.Time, step Step) []Window {
	if step.validate() != nil || !start.Before(end) {
		return []Window{{Index: 1, Start: start, End: end}}
	}

	from := start
	to := minTime(step.AddTo(from), end)
	out := []Window{{Index: 1, Start: from, End: to}}

	for step.AddTo(from).Before(end) {
		from = to
		to = minTime(step.AddTo(from), end)
		out = append(out, Window{Index: len(out) + 1, Start: from, End: to})
	}
	return out
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

// Granularities returns the requested granularities in request order.
func (p *Plan) Granularities() []Granularity {
	return p.granularities
}

// Batches returns the term batches.
func (p *Plan) Batches() []Batch {
	return p.batches
}

// Windows returns the date windows.
func (p *Plan) Windows() []Window {
	return p.windows
}

// Geographies returns the expanded geography list.
func (p *Plan) Geographies() []geo.Geography {
	return p.geographies
}

// Calls yields every call for one granularity and batch, window-major then
// geography.
func (p *Plan) Calls(g Granularity, b Batch) iter.Seq[Call] {
	return func(yield func(Call) bool) {
		for _, w := range p.windows {
			for _, loc := range p.geographies {
				if !yield(Call{Granularity: g, Batch: b, Window: w, Geography: loc}) {
					return
				}
			}
		}
	}
}

// All yields every call of the run in execution order.
func (p *Plan) All() iter.Seq[Call] {
	return func(yield func(Call) bool) {
		for _, g := range p.granularities {
			for _, b := range p.batches {
				for c := range p.Calls(g, b) {
					if !yield(c) {
						return
					}
				}
			}
		}
	}
}

// CallCount returns the number of remote calls the run will issue.
func (p *Plan) CallCount() int {
	return len(p.granularities) * len(p.batches) * len(p.windows) * len(p.geographies)
}
