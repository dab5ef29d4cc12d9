// Package collect runs a planned request matrix against the remote API and
// writes one reconciled table per term and granularity.
package collect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/tlcaputi/gtrends/pkg/geo"
	"github.com/tlcaputi/gtrends/pkg/logging"
	"github.com/tlcaputi/gtrends/pkg/merge"
	"github.com/tlcaputi/gtrends/pkg/plan"
	"github.com/tlcaputi/gtrends/pkg/series"
	"github.com/tlcaputi/gtrends/pkg/sink"
	"github.com/tlcaputi/gtrends/pkg/trends"
)

var (
	fragmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gtrends_fragments_total",
		Help: "Total per-term series fragments extracted from responses",
	}, []string{"granularity"})

	rowsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gtrends_rows_dropped_total",
		Help: "Timestamps discarded because not every geography reported them",
	}, []string{"granularity"})
)

// Summary describes a finished run.
type Summary struct {
	RunID     string
	Calls     int
	Fragments int
	Dropped   int
	Tables    []sink.Key
	Duration  time.Duration
}

// Collector executes calls strictly one at a time. Any error aborts the
// run; tables already written are kept.
type Collector struct {
	fetcher trends.Fetcher
	sink    sink.Sink
	opts    merge.Options
	logger  zerolog.Logger
}

// New creates a collector.
func New(fetcher trends.Fetcher, s sink.Sink, opts merge.Options) (*Collector, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if s == nil {
		return nil, errors.New("sink is required")
	}
	return &Collector{
		fetcher: fetcher,
		sink:    s,
		opts:    opts,
		logger:  logging.NewLogger("collector"),
	}, nil
}

// bucket groups the fragments of one display name in one geography.
type bucket struct {
	name string
	geo  geo.Geography
}

// Run executes every call of p: for each granularity, for each term batch,
// for each window, for each geography.
func (c *Collector) Run(ctx context.Context, p *plan.Plan) (*Summary, error) {
	start := time.Now()
	sum := &Summary{RunID: uuid.NewString()}
	logger := c.logger.With().Str("run_id", sum.RunID).Logger()

	logger.Info().
		Int("calls", p.CallCount()).
		Int("batches", len(p.Batches())).
		Int("windows", len(p.Windows())).
		Int("geographies", len(p.Geographies())).
		Msg("Starting run")

	for _, g := range p.Granularities() {
		for _, b := range p.Batches() {
			buckets, err := c.fetchBatch(ctx, logger, p, g, b, sum)
			if err != nil {
				return sum, err
			}
			if err := c.writeBatch(ctx, logger, p, g, b, buckets, sum); err != nil {
				return sum, err
			}
		}
	}

	sum.Duration = time.Since(start)
	logger.Info().
		Int("calls", sum.Calls).
		Int("tables", len(sum.Tables)).
		Int("rows_dropped", sum.Dropped).
		Dur("duration", sum.Duration).
		Msg("Run complete")
	return sum, nil
}

func (c *Collector) fetchBatch(ctx context.Context, logger zerolog.Logger, p *plan.Plan, g plan.Granularity, b plan.Batch, sum *Summary) (map[bucket][]series.Fragment, error) {
	logger.Info().
		Str("granularity", string(g)).
		Int("batch", b.Index).
		Strs("terms", b.Queries()).
		Msg("Batch")

	buckets := make(map[bucket][]series.Fragment)
	window := 0
	for call := range p.Calls(g, b) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if call.Window.Index != window {
			window = call.Window.Index
			logger.Info().
				Int("period", window).
				Str("from", call.Window.Start.Format(plan.DateLayout)).
				Str("to", call.Window.End.Format(plan.DateLayout)).
				Msg("Time period")
		}
		logger.Info().
			Str("geo", call.Geography.String()).
			Str("kind", string(call.Geography.Kind)).
			Msg("Location")

		resp, err := c.fetcher.Fetch(ctx, trends.RequestFor(call))
		sum.Calls++
		if err != nil {
			return nil, fmt.Errorf("fetch batch %d window %d geo %s: %w", b.Index, window, call.Geography, err)
		}

		frags, err := series.Reshape(call, resp)
		if err != nil {
			return nil, fmt.Errorf("reshape batch %d window %d geo %s: %w", b.Index, window, call.Geography, err)
		}
		for _, f := range frags {
			k := bucket{name: f.Name, geo: f.Geography}
			buckets[k] = append(buckets[k], f)
		}
		sum.Fragments += len(frags)
		fragmentsTotal.WithLabelValues(string(g)).Add(float64(len(frags)))
	}
	return buckets, nil
}

func (c *Collector) writeBatch(ctx context.Context, logger zerolog.Logger, p *plan.Plan, g plan.Granularity, b plan.Batch, buckets map[bucket][]series.Fragment, sum *Summary) error {
	for _, name := range uniqueSorted(b.Names()) {
		merger := merge.NewMerger(c.opts)
		for _, loc := range p.Geographies() {
			s, err := merge.MergePeriods(buckets[bucket{name: name, geo: loc}])
			if err != nil {
				return fmt.Errorf("merge %q geo %s: %w", name, loc, err)
			}
			merger.Add(s)
		}

		table := merger.Table()
		key := sink.Key{Name: name, Granularity: g}
		if err := c.sink.Write(ctx, key, table); err != nil {
			return fmt.Errorf("write %s: %w", key, err)
		}

		sum.Tables = append(sum.Tables, key)
		sum.Dropped += merger.Dropped()
		rowsDropped.WithLabelValues(string(g)).Add(float64(merger.Dropped()))

		level := zerolog.InfoLevel
		if merger.Dropped() > 0 && c.opts.Join != merge.JoinOuter {
			level = zerolog.WarnLevel
		}
		logger.WithLevel(level).
			Str("name", name).
			Str("granularity", string(g)).
			Int("rows", len(table.Rows)).
			Int("rows_dropped", merger.Dropped()).
			Strs("columns", table.Columns).
			Msg("Table written")
	}
	return nil
}

func uniqueSorted(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
