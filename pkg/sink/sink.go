// Package sink persists finished per-term tables.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tlcaputi/gtrends/pkg/merge"
	"github.com/tlcaputi/gtrends/pkg/plan"
)

// TablesWritten counts tables persisted by sink kind.
var TablesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gtrends_tables_written_total",
	Help: "Total number of finished tables written by sink",
}, []string{"sink"})

// ErrInvalidName indicates a key that cannot be mapped to a destination.
var ErrInvalidName = errors.New("invalid sink name")

// Key identifies one output table. Writing the same Key twice overwrites.
type Key struct {
	Name        string
	Granularity plan.Granularity
}

// String returns "<name>_<granularity>".
func (k Key) String() string {
	return k.Name + "_" + string(k.Granularity)
}

// Validate rejects keys that cannot name a destination.
func (k Key) Validate() error {
	if strings.TrimSpace(k.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if !k.Granularity.Valid() {
		return fmt.Errorf("%w: granularity %q", ErrInvalidName, k.Granularity)
	}
	return nil
}

// Sink writes a finished table. Implementations must either persist the
// whole table or nothing.
type Sink interface {
	Write(ctx context.Context, key Key, table *merge.Table) error
	Close() error
}

// Multi writes every table to each sink in order, stopping at the first
// failure.
type Multi []Sink

// Write implements Sink.
func (m Multi) Write(ctx context.Context, key Key, table *merge.Table) error {
	for _, s := range m {
		if err := s.Write(ctx, key, table); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and returns the first error.
func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Nop discards every table.
type Nop struct{}

// Write implements Sink.
func (Nop) Write(ctx context.Context, key Key, table *merge.Table) error {
	return nil
}

// Close implements Sink.
func (Nop) Close() error {
	return nil
}
