package trends

import (
	"context"
	"time"

	"github.com/tlcaputi/gtrends/pkg/geo"
	"github.com/tlcaputi/gtrends/pkg/plan"
)

// Fetcher executes one remote interest-over-time call.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req Request) (*Response, error)

// Fetch calls f(ctx, req).
func (f FetcherFunc) Fetch(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Request is the input of one remote call.
type Request struct {
	Terms      []string
	Start      time.Time
	End        time.Time
	Resolution plan.Granularity
	Geography  geo.Geography
}

// RequestFor builds the remote request for a planned call.
func RequestFor(c plan.Call) Request {
	return Request{
		Terms:      c.Batch.Queries(),
		Start:      c.Window.Start,
		End:        c.Window.End,
		Resolution: c.Granularity,
		Geography:  c.Geography,
	}
}

// Response holds one line per requested term, in request order.
type Response struct {
	Lines []Line `json:"lines"`
}

// Line is the raw series of one term.
type Line struct {
	Term   string  `json:"term"`
	Points []Point `json:"points"`
}

// Point is one raw observation. Date is formatted per resolution:
// "2019", "Jan 2019" or "Jan 06 2019".
type Point struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}
