package trends

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tlcaputi/gtrends/internal/testutil"
	"github.com/tlcaputi/gtrends/pkg/geo"
	"github.com/tlcaputi/gtrends/pkg/plan"
)

func testClient(t *testing.T, mock *testutil.MockTrends) *Client {
	t.Helper()

	cfg := DefaultConfig("test-key")
	cfg.Server = mock.URL()
	cfg.UserAgent = "gtrends-test/1.0"

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func testRequest(g geo.Geography) Request {
	return Request{
		Terms:      []string{"cats", "cats + food"},
		Start:      time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Resolution: plan.Month,
		Geography:  g,
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		errorMsg string
	}{
		{name: "valid config", config: DefaultConfig("k")},
		{name: "missing key", config: DefaultConfig(""), errorMsg: "api key is required"},
		{name: "missing server", config: Config{APIKey: "k", APIVersion: "v1beta"}, errorMsg: "server is required"},
		{name: "missing version", config: Config{APIKey: "k", Server: DefaultServer}, errorMsg: "api version is required"},
		{name: "relative server", config: Config{APIKey: "k", Server: "googleapis.com", APIVersion: "v1beta"}, errorMsg: `invalid server "googleapis.com"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.config)
			if tt.errorMsg == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if c == nil {
					t.Fatal("New returned nil client")
				}
				return
			}
			if err == nil || err.Error() != tt.errorMsg {
				t.Errorf("New() error = %v, want %q", err, tt.errorMsg)
			}
		})
	}
}

func TestEndpoint(t *testing.T) {
	cfg := DefaultConfig("k")
	cfg.Server = "https://www.googleapis.com/"
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	want := "https://www.googleapis.com/trends/v1beta/timelinesForHealth"
	if got := c.Endpoint(); got != want {
		t.Errorf("Endpoint() = %q, want %q", got, want)
	}
}

func TestFetch_QueryParameters(t *testing.T) {
	tests := []struct {
		name    string
		geo     geo.Geography
		country string
		dma     string
		region  string
	}{
		{name: "country", geo: geo.Geography{Kind: geo.KindCountry, Code: "US"}, country: "US"},
		{name: "dma", geo: geo.Geography{Kind: geo.KindDMA, Code: "501"}, dma: "501"},
		{name: "region", geo: geo.Geography{Kind: geo.KindRegion, Code: "US-CA"}, region: "US-CA"},
		{name: "worldwide", geo: geo.Worldwide()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockTrends()
			defer mock.Close()
			c := testClient(t, mock)

			if _, err := c.Fetch(context.Background(), testRequest(tt.geo)); err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}

			reqs := mock.Requests()
			if len(reqs) != 1 {
				t.Fatalf("got %d requests, want 1", len(reqs))
			}
			got := reqs[0]

			if !slices.Equal(got.Terms, []string{"cats", "cats + food"}) {
				t.Errorf("terms = %v", got.Terms)
			}
			if got.StartDate != "2019-01-01" || got.EndDate != "2020-01-01" {
				t.Errorf("dates = %s..%s", got.StartDate, got.EndDate)
			}
			if got.Resolution != "month" {
				t.Errorf("resolution = %q, want month", got.Resolution)
			}
			if got.Key != "test-key" {
				t.Errorf("key = %q, want test-key", got.Key)
			}
			if got.UserAgent != "gtrends-test/1.0" {
				t.Errorf("user agent = %q", got.UserAgent)
			}
			if got.Country != tt.country || got.DMA != tt.dma || got.Region != tt.region {
				t.Errorf("restriction = (%q, %q, %q), want (%q, %q, %q)",
					got.Country, got.DMA, got.Region, tt.country, tt.dma, tt.region)
			}
		})
	}
}

func TestFetch_DecodesLines(t *testing.T) {
	mock := testutil.NewMockTrends()
	defer mock.Close()
	mock.SetSeries(func(_ testutil.RecordedRequest, term string) []testutil.MockPoint {
		if term == "cats" {
			return []testutil.MockPoint{{Date: "Jan 2019", Value: 40}, {Date: "Feb 2019", Value: 0}}
		}
		return []testutil.MockPoint{{Date: "Jan 2019", Value: 12.5}}
	})
	c := testClient(t, mock)

	resp, err := c.Fetch(context.Background(), testRequest(geo.Worldwide()))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(resp.Lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(resp.Lines))
	}
	if resp.Lines[0].Term != "cats" || len(resp.Lines[0].Points) != 2 {
		t.Errorf("line 0 = %+v", resp.Lines[0])
	}
	if p := resp.Lines[1].Points[0]; p.Date != "Jan 2019" || p.Value != 12.5 {
		t.Errorf("line 1 point = %+v", p)
	}
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		resp   testutil.MockResponse
		class  ErrorClass
		status int
		msg    string
	}{
		{
			name:   "quota",
			resp:   testutil.NewQuotaResponse(),
			class:  ErrorClassRateLimit,
			status: http.StatusTooManyRequests,
			msg:    "Quota exceeded for quota metric 'Queries'",
		},
		{
			name:   "forbidden",
			resp:   testutil.NewForbiddenResponse(),
			class:  ErrorClassClient,
			status: http.StatusForbidden,
			msg:    "API key not valid. Please pass a valid API key.",
		},
		{
			name:   "server",
			resp:   testutil.NewServerErrorResponse(),
			class:  ErrorClassServer,
			status: http.StatusInternalServerError,
			msg:    "Backend Error",
		},
		{
			name:   "plain text error",
			resp:   testutil.MockResponse{StatusCode: http.StatusBadGateway, Body: "bad gateway"},
			class:  ErrorClassServer,
			status: http.StatusBadGateway,
			msg:    "502 Bad Gateway",
		},
		{
			name:   "malformed body",
			resp:   testutil.MockResponse{StatusCode: http.StatusOK, Body: "{not json"},
			class:  ErrorClassDecode,
			status: http.StatusOK,
			msg:    "decode response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockTrends()
			defer mock.Close()
			mock.SetResponse(tt.resp)
			c := testClient(t, mock)

			before := promtest.ToFloat64(errorsTotal.WithLabelValues(string(tt.class)))

			_, err := c.Fetch(context.Background(), testRequest(geo.Worldwide()))
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Fetch() error = %v, want *APIError", err)
			}
			if apiErr.Class != tt.class {
				t.Errorf("Class = %s, want %s", apiErr.Class, tt.class)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if apiErr.Message != tt.msg {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.msg)
			}

			// No retries: exactly one request reaches the server.
			if n := mock.RequestCount(); n != 1 {
				t.Errorf("server saw %d requests, want 1", n)
			}

			after := promtest.ToFloat64(errorsTotal.WithLabelValues(string(tt.class)))
			if after != before+1 {
				t.Errorf("gtrends_errors_total{class=%s} moved %v -> %v", tt.class, before, after)
			}
		})
	}
}

func TestFetch_ShapeMismatch(t *testing.T) {
	mock := testutil.NewMockTrends()
	defer mock.Close()
	mock.SetResponse(testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"lines": [{"term": "cats", "points": []}]}`,
	})
	c := testClient(t, mock)

	_, err := c.Fetch(context.Background(), testRequest(geo.Worldwide()))
	if !errors.Is(err, ErrShape) {
		t.Errorf("Fetch() error = %v, want ErrShape", err)
	}
}

func TestFetch_NetworkError(t *testing.T) {
	mock := testutil.NewMockTrends()
	c := testClient(t, mock)
	mock.Close()

	_, err := c.Fetch(context.Background(), testRequest(geo.Worldwide()))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Class != ErrorClassNetwork {
		t.Errorf("Fetch() error = %v, want network APIError", err)
	}
}

func TestFetch_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockTrends()
	defer mock.Close()
	c := testClient(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, testRequest(geo.Worldwide()))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Fetch() error = %v, want context.Canceled", err)
	}
}

func TestRequestFor(t *testing.T) {
	call := plan.Call{
		Granularity: plan.Week,
		Batch: plan.Batch{Index: 1, Terms: []plan.Term{
			{Query: "cats", Name: "cats"},
			{Query: "cats + food", Name: "food"},
		}},
		Window: plan.Window{
			Index: 2,
			Start: time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC),
		},
		Geography: geo.Geography{Kind: geo.KindDMA, Code: "501"},
	}

	req := RequestFor(call)
	if !slices.Equal(req.Terms, []string{"cats", "cats + food"}) {
		t.Errorf("Terms = %v", req.Terms)
	}
	if req.Resolution != plan.Week || req.Geography != call.Geography {
		t.Errorf("unexpected request %+v", req)
	}
	if !req.Start.Equal(call.Window.Start) || !req.End.Equal(call.Window.End) {
		t.Errorf("dates = %v..%v", req.Start, req.End)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{200, ""},
		{400, ErrorClassClient},
		{403, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}
	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
