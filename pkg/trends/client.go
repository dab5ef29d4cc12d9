// Package trends provides the HTTP client for the Google Trends for Health
// timelines endpoint.
package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tlcaputi/gtrends/pkg/geo"
	"github.com/tlcaputi/gtrends/pkg/plan"
)

// Prometheus metrics for remote calls.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gtrends_requests_total",
		Help: "Total remote timeline requests by resolution and status",
	}, []string{"granularity", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gtrends_request_duration_seconds",
		Help:    "Remote timeline request duration in seconds by resolution",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"granularity"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gtrends_errors_total",
		Help: "Total remote timeline errors by class",
	}, []string{"class"})
)

const (
	// DefaultServer is the Google APIs host.
	DefaultServer = "https://www.googleapis.com"

	// DefaultAPIVersion is the Trends for Health API version.
	DefaultAPIVersion = "v1beta"

	timelinesPath = "timelinesForHealth"
)

// Client calls the timelines endpoint. It is safe for sequential use; the
// collector never issues concurrent calls.
type Client struct {
	httpClient *http.Client
	endpoint   string
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration. It replaces any process-wide
// credential state: everything the client needs is passed here.
type Config struct {
	// APIKey is the developer key (REQUIRED).
	APIKey string

	// Server is the scheme and host of the API, e.g. "https://www.googleapis.com".
	Server string

	// APIVersion is the path version segment, e.g. "v1beta".
	APIVersion string

	// UserAgent is sent on every request.
	UserAgent string

	// Timeout bounds each call. Zero means no timeout.
	Timeout time.Duration

	// HTTPClient overrides the transport. Timeout is ignored when set.
	HTTPClient *http.Client
}

// DefaultConfig returns a configuration for the public endpoint.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:     apiKey,
		Server:     DefaultServer,
		APIVersion: DefaultAPIVersion,
		UserAgent:  "gtrends/0.1.0",
	}
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Server == "" {
		return nil, fmt.Errorf("server is required")
	}
	if cfg.APIVersion == "" {
		return nil, fmt.Errorf("api version is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.Server, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid server %q", cfg.Server)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient: httpClient,
		endpoint:   base.String() + "/trends/" + cfg.APIVersion + "/" + timelinesPath,
		config:     cfg,
		logger:     log.With().Str("component", "trends-client").Logger(),
	}, nil
}

// Endpoint returns the timelines URL without query parameters.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Fetch performs one timelines call. Failures are returned as *APIError and
// are never retried.
func (c *Client) Fetch(ctx context.Context, req Request) (*Response, error) {
	resolution := string(req.Resolution)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(resolution).Observe(time.Since(startTime).Seconds())
	}()

	// The key is added after logging so it never reaches the log.
	query := buildQuery(req)
	c.logger.Debug().
		Str("url", c.endpoint+"?"+query.Encode()).
		Int("terms", len(req.Terms)).
		Msg("Executing timelines request")

	query.Set("key", c.config.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(resolution, "network_error").Inc()
		return nil, &APIError{Class: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(resolution, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{StatusCode: resp.StatusCode, Class: ErrorClassNetwork, Message: "read body", Err: err}
	}

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Timelines request error")
		return nil, &APIError{StatusCode: resp.StatusCode, Class: class, Message: errorMessage(resp.Status, body)}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &APIError{StatusCode: resp.StatusCode, Class: ErrorClassDecode, Message: "decode response", Err: err}
	}
	if len(out.Lines) != len(req.Terms) {
		return nil, fmt.Errorf("%w: %d lines for %d terms", ErrShape, len(out.Lines), len(req.Terms))
	}

	return &out, nil
}

func buildQuery(req Request) url.Values {
	q := url.Values{}
	for _, term := range req.Terms {
		q.Add("terms", term)
	}
	q.Set("time.startDate", req.Start.Format(plan.DateLayout))
	q.Set("time.endDate", req.End.Format(plan.DateLayout))
	q.Set("timelineResolution", string(req.Resolution))

	if !req.Geography.IsWorldwide() {
		switch req.Geography.Kind {
		case geo.KindCountry:
			q.Set("geoRestriction.country", req.Geography.Code)
		case geo.KindDMA:
			q.Set("geoRestriction.dma", req.Geography.Code)
		case geo.KindRegion:
			q.Set("geoRestriction.region", req.Geography.Code)
		}
	}
	return q
}

// errorMessage extracts the Google API error message when the body carries one.
func errorMessage(status string, body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return status
}
