// Package testutil provides testing utilities for the trends client and the
// collector.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// TimelinesPath is the path served by MockTrends for API version v1beta.
const TimelinesPath = "/trends/v1beta/timelinesForHealth"

// MockPoint is one point of a mocked line.
type MockPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type mockLine struct {
	Term   string      `json:"term"`
	Points []MockPoint `json:"points"`
}

// RecordedRequest is the decoded query of one request received by MockTrends.
type RecordedRequest struct {
	Terms      []string
	StartDate  string
	EndDate    string
	Resolution string
	Country    string
	DMA        string
	Region     string
	Key        string
	UserAgent  string
}

// Geo returns whichever restriction the request carried, or "" for none.
func (r RecordedRequest) Geo() string {
	switch {
	case r.Country != "":
		return r.Country
	case r.DMA != "":
		return r.DMA
	default:
		return r.Region
	}
}

// SeriesFunc produces the points of one term for one request.
type SeriesFunc func(req RecordedRequest, term string) []MockPoint

// MockResponse is a fixed response returned for every request.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockTrends is a configurable mock of the timelines endpoint.
type MockTrends struct {
	server *httptest.Server

	mu       sync.RWMutex
	series   SeriesFunc
	fixed    *MockResponse
	requests []RecordedRequest
}

// NewMockTrends creates a mock server whose default series is empty for
// every term.
func NewMockTrends() *MockTrends {
	mock := &MockTrends{
		series: func(RecordedRequest, string) []MockPoint { return nil },
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != TimelinesPath {
			http.NotFound(w, r)
			return
		}

		rec := decode(r)
		mock.mu.Lock()
		mock.requests = append(mock.requests, rec)
		fixed := mock.fixed
		series := mock.series
		mock.mu.Unlock()

		if fixed != nil {
			if fixed.Delay > 0 {
				time.Sleep(fixed.Delay)
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(fixed.StatusCode)
			w.Write([]byte(fixed.Body))
			return
		}

		lines := make([]mockLine, 0, len(rec.Terms))
		for _, term := range rec.Terms {
			points := series(rec, term)
			if points == nil {
				points = []MockPoint{}
			}
			lines = append(lines, mockLine{Term: term, Points: points})
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(map[string]any{"lines": lines})
	}))

	return mock
}

func decode(r *http.Request) RecordedRequest {
	q := r.URL.Query()
	return RecordedRequest{
		Terms:      q["terms"],
		StartDate:  q.Get("time.startDate"),
		EndDate:    q.Get("time.endDate"),
		Resolution: q.Get("timelineResolution"),
		Country:    q.Get("geoRestriction.country"),
		DMA:        q.Get("geoRestriction.dma"),
		Region:     q.Get("geoRestriction.region"),
		Key:        q.Get("key"),
		UserAgent:  r.Header.Get("User-Agent"),
	}
}

// URL returns the mock server URL, usable as the client's Server.
func (m *MockTrends) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockTrends) Close() {
	m.server.Close()
}

// SetSeries configures the points returned per term.
func (m *MockTrends) SetSeries(fn SeriesFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series = fn
	m.fixed = nil
}

// SetResponse makes every request return resp verbatim.
func (m *MockTrends) SetResponse(resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixed = &resp
}

// Requests returns a copy of every request received so far.
func (m *MockTrends) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// RequestCount returns the number of requests received so far.
func (m *MockTrends) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Reset clears recorded requests.
func (m *MockTrends) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// Constant returns a SeriesFunc that reports the same points for every term
// and request.
func Constant(points ...MockPoint) SeriesFunc {
	return func(RecordedRequest, string) []MockPoint {
		return points
	}
}

// ByGeo returns a SeriesFunc that looks points up by restriction code
// ("" for worldwide). Unknown geographies get no points.
func ByGeo(points map[string][]MockPoint) SeriesFunc {
	return func(req RecordedRequest, _ string) []MockPoint {
		return points[req.Geo()]
	}
}

// NewQuotaResponse creates a 429 response in the Google API error format.
func NewQuotaResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": {"code": 429, "message": "Quota exceeded for quota metric 'Queries'"}}`,
	}
}

// NewForbiddenResponse creates a 403 response for an invalid API key.
func NewForbiddenResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"error": {"code": 403, "message": "API key not valid. Please pass a valid API key."}}`,
	}
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": {"code": 500, "message": "Backend Error"}}`,
	}
}

// JoinTerms is a helper for asserting on recorded term batches.
func JoinTerms(req RecordedRequest) string {
	return strings.Join(req.Terms, "|")
}
