// Package geo resolves declarative geography requests into the flat, ordered
// list of geography restrictions issued to the remote API.
package geo

import (
	"sort"
	"strings"
)

// Kind identifies which restriction parameter a geography is sent as.
type Kind string

const (
	// KindCountry restricts a call to an ISO country code (e.g. "US").
	KindCountry Kind = "country"

	// KindDMA restricts a call to a Nielsen designated market area (e.g. "501").
	KindDMA Kind = "dma"

	// KindRegion restricts a call to an ISO 3166-2 region (e.g. "US-CA").
	// A region Geography with an empty code means no restriction at all.
	KindRegion Kind = "region"
)

// WorldwideLabel is the column name used for the unrestricted geography.
const WorldwideLabel = "Worldwide"

// Geography is one restriction issued to the remote API: exactly one kind
// with its code, or the worldwide marker.
type Geography struct {
	Kind Kind
	Code string
}

// Worldwide returns the no-restriction geography.
func Worldwide() Geography {
	return Geography{Kind: KindRegion}
}

// IsWorldwide reports whether g carries no geographic restriction.
func (g Geography) IsWorldwide() bool {
	return g.Code == ""
}

// String returns the code, or WorldwideLabel for the unrestricted geography.
func (g Geography) String() string {
	if g.IsWorldwide() {
		return WorldwideLabel
	}
	return g.Code
}

// USStates holds the 50 US states plus DC as ISO 3166-2 region codes.
var USStates = []string{
	"US-DC", "US-AL", "US-AK", "US-AZ", "US-AR", "US-CA", "US-CO", "US-CT", "US-DE", "US-FL",
	"US-GA", "US-HI", "US-ID", "US-IL", "US-IN", "US-IA", "US-KS", "US-KY", "US-LA", "US-ME",
	"US-MD", "US-MA", "US-MI", "US-MN", "US-MS", "US-MO", "US-MT", "US-NE", "US-NV", "US-NH",
	"US-NJ", "US-NM", "US-NY", "US-NC", "US-ND", "US-OH", "US-OK", "US-OR", "US-PA", "US-RI",
	"US-SC", "US-SD", "US-TN", "US-TX", "US-UT", "US-VT", "US-VA", "US-WA", "US-WV", "US-WI",
	"US-WY",
}

// Request is the declarative geography selection of a run.
type Request struct {
	Countries []string `yaml:"countries"`
	DMAs      []string `yaml:"dmas"`
	Regions   []string `yaml:"regions"`

	// Worldwide appends the unrestricted geography.
	Worldwide bool `yaml:"worldwide"`

	// USStates unions every US state and DC into Regions.
	USStates bool `yaml:"us_states"`
}

// Expand returns countries, then DMAs, then regions, each deduplicated and
// sorted, followed by the worldwide marker when requested. Empty codes are
// ignored.
func (r Request) Expand() []Geography {
	regions := r.Regions
	if r.USStates {
		regions = append(append([]string(nil), regions...), USStates...)
	}

	var out []Geography
	out = appendKind(out, KindCountry, r.Countries)
	out = appendKind(out, KindDMA, r.DMAs)
	out = appendKind(out, KindRegion, regions)
	if r.Worldwide {
		out = append(out, Worldwide())
	}
	return out
}

func appendKind(out []Geography, kind Kind, codes []string) []Geography {
	seen := make(map[string]struct{}, len(codes))
	uniq := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		uniq = append(uniq, code)
	}
	sort.Strings(uniq)

	for _, code := range uniq {
		out = append(out, Geography{Kind: kind, Code: code})
	}
	return out
}
