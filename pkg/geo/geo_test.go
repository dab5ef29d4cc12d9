package geo

import (
	"reflect"
	"testing"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want []Geography
	}{
		{
			name: "empty",
			req:  Request{},
			want: nil,
		},
		{
			name: "country only",
			req:  Request{Countries: []string{"US"}},
			want: []Geography{{Kind: KindCountry, Code: "US"}},
		},
		{
			name: "worldwide appended last",
			req:  Request{Countries: []string{"US"}, Worldwide: true},
			want: []Geography{{Kind: KindCountry, Code: "US"}, Worldwide()},
		},
		{
			name: "kinds ordered and deduplicated",
			req: Request{
				Regions:   []string{"US-NY", "US-CA", "US-NY", ""},
				DMAs:      []string{"501"},
				Countries: []string{"GB", "CA", "GB"},
			},
			want: []Geography{
				{Kind: KindCountry, Code: "CA"},
				{Kind: KindCountry, Code: "GB"},
				{Kind: KindDMA, Code: "501"},
				{Kind: KindRegion, Code: "US-CA"},
				{Kind: KindRegion, Code: "US-NY"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.req.Expand()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expand() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpand_USStates(t *testing.T) {
	req := Request{Regions: []string{"US-CA", "GB-ENG"}, USStates: true}
	got := req.Expand()

	// 51 states plus GB-ENG; US-CA must not appear twice.
	if len(got) != 52 {
		t.Fatalf("len(Expand()) = %d, want 52", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Code >= got[i].Code {
			t.Fatalf("regions not strictly sorted at %d: %q >= %q", i, got[i-1].Code, got[i].Code)
		}
	}
	for _, g := range got {
		if g.Kind != KindRegion {
			t.Errorf("geography %v has kind %s, want region", g, g.Kind)
		}
	}

	// Expand must not mutate the caller's slice.
	if len(req.Regions) != 2 {
		t.Errorf("Regions mutated: %v", req.Regions)
	}
}

func TestUSStatesCount(t *testing.T) {
	seen := map[string]bool{}
	for _, code := range USStates {
		if seen[code] {
			t.Errorf("duplicate state code %s", code)
		}
		seen[code] = true
	}
	if len(seen) != 51 {
		t.Errorf("USStates has %d unique codes, want 51", len(seen))
	}
}

func TestGeographyString(t *testing.T) {
	if got := Worldwide().String(); got != WorldwideLabel {
		t.Errorf("Worldwide().String() = %q, want %q", got, WorldwideLabel)
	}
	if got := (Geography{Kind: KindDMA, Code: "501"}).String(); got != "501" {
		t.Errorf("String() = %q, want 501", got)
	}
}
