package expand

import (
	"reflect"
	"testing"
)

func TestParsePaths(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want [][]string
	}{
		{"single field", "person", [][]string{{"person"}}},
		{"two fields", "person,primaryProvider", [][]string{{"person"}, {"primaryProvider"}}},
		{"nested", "primaryProvider.person", [][]string{{"primaryProvider", "person"}}},
		{"mixed", "person,primaryProvider.person", [][]string{{"person"}, {"primaryProvider", "person"}}},
		{"empty", "", nil},
		{"only commas", ",,,", nil},
		{"stray commas", ",person,,", [][]string{{"person"}}},
		{"blank segments dropped", "a..b", [][]string{{"a", "b"}}},
		{"whitespace trimmed", " person , careTeam .  person ", [][]string{{"person"}, {"careTeam", "person"}}},
		{"only dots", "...", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePaths(tt.raw)
			var segs [][]string
			for _, p := range got {
				segs = append(segs, p.Segments)
			}
			if !reflect.DeepEqual(segs, tt.want) {
				t.Errorf("ParsePaths(%q) = %v, want %v", tt.raw, segs, tt.want)
			}
		})
	}
}

func TestPathDepth(t *testing.T) {
	paths := ParsePaths("person,careTeam.person,a.b.c")
	if len(paths) != 3 {
		t.Fatalf("expected 3 paths, got %d", len(paths))
	}
	wantDepths := []int{1, 2, 3}
	for i, p := range paths {
		if p.Depth() != wantDepths[i] {
			t.Errorf("path %q depth = %d, want %d", p, p.Depth(), wantDepths[i])
		}
	}
}

func TestMaxDepth(t *testing.T) {
	if d := MaxDepth(nil); d != 0 {
		t.Errorf("MaxDepth(nil) = %d, want 0", d)
	}
	if d := MaxDepth(ParsePaths("a,b.c,d.e.f.g.h")); d != 5 {
		t.Errorf("MaxDepth = %d, want 5", d)
	}
}
