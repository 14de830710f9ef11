package expand

import "strings"

// Path is a single parsed expand path: an ordered list of field segments,
// e.g. "primaryProvider.person" -> ["primaryProvider", "person"].
type Path struct {
	Segments []string
}

// Depth returns the number of segments in the path.
func (p Path) Depth() int { return len(p.Segments) }

func (p Path) String() string { return strings.Join(p.Segments, ".") }

// ParsePaths parses the raw expand query parameter into structured paths.
// The parameter is comma-separated; each item is a dot-separated field path.
// Blank items and blank segments are dropped, so malformed input yields
// fewer paths rather than an error. This function never fails.
func ParsePaths(raw string) []Path {
	var paths []Path
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		var segments []string
		for _, seg := range strings.Split(item, ".") {
			seg = strings.TrimSpace(seg)
			if seg != "" {
				segments = append(segments, seg)
			}
		}
		if len(segments) == 0 {
			continue
		}
		paths = append(paths, Path{Segments: segments})
	}
	return paths
}

// MaxDepth returns the longest depth across the given paths, or 0 when
// no paths were requested.
func MaxDepth(paths []Path) int {
	max := 0
	for _, p := range paths {
		if d := p.Depth(); d > max {
			max = d
		}
	}
	return max
}
