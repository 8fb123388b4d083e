// Package dispatch routes content URL requests to the handler registered
// for the longest matching path pattern (spec §4.5), in the style of the
// original implementation's LORequestDispatcher: a host holds an ordered
// list of pattern-to-handler mappings, and the first pattern that matches
// the request path wins.
package dispatch

import "strings"

// segmentKind distinguishes the three kinds of pattern segment.
type segmentKind int

const (
	segLiteral segmentKind = iota
	segCapture
	segRest
)

type segment struct {
	kind segmentKind
	text string // literal text, or capture/rest name
}

// Pattern is a compiled path template. Segments are separated by "/".
// A segment of the form "{name}" captures exactly one path segment under
// that name; "{name...}" captures all remaining segments (must be last).
type Pattern struct {
	raw      string
	segments []segment
}

// Compile parses a pattern string into a Pattern.
func Compile(raw string) Pattern {
	raw = strings.Trim(raw, "/")

	var segments []segment
	if raw != "" {
		for _, part := range strings.Split(raw, "/") {
			segments = append(segments, compileSegment(part))
		}
	}

	return Pattern{raw: raw, segments: segments}
}

func compileSegment(part string) segment {
	if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
		name := part[1 : len(part)-1]
		if strings.HasSuffix(name, "...") {
			return segment{kind: segRest, text: strings.TrimSuffix(name, "...")}
		}
		return segment{kind: segCapture, text: name}
	}

	return segment{kind: segLiteral, text: part}
}

// match attempts to match path against the pattern, returning any captured
// path parameters and whether the match succeeded.
func (p Pattern) match(path string) (map[string]string, bool) {
	path = strings.Trim(path, "/")

	var pathSegs []string
	if path != "" {
		pathSegs = strings.Split(path, "/")
	}

	params := map[string]string{}

	for i, seg := range p.segments {
		if seg.kind == segRest {
			params[seg.text] = strings.Join(pathSegs[min(i, len(pathSegs)):], "/")
			return params, true
		}

		if i >= len(pathSegs) {
			return nil, false
		}

		switch seg.kind {
		case segLiteral:
			if pathSegs[i] != seg.text {
				return nil, false
			}
		case segCapture:
			params[seg.text] = pathSegs[i]
		}
	}

	if len(pathSegs) != len(p.segments) {
		return nil, false
	}

	return params, true
}

// specificity orders patterns for first-match-wins registration: more
// literal segments and no trailing rest capture sort first, so a specific
// mapping like "files.api/{id}/content" is tried before a catch-all.
func (p Pattern) specificity() (literals int, hasRest bool, length int) {
	for _, seg := range p.segments {
		if seg.kind == segLiteral {
			literals++
		}
		if seg.kind == segRest {
			hasRest = true
		}
	}

	return literals, hasRest, len(p.segments)
}
