// Package bpxprm edits the managed MOUNT blocks that zosmod keeps inside
// BPXPRMxx-style configuration members.
//
// A member is handled as a slice of lines. Every function here is pure: the
// input slice is never modified and a fresh slice is returned.
package bpxprm

import (
	"regexp"
	"sort"
	"strings"
)

// Span is an inclusive range of line indexes occupied by one block.
type Span struct {
	Start int
	End   int
}

// Len returns the number of lines covered by the span.
func (s Span) Len() int {
	return s.End - s.Start + 1
}

type scanState int

const (
	stateSearching scanState = iota
	stateCommentPrefix
	stateInBlock
)

type lineKind int

const (
	lineBlank lineKind = iota
	lineBegin
	lineEnd
	lineComment
	lineContinuation
	lineStatement
)

func classify(line string) lineKind {
	switch {
	case line == "":
		return lineBlank
	case strings.HasPrefix(line, "/* BEG"):
		return lineBegin
	case strings.HasPrefix(line, "/* END"):
		return lineEnd
	case strings.HasPrefix(line, "/*"):
		return lineComment
	case line[0] == ' ' || line[0] == '\t':
		return lineContinuation
	default:
		return lineStatement
	}
}

func directivePattern(resource string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^\s*MOUNT\s+FILESYSTEM\(\s*'` + regexp.QuoteMeta(resource) + `'\s*\)`)
}

// Find returns the spans of every block whose MOUNT statement names
// resource, in ascending order. The spans never overlap.
func Find(lines []string, resource string) []Span {
	directive := directivePattern(resource)

	var spans []Span
	var cur Span
	floor := 0
	state := stateSearching

	for i := 0; i < len(lines); i++ {
		switch state {
		case stateSearching:
			if !directive.MatchString(lines[i]) {
				continue
			}
			cur = Span{Start: i, End: i}
			state = stateCommentPrefix
			fallthrough

		case stateCommentPrefix:
			cur.Start = commentPrefixStart(lines, i, floor)
			state = stateInBlock

		case stateInBlock:
			switch classify(lines[i]) {
			case lineContinuation, lineComment, lineBegin:
				cur.End = i
			case lineEnd, lineBlank:
				cur.End = i
				spans = append(spans, cur)
				floor = i + 1
				state = stateSearching
			case lineStatement:
				// Not part of this block, but it may open the next one.
				spans = append(spans, cur)
				floor = i
				state = stateSearching
				i--
			}
		}
	}

	if state == stateInBlock {
		cur.End = len(lines) - 1
		spans = append(spans, cur)
	}

	return spans
}

// commentPrefixStart walks upward from the MOUNT statement at index i and
// returns the first line of the comments that belong to it. A BEGIN marker
// is taken and stops the walk; blank lines, statements and END markers stop
// it without being taken. The walk never goes below floor.
func commentPrefixStart(lines []string, i, floor int) int {
	start := i
	for j := i - 1; j >= floor; j-- {
		switch classify(lines[j]) {
		case lineBegin:
			return j
		case lineComment:
			start = j
		default:
			return start
		}
	}
	return start
}

// Apply removes every block for resource from lines and appends block, if
// non-empty, at the end. With no block present and an empty block the
// result equals the input.
func Apply(lines []string, resource, block string) []string {
	spans := Find(lines, resource)
	out := Remove(lines, spans)

	if block != "" {
		out = append(out, strings.Split(block, "\n")...)
	}

	return out
}

// Remove returns lines without the lines covered by spans.
func Remove(lines []string, spans []Span) []string {
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Start < sorted[b].Start
	})

	out := make([]string, 0, len(lines))
	next := 0
	for i, line := range lines {
		for next < len(sorted) && sorted[next].End < i {
			next++
		}
		if next < len(sorted) && i >= sorted[next].Start && i <= sorted[next].End {
			continue
		}
		out = append(out, line)
	}

	return out
}

// Extract returns a copy of the lines covered by span.
func Extract(lines []string, span Span) []string {
	out := make([]string, span.Len())
	copy(out, lines[span.Start:span.End+1])
	return out
}

var markerStamp = regexp.MustCompile(`^(/\* (?:BEGIN|END) ANSIBLE MANAGED BLOCK) \d{8}-\d{6} \*/$`)

// Equivalent reports whether two blocks hold the same text once the
// timestamps in their BEGIN and END markers are disregarded.
func Equivalent(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if markerStamp.ReplaceAllString(a[i], "$1") != markerStamp.ReplaceAllString(b[i], "$1") {
			return false
		}
	}
	return true
}
