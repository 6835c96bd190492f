package marker

import (
	"fmt"
	"strings"
)

// Span is a half-open line interval [Start, End) bound to an id. Start is the
// marker line itself.
type Span struct {
	ID    string
	Start int
	End   int
}

// ParseFailure means a construct the caller cannot proceed without was
// missing or malformed. It is raised immediately, never collected.
type ParseFailure struct {
	What string
	Line int // offending line, -1 when the construct is absent entirely
}

func (e *ParseFailure) Error() string {
	if e.Line < 0 {
		return e.What
	}
	return fmt.Sprintf("%s (line %d)", e.What, e.Line)
}

// FindSections discovers every section span in document order: one linear
// scan collecting (id, line) pairs, each closed by the next section marker or
// EOF.
func FindSections(lines []string) []Span {
	var spans []Span
	for _, t := range Tokenize(lines) {
		if t.Kind != KindSection {
			continue
		}
		if n := len(spans); n > 0 {
			spans[n-1].End = t.Line
		}
		spans = append(spans, Span{ID: t.ID, Start: t.Line, End: len(lines)})
	}
	return spans
}

// FindSectionSpan returns the span for one section id. When the id occurs
// more than once the first occurrence wins; the duplicate is the validator's
// to report.
func FindSectionSpan(lines []string, id string) (Span, bool) {
	for _, s := range FindSections(lines) {
		if s.ID == id {
			return s, true
		}
	}
	return Span{}, false
}

// FindSubsections repeats the section algorithm scoped to one parent span:
// each subsection closes at the next subsection marker or the parent's end.
func FindSubsections(lines []string, parent Span) []Span {
	var spans []Span
	for _, t := range Tokenize(lines) {
		if t.Kind != KindSubsection || t.Line <= parent.Start || t.Line >= parent.End {
			continue
		}
		if n := len(spans); n > 0 {
			spans[n-1].End = t.Line
		}
		spans = append(spans, Span{ID: t.ID, Start: t.Line, End: parent.End})
	}
	return spans
}

// FindSubsectionSpan returns one subsection span within a parent.
func FindSubsectionSpan(lines []string, parent Span, id string) (Span, bool) {
	for _, s := range FindSubsections(lines, parent) {
		if s.ID == id {
			return s, true
		}
	}
	return Span{}, false
}

// FindTableBlock locates the contiguous run of pipe-prefixed lines bound to a
// table marker. Hitting a section marker before any pipe line means the table
// is malformed in placement and reported absent, not empty.
func FindTableBlock(lines []string, tableID string) (start, end int, ok bool) {
	tokens := Tokenize(lines)
	markerLine := -1
	for _, t := range tokens {
		if t.Kind == KindTable && t.ID == tableID {
			markerLine = t.Line
			break
		}
	}
	if markerLine < 0 {
		return 0, 0, false
	}

	i := markerLine + 1
	for ; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "|") {
			break
		}
		if sectionRe.MatchString(strings.TrimSpace(lines[i])) {
			return 0, 0, false
		}
	}
	if i >= len(lines) {
		return 0, 0, false
	}

	start = i
	for end = start; end < len(lines); end++ {
		if !strings.HasPrefix(strings.TrimSpace(lines[end]), "|") {
			break
		}
	}
	return start, end, true
}

// ParseWorkflowOrder extracts the ordered, duplicate-free target list from
// the workflow:order block. Targets are section ids or review_gate:<name>
// pseudo-ids.
func ParseWorkflowOrder(lines []string) ([]string, error) {
	tokens := Tokenize(lines)

	started := false
	terminated := false
	var order []string
	seen := make(map[string]int)

	for _, t := range tokens {
		switch t.Kind {
		case KindWorkflowStart:
			started = true
		case KindWorkflowEnd:
			if started {
				terminated = true
			}
		case KindWorkflowItem:
			if terminated {
				continue
			}
			target := t.Value
			if _, isGate := IsGateTarget(target); !isGate && !ValidID(target) {
				return nil, &ParseFailure{What: fmt.Sprintf("invalid workflow target %q", target), Line: t.Line}
			}
			if prev, dup := seen[target]; dup {
				return nil, &ParseFailure{
					What: fmt.Sprintf("duplicate workflow target %q (first at line %d)", target, prev),
					Line: t.Line,
				}
			}
			seen[target] = t.Line
			order = append(order, target)
		}
	}

	if !started {
		return nil, &ParseFailure{What: "workflow:order block not found", Line: -1}
	}
	if !terminated {
		return nil, &ParseFailure{What: "workflow:order block not terminated", Line: -1}
	}
	return order, nil
}

// SectionIDs returns every section id in document order.
func SectionIDs(lines []string) []string {
	spans := FindSections(lines)
	ids := make([]string, 0, len(spans))
	for _, s := range spans {
		ids = append(ids, s.ID)
	}
	return ids
}

// HasPlaceholder reports whether any line of the span still carries the
// placeholder token.
func HasPlaceholder(lines []string, span Span) bool {
	for i := span.Start; i < span.End && i < len(lines); i++ {
		if strings.Contains(lines[i], Placeholder) {
			return true
		}
	}
	return false
}
