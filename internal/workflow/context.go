package workflow

import (
	"strings"

	"specloom/internal/assist"
	"specloom/internal/editor"
	"specloom/internal/marker"
)

// PriorContext is a pure function from (document, workflow order, target) to
// the ordered bodies of the sections declared before the target. Gates are
// skipped; no state is accumulated or cached between calls.
func PriorContext(lines []string, order []string, target string) []assist.ContextSection {
	var prior []assist.ContextSection
	for _, t := range order {
		if t == target {
			break
		}
		if _, isGate := marker.IsGateTarget(t); isGate {
			continue
		}
		span, ok := marker.FindSectionSpan(lines, t)
		if !ok {
			continue
		}
		body := SectionBody(lines, span)
		if strings.TrimSpace(body) == "" || strings.Contains(body, marker.Placeholder) {
			continue
		}
		prior = append(prior, assist.ContextSection{ID: t, Body: body})
	}
	return prior
}

// SectionBody extracts a section's free-text body: everything between the
// opening marker and the question-subsection boundary, minus structural
// lines.
func SectionBody(lines []string, span marker.Span) string {
	end := editor.BodyEnd(lines, span)
	var sb strings.Builder
	for i := span.Start + 1; i < end && i < len(lines); i++ {
		if marker.IsStructuralMarker(lines[i]) {
			continue
		}
		sb.WriteString(lines[i])
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}
