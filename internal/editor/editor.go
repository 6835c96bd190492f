// Package editor provides the single sanctioned primitive for changing a
// region's prose. It retains every structural line of the region, sanitizes
// the incoming body, and validates the document on both sides of the splice,
// so a caller can treat "replace this section's prose" as atomic and safe.
package editor

import (
	"fmt"
	"strings"

	"specloom/internal/marker"
	"specloom/internal/policy"
	"specloom/internal/validate"
)

// headingScanWindow is how many lines past the opening marker a retained
// heading may appear.
const headingScanWindow = 5

// dividerWindow is how close to the region end a retained trailing divider
// must be.
const dividerWindow = 3

// ReplaceBody rewrites the free-text body of lines[start:end] with newBody.
// The opening marker, the region's first markdown heading, its last lock
// marker and a trailing divider survive verbatim; everything the content
// generator echoed back that looks like structure is stripped, except
// headings the section policy explicitly preserves. The edit is refused
// outright when the document is already corrupt or when the spliced result
// would fail validation.
func ReplaceBody(lines []string, start, end int, regionID, newBody string, pol policy.SectionPolicy) ([]string, error) {
	if start < 0 || end > len(lines) || start >= end {
		return nil, validate.InvalidSpanError(regionID, start, end)
	}
	if err := validate.Check(lines); err != nil {
		return nil, fmt.Errorf("refusing to edit %s: document is structurally invalid: %w", regionID, err)
	}

	block := lines[start:end]
	opening := block[0]

	heading := ""
	for i := 1; i < len(block) && i <= headingScanWindow; i++ {
		t := strings.TrimSpace(block[i])
		if strings.HasPrefix(t, "## ") || strings.HasPrefix(t, "### ") {
			heading = block[i]
			break
		}
	}

	lock := ""
	for _, line := range block {
		if marker.IsLockMarker(line) {
			lock = line
		}
	}

	divider := ""
	for i := len(block) - 1; i >= 0 && i >= len(block)-dividerWindow; i-- {
		if strings.TrimSpace(block[i]) == "---" {
			divider = block[i]
			break
		}
	}

	body := Sanitize(newBody, pol)
	if len(body) == 0 {
		body = []string{marker.Placeholder}
	}

	rebuilt := make([]string, 0, len(body)+5)
	rebuilt = append(rebuilt, opening)
	if heading != "" {
		rebuilt = append(rebuilt, heading)
	}
	rebuilt = append(rebuilt, "")
	rebuilt = append(rebuilt, body...)
	if lock != "" {
		rebuilt = append(rebuilt, "", lock)
	}
	if divider != "" {
		rebuilt = append(rebuilt, "", divider)
	}

	out := make([]string, 0, len(lines)-len(block)+len(rebuilt))
	out = append(out, lines[:start]...)
	out = append(out, rebuilt...)
	out = append(out, lines[end:]...)

	if err := validate.Check(out); err != nil {
		return nil, fmt.Errorf("edit of %s rejected: result would be structurally invalid: %w", regionID, err)
	}
	return out, nil
}

// questionSubsections are the ledger-bearing subsections a body replacement
// must never overwrite.
var questionSubsections = []string{"questions_issues", "open_questions"}

// BodyEnd computes the true replacement end for a section: the start of its
// questions subsection when one exists, never the section's own end. Both the
// drafting and integration call paths go through this.
func BodyEnd(lines []string, span marker.Span) int {
	end := span.End
	for _, id := range questionSubsections {
		if sub, ok := marker.FindSubsectionSpan(lines, span, id); ok && sub.Start < end {
			end = sub.Start
		}
	}
	return end
}

// Sanitize strips structural noise from generated text: echoed marker lines,
// headings, dividers, fence wrappers, runs of blank lines, and whatever the
// section's content filters remove. Headings named in the policy's preserved
// list survive; the placeholder token is body content and survives too.
func Sanitize(text string, pol policy.SectionPolicy) []string {
	text = trimFences(text)

	var out []string
	blank := false
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, " \t")
		t := strings.TrimSpace(line)

		switch {
		case t == "":
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		case marker.IsStructuralMarker(line):
			continue
		case strings.HasPrefix(t, "#"):
			if !isPreservedHeading(t, pol.PreservedHeaders) {
				continue
			}
		case t == "---":
			continue
		}
		blank = false
		out = append(out, line)
	}

	for _, f := range pol.ContentFilters {
		out = applyFilter(out, f)
	}

	for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
		out = out[:len(out)-1]
	}
	return out
}

func applyFilter(lines []string, f policy.ContentFilter) []string {
	switch f {
	case policy.FilterDedupeBullets:
		return dedupeBullets(lines)
	case policy.FilterBulletsOnly:
		return bulletsOnly(lines)
	default:
		return lines
	}
}

func dedupeBullets(lines []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if isBullet(line) {
			key := strings.ToLower(strings.Join(strings.Fields(bulletText(line)), " "))
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, line)
	}
	return out
}

func bulletsOnly(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if isBullet(line) || strings.TrimSpace(line) == "" {
			out = append(out, line)
		}
	}
	return out
}

func isPreservedHeading(line string, preserved []string) bool {
	text := strings.TrimSpace(strings.TrimLeft(line, "#"))
	for _, p := range preserved {
		if strings.EqualFold(text, strings.TrimSpace(p)) {
			return true
		}
	}
	return false
}

func isBullet(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "- ") || strings.HasPrefix(t, "* ")
}

func bulletText(line string) string {
	t := strings.TrimSpace(line)
	t = strings.TrimPrefix(t, "- ")
	t = strings.TrimPrefix(t, "* ")
	return t
}

func trimFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```markdown") {
		text = strings.TrimPrefix(text, "```markdown")
		text = strings.TrimSuffix(text, "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}
