// Package validate batch-checks a document's structural invariants and heals
// exactly one well-defined defect class: forgotten open-questions boilerplate
// under its anchor section.
package validate

import (
	"fmt"
	"strings"

	"specloom/internal/ledger"
	"specloom/internal/marker"
)

// RepairAnchorSection is the one section id whose missing open-questions
// subsection and table the validator may synthesize. Repair exists for
// forgotten boilerplate, never for inventing structure the document did not
// ask for.
const RepairAnchorSection = "risks_open_issues"

const repairSubsectionID = "open_questions"

// Report carries every collected finding plus the (possibly repaired) line
// array and human-readable descriptions of any repairs made.
type Report struct {
	Errors  []*StructuralError
	Repairs []string
	Lines   []string
}

// Valid reports whether the document passed with zero findings.
func (r *Report) Valid() bool {
	return len(r.Errors) == 0
}

// FirstError returns the first finding as an error, or nil.
func (r *Report) FirstError() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// All runs every structural check against the document, repairing first so a
// healed document reports clean. Checks are independent and cumulative: every
// violation is collected, never just the first.
func All(lines []string) *Report {
	repaired, repairs := autoRepair(lines)
	r := &Report{Repairs: repairs, Lines: repaired}
	runChecks(r)
	return r
}

// AgainstTemplate runs All plus a template diff: every section, subsection
// and table marker present in the template but absent from the subject is
// reported individually.
func AgainstTemplate(lines, template []string) *Report {
	r := All(lines)
	checkTemplateDiff(r, template)
	return r
}

// Check validates without repairing and raises the first finding, if any.
// This is the entry the editor uses to refuse touching a corrupt document.
func Check(lines []string) error {
	r := &Report{Lines: append([]string(nil), lines...)}
	runChecks(r)
	return r.FirstError()
}

func runChecks(r *Report) {
	tokens := marker.Tokenize(r.Lines)
	checkDuplicateSections(r, tokens)
	checkMalformedMarkers(r, tokens)
	checkSubsectionPlacement(r, tokens)
	checkOrphanedLocks(r, tokens)
	checkQuestionTables(r)
}

func checkDuplicateSections(r *Report, tokens []marker.Token) {
	occurrences := make(map[string][]int)
	var order []string
	for _, t := range tokens {
		if t.Kind != marker.KindSection {
			continue
		}
		if _, seen := occurrences[t.ID]; !seen {
			order = append(order, t.ID)
		}
		occurrences[t.ID] = append(occurrences[t.ID], t.Line)
	}
	for _, id := range order {
		if lines := occurrences[id]; len(lines) > 1 {
			r.Errors = append(r.Errors, &StructuralError{
				Kind:  KindDuplicateSection,
				ID:    id,
				Lines: lines,
				Msg:   fmt.Sprintf("section id declared %d times", len(lines)),
			})
		}
	}
}

func checkMalformedMarkers(r *Report, tokens []marker.Token) {
	for _, t := range tokens {
		if t.Kind != marker.KindMalformed {
			continue
		}
		r.Errors = append(r.Errors, &StructuralError{
			Kind:  KindMalformedMarker,
			ID:    t.ID,
			Lines: []int{t.Line},
			Msg:   t.Reason,
		})
	}
}

// Subsections are only valid inside a section span.
func checkSubsectionPlacement(r *Report, tokens []marker.Token) {
	firstSection := -1
	for _, t := range tokens {
		if t.Kind == marker.KindSection {
			firstSection = t.Line
			break
		}
	}
	for _, t := range tokens {
		if t.Kind != marker.KindSubsection {
			continue
		}
		if firstSection < 0 || t.Line < firstSection {
			r.Errors = append(r.Errors, &StructuralError{
				Kind:  KindMalformedMarker,
				ID:    t.ID,
				Lines: []int{t.Line},
				Msg:   "subsection marker outside any section",
			})
		}
	}
}

func checkOrphanedLocks(r *Report, tokens []marker.Token) {
	sections := make(map[string]bool)
	for _, t := range tokens {
		if t.Kind == marker.KindSection {
			sections[t.ID] = true
		}
	}
	for _, t := range tokens {
		if t.Kind != marker.KindLock {
			continue
		}
		if !sections[t.ID] {
			r.Errors = append(r.Errors, &StructuralError{
				Kind:  KindOrphanedLock,
				ID:    t.ID,
				Lines: []int{t.Line},
				Msg:   "lock references a section that does not exist",
			})
		}
	}
}

// checkQuestionTables enforces the fixed ledger schemas: the canonical column
// set, the header+separator overhead, and a uniform pipe count per data row.
func checkQuestionTables(r *Report) {
	tokens := marker.Tokenize(r.Lines)
	for _, t := range tokens {
		if t.Kind != marker.KindTable {
			continue
		}
		var want []string
		switch {
		case t.ID == ledger.LegacyTableID:
			want = ledger.ColumnsLegacy
		case strings.HasSuffix(t.ID, "_questions"):
			want = ledger.ColumnsPerSection
		default:
			continue
		}
		checkTableSchema(r, t.ID, want)
	}
}

func checkTableSchema(r *Report, tableID string, want []string) {
	start, end, ok := marker.FindTableBlock(r.Lines, tableID)
	if !ok {
		r.Errors = append(r.Errors, &StructuralError{
			Kind: KindTableSchema,
			ID:   tableID,
			Msg:  "table marker has no pipe block",
		})
		return
	}

	header := splitCells(r.Lines[start])
	if !sameColumns(header, want) {
		r.Errors = append(r.Errors, &StructuralError{
			Kind:  KindTableSchema,
			ID:    tableID,
			Lines: []int{start},
			Msg:   fmt.Sprintf("header %q does not match canonical columns %q", strings.Join(header, " | "), strings.Join(want, " | ")),
		})
	}
	if start+1 >= end || !isSeparator(r.Lines[start+1]) {
		r.Errors = append(r.Errors, &StructuralError{
			Kind:  KindTableSchema,
			ID:    tableID,
			Lines: []int{start + 1},
			Msg:   "missing header separator row",
		})
	}

	headerPipes := strings.Count(r.Lines[start], "|")
	for i := start + 2; i < end; i++ {
		if pipes := strings.Count(r.Lines[i], "|"); pipes != headerPipes {
			r.Errors = append(r.Errors, &StructuralError{
				Kind:  KindTableSchema,
				ID:    tableID,
				Lines: []int{i},
				Msg:   fmt.Sprintf("row has %d pipes, header has %d", pipes, headerPipes),
			})
		}
	}
}

func checkTemplateDiff(r *Report, template []string) {
	have := make(map[string]bool)
	for _, t := range marker.Tokenize(r.Lines) {
		switch t.Kind {
		case marker.KindSection, marker.KindSubsection, marker.KindTable:
			have[t.Kind.String()+":"+t.ID] = true
		}
	}
	for _, t := range marker.Tokenize(template) {
		switch t.Kind {
		case marker.KindSection, marker.KindSubsection, marker.KindTable:
			key := t.Kind.String() + ":" + t.ID
			if !have[key] {
				r.Errors = append(r.Errors, &StructuralError{
					Kind: KindMissingMarker,
					ID:   t.ID,
					Msg:  fmt.Sprintf("template %s marker absent from document", t.Kind),
				})
			}
		}
	}
}

// autoRepair synthesizes the open-questions subsection and table under the
// anchor section when either is missing, splicing just before the section's
// lock marker (or at its end). An absent anchor section repairs nothing and
// flags nothing.
func autoRepair(lines []string) ([]string, []string) {
	span, ok := marker.FindSectionSpan(lines, RepairAnchorSection)
	if !ok {
		return append([]string(nil), lines...), nil
	}

	_, hasSub := marker.FindSubsectionSpan(lines, span, repairSubsectionID)
	hasTable := false
	if start, _, found := marker.FindTableBlock(lines, ledger.LegacyTableID); found {
		hasTable = start > span.Start && start < span.End
	}
	if hasSub && hasTable {
		return append([]string(nil), lines...), nil
	}

	var block []string
	var added []string
	if !hasSub {
		block = append(block, "", marker.SubsectionMarker(repairSubsectionID))
		added = append(added, "subsection:"+repairSubsectionID)
	}
	if !hasTable {
		block = append(block, "")
		block = append(block, ledger.EmptyTableLines(ledger.LegacyTableID, true)...)
		added = append(added, "table:"+ledger.LegacyTableID)
	}
	block = append(block, "")

	at := insertionPoint(lines, span)
	out := make([]string, 0, len(lines)+len(block))
	out = append(out, lines[:at]...)
	out = append(out, block...)
	out = append(out, lines[at:]...)

	desc := fmt.Sprintf("section %s: inserted missing %s with canonical header",
		RepairAnchorSection, strings.Join(added, " and "))
	return out, []string{desc}
}

// insertionPoint is the line just before the anchor section's lock marker, or
// the section end when no lock exists inside the span.
func insertionPoint(lines []string, span marker.Span) int {
	at := span.End
	for _, t := range marker.Tokenize(lines) {
		if t.Kind == marker.KindLock && t.ID == span.ID && t.Line > span.Start && t.Line < span.End {
			at = t.Line
		}
	}
	return at
}

func splitCells(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

func sameColumns(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func isSeparator(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "|") {
		return false
	}
	for _, r := range line {
		switch r {
		case '|', '-', ':', ' ':
		default:
			return false
		}
	}
	return true
}
