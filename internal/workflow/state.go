// Package workflow classifies sections, selects the next actionable target
// in declared order, and drives the one-mutation-per-step engine that hands
// regions to the completion collaborator.
package workflow

import (
	"fmt"

	"specloom/internal/editor"
	"specloom/internal/ledger"
	"specloom/internal/marker"
)

// State is a section's derived processing state. It is computed from the
// line array on every use, never stored.
type State int

const (
	// StateLocked is terminal: no further automated edits.
	StateLocked State = iota
	// StateNeedsContent: body is blank and no questions target the section.
	StateNeedsContent
	// StateAwaitingAnswers: open questions block progress on the section.
	StateAwaitingAnswers
	// StateReadyToIntegrate: answered questions wait to be folded into prose.
	StateReadyToIntegrate
	// StateComplete: no placeholder, no open or answered questions.
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateLocked:
		return "locked"
	case StateNeedsContent:
		return "needs_content"
	case StateAwaitingAnswers:
		return "awaiting_answers"
	case StateReadyToIntegrate:
		return "ready_to_integrate"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// SectionStatus is the full derived picture for one section.
type SectionStatus struct {
	ID       string
	State    State
	Blank    bool
	Locked   bool
	Open     []ledger.Question
	Answered []ledger.Question
}

// Classify derives a section's status. A missing section is an error; a
// section with no question table simply has no questions.
func Classify(lines []string, sectionID string) (*SectionStatus, error) {
	span, ok := marker.FindSectionSpan(lines, sectionID)
	if !ok {
		return nil, fmt.Errorf("section %q not found", sectionID)
	}

	st := &SectionStatus{ID: sectionID}
	st.Locked = marker.Locks(lines)[sectionID]

	bodySpan := marker.Span{ID: sectionID, Start: span.Start, End: editor.BodyEnd(lines, span)}
	st.Blank = marker.HasPlaceholder(lines, bodySpan)

	open, answered, err := questionsFor(lines, sectionID)
	if err != nil {
		return nil, err
	}
	st.Open = open
	st.Answered = answered

	switch {
	case st.Locked:
		st.State = StateLocked
	case len(st.Answered) > 0:
		st.State = StateReadyToIntegrate
	case len(st.Open) > 0:
		st.State = StateAwaitingAnswers
	case st.Blank:
		st.State = StateNeedsContent
	default:
		st.State = StateComplete
	}
	return st, nil
}

// questionsFor gathers open and answered questions targeting a section from
// its per-section table and from the legacy whole-document table, whichever
// exist.
func questionsFor(lines []string, sectionID string) (open, answered []ledger.Question, err error) {
	perSection := ledger.PerSectionTableID(sectionID)
	if _, _, ok := marker.FindTableBlock(lines, perSection); ok {
		t, err := ledger.ParseTable(lines, perSection, sectionID)
		if err != nil {
			return nil, nil, err
		}
		open = append(open, t.OpenFor(sectionID)...)
		answered = append(answered, t.AnsweredFor(sectionID)...)
	}
	if _, _, ok := marker.FindTableBlock(lines, ledger.LegacyTableID); ok {
		t, err := ledger.ParseTable(lines, ledger.LegacyTableID, "")
		if err != nil {
			return nil, nil, err
		}
		open = append(open, t.OpenFor(sectionID)...)
		answered = append(answered, t.AnsweredFor(sectionID)...)
	}
	return open, answered, nil
}

// ledgerFor picks the table a section's new questions belong in: the
// per-section table when present, otherwise the legacy whole-document table.
// A document with neither cannot hold questions, which is a ParseFailure.
func ledgerFor(lines []string, sectionID string) (tableID, scope string, err error) {
	perSection := ledger.PerSectionTableID(sectionID)
	if _, _, ok := marker.FindTableBlock(lines, perSection); ok {
		return perSection, sectionID, nil
	}
	if _, _, ok := marker.FindTableBlock(lines, ledger.LegacyTableID); ok {
		return ledger.LegacyTableID, "", nil
	}
	return "", "", &marker.ParseFailure{
		What: fmt.Sprintf("no question table available for section %q", sectionID),
		Line: -1,
	}
}
