// Package ledger maintains the per-scope tables of open, answered and
// resolved questions embedded in a document. Questions are append-only: ids
// are never reused and rows are never deleted, only resolved.
package ledger

import (
	"fmt"
	"regexp"
	"strings"

	"specloom/internal/marker"
)

// Status is a question's lifecycle state.
type Status string

const (
	StatusOpen     Status = "Open"
	StatusResolved Status = "Resolved"
	StatusDeferred Status = "Deferred"
)

// Question is one ledger row. Target is the section or subsection the
// question is about; for per-section tables it defaults to the table's scope.
type Question struct {
	ID     string
	Text   string
	Date   string
	Answer string
	Target string
	Status Status
}

// Answered reports whether the question has an answer not yet folded into
// prose.
func (q Question) Answered() bool {
	return strings.TrimSpace(q.Answer) != "" && q.Status != StatusResolved
}

// Open reports whether the question is still waiting on an answer.
func (q Question) Open() bool {
	return strings.TrimSpace(q.Answer) == "" && q.Status != StatusResolved
}

// Canonical column sets. The legacy whole-document table carries an explicit
// target column; per-section tables scope the target implicitly.
var (
	ColumnsLegacy     = []string{"Question ID", "Question", "Date", "Answer", "Section Target", "Resolution Status"}
	ColumnsPerSection = []string{"Question ID", "Question", "Date", "Answer", "Status"}
)

// LegacyTableID is the id of the whole-document open questions table.
const LegacyTableID = "open_questions"

// PerSectionTableID names the question table bound to one section.
func PerSectionTableID(sectionID string) string {
	return sectionID + "_questions"
}

// Table is a parsed question table plus its location in the line array.
type Table struct {
	TableID string
	Scope   string // section id for per-section tables, "" for the legacy table
	Legacy  bool
	Start   int // first pipe line (header)
	End     int // exclusive
	Rows    []Question
}

var (
	perSectionIDRe = regexp.MustCompile(`^([a-z0-9_]+)-Q(\d+)$`)
	legacyIDRe     = regexp.MustCompile(`^Q-(\d+)$`)
)

// ParseTable locates and parses a question table. A missing or malformed
// table is a typed ParseFailure: downstream workflow logic cannot proceed
// without the ledger.
func ParseTable(lines []string, tableID, scope string) (*Table, error) {
	start, end, ok := marker.FindTableBlock(lines, tableID)
	if !ok {
		return nil, &marker.ParseFailure{What: fmt.Sprintf("question table %q not found", tableID), Line: -1}
	}

	header := splitRow(lines[start])
	legacy := false
	switch {
	case columnsEqual(header, ColumnsLegacy):
		legacy = true
	case columnsEqual(header, ColumnsPerSection):
	default:
		return nil, &marker.ParseFailure{
			What: fmt.Sprintf("question table %q has unexpected header %q", tableID, strings.Join(header, " | ")),
			Line: start,
		}
	}

	t := &Table{TableID: tableID, Scope: scope, Legacy: legacy, Start: start, End: end}

	for i := start + 1; i < end; i++ {
		if isSeparatorRow(lines[i]) {
			continue
		}
		cells := splitRow(lines[i])
		if len(cells) != len(header) {
			return nil, &marker.ParseFailure{
				What: fmt.Sprintf("question table %q row has %d columns, want %d", tableID, len(cells), len(header)),
				Line: i,
			}
		}
		q := Question{ID: cells[0], Text: cells[1], Date: cells[2], Answer: cells[3]}
		if legacy {
			q.Target = cells[4]
			q.Status = parseStatus(cells[5])
		} else {
			q.Target = scope
			q.Status = parseStatus(cells[4])
		}
		t.Rows = append(t.Rows, q)
	}
	return t, nil
}

// NextID allocates the next question id for the table's scope: the maximum
// existing numeric suffix plus one. Resolved questions still occupy their id.
func (t *Table) NextID() string {
	maxN := 0
	for _, q := range t.Rows {
		var m []string
		if t.Legacy {
			m = legacyIDRe.FindStringSubmatch(q.ID)
		} else {
			m = perSectionIDRe.FindStringSubmatch(q.ID)
			if m != nil && m[1] != t.Scope {
				continue
			}
			if m != nil {
				m = []string{m[0], m[2]}
			}
		}
		if m == nil {
			continue
		}
		var n int
		fmt.Sscanf(m[1], "%d", &n)
		if n > maxN {
			maxN = n
		}
	}
	if t.Legacy {
		return fmt.Sprintf("Q-%03d", maxN+1)
	}
	return fmt.Sprintf("%s-Q%d", t.Scope, maxN+1)
}

// FindByID returns the row with the given question id.
func (t *Table) FindByID(id string) (Question, bool) {
	for _, q := range t.Rows {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// FindDuplicate returns the existing row whose text matches after whitespace
// collapse and case folding.
func (t *Table) FindDuplicate(text string) (Question, bool) {
	want := NormalizeText(text)
	for _, q := range t.Rows {
		if NormalizeText(q.Text) == want {
			return q, true
		}
	}
	return Question{}, false
}

// OpenFor returns unanswered, unresolved questions targeting the given id.
func (t *Table) OpenFor(target string) []Question {
	var out []Question
	for _, q := range t.Rows {
		if q.Target == target && q.Open() {
			out = append(out, q)
		}
	}
	return out
}

// AnsweredFor returns answered-but-unresolved questions targeting the given
// id.
func (t *Table) AnsweredFor(target string) []Question {
	var out []Question
	for _, q := range t.Rows {
		if q.Target == target && q.Answered() {
			out = append(out, q)
		}
	}
	return out
}

// Insert adds a question, suppressing semantic duplicates: a question whose
// normalized text already exists returns the existing id and leaves the line
// array untouched.
func Insert(lines []string, tableID, scope string, q Question) ([]string, string, error) {
	t, err := ParseTable(lines, tableID, scope)
	if err != nil {
		return nil, "", err
	}
	if existing, dup := t.FindDuplicate(q.Text); dup {
		return lines, existing.ID, nil
	}

	if q.ID == "" {
		q.ID = t.NextID()
	}
	if q.Status == "" {
		q.Status = StatusOpen
	}
	if q.Target == "" {
		q.Target = scope
	}

	out := make([]string, 0, len(lines)+1)
	out = append(out, lines[:t.End]...)
	out = append(out, renderRow(q, t.Legacy))
	out = append(out, lines[t.End:]...)
	return out, q.ID, nil
}

// InsertBatch applies Insert across a list in one pass, returning the id each
// question ended up with (existing ids for suppressed duplicates).
func InsertBatch(lines []string, tableID, scope string, qs []Question) ([]string, []string, error) {
	ids := make([]string, 0, len(qs))
	var err error
	var id string
	for _, q := range qs {
		lines, id, err = Insert(lines, tableID, scope, q)
		if err != nil {
			return nil, nil, err
		}
		ids = append(ids, id)
	}
	return lines, ids, nil
}

// Answer records an answer on a question, leaving its status untouched
// (answered-but-unresolved is a distinct lifecycle stage).
func Answer(lines []string, tableID, scope, questionID, answer string) ([]string, error) {
	return rewriteRow(lines, tableID, scope, questionID, func(q *Question) {
		q.Answer = answer
	})
}

// Resolve flips a question to Resolved in place. Resolving an already
// resolved id is a no-op, not an error.
func Resolve(lines []string, tableID, scope, questionID string) ([]string, bool, error) {
	t, err := ParseTable(lines, tableID, scope)
	if err != nil {
		return nil, false, err
	}
	q, ok := t.FindByID(questionID)
	if !ok {
		return nil, false, &marker.ParseFailure{What: fmt.Sprintf("question %q not found in table %q", questionID, tableID), Line: -1}
	}
	if q.Status == StatusResolved {
		return lines, false, nil
	}
	out, err := rewriteRow(lines, tableID, scope, questionID, func(q *Question) {
		q.Status = StatusResolved
	})
	return out, err == nil, err
}

// ResolveBatch resolves every id in one pass, reporting how many rows
// actually changed.
func ResolveBatch(lines []string, tableID, scope string, ids []string) ([]string, int, error) {
	changed := 0
	for _, id := range ids {
		var didChange bool
		var err error
		lines, didChange, err = Resolve(lines, tableID, scope, id)
		if err != nil {
			return nil, changed, err
		}
		if didChange {
			changed++
		}
	}
	return lines, changed, nil
}

// EmptyTableLines renders the marker plus a correctly-headed empty table.
func EmptyTableLines(tableID string, legacy bool) []string {
	cols := ColumnsPerSection
	if legacy {
		cols = ColumnsLegacy
	}
	sep := make([]string, len(cols))
	for i := range sep {
		sep[i] = "---"
	}
	return []string{
		marker.TableMarker(tableID),
		"| " + strings.Join(cols, " | ") + " |",
		"|" + strings.Join(sep, "|") + "|",
	}
}

// NormalizeText collapses whitespace and folds case for duplicate detection.
func NormalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

func rewriteRow(lines []string, tableID, scope, questionID string, mutate func(*Question)) ([]string, error) {
	t, err := ParseTable(lines, tableID, scope)
	if err != nil {
		return nil, err
	}

	out := append([]string(nil), lines...)
	for i := t.Start + 1; i < t.End; i++ {
		if isSeparatorRow(out[i]) {
			continue
		}
		cells := splitRow(out[i])
		if cells[0] != questionID {
			continue
		}
		q := rowToQuestion(cells, t)
		mutate(&q)
		out[i] = renderRow(q, t.Legacy)
		return out, nil
	}
	return nil, &marker.ParseFailure{What: fmt.Sprintf("question %q not found in table %q", questionID, tableID), Line: -1}
}

func rowToQuestion(cells []string, t *Table) Question {
	q := Question{ID: cells[0], Text: cells[1], Date: cells[2], Answer: cells[3]}
	if t.Legacy {
		q.Target = cells[4]
		q.Status = parseStatus(cells[5])
	} else {
		q.Target = t.Scope
		q.Status = parseStatus(cells[4])
	}
	return q
}

func renderRow(q Question, legacy bool) string {
	cells := []string{q.ID, sanitizeCell(q.Text), q.Date, sanitizeCell(q.Answer)}
	if legacy {
		cells = append(cells, q.Target, string(q.Status))
	} else {
		cells = append(cells, string(q.Status))
	}
	return "| " + strings.Join(cells, " | ") + " |"
}

// sanitizeCell keeps free text from breaking the pipe grammar.
func sanitizeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "/")
	return strings.Join(strings.Fields(s), " ")
}

func splitRow(line string) []string {
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

func isSeparatorRow(line string) bool {
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

func columnsEqual(got, want []string) bool {
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

func parseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "resolved":
		return StatusResolved
	case "deferred":
		return StatusDeferred
	default:
		return StatusOpen
	}
}
