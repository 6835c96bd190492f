package ledger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func legacyDoc() []string {
	return []string{
		"<!-- section:risks_open_issues -->",
		"<!-- table:open_questions -->",
		"| Question ID | Question | Date | Answer | Section Target | Resolution Status |",
		"|---|---|---|---|---|---|",
		"| Q-001 | What is the budget? | 2026-08-01 | | overview | Open |",
		"| Q-002 | Which regions? | 2026-08-02 | EU only | overview | Open |",
		"| Q-003 | Old one | 2026-07-01 | Done | scope | Resolved |",
	}
}

func perSectionDoc() []string {
	return []string{
		"<!-- section:design -->",
		"<!-- subsection:questions_issues -->",
		"<!-- table:design_questions -->",
		"| Question ID | Question | Date | Answer | Status |",
		"|---|---|---|---|---|",
		"| design-Q1 | Storage engine? | 2026-08-01 | | Open |",
		"| design-Q2 | Wire format? | 2026-08-02 | protobuf | Open |",
	}
}

func TestParseTable_Legacy(t *testing.T) {
	table, err := ParseTable(legacyDoc(), LegacyTableID, "")
	require.NoError(t, err)

	assert.True(t, table.Legacy)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "Q-001", table.Rows[0].ID)
	assert.Equal(t, "overview", table.Rows[0].Target)
	assert.Equal(t, StatusOpen, table.Rows[0].Status)
	assert.Equal(t, StatusResolved, table.Rows[2].Status)
}

func TestParseTable_PerSectionScopesTarget(t *testing.T) {
	table, err := ParseTable(perSectionDoc(), PerSectionTableID("design"), "design")
	require.NoError(t, err)

	assert.False(t, table.Legacy)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "design", table.Rows[0].Target)
	assert.Equal(t, "design", table.Rows[1].Target)
}

func TestParseTable_MissingIsParseFailure(t *testing.T) {
	_, err := ParseTable([]string{"no table here"}, LegacyTableID, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestParseTable_BadRowWidth(t *testing.T) {
	doc := legacyDoc()
	doc = append(doc, "| Q-004 | too few cells |")
	_, err := ParseTable(doc, LegacyTableID, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "columns")
}

func TestQuestionLifecyclePredicates(t *testing.T) {
	assert.True(t, Question{Answer: "", Status: StatusOpen}.Open())
	assert.False(t, Question{Answer: "", Status: StatusOpen}.Answered())
	assert.True(t, Question{Answer: "yes", Status: StatusOpen}.Answered())
	assert.False(t, Question{Answer: "yes", Status: StatusResolved}.Answered())
	assert.False(t, Question{Answer: "", Status: StatusResolved}.Open())
}

func TestNextID(t *testing.T) {
	legacy, err := ParseTable(legacyDoc(), LegacyTableID, "")
	require.NoError(t, err)
	assert.Equal(t, "Q-004", legacy.NextID())

	per, err := ParseTable(perSectionDoc(), PerSectionTableID("design"), "design")
	require.NoError(t, err)
	assert.Equal(t, "design-Q3", per.NextID())
}

func TestNextID_ResolvedRowsStillOccupyTheirID(t *testing.T) {
	doc := []string{
		"<!-- table:open_questions -->",
		"| Question ID | Question | Date | Answer | Section Target | Resolution Status |",
		"|---|---|---|---|---|---|",
		"| Q-007 | settled | 2026-07-01 | yes | scope | Resolved |",
	}
	table, err := ParseTable(doc, LegacyTableID, "")
	require.NoError(t, err)
	assert.Equal(t, "Q-008", table.NextID())
}

func TestInsert_AppendsRow(t *testing.T) {
	doc := perSectionDoc()
	out, id, err := Insert(doc, PerSectionTableID("design"), "design", Question{
		Text: "Retention period?",
		Date: "2026-08-27",
	})
	require.NoError(t, err)
	assert.Equal(t, "design-Q3", id)
	assert.Len(t, out, len(doc)+1)
	assert.Contains(t, out[len(doc)], "Retention period?")
	assert.Contains(t, out[len(doc)], "Open")
}

func TestInsert_SuppressesSemanticDuplicate(t *testing.T) {
	doc := perSectionDoc()
	out, id, err := Insert(doc, PerSectionTableID("design"), "design", Question{
		Text: "  storage   ENGINE?  ",
		Date: "2026-08-27",
	})
	require.NoError(t, err)
	assert.Equal(t, "design-Q1", id)
	assert.Equal(t, doc, out)
}

func TestInsert_SanitizesPipesInText(t *testing.T) {
	doc := perSectionDoc()
	out, _, err := Insert(doc, PerSectionTableID("design"), "design", Question{
		Text: "A | B or C?",
		Date: "2026-08-27",
	})
	require.NoError(t, err)

	row := out[len(out)-1]
	assert.Contains(t, row, "A / B or C?")
	assert.Equal(t, strings.Count(doc[3], "|"), strings.Count(row, "|"))
}

func TestInsertBatch_ReturnsIDPerQuestion(t *testing.T) {
	doc := perSectionDoc()
	out, ids, err := InsertBatch(doc, PerSectionTableID("design"), "design", []Question{
		{Text: "New question one", Date: "2026-08-27"},
		{Text: "Storage engine?", Date: "2026-08-27"}, // duplicate of design-Q1
		{Text: "New question two", Date: "2026-08-27"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"design-Q3", "design-Q1", "design-Q4"}, ids)
	assert.Len(t, out, len(doc)+2)
}

func TestAnswer_KeepsStatusOpen(t *testing.T) {
	out, err := Answer(legacyDoc(), LegacyTableID, "", "Q-001", "Ten million")
	require.NoError(t, err)

	table, err := ParseTable(out, LegacyTableID, "")
	require.NoError(t, err)
	q, ok := table.FindByID("Q-001")
	require.True(t, ok)
	assert.Equal(t, "Ten million", q.Answer)
	assert.Equal(t, StatusOpen, q.Status)
	assert.True(t, q.Answered())
}

func TestResolve_IsIdempotent(t *testing.T) {
	out, changed, err := Resolve(legacyDoc(), LegacyTableID, "", "Q-002")
	require.NoError(t, err)
	assert.True(t, changed)

	again, changed, err := Resolve(out, LegacyTableID, "", "Q-002")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, out, again)
}

func TestResolve_UnknownID(t *testing.T) {
	_, _, err := Resolve(legacyDoc(), LegacyTableID, "", "Q-999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestResolveBatch_CountsActualChanges(t *testing.T) {
	out, changed, err := ResolveBatch(legacyDoc(), LegacyTableID, "", []string{"Q-001", "Q-003"})
	require.NoError(t, err)
	assert.Equal(t, 1, changed) // Q-003 was already resolved

	table, err := ParseTable(out, LegacyTableID, "")
	require.NoError(t, err)
	q, _ := table.FindByID("Q-001")
	assert.Equal(t, StatusResolved, q.Status)
}

func TestOpenForAndAnsweredFor(t *testing.T) {
	table, err := ParseTable(legacyDoc(), LegacyTableID, "")
	require.NoError(t, err)

	open := table.OpenFor("overview")
	require.Len(t, open, 1)
	assert.Equal(t, "Q-001", open[0].ID)

	answered := table.AnsweredFor("overview")
	require.Len(t, answered, 1)
	assert.Equal(t, "Q-002", answered[0].ID)

	assert.Empty(t, table.OpenFor("scope"))
}

func TestEmptyTableLines(t *testing.T) {
	lines := EmptyTableLines("design_questions", false)
	require.Len(t, lines, 3)
	assert.Equal(t, "<!-- table:design_questions -->", lines[0])
	assert.Contains(t, lines[1], "Question ID")
	assert.Contains(t, lines[1], "Status")
	assert.NotContains(t, lines[1], "Section Target")

	doc := lines
	table, err := ParseTable(doc, "design_questions", "design")
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, NormalizeText("What  IS\tthe budget?"), NormalizeText("what is the budget?"))
}
