package workflow

import (
	"context"
	"testing"

	"specloom/internal/assist"
	"specloom/internal/ledger"
	"specloom/internal/marker"
	"specloom/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssistant struct {
	draftText      string
	integratedText string
	questions      []assist.QuestionSuggestion
	reviewResult   *assist.ReviewResult

	draftCalls     int
	integrateCalls int
	questionCalls  int
	reviewCalls    int
}

func (f *fakeAssistant) Draft(_ context.Context, _, _ string, _ []assist.ContextSection, _ policy.OutputFormat) (string, error) {
	f.draftCalls++
	return f.draftText, nil
}

func (f *fakeAssistant) GenerateQuestions(_ context.Context, _, _ string, _ []assist.ContextSection) ([]assist.QuestionSuggestion, error) {
	f.questionCalls++
	return f.questions, nil
}

func (f *fakeAssistant) Integrate(_ context.Context, _, _ string, _ []assist.AnsweredQuestion, _ []assist.ContextSection) (string, error) {
	f.integrateCalls++
	return f.integratedText, nil
}

func (f *fakeAssistant) Review(_ context.Context, _ string, _ []assist.ContextSection, _ string) (*assist.ReviewResult, error) {
	f.reviewCalls++
	return f.reviewResult, nil
}

func testConfig() *policy.Config {
	auto := policy.SectionPolicy{Mode: policy.ModeAuto}
	return &policy.Config{
		DocumentTypes: map[string]policy.DocTypePolicy{
			"planning_spec": {Default: &auto},
		},
	}
}

func configWith(sectionID string, sp policy.SectionPolicy) *policy.Config {
	cfg := testConfig()
	dt := cfg.DocumentTypes["planning_spec"]
	dt.Sections = map[string]policy.SectionPolicy{sectionID: sp}
	cfg.DocumentTypes["planning_spec"] = dt
	return cfg
}

func TestStep_DraftsBlankSectionWithPriorContext(t *testing.T) {
	fake := &fakeAssistant{draftText: "A concrete design emerges here."}
	engine := NewEngine(fake, testConfig())

	step, err := engine.Step(context.Background(), stateDoc())
	require.NoError(t, err)

	assert.Equal(t, "design", step.Target)
	assert.Equal(t, ActionDrafted, step.Action)
	assert.True(t, step.Changed)
	assert.False(t, step.Blocked)
	assert.Equal(t, 1, fake.draftCalls)
	assert.Contains(t, step.Lines, "A concrete design emerges here.")

	st, err := Classify(step.Lines, "design")
	require.NoError(t, err)
	assert.False(t, st.Blank)
}

func TestStep_QuestionsFirstGathersBeforeDrafting(t *testing.T) {
	fake := &fakeAssistant{questions: []assist.QuestionSuggestion{
		{Question: "Which storage engine?", Target: "design"},
		{Question: "What is the latency budget?", Target: "design"},
	}}
	cfg := configWith("design", policy.SectionPolicy{Mode: policy.ModeQuestionsFirst})
	engine := NewEngine(fake, cfg)

	step, err := engine.Step(context.Background(), stateDoc())
	require.NoError(t, err)

	assert.Equal(t, ActionQuestionsAdded, step.Action)
	assert.Equal(t, 0, fake.draftCalls)
	assert.Equal(t, 1, fake.questionCalls)

	table, err := ledger.ParseTable(step.Lines, ledger.PerSectionTableID("design"), "design")
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "design-Q1", table.Rows[0].ID)
	assert.Equal(t, "design-Q2", table.Rows[1].ID)
}

func TestStep_BlocksOnOpenQuestions(t *testing.T) {
	doc := insertAt(stateDoc(), designRowLine,
		"| design-Q1 | Which store? | 2026-08-01 | | Open |")
	engine := NewEngine(&fakeAssistant{}, testConfig())

	step, err := engine.Step(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, ActionBlocked, step.Action)
	assert.True(t, step.Blocked)
	assert.Contains(t, step.Detail, "waiting for 1 answers")
	assert.False(t, step.Changed)
}

func TestStep_IntegratesAnswersAndResolvesThem(t *testing.T) {
	doc := insertAt(stateDoc(), designRowLine,
		"| design-Q1 | Which store? | 2026-08-01 | sqlite | Open |")
	fake := &fakeAssistant{integratedText: "We persist state in sqlite."}
	engine := NewEngine(fake, testConfig())

	step, err := engine.Step(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, ActionIntegrated, step.Action)
	assert.Equal(t, 1, fake.integrateCalls)
	assert.Equal(t, 0, fake.draftCalls)
	assert.Contains(t, step.Lines, "We persist state in sqlite.")

	table, err := ledger.ParseTable(step.Lines, ledger.PerSectionTableID("design"), "design")
	require.NoError(t, err)
	q, ok := table.FindByID("design-Q1")
	require.True(t, ok)
	assert.Equal(t, ledger.StatusResolved, q.Status)
}

func TestStep_ManualSectionBlocks(t *testing.T) {
	cfg := configWith("design", policy.SectionPolicy{Mode: policy.ModeManual})
	engine := NewEngine(&fakeAssistant{}, cfg)

	step, err := engine.Step(context.Background(), stateDoc())
	require.NoError(t, err)
	assert.True(t, step.Blocked)
	assert.Contains(t, step.Detail, "human")
}

func TestStep_AllComplete(t *testing.T) {
	doc := append(stateDoc(),
		"<!-- section_lock:design lock=true -->",
		"<!-- review_gate_result:consistency status=passed issues=0 warnings=0 -->",
	)
	engine := NewEngine(&fakeAssistant{}, testConfig())

	step, err := engine.Step(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, ActionAllComplete, step.Action)
	assert.False(t, step.Changed)
}

func TestStep_RunsGateAndPersistsResult(t *testing.T) {
	doc := append(stateDoc(), "<!-- section_lock:design lock=true -->")
	fake := &fakeAssistant{reviewResult: &assist.ReviewResult{
		Passed:  true,
		Summary: "consistent",
		Issues:  []assist.ReviewIssue{{Severity: "warning", Section: "overview", Description: "vague"}},
	}}
	engine := NewEngine(fake, testConfig())

	step, err := engine.Step(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, "review_gate:consistency", step.Target)
	assert.Equal(t, ActionGateRun, step.Action)
	assert.False(t, step.Blocked)
	assert.Equal(t, 1, fake.reviewCalls)

	r, ok := marker.FindGateResult(step.Lines, "consistency")
	require.True(t, ok)
	assert.True(t, r.Passed)
	assert.Equal(t, 0, r.Issues)
	assert.Equal(t, 1, r.Warnings)
}

func TestStep_FailedGateBlocksAndReplacesResultInPlace(t *testing.T) {
	doc := append(stateDoc(),
		"<!-- section_lock:design lock=true -->",
		"<!-- review_gate_result:consistency status=failed issues=5 warnings=0 -->",
	)
	fake := &fakeAssistant{reviewResult: &assist.ReviewResult{
		Passed:  false,
		Summary: "still inconsistent",
		Issues:  []assist.ReviewIssue{{Severity: "error", Section: "overview", Description: "contradiction"}},
	}}
	engine := NewEngine(fake, testConfig())

	step, err := engine.Step(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, step.Blocked)

	count := 0
	for _, t2 := range marker.Tokenize(step.Lines) {
		if t2.Kind == marker.KindGateResult {
			count++
		}
	}
	assert.Equal(t, 1, count)
	r, _ := marker.FindGateResult(step.Lines, "consistency")
	assert.Equal(t, 1, r.Issues)
}

func TestGate_RunsNamedGateDirectly(t *testing.T) {
	fake := &fakeAssistant{reviewResult: &assist.ReviewResult{Passed: true, Summary: "ok"}}
	engine := NewEngine(fake, testConfig())

	step, err := engine.Gate(context.Background(), stateDoc(), "consistency")
	require.NoError(t, err)
	assert.Equal(t, ActionGateRun, step.Action)

	_, err = engine.Gate(context.Background(), stateDoc(), "phantom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not declared")
}

func TestRun_StopsWhenBlocked(t *testing.T) {
	fake := &fakeAssistant{
		draftText: "Drafted design.",
		reviewResult: &assist.ReviewResult{
			Passed:  false,
			Summary: "not yet",
			Issues:  []assist.ReviewIssue{{Severity: "error", Section: "design", Description: "thin"}},
		},
	}
	engine := NewEngine(fake, testConfig())

	result, err := engine.Run(context.Background(), stateDoc())
	require.NoError(t, err)

	// Drafted design, then the gate ran and failed, which halts the loop.
	require.Len(t, result.Steps, 2)
	assert.Equal(t, ActionDrafted, result.Steps[0].Action)
	assert.Equal(t, ActionGateRun, result.Steps[1].Action)
	assert.True(t, result.Steps[1].Blocked)
	assert.Contains(t, result.Lines, "Drafted design.")
}

func TestStep_SuppressedDuplicateQuestionsAreNoChange(t *testing.T) {
	doc := insertAt(stateDoc(), designRowLine,
		"| design-Q1 | Which store? | 2026-08-01 | sqlite | Resolved |")
	fake := &fakeAssistant{questions: []assist.QuestionSuggestion{
		{Question: "Which  store?", Target: "design"},
	}}
	cfg := configWith("design", policy.SectionPolicy{Mode: policy.ModeQuestionsFirst})
	engine := NewEngine(fake, cfg)

	step, err := engine.Step(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, ActionQuestionsAdded, step.Action)
	assert.False(t, step.Changed)
	assert.Equal(t, doc, step.Lines)
}

func TestRun_StopsWhenDraftLeavesDocumentUnchanged(t *testing.T) {
	// A collaborator that returns only structure: the sanitizer strips it
	// all, the body stays a placeholder, and the document reaches a fixed
	// point after one normalizing pass.
	fake := &fakeAssistant{draftText: "## Only a heading\n---"}
	engine := NewEngine(fake, testConfig())

	result, err := engine.Run(context.Background(), stateDoc())
	require.NoError(t, err)

	require.Len(t, result.Steps, 2)
	first, second := result.Steps[0], result.Steps[1]
	assert.Equal(t, ActionDrafted, first.Action)
	assert.Equal(t, ActionDrafted, second.Action)
	assert.Equal(t, first.Lines, second.Lines)
	assert.True(t, first.Changed)
	assert.False(t, second.Changed)
	assert.Equal(t, 2, fake.draftCalls)
	assert.Contains(t, result.Lines, marker.Placeholder)
}

func TestRun_CompletesDocument(t *testing.T) {
	fake := &fakeAssistant{
		draftText:    "Drafted design.",
		reviewResult: &assist.ReviewResult{Passed: true, Summary: "ok"},
	}
	engine := NewEngine(fake, testConfig())

	result, err := engine.Run(context.Background(), stateDoc())
	require.NoError(t, err)

	last := result.Steps[len(result.Steps)-1]
	assert.Equal(t, ActionAllComplete, last.Action)
	assert.Equal(t, 1, fake.draftCalls)
	assert.Equal(t, 1, fake.reviewCalls)
}
