package assist

import (
	"strings"
	"testing"

	"specloom/internal/policy"

	"github.com/stretchr/testify/assert"
)

func TestBuildDraftPrompt_FormatInstructions(t *testing.T) {
	pb := &PromptBuilder{}
	prior := []ContextSection{{ID: "overview", Body: "The system ingests events."}}

	prose := pb.BuildDraftPrompt("requirements", "", prior, policy.FormatProse)
	assert.Contains(t, prose, "requirements")
	assert.Contains(t, prose, "The system ingests events.")
	assert.Contains(t, prose, "paragraphs")
	assert.Contains(t, prose, "FORMAT WARNING")

	bullets := pb.BuildDraftPrompt("requirements", "", prior, policy.FormatBullets)
	assert.Contains(t, bullets, "bullet list")

	table := pb.BuildDraftPrompt("requirements", "", prior, policy.FormatTable)
	assert.Contains(t, table, "markdown table")
}

func TestBuildQuestionsPrompt_DemandsJSONArray(t *testing.T) {
	pb := &PromptBuilder{}
	prompt := pb.BuildQuestionsPrompt("scope", "partial body", nil)

	assert.Contains(t, prompt, "JSON array")
	assert.Contains(t, prompt, `"scope"`)
	assert.Contains(t, prompt, "partial body")
	assert.NotContains(t, prompt, "Prior completed sections")
}

func TestBuildIntegratePrompt_ListsEveryAnswer(t *testing.T) {
	pb := &PromptBuilder{}
	answered := []AnsweredQuestion{
		{ID: "scope-Q1", Question: "Which regions?", Answer: "EU only"},
		{ID: "scope-Q2", Question: "When?", Answer: "Q4"},
	}
	prompt := pb.BuildIntegratePrompt("scope", "Current text.", answered, nil)

	assert.Contains(t, prompt, "scope-Q1")
	assert.Contains(t, prompt, "EU only")
	assert.Contains(t, prompt, "scope-Q2")
	assert.Contains(t, prompt, "Current text.")
	assert.Contains(t, prompt, "FORMAT WARNING")
}

func TestBuildReviewPrompt_IncludesRulesAndSections(t *testing.T) {
	pb := &PromptBuilder{}
	sections := []ContextSection{
		{ID: "overview", Body: "A."},
		{ID: "constraints", Body: "B."},
	}
	prompt := pb.BuildReviewPrompt("consistency", sections, "No contradictions allowed.")

	assert.Contains(t, prompt, "consistency")
	assert.Contains(t, prompt, "No contradictions allowed.")
	assert.Contains(t, prompt, "### overview")
	assert.Contains(t, prompt, "### constraints")
	assert.Contains(t, prompt, `"passed"`)
	assert.True(t, strings.Index(prompt, "### overview") < strings.Index(prompt, "### constraints"))
}
