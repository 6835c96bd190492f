package assist

import (
	"fmt"
	"strings"

	"specloom/internal/policy"
)

// PromptBuilder constructs standardized prompts for the four operations.
type PromptBuilder struct{}

const markerInstruction = "\n**FORMAT WARNING**: Never emit HTML comment markers (`<!-- ... -->`), horizontal rules, or top-level headings. Output plain markdown body text only.\n"

func (pb *PromptBuilder) BuildDraftPrompt(sectionID, currentBody string, prior []ContextSection, format policy.OutputFormat) string {
	var sb strings.Builder
	sb.WriteString("Role: Requirements Engineer. Task: Draft the body of one section of a planning document.\n")
	sb.WriteString(markerInstruction)
	fmt.Fprintf(&sb, "\nSection to draft: %s\n", sectionID)
	writePriorContext(&sb, prior)
	if strings.TrimSpace(currentBody) != "" {
		sb.WriteString("\nCurrent (incomplete) body:\n")
		sb.WriteString(currentBody)
		sb.WriteString("\n")
	}
	sb.WriteString("\n**INSTRUCTION**:\n")
	switch format {
	case policy.FormatBullets:
		sb.WriteString("Write the section as a flat bullet list. One distinct statement per bullet, no duplicates.\n")
	case policy.FormatTable:
		sb.WriteString("Write the section as a single markdown table with a header row.\n")
	default:
		sb.WriteString("Write 2-4 short paragraphs of precise, decision-oriented prose.\n")
	}
	sb.WriteString("Ground every statement in the prior-section context. Do not invent scope the context does not support.\n")
	return sb.String()
}

func (pb *PromptBuilder) BuildQuestionsPrompt(sectionID, currentBody string, prior []ContextSection) string {
	var sb strings.Builder
	sb.WriteString("Role: Requirements Engineer. Task: Identify the open questions blocking one section of a planning document.\n")
	fmt.Fprintf(&sb, "\nSection: %s\n", sectionID)
	writePriorContext(&sb, prior)
	if strings.TrimSpace(currentBody) != "" {
		sb.WriteString("\nCurrent body:\n")
		sb.WriteString(currentBody)
		sb.WriteString("\n")
	}
	sb.WriteString("\n**INSTRUCTION**:\n")
	sb.WriteString("Respond with a JSON array only. Each element: {\"question\": string, \"target\": string, \"rationale\": string}.\n")
	fmt.Fprintf(&sb, "Use %q as target unless the question is about a specific subsection.\n", sectionID)
	sb.WriteString("Ask 2-5 questions a stakeholder must answer before this section can be written. No duplicates, no yes/no padding.\n")
	return sb.String()
}

func (pb *PromptBuilder) BuildIntegratePrompt(sectionID, currentBody string, answered []AnsweredQuestion, prior []ContextSection) string {
	var sb strings.Builder
	sb.WriteString("Role: Requirements Engineer. Task: Fold answered stakeholder questions into a section body.\n")
	sb.WriteString(markerInstruction)
	fmt.Fprintf(&sb, "\nSection: %s\n", sectionID)
	writePriorContext(&sb, prior)
	sb.WriteString("\nCurrent body:\n")
	sb.WriteString(currentBody)
	sb.WriteString("\n\nAnswered questions to integrate:\n")
	for _, a := range answered {
		fmt.Fprintf(&sb, "- [%s] Q: %s\n  A: %s\n", a.ID, a.Question, a.Answer)
	}
	sb.WriteString("\n**INSTRUCTION**:\n")
	sb.WriteString("Rewrite the full section body so every answer above is reflected in the prose. ")
	sb.WriteString("Keep statements the answers do not contradict. Output the complete replacement body.\n")
	return sb.String()
}

func (pb *PromptBuilder) BuildReviewPrompt(gateID string, sections []ContextSection, rules string) string {
	var sb strings.Builder
	sb.WriteString("Role: Reviewer. Task: Review a scope of planning-document sections against the gate rules.\n")
	fmt.Fprintf(&sb, "\nGate: %s\n", gateID)
	if strings.TrimSpace(rules) != "" {
		sb.WriteString("\nRules:\n")
		sb.WriteString(rules)
		sb.WriteString("\n")
	}
	sb.WriteString("\nSections under review:\n")
	for _, s := range sections {
		fmt.Fprintf(&sb, "\n### %s\n%s\n", s.ID, s.Body)
	}
	sb.WriteString("\n**INSTRUCTION**:\n")
	sb.WriteString("Respond with a JSON object only, shaped as:\n")
	sb.WriteString(`{"passed": bool, "issues": [{"severity": "error"|"warning", "section": string, "description": string, "suggestion": string}], "patches": [{"section": string, "suggestion": string, "rationale": string}], "summary": string}` + "\n")
	sb.WriteString("A patch's suggestion is a full replacement body for that section, with no comment markers of any kind.\n")
	return sb.String()
}

func writePriorContext(sb *strings.Builder, prior []ContextSection) {
	if len(prior) == 0 {
		return
	}
	sb.WriteString("\nPrior completed sections, in document order:\n")
	for _, p := range prior {
		fmt.Fprintf(sb, "\n### %s\n%s\n", p.ID, p.Body)
	}
}
