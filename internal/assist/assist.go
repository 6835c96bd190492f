// Package assist is the boundary to the external text-completion
// collaborator. The core treats all four operations as black boxes: responses
// are checked for required fields and cleaned of echoed wrappers, nothing
// more. Calls block; cancellation is the caller's context to impose.
package assist

import (
	"context"
	"fmt"

	"specloom/internal/policy"
)

// ContextSection is one prior completed section handed along as drafting
// context.
type ContextSection struct {
	ID   string
	Body string
}

// AnsweredQuestion is a ledger row ready to be folded into prose.
type AnsweredQuestion struct {
	ID       string
	Question string
	Answer   string
}

// QuestionSuggestion is one question proposed by the collaborator.
type QuestionSuggestion struct {
	Question  string `json:"question"`
	Target    string `json:"target"`
	Rationale string `json:"rationale"`
}

// ReviewIssue is one finding from a review gate.
type ReviewIssue struct {
	Severity    string `json:"severity"`
	Section     string `json:"section"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// ReviewPatch is a proposed section replacement. It is subject to structural
// vetting before it may be merged.
type ReviewPatch struct {
	Section    string `json:"section"`
	Suggestion string `json:"suggestion"`
	Rationale  string `json:"rationale,omitempty"`
}

// ReviewResult is the full outcome of one gate run.
type ReviewResult struct {
	Passed  bool          `json:"passed"`
	Issues  []ReviewIssue `json:"issues"`
	Patches []ReviewPatch `json:"patches"`
	Summary string        `json:"summary"`
}

// Warnings counts the review issues below error severity.
func (r *ReviewResult) Warnings() int {
	n := 0
	for _, iss := range r.Issues {
		if iss.Severity != "error" {
			n++
		}
	}
	return n
}

// Errors counts the review issues at error severity.
func (r *ReviewResult) Errors() int {
	return len(r.Issues) - r.Warnings()
}

// Assistant is the completion-service contract: draft a section, generate
// questions about it, integrate answers into it, or review a scope of
// sections against rules.
type Assistant interface {
	Draft(ctx context.Context, sectionID, currentBody string, priorContext []ContextSection, format policy.OutputFormat) (string, error)
	GenerateQuestions(ctx context.Context, sectionID, currentBody string, priorContext []ContextSection) ([]QuestionSuggestion, error)
	Integrate(ctx context.Context, sectionID, currentBody string, answered []AnsweredQuestion, priorContext []ContextSection) (string, error)
	Review(ctx context.Context, gateID string, sections []ContextSection, rules string) (*ReviewResult, error)
}

// generator is the single primitive each provider supplies.
type generator interface {
	generate(ctx context.Context, prompt string) (string, error)
}

// Client implements Assistant on top of any provider's generate primitive.
type Client struct {
	gen     generator
	prompts *PromptBuilder
}

func newClient(gen generator) *Client {
	return &Client{gen: gen, prompts: &PromptBuilder{}}
}

// FromConfig builds the configured provider.
func FromConfig(ctx context.Context, cfg *policy.Config) (*Client, error) {
	if cfg.AI.APIKey == "" {
		return nil, fmt.Errorf("AI API key not configured")
	}
	switch cfg.AI.Provider {
	case "gemini", "":
		return NewGemini(ctx, cfg.AI.APIKey, cfg.AI.Model)
	case "openai":
		return NewOpenAI(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.BaseURL), nil
	default:
		return nil, &policy.ConfigurationError{Msg: fmt.Sprintf("unknown AI provider %q", cfg.AI.Provider)}
	}
}

func (c *Client) Draft(ctx context.Context, sectionID, currentBody string, priorContext []ContextSection, format policy.OutputFormat) (string, error) {
	prompt := c.prompts.BuildDraftPrompt(sectionID, currentBody, priorContext, format)
	resp, err := c.gen.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := cleanOutput(resp)
	if text == "" {
		return "", fmt.Errorf("draft for %s: empty response", sectionID)
	}
	return text, nil
}

func (c *Client) GenerateQuestions(ctx context.Context, sectionID, currentBody string, priorContext []ContextSection) ([]QuestionSuggestion, error) {
	prompt := c.prompts.BuildQuestionsPrompt(sectionID, currentBody, priorContext)
	resp, err := c.gen.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseQuestions(resp, sectionID)
}

func (c *Client) Integrate(ctx context.Context, sectionID, currentBody string, answered []AnsweredQuestion, priorContext []ContextSection) (string, error) {
	prompt := c.prompts.BuildIntegratePrompt(sectionID, currentBody, answered, priorContext)
	resp, err := c.gen.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	text := cleanOutput(resp)
	if text == "" {
		return "", fmt.Errorf("integrate for %s: empty response", sectionID)
	}
	return text, nil
}

func (c *Client) Review(ctx context.Context, gateID string, sections []ContextSection, rules string) (*ReviewResult, error) {
	prompt := c.prompts.BuildReviewPrompt(gateID, sections, rules)
	resp, err := c.gen.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return ParseReviewResult(resp)
}
