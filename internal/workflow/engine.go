package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"specloom/internal/assist"
	"specloom/internal/editor"
	"specloom/internal/ledger"
	"specloom/internal/marker"
	"specloom/internal/policy"
	"specloom/internal/review"
)

// Action names what a single step did to its selected target.
type Action string

const (
	ActionIntegrated     Action = "integrated"
	ActionDrafted        Action = "drafted"
	ActionQuestionsAdded Action = "questions_added"
	ActionGateRun        Action = "gate_run"
	ActionBlocked        Action = "blocked"
	ActionAllComplete    Action = "all_complete"
)

// StepResult reports one engine invocation: the target it selected, the one
// mutation it made (if any), and the resulting line array.
type StepResult struct {
	Target  string
	Action  Action
	Detail  string
	Lines   []string
	Changed bool
	Blocked bool
}

// Engine walks the workflow order and mutates exactly one target per Step.
type Engine struct {
	assistant assist.Assistant
	cfg       *policy.Config
}

// DefaultDocType is assumed when the document carries no doc_type metadata.
const DefaultDocType = "planning_spec"

func NewEngine(assistant assist.Assistant, cfg *policy.Config) *Engine {
	return &Engine{assistant: assistant, cfg: cfg}
}

func (e *Engine) documentType(lines []string) string {
	if t := marker.Meta(lines)["doc_type"]; t != "" {
		return t
	}
	return DefaultDocType
}

// SelectTarget scans the declared order and returns the first target that is
// neither locked nor complete. Review gates whose persisted result says
// passed are skipped; failed and never-run gates re-select. An empty return
// means every target is done.
func SelectTarget(lines []string, order []string) (string, error) {
	for _, target := range order {
		if gate, isGate := marker.IsGateTarget(target); isGate {
			if r, ok := marker.FindGateResult(lines, gate); ok && r.Passed {
				continue
			}
			return target, nil
		}
		st, err := Classify(lines, target)
		if err != nil {
			return "", err
		}
		if st.State == StateLocked || st.State == StateComplete {
			continue
		}
		return target, nil
	}
	return "", nil
}

// Step selects and processes one target. Exactly one target is mutated per
// invocation; within a section step, integration is fully applied (answers
// marked Resolved) before the blankness re-check decides anything else.
func (e *Engine) Step(ctx context.Context, lines []string) (*StepResult, error) {
	order, err := marker.ParseWorkflowOrder(lines)
	if err != nil {
		return nil, err
	}

	target, err := SelectTarget(lines, order)
	if err != nil {
		return nil, err
	}
	if target == "" {
		return &StepResult{Action: ActionAllComplete, Lines: lines}, nil
	}

	if gate, isGate := marker.IsGateTarget(target); isGate {
		return e.runGate(ctx, lines, order, gate)
	}
	return e.runSection(ctx, lines, order, target)
}

func (e *Engine) runSection(ctx context.Context, lines []string, order []string, sectionID string) (*StepResult, error) {
	pol, err := e.cfg.ForSection(e.documentType(lines), sectionID)
	if err != nil {
		return nil, err
	}
	if pol.Mode == policy.ModeManual {
		return &StepResult{
			Target:  sectionID,
			Action:  ActionBlocked,
			Detail:  "section is policy-managed by a human",
			Lines:   lines,
			Blocked: true,
		}, nil
	}

	st, err := Classify(lines, sectionID)
	if err != nil {
		return nil, err
	}

	// Answered questions are integrated first and exclusively: a completed
	// integration gets the chance to finish the section before any
	// speculative draft is tried on a later step.
	if len(st.Answered) > 0 {
		return e.integrate(ctx, lines, order, sectionID, st.Answered, pol)
	}

	if len(st.Open) > 0 {
		return &StepResult{
			Target:  sectionID,
			Action:  ActionBlocked,
			Detail:  fmt.Sprintf("waiting for %d answers", len(st.Open)),
			Lines:   lines,
			Blocked: true,
		}, nil
	}

	if !st.Blank {
		return &StepResult{Target: sectionID, Action: ActionBlocked, Detail: "nothing to do", Lines: lines, Blocked: true}, nil
	}

	prior := PriorContext(lines, order, sectionID)
	if len(prior) > 0 && pol.Mode != policy.ModeQuestionsFirst {
		return e.draft(ctx, lines, sectionID, prior, pol)
	}
	return e.generateQuestions(ctx, lines, sectionID, prior)
}

func (e *Engine) integrate(ctx context.Context, lines []string, order []string, sectionID string, answered []ledger.Question, pol policy.SectionPolicy) (*StepResult, error) {
	span, _ := marker.FindSectionSpan(lines, sectionID)
	body := SectionBody(lines, span)

	toFold := make([]assist.AnsweredQuestion, 0, len(answered))
	for _, q := range answered {
		toFold = append(toFold, assist.AnsweredQuestion{ID: q.ID, Question: q.Text, Answer: q.Answer})
	}

	newBody, err := e.assistant.Integrate(ctx, sectionID, body, toFold, PriorContext(lines, order, sectionID))
	if err != nil {
		return nil, fmt.Errorf("integrate %s: %w", sectionID, err)
	}

	out, err := editor.ReplaceBody(lines, span.Start, editor.BodyEnd(lines, span), sectionID, newBody, pol)
	if err != nil {
		return nil, err
	}

	// Consumed answers flip to Resolved as part of the same step, before any
	// later blankness re-check can run.
	for _, q := range answered {
		tableID, scope := tableOf(out, q, sectionID)
		out, _, err = ledger.Resolve(out, tableID, scope, q.ID)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", q.ID, err)
		}
	}

	return &StepResult{
		Target:  sectionID,
		Action:  ActionIntegrated,
		Detail:  fmt.Sprintf("folded %d answers into prose", len(answered)),
		Lines:   out,
		Changed: !slices.Equal(out, lines),
	}, nil
}

func (e *Engine) draft(ctx context.Context, lines []string, sectionID string, prior []assist.ContextSection, pol policy.SectionPolicy) (*StepResult, error) {
	span, _ := marker.FindSectionSpan(lines, sectionID)
	body := SectionBody(lines, span)

	text, err := e.assistant.Draft(ctx, sectionID, body, prior, pol.OutputFormat)
	if err != nil {
		return nil, fmt.Errorf("draft %s: %w", sectionID, err)
	}

	out, err := editor.ReplaceBody(lines, span.Start, editor.BodyEnd(lines, span), sectionID, text, pol)
	if err != nil {
		return nil, err
	}
	// A draft whose content sanitizes back to the existing body (or to the
	// bare placeholder) leaves the document at a fixed point; Changed must
	// report that honestly or the run loop can never stop.
	return &StepResult{
		Target:  sectionID,
		Action:  ActionDrafted,
		Detail:  fmt.Sprintf("drafted from %d prior sections", len(prior)),
		Lines:   out,
		Changed: !slices.Equal(out, lines),
	}, nil
}

func (e *Engine) generateQuestions(ctx context.Context, lines []string, sectionID string, prior []assist.ContextSection) (*StepResult, error) {
	span, _ := marker.FindSectionSpan(lines, sectionID)
	body := SectionBody(lines, span)

	suggestions, err := e.assistant.GenerateQuestions(ctx, sectionID, body, prior)
	if err != nil {
		return nil, fmt.Errorf("generate questions for %s: %w", sectionID, err)
	}

	tableID, scope, err := ledgerFor(lines, sectionID)
	if err != nil {
		return nil, err
	}

	today := time.Now().UTC().Format("2006-01-02")
	qs := make([]ledger.Question, 0, len(suggestions))
	for _, s := range suggestions {
		qs = append(qs, ledger.Question{
			Text:   s.Question,
			Date:   today,
			Target: s.Target,
			Status: ledger.StatusOpen,
		})
	}

	out, ids, err := ledger.InsertBatch(lines, tableID, scope, qs)
	if err != nil {
		return nil, err
	}
	// Every suggestion may be a suppressed duplicate, in which case the
	// ledger is untouched and the step is a no-op.
	return &StepResult{
		Target:  sectionID,
		Action:  ActionQuestionsAdded,
		Detail:  fmt.Sprintf("recorded %d questions (%s)", len(ids), strings.Join(ids, ", ")),
		Lines:   out,
		Changed: !slices.Equal(out, lines),
	}, nil
}

// Gate runs one named review gate regardless of where the workflow cursor
// sits. The gate must appear in the declared order.
func (e *Engine) Gate(ctx context.Context, lines []string, gateID string) (*StepResult, error) {
	order, err := marker.ParseWorkflowOrder(lines)
	if err != nil {
		return nil, err
	}
	for _, target := range order {
		if g, isGate := marker.IsGateTarget(target); isGate && g == gateID {
			return e.runGate(ctx, lines, order, gateID)
		}
	}
	return nil, fmt.Errorf("review gate %q not declared in workflow order", gateID)
}

func (e *Engine) runGate(ctx context.Context, lines []string, order []string, gateID string) (*StepResult, error) {
	pol, err := e.cfg.ForSection(e.documentType(lines), gateID)
	if err != nil {
		return nil, err
	}

	scope, err := review.ResolveScope(pol.Scope, gateID, order, lines)
	if err != nil {
		return nil, err
	}

	sections := make([]assist.ContextSection, 0, len(scope))
	for _, id := range scope {
		span, ok := marker.FindSectionSpan(lines, id)
		if !ok {
			return nil, fmt.Errorf("gate %s scope names unknown section %q", gateID, id)
		}
		sections = append(sections, assist.ContextSection{ID: id, Body: SectionBody(lines, span)})
	}

	result, err := e.assistant.Review(ctx, gateID, sections, pol.ReviewRules)
	if err != nil {
		return nil, fmt.Errorf("review gate %s: %w", gateID, err)
	}

	outcome, err := review.ApplyPatches(lines, result.Patches, pol)
	if err != nil {
		return nil, err
	}

	out := writeGateResult(outcome.Lines, marker.GateResult{
		Gate:     gateID,
		Passed:   result.Passed,
		Issues:   result.Errors(),
		Warnings: result.Warnings(),
	})

	detail := fmt.Sprintf("%s: %d issues, %d warnings, %d patches applied, %d held",
		statusWord(result.Passed), result.Errors(), result.Warnings(), len(outcome.Applied), outcome.Held)
	return &StepResult{
		Target:  "review_gate:" + gateID,
		Action:  ActionGateRun,
		Detail:  detail,
		Lines:   out,
		Changed: !slices.Equal(out, lines),
		Blocked: !result.Passed,
	}, nil
}

// writeGateResult replaces the gate's existing result marker in place, or
// appends a new one at the end of the document.
func writeGateResult(lines []string, r marker.GateResult) []string {
	out := append([]string(nil), lines...)
	if existing, ok := marker.FindGateResult(out, r.Gate); ok {
		out[existing.Line] = marker.FormatGateResult(r)
		return out
	}
	return append(out, marker.FormatGateResult(r))
}

func statusWord(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

// tableOf locates the table a ledger row lives in, preferring the
// per-section table when the row's id carries the section prefix.
func tableOf(lines []string, q ledger.Question, sectionID string) (tableID, scope string) {
	if strings.HasPrefix(q.ID, sectionID+"-Q") {
		return ledger.PerSectionTableID(sectionID), sectionID
	}
	return ledger.LegacyTableID, ""
}

// RunResult is the trace of a repeated-invocation run.
type RunResult struct {
	Steps []*StepResult
	Lines []string
}

// Run loops Step until a step blocks, makes no change, or the scan reports
// all targets complete.
func (e *Engine) Run(ctx context.Context, lines []string) (*RunResult, error) {
	run := &RunResult{Lines: lines}
	for {
		step, err := e.Step(ctx, run.Lines)
		if err != nil {
			return run, err
		}
		run.Steps = append(run.Steps, step)
		run.Lines = step.Lines

		if step.Action == ActionAllComplete || step.Blocked || !step.Changed {
			return run, nil
		}
	}
}
