// Package marker implements the line-oriented marker grammar that gives a
// planning document its structure. A single tokenizing pass classifies every
// line into a typed event stream; span computation and all higher layers are
// built on that stream rather than re-scanning with per-check regexes.
package marker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Placeholder marks body content as not yet produced. It may appear multiple
// times inside a region and inside table rows.
const Placeholder = "<!-- PLACEHOLDER -->"

// workflowEnd terminates a workflow:order block.
const workflowEnd = "-->"

// Kind classifies a tokenized line.
type Kind int

const (
	KindText Kind = iota
	KindSection
	KindSubsection
	KindTable
	KindLock
	KindWorkflowStart
	KindWorkflowItem
	KindWorkflowEnd
	KindMeta
	KindGateResult
	KindPlaceholder
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindSection:
		return "section"
	case KindSubsection:
		return "subsection"
	case KindTable:
		return "table"
	case KindLock:
		return "section_lock"
	case KindWorkflowStart:
		return "workflow_start"
	case KindWorkflowItem:
		return "workflow_item"
	case KindWorkflowEnd:
		return "workflow_end"
	case KindMeta:
		return "meta"
	case KindGateResult:
		return "review_gate_result"
	case KindPlaceholder:
		return "placeholder"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Token is one classified line. Line numbers are 0-indexed into the document.
type Token struct {
	Kind   Kind
	ID     string
	Line   int
	Value  string // lock value or meta value
	Reason string // set for KindMalformed
}

// GateResult is a persisted review gate outcome.
type GateResult struct {
	Gate     string
	Passed   bool
	Issues   int
	Warnings int
	Line     int
}

var (
	sectionRe    = regexp.MustCompile(`^<!-- section:([a-z0-9_]+) -->$`)
	subsectionRe = regexp.MustCompile(`^<!-- subsection:([a-z0-9_]+) -->$`)
	tableRe      = regexp.MustCompile(`^<!-- table:([a-z0-9_]+) -->$`)
	lockRe       = regexp.MustCompile(`^<!-- section_lock:([a-z0-9_]+) lock=(true|false) -->$`)
	lockLooseRe  = regexp.MustCompile(`^<!-- section_lock:([a-z0-9_]+) lock=([^ >]*) -->$`)
	workflowRe   = regexp.MustCompile(`^<!-- workflow:order`)
	metaRe       = regexp.MustCompile(`^<!-- meta:([a-z0-9_]+) (?:value|version)="([^"]*)" -->$`)
	gateRe       = regexp.MustCompile(`^<!-- review_gate_result:([a-z0-9_]+) status=(passed|failed) issues=(\d+) warnings=(\d+) -->$`)
	looseRe      = regexp.MustCompile(`^<!--\s*(section|subsection|table|section_lock|meta|review_gate_result):(\S*)`)
	idRe         = regexp.MustCompile(`^[a-z0-9_]+$`)
	gateTargetRe = regexp.MustCompile(`^review_gate:([a-z0-9_]+)$`)
)

// metaKeys is the fixed allow-list of recognized document metadata keys.
// Unrecognized keys are ignored, not flagged.
var metaKeys = map[string]bool{
	"doc_type": true,
	"version":  true,
	"status":   true,
	"title":    true,
	"owner":    true,
}

// ValidID reports whether id satisfies the marker id grammar.
func ValidID(id string) bool {
	return idRe.MatchString(id)
}

// IsGateTarget reports whether a workflow target is a review gate pseudo-id,
// returning the gate name when it is.
func IsGateTarget(target string) (string, bool) {
	m := gateTargetRe.FindStringSubmatch(target)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Tokenize classifies every line in one pass. Malformed markers (a line that
// opens like a marker but fails its grammar) become KindMalformed tokens so
// the validator can report them without re-scanning.
func Tokenize(lines []string) []Token {
	tokens := make([]Token, 0, len(lines))
	inWorkflow := false

	for i, raw := range lines {
		line := strings.TrimSpace(raw)

		if inWorkflow {
			if line == workflowEnd {
				tokens = append(tokens, Token{Kind: KindWorkflowEnd, Line: i})
				inWorkflow = false
				continue
			}
			if line == "" {
				tokens = append(tokens, Token{Kind: KindText, Line: i})
				continue
			}
			tokens = append(tokens, Token{Kind: KindWorkflowItem, Line: i, Value: strings.TrimSpace(strings.TrimPrefix(line, "- "))})
			continue
		}

		switch {
		case line == Placeholder:
			tokens = append(tokens, Token{Kind: KindPlaceholder, Line: i})
		case workflowRe.MatchString(line):
			tokens = append(tokens, Token{Kind: KindWorkflowStart, Line: i})
			inWorkflow = true
		default:
			tokens = append(tokens, classify(line, i))
		}
	}
	return tokens
}

func classify(line string, i int) Token {
	if m := sectionRe.FindStringSubmatch(line); m != nil {
		return Token{Kind: KindSection, ID: m[1], Line: i}
	}
	if m := subsectionRe.FindStringSubmatch(line); m != nil {
		return Token{Kind: KindSubsection, ID: m[1], Line: i}
	}
	if m := tableRe.FindStringSubmatch(line); m != nil {
		return Token{Kind: KindTable, ID: m[1], Line: i}
	}
	if m := lockRe.FindStringSubmatch(line); m != nil {
		return Token{Kind: KindLock, ID: m[1], Line: i, Value: m[2]}
	}
	if m := lockLooseRe.FindStringSubmatch(line); m != nil {
		return Token{Kind: KindMalformed, ID: m[1], Line: i,
			Reason: fmt.Sprintf("lock value must be true or false, got %q", m[2])}
	}
	if m := metaRe.FindStringSubmatch(line); m != nil {
		if !metaKeys[m[1]] {
			return Token{Kind: KindText, Line: i}
		}
		return Token{Kind: KindMeta, ID: m[1], Line: i, Value: m[2]}
	}
	if m := gateRe.FindStringSubmatch(line); m != nil {
		return Token{Kind: KindGateResult, ID: m[1], Line: i, Value: m[2] + " " + m[3] + " " + m[4]}
	}
	if m := looseRe.FindStringSubmatch(line); m != nil {
		return Token{Kind: KindMalformed, ID: strings.TrimSuffix(m[2], "-->"), Line: i,
			Reason: fmt.Sprintf("malformed %s marker", m[1])}
	}
	return Token{Kind: KindText, Line: i}
}

// IsStructuralMarker reports whether a line is any structural marker. The
// placeholder sentinel is body content, not structure.
func IsStructuralMarker(line string) bool {
	line = strings.TrimSpace(line)
	if line == Placeholder {
		return false
	}
	if workflowRe.MatchString(line) {
		return true
	}
	switch classify(line, 0).Kind {
	case KindText, KindPlaceholder:
		return false
	}
	return true
}

// IsLockMarker reports whether a line is a well-formed section lock marker.
func IsLockMarker(line string) bool {
	return lockRe.MatchString(strings.TrimSpace(line))
}

// Locks collects the lock state per section id. The last occurrence of a lock
// marker for a given id wins.
func Locks(lines []string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range Tokenize(lines) {
		if t.Kind == KindLock {
			out[t.ID] = t.Value == "true"
		}
	}
	return out
}

// Meta collects recognized document metadata.
func Meta(lines []string) map[string]string {
	out := make(map[string]string)
	for _, t := range Tokenize(lines) {
		if t.Kind == KindMeta {
			out[t.ID] = t.Value
		}
	}
	return out
}

// GateResults collects the authoritative result per gate id. A later marker
// for the same gate replaces an earlier one.
func GateResults(lines []string) map[string]GateResult {
	out := make(map[string]GateResult)
	for _, t := range Tokenize(lines) {
		if t.Kind != KindGateResult {
			continue
		}
		parts := strings.Fields(t.Value)
		issues, _ := strconv.Atoi(parts[1])
		warnings, _ := strconv.Atoi(parts[2])
		out[t.ID] = GateResult{
			Gate:     t.ID,
			Passed:   parts[0] == "passed",
			Issues:   issues,
			Warnings: warnings,
			Line:     t.Line,
		}
	}
	return out
}

// FindGateResult returns the authoritative result for one gate.
func FindGateResult(lines []string, gateID string) (GateResult, bool) {
	r, ok := GateResults(lines)[gateID]
	return r, ok
}

// FormatGateResult renders the persisted marker line for a gate outcome.
func FormatGateResult(r GateResult) string {
	status := "failed"
	if r.Passed {
		status = "passed"
	}
	return fmt.Sprintf("<!-- review_gate_result:%s status=%s issues=%d warnings=%d -->",
		r.Gate, status, r.Issues, r.Warnings)
}

// SectionMarker renders the opening marker line for a section id.
func SectionMarker(id string) string {
	return fmt.Sprintf("<!-- section:%s -->", id)
}

// SubsectionMarker renders the opening marker line for a subsection id.
func SubsectionMarker(id string) string {
	return fmt.Sprintf("<!-- subsection:%s -->", id)
}

// TableMarker renders the marker line binding the next pipe block to an id.
func TableMarker(id string) string {
	return fmt.Sprintf("<!-- table:%s -->", id)
}
