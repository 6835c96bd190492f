// Package review resolves which sections a review gate inspects and
// structurally vets the patches a review proposes before any of them may be
// merged.
package review

import (
	"fmt"
	"strings"

	"specloom/internal/assist"
	"specloom/internal/editor"
	"specloom/internal/marker"
	"specloom/internal/policy"
)

// ResolveScope turns a scope policy into the concrete, ordered list of
// section ids the gate inspects. Prior-sections mode walks the workflow order
// up to (excluding) the gate and skips other gates; entire-document mode
// returns every section id; explicit mode preserves its literal order.
func ResolveScope(spec policy.ScopeSpec, gateID string, order []string, lines []string) ([]string, error) {
	switch spec.Kind {
	case policy.ScopeCurrentSection:
		// The section immediately preceding the gate in the workflow order.
		var current string
		for _, target := range order {
			if name, isGate := marker.IsGateTarget(target); isGate {
				if name == gateID {
					if current == "" {
						return nil, fmt.Errorf("gate %s has no preceding section for current_section scope", gateID)
					}
					return []string{current}, nil
				}
				continue
			}
			current = target
		}
		return nil, fmt.Errorf("gate %s not present in workflow order", gateID)

	case policy.ScopeAllPrior:
		var ids []string
		for _, target := range order {
			if name, isGate := marker.IsGateTarget(target); isGate {
				if name == gateID {
					return ids, nil
				}
				continue
			}
			ids = append(ids, target)
		}
		return nil, fmt.Errorf("gate %s not present in workflow order", gateID)

	case policy.ScopeEntireDocument:
		return marker.SectionIDs(lines), nil

	case policy.ScopeExplicit:
		return append([]string(nil), spec.Sections...), nil

	default:
		return nil, &policy.ConfigurationError{Msg: fmt.Sprintf("unknown scope kind %q", spec.Kind)}
	}
}

// ValidatePatch vets one proposed patch: the target section must exist, the
// suggestion must be non-empty, and it may not smuggle in marker syntax of
// its own.
func ValidatePatch(lines []string, patch assist.ReviewPatch) error {
	if _, ok := marker.FindSectionSpan(lines, patch.Section); !ok {
		return fmt.Errorf("patch targets unknown section %q", patch.Section)
	}
	if strings.TrimSpace(patch.Suggestion) == "" {
		return fmt.Errorf("patch for section %q has empty suggestion", patch.Section)
	}
	for _, line := range strings.Split(patch.Suggestion, "\n") {
		if marker.IsStructuralMarker(line) {
			return fmt.Errorf("patch for section %q contains marker syntax: %s",
				patch.Section, strings.TrimSpace(line))
		}
	}
	return nil
}

// ApplyOutcome describes what happened to a batch of patches.
type ApplyOutcome struct {
	Lines    []string
	Applied  []string // section ids patched
	Rejected []string // one message per structurally invalid patch
	Held     int      // valid patches left for human review
}

// ApplyPatches enforces the gate's auto-apply policy across a batch: never
// leaves everything for a human, always applies each structurally valid
// patch, and if_validation_passes applies only when the whole batch validated
// (partial application is disallowed).
func ApplyPatches(lines []string, patches []assist.ReviewPatch, pol policy.SectionPolicy) (*ApplyOutcome, error) {
	out := &ApplyOutcome{Lines: append([]string(nil), lines...)}

	valid := make([]assist.ReviewPatch, 0, len(patches))
	for _, p := range patches {
		if err := ValidatePatch(out.Lines, p); err != nil {
			out.Rejected = append(out.Rejected, err.Error())
			continue
		}
		valid = append(valid, p)
	}

	switch pol.AutoApplyPatches {
	case policy.ApplyNever:
		out.Held = len(valid)
		return out, nil
	case policy.ApplyIfAllValid:
		if len(out.Rejected) > 0 {
			out.Held = len(valid)
			return out, nil
		}
	case policy.ApplyAlways:
	default:
		return nil, &policy.ConfigurationError{Msg: fmt.Sprintf("unknown auto_apply_patches %q", pol.AutoApplyPatches)}
	}

	for _, p := range valid {
		span, ok := marker.FindSectionSpan(out.Lines, p.Section)
		if !ok {
			out.Rejected = append(out.Rejected, fmt.Sprintf("section %q vanished before patch application", p.Section))
			continue
		}
		end := editor.BodyEnd(out.Lines, span)
		patched, err := editor.ReplaceBody(out.Lines, span.Start, end, p.Section, p.Suggestion, pol)
		if err != nil {
			return nil, fmt.Errorf("applying patch to %s: %w", p.Section, err)
		}
		out.Lines = patched
		out.Applied = append(out.Applied, p.Section)
	}
	return out, nil
}
