package validate

import (
	"fmt"
	"strings"
)

// ErrorKind discriminates the StructuralError family.
type ErrorKind string

const (
	KindDuplicateSection ErrorKind = "duplicate_section"
	KindMalformedMarker  ErrorKind = "malformed_marker"
	KindInvalidSpan      ErrorKind = "invalid_span"
	KindTableSchema      ErrorKind = "table_schema"
	KindOrphanedLock     ErrorKind = "orphaned_lock"
	KindMissingMarker    ErrorKind = "missing_marker"
)

// StructuralError is one validation finding. The validator collects every
// finding; raise-on-first call paths surface the first one as an error.
type StructuralError struct {
	Kind  ErrorKind
	ID    string
	Lines []int
	Msg   string
}

func (e *StructuralError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	if e.ID != "" {
		sb.WriteString(": " + e.ID)
	}
	if e.Msg != "" {
		sb.WriteString(": " + e.Msg)
	}
	if len(e.Lines) > 0 {
		parts := make([]string, len(e.Lines))
		for i, n := range e.Lines {
			parts[i] = fmt.Sprintf("%d", n)
		}
		sb.WriteString(" (line " + strings.Join(parts, ", ") + ")")
	}
	return sb.String()
}

// InvalidSpanError builds the error raised when an edit is attempted against
// out-of-bounds or inverted span boundaries.
func InvalidSpanError(regionID string, start, end int) *StructuralError {
	return &StructuralError{
		Kind:  KindInvalidSpan,
		ID:    regionID,
		Lines: []int{start, end},
		Msg:   fmt.Sprintf("invalid span [%d, %d)", start, end),
	}
}
