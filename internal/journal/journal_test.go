package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordStepAndHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordStep(ctx, Step{
		Document: "plan.md", Target: "overview", Action: "drafted", Detail: "from 0 prior sections", Changed: true,
	}))
	require.NoError(t, s.RecordStep(ctx, Step{
		Document: "plan.md", Target: "design", Action: "blocked", Detail: "waiting for 2 answers",
	}))
	require.NoError(t, s.RecordStep(ctx, Step{
		Document: "other.md", Target: "overview", Action: "drafted", Changed: true,
	}))

	steps, err := s.StepHistory(ctx, "plan.md", 10)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	// Newest first.
	assert.Equal(t, "design", steps[0].Target)
	assert.False(t, steps[0].Changed)
	assert.Equal(t, "overview", steps[1].Target)
	assert.True(t, steps[1].Changed)
}

func TestStepHistory_RespectsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordStep(ctx, Step{Document: "plan.md", Target: "overview", Action: "drafted"}))
	}

	steps, err := s.StepHistory(ctx, "plan.md", 3)
	require.NoError(t, err)
	assert.Len(t, steps, 3)
}

func TestRecordRepairs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordRepairs(ctx, "plan.md", []string{
		"section risks_open_issues: inserted missing subsection:open_questions and table:open_questions with canonical header",
	}))
	require.NoError(t, s.RecordRepairs(ctx, "plan.md", nil))
}

func TestRecordGateResult(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.RecordGateResult(context.Background(), "plan.md", "consistency", true, 0, 2))
}
