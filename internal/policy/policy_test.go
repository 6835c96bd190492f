package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const sampleConfig = `
document_types:
  planning_spec:
    default:
      mode: auto
      output_format: prose
    sections:
      requirements:
        mode: questions_first
        output_format: bullets
        content_filters: [dedupe_bullets]
      consistency:
        scope: all_prior_sections
        auto_apply_patches: if_validation_passes
        review_rules: "Check that sections do not contradict each other."
      scoped_gate:
        scope: "sections:assumptions,constraints"
ai:
  provider: gemini
  model: gemini-2.0-flash
journal:
  path: specloom.db
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, "specloom.db", cfg.Journal.Path)

	sp, err := cfg.ForSection("planning_spec", "requirements")
	require.NoError(t, err)
	assert.Equal(t, ModeQuestionsFirst, sp.Mode)
	assert.Equal(t, FormatBullets, sp.OutputFormat)
	assert.Equal(t, []ContentFilter{FilterDedupeBullets}, sp.ContentFilters)
}

func TestLoad_EnvOverridesProvider(t *testing.T) {
	t.Setenv("SPECLOOM_AI_PROVIDER", "openai")
	t.Setenv("SPECLOOM_API_KEY", "sk-test")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
}

func TestLoad_RejectsUnknownEnums(t *testing.T) {
	bad := `
document_types:
  planning_spec:
    sections:
      overview:
        mode: freestyle
`
	_, err := Load(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")

	bad = `
document_types:
  planning_spec:
    sections:
      overview:
        content_filters: [sparkle]
`
	_, err = Load(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown content filter")
}

func TestLoad_RejectsUnknownScopeAtUnmarshal(t *testing.T) {
	bad := `
document_types:
  planning_spec:
    sections:
      gate:
        scope: somewhere_else
`
	_, err := Load(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown review scope")
}

func TestForSection_FallsBackToDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	sp, err := cfg.ForSection("planning_spec", "never_mentioned")
	require.NoError(t, err)
	assert.Equal(t, ModeAuto, sp.Mode)
	assert.Equal(t, FormatProse, sp.OutputFormat)
	assert.Equal(t, ApplyNever, sp.AutoApplyPatches)
	assert.Equal(t, ScopeAllPrior, sp.Scope.Kind)
}

func TestForSection_Errors(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	_, err = cfg.ForSection("unknown_type", "overview")
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)

	noDefault := `
document_types:
  minimal:
    sections:
      only_this:
        mode: auto
`
	cfg, err = Load(writeConfig(t, noDefault))
	require.NoError(t, err)
	_, err = cfg.ForSection("minimal", "something_else")
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "no default")
}

func TestParseScope(t *testing.T) {
	spec, err := ParseScope("current_section")
	require.NoError(t, err)
	assert.Equal(t, ScopeCurrentSection, spec.Kind)

	spec, err = ParseScope("entire_document")
	require.NoError(t, err)
	assert.Equal(t, ScopeEntireDocument, spec.Kind)

	spec, err = ParseScope("sections:assumptions, constraints ,interfaces")
	require.NoError(t, err)
	assert.Equal(t, ScopeExplicit, spec.Kind)
	assert.Equal(t, []string{"assumptions", "constraints", "interfaces"}, spec.Sections)
}

func TestParseScope_Invalid(t *testing.T) {
	_, err := ParseScope("everything")
	require.Error(t, err)

	_, err = ParseScope("sections:")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lists no sections")
}
