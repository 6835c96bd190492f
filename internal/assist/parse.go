package assist

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// reviewResultSchema is the contract a review response must satisfy before
// its patches are even looked at.
const reviewResultSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["passed", "summary"],
  "properties": {
    "passed": {"type": "boolean"},
    "summary": {"type": "string"},
    "issues": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["severity", "section", "description"],
        "properties": {
          "severity": {"enum": ["error", "warning"]},
          "section": {"type": "string"},
          "description": {"type": "string"},
          "suggestion": {"type": "string"}
        }
      }
    },
    "patches": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["section", "suggestion"],
        "properties": {
          "section": {"type": "string"},
          "suggestion": {"type": "string"},
          "rationale": {"type": "string"}
        }
      }
    }
  }
}`

var (
	reviewSchemaOnce sync.Once
	reviewSchema     *jsonschema.Schema
	reviewSchemaErr  error
)

func compiledReviewSchema() (*jsonschema.Schema, error) {
	reviewSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("review_result.schema.json", strings.NewReader(reviewResultSchema)); err != nil {
			reviewSchemaErr = err
			return
		}
		reviewSchema, reviewSchemaErr = compiler.Compile("review_result.schema.json")
	})
	return reviewSchema, reviewSchemaErr
}

// ParseReviewResult extracts, schema-validates and decodes a review response.
func ParseReviewResult(resp string) (*ReviewResult, error) {
	raw := extractJSON(resp, '{', '}')
	if raw == "" {
		return nil, fmt.Errorf("review response contains no JSON object")
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("review response is not valid JSON: %w", err)
	}
	schema, err := compiledReviewSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile review schema: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("review response failed schema validation: %w", err)
	}

	var result ReviewResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// parseQuestions decodes the question-generation response, dropping entries
// with no question text and defaulting empty targets to the section asked
// about.
func parseQuestions(resp, sectionID string) ([]QuestionSuggestion, error) {
	raw := extractJSON(resp, '[', ']')
	if raw == "" {
		return nil, fmt.Errorf("questions response contains no JSON array")
	}

	var suggestions []QuestionSuggestion
	if err := json.Unmarshal([]byte(raw), &suggestions); err != nil {
		return nil, fmt.Errorf("questions response is not a valid JSON array: %w", err)
	}

	out := make([]QuestionSuggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if strings.TrimSpace(s.Question) == "" {
			continue
		}
		if strings.TrimSpace(s.Target) == "" {
			s.Target = sectionID
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("questions response contained no usable questions")
	}
	return out, nil
}

// extractJSON pulls the outermost open..close run out of possibly-fenced,
// possibly-chatty model output.
func extractJSON(text string, open, close byte) string {
	text = cleanOutput(text)
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// cleanOutput strips the markdown fence wrappers models like to add.
func cleanOutput(text string) string {
	text = strings.TrimSpace(text)
	for _, fence := range []string{"```json", "```markdown", "```"} {
		if strings.HasPrefix(text, fence) {
			text = strings.TrimPrefix(text, fence)
			text = strings.TrimSuffix(text, "```")
			break
		}
	}
	return strings.TrimSpace(text)
}
