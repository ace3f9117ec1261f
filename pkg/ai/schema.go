package ai

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const gradingResultSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["grade", "feedback", "outcomes"],
  "properties": {
    "grade": {"type": "number", "minimum": 0},
    "feedback": {"type": "string"},
    "outcomes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["question", "justification", "scoreAwarded", "rubricCriteriaMatched", "sourceTextExcerpts"],
        "properties": {
          "question": {"type": "string", "minLength": 1},
          "justification": {"type": "string"},
          "scoreAwarded": {"type": "number"},
          "rubricCriteriaMatched": {"type": "array", "items": {"type": "string"}},
          "sourceTextExcerpts": {"type": "array", "items": {"type": "string"}},
          "criteriaDescriptions": {"type": "object", "additionalProperties": {"type": "string"}}
        }
      }
    }
  }
}`

var gradingSchema = jsonschema.MustCompileString("grading_result.schema.json", gradingResultSchema)

// parseGradingResponse validates the model output against the grading schema before decoding it.
func parseGradingResponse(content string, maxScore float64) (GradingResult, error) {
	var raw interface{}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return GradingResult{}, fmt.Errorf("parse grading json: %w", err)
	}
	if err := gradingSchema.Validate(raw); err != nil {
		return GradingResult{}, fmt.Errorf("grading response rejected: %w", err)
	}

	var result GradingResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return GradingResult{}, fmt.Errorf("parse grading json: %w", err)
	}
	if maxScore > 0 && result.Grade > maxScore {
		result.Grade = maxScore
	}
	for i := range result.Outcomes {
		if result.Outcomes[i].RubricCriteriaMatched == nil {
			result.Outcomes[i].RubricCriteriaMatched = []string{}
		}
		if result.Outcomes[i].SourceTextExcerpts == nil {
			result.Outcomes[i].SourceTextExcerpts = []string{}
		}
	}
	return result, nil
}
