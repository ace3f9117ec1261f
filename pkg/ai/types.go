package ai

import (
	"context"

	"github.com/noah-isme/gema-kg/internal/models"
)

// RubricItem is one criterion the grader scores against.
type RubricItem struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Points      float64 `json:"points"`
}

// GradingInput contains the artefacts needed to grade a written submission.
type GradingInput struct {
	AssignmentName  string
	Instructions    string
	SubmissionText  string
	Rubric          []RubricItem
	MaxScore        float64
	SectionTitles   []string
	AdditionalNotes string
}

// GradingResult is the structured feedback returned by the grader. Outcomes list one entry
// per question where the student lost points.
type GradingResult struct {
	Grade    float64                 `json:"grade"`
	Feedback string                  `json:"feedback"`
	Outcomes []models.GradingOutcome `json:"outcomes"`
	Raw      map[string]interface{}  `json:"raw,omitempty"`
}

// Grader describes a model capable of grading submissions against a rubric.
type Grader interface {
	Grade(ctx context.Context, input GradingInput) (GradingResult, error)
}
