package dto

import (
	"time"

	"github.com/noah-isme/gema-kg/internal/models"
)

// SubmissionCreateRequest stores the extracted text of a student's answer.
type SubmissionCreateRequest struct {
	StudentID    string `json:"student_id" validate:"required"`
	CourseID     string `json:"course_id" validate:"required"`
	AssignmentID string `json:"assignment_id" validate:"required"`
	FileName     string `json:"file_name" validate:"omitempty,max=255"`
	Content      string `json:"content" validate:"required"`
}

// GradingOutcomeRequest is one per-question result supplied by a grader.
type GradingOutcomeRequest struct {
	Question              string            `json:"question" validate:"required"`
	Justification         string            `json:"justification"`
	ScoreAwarded          float64           `json:"score_awarded"`
	RubricCriteriaMatched []string          `json:"rubric_criteria_matched" validate:"dive,required"`
	SourceTextExcerpts    []string          `json:"source_text_excerpts"`
	CriteriaDescriptions  map[string]string `json:"criteria_descriptions,omitempty"`
}

// GradeRequest finalises a grade and records the mistakes behind it.
type GradeRequest struct {
	Grade    *float64                `json:"grade" validate:"required,gte=0"`
	Feedback string                  `json:"feedback" validate:"omitempty,max=10000"`
	Outcomes []GradingOutcomeRequest `json:"outcomes" validate:"dive"`
	Regrade  bool                    `json:"regrade"`
}

// RubricCriterionRequest describes one rubric line for automatic grading.
type RubricCriterionRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Points      float64 `json:"points" validate:"gte=0"`
}

// AutoGradeRequest asks the configured grader to grade a submission.
type AutoGradeRequest struct {
	Rubric   []RubricCriterionRequest `json:"rubric" validate:"required,min=1,dive"`
	MaxScore float64                  `json:"max_score" validate:"gte=0"`
	Notes    string                   `json:"notes" validate:"omitempty,max=5000"`
	Regrade  bool                     `json:"regrade"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID           string     `json:"id"`
	StudentID    string     `json:"student_id"`
	CourseID     string     `json:"course_id"`
	AssignmentID string     `json:"assignment_id"`
	FileName     string     `json:"file_name"`
	Grade        *float64   `json:"grade"`
	Feedback     string     `json:"feedback"`
	Graded       bool       `json:"graded"`
	GradedAt     *time.Time `json:"graded_at"`
	GradingPass  int        `json:"grading_pass"`
	CreatedAt    time.Time  `json:"created_at"`
}

// GradeResponse reports a graded submission and the mistakes recorded for it.
type GradeResponse struct {
	Submission SubmissionResponse `json:"submission"`
	MistakeIDs []string           `json:"mistake_ids"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	return SubmissionResponse{
		ID:           model.ID,
		StudentID:    model.StudentID,
		CourseID:     model.CourseID,
		AssignmentID: model.AssignmentID,
		FileName:     model.FileName,
		Grade:        model.Grade,
		Feedback:     model.Feedback,
		Graded:       model.Graded,
		GradedAt:     model.GradedAt,
		GradingPass:  model.GradingPass,
		CreatedAt:    model.CreatedAt,
	}
}

// ToOutcome converts the request into the recorder's outcome model.
func (r GradingOutcomeRequest) ToOutcome() models.GradingOutcome {
	criteria := r.RubricCriteriaMatched
	if criteria == nil {
		criteria = []string{}
	}
	excerpts := r.SourceTextExcerpts
	if excerpts == nil {
		excerpts = []string{}
	}
	return models.GradingOutcome{
		Question:              r.Question,
		Justification:         r.Justification,
		ScoreAwarded:          r.ScoreAwarded,
		RubricCriteriaMatched: criteria,
		SourceTextExcerpts:    excerpts,
		CriteriaDescriptions:  r.CriteriaDescriptions,
	}
}
