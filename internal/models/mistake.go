package models

import "time"

// Mistake is a deficiency found in one answer of one submission. Mistakes are append-only:
// apart from analytics annotations they are never modified once recorded.
type Mistake struct {
	ID                  string    `json:"_id,omitempty"`
	Key                 string    `json:"_key,omitempty"`
	Question            string    `json:"question"`
	Justification       string    `json:"justification"`
	ScoreAwarded        float64   `json:"scoreAwarded"`
	RubricCriteriaNames []string  `json:"rubricCriteriaNames"`
	StudentID           string    `json:"studentId"`
	SubmissionID        string    `json:"submissionId"`
	CourseID            string    `json:"courseId"`
	GradingPass         int       `json:"gradingPass"`
	ClusterID           *int      `json:"clusterId,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
}

// GradingOutcome is one per-question result produced by a grader.
type GradingOutcome struct {
	Question              string            `json:"question"`
	Justification         string            `json:"justification"`
	ScoreAwarded          float64           `json:"scoreAwarded"`
	RubricCriteriaMatched []string          `json:"rubricCriteriaMatched"`
	SourceTextExcerpts    []string          `json:"sourceTextExcerpts"`
	CriteriaDescriptions  map[string]string `json:"criteriaDescriptions,omitempty"`
}
