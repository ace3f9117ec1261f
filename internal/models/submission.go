package models

import "time"

// Submission is a student's answer to an assignment. It is graded once per grading pass.
type Submission struct {
	ID           string     `json:"_id,omitempty"`
	Key          string     `json:"_key,omitempty"`
	StudentID    string     `json:"studentId"`
	CourseID     string     `json:"courseId"`
	AssignmentID string     `json:"assignmentId"`
	FileName     string     `json:"fileName"`
	Content      string     `json:"content"`
	Grade        *float64   `json:"grade"`
	Feedback     string     `json:"feedback"`
	Graded       bool       `json:"graded"`
	GradedAt     *time.Time `json:"gradedAt,omitempty"`
	GradingPass  int        `json:"gradingPass"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// IsGraded reports whether the submission has a final grade.
func (s Submission) IsGraded() bool {
	return s.Graded && s.Grade != nil
}
