package models

// RubricCriterion is a grading dimension. Its identity is the (name, description) pair.
type RubricCriterion struct {
	ID          string  `json:"_id,omitempty"`
	Key         string  `json:"_key,omitempty"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Points      float64 `json:"points"`
	CourseID    string  `json:"courseId,omitempty"`
}
