package models

import "time"

// Roles carried by people vertices.
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
)

// Student represents a learner that submits work and accumulates mistakes.
type Student struct {
	ID        string    `json:"_id,omitempty"`
	Key       string    `json:"_key,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Courses   []string  `json:"courses"`
	CreatedAt time.Time `json:"createdAt"`
}

// IsEnrolled reports whether the student's course list contains courseID.
func (s Student) IsEnrolled(courseID string) bool {
	return contains(s.Courses, courseID)
}

// Instructor owns and teaches courses.
type Instructor struct {
	ID        string    `json:"_id,omitempty"`
	Key       string    `json:"_key,omitempty"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}
