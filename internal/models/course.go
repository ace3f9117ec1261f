package models

import "time"

// Course groups enrolled students, assignments and source material under one class code.
type Course struct {
	ID           string       `json:"_id,omitempty"`
	Key          string       `json:"_key,omitempty"`
	ClassCode    string       `json:"classCode"`
	Title        string       `json:"title"`
	InstructorID string       `json:"instructorId"`
	Assignments  []Assignment `json:"assignments"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// Assignment is embedded in its course in creation order.
type Assignment struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	DueDate     time.Time `json:"dueDate"`
	TotalPoints float64   `json:"totalPoints"`
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return !a.DueDate.IsZero() && reference.After(a.DueDate)
}

// FindAssignment returns the embedded assignment with the given id.
func (c Course) FindAssignment(id string) (Assignment, bool) {
	for _, assignment := range c.Assignments {
		if assignment.ID == id {
			return assignment, true
		}
	}
	return Assignment{}, false
}
