package dto

import (
	"time"

	"github.com/noah-isme/gema-kg/internal/models"
)

// StudentCreateRequest registers a student.
type StudentCreateRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=120"`
	Email string `json:"email" validate:"omitempty,email"`
}

// InstructorCreateRequest registers an instructor.
type InstructorCreateRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=120"`
	Email string `json:"email" validate:"omitempty,email"`
}

// CourseCreateRequest creates a course taught by an instructor.
type CourseCreateRequest struct {
	ClassCode    string `json:"class_code" validate:"required,min=2,max=32"`
	Title        string `json:"title" validate:"required,min=2,max=200"`
	InstructorID string `json:"instructor_id" validate:"required"`
}

// AssignmentCreateRequest appends an assignment to a course.
type AssignmentCreateRequest struct {
	Name        string     `json:"name" validate:"required,min=2,max=200"`
	Description string     `json:"description" validate:"omitempty,max=5000"`
	DueDate     *time.Time `json:"due_date"`
	TotalPoints float64    `json:"total_points" validate:"gte=0"`
}

// EnrollRequest enrolls a student into a course.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// StudentResponse is returned to API clients for students.
type StudentResponse struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Courses []string `json:"courses"`
}

// InstructorResponse is returned to API clients for instructors.
type InstructorResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AssignmentResponse serializes an embedded assignment.
type AssignmentResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	TotalPoints float64    `json:"total_points"`
}

// CourseResponse is returned to API clients for courses.
type CourseResponse struct {
	ID           string               `json:"id"`
	ClassCode    string               `json:"class_code"`
	Title        string               `json:"title"`
	InstructorID string               `json:"instructor_id"`
	Assignments  []AssignmentResponse `json:"assignments"`
	CreatedAt    time.Time            `json:"created_at"`
}

// NewStudentResponse converts a Student model into a DTO.
func NewStudentResponse(model models.Student) StudentResponse {
	courses := model.Courses
	if courses == nil {
		courses = []string{}
	}
	return StudentResponse{ID: model.ID, Name: model.Name, Email: model.Email, Courses: courses}
}

// NewInstructorResponse converts an Instructor model into a DTO.
func NewInstructorResponse(model models.Instructor) InstructorResponse {
	return InstructorResponse{ID: model.ID, Name: model.Name, Email: model.Email}
}

// NewCourseResponse converts a Course model into a DTO.
func NewCourseResponse(model models.Course) CourseResponse {
	assignments := make([]AssignmentResponse, 0, len(model.Assignments))
	for _, assignment := range model.Assignments {
		var due *time.Time
		if !assignment.DueDate.IsZero() {
			value := assignment.DueDate
			due = &value
		}
		assignments = append(assignments, AssignmentResponse{
			ID:          assignment.ID,
			Name:        assignment.Name,
			Description: assignment.Description,
			DueDate:     due,
			TotalPoints: assignment.TotalPoints,
		})
	}
	return CourseResponse{
		ID:           model.ID,
		ClassCode:    model.ClassCode,
		Title:        model.Title,
		InstructorID: model.InstructorID,
		Assignments:  assignments,
		CreatedAt:    model.CreatedAt,
	}
}
