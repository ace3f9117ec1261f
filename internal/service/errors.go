package service

import (
	"errors"
	"fmt"

	"github.com/noah-isme/gema-kg/internal/graphstore"
)

var (
	// ErrSubmissionNotFound indicates a submission could not be found.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrStudentNotFound indicates a student could not be found.
	ErrStudentNotFound = errors.New("student not found")
	// ErrInstructorNotFound indicates an instructor could not be found.
	ErrInstructorNotFound = errors.New("instructor not found")
	// ErrCourseNotFound indicates a course could not be found.
	ErrCourseNotFound = errors.New("course not found")
	// ErrAssignmentNotFound indicates the course has no assignment with the given id.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrNotEnrolled is returned when a student submits to a course they are not enrolled in.
	ErrNotEnrolled = errors.New("student is not enrolled in course")
	// ErrSubmissionNotGraded is returned when a grade is required but missing.
	ErrSubmissionNotGraded = errors.New("submission has not been graded")
	// ErrDuplicateClassCode is returned when a class code is already taken.
	ErrDuplicateClassCode = errors.New("class code already in use")
	// ErrMistakesAlreadyRecorded guards against recording a submission's mistakes twice.
	ErrMistakesAlreadyRecorded = errors.New("mistakes already recorded for submission")
	// ErrGraderUnavailable is returned when automatic grading is not configured.
	ErrGraderUnavailable = errors.New("automatic grader not configured")
	// ErrUnsupportedMaterial is returned for uploads that are not plain text.
	ErrUnsupportedMaterial = errors.New("material must be a text document")
	// ErrMaterialTooLarge is returned when an uploaded material exceeds the configured limit.
	ErrMaterialTooLarge = errors.New("material exceeds maximum size")
)

// notFound translates a store ErrNotFound into the service level sentinel.
func notFound(err error, sentinel error, id string) error {
	if errors.Is(err, graphstore.ErrNotFound) {
		return fmt.Errorf("%w: %s", sentinel, id)
	}
	return err
}
