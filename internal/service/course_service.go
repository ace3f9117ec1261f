package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-kg/internal/dto"
	"github.com/noah-isme/gema-kg/internal/models"
	"github.com/noah-isme/gema-kg/internal/repository"
)

// CourseService manages people, courses, assignments, enrollment and submissions.
type CourseService interface {
	RegisterStudent(ctx context.Context, payload dto.StudentCreateRequest) (dto.StudentResponse, error)
	RegisterInstructor(ctx context.Context, payload dto.InstructorCreateRequest) (dto.InstructorResponse, error)
	CreateCourse(ctx context.Context, payload dto.CourseCreateRequest) (dto.CourseResponse, error)
	GetCourse(ctx context.Context, courseID string) (dto.CourseResponse, error)
	AddAssignment(ctx context.Context, courseID string, payload dto.AssignmentCreateRequest) (dto.CourseResponse, error)
	Enroll(ctx context.Context, courseID string, payload dto.EnrollRequest) (dto.StudentResponse, error)
	CreateSubmission(ctx context.Context, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error)
	GetSubmission(ctx context.Context, submissionID string) (dto.SubmissionResponse, error)
}

type courseService struct {
	people      repository.PeopleRepository
	courses     repository.CourseRepository
	submissions repository.SubmissionRepository
	validator   *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time

	// classCodes serialises the uniqueness check with course creation.
	classCodes sync.Mutex
	// enrollment serialises the idempotency check with edge creation.
	enrollment sync.Mutex
}

// NewCourseService constructs the course service.
func NewCourseService(
	people repository.PeopleRepository,
	courses repository.CourseRepository,
	submissions repository.SubmissionRepository,
	validate *validator.Validate,
	logger zerolog.Logger,
) CourseService {
	return &courseService{
		people:      people,
		courses:     courses,
		submissions: submissions,
		validator:   validate,
		logger:      logger.With().Str("component", "course_service").Logger(),
		now:         time.Now,
	}
}

func (s *courseService) RegisterStudent(ctx context.Context, payload dto.StudentCreateRequest) (dto.StudentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.StudentResponse{}, err
	}
	student := models.Student{
		Name:      strings.TrimSpace(payload.Name),
		Email:     strings.ToLower(strings.TrimSpace(payload.Email)),
		Role:      models.RoleStudent,
		Courses:   []string{},
		CreatedAt: s.now().UTC(),
	}
	if err := s.people.CreateStudent(ctx, &student); err != nil {
		return dto.StudentResponse{}, err
	}
	s.logger.Info().Str("student_id", student.ID).Str("email", maskEmailAddress(student.Email)).Msg("student registered")
	return dto.NewStudentResponse(student), nil
}

func (s *courseService) RegisterInstructor(ctx context.Context, payload dto.InstructorCreateRequest) (dto.InstructorResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.InstructorResponse{}, err
	}
	instructor := models.Instructor{
		Name:      strings.TrimSpace(payload.Name),
		Email:     strings.ToLower(strings.TrimSpace(payload.Email)),
		Role:      models.RoleInstructor,
		CreatedAt: s.now().UTC(),
	}
	if err := s.people.CreateInstructor(ctx, &instructor); err != nil {
		return dto.InstructorResponse{}, err
	}
	s.logger.Info().Str("instructor_id", instructor.ID).Str("email", maskEmailAddress(instructor.Email)).Msg("instructor registered")
	return dto.NewInstructorResponse(instructor), nil
}

func (s *courseService) CreateCourse(ctx context.Context, payload dto.CourseCreateRequest) (dto.CourseResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CourseResponse{}, err
	}
	if _, err := s.people.GetInstructor(ctx, payload.InstructorID); err != nil {
		return dto.CourseResponse{}, notFound(err, ErrInstructorNotFound, payload.InstructorID)
	}

	classCode := strings.ToUpper(strings.TrimSpace(payload.ClassCode))

	s.classCodes.Lock()
	defer s.classCodes.Unlock()

	existing, err := s.courses.FindByClassCode(ctx, classCode)
	if err != nil {
		return dto.CourseResponse{}, err
	}
	if len(existing) > 0 {
		return dto.CourseResponse{}, fmt.Errorf("%w: %s", ErrDuplicateClassCode, classCode)
	}

	course := models.Course{
		ClassCode:    classCode,
		Title:        strings.TrimSpace(payload.Title),
		InstructorID: payload.InstructorID,
		Assignments:  []models.Assignment{},
		CreatedAt:    s.now().UTC(),
	}
	if err := s.courses.Create(ctx, &course); err != nil {
		return dto.CourseResponse{}, err
	}
	if err := s.courses.LinkInstructor(ctx, payload.InstructorID, course.ID); err != nil {
		return dto.CourseResponse{}, err
	}

	s.logger.Info().Str("course_id", course.ID).Str("class_code", classCode).Msg("course created")
	return dto.NewCourseResponse(course), nil
}

func (s *courseService) GetCourse(ctx context.Context, courseID string) (dto.CourseResponse, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return dto.CourseResponse{}, notFound(err, ErrCourseNotFound, courseID)
	}
	return dto.NewCourseResponse(course), nil
}

func (s *courseService) AddAssignment(ctx context.Context, courseID string, payload dto.AssignmentCreateRequest) (dto.CourseResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CourseResponse{}, err
	}
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return dto.CourseResponse{}, notFound(err, ErrCourseNotFound, courseID)
	}

	assignment := models.Assignment{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(payload.Name),
		Description: strings.TrimSpace(payload.Description),
		TotalPoints: payload.TotalPoints,
	}
	if payload.DueDate != nil {
		assignment.DueDate = payload.DueDate.UTC()
	}
	course.Assignments = append(course.Assignments, assignment)

	if err := s.courses.Update(ctx, &course); err != nil {
		return dto.CourseResponse{}, err
	}
	return dto.NewCourseResponse(course), nil
}

func (s *courseService) Enroll(ctx context.Context, courseID string, payload dto.EnrollRequest) (dto.StudentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.StudentResponse{}, err
	}
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		return dto.StudentResponse{}, notFound(err, ErrCourseNotFound, courseID)
	}

	s.enrollment.Lock()
	defer s.enrollment.Unlock()

	student, err := s.people.GetStudent(ctx, payload.StudentID)
	if err != nil {
		return dto.StudentResponse{}, notFound(err, ErrStudentNotFound, payload.StudentID)
	}

	enrolled, err := s.courses.EnrolledStudentIDs(ctx, courseID)
	if err != nil {
		return dto.StudentResponse{}, err
	}
	if !containsID(enrolled, student.ID) {
		if err := s.courses.Enroll(ctx, student.ID, courseID); err != nil {
			return dto.StudentResponse{}, err
		}
	}
	if !student.IsEnrolled(courseID) {
		student.Courses = append(student.Courses, courseID)
		if err := s.people.UpdateStudent(ctx, &student); err != nil {
			return dto.StudentResponse{}, err
		}
	}
	return dto.NewStudentResponse(student), nil
}

func (s *courseService) CreateSubmission(ctx context.Context, payload dto.SubmissionCreateRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}
	if _, err := s.people.GetStudent(ctx, payload.StudentID); err != nil {
		return dto.SubmissionResponse{}, notFound(err, ErrStudentNotFound, payload.StudentID)
	}
	course, err := s.courses.GetByID(ctx, payload.CourseID)
	if err != nil {
		return dto.SubmissionResponse{}, notFound(err, ErrCourseNotFound, payload.CourseID)
	}
	if _, ok := course.FindAssignment(payload.AssignmentID); !ok {
		return dto.SubmissionResponse{}, fmt.Errorf("%w: %s", ErrAssignmentNotFound, payload.AssignmentID)
	}
	enrolled, err := s.courses.EnrolledStudentIDs(ctx, course.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	if !containsID(enrolled, payload.StudentID) {
		return dto.SubmissionResponse{}, fmt.Errorf("%w: %s in %s", ErrNotEnrolled, payload.StudentID, course.ID)
	}

	submission := models.Submission{
		StudentID:    payload.StudentID,
		CourseID:     payload.CourseID,
		AssignmentID: payload.AssignmentID,
		FileName:     strings.TrimSpace(payload.FileName),
		Content:      payload.Content,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission), nil
}

func (s *courseService) GetSubmission(ctx context.Context, submissionID string) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return dto.SubmissionResponse{}, notFound(err, ErrSubmissionNotFound, submissionID)
	}
	return dto.NewSubmissionResponse(submission), nil
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
