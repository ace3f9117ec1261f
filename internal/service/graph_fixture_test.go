package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-kg/internal/graphstore"
	"github.com/noah-isme/gema-kg/internal/graphstore/sqlstore"
	"github.com/noah-isme/gema-kg/internal/models"
	"github.com/noah-isme/gema-kg/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

type graphFixture struct {
	store       graphstore.Store
	people      repository.PeopleRepository
	courses     repository.CourseRepository
	submissions repository.SubmissionRepository
	mistakes    repository.MistakeRepository
	criteria    repository.CriterionRepository
	materials   repository.MaterialRepository
}

func newGraphFixture(t *testing.T) *graphFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	store, err := sqlstore.New(db, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })

	return &graphFixture{
		store:       store,
		people:      repository.NewPeopleRepository(store),
		courses:     repository.NewCourseRepository(store),
		submissions: repository.NewSubmissionRepository(store),
		mistakes:    repository.NewMistakeRepository(store),
		criteria:    repository.NewCriterionRepository(store),
		materials:   repository.NewMaterialRepository(store),
	}
}

func (f *graphFixture) student(t *testing.T, name string) string {
	t.Helper()
	student := models.Student{Name: name, Role: models.RoleStudent}
	require.NoError(t, f.people.CreateStudent(context.Background(), &student))
	return student.ID
}

func (f *graphFixture) instructor(t *testing.T, name string) string {
	t.Helper()
	instructor := models.Instructor{Name: name, Role: models.RoleInstructor}
	require.NoError(t, f.people.CreateInstructor(context.Background(), &instructor))
	return instructor.ID
}

// course creates a course with a single assignment "a1" and links the instructor when given.
func (f *graphFixture) course(t *testing.T, classCode, instructorID string) string {
	t.Helper()
	ctx := context.Background()
	course := models.Course{
		ClassCode:    classCode,
		Title:        "Course " + classCode,
		InstructorID: instructorID,
		Assignments:  []models.Assignment{{ID: "a1", Name: "Essay", TotalPoints: 100}},
	}
	require.NoError(t, f.courses.Create(ctx, &course))
	if instructorID != "" {
		require.NoError(t, f.courses.LinkInstructor(ctx, instructorID, course.ID))
	}
	return course.ID
}

func (f *graphFixture) enroll(t *testing.T, studentID, courseID string) {
	t.Helper()
	require.NoError(t, f.courses.Enroll(context.Background(), studentID, courseID))
}

func (f *graphFixture) submission(t *testing.T, studentID, courseID string) string {
	t.Helper()
	submission := models.Submission{StudentID: studentID, CourseID: courseID, AssignmentID: "a1", Content: "answer"}
	require.NoError(t, f.submissions.Create(context.Background(), &submission))
	return submission.ID
}

func (f *graphFixture) grade(t *testing.T, submissionID string, grade float64) {
	t.Helper()
	ctx := context.Background()
	submission, err := f.submissions.GetByID(ctx, submissionID)
	require.NoError(t, err)
	submission.Grade = &grade
	submission.Graded = true
	require.NoError(t, f.submissions.Update(ctx, &submission))
}

func (f *graphFixture) section(t *testing.T, courseID, title, content string) string {
	t.Helper()
	section := models.Section{CourseID: courseID, Title: title, Content: content}
	require.NoError(t, f.materials.CreateSection(context.Background(), &section))
	return section.ID
}

// mistake records a mistake for the submission and links it to sectionID when non-empty.
func (f *graphFixture) mistake(t *testing.T, submissionID, sectionID string, relevance float64) string {
	t.Helper()
	ctx := context.Background()
	submission, err := f.submissions.GetByID(ctx, submissionID)
	require.NoError(t, err)

	mistake := models.Mistake{
		Question:     "Q",
		StudentID:    submission.StudentID,
		SubmissionID: submission.ID,
		CourseID:     submission.CourseID,
		ScoreAwarded: 1,
	}
	require.NoError(t, f.mistakes.Create(ctx, &mistake))
	require.NoError(t, f.mistakes.LinkSubmission(ctx, submission.ID, mistake.ID))
	require.NoError(t, f.mistakes.LinkStudent(ctx, submission.StudentID, mistake.ID))
	if sectionID != "" {
		require.NoError(t, f.mistakes.LinkSection(ctx, mistake.ID, sectionID, relevance))
	}
	return mistake.ID
}

type publishedEvent struct {
	name    string
	payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{name: event, payload: payload})
	return nil
}

func (p *recordingPublisher) named(name string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedEvent, 0)
	for _, event := range p.events {
		if event.name == name {
			out = append(out, event)
		}
	}
	return out
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
}

func graphstoreFilterTo(ids ...string) graphstore.EdgeFilter {
	return graphstore.EdgeFilter{To: ids}
}
