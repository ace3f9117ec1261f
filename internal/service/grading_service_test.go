package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-kg/internal/dto"
	"github.com/noah-isme/gema-kg/internal/models"
	"github.com/noah-isme/gema-kg/pkg/ai"
)

type graderStub struct {
	result ai.GradingResult
	input  ai.GradingInput
	calls  int
}

func (g *graderStub) Grade(_ context.Context, input ai.GradingInput) (ai.GradingResult, error) {
	g.calls++
	g.input = input
	return g.result, nil
}

func newGradingFixture(t *testing.T, grader ai.Grader) (*graphFixture, GradingService, *recordingPublisher) {
	t.Helper()
	fx := newGraphFixture(t)
	events := &recordingPublisher{}
	recorder := NewMistakeRecorder(fx.mistakes, fx.criteria, fx.submissions, nil, events, testLogger())
	svc := NewGradingService(fx.submissions, fx.courses, fx.materials, recorder, grader, testValidator(), testLogger())
	return fx, svc, events
}

func gradePtr(v float64) *float64 { return &v }

func TestGradingServiceApplyGradeRecordsMistakes(t *testing.T) {
	fx, svc, events := newGradingFixture(t, nil)
	ctx := context.Background()

	studentID := fx.student(t, "Lia")
	courseID := fx.course(t, "PHY1", "")
	sectionID := fx.section(t, courseID, "1 Motion", "velocity is the rate of change of position")
	submissionID := fx.submission(t, studentID, courseID)

	resp, err := svc.ApplyGrade(ctx, submissionID, dto.GradeRequest{
		Grade:    gradePtr(72),
		Feedback: "<script>alert(1)</script>Good effort",
		Outcomes: []dto.GradingOutcomeRequest{
			{Question: "Define velocity", RubricCriteriaMatched: []string{"Accuracy"}, SourceTextExcerpts: []string{"rate of change of position"}},
			{Question: "Units", RubricCriteriaMatched: []string{"Precision"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.MistakeIDs, 2)
	require.True(t, resp.Submission.Graded)
	require.Equal(t, 72.0, *resp.Submission.Grade)
	require.Equal(t, 1, resp.Submission.GradingPass)
	require.Equal(t, "Good effort", resp.Submission.Feedback)
	require.NotNil(t, resp.Submission.GradedAt)

	edges, err := fx.mistakes.SectionEdges(ctx, resp.MistakeIDs)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, sectionID, edges[0].To)
	require.Len(t, events.named(EventMistakesRecorded), 1)

	_, err = svc.ApplyGrade(ctx, submissionID, dto.GradeRequest{Grade: gradePtr(80)})
	require.ErrorIs(t, err, ErrMistakesAlreadyRecorded)

	regraded, err := svc.ApplyGrade(ctx, submissionID, dto.GradeRequest{
		Grade:    gradePtr(85),
		Regrade:  true,
		Outcomes: []dto.GradingOutcomeRequest{{Question: "Units"}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, regraded.Submission.GradingPass)
	require.Len(t, regraded.MistakeIDs, 1)

	all, err := fx.submissions.MistakeIDs(ctx, submissionID)
	require.NoError(t, err)
	require.Len(t, all, 3)

	mistakes, err := fx.mistakes.GetMany(ctx, regraded.MistakeIDs)
	require.NoError(t, err)
	require.Equal(t, 2, mistakes[0].GradingPass)
}

// interruptedRecorder writes only the first outcome and then fails, once.
type interruptedRecorder struct {
	MistakeRecorder
	failures int
}

func (r *interruptedRecorder) RecordMistakes(ctx context.Context, input RecordInput) ([]string, error) {
	if r.failures == 0 {
		return r.MistakeRecorder.RecordMistakes(ctx, input)
	}
	r.failures--
	partial := input
	partial.Outcomes = input.Outcomes[:1]
	ids, err := r.MistakeRecorder.RecordMistakes(ctx, partial)
	if err != nil {
		return ids, err
	}
	return ids, errors.New("graph store connection reset")
}

func TestGradingServiceRetriesInterruptedRecording(t *testing.T) {
	fx := newGraphFixture(t)
	ctx := context.Background()
	recorder := &interruptedRecorder{
		MistakeRecorder: NewMistakeRecorder(fx.mistakes, fx.criteria, fx.submissions, nil, nil, testLogger()),
		failures:        1,
	}
	svc := NewGradingService(fx.submissions, fx.courses, fx.materials, recorder, nil, testValidator(), testLogger())

	courseID := fx.course(t, "CHEM1", "")
	submissionID := fx.submission(t, fx.student(t, "Ivo"), courseID)
	request := dto.GradeRequest{
		Grade: gradePtr(64),
		Outcomes: []dto.GradingOutcomeRequest{
			{Question: "Balance the equation", RubricCriteriaMatched: []string{"Stoichiometry"}},
			{Question: "Name the product", RubricCriteriaMatched: []string{"Nomenclature"}},
		},
	}

	_, err := svc.ApplyGrade(ctx, submissionID, request)
	require.Error(t, err)

	submission, err := fx.submissions.GetByID(ctx, submissionID)
	require.NoError(t, err)
	require.False(t, submission.Graded)
	require.Zero(t, submission.GradingPass)
	leftover, err := fx.submissions.MistakeIDs(ctx, submissionID)
	require.NoError(t, err)
	require.Len(t, leftover, 1)

	resp, err := svc.ApplyGrade(ctx, submissionID, request)
	require.NoError(t, err)
	require.Equal(t, 1, resp.Submission.GradingPass)
	require.Len(t, resp.MistakeIDs, 2)

	all, err := fx.submissions.MistakeIDs(ctx, submissionID)
	require.NoError(t, err)
	require.ElementsMatch(t, resp.MistakeIDs, all)
	stale, err := fx.mistakes.GetMany(ctx, leftover)
	require.NoError(t, err)
	require.Empty(t, stale)

	_, err = svc.ApplyGrade(ctx, submissionID, request)
	require.ErrorIs(t, err, ErrMistakesAlreadyRecorded)
}

func TestGradingServiceValidation(t *testing.T) {
	fx, svc, _ := newGradingFixture(t, nil)
	ctx := context.Background()

	_, err := svc.ApplyGrade(ctx, "submissions/none", dto.GradeRequest{})
	require.Error(t, err)

	_, err = svc.ApplyGrade(ctx, "submissions/none", dto.GradeRequest{Grade: gradePtr(10)})
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	courseID := fx.course(t, "PHY2", "")
	submissionID := fx.submission(t, fx.student(t, "Max"), courseID)
	resp, err := svc.ApplyGrade(ctx, submissionID, dto.GradeRequest{Grade: gradePtr(100)})
	require.NoError(t, err)
	require.Empty(t, resp.MistakeIDs)

	_, err = svc.AutoGrade(ctx, submissionID, dto.AutoGradeRequest{Rubric: []dto.RubricCriterionRequest{{Name: "Accuracy"}}})
	require.ErrorIs(t, err, ErrGraderUnavailable)
}

func TestGradingServiceAutoGrade(t *testing.T) {
	grader := &graderStub{result: ai.GradingResult{
		Grade:    64,
		Feedback: "Needs more detail",
		Outcomes: []models.GradingOutcome{{
			Question:              "Newton's second law",
			ScoreAwarded:          3,
			RubricCriteriaMatched: []string{"Accuracy"},
			SourceTextExcerpts:    []string{"force equals mass times acceleration"},
		}},
	}}
	fx, svc, _ := newGradingFixture(t, grader)
	ctx := context.Background()

	courseID := fx.course(t, "PHY3", "")
	sectionID := fx.section(t, courseID, "2 Forces", "force equals mass times acceleration")
	submissionID := fx.submission(t, fx.student(t, "Nia"), courseID)

	resp, err := svc.AutoGrade(ctx, submissionID, dto.AutoGradeRequest{
		Rubric: []dto.RubricCriterionRequest{{Name: "Accuracy", Points: 10}},
		Notes:  "be strict",
	})
	require.NoError(t, err)
	require.Equal(t, 1, grader.calls)
	require.Equal(t, "Essay", grader.input.AssignmentName)
	require.Equal(t, 100.0, grader.input.MaxScore)
	require.Equal(t, []string{"2 Forces"}, grader.input.SectionTitles)
	require.Equal(t, "answer", grader.input.SubmissionText)

	require.Equal(t, 64.0, *resp.Submission.Grade)
	require.Len(t, resp.MistakeIDs, 1)
	edges, err := fx.mistakes.SectionEdges(ctx, resp.MistakeIDs)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, sectionID, edges[0].To)
}
