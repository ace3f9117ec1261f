package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-kg/internal/models"
)

func TestMistakeRecorderCreatesOneMistakePerOutcome(t *testing.T) {
	fx := newGraphFixture(t)
	ctx := context.Background()

	studentID := fx.student(t, "Ana")
	courseID := fx.course(t, "BIO101", "")
	submissionID := fx.submission(t, studentID, courseID)
	cellsID := fx.section(t, courseID, "1 Cells", "cells have a membrane and a nucleus")
	energyID := fx.section(t, courseID, "2 Energy", "mitochondria produce energy for the cell")

	candidates, err := fx.materials.GetSections(ctx, []string{cellsID, energyID})
	require.NoError(t, err)

	events := &recordingPublisher{}
	recorder := NewMistakeRecorder(fx.mistakes, fx.criteria, fx.submissions, nil, events, testLogger())

	ids, err := recorder.RecordMistakes(ctx, RecordInput{
		StudentID:    studentID,
		SubmissionID: submissionID,
		CourseID:     courseID,
		GradingPass:  1,
		Outcomes: []models.GradingOutcome{
			{
				Question:              "Describe the cell",
				Justification:         "<b>Missed</b> the nucleus",
				ScoreAwarded:          2,
				RubricCriteriaMatched: []string{"Accuracy", "Clarity", "Accuracy"},
				SourceTextExcerpts:    []string{"the nucleus of a cell"},
			},
			{
				Question:              "Explain respiration",
				ScoreAwarded:          1,
				RubricCriteriaMatched: []string{"Accuracy"},
				SourceTextExcerpts:    []string{"mitochondria energy", "unrelated words entirely"},
			},
		},
		Candidates: candidates,
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	feedback, err := fx.submissions.MistakeIDs(ctx, submissionID)
	require.NoError(t, err)
	require.ElementsMatch(t, ids, feedback)

	made, err := fx.mistakes.StudentMistakeIDs(ctx, studentID)
	require.NoError(t, err)
	require.ElementsMatch(t, ids, made)

	criteria, err := fx.criteria.List(ctx)
	require.NoError(t, err)
	require.Len(t, criteria, 2)

	criterionEdges, err := fx.mistakes.CriterionEdges(ctx, nil)
	require.NoError(t, err)
	require.Len(t, criterionEdges, 3)

	sectionEdges, err := fx.mistakes.SectionEdges(ctx, ids)
	require.NoError(t, err)
	require.Len(t, sectionEdges, 2)
	targets := map[string]string{}
	for _, edge := range sectionEdges {
		targets[edge.From] = edge.To
	}
	require.Equal(t, cellsID, targets[ids[0]])
	require.Equal(t, energyID, targets[ids[1]])

	stored, err := fx.mistakes.GetMany(ctx, ids[:1])
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "Missed the nucleus", stored[0].Justification)
	require.Equal(t, []string{"Accuracy", "Clarity"}, stored[0].RubricCriteriaNames)
	require.Equal(t, 1, stored[0].GradingPass)

	published := events.named(EventMistakesRecorded)
	require.Len(t, published, 1)
	event, ok := published[0].payload.(MistakesRecordedEvent)
	require.True(t, ok)
	require.Equal(t, courseID, event.CourseID)
	require.Equal(t, ids, event.MistakeIDs)
}

func TestMistakeRecorderSkipsMissingSection(t *testing.T) {
	fx := newGraphFixture(t)
	ctx := context.Background()

	studentID := fx.student(t, "Ben")
	courseID := fx.course(t, "CHEM1", "")
	submissionID := fx.submission(t, studentID, courseID)
	existingID := fx.section(t, courseID, "Acids", "acids donate protons")

	candidates := []models.Section{
		{ID: "sections/ghost", CourseID: courseID, Content: "bases accept protons"},
	}
	existing, err := fx.materials.GetSections(ctx, []string{existingID})
	require.NoError(t, err)
	candidates = append(candidates, existing...)

	recorder := NewMistakeRecorder(fx.mistakes, fx.criteria, fx.submissions, NewLexicalMatcher(), nil, testLogger())
	ids, err := recorder.RecordMistakes(ctx, RecordInput{
		StudentID:    studentID,
		SubmissionID: submissionID,
		CourseID:     courseID,
		Outcomes: []models.GradingOutcome{
			{Question: "Q1", SourceTextExcerpts: []string{"bases accept"}},
			{Question: "Q2", SourceTextExcerpts: []string{"acids donate"}},
		},
		Candidates: candidates,
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	edges, err := fx.mistakes.SectionEdges(ctx, ids)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, ids[1], edges[0].From)
	require.Equal(t, existingID, edges[0].To)
}

func TestMistakeRecorderRejectsForeignIDs(t *testing.T) {
	fx := newGraphFixture(t)
	recorder := NewMistakeRecorder(fx.mistakes, fx.criteria, fx.submissions, nil, nil, testLogger())

	_, err := recorder.RecordMistakes(context.Background(), RecordInput{
		StudentID:    "courses/1",
		SubmissionID: "submissions/1",
		Outcomes:     []models.GradingOutcome{{Question: "Q"}},
	})
	require.ErrorIs(t, err, models.ErrSchemaViolation)
}

func TestMistakeRecorderDeduplicatesCriteriaAcrossSubmissions(t *testing.T) {
	fx := newGraphFixture(t)
	ctx := context.Background()
	courseID := fx.course(t, "HIST1", "")
	recorder := NewMistakeRecorder(fx.mistakes, fx.criteria, fx.submissions, nil, nil, testLogger())

	for _, name := range []string{"Cara", "Dan"} {
		studentID := fx.student(t, name)
		submissionID := fx.submission(t, studentID, courseID)
		_, err := recorder.RecordMistakes(ctx, RecordInput{
			StudentID:    studentID,
			SubmissionID: submissionID,
			CourseID:     courseID,
			Outcomes: []models.GradingOutcome{{
				Question:              "Causes of the war",
				RubricCriteriaMatched: []string{"Evidence"},
				CriteriaDescriptions:  map[string]string{"Evidence": "Cites sources"},
			}},
		})
		require.NoError(t, err)
	}

	criteria, err := fx.criteria.List(ctx)
	require.NoError(t, err)
	require.Len(t, criteria, 1)
	require.Equal(t, "Cites sources", criteria[0].Description)

	edges, err := fx.mistakes.CriterionEdges(ctx, []string{criteria[0].ID})
	require.NoError(t, err)
	require.Len(t, edges, 2)
}

func TestLexicalMatcherPrefersLargestOverlap(t *testing.T) {
	candidates := []models.Section{
		{ID: "sections/1", Content: "photosynthesis uses light"},
		{ID: "sections/2", Content: "light energy drives photosynthesis in plants"},
		{ID: "sections/3", Content: "light energy drives photosynthesis in plants"},
	}
	match, ok := NewLexicalMatcher().Match("Plants use light energy", candidates)
	require.True(t, ok)
	require.Equal(t, "sections/2", match.Section.ID)
	require.Equal(t, 3, match.Overlap)
	require.InDelta(t, 0.75, match.Relevance, 1e-9)

	_, ok = NewLexicalMatcher().Match("nothing shared", candidates)
	require.False(t, ok)
	_, ok = NewLexicalMatcher().Match("", candidates)
	require.False(t, ok)
}
