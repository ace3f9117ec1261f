package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-kg/internal/dto"
	"github.com/noah-isme/gema-kg/internal/handler"
	"github.com/noah-isme/gema-kg/internal/models"
	"github.com/noah-isme/gema-kg/internal/service"
)

type stubGradingService struct {
	lastID  string
	lastReq dto.GradeRequest
	result  dto.GradeResponse
	err     error
}

func (s *stubGradingService) ApplyGrade(_ context.Context, submissionID string, payload dto.GradeRequest) (dto.GradeResponse, error) {
	s.lastID = submissionID
	s.lastReq = payload
	return s.result, s.err
}

func (s *stubGradingService) AutoGrade(_ context.Context, submissionID string, _ dto.AutoGradeRequest) (dto.GradeResponse, error) {
	s.lastID = submissionID
	return s.result, s.err
}

type stubSimilarityService struct {
	lastID        string
	lastThreshold float64
	lastLimit     int
	lastGradeDiff float64
	similar       []dto.SimilarSubmission
	report        dto.ConsistencyReport
	err           error
}

func (s *stubSimilarityService) Similarity(context.Context, string, string) (float64, error) {
	return 0, s.err
}

func (s *stubSimilarityService) FindSimilar(_ context.Context, submissionID string, threshold float64, limit int) ([]dto.SimilarSubmission, error) {
	s.lastID = submissionID
	s.lastThreshold = threshold
	s.lastLimit = limit
	return s.similar, s.err
}

func (s *stubSimilarityService) CheckConsistency(_ context.Context, submissionID string, threshold, gradeDiff float64) (dto.ConsistencyReport, error) {
	s.lastID = submissionID
	s.lastThreshold = threshold
	s.lastGradeDiff = gradeDiff
	return s.report, s.err
}

func setupGradingApp(grading *stubGradingService, similarity *stubSimilarityService) *fiber.App {
	app := fiber.New()
	h := handler.NewGradingHandler(grading, similarity, zerolog.Nop())
	group := app.Group("/api/v1")
	h.RegisterWrites(group)
	h.RegisterReads(group)
	return app
}

func jsonRequest(t *testing.T, method, path string, payload interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestGradingHandlerApplyGrade(t *testing.T) {
	grade := 88.0
	grading := &stubGradingService{result: dto.GradeResponse{
		Submission: dto.SubmissionResponse{ID: "submissions/s1", Grade: &grade, Graded: true, GradingPass: 1},
		MistakeIDs: []string{"mistakes/m1"},
	}}
	app := setupGradingApp(grading, &stubSimilarityService{})

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/submissions/s1/grade", map[string]interface{}{
		"grade":    88,
		"feedback": "good",
		"outcomes": []map[string]interface{}{{"question": "Q1", "rubric_criteria_matched": []string{"Clarity"}}},
	}))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result dto.GradeResponse
	env := decodeData(t, resp, &result)
	require.True(t, env.Success)
	require.Equal(t, "submission graded", env.Message)
	require.Equal(t, []string{"mistakes/m1"}, result.MistakeIDs)

	require.Equal(t, "submissions/s1", grading.lastID)
	require.NotNil(t, grading.lastReq.Grade)
	require.Equal(t, 88.0, *grading.lastReq.Grade)
	require.Len(t, grading.lastReq.Outcomes, 1)
	require.Equal(t, []string{"Clarity"}, grading.lastReq.Outcomes[0].RubricCriteriaMatched)
}

func TestGradingHandlerErrorMapping(t *testing.T) {
	validationErr := validator.New().Struct(dto.GradeRequest{})
	require.Error(t, validationErr)

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("%w: submissions/s1", service.ErrSubmissionNotFound), http.StatusNotFound},
		{"already recorded", service.ErrMistakesAlreadyRecorded, http.StatusConflict},
		{"schema", models.ErrSchemaViolation, http.StatusBadRequest},
		{"validation", validationErr, http.StatusBadRequest},
		{"not graded", service.ErrSubmissionNotGraded, http.StatusUnprocessableEntity},
		{"not enrolled", service.ErrNotEnrolled, http.StatusUnprocessableEntity},
		{"grader", service.ErrGraderUnavailable, http.StatusServiceUnavailable},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := setupGradingApp(&stubGradingService{err: tc.err}, &stubSimilarityService{})
			resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/submissions/s1/auto-grade", map[string]interface{}{
				"rubric": []map[string]interface{}{{"name": "Clarity", "points": 5}},
			}))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			env := readEnvelope(t, resp)
			require.False(t, env.Success)
			if tc.name == "validation" {
				require.Contains(t, env.Details, "Grade")
			}
			if tc.name == "unexpected" {
				require.Equal(t, "internal server error", env.Message)
			}
		})
	}
}

func TestGradingHandlerRejectsMalformedBody(t *testing.T) {
	app := setupGradingApp(&stubGradingService{}, &stubSimilarityService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions/s1/grade", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGradingHandlerSimilar(t *testing.T) {
	similarity := &stubSimilarityService{similar: []dto.SimilarSubmission{
		{SubmissionID: "submissions/s2", StudentID: "students/b", Similarity: 0.8},
	}}
	app := setupGradingApp(&stubGradingService{}, similarity)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/submissions/s1/similar?threshold=0.6&limit=3", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var items []dto.SimilarSubmission
	env := decodeData(t, resp, &items)
	require.Len(t, items, 1)
	require.EqualValues(t, 1, env.Meta["count"])
	require.Equal(t, "submissions/s1", similarity.lastID)
	require.Equal(t, 0.6, similarity.lastThreshold)
	require.Equal(t, 3, similarity.lastLimit)
}

func TestGradingHandlerSimilarDefaultsAndValidation(t *testing.T) {
	similarity := &stubSimilarityService{}
	app := setupGradingApp(&stubGradingService{}, similarity)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/submissions/s1/similar", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 0.7, similarity.lastThreshold)
	require.Equal(t, 10, similarity.lastLimit)

	for _, query := range []string{"threshold=1.5", "threshold=abc", "limit=-1"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/submissions/s1/similar?"+query, nil))
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
	}
}

func TestGradingHandlerConsistency(t *testing.T) {
	similarity := &stubSimilarityService{report: dto.ConsistencyReport{
		SubmissionID: "submissions/s1",
		Grade:        95,
		IsConsistent: false,
		Flagged:      []dto.InconsistentGrade{{SubmissionID: "submissions/s2", Similarity: 0.7, Grade: 70, GradeDiff: 25}},
	}}
	app := setupGradingApp(&stubGradingService{}, similarity)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/submissions/s1/consistency?threshold=0.7&grade_diff=20", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report dto.ConsistencyReport
	decodeData(t, resp, &report)
	require.False(t, report.IsConsistent)
	require.Len(t, report.Flagged, 1)
	require.Equal(t, 25.0, report.Flagged[0].GradeDiff)
	require.Equal(t, 20.0, similarity.lastGradeDiff)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/submissions/s1/consistency?grade_diff=-1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
