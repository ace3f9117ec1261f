package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-kg/internal/analytics"
	"github.com/noah-isme/gema-kg/internal/dto"
	"github.com/noah-isme/gema-kg/internal/graphstore"
	"github.com/noah-isme/gema-kg/internal/handler"
)

type stubAnalyticsService struct {
	report    dto.AnalyticsReport
	criteria  []analytics.CriterionRank
	err       error
	lastScope string
	lastLimit int
	runs      int
}

func (s *stubAnalyticsService) Run(_ context.Context, courseID string) (dto.AnalyticsReport, error) {
	s.runs++
	s.lastScope = courseID
	return s.report, s.err
}

func (s *stubAnalyticsService) Report(_ context.Context, courseID string) (dto.AnalyticsReport, error) {
	s.lastScope = courseID
	return s.report, s.err
}

func (s *stubAnalyticsService) TopCriteria(_ context.Context, courseID string, limit int) ([]analytics.CriterionRank, error) {
	s.lastScope = courseID
	s.lastLimit = limit
	return s.criteria, s.err
}

func sampleReport() dto.AnalyticsReport {
	return dto.AnalyticsReport{
		Scope:        "courses/c1",
		Detector:     analytics.DetectorLouvain,
		MistakeCount: 4,
		EdgeCount:    2,
		Clusters: []analytics.ClusterStats{
			{ClusterID: 0, Size: 2, AverageScore: 1.5, TopCriteria: []string{"Clarity"}, MistakeIDs: []string{"mistakes/m1", "mistakes/m2"}},
			{ClusterID: 1, Size: 2, AverageScore: 0.5, TopCriteria: []string{"Depth"}, MistakeIDs: []string{"mistakes/m3", "mistakes/m4"}},
		},
		Sections:    []dto.SectionScore{{SectionID: "sections/rivers", Title: "Rivers", Score: 0.6}},
		TopCriteria: []analytics.CriterionRank{{ID: "rubricCriteria/clarity", Name: "Clarity", ConnectionCount: 2}},
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		CacheHit:    true,
	}
}

func setupAnalyticsApp(stub *stubAnalyticsService) *fiber.App {
	app := fiber.New()
	handler.NewAnalyticsHandler(stub, zerolog.Nop()).Register(app.Group("/api/v1"))
	return app
}

func TestAnalyticsHandlerReportScopes(t *testing.T) {
	stub := &stubAnalyticsService{report: sampleReport()}
	app := setupAnalyticsApp(stub)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/analytics?course_id=c1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "courses/c1", stub.lastScope)

	env := readEnvelope(t, resp)
	require.Equal(t, true, env.Meta["cache_hit"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/analytics?course_id=courses/c2", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "courses/c2", stub.lastScope)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, stub.lastScope)
}

func TestAnalyticsHandlerRunAndCriteria(t *testing.T) {
	stub := &stubAnalyticsService{
		report:   sampleReport(),
		criteria: []analytics.CriterionRank{{ID: "rubricCriteria/clarity", Name: "Clarity", ConnectionCount: 3}},
	}
	app := setupAnalyticsApp(stub)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/analytics/run?course_id=c1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, stub.runs)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/analytics/criteria?limit=1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, stub.lastLimit)

	var ranks []analytics.CriterionRank
	decodeData(t, resp, &ranks)
	require.Len(t, ranks, 1)
	require.Equal(t, 3, ranks[0].ConnectionCount)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/analytics/criteria?limit=x", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAnalyticsHandlerStoreUnavailable(t *testing.T) {
	stub := &stubAnalyticsService{err: graphstore.Unavailable("find", io.ErrUnexpectedEOF)}
	app := setupAnalyticsApp(stub)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestAnalyticsReportContract(t *testing.T) {
	schema := compileSchema(t, "analytics_report.schema.json")

	app := setupAnalyticsApp(&stubAnalyticsService{report: sampleReport()})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/analytics?course_id=c1", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	validateAgainst(t, schema, resp)
}

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	schemaPath, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile("file://" + schemaPath)
	require.NoError(t, err)
	return schema
}

func validateAgainst(t *testing.T, schema *jsonschema.Schema, resp *http.Response) {
	t.Helper()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}
