package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-kg/internal/analytics"
	"github.com/noah-isme/gema-kg/internal/models"
)

type analyticsScenario struct {
	courseID  string
	alphaID   string
	deltaID   string
	mistakeID []string
}

func seedAnalyticsScenario(t *testing.T, fx *graphFixture) analyticsScenario {
	t.Helper()
	ctx := context.Background()
	scenario := analyticsScenario{courseID: fx.course(t, "GEO1", "")}
	scenario.alphaID = fx.section(t, scenario.courseID, "Rivers", "alpha beta gamma")
	scenario.deltaID = fx.section(t, scenario.courseID, "Mountains", "delta epsilon")
	candidates, err := fx.materials.ListSections(ctx, scenario.courseID)
	require.NoError(t, err)

	recorder := NewMistakeRecorder(fx.mistakes, fx.criteria, fx.submissions, nil, nil, testLogger())
	batches := [][]models.GradingOutcome{
		{
			{Question: "Q1", ScoreAwarded: 2, RubricCriteriaMatched: []string{"Clarity"}, SourceTextExcerpts: []string{"alpha beta"}},
			{Question: "Q2", ScoreAwarded: 4, RubricCriteriaMatched: []string{"Depth"}, SourceTextExcerpts: []string{"delta"}},
		},
		{
			{Question: "Q3", ScoreAwarded: 4, RubricCriteriaMatched: []string{"Clarity"}, SourceTextExcerpts: []string{"alpha gamma"}},
			{Question: "Q4", ScoreAwarded: 6, RubricCriteriaMatched: []string{"Depth"}},
		},
	}
	for i, outcomes := range batches {
		studentID := fx.student(t, []string{"Uma", "Vic"}[i])
		submissionID := fx.submission(t, studentID, scenario.courseID)
		ids, err := recorder.RecordMistakes(ctx, RecordInput{
			StudentID:    studentID,
			SubmissionID: submissionID,
			CourseID:     scenario.courseID,
			Outcomes:     outcomes,
			Candidates:   candidates,
		})
		require.NoError(t, err)
		scenario.mistakeID = append(scenario.mistakeID, ids...)
	}
	return scenario
}

func TestAnalyticsServiceRun(t *testing.T) {
	fx := newGraphFixture(t)
	ctx := context.Background()
	scenario := seedAnalyticsScenario(t, fx)

	events := &recordingPublisher{}
	svc := NewAnalyticsService(fx.mistakes, fx.criteria, fx.materials, analytics.ConnectedComponents{}, nil, events, AnalyticsConfig{SimilarityWorkers: 2}, testLogger())

	report, err := svc.Run(ctx, scenario.courseID)
	require.NoError(t, err)
	require.Equal(t, scenario.courseID, report.Scope)
	require.Equal(t, analytics.DetectorComponents, report.Detector)
	require.Equal(t, 4, report.MistakeCount)
	require.Equal(t, 2, report.EdgeCount)
	require.Len(t, report.Clusters, 2)
	for _, cluster := range report.Clusters {
		require.Equal(t, 2, cluster.Size)
	}
	require.False(t, report.CacheHit)

	require.Len(t, report.Sections, 2)
	require.Equal(t, scenario.alphaID, report.Sections[0].SectionID)
	require.Greater(t, report.Sections[0].Score, report.Sections[1].Score)

	sections, err := fx.materials.GetSections(ctx, []string{scenario.alphaID, scenario.deltaID})
	require.NoError(t, err)
	for _, section := range sections {
		require.NotNil(t, section.PageRankScore)
	}

	require.Len(t, report.TopCriteria, 2)
	require.Equal(t, "Clarity", report.TopCriteria[0].Name)
	require.Equal(t, 2, report.TopCriteria[0].ConnectionCount)

	mistakes, err := fx.mistakes.List(ctx, scenario.courseID)
	require.NoError(t, err)
	clusters := map[string]int{}
	for _, mistake := range mistakes {
		require.NotNil(t, mistake.ClusterID)
		clusters[mistake.ID] = *mistake.ClusterID
	}
	require.Equal(t, clusters[scenario.mistakeID[0]], clusters[scenario.mistakeID[2]])
	require.Equal(t, clusters[scenario.mistakeID[1]], clusters[scenario.mistakeID[3]])
	require.NotEqual(t, clusters[scenario.mistakeID[0]], clusters[scenario.mistakeID[1]])

	require.Len(t, events.named(EventAnalyticsCompleted), 1)
}

func TestAnalyticsServiceGlobalRunKeepsCoursePageRank(t *testing.T) {
	fx := newGraphFixture(t)
	ctx := context.Background()
	scenario := seedAnalyticsScenario(t, fx)

	otherCourse := fx.course(t, "HIS1", "")
	empires := fx.section(t, otherCourse, "Empires", "rome")
	fx.mistake(t, fx.submission(t, fx.student(t, "Wen"), otherCourse), empires, 0.9)

	svc := NewAnalyticsService(fx.mistakes, fx.criteria, fx.materials, analytics.ConnectedComponents{}, nil, nil, AnalyticsConfig{}, testLogger())
	sectionIDs := []string{scenario.alphaID, scenario.deltaID, empires}
	persisted := func() map[string]*float64 {
		sections, err := fx.materials.GetSections(ctx, sectionIDs)
		require.NoError(t, err)
		out := make(map[string]*float64, len(sections))
		for _, section := range sections {
			out[section.ID] = section.PageRankScore
		}
		return out
	}

	global, err := svc.Run(ctx, "")
	require.NoError(t, err)
	require.Len(t, global.Sections, 3)
	for id, score := range persisted() {
		require.Nil(t, score, id)
	}

	_, err = svc.Run(ctx, scenario.courseID)
	require.NoError(t, err)
	before := persisted()
	require.NotNil(t, before[scenario.alphaID])
	require.NotNil(t, before[scenario.deltaID])

	_, err = svc.Run(ctx, "")
	require.NoError(t, err)
	after := persisted()
	require.InDelta(t, *before[scenario.alphaID], *after[scenario.alphaID], 1e-12)
	require.InDelta(t, *before[scenario.deltaID], *after[scenario.deltaID], 1e-12)
	require.Nil(t, after[empires])
}

func TestAnalyticsServiceReportUsesCache(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	fx := newGraphFixture(t)
	ctx := context.Background()
	scenario := seedAnalyticsScenario(t, fx)

	svc := NewAnalyticsService(fx.mistakes, fx.criteria, fx.materials, nil, client, nil, AnalyticsConfig{CacheTTL: time.Minute}, testLogger())

	first, err := svc.Report(ctx, scenario.courseID)
	require.NoError(t, err)
	require.False(t, first.CacheHit)
	require.Equal(t, analytics.DetectorLouvain, first.Detector)
	require.True(t, server.Exists("analytics:report:"+scenario.courseID))

	second, err := svc.Report(ctx, scenario.courseID)
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Equal(t, first.MistakeCount, second.MistakeCount)
	require.Len(t, second.Clusters, len(first.Clusters))
}

func TestAnalyticsServiceEmptyGraph(t *testing.T) {
	fx := newGraphFixture(t)
	svc := NewAnalyticsService(fx.mistakes, fx.criteria, fx.materials, nil, nil, nil, AnalyticsConfig{}, testLogger())

	report, err := svc.Run(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "global", report.Scope)
	require.Zero(t, report.MistakeCount)
	require.Empty(t, report.Clusters)
	require.Empty(t, report.Sections)
	require.Empty(t, report.TopCriteria)
}

func TestAnalyticsServiceTopCriteria(t *testing.T) {
	fx := newGraphFixture(t)
	ctx := context.Background()
	scenario := seedAnalyticsScenario(t, fx)
	_, err := fx.criteria.FindOrCreate(ctx, models.RubricCriterion{Name: "Unused"})
	require.NoError(t, err)

	svc := NewAnalyticsService(fx.mistakes, fx.criteria, fx.materials, nil, nil, nil, AnalyticsConfig{}, testLogger())

	global, err := svc.TopCriteria(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, global, 3)
	require.Zero(t, global[2].ConnectionCount)

	scoped, err := svc.TopCriteria(ctx, scenario.courseID, 1)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	require.Equal(t, "Clarity", scoped[0].Name)
}
