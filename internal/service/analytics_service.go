package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-kg/internal/analytics"
	"github.com/noah-isme/gema-kg/internal/dto"
	"github.com/noah-isme/gema-kg/internal/graphstore"
	"github.com/noah-isme/gema-kg/internal/models"
	"github.com/noah-isme/gema-kg/internal/observability"
	"github.com/noah-isme/gema-kg/internal/repository"
)

const (
	analyticsCachePrefix = "analytics:report:"
	globalScope          = "global"
	defaultTopCriteria   = 10
)

// AnalyticsConfig tunes analytics runs.
type AnalyticsConfig struct {
	CacheTTL          time.Duration
	SimilarityWorkers int
	TopCriteria       int
}

// AnalyticsService runs clustering, PageRank and degree ranking over the mistake graph.
// An empty courseID selects every course.
type AnalyticsService interface {
	Run(ctx context.Context, courseID string) (dto.AnalyticsReport, error)
	Report(ctx context.Context, courseID string) (dto.AnalyticsReport, error)
	TopCriteria(ctx context.Context, courseID string, limit int) ([]analytics.CriterionRank, error)
}

type analyticsService struct {
	mistakes  repository.MistakeRepository
	criteria  repository.CriterionRepository
	materials repository.MaterialRepository
	detector  analytics.CommunityDetector
	cache     *redis.Client
	events    EventPublisher
	cfg       AnalyticsConfig
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewAnalyticsService constructs the analytics service with an explicitly chosen detector.
// cache and events may be nil.
func NewAnalyticsService(
	mistakes repository.MistakeRepository,
	criteria repository.CriterionRepository,
	materials repository.MaterialRepository,
	detector analytics.CommunityDetector,
	cache *redis.Client,
	events EventPublisher,
	cfg AnalyticsConfig,
	logger zerolog.Logger,
) AnalyticsService {
	if detector == nil {
		detector = analytics.NewLouvain(nil)
	}
	if events == nil {
		events = NopEventPublisher()
	}
	if cfg.TopCriteria <= 0 {
		cfg.TopCriteria = defaultTopCriteria
	}
	return &analyticsService{
		mistakes:  mistakes,
		criteria:  criteria,
		materials: materials,
		detector:  detector,
		cache:     cache,
		events:    events,
		cfg:       cfg,
		logger:    logger.With().Str("component", "analytics_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-kg/internal/service/analytics"),
		now:       time.Now,
	}
}

func (s *analyticsService) Report(ctx context.Context, courseID string) (dto.AnalyticsReport, error) {
	cacheKey := analyticsCachePrefix + scopeName(courseID)
	ctx, span := s.tracer.Start(ctx, "analytics.report", trace.WithAttributes(attribute.String("analytics.cache_key", cacheKey)))
	defer span.End()

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey).Result()
		if err == nil {
			var report dto.AnalyticsReport
			if unmarshalErr := json.Unmarshal([]byte(cached), &report); unmarshalErr == nil {
				report.CacheHit = true
				observability.AnalyticsCache().WithLabelValues("hit").Inc()
				span.SetAttributes(attribute.Bool("analytics.cache_hit", true))
				return report, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read analytics cache")
			span.RecordError(err)
		}
		observability.AnalyticsCache().WithLabelValues("miss").Inc()
	}

	return s.Run(ctx, courseID)
}

func (s *analyticsService) Run(ctx context.Context, courseID string) (dto.AnalyticsReport, error) {
	scope := scopeName(courseID)
	ctx, span := s.tracer.Start(ctx, "analytics.run", trace.WithAttributes(
		attribute.String("analytics.scope", scope),
		attribute.String("analytics.detector", s.detector.Name()),
	))
	defer span.End()
	start := time.Now()

	fail := func(stage string, err error) (dto.AnalyticsReport, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		return dto.AnalyticsReport{}, err
	}

	mistakes, err := s.mistakes.List(ctx, courseID)
	if err != nil {
		return fail("list_mistakes_failed", err)
	}

	graph, err := analytics.BuildMistakeGraph(ctx, mistakes, s.cfg.SimilarityWorkers)
	if err != nil {
		return fail("build_graph_failed", err)
	}
	communities, err := s.detector.Detect(ctx, graph)
	if err != nil {
		return fail("detect_communities_failed", err)
	}
	if err := s.annotateClusters(ctx, mistakes, communities); err != nil {
		return fail("annotate_clusters_failed", err)
	}

	sections, err := s.rankSections(ctx, courseID, mistakes)
	if err != nil {
		return fail("pagerank_failed", err)
	}

	topCriteria, err := s.rankCriteria(ctx, courseID, mistakes, s.cfg.TopCriteria)
	if err != nil {
		return fail("rank_criteria_failed", err)
	}

	report := dto.AnalyticsReport{
		Scope:        scope,
		Detector:     s.detector.Name(),
		MistakeCount: graph.NodeCount(),
		EdgeCount:    graph.EdgeCount(),
		Clusters:     analytics.ClusterStatistics(communities, mistakes),
		Sections:     sections,
		TopCriteria:  topCriteria,
		GeneratedAt:  s.now().UTC(),
	}

	observability.AnalyticsRunDuration().WithLabelValues(s.detector.Name()).Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("analytics.mistakes", report.MistakeCount),
		attribute.Int("analytics.clusters", len(report.Clusters)),
		attribute.Int("analytics.sections", len(report.Sections)),
	)

	s.storeReport(ctx, report)

	event := AnalyticsCompletedEvent{
		Scope:        scope,
		Detector:     report.Detector,
		MistakeCount: report.MistakeCount,
		ClusterCount: len(report.Clusters),
		SectionCount: len(report.Sections),
		CompletedAt:  report.GeneratedAt,
	}
	if err := s.events.Publish(ctx, EventAnalyticsCompleted, event); err != nil {
		s.logger.Warn().Err(err).Str("scope", scope).Msg("failed to publish analytics completed event")
	}

	s.logger.Info().
		Str("scope", scope).
		Int("mistakes", report.MistakeCount).
		Int("clusters", len(report.Clusters)).
		Dur("duration", time.Since(start)).
		Msg("analytics run completed")

	return report, nil
}

func (s *analyticsService) TopCriteria(ctx context.Context, courseID string, limit int) ([]analytics.CriterionRank, error) {
	ctx, span := s.tracer.Start(ctx, "analytics.top_criteria")
	defer span.End()

	var mistakes []models.Mistake
	if courseID != "" {
		var err error
		mistakes, err = s.mistakes.List(ctx, courseID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	ranked, err := s.rankCriteria(ctx, courseID, mistakes, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return ranked, nil
}

func (s *analyticsService) annotateClusters(ctx context.Context, mistakes []models.Mistake, communities []analytics.Community) error {
	membership := analytics.Membership(communities)
	for _, mistake := range mistakes {
		cluster, ok := membership[mistake.ID]
		if !ok {
			continue
		}
		if mistake.ClusterID != nil && *mistake.ClusterID == cluster {
			continue
		}
		if err := s.mistakes.Annotate(ctx, mistake.ID, graphstore.Document{"clusterId": cluster}); err != nil {
			return err
		}
	}
	return nil
}

// rankSections runs PageRank over the Mistake–Section graph. Scores are persisted for course
// runs only; a global run normalises across courses and would overwrite the per-course scores
// that student recommendations read.
func (s *analyticsService) rankSections(ctx context.Context, courseID string, mistakes []models.Mistake) ([]dto.SectionScore, error) {
	sections, err := s.materials.ListSections(ctx, courseID)
	if err != nil {
		return nil, err
	}
	mistakeIDs := make([]string, 0, len(mistakes))
	for _, mistake := range mistakes {
		mistakeIDs = append(mistakeIDs, mistake.ID)
	}
	edges, err := s.mistakes.SectionEdges(ctx, mistakeIDs)
	if err != nil {
		return nil, err
	}

	sectionIDs := make([]string, 0, len(sections))
	titles := make(map[string]string, len(sections))
	for _, section := range sections {
		sectionIDs = append(sectionIDs, section.ID)
		titles[section.ID] = section.Title
	}

	graph := analytics.SectionGraph(sectionIDs, edges)
	result := analytics.PageRank(ctx, graph, analytics.DefaultPageRankOptions())

	scores := make([]dto.SectionScore, 0, len(sections))
	for _, id := range graph.Nodes() {
		if graphstore.CollectionOf(id) != models.CollectionSections {
			continue
		}
		score := result.Scores[id]
		if courseID != "" {
			if err := s.materials.SetPageRank(ctx, id, score); err != nil {
				if errors.Is(err, graphstore.ErrNotFound) {
					s.logger.Warn().Str("section_id", id).Msg("skipping pagerank for missing section")
					continue
				}
				return nil, err
			}
		}
		scores = append(scores, dto.SectionScore{SectionID: id, Title: titles[id], Score: score})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].SectionID < scores[j].SectionID
	})
	return scores, nil
}

// rankCriteria ranks every criterion when courseID is empty, otherwise only the criteria the
// course's mistakes point at.
func (s *analyticsService) rankCriteria(ctx context.Context, courseID string, mistakes []models.Mistake, limit int) ([]analytics.CriterionRank, error) {
	edges, err := s.mistakes.CriterionEdges(ctx, nil)
	if err != nil {
		return nil, err
	}

	if courseID == "" {
		criteria, err := s.criteria.List(ctx)
		if err != nil {
			return nil, err
		}
		return analytics.RankCriteria(criteria, edges, limit), nil
	}

	inScope := make(map[string]struct{}, len(mistakes))
	for _, mistake := range mistakes {
		inScope[mistake.ID] = struct{}{}
	}
	scoped := make([]graphstore.Edge, 0, len(edges))
	criterionIDs := make([]string, 0)
	seen := make(map[string]struct{})
	for _, edge := range edges {
		if _, ok := inScope[edge.From]; !ok {
			continue
		}
		scoped = append(scoped, edge)
		if _, ok := seen[edge.To]; !ok {
			seen[edge.To] = struct{}{}
			criterionIDs = append(criterionIDs, edge.To)
		}
	}
	criteria, err := s.criteria.GetMany(ctx, criterionIDs)
	if err != nil {
		return nil, err
	}
	return analytics.RankCriteria(criteria, scoped, limit), nil
}

func (s *analyticsService) storeReport(ctx context.Context, report dto.AnalyticsReport) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, analyticsCachePrefix+report.Scope, payload, s.cfg.CacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store analytics cache")
	}
}

func scopeName(courseID string) string {
	if courseID == "" {
		return globalScope
	}
	return courseID
}
