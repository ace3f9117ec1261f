package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-kg/internal/analytics"
	"github.com/noah-isme/gema-kg/internal/dto"
	"github.com/noah-isme/gema-kg/internal/models"
	"github.com/noah-isme/gema-kg/internal/repository"
)

// MistakeKeyFunc maps a mistake onto the identifier used for set similarity.
type MistakeKeyFunc func(models.Mistake) string

// QuestionCriteriaKey identifies a mistake by its normalised question and sorted criteria, so
// equivalent mistakes from different submissions compare equal.
func QuestionCriteriaKey(mistake models.Mistake) string {
	criteria := append([]string(nil), mistake.RubricCriteriaNames...)
	for i := range criteria {
		criteria[i] = strings.ToLower(strings.TrimSpace(criteria[i]))
	}
	sort.Strings(criteria)
	question := strings.Join(strings.Fields(strings.ToLower(mistake.Question)), " ")
	return question + "|" + strings.Join(criteria, ",")
}

// SimilarityOption customises the similarity service.
type SimilarityOption func(*similarityService)

// WithMistakeKey switches similarity from mistake vertex ids to keys produced by fn.
func WithMistakeKey(fn MistakeKeyFunc) SimilarityOption {
	return func(s *similarityService) {
		s.keyFunc = fn
	}
}

// SimilarityService compares submissions by the mistakes they share.
type SimilarityService interface {
	Similarity(ctx context.Context, submissionA, submissionB string) (float64, error)
	FindSimilar(ctx context.Context, submissionID string, threshold float64, limit int) ([]dto.SimilarSubmission, error)
	CheckConsistency(ctx context.Context, submissionID string, threshold, gradeDiffThreshold float64) (dto.ConsistencyReport, error)
}

type similarityService struct {
	submissions repository.SubmissionRepository
	mistakes    repository.MistakeRepository
	keyFunc     MistakeKeyFunc
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewSimilarityService constructs the service. By default mistakes are identified by vertex id.
func NewSimilarityService(submissions repository.SubmissionRepository, mistakes repository.MistakeRepository, logger zerolog.Logger, opts ...SimilarityOption) SimilarityService {
	service := &similarityService{
		submissions: submissions,
		mistakes:    mistakes,
		logger:      logger.With().Str("component", "similarity_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-kg/internal/service/similarity"),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *similarityService) Similarity(ctx context.Context, submissionA, submissionB string) (float64, error) {
	ctx, span := s.tracer.Start(ctx, "similarity.pair")
	defer span.End()

	for _, id := range []string{submissionA, submissionB} {
		if _, err := s.submissions.GetByID(ctx, id); err != nil {
			span.RecordError(err)
			return 0, notFound(err, ErrSubmissionNotFound, id)
		}
	}

	sets, err := s.mistakeSets(ctx, []string{submissionA, submissionB})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return analytics.Jaccard(sets[submissionA], sets[submissionB]), nil
}

func (s *similarityService) FindSimilar(ctx context.Context, submissionID string, threshold float64, limit int) ([]dto.SimilarSubmission, error) {
	ctx, span := s.tracer.Start(ctx, "similarity.find", trace.WithAttributes(
		attribute.String("submission.id", submissionID),
		attribute.Float64("threshold", threshold),
	))
	defer span.End()

	target, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		return nil, notFound(err, ErrSubmissionNotFound, submissionID)
	}
	similar, err := s.findSimilar(ctx, target, threshold)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if limit > 0 && len(similar) > limit {
		similar = similar[:limit]
	}
	span.SetAttributes(attribute.Int("similar.count", len(similar)))
	return similar, nil
}

func (s *similarityService) CheckConsistency(ctx context.Context, submissionID string, threshold, gradeDiffThreshold float64) (dto.ConsistencyReport, error) {
	ctx, span := s.tracer.Start(ctx, "similarity.consistency", trace.WithAttributes(
		attribute.String("submission.id", submissionID),
		attribute.Float64("threshold", threshold),
		attribute.Float64("grade_diff_threshold", gradeDiffThreshold),
	))
	defer span.End()

	target, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		return dto.ConsistencyReport{}, notFound(err, ErrSubmissionNotFound, submissionID)
	}
	if target.Grade == nil {
		return dto.ConsistencyReport{}, fmt.Errorf("%w: %s", ErrSubmissionNotGraded, submissionID)
	}

	similar, err := s.findSimilar(ctx, target, threshold)
	if err != nil {
		span.RecordError(err)
		return dto.ConsistencyReport{}, err
	}

	report := dto.ConsistencyReport{
		SubmissionID:       target.ID,
		Grade:              *target.Grade,
		Threshold:          threshold,
		GradeDiffThreshold: gradeDiffThreshold,
		Flagged:            []dto.InconsistentGrade{},
	}
	for _, peer := range similar {
		if peer.Grade == nil {
			continue
		}
		diff := math.Abs(*peer.Grade - *target.Grade)
		if diff > gradeDiffThreshold {
			report.Flagged = append(report.Flagged, dto.InconsistentGrade{
				SubmissionID: peer.SubmissionID,
				Similarity:   peer.Similarity,
				Grade:        *peer.Grade,
				GradeDiff:    diff,
			})
		}
	}
	report.IsConsistent = len(report.Flagged) == 0
	if !report.IsConsistent {
		s.logger.Info().
			Str("submission_id", target.ID).
			Int("flagged", len(report.Flagged)).
			Msg("grading inconsistency detected")
	}
	return report, nil
}

// findSimilar scores every other submission of the target's course, keeps those at or above
// threshold and orders them by similarity, preserving store order on ties.
func (s *similarityService) findSimilar(ctx context.Context, target models.Submission, threshold float64) ([]dto.SimilarSubmission, error) {
	peers, err := s.submissions.ListByCourse(ctx, target.CourseID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(peers))
	ids = append(ids, target.ID)
	for _, peer := range peers {
		if peer.ID != target.ID {
			ids = append(ids, peer.ID)
		}
	}
	sets, err := s.mistakeSets(ctx, ids)
	if err != nil {
		return nil, err
	}

	targetSet := sets[target.ID]
	similar := make([]dto.SimilarSubmission, 0)
	for _, peer := range peers {
		if peer.ID == target.ID {
			continue
		}
		score := analytics.Jaccard(targetSet, sets[peer.ID])
		if score < threshold {
			continue
		}
		similar = append(similar, dto.SimilarSubmission{
			SubmissionID: peer.ID,
			StudentID:    peer.StudentID,
			Similarity:   score,
			Grade:        peer.Grade,
		})
	}
	sort.SliceStable(similar, func(i, j int) bool {
		return similar[i].Similarity > similar[j].Similarity
	})
	return similar, nil
}

func (s *similarityService) mistakeSets(ctx context.Context, submissionIDs []string) (map[string][]string, error) {
	bySubmission, err := s.submissions.MistakeIDsBySubmission(ctx, submissionIDs)
	if err != nil {
		return nil, err
	}
	if s.keyFunc == nil {
		return bySubmission, nil
	}

	all := make([]string, 0)
	for _, ids := range bySubmission {
		all = append(all, ids...)
	}
	mistakes, err := s.mistakes.GetMany(ctx, all)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]string, len(mistakes))
	for _, mistake := range mistakes {
		keys[mistake.ID] = s.keyFunc(mistake)
	}

	out := make(map[string][]string, len(bySubmission))
	for submissionID, ids := range bySubmission {
		for _, id := range ids {
			if key, ok := keys[id]; ok {
				out[submissionID] = append(out[submissionID], key)
			}
		}
	}
	return out, nil
}
