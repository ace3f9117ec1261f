package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-kg/internal/graphstore"
	"github.com/noah-isme/gema-kg/internal/models"
	"github.com/noah-isme/gema-kg/internal/observability"
	"github.com/noah-isme/gema-kg/internal/repository"
)

// RecordInput describes one graded submission whose mistakes should be written to the graph.
type RecordInput struct {
	StudentID    string
	SubmissionID string
	CourseID     string
	GradingPass  int
	Outcomes     []models.GradingOutcome
	Candidates   []models.Section
}

// MistakeRecorder writes mistakes and their edges. Recording is not idempotent: callers check
// HasRecordedMistakes before recording a submission for the first time.
//
// DiscardPending removes mistakes left behind by an attempt that failed before its grading
// pass was committed, i.e. mistakes whose pass is greater than committedPass. Mistakes of
// committed passes are never removed.
type MistakeRecorder interface {
	RecordMistakes(ctx context.Context, input RecordInput) ([]string, error)
	HasRecordedMistakes(ctx context.Context, submissionID string) (bool, error)
	DiscardPending(ctx context.Context, submissionID string, committedPass int) (int, error)
}

type mistakeRecorder struct {
	mistakes    repository.MistakeRepository
	criteria    repository.CriterionRepository
	submissions repository.SubmissionRepository
	matcher     SectionMatcher
	events      EventPublisher
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewMistakeRecorder constructs the recorder. A nil matcher falls back to LexicalMatcher and a
// nil publisher drops events.
func NewMistakeRecorder(
	mistakes repository.MistakeRepository,
	criteria repository.CriterionRepository,
	submissions repository.SubmissionRepository,
	matcher SectionMatcher,
	events EventPublisher,
	logger zerolog.Logger,
) MistakeRecorder {
	if matcher == nil {
		matcher = NewLexicalMatcher()
	}
	if events == nil {
		events = NopEventPublisher()
	}
	return &mistakeRecorder{
		mistakes:    mistakes,
		criteria:    criteria,
		submissions: submissions,
		matcher:     matcher,
		events:      events,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "mistake_recorder").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-kg/internal/service/recorder"),
		now:         time.Now,
	}
}

func (r *mistakeRecorder) HasRecordedMistakes(ctx context.Context, submissionID string) (bool, error) {
	return r.submissions.HasRecordedMistakes(ctx, submissionID)
}

func (r *mistakeRecorder) DiscardPending(ctx context.Context, submissionID string, committedPass int) (int, error) {
	mistakes, err := r.mistakes.ListBySubmission(ctx, submissionID)
	if err != nil {
		return 0, err
	}
	discarded := 0
	for _, mistake := range mistakes {
		if mistake.GradingPass <= committedPass {
			continue
		}
		if err := r.mistakes.Delete(ctx, mistake.ID); err != nil && !errors.Is(err, graphstore.ErrNotFound) {
			return discarded, fmt.Errorf("discard mistake %s: %w", mistake.ID, err)
		}
		discarded++
	}
	if discarded > 0 {
		r.logger.Warn().
			Str("submission_id", submissionID).
			Int("committed_pass", committedPass).
			Int("discarded", discarded).
			Msg("discarded mistakes of an uncommitted grading pass")
	}
	return discarded, nil
}

func (r *mistakeRecorder) RecordMistakes(ctx context.Context, input RecordInput) ([]string, error) {
	ctx, span := r.tracer.Start(ctx, "recorder.record_mistakes", trace.WithAttributes(
		attribute.String("submission.id", input.SubmissionID),
		attribute.String("course.id", input.CourseID),
		attribute.Int("outcomes", len(input.Outcomes)),
		attribute.Int("candidates", len(input.Candidates)),
	))
	defer span.End()

	if err := validateRecordInput(input); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid_input")
		return nil, err
	}

	logger := r.logger.With().
		Str("submission_id", input.SubmissionID).
		Str("student_id", input.StudentID).
		Logger()

	ids := make([]string, 0, len(input.Outcomes))
	for _, outcome := range input.Outcomes {
		id, err := r.recordOutcome(ctx, logger, input, outcome)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "record_outcome_failed")
			return ids, err
		}
		ids = append(ids, id)
	}

	observability.MistakesRecorded().WithLabelValues(input.CourseID).Add(float64(len(ids)))
	span.SetAttributes(attribute.Int("mistakes.created", len(ids)))

	if len(ids) > 0 {
		event := MistakesRecordedEvent{
			CourseID:     input.CourseID,
			StudentID:    input.StudentID,
			SubmissionID: input.SubmissionID,
			GradingPass:  input.GradingPass,
			MistakeIDs:   ids,
			RecordedAt:   r.now().UTC(),
		}
		if err := r.events.Publish(ctx, EventMistakesRecorded, event); err != nil {
			logger.Warn().Err(err).Msg("failed to publish mistakes recorded event")
		}
	}

	return ids, nil
}

func (r *mistakeRecorder) recordOutcome(ctx context.Context, logger zerolog.Logger, input RecordInput, outcome models.GradingOutcome) (string, error) {
	criteriaNames := uniqueNonBlank(outcome.RubricCriteriaMatched)
	mistake := models.Mistake{
		Question:            strings.TrimSpace(r.sanitizer.Sanitize(outcome.Question)),
		Justification:       strings.TrimSpace(r.sanitizer.Sanitize(outcome.Justification)),
		ScoreAwarded:        outcome.ScoreAwarded,
		RubricCriteriaNames: criteriaNames,
		StudentID:           input.StudentID,
		SubmissionID:        input.SubmissionID,
		CourseID:            input.CourseID,
		GradingPass:         input.GradingPass,
		CreatedAt:           r.now().UTC(),
	}
	if err := r.mistakes.Create(ctx, &mistake); err != nil {
		return "", fmt.Errorf("create mistake: %w", err)
	}

	if err := r.skipMissing(logger, models.EdgeHasFeedbackOn, r.mistakes.LinkSubmission(ctx, input.SubmissionID, mistake.ID)); err != nil {
		return "", err
	}
	if err := r.skipMissing(logger, models.EdgeMadeMistake, r.mistakes.LinkStudent(ctx, input.StudentID, mistake.ID)); err != nil {
		return "", err
	}

	for _, name := range criteriaNames {
		criterion, err := r.criteria.FindOrCreate(ctx, models.RubricCriterion{
			Name:        name,
			Description: outcome.CriteriaDescriptions[name],
		})
		if err != nil {
			return "", fmt.Errorf("find or create criterion %q: %w", name, err)
		}
		if err := r.skipMissing(logger, models.EdgeAffectsCriteria, r.mistakes.LinkCriterion(ctx, mistake.ID, criterion.ID)); err != nil {
			return "", err
		}
	}

	for _, excerpt := range outcome.SourceTextExcerpts {
		match, ok := r.matcher.Match(excerpt, input.Candidates)
		if !ok {
			observability.EdgesSkipped().WithLabelValues(models.EdgeRelatedTo, "no_match").Inc()
			logger.Debug().Str("mistake_id", mistake.ID).Msg("no section overlaps excerpt")
			continue
		}
		err := r.mistakes.LinkSection(ctx, mistake.ID, match.Section.ID, match.Relevance)
		if err := r.skipMissing(logger.With().Str("section_id", match.Section.ID).Logger(), models.EdgeRelatedTo, err); err != nil {
			return "", err
		}
	}

	return mistake.ID, nil
}

// skipMissing swallows edge failures caused by a missing endpoint and returns everything else.
func (r *mistakeRecorder) skipMissing(logger zerolog.Logger, edge string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, graphstore.ErrNotFound) {
		observability.EdgesSkipped().WithLabelValues(edge, "missing_vertex").Inc()
		logger.Warn().Err(err).Str("edge", edge).Msg("skipping edge to missing vertex")
		return nil
	}
	return fmt.Errorf("create %s edge: %w", edge, err)
}

func validateRecordInput(input RecordInput) error {
	checks := []struct {
		id         string
		collection string
	}{
		{input.StudentID, models.CollectionStudents},
		{input.SubmissionID, models.CollectionSubmissions},
	}
	for _, check := range checks {
		if graphstore.CollectionOf(check.id) != check.collection {
			return fmt.Errorf("%w: %q is not a %s id", models.ErrSchemaViolation, check.id, check.collection)
		}
	}
	return nil
}

func uniqueNonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
