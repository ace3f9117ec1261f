package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-kg/internal/dto"
	"github.com/noah-isme/gema-kg/internal/models"
	"github.com/noah-isme/gema-kg/internal/repository"
	"github.com/noah-isme/gema-kg/pkg/ai"
)

// GradingService finalises grades and feeds the resulting mistakes into the graph.
type GradingService interface {
	ApplyGrade(ctx context.Context, submissionID string, payload dto.GradeRequest) (dto.GradeResponse, error)
	AutoGrade(ctx context.Context, submissionID string, payload dto.AutoGradeRequest) (dto.GradeResponse, error)
}

type gradingService struct {
	submissions repository.SubmissionRepository
	courses     repository.CourseRepository
	materials   repository.MaterialRepository
	recorder    MistakeRecorder
	grader      ai.Grader
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewGradingService constructs the grading workflow. grader may be nil when automatic grading
// is not configured.
func NewGradingService(
	submissions repository.SubmissionRepository,
	courses repository.CourseRepository,
	materials repository.MaterialRepository,
	recorder MistakeRecorder,
	grader ai.Grader,
	validate *validator.Validate,
	logger zerolog.Logger,
) GradingService {
	return &gradingService{
		submissions: submissions,
		courses:     courses,
		materials:   materials,
		recorder:    recorder,
		grader:      grader,
		validator:   validate,
		sanitizer:   bluemonday.UGCPolicy(),
		logger:      logger.With().Str("component", "grading_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-kg/internal/service/grading"),
		now:         time.Now,
	}
}

func (s *gradingService) ApplyGrade(ctx context.Context, submissionID string, payload dto.GradeRequest) (dto.GradeResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GradeResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "grading.apply", trace.WithAttributes(
		attribute.String("submission.id", submissionID),
		attribute.Int("outcomes", len(payload.Outcomes)),
		attribute.Bool("regrade", payload.Regrade),
	))
	defer span.End()

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		return dto.GradeResponse{}, notFound(err, ErrSubmissionNotFound, submissionID)
	}

	// Mistakes are written before the submission so a failed attempt leaves the pass
	// uncommitted; its leftovers are dropped here and the retry reuses the pass number.
	if _, err := s.recorder.DiscardPending(ctx, submission.ID, submission.GradingPass); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "discard_pending_failed")
		return dto.GradeResponse{}, err
	}

	recorded, err := s.recorder.HasRecordedMistakes(ctx, submission.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "check_recorded_failed")
		return dto.GradeResponse{}, err
	}
	if recorded && !payload.Regrade {
		return dto.GradeResponse{}, fmt.Errorf("%w: %s", ErrMistakesAlreadyRecorded, submission.ID)
	}

	pass := submission.GradingPass + 1
	mistakeIDs := []string{}
	if len(payload.Outcomes) > 0 {
		candidates, err := s.materials.ListSections(ctx, submission.CourseID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "list_sections_failed")
			return dto.GradeResponse{}, err
		}

		outcomes := make([]models.GradingOutcome, 0, len(payload.Outcomes))
		for _, outcome := range payload.Outcomes {
			outcomes = append(outcomes, outcome.ToOutcome())
		}

		mistakeIDs, err = s.recorder.RecordMistakes(ctx, RecordInput{
			StudentID:    submission.StudentID,
			SubmissionID: submission.ID,
			CourseID:     submission.CourseID,
			GradingPass:  pass,
			Outcomes:     outcomes,
			Candidates:   candidates,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "record_mistakes_failed")
			return dto.GradeResponse{}, err
		}
	}

	gradedAt := s.now().UTC()
	grade := *payload.Grade
	submission.Grade = &grade
	submission.Feedback = strings.TrimSpace(s.sanitizer.Sanitize(payload.Feedback))
	submission.Graded = true
	submission.GradedAt = &gradedAt
	submission.GradingPass = pass

	if err := s.submissions.Update(ctx, &submission); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update_submission_failed")
		return dto.GradeResponse{}, err
	}

	s.logger.Info().
		Str("submission_id", submission.ID).
		Int("grading_pass", submission.GradingPass).
		Int("mistakes", len(mistakeIDs)).
		Msg("submission graded")

	return dto.GradeResponse{
		Submission: dto.NewSubmissionResponse(submission),
		MistakeIDs: mistakeIDs,
	}, nil
}

func (s *gradingService) AutoGrade(ctx context.Context, submissionID string, payload dto.AutoGradeRequest) (dto.GradeResponse, error) {
	if s.grader == nil {
		return dto.GradeResponse{}, ErrGraderUnavailable
	}
	if err := s.validator.Struct(payload); err != nil {
		return dto.GradeResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "grading.auto", trace.WithAttributes(attribute.String("submission.id", submissionID)))
	defer span.End()

	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		span.RecordError(err)
		return dto.GradeResponse{}, notFound(err, ErrSubmissionNotFound, submissionID)
	}

	input := ai.GradingInput{
		SubmissionText:  submission.Content,
		MaxScore:        payload.MaxScore,
		AdditionalNotes: payload.Notes,
	}
	for _, item := range payload.Rubric {
		input.Rubric = append(input.Rubric, ai.RubricItem{Name: item.Name, Description: item.Description, Points: item.Points})
	}

	course, err := s.courses.GetByID(ctx, submission.CourseID)
	if err == nil {
		if assignment, ok := course.FindAssignment(submission.AssignmentID); ok {
			input.AssignmentName = assignment.Name
			input.Instructions = assignment.Description
			if input.MaxScore == 0 {
				input.MaxScore = assignment.TotalPoints
			}
		}
	} else {
		s.logger.Warn().Err(err).Str("course_id", submission.CourseID).Msg("grading without course context")
	}

	sections, err := s.materials.ListSections(ctx, submission.CourseID)
	if err != nil {
		span.RecordError(err)
		return dto.GradeResponse{}, err
	}
	for _, section := range sections {
		input.SectionTitles = append(input.SectionTitles, section.Title)
	}

	result, err := s.grader.Grade(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grader_failed")
		return dto.GradeResponse{}, err
	}

	request := dto.GradeRequest{
		Grade:    &result.Grade,
		Feedback: result.Feedback,
		Regrade:  payload.Regrade,
	}
	for _, outcome := range result.Outcomes {
		request.Outcomes = append(request.Outcomes, dto.GradingOutcomeRequest{
			Question:              outcome.Question,
			Justification:         outcome.Justification,
			ScoreAwarded:          outcome.ScoreAwarded,
			RubricCriteriaMatched: outcome.RubricCriteriaMatched,
			SourceTextExcerpts:    outcome.SourceTextExcerpts,
			CriteriaDescriptions:  outcome.CriteriaDescriptions,
		})
	}
	return s.ApplyGrade(ctx, submissionID, request)
}
