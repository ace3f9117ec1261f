package service

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-kg/internal/dto"
	"github.com/noah-isme/gema-kg/internal/models"
	"github.com/noah-isme/gema-kg/internal/repository"
)

// Student recommendation score weights.
const (
	relevanceWeight = 0.4
	strengthWeight  = 0.3
	pageRankWeight  = 0.3
	pageRankScale   = 10
)

// RecommendationService suggests material to students and surfaces struggling areas to
// instructors. It only reads the graph.
type RecommendationService interface {
	SectionsForStudent(ctx context.Context, studentID string, limit int) ([]dto.SectionRecommendation, error)
	ProblemSectionsForInstructor(ctx context.Context, instructorID string, limit int) ([]dto.ProblemSection, error)
}

type recommendationService struct {
	people      repository.PeopleRepository
	courses     repository.CourseRepository
	submissions repository.SubmissionRepository
	mistakes    repository.MistakeRepository
	materials   repository.MaterialRepository
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewRecommendationService constructs the recommendation service.
func NewRecommendationService(
	people repository.PeopleRepository,
	courses repository.CourseRepository,
	submissions repository.SubmissionRepository,
	mistakes repository.MistakeRepository,
	materials repository.MaterialRepository,
	logger zerolog.Logger,
) RecommendationService {
	return &recommendationService{
		people:      people,
		courses:     courses,
		submissions: submissions,
		mistakes:    mistakes,
		materials:   materials,
		logger:      logger.With().Str("component", "recommendation_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-kg/internal/service/recommendation"),
	}
}

type sectionAggregate struct {
	mistakes    map[string]struct{}
	students    map[string]struct{}
	strengthSum float64
	edgeCount   int
}

func newSectionAggregate() *sectionAggregate {
	return &sectionAggregate{mistakes: map[string]struct{}{}, students: map[string]struct{}{}}
}

func (s *recommendationService) SectionsForStudent(ctx context.Context, studentID string, limit int) ([]dto.SectionRecommendation, error) {
	ctx, span := s.tracer.Start(ctx, "recommendations.student", trace.WithAttributes(attribute.String("student.id", studentID)))
	defer span.End()

	if _, err := s.people.GetStudent(ctx, studentID); err != nil {
		span.RecordError(err)
		return nil, notFound(err, ErrStudentNotFound, studentID)
	}

	mistakeIDs, err := s.mistakes.StudentMistakeIDs(ctx, studentID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(mistakeIDs) == 0 {
		return []dto.SectionRecommendation{}, nil
	}

	edges, err := s.mistakes.SectionEdges(ctx, mistakeIDs)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	aggregates := make(map[string]*sectionAggregate)
	order := make([]string, 0)
	for _, edge := range edges {
		agg, ok := aggregates[edge.To]
		if !ok {
			agg = newSectionAggregate()
			aggregates[edge.To] = agg
			order = append(order, edge.To)
		}
		agg.mistakes[edge.From] = struct{}{}
		agg.strengthSum += models.EdgeStrength(edge.Attrs, models.DefaultEdgeStrength)
		agg.edgeCount++
	}

	sections, err := s.materials.GetSections(ctx, order)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	recommendations := make([]dto.SectionRecommendation, 0, len(sections))
	for _, section := range sections {
		agg := aggregates[section.ID]
		relevance := len(agg.mistakes)
		avgStrength := models.DefaultEdgeStrength
		if agg.edgeCount > 0 {
			avgStrength = agg.strengthSum / float64(agg.edgeCount)
		}
		pageRank := section.Importance()
		recommendations = append(recommendations, dto.SectionRecommendation{
			SectionID:   section.ID,
			CourseID:    section.CourseID,
			Title:       section.Title,
			Relevance:   relevance,
			AvgStrength: avgStrength,
			PageRank:    pageRank,
			Score:       relevanceWeight*float64(relevance) + strengthWeight*avgStrength + pageRankWeight*(pageRank*pageRankScale),
		})
	}

	sort.Slice(recommendations, func(i, j int) bool {
		if recommendations[i].Score != recommendations[j].Score {
			return recommendations[i].Score > recommendations[j].Score
		}
		return recommendations[i].SectionID < recommendations[j].SectionID
	})
	if limit > 0 && len(recommendations) > limit {
		recommendations = recommendations[:limit]
	}
	span.SetAttributes(attribute.Int("recommendations", len(recommendations)))
	return recommendations, nil
}

func (s *recommendationService) ProblemSectionsForInstructor(ctx context.Context, instructorID string, limit int) ([]dto.ProblemSection, error) {
	ctx, span := s.tracer.Start(ctx, "recommendations.instructor", trace.WithAttributes(attribute.String("instructor.id", instructorID)))
	defer span.End()

	if _, err := s.people.GetInstructor(ctx, instructorID); err != nil {
		span.RecordError(err)
		return nil, notFound(err, ErrInstructorNotFound, instructorID)
	}

	courseIDs, err := s.courses.CourseIDsForInstructor(ctx, instructorID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	problems := make([]dto.ProblemSection, 0)
	for _, courseID := range courseIDs {
		items, err := s.problemSectionsForCourse(ctx, courseID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		problems = append(problems, items...)
	}

	sort.Slice(problems, func(i, j int) bool {
		if problems[i].MistakeCount != problems[j].MistakeCount {
			return problems[i].MistakeCount > problems[j].MistakeCount
		}
		if problems[i].CourseID != problems[j].CourseID {
			return problems[i].CourseID < problems[j].CourseID
		}
		return problems[i].SectionID < problems[j].SectionID
	})
	if limit > 0 && len(problems) > limit {
		problems = problems[:limit]
	}
	span.SetAttributes(attribute.Int("problem_sections", len(problems)))
	return problems, nil
}

func (s *recommendationService) problemSectionsForCourse(ctx context.Context, courseID string) ([]dto.ProblemSection, error) {
	enrolled, err := s.courses.EnrolledStudentIDs(ctx, courseID)
	if err != nil {
		return nil, err
	}
	enrolledSet := make(map[string]struct{}, len(enrolled))
	for _, studentID := range enrolled {
		enrolledSet[studentID] = struct{}{}
	}
	submissions, err := s.submissions.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if len(submissions) == 0 {
		return nil, nil
	}

	submissionIDs := make([]string, 0, len(submissions))
	studentBySubmission := make(map[string]string, len(submissions))
	for _, submission := range submissions {
		submissionIDs = append(submissionIDs, submission.ID)
		studentBySubmission[submission.ID] = submission.StudentID
	}
	bySubmission, err := s.submissions.MistakeIDsBySubmission(ctx, submissionIDs)
	if err != nil {
		return nil, err
	}

	studentByMistake := make(map[string]string)
	mistakeIDs := make([]string, 0)
	for _, submissionID := range submissionIDs {
		for _, mistakeID := range bySubmission[submissionID] {
			if _, ok := studentByMistake[mistakeID]; ok {
				continue
			}
			studentByMistake[mistakeID] = studentBySubmission[submissionID]
			mistakeIDs = append(mistakeIDs, mistakeID)
		}
	}

	edges, err := s.mistakes.SectionEdges(ctx, mistakeIDs)
	if err != nil {
		return nil, err
	}
	aggregates := make(map[string]*sectionAggregate)
	order := make([]string, 0)
	for _, edge := range edges {
		agg, ok := aggregates[edge.To]
		if !ok {
			agg = newSectionAggregate()
			aggregates[edge.To] = agg
			order = append(order, edge.To)
		}
		agg.mistakes[edge.From] = struct{}{}
		agg.students[studentByMistake[edge.From]] = struct{}{}
	}

	sections, err := s.materials.GetSections(ctx, order)
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(sections))
	for _, section := range sections {
		titles[section.ID] = section.Title
	}

	out := make([]dto.ProblemSection, 0, len(order))
	for _, sectionID := range order {
		agg := aggregates[sectionID]
		percentage := 0.0
		if len(enrolled) > 0 {
			percentage = float64(countEnrolled(agg.students, enrolledSet)) / float64(len(enrolled)) * 100
		}
		out = append(out, dto.ProblemSection{
			CourseID:             courseID,
			SectionID:            sectionID,
			Title:                titles[sectionID],
			MistakeCount:         len(agg.mistakes),
			DistinctStudentCount: len(agg.students),
			EnrolledStudents:     len(enrolled),
			Percentage:           percentage,
		})
	}
	return out, nil
}

// countEnrolled counts the students that are still enrolled, so percentages never exceed 100.
func countEnrolled(students, enrolled map[string]struct{}) int {
	count := 0
	for studentID := range students {
		if _, ok := enrolled[studentID]; ok {
			count++
		}
	}
	return count
}
