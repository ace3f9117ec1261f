package repository

import (
	"context"

	"github.com/noah-isme/gema-kg/internal/graphstore"
	"github.com/noah-isme/gema-kg/internal/models"
)

// CourseRepository defines data operations for courses, teaching and enrollment.
type CourseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	GetByID(ctx context.Context, id string) (models.Course, error)
	FindByClassCode(ctx context.Context, classCode string) ([]models.Course, error)
	List(ctx context.Context) ([]models.Course, error)
	Update(ctx context.Context, course *models.Course) error
	LinkInstructor(ctx context.Context, instructorID, courseID string) error
	CourseIDsForInstructor(ctx context.Context, instructorID string) ([]string, error)
	Enroll(ctx context.Context, studentID, courseID string) error
	EnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error)
}

type courseRepository struct {
	store graphstore.Store
}

// NewCourseRepository instantiates the repository.
func NewCourseRepository(store graphstore.Store) CourseRepository {
	return &courseRepository{store: store}
}

func (r *courseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.Assignments == nil {
		course.Assignments = []models.Assignment{}
	}
	id, err := createEncoded(ctx, r.store, models.CollectionCourses, course)
	if err != nil {
		return err
	}
	course.ID = id
	return nil
}

func (r *courseRepository) GetByID(ctx context.Context, id string) (models.Course, error) {
	return getDecoded[models.Course](ctx, r.store, models.CollectionCourses, id)
}

func (r *courseRepository) FindByClassCode(ctx context.Context, classCode string) ([]models.Course, error) {
	docs, err := r.store.Find(ctx, models.CollectionCourses, graphstore.Document{"classCode": classCode})
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Course](docs)
}

func (r *courseRepository) List(ctx context.Context) ([]models.Course, error) {
	docs, err := r.store.Find(ctx, models.CollectionCourses, nil)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Course](docs)
}

func (r *courseRepository) Update(ctx context.Context, course *models.Course) error {
	return updateEncoded(ctx, r.store, models.CollectionCourses, course.ID, course)
}

func (r *courseRepository) LinkInstructor(ctx context.Context, instructorID, courseID string) error {
	_, err := linkVertices(ctx, r.store, models.EdgeTeaches, instructorID, courseID, nil)
	return err
}

func (r *courseRepository) CourseIDsForInstructor(ctx context.Context, instructorID string) ([]string, error) {
	edges, err := r.store.Edges(ctx, models.EdgeTeaches, graphstore.EdgeFilter{From: []string{instructorID}})
	if err != nil {
		return nil, err
	}
	return edgeTargets(edges), nil
}

func (r *courseRepository) Enroll(ctx context.Context, studentID, courseID string) error {
	_, err := linkVertices(ctx, r.store, models.EdgeEnrolledIn, studentID, courseID, nil)
	return err
}

func (r *courseRepository) EnrolledStudentIDs(ctx context.Context, courseID string) ([]string, error) {
	edges, err := r.store.Edges(ctx, models.EdgeEnrolledIn, graphstore.EdgeFilter{To: []string{courseID}})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(edges))
	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		if _, ok := seen[edge.From]; ok {
			continue
		}
		seen[edge.From] = struct{}{}
		ids = append(ids, edge.From)
	}
	return ids, nil
}
