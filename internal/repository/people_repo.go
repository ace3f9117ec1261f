package repository

import (
	"context"

	"github.com/noah-isme/gema-kg/internal/graphstore"
	"github.com/noah-isme/gema-kg/internal/models"
)

// PeopleRepository stores students and instructors.
type PeopleRepository interface {
	CreateStudent(ctx context.Context, student *models.Student) error
	GetStudent(ctx context.Context, id string) (models.Student, error)
	UpdateStudent(ctx context.Context, student *models.Student) error
	CreateInstructor(ctx context.Context, instructor *models.Instructor) error
	GetInstructor(ctx context.Context, id string) (models.Instructor, error)
}

type peopleRepository struct {
	store graphstore.Store
}

// NewPeopleRepository instantiates the repository.
func NewPeopleRepository(store graphstore.Store) PeopleRepository {
	return &peopleRepository{store: store}
}

func (r *peopleRepository) CreateStudent(ctx context.Context, student *models.Student) error {
	if student.Courses == nil {
		student.Courses = []string{}
	}
	id, err := createEncoded(ctx, r.store, models.CollectionStudents, student)
	if err != nil {
		return err
	}
	student.ID = id
	return nil
}

func (r *peopleRepository) GetStudent(ctx context.Context, id string) (models.Student, error) {
	return getDecoded[models.Student](ctx, r.store, models.CollectionStudents, id)
}

func (r *peopleRepository) UpdateStudent(ctx context.Context, student *models.Student) error {
	return updateEncoded(ctx, r.store, models.CollectionStudents, student.ID, student)
}

func (r *peopleRepository) CreateInstructor(ctx context.Context, instructor *models.Instructor) error {
	id, err := createEncoded(ctx, r.store, models.CollectionInstructors, instructor)
	if err != nil {
		return err
	}
	instructor.ID = id
	return nil
}

func (r *peopleRepository) GetInstructor(ctx context.Context, id string) (models.Instructor, error) {
	return getDecoded[models.Instructor](ctx, r.store, models.CollectionInstructors, id)
}
