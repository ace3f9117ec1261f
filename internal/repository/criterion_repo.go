package repository

import (
	"context"
	"sync"

	"github.com/noah-isme/gema-kg/internal/graphstore"
	"github.com/noah-isme/gema-kg/internal/models"
)

// CriterionRepository stores rubric criteria deduplicated on (name, description).
type CriterionRepository interface {
	FindOrCreate(ctx context.Context, criterion models.RubricCriterion) (models.RubricCriterion, error)
	GetMany(ctx context.Context, ids []string) ([]models.RubricCriterion, error)
	List(ctx context.Context) ([]models.RubricCriterion, error)
}

type criterionRepository struct {
	store graphstore.Store
	mu    sync.Mutex
}

// NewCriterionRepository instantiates the repository.
func NewCriterionRepository(store graphstore.Store) CriterionRepository {
	return &criterionRepository{store: store}
}

// FindOrCreate returns the stored criterion matching name and description, creating it when
// missing. Concurrent callers asking for the same pair receive the same vertex.
func (r *criterionRepository) FindOrCreate(ctx context.Context, criterion models.RubricCriterion) (models.RubricCriterion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs, err := r.store.Find(ctx, models.CollectionRubricCriteria, graphstore.Document{
		"name":        criterion.Name,
		"description": criterion.Description,
	})
	if err != nil {
		return models.RubricCriterion{}, err
	}
	if len(docs) > 0 {
		var existing models.RubricCriterion
		if err := graphstore.Decode(docs[0], &existing); err != nil {
			return models.RubricCriterion{}, err
		}
		return existing, nil
	}

	id, err := createEncoded(ctx, r.store, models.CollectionRubricCriteria, criterion)
	if err != nil {
		return models.RubricCriterion{}, err
	}
	criterion.ID = id
	return criterion, nil
}

func (r *criterionRepository) GetMany(ctx context.Context, ids []string) ([]models.RubricCriterion, error) {
	return getMany[models.RubricCriterion](ctx, r.store, models.CollectionRubricCriteria, ids)
}

func (r *criterionRepository) List(ctx context.Context) ([]models.RubricCriterion, error) {
	docs, err := r.store.Find(ctx, models.CollectionRubricCriteria, nil)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.RubricCriterion](docs)
}
